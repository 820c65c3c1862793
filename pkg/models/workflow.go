package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowType names the built-in workflow templates.
type WorkflowType string

const (
	WorkflowAlertInvestigation   WorkflowType = "alert_investigation"
	WorkflowCaseInvestigation    WorkflowType = "case_investigation"
	WorkflowSARPreparation       WorkflowType = "sar_preparation"
	WorkflowKYCRefresh           WorkflowType = "kyc_refresh"
	WorkflowEDDReview            WorkflowType = "edd_review"
	WorkflowPeriodicReview       WorkflowType = "periodic_review"
	WorkflowSanctionsRemediation WorkflowType = "sanctions_remediation"
)

// WorkflowStatus is the instance lifecycle.
type WorkflowStatus string

const (
	WorkflowCreated          WorkflowStatus = "created"
	WorkflowInProgress       WorkflowStatus = "in_progress"
	WorkflowAwaitingApproval WorkflowStatus = "awaiting_approval"
	WorkflowCompleted        WorkflowStatus = "completed"
	WorkflowRejectedStatus   WorkflowStatus = "rejected"
	WorkflowCancelled        WorkflowStatus = "cancelled"
)

// IsTerminal reports whether the workflow can no longer advance.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowRejectedStatus || s == WorkflowCancelled
}

// StepStatus is the per-step state.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepSkipped    StepStatus = "skipped"
)

// WorkflowStep is one ordered step of a workflow instance.
type WorkflowStep struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Required    bool       `json:"required"`
	Status      StepStatus `json:"status"`
	CompletedBy string     `json:"completedBy,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// Workflow is an instance of a named template bound to an entity
// (alert, case, SAR or customer).
type Workflow struct {
	ID               uuid.UUID      `json:"id"`
	Type             WorkflowType   `json:"type"`
	Status           WorkflowStatus `json:"status"`
	EntityID         uuid.UUID      `json:"entityId"`
	EntityKind       string         `json:"entityKind"` // alert/case/sar/customer
	Steps            []WorkflowStep `json:"steps"`
	CurrentStep      int            `json:"currentStep"`
	Assignee         string         `json:"assignee,omitempty"`
	PendingApprovers []string       `json:"pendingApprovers,omitempty"`
	DueDate          time.Time      `json:"dueDate"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
	CancelReason     string         `json:"cancelReason,omitempty"`
}

// Overdue reports whether the workflow has blown its deadline and is
// still live.
func (w *Workflow) Overdue(now time.Time) bool {
	return now.After(w.DueDate) && w.Status != WorkflowCompleted && w.Status != WorkflowCancelled
}
