package models

import (
	"time"

	"github.com/google/uuid"
)

// CaseCategory classifies the suspected offense a case investigates.
type CaseCategory string

const (
	CategoryMoneyLaundering    CaseCategory = "money_laundering"
	CategoryTerroristFinancing CaseCategory = "terrorist_financing"
	CategoryFraud              CaseCategory = "fraud"
	CategorySanctionsViolation CaseCategory = "sanctions_violation"
	CategoryStructuring        CaseCategory = "structuring"
	CategoryOther              CaseCategory = "other"
)

// CasePriority drives the case SLA.
type CasePriority string

const (
	PriorityLow    CasePriority = "low"
	PriorityMedium CasePriority = "medium"
	PriorityHigh   CasePriority = "high"
	PriorityUrgent CasePriority = "urgent"
)

// CaseSLA maps priority to the resolution deadline offset.
func CaseSLA(p CasePriority) time.Duration {
	switch p {
	case PriorityUrgent:
		return 14 * 24 * time.Hour
	case PriorityHigh:
		return 30 * 24 * time.Hour
	case PriorityMedium:
		return 60 * 24 * time.Hour
	default:
		return 90 * 24 * time.Hour
	}
}

// CaseStatus is the case workflow state.
type CaseStatus string

const (
	CaseDraft            CaseStatus = "draft"
	CaseOpen             CaseStatus = "open"
	CaseInProgress       CaseStatus = "in_progress"
	CasePendingReview    CaseStatus = "pending_review"
	CaseEscalated        CaseStatus = "escalated"
	CasePendingSAR       CaseStatus = "pending_sar"
	CaseSARFiled         CaseStatus = "sar_filed"
	CaseClosedNoAction   CaseStatus = "closed_no_action"
	CaseClosedWithAction CaseStatus = "closed_with_action"
)

// IsClosed reports whether the case status is terminal.
func (s CaseStatus) IsClosed() bool {
	return s == CaseClosedNoAction || s == CaseClosedWithAction
}

// TimelineEntry is one append-only event on a case. Entries are generated
// automatically for creation, status change, assignment, finding add,
// document add, related-entity add, escalation and close.
type TimelineEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"eventType"`
	Description string    `json:"description"`
	Actor       string    `json:"actor,omitempty"`
}

// Finding is an investigator conclusion recorded on a case.
type Finding struct {
	ID          uuid.UUID `json:"id"`
	Summary     string    `json:"summary"`
	Detail      string    `json:"detail,omitempty"`
	Severity    Severity  `json:"severity"`
	RecordedBy  string    `json:"recordedBy"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// CaseDocument references an attachment in the external document store.
type CaseDocument struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DocumentPath string   `json:"documentPath"`
	AddedBy     string    `json:"addedBy"`
	AddedAt     time.Time `json:"addedAt"`
}

// RelatedEntity links a case to a master entity with a role.
type RelatedEntity struct {
	EntityID uuid.UUID `json:"entityId"`
	Role     string    `json:"role"` // subject/counterparty/beneficiary/witness
	AddedAt  time.Time `json:"addedAt"`
}

// Case aggregates one or more alerts into a single investigation.
// Number format CASE-YYYYMMDD-NNNNNN is externally visible and fixed.
type Case struct {
	ID              uuid.UUID       `json:"id"`
	Number          string          `json:"number"`
	Title           string          `json:"title"`
	Category        CaseCategory    `json:"category"`
	Priority        CasePriority    `json:"priority"`
	Status          CaseStatus      `json:"status"`
	CustomerID      uuid.UUID       `json:"customerId"`
	AlertIDs        []uuid.UUID     `json:"alertIds,omitempty"`
	SARIDs          []uuid.UUID     `json:"sarIds,omitempty"`
	AssignedTo      string          `json:"assignedTo,omitempty"`
	Timeline        []TimelineEntry `json:"timeline"`
	Findings        []Finding       `json:"findings,omitempty"`
	Documents       []CaseDocument  `json:"documents,omitempty"`
	RelatedEntities []RelatedEntity `json:"relatedEntities,omitempty"`
	DueDate         time.Time       `json:"dueDate"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	ClosedAt        *time.Time      `json:"closedAt,omitempty"`
	ResolutionType  string          `json:"resolutionType,omitempty"` // no_action/with_action
	ResolutionSummary string        `json:"resolutionSummary,omitempty"`
	Version         int64           `json:"version"`
}

// CaseSearchCriteria filters case searches. Zero values mean "any".
type CaseSearchCriteria struct {
	Status     CaseStatus   `json:"status,omitempty"`
	Category   CaseCategory `json:"category,omitempty"`
	Priority   CasePriority `json:"priority,omitempty"`
	CustomerID *uuid.UUID   `json:"customerId,omitempty"`
	AssignedTo string       `json:"assignedTo,omitempty"`
	Page       int          `json:"page,omitempty"`
	PageSize   int          `json:"pageSize,omitempty"`
}

// CaseStatistics is the aggregate view of the case book.
type CaseStatistics struct {
	Total      int                  `json:"total"`
	ByStatus   map[CaseStatus]int   `json:"byStatus"`
	ByCategory map[CaseCategory]int `json:"byCategory"`
	Open       int                  `json:"open"`
	Overdue    int                  `json:"overdue"`
}
