package workflow

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/pkg/models"
)

// Workflow Orchestrator
//
// Instantiates the built-in step templates and drives them forward.
// complete_step advances the current index; skip_step refuses required
// steps; request_approval parks the instance in awaiting_approval with a
// pending-approver set that drains one approval at a time. Reject and
// cancel are terminal.

// templateStep is one step definition inside a template.
type templateStep struct {
	name        string
	description string
	required    bool
}

// template binds a workflow type to its ordered steps and SLA.
type template struct {
	steps []templateStep
	sla   time.Duration
}

var templates = map[models.WorkflowType]template{
	models.WorkflowAlertInvestigation: {
		sla: 7 * 24 * time.Hour,
		steps: []templateStep{
			{"initial_review", "Triage the alert and confirm data quality", true},
			{"gather_context", "Pull customer history and related alerts", true},
			{"analyze_activity", "Analyze the flagged activity", true},
			{"document_conclusion", "Record disposition and rationale", true},
		},
	},
	models.WorkflowCaseInvestigation: {
		sla: 30 * 24 * time.Hour,
		steps: []templateStep{
			{"scope_investigation", "Define subjects, accounts and period", true},
			{"collect_evidence", "Collect statements and documents", true},
			{"interview_notes", "Record branch or RM input", false},
			{"analyze_findings", "Consolidate findings", true},
			{"recommend_disposition", "Recommend close or SAR", true},
		},
	},
	models.WorkflowSARPreparation: {
		sla: 14 * 24 * time.Hour,
		steps: []templateStep{
			{"draft_narrative", "Draft the six-section narrative", true},
			{"attach_transactions", "Attach supporting transactions", true},
			{"quality_review", "Peer quality review", true},
			{"file_report", "File with the regulator", true},
		},
	},
	models.WorkflowKYCRefresh: {
		sla: 30 * 24 * time.Hour,
		steps: []templateStep{
			{"request_documents", "Request updated KYC documents", true},
			{"verify_documents", "Verify received documents", true},
			{"update_profile", "Update the customer profile", true},
		},
	},
	models.WorkflowEDDReview: {
		sla: 14 * 24 * time.Hour,
		steps: []templateStep{
			{"source_of_wealth", "Establish source of wealth/funds", true},
			{"screen_associates", "Screen related parties", true},
			{"senior_signoff", "Senior management sign-off", true},
		},
	},
	models.WorkflowPeriodicReview: {
		sla: 30 * 24 * time.Hour,
		steps: []templateStep{
			{"refresh_risk_assessment", "Re-run the risk assessment", true},
			{"review_activity", "Review the period's activity", true},
			{"confirm_rating", "Confirm or adjust the rating", true},
		},
	},
	models.WorkflowSanctionsRemediation: {
		sla: 3 * 24 * time.Hour,
		steps: []templateStep{
			{"verify_match", "Verify the potential sanctions match", true},
			{"freeze_decision", "Decide on asset freeze", true},
			{"regulatory_notification", "Notify the regulator if confirmed", true},
			{"document_outcome", "Document the outcome", true},
		},
	},
}

// Orchestrator owns workflow instances.
type Orchestrator struct {
	mu        sync.RWMutex
	workflows map[uuid.UUID]*models.Workflow
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{workflows: make(map[uuid.UUID]*models.Workflow)}
}

// Create instantiates a template bound to an entity.
func (o *Orchestrator) Create(wfType models.WorkflowType, entityID uuid.UUID, entityKind string) (*models.Workflow, error) {
	tpl, ok := templates[wfType]
	if !ok {
		return nil, core.Invalid("unknown workflow type %q", wfType)
	}

	now := time.Now().UTC()
	wf := &models.Workflow{
		ID:         uuid.New(),
		Type:       wfType,
		Status:     models.WorkflowCreated,
		EntityID:   entityID,
		EntityKind: entityKind,
		DueDate:    now.Add(tpl.sla),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, step := range tpl.steps {
		wf.Steps = append(wf.Steps, models.WorkflowStep{
			Name:        step.name,
			Description: step.description,
			Required:    step.required,
			Status:      models.StepPending,
		})
	}

	o.mu.Lock()
	o.workflows[wf.ID] = wf
	o.mu.Unlock()

	log.Printf("[Workflow] Created %s workflow %s for %s %s", wfType, wf.ID, entityKind, entityID)
	return wf, nil
}

// Get returns a workflow instance.
func (o *Orchestrator) Get(id uuid.UUID) (*models.Workflow, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	wf, ok := o.workflows[id]
	if !ok {
		return nil, core.NotFound("workflow %s not found", id)
	}
	return wf, nil
}

func (o *Orchestrator) live(id uuid.UUID) (*models.Workflow, error) {
	wf, ok := o.workflows[id]
	if !ok {
		return nil, core.NotFound("workflow %s not found", id)
	}
	if wf.Status.IsTerminal() {
		return nil, core.Invalid("workflow %s is %s", id, wf.Status)
	}
	return wf, nil
}

// Start moves a created workflow into progress on its first step.
func (o *Orchestrator) Start(id uuid.UUID, assignee string) (*models.Workflow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	wf, err := o.live(id)
	if err != nil {
		return nil, err
	}
	if wf.Status != models.WorkflowCreated {
		return nil, core.Invalid("workflow %s already started (%s)", id, wf.Status)
	}
	wf.Status = models.WorkflowInProgress
	wf.Assignee = assignee
	wf.Steps[0].Status = models.StepInProgress
	wf.UpdatedAt = time.Now().UTC()
	return wf, nil
}

// advance marks the current step done and moves to the next pending one;
// past the last step the workflow completes.
func (o *Orchestrator) advance(wf *models.Workflow, status models.StepStatus, actor, note string) {
	now := time.Now().UTC()
	step := &wf.Steps[wf.CurrentStep]
	step.Status = status
	step.CompletedBy = actor
	step.CompletedAt = &now
	step.Note = note

	wf.CurrentStep++
	if wf.CurrentStep >= len(wf.Steps) {
		wf.Status = models.WorkflowCompleted
		wf.CompletedAt = &now
		log.Printf("[Workflow] %s completed", wf.ID)
	} else {
		wf.Status = models.WorkflowInProgress
		wf.Steps[wf.CurrentStep].Status = models.StepInProgress
	}
	wf.UpdatedAt = now
}

// CompleteStep finishes the current step and advances.
func (o *Orchestrator) CompleteStep(id uuid.UUID, actor, note string) (*models.Workflow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	wf, err := o.live(id)
	if err != nil {
		return nil, err
	}
	if wf.Status != models.WorkflowInProgress {
		return nil, core.Invalid("workflow %s is not in progress (%s)", id, wf.Status)
	}
	o.advance(wf, models.StepCompleted, actor, note)
	return wf, nil
}

// SkipStep skips the current step. Required steps cannot be skipped.
func (o *Orchestrator) SkipStep(id uuid.UUID, actor, note string) (*models.Workflow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	wf, err := o.live(id)
	if err != nil {
		return nil, err
	}
	if wf.Status != models.WorkflowInProgress {
		return nil, core.Invalid("workflow %s is not in progress (%s)", id, wf.Status)
	}
	if wf.Steps[wf.CurrentStep].Required {
		return nil, core.Invalid("cannot skip required step")
	}
	o.advance(wf, models.StepSkipped, actor, note)
	return wf, nil
}

// RequestApproval parks the workflow awaiting the given approvers.
func (o *Orchestrator) RequestApproval(id uuid.UUID, approvers []string) (*models.Workflow, error) {
	if len(approvers) == 0 {
		return nil, core.Invalid("approval requires at least one approver")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	wf, err := o.live(id)
	if err != nil {
		return nil, err
	}
	if wf.Status != models.WorkflowInProgress {
		return nil, core.Invalid("workflow %s is not in progress (%s)", id, wf.Status)
	}
	wf.Status = models.WorkflowAwaitingApproval
	wf.PendingApprovers = append([]string(nil), approvers...)
	wf.UpdatedAt = time.Now().UTC()
	return wf, nil
}

// ApproveStep removes one approver from the pending set; when the set
// drains the current step auto-completes and the workflow advances.
func (o *Orchestrator) ApproveStep(id uuid.UUID, approver string) (*models.Workflow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	wf, err := o.live(id)
	if err != nil {
		return nil, err
	}
	if wf.Status != models.WorkflowAwaitingApproval {
		return nil, core.Invalid("workflow %s is not awaiting approval (%s)", id, wf.Status)
	}

	found := false
	remaining := wf.PendingApprovers[:0]
	for _, pending := range wf.PendingApprovers {
		if pending == approver && !found {
			found = true
			continue
		}
		remaining = append(remaining, pending)
	}
	if !found {
		return nil, core.Invalid("%s is not a pending approver on workflow %s", approver, id)
	}
	wf.PendingApprovers = remaining
	wf.UpdatedAt = time.Now().UTC()

	if len(wf.PendingApprovers) == 0 {
		o.advance(wf, models.StepCompleted, approver, "approved")
	}
	return wf, nil
}

// RejectStep terminates the workflow with a rejection.
func (o *Orchestrator) RejectStep(id uuid.UUID, approver, reason string) (*models.Workflow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	wf, err := o.live(id)
	if err != nil {
		return nil, err
	}
	if wf.Status != models.WorkflowAwaitingApproval {
		return nil, core.Invalid("workflow %s is not awaiting approval (%s)", id, wf.Status)
	}
	wf.Status = models.WorkflowRejectedStatus
	wf.CancelReason = reason
	wf.UpdatedAt = time.Now().UTC()
	log.Printf("[Workflow] %s rejected by %s: %s", wf.ID, approver, reason)
	return wf, nil
}

// Cancel terminates the workflow.
func (o *Orchestrator) Cancel(id uuid.UUID, reason string) (*models.Workflow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	wf, err := o.live(id)
	if err != nil {
		return nil, err
	}
	wf.Status = models.WorkflowCancelled
	wf.CancelReason = reason
	wf.UpdatedAt = time.Now().UTC()
	return wf, nil
}

// Reassign changes the workflow assignee.
func (o *Orchestrator) Reassign(id uuid.UUID, assignee string) (*models.Workflow, error) {
	if assignee == "" {
		return nil, core.Invalid("assignee is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	wf, err := o.live(id)
	if err != nil {
		return nil, err
	}
	wf.Assignee = assignee
	wf.UpdatedAt = time.Now().UTC()
	return wf, nil
}

// Overdue lists live workflows past their due date.
func (o *Orchestrator) Overdue(now time.Time) []*models.Workflow {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []*models.Workflow
	for _, wf := range o.workflows {
		if wf.Overdue(now) {
			out = append(out, wf)
		}
	}
	return out
}

// ForEntity lists workflows bound to one entity.
func (o *Orchestrator) ForEntity(entityID uuid.UUID) []*models.Workflow {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []*models.Workflow
	for _, wf := range o.workflows {
		if wf.EntityID == entityID {
			out = append(out, wf)
		}
	}
	return out
}
