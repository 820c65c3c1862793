package workflow

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/pkg/models"
)

func startedWorkflow(t *testing.T, o *Orchestrator, wfType models.WorkflowType) *models.Workflow {
	t.Helper()
	wf, err := o.Create(wfType, uuid.New(), "alert")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := o.Start(wf.ID, "analyst1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return wf
}

func TestWorkflow_CompleteAllSteps(t *testing.T) {
	o := NewOrchestrator()
	wf := startedWorkflow(t, o, models.WorkflowAlertInvestigation)

	for i := 0; i < len(wf.Steps); i++ {
		if _, err := o.CompleteStep(wf.ID, "analyst1", ""); err != nil {
			t.Fatalf("CompleteStep %d failed: %v", i, err)
		}
	}

	got, _ := o.Get(wf.ID)
	if got.Status != models.WorkflowCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt must be set on completion")
	}
	for i, step := range got.Steps {
		if step.Status != models.StepCompleted {
			t.Errorf("Step %d (%s) not completed: %s", i, step.Name, step.Status)
		}
	}

	// Terminal workflows refuse further work.
	if _, err := o.CompleteStep(wf.ID, "analyst1", ""); !core.IsInvalid(err) {
		t.Errorf("Completing a finished workflow must be invalid, got %v", err)
	}
}

func TestWorkflow_SkipRequiredStepRefused(t *testing.T) {
	o := NewOrchestrator()
	wf := startedWorkflow(t, o, models.WorkflowCaseInvestigation)

	// Step 0 is required.
	if _, err := o.SkipStep(wf.ID, "analyst1", ""); err == nil || err.Error() != "cannot skip required step" {
		t.Fatalf("Expected the fixed skip guard message, got %v", err)
	}

	// Advance to the optional interview_notes step (index 2) and skip it.
	o.CompleteStep(wf.ID, "analyst1", "")
	o.CompleteStep(wf.ID, "analyst1", "")
	got, _ := o.Get(wf.ID)
	if got.Steps[got.CurrentStep].Name != "interview_notes" {
		t.Fatalf("Expected interview_notes current, got %s", got.Steps[got.CurrentStep].Name)
	}
	if _, err := o.SkipStep(wf.ID, "analyst1", "no branch contact"); err != nil {
		t.Fatalf("Skipping an optional step failed: %v", err)
	}
	got, _ = o.Get(wf.ID)
	if got.Steps[2].Status != models.StepSkipped {
		t.Errorf("Expected step 2 skipped, got %s", got.Steps[2].Status)
	}
	if got.CurrentStep != 3 {
		t.Errorf("Skip must advance the index, got %d", got.CurrentStep)
	}
}

func TestWorkflow_ApprovalDrainsAndAutoCompletes(t *testing.T) {
	o := NewOrchestrator()
	wf := startedWorkflow(t, o, models.WorkflowEDDReview)

	if _, err := o.RequestApproval(wf.ID, []string{"mlro", "head_of_compliance"}); err != nil {
		t.Fatalf("RequestApproval failed: %v", err)
	}
	got, _ := o.Get(wf.ID)
	if got.Status != models.WorkflowAwaitingApproval {
		t.Fatalf("Expected awaiting_approval, got %s", got.Status)
	}

	// While awaiting approval, normal stepping is blocked.
	if _, err := o.CompleteStep(wf.ID, "analyst1", ""); !core.IsInvalid(err) {
		t.Errorf("CompleteStep while awaiting approval must be invalid, got %v", err)
	}
	// Only pending approvers can approve.
	if _, err := o.ApproveStep(wf.ID, "random"); !core.IsInvalid(err) {
		t.Errorf("Unknown approver must be invalid, got %v", err)
	}

	if _, err := o.ApproveStep(wf.ID, "mlro"); err != nil {
		t.Fatalf("First approval failed: %v", err)
	}
	got, _ = o.Get(wf.ID)
	if got.Status != models.WorkflowAwaitingApproval || len(got.PendingApprovers) != 1 {
		t.Error("One approval must leave the workflow awaiting the second")
	}

	if _, err := o.ApproveStep(wf.ID, "head_of_compliance"); err != nil {
		t.Fatalf("Second approval failed: %v", err)
	}
	got, _ = o.Get(wf.ID)
	if got.Status != models.WorkflowInProgress {
		t.Errorf("Draining the approver set must auto-complete the step, got %s", got.Status)
	}
	if got.CurrentStep != 1 {
		t.Errorf("Expected advance to step 1, got %d", got.CurrentStep)
	}
	if got.Steps[0].Status != models.StepCompleted {
		t.Errorf("Approved step must be completed, got %s", got.Steps[0].Status)
	}
}

func TestWorkflow_RejectAndCancelAreTerminal(t *testing.T) {
	o := NewOrchestrator()

	rejected := startedWorkflow(t, o, models.WorkflowSARPreparation)
	o.RequestApproval(rejected.ID, []string{"bsa_officer"})
	if _, err := o.RejectStep(rejected.ID, "bsa_officer", "insufficient narrative"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	got, _ := o.Get(rejected.ID)
	if got.Status != models.WorkflowRejectedStatus {
		t.Errorf("Expected rejected, got %s", got.Status)
	}
	if _, err := o.Reassign(rejected.ID, "analyst2"); !core.IsInvalid(err) {
		t.Errorf("Terminal workflows must refuse reassignment, got %v", err)
	}

	cancelled := startedWorkflow(t, o, models.WorkflowKYCRefresh)
	if _, err := o.Cancel(cancelled.ID, "customer exited"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	got, _ = o.Get(cancelled.ID)
	if got.Status != models.WorkflowCancelled || got.CancelReason != "customer exited" {
		t.Errorf("Expected cancelled with reason, got %s (%q)", got.Status, got.CancelReason)
	}
}

func TestWorkflow_OverdueQuery(t *testing.T) {
	o := NewOrchestrator()

	fast := startedWorkflow(t, o, models.WorkflowSanctionsRemediation) // 3-day SLA
	slow := startedWorkflow(t, o, models.WorkflowCaseInvestigation)    // 30-day SLA

	probe := time.Now().UTC().Add(5 * 24 * time.Hour)
	overdue := o.Overdue(probe)
	if len(overdue) != 1 || overdue[0].ID != fast.ID {
		t.Fatalf("Expected only the sanctions workflow overdue at +5d, got %d", len(overdue))
	}

	// Completed workflows are never overdue.
	done := startedWorkflow(t, o, models.WorkflowKYCRefresh)
	for range done.Steps {
		o.CompleteStep(done.ID, "analyst1", "")
	}
	probe = time.Now().UTC().Add(400 * 24 * time.Hour)
	for _, wf := range o.Overdue(probe) {
		if wf.ID == done.ID {
			t.Error("Completed workflows must not be overdue")
		}
	}
	_ = slow
}

func TestWorkflow_UnknownTypeRejected(t *testing.T) {
	o := NewOrchestrator()
	if _, err := o.Create("coffee_break", uuid.New(), "alert"); !core.IsInvalid(err) {
		t.Errorf("Unknown template must be invalid, got %v", err)
	}
}
