package screening

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/pkg/models"
)

func sanctionsList(entries ...models.ListEntry) *models.ScreeningList {
	listID := uuid.New()
	for i := range entries {
		entries[i].ListID = listID
		entries[i].Active = true
		if entries[i].ID == uuid.Nil {
			entries[i].ID = uuid.New()
		}
	}
	return &models.ScreeningList{
		ID:      listID,
		Name:    "OFAC SDN",
		Type:    models.ListSanctions,
		Entries: entries,
	}
}

func TestScreen_ExactSanctionsHit(t *testing.T) {
	// Scenario: subject name equals the entry primary name, DOB equal.
	// name 1.0*0.6 + id 0 + dob 0.05 = 0.65 without identifiers, so give
	// the entry a matching passport to cross the 0.8 default threshold.
	dob := time.Date(1975, 3, 14, 0, 0, 0, 0, time.UTC)
	passport := models.Identifier{Type: models.IDPassport, Value: "X123456", IssuingCountry: "SY"}

	list := sanctionsList(models.ListEntry{
		PrimaryName: "John Smith Doe",
		Aliases:     []string{"J. Smith"},
		DateOfBirth: &dob,
		Identifiers: []models.Identifier{passport},
	})

	req := models.ScreeningRequest{
		ID:          uuid.New(),
		SubjectID:   uuid.New(),
		Name:        "John Smith Doe",
		DateOfBirth: &dob,
		Identifiers: []models.Identifier{passport},
	}

	result := NewEngine().Screen(req, []*models.ScreeningList{list})

	if len(result.Matches) != 1 {
		t.Fatalf("Expected exactly 1 match, got %d", len(result.Matches))
	}
	m := result.Matches[0]
	if m.OverallScore != 1.0 {
		t.Errorf("Expected overall 1.0 (0.6+0.3+0.05+capped), got %v", m.OverallScore)
	}
	if m.MatchType != models.MatchExact {
		t.Errorf("Expected exact match type, got %s", m.MatchType)
	}
	if result.Status != models.ScreeningPendingReview {
		t.Errorf("Expected pending_review status, got %s", result.Status)
	}
}

func TestScreen_AliasFuzzyMatch(t *testing.T) {
	list := sanctionsList(models.ListEntry{
		PrimaryName: "Viktor Anatolyevich Bout",
		Aliases:     []string{"Victor Bout", "Viktor Butt"},
	})

	req := models.ScreeningRequest{
		ID:        uuid.New(),
		SubjectID: uuid.New(),
		Name:      "Viktor Bout",
		Threshold: 0.5,
	}

	result := NewEngine().Screen(req, []*models.ScreeningList{list})
	if len(result.Matches) != 1 {
		t.Fatalf("Expected alias to produce a match, got %d", len(result.Matches))
	}
	if result.Matches[0].FieldScores.Name < 0.5 {
		t.Errorf("Alias name score too low: %v", result.Matches[0].FieldScores.Name)
	}
}

func TestScreen_BelowRejectFloorDropped(t *testing.T) {
	list := sanctionsList(models.ListEntry{PrimaryName: "Completely Different Person"})

	req := models.ScreeningRequest{
		ID:        uuid.New(),
		SubjectID: uuid.New(),
		Name:      "John Smith",
		Threshold: 0.1, // even a permissive threshold cannot resurrect sub-0.5 candidates
	}

	result := NewEngine().Screen(req, []*models.ScreeningList{list})
	if len(result.Matches) != 0 {
		t.Errorf("Candidates below the 0.5 floor must be rejected, got %d matches", len(result.Matches))
	}
	if result.Status != models.ScreeningClear {
		t.Errorf("Expected clear status, got %s", result.Status)
	}
}

func TestScreen_SortedByScoreThenEntryID(t *testing.T) {
	ssn := models.Identifier{Type: models.IDTaxID, Value: "999-11-2222", IssuingCountry: "US"}
	list := sanctionsList(
		models.ListEntry{PrimaryName: "Ana Maria Silva"},
		models.ListEntry{PrimaryName: "Ana Maria Silva", Identifiers: []models.Identifier{ssn}},
	)

	req := models.ScreeningRequest{
		ID:          uuid.New(),
		SubjectID:   uuid.New(),
		Name:        "Ana Maria Silva",
		Identifiers: []models.Identifier{ssn},
		Threshold:   0.5,
	}

	result := NewEngine().Screen(req, []*models.ScreeningList{list})
	if len(result.Matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(result.Matches))
	}
	if result.Matches[0].OverallScore < result.Matches[1].OverallScore {
		t.Error("Matches must be sorted by score descending")
	}
	if result.Matches[0].FieldScores.Identifier != 1.0 {
		t.Error("The identifier-bearing entry must sort first")
	}
}

func TestScreen_InactiveEntriesSkipped(t *testing.T) {
	list := sanctionsList(models.ListEntry{PrimaryName: "John Smith Doe"})
	list.Entries[0].Active = false

	req := models.ScreeningRequest{ID: uuid.New(), SubjectID: uuid.New(), Name: "John Smith Doe", Threshold: 0.5}
	result := NewEngine().Screen(req, []*models.ScreeningList{list})
	if len(result.Matches) != 0 {
		t.Errorf("Inactive entries must not match, got %d", len(result.Matches))
	}
}

func TestBatchRun_CountersAndCompletion(t *testing.T) {
	list := sanctionsList(models.ListEntry{PrimaryName: "John Smith Doe"})

	subjects := []models.ScreeningRequest{
		{ID: uuid.New(), SubjectID: uuid.New(), Name: "John Smith Doe", Threshold: 0.5},
		{ID: uuid.New(), SubjectID: uuid.New(), Name: "Maria Garcia", Threshold: 0.5},
		{ID: uuid.New(), SubjectID: uuid.New(), Name: "Chen Wei", Threshold: 0.5},
	}

	runner := NewRunner(NewEngine(), 2)
	job := runner.Run(context.Background(), "nightly", subjects, []*models.ScreeningList{list}, nil)

	deadline := time.After(5 * time.Second)
	for job.CurrentStatus() == models.JobRunning {
		select {
		case <-deadline:
			t.Fatal("Batch job did not complete in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	progress := job.Progress()
	if progress.Processed != 3 {
		t.Errorf("Expected 3 processed, got %d", progress.Processed)
	}
	if progress.MatchesFound != 1 {
		t.Errorf("Expected 1 subject with matches, got %d", progress.MatchesFound)
	}
	if progress.Errors != 0 {
		t.Errorf("Expected 0 errors, got %d", progress.Errors)
	}
	if job.CurrentStatus() != models.JobCompleted {
		t.Errorf("Expected completed status, got %s", job.CurrentStatus())
	}
}

func TestBatchRun_Cancellation(t *testing.T) {
	list := sanctionsList(models.ListEntry{PrimaryName: "John Smith Doe"})

	// Large batch with a slow result sink so cancellation lands mid-run.
	subjects := make([]models.ScreeningRequest, 500)
	for i := range subjects {
		subjects[i] = models.ScreeningRequest{ID: uuid.New(), SubjectID: uuid.New(), Name: "Subject Name"}
	}

	runner := NewRunner(NewEngine(), 1)
	job := runner.Run(context.Background(), "cancelled-run", subjects, []*models.ScreeningList{list},
		func(models.ScreeningResult) { time.Sleep(time.Millisecond) })

	time.Sleep(20 * time.Millisecond)
	job.Cancel()

	deadline := time.After(5 * time.Second)
	for job.CurrentStatus() == models.JobRunning {
		select {
		case <-deadline:
			t.Fatal("Cancelled job did not stop in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if job.CurrentStatus() != models.JobCancelled {
		t.Fatalf("Expected cancelled status, got %s", job.CurrentStatus())
	}
	if p := job.Progress(); p.Processed >= p.Total {
		t.Errorf("Expected partial progress on cancellation, got %d/%d", p.Processed, p.Total)
	}
}
