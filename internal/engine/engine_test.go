package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/internal/lifecycle"
	"github.com/rawblock/aml-engine/pkg/models"
)

func newCore(t *testing.T) *AmlCore {
	t.Helper()
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func waitForJobStatus(t *testing.T, status func() models.BatchJobStatus, want models.BatchJobStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if status() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job never reached %s (last: %s)", want, status())
}

func TestMonitorTransaction_AlertDedupePerDay(t *testing.T) {
	c := newCore(t)
	customer := uuid.New()

	tx := &models.Transaction{
		ID:         uuid.New(),
		Amount:     models.NewMoney(15000, "USD"),
		Direction:  models.DirectionCredit,
		Timestamp:  time.Now().UTC(),
		Channel:    "wire",
		CustomerID: customer,
	}
	ctx := &models.CustomerContext{CustomerID: customer}

	detected := c.MonitorTransaction(tx, ctx)
	found := false
	for _, p := range detected {
		if p.PatternType == models.PatternAmountAnomaly {
			found = true
		}
	}
	if !found {
		t.Fatalf("Expected an amount anomaly for $15000, got %d patterns", len(detected))
	}

	page := c.Alerts.Search(models.AlertSearchCriteria{CustomerID: &customer})
	if page.TotalCount != 1 {
		t.Fatalf("Expected exactly 1 alert, got %d", page.TotalCount)
	}

	// A second detection of the same pattern on the same day reuses the
	// existing alert instead of opening another.
	tx2 := *tx
	tx2.ID = uuid.New()
	c.MonitorTransaction(&tx2, ctx)

	page = c.Alerts.Search(models.AlertSearchCriteria{CustomerID: &customer})
	if page.TotalCount != 1 {
		t.Errorf("Same-day duplicate pattern must not open a second alert, got %d", page.TotalCount)
	}
}

func TestRunBatchAnalysis_StructuringRaisesOneAlert(t *testing.T) {
	// Five cash deposits of $9500 on the same day by one customer.
	c := newCore(t)
	customer := uuid.New()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	var txs []models.Transaction
	for i := 0; i < 5; i++ {
		txs = append(txs, models.Transaction{
			ID:         uuid.New(),
			Amount:     models.NewMoney(9500, "USD"),
			Direction:  models.DirectionCredit,
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			Channel:    "cash",
			IsCash:     true,
			CustomerID: customer,
		})
	}

	job := c.RunBatchAnalysis(context.Background(), "eod-sweep", txs)
	waitForJobStatus(t, job.CurrentStatus, models.JobCompleted)

	page := c.Alerts.Search(models.AlertSearchCriteria{
		CustomerID:  &customer,
		PatternType: models.PatternStructuring,
	})
	if page.TotalCount != 1 {
		t.Fatalf("Expected 1 structuring alert, got %d", page.TotalCount)
	}
	alert := page.Items[0]
	if alert.Severity != models.SeverityHigh {
		t.Errorf("Structuring alerts carry the rule severity, got %s", alert.Severity)
	}
	if alert.RiskScore < 85 {
		t.Errorf("Expected risk score >= 85 from confidence, got %d", alert.RiskScore)
	}
}

func TestScreen_SanctionsHitEscalates(t *testing.T) {
	c := newCore(t)
	customer := uuid.New()
	dob := time.Date(1975, 6, 1, 0, 0, 0, 0, time.UTC)
	passport := models.Identifier{Type: models.IDPassport, Value: "X1234567", IssuingCountry: "IR"}

	c.Profiles.Upsert(models.CustomerRiskProfile{CustomerID: customer})

	list := c.Lists.CreateList("OFAC SDN", models.ListSanctions)
	c.Lists.AddEntry(list.ID, models.ListEntry{
		PrimaryName:   "John Smith Doe",
		Aliases:       []string{"J. Smith"},
		DateOfBirth:   &dob,
		Nationalities: []string{"IR"},
		Identifiers:   []models.Identifier{passport},
		Program:       "SDN",
		Active:        true,
	})

	var events []core.Event
	c.Notifier.SetBroadcast(func(e core.Event) { events = append(events, e) })

	result := c.Screen(models.ScreeningRequest{
		SubjectID:     customer,
		Name:          "John Smith Doe",
		DateOfBirth:   &dob,
		Nationalities: []string{"IR"},
		Identifiers:   []models.Identifier{passport},
	})

	if result.Status != models.ScreeningPendingReview {
		t.Errorf("Expected pending_review, got %s", result.Status)
	}
	if result.BestScore() < 0.95 {
		t.Fatalf("Expected auto-escalation score, got %.2f", result.BestScore())
	}
	if result.Matches[0].MatchType != models.MatchExact {
		t.Errorf("Expected exact match, got %s", result.Matches[0].MatchType)
	}

	profile, _ := c.Profiles.Get(customer)
	if !profile.SanctionsMatch {
		t.Error("Auto-escalation must flip the profile's sanctions flag")
	}

	page := c.Alerts.Search(models.AlertSearchCriteria{CustomerID: &customer, Severity: models.SeverityCritical})
	if page.TotalCount != 1 {
		t.Fatalf("Expected 1 critical alert, got %d", page.TotalCount)
	}

	sawHit := false
	for _, e := range events {
		if e.EventType == "sanctions_hit" {
			sawHit = true
		}
	}
	if !sawHit {
		t.Error("Expected a sanctions_hit notification event")
	}
}

func TestScreen_WeakMatchStaysHighSeverity(t *testing.T) {
	c := newCore(t)
	customer := uuid.New()
	passport := models.Identifier{Type: models.IDPassport, Value: "Y7654321"}

	c.Profiles.Upsert(models.CustomerRiskProfile{CustomerID: customer})
	list := c.Lists.CreateList("Watchlist", models.ListInternal)
	c.Lists.AddEntry(list.ID, models.ListEntry{
		PrimaryName: "Maria Gonzalez",
		Identifiers: []models.Identifier{passport},
		Active:      true,
	})

	// Exact name + identifier but no DOB or nationality: 0.90, below the
	// auto-escalation score.
	result := c.Screen(models.ScreeningRequest{
		SubjectID:   customer,
		Name:        "Maria Gonzalez",
		Identifiers: []models.Identifier{passport},
	})
	if best := result.BestScore(); best < 0.8 || best >= 0.95 {
		t.Fatalf("Expected a reviewable match in [0.8, 0.95), got %.2f", best)
	}

	profile, _ := c.Profiles.Get(customer)
	if profile.SanctionsMatch {
		t.Error("Sub-escalation matches must not flip the sanctions flag")
	}
	page := c.Alerts.Search(models.AlertSearchCriteria{CustomerID: &customer})
	if page.TotalCount != 1 || page.Items[0].Severity != models.SeverityHigh {
		t.Fatalf("Expected 1 high alert, got %d", page.TotalCount)
	}
}

func TestRunBatchScreen_CountersAndEscalation(t *testing.T) {
	c := newCore(t)
	list := c.Lists.CreateList("Sanctions", models.ListSanctions)
	c.Lists.AddEntry(list.ID, models.ListEntry{PrimaryName: "Viktor Petrov", Active: true})

	hit := uuid.New()
	c.Profiles.Upsert(models.CustomerRiskProfile{CustomerID: hit})

	// Name-only matches top out at 0.6, so screen with a lowered threshold.
	subjects := []models.ScreeningRequest{
		{SubjectID: hit, Name: "Viktor Petrov", Threshold: 0.6},
		{SubjectID: uuid.New(), Name: "Alice Johnson", Threshold: 0.6},
		{SubjectID: uuid.New(), Name: "Bob Williams", Threshold: 0.6},
	}

	job := c.RunBatchScreen(context.Background(), "nightly", subjects)
	waitForJobStatus(t, job.CurrentStatus, models.JobCompleted)

	progress := job.Progress()
	if progress.Processed != 3 {
		t.Errorf("Expected 3 processed, got %d", progress.Processed)
	}
	if progress.MatchesFound != 1 {
		t.Errorf("Expected 1 subject with matches, got %d", progress.MatchesFound)
	}

	page := c.Alerts.Search(models.AlertSearchCriteria{CustomerID: &hit})
	if page.TotalCount != 1 {
		t.Errorf("Expected the hit subject to get an alert, got %d", page.TotalCount)
	}
}

func TestResolution_SameSSNMergesToOneEntity(t *testing.T) {
	// Two records sharing an SSN resolve to one master entity with two
	// source records and two name variants.
	c := newCore(t)
	dob := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	ssn := models.Identifier{Type: models.IDTaxID, Value: "123-45-6789", IssuingCountry: "US"}

	r1 := c.Resolver.Ingest(models.SourceRecord{
		SourceSystem: "kyc", SourceKey: "K-1", Kind: models.KindIndividual,
		Name: "Jane Doe", DateOfBirth: &dob, Identifiers: []models.Identifier{ssn},
	})
	e1, _, err := c.Resolver.Resolve(r1.ID)
	if err != nil {
		t.Fatalf("First resolve failed: %v", err)
	}

	r2 := c.Resolver.Ingest(models.SourceRecord{
		SourceSystem: "cards", SourceKey: "C-9", Kind: models.KindIndividual,
		Name: "Jane A Doe", DateOfBirth: &dob, Identifiers: []models.Identifier{ssn},
	})
	e2, _, err := c.Resolver.Resolve(r2.ID)
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}

	if e1.ID != e2.ID {
		t.Fatalf("Expected both records on one entity, got %s and %s", e1.ID, e2.ID)
	}
	if len(e2.SourceRecords) != 2 {
		t.Errorf("Expected 2 source records, got %d", len(e2.SourceRecords))
	}
	if len(e2.NameVariants) != 2 {
		t.Errorf("Expected 2 name variants, got %d", len(e2.NameVariants))
	}

	// Resolution operations land in the audit log.
	if entries := c.Audit.ForTarget(e1.ID.String()); len(entries) == 0 {
		t.Error("Expected audit entries for the resolved entity")
	}
}

func TestMergeEntities_Idempotent(t *testing.T) {
	c := newCore(t)

	ra := c.Resolver.Ingest(models.SourceRecord{
		SourceSystem: "kyc", SourceKey: "A", Kind: models.KindOrganization, Name: "Acme Trading LLC",
	})
	a, _, _ := c.Resolver.Resolve(ra.ID)
	rb := c.Resolver.Ingest(models.SourceRecord{
		SourceSystem: "loans", SourceKey: "B", Kind: models.KindOrganization, Name: "Acme Commodities",
	})
	b, _, _ := c.Resolver.Resolve(rb.ID)

	merged, err := c.MergeEntities([]uuid.UUID{a.ID, b.ID}, a.ID, "analyst1")
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(merged.MergeHistory) != 1 {
		t.Fatalf("Expected 1 merge-history entry, got %d", len(merged.MergeHistory))
	}

	// Replaying with the absorbed entity gone changes nothing.
	again, err := c.MergeEntities([]uuid.UUID{a.ID, b.ID}, a.ID, "analyst1")
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(again.MergeHistory) != 1 {
		t.Errorf("Replay must not append history, got %d entries", len(again.MergeHistory))
	}
}

func TestFileSAR_FansOutToAlertsAndNotifier(t *testing.T) {
	c := newCore(t)
	customer := uuid.New()

	alert, err := c.Alerts.Create(lifecycle.CreateAlert{
		Severity: models.SeverityHigh, Title: "Structuring review", CustomerID: customer,
		PatternType: models.PatternStructuring,
	})
	if err != nil {
		t.Fatalf("Alert create failed: %v", err)
	}
	c.Alerts.Assign(alert.ID, "analyst1", "lead", "")
	c.Alerts.StartReview(alert.ID)
	c.Alerts.Close(alert.ID, true, "confirmed structuring")

	sar, _ := c.SARs.Create(lifecycle.CreateSAR{PreparedBy: "analyst1"})
	c.SARs.AddSubject(sar.ID, models.SARSubject{Name: "Jane Doe"})
	c.SARs.AddNarrative(sar.ID, models.NarrativeWho, "Jane Doe, account holder since 2019.", "analyst1")
	c.SARs.SubmitForApproval(sar.ID)

	// Filing before full approval is refused with the fixed message.
	if _, err := c.FileSAR(sar.ID, "electronic", nil); err == nil ||
		!strings.Contains(err.Error(), "SAR must be approved before filing") {
		t.Fatalf("Expected the approval guard, got %v", err)
	}

	c.SARs.Approve(sar.ID, "compliance_officer", "alice")
	c.SARs.Approve(sar.ID, "bsa_officer", "bob")

	var events []core.Event
	c.Notifier.SetBroadcast(func(e core.Event) { events = append(events, e) })

	filed, err := c.FileSAR(sar.ID, "electronic", []uuid.UUID{alert.ID})
	if err != nil {
		t.Fatalf("FileSAR failed: %v", err)
	}
	if filed.Status != models.SARSubmitted || filed.SubmittedAt == nil {
		t.Errorf("Expected submitted with timestamp, got %s", filed.Status)
	}
	if filed.BSAID == "" {
		t.Error("Filing must assign a BSA tracking identifier")
	}

	got, _ := c.Alerts.Get(alert.ID)
	if got.Status != models.AlertSARFiled {
		t.Errorf("Linked alert must move to sar_filed, got %s", got.Status)
	}

	sawFiling := false
	for _, e := range events {
		if e.EventType == "sar_filed" && e.Reference == filed.Number {
			sawFiling = true
		}
	}
	if !sawFiling {
		t.Error("Expected a sar_filed notification event")
	}

	if entries := c.Audit.ForTarget("sar:" + filed.Number); len(entries) != 1 {
		t.Errorf("Expected 1 audit entry for the filing, got %d", len(entries))
	}
}

func TestAssessCustomerRisk_AppliesAndAudits(t *testing.T) {
	c := newCore(t)
	customer := uuid.New()
	c.Profiles.Upsert(models.CustomerRiskProfile{
		CustomerID:         customer,
		CountryOfResidence: "US",
		PEPStatus:          models.PEPDirect,
	})

	assessment, err := c.AssessCustomerRisk(customer, "onboarding")
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if assessment.OverallScore <= 0 {
		t.Error("Expected a positive overall score for a direct PEP")
	}

	profile, _ := c.Profiles.Get(customer)
	if profile.LastAssessedAt.IsZero() || profile.NextReviewAt.IsZero() {
		t.Error("Assessment must stamp the profile review dates")
	}
	if history := c.Profiles.History(customer); len(history) != 1 {
		t.Errorf("Expected 1 stored assessment, got %d", len(history))
	}
	if entries := c.Audit.ForTarget("customer:" + customer.String()); len(entries) != 1 {
		t.Errorf("Expected 1 audit entry, got %d", len(entries))
	}

	if _, err := c.AssessCustomerRisk(uuid.New(), "onboarding"); !core.IsNotFound(err) {
		t.Errorf("Unknown customer must be not-found, got %v", err)
	}
}
