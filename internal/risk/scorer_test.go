package risk

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/internal/refdata"
	"github.com/rawblock/aml-engine/pkg/models"
)

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(nil, refdata.NewCountryTable(), nil)
	if err != nil {
		t.Fatalf("Default scorer must construct: %v", err)
	}
	return s
}

func baseProfile() *models.CustomerRiskProfile {
	return &models.CustomerRiskProfile{
		CustomerID:         uuid.New(),
		CustomerType:       "individual",
		CountryOfResidence: "US",
		PEPStatus:          models.PEPNone,
		Behavior:           models.BehaviorProfile{ConsistencyScore: 80},
	}
}

func TestNewScorer_WeightValidation(t *testing.T) {
	countries := refdata.NewCountryTable()

	skewed := map[models.RiskCategory]float64{
		models.CategoryGeography: 0.5, models.CategoryProduct: 0.5, models.CategoryChannel: 0.5,
		models.CategoryCustomer: 0.5, models.CategoryTransaction: 0.5, models.CategoryIndustry: 0.5,
	}
	if _, err := NewScorer(skewed, countries, nil); !core.IsInvalid(err) {
		t.Errorf("Weights summing to 3.0 must be rejected, got %v", err)
	}

	incomplete := map[models.RiskCategory]float64{models.CategoryGeography: 1.0}
	if _, err := NewScorer(incomplete, countries, nil); !core.IsInvalid(err) {
		t.Errorf("Missing categories must be rejected, got %v", err)
	}
}

func TestAssess_LowRiskBaseline(t *testing.T) {
	assessment := newScorer(t).Assess(baseProfile(), "onboarding")

	if assessment.Level != models.RiskLow {
		t.Errorf("A plain US individual must assess low, got %s (score %v)", assessment.Level, assessment.OverallScore)
	}
	if len(assessment.CategoryScores) != 6 {
		t.Errorf("Expected all 6 category scores, got %d", len(assessment.CategoryScores))
	}
	// geography 20, customer 20, transaction 20, catalogs 20 each -> overall 20.
	if math.Abs(assessment.OverallScore-20) > 1e-9 {
		t.Errorf("Expected overall 20 for the baseline, got %v", assessment.OverallScore)
	}
}

func TestAssess_SanctionedPEPIsVeryHigh(t *testing.T) {
	profile := baseProfile()
	profile.PEPStatus = models.PEPDirect
	profile.SanctionsMatch = true
	profile.AdverseMedia = true
	profile.CountryOfResidence = "IR"
	profile.Industry = "casinos_gambling"
	profile.Products = []string{"private_banking"}
	profile.Channels = []string{"non_face_to_face"}
	profile.Behavior = models.BehaviorProfile{
		VelocityScore:           90,
		ConsistencyScore:        10,
		HighRiskCountryExposure: 0.5,
		PriorSARCount:           2,
	}
	profile.OpenAlerts = 3
	profile.OpenCases = 1

	assessment := newScorer(t).Assess(profile, "event")
	if assessment.Level != models.RiskVeryHigh {
		t.Errorf("Expected very_high, got %s (score %v)", assessment.Level, assessment.OverallScore)
	}
	// customer: 20+40+50+20 clips at 100; transaction: 20+20+15+25+15+10+30 clips.
	if assessment.CategoryScores[models.CategoryCustomer] != 100 {
		t.Errorf("Customer category must clip to 100, got %v", assessment.CategoryScores[models.CategoryCustomer])
	}
	if assessment.CategoryScores[models.CategoryTransaction] != 100 {
		t.Errorf("Transaction category must clip to 100, got %v", assessment.CategoryScores[models.CategoryTransaction])
	}

	found := false
	for _, f := range assessment.Factors {
		if f == "sanctions_match" {
			found = true
		}
	}
	if !found {
		t.Errorf("Factors must name the sanctions match, got %v", assessment.Factors)
	}
}

func TestAssess_GeographyRaisedByOperations(t *testing.T) {
	profile := baseProfile()
	profile.CountriesOfOperation = []string{"IR"}

	assessment := newScorer(t).Assess(profile, "periodic")
	// residence US = 20, operations raise to 0.8 * 98 = 78.4.
	geo := assessment.CategoryScores[models.CategoryGeography]
	if math.Abs(geo-78.4) > 1e-9 {
		t.Errorf("Expected geography 78.4, got %v", geo)
	}
}

func TestAssess_UnknownCountryDefaults(t *testing.T) {
	profile := baseProfile()
	profile.CountryOfResidence = "ZZ"

	assessment := newScorer(t).Assess(profile, "periodic")
	if assessment.CategoryScores[models.CategoryGeography] != refdata.UnknownCountryRisk {
		t.Errorf("Unknown countries score %v, got %v", refdata.UnknownCountryRisk,
			assessment.CategoryScores[models.CategoryGeography])
	}
}

func TestAssess_NeverComputesProhibited(t *testing.T) {
	profile := baseProfile()
	profile.SanctionsMatch = true
	profile.PEPStatus = models.PEPDirect
	profile.CountryOfResidence = "KP"
	profile.Industry = "arms_dealing"

	assessment := newScorer(t).Assess(profile, "event")
	if assessment.Level == models.RiskProhibited {
		t.Error("Assessment must never compute the prohibited level")
	}
}

func TestApplyAssessment_UpdatesProfileAndReviewDate(t *testing.T) {
	store := NewProfileStore()
	profile := store.Upsert(*baseProfile())

	assessment := newScorer(t).Assess(profile, "onboarding")
	updated, err := store.ApplyAssessment(profile.CustomerID, assessment)
	if err != nil {
		t.Fatalf("ApplyAssessment failed: %v", err)
	}
	if updated.OverallScore != assessment.OverallScore {
		t.Error("Profile score must follow the assessment")
	}
	wantReview := assessment.AssessedAt.Add(models.ReviewInterval(updated.Level))
	if !updated.NextReviewAt.Equal(wantReview) {
		t.Errorf("Expected next review %v, got %v", wantReview, updated.NextReviewAt)
	}
	if len(store.History(profile.CustomerID)) != 1 {
		t.Error("Assessment must be appended to history")
	}
}

func TestApplyAssessment_ProhibitedIsSticky(t *testing.T) {
	store := NewProfileStore()
	seed := baseProfile()
	seed.Level = models.RiskProhibited
	profile := store.Upsert(*seed)

	assessment := newScorer(t).Assess(profile, "periodic")
	updated, err := store.ApplyAssessment(profile.CustomerID, assessment)
	if err != nil {
		t.Fatalf("ApplyAssessment failed: %v", err)
	}
	if updated.Level != models.RiskProhibited {
		t.Errorf("Prohibited must survive assessment, got %s", updated.Level)
	}
}

func TestOverride_MultiApproverFlow(t *testing.T) {
	store := NewProfileStore()
	profile := store.Upsert(*baseProfile())

	override, err := store.RequestOverride(profile.CustomerID, models.RiskVeryHigh,
		"law_enforcement_inquiry", "subpoena received", "analyst1", []string{"mlro", "head_of_compliance"})
	if err != nil {
		t.Fatalf("RequestOverride failed: %v", err)
	}
	if override.Status != models.OverridePending {
		t.Fatalf("New override must be pending, got %s", override.Status)
	}

	// First of two approvals: still pending, profile untouched.
	if _, err := store.ApproveOverride(override.ID, "mlro"); err != nil {
		t.Fatalf("First approval failed: %v", err)
	}
	if override.Status != models.OverridePending {
		t.Error("One of two approvals must not decide the override")
	}
	current, _ := store.Get(profile.CustomerID)
	if current.Level != models.RiskLow {
		t.Error("Profile must not change before final approval")
	}

	// Duplicate approval conflicts.
	if _, err := store.ApproveOverride(override.ID, "mlro"); !core.IsConflict(err) {
		t.Errorf("Duplicate approval must conflict, got %v", err)
	}
	// Outsiders cannot approve.
	if _, err := store.ApproveOverride(override.ID, "random_analyst"); !core.IsInvalid(err) {
		t.Errorf("Non-required approver must be invalid, got %v", err)
	}

	// Final approval applies the level; low -> very_high is 3 bands up, so
	// EDD is raised.
	decided, err := store.ApproveOverride(override.ID, "head_of_compliance")
	if err != nil {
		t.Fatalf("Final approval failed: %v", err)
	}
	if decided.Status != models.OverrideApproved {
		t.Errorf("Expected approved, got %s", decided.Status)
	}
	current, _ = store.Get(profile.CustomerID)
	if current.Level != models.RiskVeryHigh {
		t.Errorf("Profile must take the requested level, got %s", current.Level)
	}
	if !current.RequiresEDD {
		t.Error("Moving up 3 bands must raise RequiresEDD")
	}

	// Approving a decided override conflicts.
	if _, err := store.ApproveOverride(override.ID, "mlro"); !core.IsConflict(err) {
		t.Errorf("Approving a decided override must conflict, got %v", err)
	}
}

func TestOverride_GuardsAndReject(t *testing.T) {
	store := NewProfileStore()
	profile := store.Upsert(*baseProfile())

	if _, err := store.RequestOverride(profile.CustomerID, models.RiskLow,
		"noop", "", "analyst1", []string{"mlro"}); !core.IsInvalid(err) {
		t.Errorf("Requesting the current level must be invalid, got %v", err)
	}
	if _, err := store.RequestOverride(uuid.New(), models.RiskHigh,
		"reason", "", "analyst1", []string{"mlro"}); !core.IsNotFound(err) {
		t.Errorf("Unknown customer must be not-found, got %v", err)
	}

	override, err := store.RequestOverride(profile.CustomerID, models.RiskHigh,
		"reason", "", "analyst1", []string{"mlro"})
	if err != nil {
		t.Fatalf("RequestOverride failed: %v", err)
	}

	// A second pending override for the same customer conflicts.
	if _, err := store.RequestOverride(profile.CustomerID, models.RiskMedium,
		"reason", "", "analyst2", []string{"mlro"}); !core.IsConflict(err) {
		t.Errorf("Concurrent pending overrides must conflict, got %v", err)
	}

	rejected, err := store.RejectOverride(override.ID, "mlro")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != models.OverrideRejected {
		t.Errorf("Expected rejected, got %s", rejected.Status)
	}
	current, _ := store.Get(profile.CustomerID)
	if current.Level != models.RiskLow {
		t.Error("Rejected override must not touch the profile")
	}
}
