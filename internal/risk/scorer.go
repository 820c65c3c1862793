package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/internal/refdata"
	"github.com/rawblock/aml-engine/pkg/models"
)

// Risk Scorer
//
// Aggregates a customer risk profile into a 0-100 score as a weighted sum
// of six category scores. Weights are validated to sum to 1.0 at
// construction; a mis-weighted scorer refuses to start rather than
// silently skewing every assessment.

// DefaultWeights is the standard category weighting.
var DefaultWeights = map[models.RiskCategory]float64{
	models.CategoryGeography:   0.25,
	models.CategoryProduct:     0.15,
	models.CategoryChannel:     0.10,
	models.CategoryCustomer:    0.20,
	models.CategoryTransaction: 0.20,
	models.CategoryIndustry:    0.10,
}

const weightTolerance = 1e-9

// Catalog is the table-driven product/channel/industry risk reference.
type Catalog struct {
	HighRiskProducts   map[string]bool
	MediumRiskProducts map[string]bool
	HighRiskChannels   map[string]bool
	MediumRiskChannels map[string]bool
	HighRiskIndustries map[string]bool
	MediumRiskIndustries map[string]bool
}

// DefaultCatalog seeds the catalogs with the standard high and medium
// risk classifications.
func DefaultCatalog() *Catalog {
	return &Catalog{
		HighRiskProducts:   set("private_banking", "correspondent_banking", "trade_finance", "crypto_custody"),
		MediumRiskProducts: set("wire_transfer", "foreign_exchange", "prepaid_cards"),
		HighRiskChannels:   set("non_face_to_face", "third_party_agent"),
		MediumRiskChannels: set("online", "mobile"),
		HighRiskIndustries: set("casinos_gambling", "money_services_business", "precious_metals", "arms_dealing", "crypto_exchange"),
		MediumRiskIndustries: set("real_estate", "import_export", "cash_intensive_retail", "art_dealing"),
	}
}

func set(keys ...string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[strings.ToLower(k)] = true
	}
	return out
}

// Scorer computes risk assessments.
type Scorer struct {
	weights   map[models.RiskCategory]float64
	countries *refdata.CountryTable
	catalog   *Catalog
}

// NewScorer validates the weights and builds a scorer. Weights must cover
// all six categories and sum to 1.0 within 1e-9.
func NewScorer(weights map[models.RiskCategory]float64, countries *refdata.CountryTable, catalog *Catalog) (*Scorer, error) {
	if weights == nil {
		weights = DefaultWeights
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	sum := 0.0
	for _, category := range []models.RiskCategory{
		models.CategoryGeography, models.CategoryProduct, models.CategoryChannel,
		models.CategoryCustomer, models.CategoryTransaction, models.CategoryIndustry,
	} {
		w, ok := weights[category]
		if !ok {
			return nil, core.Invalid("risk weight missing for category %s", category)
		}
		if w < 0 {
			return nil, core.Invalid("risk weight for %s cannot be negative", category)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return nil, core.Invalid("risk weights must sum to 1.0, got %v", sum)
	}
	return &Scorer{weights: weights, countries: countries, catalog: catalog}, nil
}

// Assess computes category scores, the weighted overall score and the
// resulting level for the given profile.
func (s *Scorer) Assess(profile *models.CustomerRiskProfile, trigger string) models.RiskAssessment {
	categories := map[models.RiskCategory]float64{
		models.CategoryGeography:   s.geographyScore(profile),
		models.CategoryProduct:     s.catalogScore(profile.Products, s.catalog.HighRiskProducts, s.catalog.MediumRiskProducts),
		models.CategoryChannel:     s.catalogScore(profile.Channels, s.catalog.HighRiskChannels, s.catalog.MediumRiskChannels),
		models.CategoryCustomer:    s.customerScore(profile),
		models.CategoryTransaction: s.transactionScore(profile),
		models.CategoryIndustry:    s.catalogScore([]string{profile.Industry}, s.catalog.HighRiskIndustries, s.catalog.MediumRiskIndustries),
	}

	overall := 0.0
	for category, score := range categories {
		overall += s.weights[category] * score
	}
	overall = clip(overall)

	return models.RiskAssessment{
		ID:             uuid.New(),
		CustomerID:     profile.CustomerID,
		Trigger:        trigger,
		OverallScore:   overall,
		Level:          models.RiskLevelForScore(overall),
		CategoryScores: categories,
		Factors:        s.factors(profile, categories),
		AssessedAt:     time.Now().UTC(),
	}
}

// geographyScore starts from the residence country and raises toward 80%
// of the riskiest operating country.
func (s *Scorer) geographyScore(profile *models.CustomerRiskProfile) float64 {
	base := s.countries.Score(profile.CountryOfResidence)
	for _, country := range profile.CountriesOfOperation {
		if raised := 0.8 * s.countries.Score(country); raised > base {
			base = raised
		}
	}
	return clip(base)
}

// customerScore is the inherent customer risk: political exposure,
// sanctions, adverse media and customer type.
func (s *Scorer) customerScore(profile *models.CustomerRiskProfile) float64 {
	score := 20.0
	switch profile.PEPStatus {
	case models.PEPDirect:
		score += 40
	case models.PEPFamily, models.PEPAssociate:
		score += 25
	}
	if profile.SanctionsMatch {
		score += 50
	}
	if profile.AdverseMedia {
		score += 20
	}
	switch strings.ToLower(profile.CustomerType) {
	case "trust", "financial_institution":
		score += 15
	}
	return clip(score)
}

// transactionScore reflects observed behavior plus open compliance load.
func (s *Scorer) transactionScore(profile *models.CustomerRiskProfile) float64 {
	score := 20.0
	if profile.Behavior.VelocityScore > 70 {
		score += 20
	}
	if profile.Behavior.ConsistencyScore < 30 {
		score += 15
	}
	if profile.Behavior.HighRiskCountryExposure > 0.2 {
		score += 25
	}
	score += 5 * float64(profile.OpenAlerts)
	score += 10 * float64(profile.OpenCases)
	score += 15 * float64(profile.Behavior.PriorSARCount)
	return clip(score)
}

// catalogScore rates a list of items against high/medium risk catalogs:
// any high-risk item scores 80, any medium-risk 50, otherwise 20.
func (s *Scorer) catalogScore(items []string, high, medium map[string]bool) float64 {
	score := 20.0
	for _, item := range items {
		key := strings.ToLower(item)
		if high[key] && score < 80 {
			score = 80
		} else if medium[key] && score < 50 {
			score = 50
		}
	}
	return score
}

// factors lists the human-readable drivers behind an assessment.
func (s *Scorer) factors(profile *models.CustomerRiskProfile, categories map[models.RiskCategory]float64) []string {
	var out []string
	if profile.SanctionsMatch {
		out = append(out, "sanctions_match")
	}
	if profile.PEPStatus != "" && profile.PEPStatus != models.PEPNone {
		out = append(out, fmt.Sprintf("pep_%s", profile.PEPStatus))
	}
	if profile.AdverseMedia {
		out = append(out, "adverse_media")
	}
	if profile.Behavior.PriorSARCount > 0 {
		out = append(out, "prior_sar_filings")
	}

	names := make([]models.RiskCategory, 0, len(categories))
	for category := range categories {
		names = append(names, category)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, category := range names {
		if categories[category] >= 60 {
			out = append(out, fmt.Sprintf("high_%s_risk", category))
		}
	}
	return out
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
