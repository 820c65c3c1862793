package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel is the customer risk banding. prohibited is assigned
// administratively via an approved override, never computed.
type RiskLevel string

const (
	RiskLow        RiskLevel = "low"
	RiskMedium     RiskLevel = "medium"
	RiskHigh       RiskLevel = "high"
	RiskVeryHigh   RiskLevel = "very_high"
	RiskProhibited RiskLevel = "prohibited"
)

// riskLevelRank orders levels for override-distance checks.
var riskLevelRank = map[RiskLevel]int{
	RiskLow: 1, RiskMedium: 2, RiskHigh: 3, RiskVeryHigh: 4, RiskProhibited: 5,
}

// LevelDistance returns how many bands separate two levels (positive when
// to is higher risk than from).
func LevelDistance(from, to RiskLevel) int {
	return riskLevelRank[to] - riskLevelRank[from]
}

// RiskLevelForScore maps an overall 0-100 score to a level.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 80:
		return RiskVeryHigh
	case score >= 60:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ReviewInterval maps a level to the next periodic review offset.
func ReviewInterval(level RiskLevel) time.Duration {
	const month = 30 * 24 * time.Hour
	switch level {
	case RiskProhibited:
		return 0
	case RiskVeryHigh:
		return 3 * month
	case RiskHigh:
		return 6 * month
	case RiskMedium:
		return 12 * month
	default:
		return 36 * month
	}
}

// RiskCategory names the six weighted scoring categories.
type RiskCategory string

const (
	CategoryGeography   RiskCategory = "geography"
	CategoryProduct     RiskCategory = "product"
	CategoryChannel     RiskCategory = "channel"
	CategoryCustomer    RiskCategory = "customer"
	CategoryTransaction RiskCategory = "transaction"
	CategoryIndustry    RiskCategory = "industry"
)

// PEPStatus captures direct and indirect political exposure.
type PEPStatus string

const (
	PEPNone      PEPStatus = "none"
	PEPDirect    PEPStatus = "direct"
	PEPFamily    PEPStatus = "family"
	PEPAssociate PEPStatus = "associate"
)

// BehaviorProfile summarizes observed transaction behavior used by the
// transaction risk category.
type BehaviorProfile struct {
	VelocityScore           float64 `json:"velocityScore"`           // 0-100
	ConsistencyScore        float64 `json:"consistencyScore"`        // 0-100
	HighRiskCountryExposure float64 `json:"highRiskCountryExposure"` // fraction [0,1]
	PriorSARCount           int     `json:"priorSarCount"`
}

// CustomerRiskProfile is the current risk picture for one customer.
type CustomerRiskProfile struct {
	CustomerID           uuid.UUID                `json:"customerId"`
	Level                RiskLevel                `json:"level"`
	OverallScore         float64                  `json:"overallScore"` // 0-100
	CategoryScores       map[RiskCategory]float64 `json:"categoryScores"`
	PEPStatus            PEPStatus                `json:"pepStatus"`
	SanctionsMatch       bool                     `json:"sanctionsMatch"`
	AdverseMedia         bool                     `json:"adverseMedia"`
	CustomerType         string                   `json:"customerType"` // individual/trust/financial_institution/...
	Industry             string                   `json:"industry,omitempty"`
	Products             []string                 `json:"products,omitempty"`
	Channels             []string                 `json:"channels,omitempty"`
	CountryOfResidence   string                   `json:"countryOfResidence,omitempty"`
	CountriesOfOperation []string                 `json:"countriesOfOperation,omitempty"`
	Behavior             BehaviorProfile          `json:"behavior"`
	OpenAlerts           int                      `json:"openAlerts"`
	OpenCases            int                      `json:"openCases"`
	RequiresEDD          bool                     `json:"requiresEdd"`
	NextReviewAt         time.Time                `json:"nextReviewAt"`
	LastAssessedAt       time.Time                `json:"lastAssessedAt"`
	CreatedAt            time.Time                `json:"createdAt"`
	UpdatedAt            time.Time                `json:"updatedAt"`
}

// RiskAssessment is the outcome of one assess_customer_risk call.
type RiskAssessment struct {
	ID             uuid.UUID                `json:"id"`
	CustomerID     uuid.UUID                `json:"customerId"`
	Trigger        string                   `json:"trigger"` // periodic/event/onboarding/manual
	OverallScore   float64                  `json:"overallScore"`
	Level          RiskLevel                `json:"level"`
	CategoryScores map[RiskCategory]float64 `json:"categoryScores"`
	Factors        []string                 `json:"factors,omitempty"`
	AssessedAt     time.Time                `json:"assessedAt"`
}

// OverrideStatus is the lifecycle of a risk level override request.
type OverrideStatus string

const (
	OverridePending  OverrideStatus = "pending"
	OverrideApproved OverrideStatus = "approved"
	OverrideRejected OverrideStatus = "rejected"
)

// RiskOverride is an administrative request to change a customer's level.
// Final approval applies the requested level; moving upward by two or more
// bands auto-raises RequiresEDD.
type RiskOverride struct {
	ID             uuid.UUID      `json:"id"`
	CustomerID     uuid.UUID      `json:"customerId"`
	CurrentLevel   RiskLevel      `json:"currentLevel"`
	RequestedLevel RiskLevel      `json:"requestedLevel"`
	Reason         string         `json:"reason"`
	Justification  string         `json:"justification,omitempty"`
	RequestedBy    string         `json:"requestedBy"`
	RequiredApprovers []string    `json:"requiredApprovers"`
	Approvals      []string       `json:"approvals,omitempty"`
	Status         OverrideStatus `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	DecidedAt      *time.Time     `json:"decidedAt,omitempty"`
}
