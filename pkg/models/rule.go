package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity is the shared severity scale for rules, patterns and alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for comparisons and webhook thresholds.
var severityRank = map[Severity]int{
	SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3, SeverityCritical: 4,
}

// MeetsThreshold reports whether s is at least min on the severity scale.
func (s Severity) MeetsThreshold(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// PatternType enumerates the suspicious patterns the engine can detect.
type PatternType string

const (
	PatternStructuring       PatternType = "structuring"
	PatternVelocitySpike     PatternType = "velocity_spike"
	PatternRapidMovement     PatternType = "rapid_movement"
	PatternGeographicAnomaly PatternType = "geographic_anomaly"
	PatternDormantActivation PatternType = "dormant_activation"
	PatternAmountAnomaly     PatternType = "amount_anomaly"
	PatternLayering          PatternType = "layering"
	PatternRoundTripping     PatternType = "round_tripping"
)

// Rule is a versioned monitoring rule definition. Mutating a rule bumps
// Version; alerts and patterns keep the version that produced them, so
// historical lookups must resolve (ID, Version) pairs exactly.
type Rule struct {
	ID          uuid.UUID          `json:"id"`
	Code        string             `json:"code"` // e.g. STRUCT_001
	Name        string             `json:"name"`
	PatternType PatternType        `json:"patternType"`
	Parameters  map[string]float64 `json:"parameters"`
	Thresholds  map[string]float64 `json:"thresholds"`
	Severity    Severity           `json:"severity"`
	EffectiveFrom *time.Time       `json:"effectiveFrom,omitempty"`
	EffectiveTo   *time.Time       `json:"effectiveTo,omitempty"`
	Active      bool               `json:"active"`
	Version     int                `json:"version"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Param reads a rule parameter with a fallback default.
func (r *Rule) Param(key string, def float64) float64 {
	if v, ok := r.Parameters[key]; ok {
		return v
	}
	return def
}

// Threshold reads a rule threshold with a fallback default.
func (r *Rule) Threshold(key string, def float64) float64 {
	if v, ok := r.Thresholds[key]; ok {
		return v
	}
	return def
}

// InEffect reports whether the rule applies at the given instant.
func (r *Rule) InEffect(at time.Time) bool {
	if !r.Active {
		return false
	}
	if r.EffectiveFrom != nil && at.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && at.After(*r.EffectiveTo) {
		return false
	}
	return true
}
