package resolution

import (
	"github.com/rawblock/aml-engine/internal/matching"
	"github.com/rawblock/aml-engine/pkg/models"
)

// Declarative Resolution Rules
//
// Each rule carries its own field weights and an auto-merge threshold.
// Rules run in priority order (lowest number first) until one fires; a
// rule fires when its weighted score clears its own floor. An exact
// identifier match short-circuits the whole comparison to 1.0 regardless
// of which rule is being evaluated.

// Field weight keys used by resolution rules.
const (
	FieldName       = "name"
	FieldIdentifier = "identifier"
	FieldDOB        = "dob"
	FieldAddress    = "address"
)

// ResolutionRule scores a (source record, master entity) pair.
type ResolutionRule struct {
	Code               string             `json:"code"`
	Priority           int                `json:"priority"`
	Kinds              []models.EntityKind `json:"kinds,omitempty"` // empty = all kinds
	Weights            map[string]float64 `json:"weights"`
	FireFloor          float64            `json:"fireFloor"`          // min score for the rule to fire
	AutoMergeThreshold float64            `json:"autoMergeThreshold"` // >= this and auto-merge is permitted
	AllowAutoMerge     bool               `json:"allowAutoMerge"`
}

// AppliesTo reports whether the rule covers the given entity kind.
func (r *ResolutionRule) AppliesTo(kind models.EntityKind) bool {
	if len(r.Kinds) == 0 {
		return true
	}
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// DefaultResolutionRules is the base declarative rule set, ordered by
// priority at evaluation time.
func DefaultResolutionRules() []ResolutionRule {
	return []ResolutionRule{
		{
			Code:     "SSN_EXACT",
			Priority: 1,
			Kinds:    []models.EntityKind{models.KindIndividual},
			Weights: map[string]float64{
				FieldIdentifier: 0.70, FieldName: 0.30,
			},
			FireFloor:          0.70,
			AutoMergeThreshold: 0.98,
			AllowAutoMerge:     true,
		},
		{
			Code:     "COMPANY_REG",
			Priority: 1,
			Kinds:    []models.EntityKind{models.KindOrganization},
			Weights: map[string]float64{
				FieldIdentifier: 0.70, FieldName: 0.30,
			},
			FireFloor:          0.70,
			AutoMergeThreshold: 0.98,
			AllowAutoMerge:     true,
		},
		{
			Code:     "NAME_DOB",
			Priority: 2,
			Kinds:    []models.EntityKind{models.KindIndividual},
			Weights: map[string]float64{
				FieldName: 0.60, FieldDOB: 0.40,
			},
			FireFloor:          0.60,
			AutoMergeThreshold: 0.98,
			AllowAutoMerge:     false,
		},
		{
			Code:     "NAME_ADDR",
			Priority: 3,
			Weights: map[string]float64{
				FieldName: 0.60, FieldAddress: 0.40,
			},
			FireFloor:          0.60,
			AutoMergeThreshold: 0.98,
			AllowAutoMerge:     false,
		},
	}
}

// fieldSimilarities computes per-field scores between a source record and
// a master entity. The identifier field is binary: any exact match is 1.0.
func fieldSimilarities(rec *models.SourceRecord, entity *models.MasterEntity) map[string]float64 {
	scores := make(map[string]float64, 4)

	// Name: best score across all name pairs.
	best := 0.0
	recNames := append([]string{rec.Name}, rec.AliasNames...)
	for _, rn := range recNames {
		for _, en := range entity.AllNames() {
			if s := matching.NameSimilarity(rn, en); s > best {
				best = s
			}
		}
	}
	scores[FieldName] = best

	for _, rid := range rec.Identifiers {
		if entity.HasIdentifier(rid) {
			scores[FieldIdentifier] = 1.0
			break
		}
	}

	if rec.DateOfBirth != nil && entity.DateOfBirth != nil {
		ry, rm, rd := rec.DateOfBirth.UTC().Date()
		ey, em, ed := entity.DateOfBirth.UTC().Date()
		if ry == ey && rm == em && rd == ed {
			scores[FieldDOB] = 1.0
		}
	}

	bestAddr := 0.0
	for _, ra := range rec.Addresses {
		for _, ea := range entity.Addresses {
			if s := matching.AddressSimilarity(ra, ea); s > bestAddr {
				bestAddr = s
			}
		}
	}
	scores[FieldAddress] = bestAddr

	return scores
}

// scorePair evaluates every applicable rule in priority order and returns
// the first firing rule with its score. An exact identifier match
// short-circuits to overall 1.0 under the highest-priority applicable rule.
func scorePair(rec *models.SourceRecord, entity *models.MasterEntity, rules []ResolutionRule) (score float64, fired *ResolutionRule, fields map[string]float64) {
	fields = fieldSimilarities(rec, entity)

	for i := range rules {
		rule := &rules[i]
		if !rule.AppliesTo(rec.Kind) {
			continue
		}

		if fields[FieldIdentifier] == 1.0 {
			return 1.0, rule, fields
		}

		s := 0.0
		for field, weight := range rule.Weights {
			s += weight * fields[field]
		}
		if s >= rule.FireFloor {
			return s, rule, fields
		}
	}
	return 0, nil, fields
}
