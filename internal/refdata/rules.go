package refdata

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/pkg/models"
)

// Rule Store
//
// Monitoring rules are versioned: every mutation bumps Version and files
// the superseded definition in an archive keyed by (ID, Version). Patterns
// and alerts pin the version that produced them, so the archive is what
// makes historical lookups exact even after a rule is retuned.

type ruleKey struct {
	id      uuid.UUID
	version int
}

// RuleStore manages versioned monitoring rules.
type RuleStore struct {
	mu      sync.RWMutex
	rules   map[uuid.UUID]*models.Rule
	archive map[ruleKey]*models.Rule
}

// NewRuleStore creates a rule store seeded with the default rule set.
func NewRuleStore() *RuleStore {
	s := &RuleStore{
		rules:   make(map[uuid.UUID]*models.Rule),
		archive: make(map[ruleKey]*models.Rule),
	}
	for _, r := range DefaultRules() {
		s.put(r)
	}
	return s
}

func (s *RuleStore) put(r *models.Rule) {
	s.rules[r.ID] = r
	s.archive[ruleKey{r.ID, r.Version}] = r
}

// Create registers a new rule at version 1.
func (s *RuleStore) Create(r models.Rule) *models.Rule {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Version = 1
	r.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.put(&r)
	s.mu.Unlock()

	log.Printf("[RuleStore] Registered rule %s (%s) v1", r.Code, r.PatternType)
	return &r
}

// Update replaces a rule definition, bumping its version. The previous
// version stays resolvable through GetVersion.
func (s *RuleStore) Update(id uuid.UUID, mutate func(*models.Rule)) (*models.Rule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rules[id]
	if !ok {
		return nil, false
	}

	next := *current
	next.Parameters = copyFloatMap(current.Parameters)
	next.Thresholds = copyFloatMap(current.Thresholds)
	mutate(&next)
	next.ID = id
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now().UTC()
	s.put(&next)

	log.Printf("[RuleStore] Rule %s updated to v%d", next.Code, next.Version)
	return &next, true
}

// Get returns the current version of a rule.
func (s *RuleStore) Get(id uuid.UUID) (*models.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	return r, ok
}

// GetVersion resolves an exact (ID, version) pair from the archive.
func (s *RuleStore) GetVersion(id uuid.UUID, version int) (*models.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.archive[ruleKey{id, version}]
	return r, ok
}

// ActiveRules returns the rules in effect at the given instant.
func (s *RuleStore) ActiveRules(at time.Time) []*models.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.InEffect(at) {
			out = append(out, r)
		}
	}
	return out
}

// FindByCode looks a rule up by its stable code.
func (s *RuleStore) FindByCode(code string) (*models.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.Code == code {
			return r, true
		}
	}
	return nil, false
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DefaultRules is the base monitoring rule set: one rule per canonical
// evaluator plus the batch-only pattern rules.
func DefaultRules() []*models.Rule {
	now := time.Now().UTC()
	mk := func(code, name string, pt models.PatternType, sev models.Severity, params, thresholds map[string]float64) *models.Rule {
		return &models.Rule{
			ID:          uuid.New(),
			Code:        code,
			Name:        name,
			PatternType: pt,
			Parameters:  params,
			Thresholds:  thresholds,
			Severity:    sev,
			Active:      true,
			Version:     1,
			UpdatedAt:   now,
		}
	}

	return []*models.Rule{
		mk("STRUCT_001", "Structuring below reporting threshold", models.PatternStructuring, models.SeverityHigh,
			map[string]float64{"min_count": 3, "window_hours": 24},
			map[string]float64{"amount": 10000}),
		mk("VELOCITY_001", "Transaction velocity spike", models.PatternVelocitySpike, models.SeverityMedium,
			map[string]float64{"multiplier": 3.0},
			nil),
		mk("RAPID_001", "Rapid movement of funds", models.PatternRapidMovement, models.SeverityHigh,
			map[string]float64{"window_hours": 24, "min_ratio": 0.9},
			map[string]float64{"min_amount": 1000}),
		mk("GEO_001", "High-risk geography exposure", models.PatternGeographicAnomaly, models.SeverityMedium,
			nil, nil),
		mk("DORMANT_001", "Dormant account activation", models.PatternDormantActivation, models.SeverityMedium,
			map[string]float64{"dormant_days": 180},
			map[string]float64{"min_amount": 1000}),
		mk("AMOUNT_001", "Large transaction amount", models.PatternAmountAnomaly, models.SeverityMedium,
			nil,
			map[string]float64{"amount": 10000}),
		mk("LAYER_001", "Layering chain detection", models.PatternLayering, models.SeverityHigh,
			map[string]float64{"max_hops": 10, "min_chain": 3},
			nil),
		mk("ROUNDTRIP_001", "Round-tripping detection", models.PatternRoundTripping, models.SeverityHigh,
			map[string]float64{"min_return_ratio": 0.8},
			nil),
	}
}
