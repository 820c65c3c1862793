package risk

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/pkg/models"
)

// Profile Store
//
// Per-customer risk profiles plus the override approval workflow.
// A prohibited level is sticky: it can only be set or cleared through an
// approved override, never by a computed assessment.

// ProfileStore holds customer risk profiles and override requests.
type ProfileStore struct {
	mu        sync.RWMutex
	profiles  map[uuid.UUID]*models.CustomerRiskProfile
	overrides map[uuid.UUID]*models.RiskOverride
	history   map[uuid.UUID][]models.RiskAssessment
}

// NewProfileStore creates an empty profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles:  make(map[uuid.UUID]*models.CustomerRiskProfile),
		overrides: make(map[uuid.UUID]*models.RiskOverride),
		history:   make(map[uuid.UUID][]models.RiskAssessment),
	}
}

// Upsert registers or replaces a customer profile.
func (s *ProfileStore) Upsert(profile models.CustomerRiskProfile) *models.CustomerRiskProfile {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	if profile.Level == "" {
		profile.Level = models.RiskLow
	}

	s.mu.Lock()
	s.profiles[profile.CustomerID] = &profile
	s.mu.Unlock()
	return &profile
}

// Get returns a customer profile.
func (s *ProfileStore) Get(customerID uuid.UUID) (*models.CustomerRiskProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[customerID]
	return p, ok
}

// History returns the stored assessments for a customer, newest last.
func (s *ProfileStore) History(customerID uuid.UUID) []models.RiskAssessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RiskAssessment, len(s.history[customerID]))
	copy(out, s.history[customerID])
	return out
}

// ApplyAssessment records an assessment on the profile: score, level,
// category breakdown and the next periodic review date. A prohibited
// profile keeps its level; the computed score is recorded anyway.
func (s *ProfileStore) ApplyAssessment(customerID uuid.UUID, assessment models.RiskAssessment) (*models.CustomerRiskProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[customerID]
	if !ok {
		return nil, core.NotFound("risk profile for customer %s not found", customerID)
	}

	now := time.Now().UTC()
	profile.OverallScore = assessment.OverallScore
	profile.CategoryScores = assessment.CategoryScores
	if profile.Level != models.RiskProhibited {
		profile.Level = assessment.Level
	}
	profile.LastAssessedAt = assessment.AssessedAt
	profile.NextReviewAt = assessment.AssessedAt.Add(models.ReviewInterval(profile.Level))
	profile.UpdatedAt = now

	s.history[customerID] = append(s.history[customerID], assessment)
	return profile, nil
}

// MarkSanctionsMatch flips the sanctions flag on a profile. Used by the
// screening pipeline when a subject clears the auto-escalation score.
func (s *ProfileStore) MarkSanctionsMatch(customerID uuid.UUID) (*models.CustomerRiskProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[customerID]
	if !ok {
		return nil, false
	}
	if !profile.SanctionsMatch {
		profile.SanctionsMatch = true
		profile.UpdatedAt = time.Now().UTC()
		log.Printf("[Risk] Sanctions match flagged on customer %s", customerID)
	}
	return profile, true
}

// RequestOverride opens a pending override for a customer's risk level.
func (s *ProfileStore) RequestOverride(customerID uuid.UUID, requested models.RiskLevel,
	reason, justification, requestedBy string, requiredApprovers []string) (*models.RiskOverride, error) {

	if reason == "" {
		return nil, core.Invalid("override reason is required")
	}
	if len(requiredApprovers) == 0 {
		return nil, core.Invalid("override requires at least one approver")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[customerID]
	if !ok {
		return nil, core.NotFound("risk profile for customer %s not found", customerID)
	}
	if profile.Level == requested {
		return nil, core.Invalid("customer %s is already at level %s", customerID, requested)
	}
	for _, o := range s.overrides {
		if o.CustomerID == customerID && o.Status == models.OverridePending {
			return nil, core.Conflict("customer %s already has a pending override", customerID)
		}
	}

	override := &models.RiskOverride{
		ID:                uuid.New(),
		CustomerID:        customerID,
		CurrentLevel:      profile.Level,
		RequestedLevel:    requested,
		Reason:            reason,
		Justification:     justification,
		RequestedBy:       requestedBy,
		RequiredApprovers: requiredApprovers,
		Status:            models.OverridePending,
		CreatedAt:         time.Now().UTC(),
	}
	s.overrides[override.ID] = override

	log.Printf("[Risk] Override %s requested for customer %s: %s -> %s", override.ID, customerID, profile.Level, requested)
	return override, nil
}

// GetOverride returns an override request.
func (s *ProfileStore) GetOverride(id uuid.UUID) (*models.RiskOverride, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[id]
	return o, ok
}

// ApproveOverride records one approval. When every required approver has
// signed off the override is applied: the profile takes the requested
// level, and moving up by two or more bands auto-raises RequiresEDD.
func (s *ProfileStore) ApproveOverride(id uuid.UUID, approver string) (*models.RiskOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	override, ok := s.overrides[id]
	if !ok {
		return nil, core.NotFound("override %s not found", id)
	}
	if override.Status != models.OverridePending {
		return nil, core.Conflict("override %s already %s", id, override.Status)
	}
	if !containsString(override.RequiredApprovers, approver) {
		return nil, core.Invalid("%s is not a required approver for override %s", approver, id)
	}
	if containsString(override.Approvals, approver) {
		return nil, core.Conflict("%s already approved override %s", approver, id)
	}
	override.Approvals = append(override.Approvals, approver)

	if len(override.Approvals) < len(override.RequiredApprovers) {
		return override, nil
	}

	// Final approval: apply to the profile.
	now := time.Now().UTC()
	override.Status = models.OverrideApproved
	override.DecidedAt = &now

	profile, ok := s.profiles[override.CustomerID]
	if !ok {
		return nil, core.NotFound("risk profile for customer %s not found", override.CustomerID)
	}
	if models.LevelDistance(profile.Level, override.RequestedLevel) >= 2 {
		profile.RequiresEDD = true
	}
	profile.Level = override.RequestedLevel
	profile.NextReviewAt = now.Add(models.ReviewInterval(profile.Level))
	profile.UpdatedAt = now

	log.Printf("[Risk] Override %s approved: customer %s now %s", id, override.CustomerID, profile.Level)
	return override, nil
}

// RejectOverride closes a pending override without touching the profile.
func (s *ProfileStore) RejectOverride(id uuid.UUID, approver string) (*models.RiskOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	override, ok := s.overrides[id]
	if !ok {
		return nil, core.NotFound("override %s not found", id)
	}
	if override.Status != models.OverridePending {
		return nil, core.Conflict("override %s already %s", id, override.Status)
	}

	now := time.Now().UTC()
	override.Status = models.OverrideRejected
	override.DecidedAt = &now
	log.Printf("[Risk] Override %s rejected by %s", id, approver)
	return override, nil
}

func containsString(slice []string, s string) bool {
	for _, existing := range slice {
		if existing == s {
			return true
		}
	}
	return false
}
