package resolution

import (
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/pkg/models"
)

// Entity Resolver
//
// Pipeline: ingest -> block -> compare -> auto-decide -> queue/merge.
//
// Blocking restricts candidates to master entities of the same kind (plus
// a DOB-year key for individuals when both sides carry one), keeping the
// pairwise comparison off the O(N^2) path. Auto-merge happens only when
// the best candidate clears 0.98 AND the firing rule permits it; anything
// else above 0.5 lands in the review queue as a MatchCandidate.
//
// Merge and split are linearized per entity-ID set: entity locks are taken
// in ascending ID order so concurrent merges over overlapping entities
// cannot deadlock.

// Base pairwise weights (used when no declarative rule fires).
var baseWeights = map[string]float64{
	FieldName:       0.40,
	FieldIdentifier: 0.25,
	FieldDOB:        0.20,
	FieldAddress:    0.15,
}

const (
	candidateFloor = 0.5
	autoMergeScore = 0.98
)

// AuditFunc receives one audit event per state-changing operation.
type AuditFunc func(actor, action, target, detail string)

// Resolver owns the master entity and source record stores.
type Resolver struct {
	mu         sync.RWMutex
	entities   map[uuid.UUID]*models.MasterEntity
	records    map[uuid.UUID]*models.SourceRecord
	candidates map[uuid.UUID]*models.MatchCandidate
	rules      []ResolutionRule

	lockMu      sync.Mutex
	entityLocks map[uuid.UUID]*sync.Mutex

	audit AuditFunc
}

// NewResolver creates a resolver with the default declarative rule set.
func NewResolver(audit AuditFunc) *Resolver {
	rules := DefaultResolutionRules()
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	if audit == nil {
		audit = func(string, string, string, string) {}
	}
	return &Resolver{
		entities:    make(map[uuid.UUID]*models.MasterEntity),
		records:     make(map[uuid.UUID]*models.SourceRecord),
		candidates:  make(map[uuid.UUID]*models.MatchCandidate),
		rules:       rules,
		entityLocks: make(map[uuid.UUID]*sync.Mutex),
		audit:       audit,
	}
}

// lockFor returns the mutex guarding one entity's mutations.
func (r *Resolver) lockFor(id uuid.UUID) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	if l, ok := r.entityLocks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.entityLocks[id] = l
	return l
}

// lockAll acquires the locks for a set of entities in ascending ID order
// and returns the unlock function.
func (r *Resolver) lockAll(ids []uuid.UUID) func() {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.Compare(sorted[i].String(), sorted[j].String()) < 0
	})
	locks := make([]*sync.Mutex, 0, len(sorted))
	seen := make(map[uuid.UUID]bool, len(sorted))
	for _, id := range sorted {
		if seen[id] {
			continue
		}
		seen[id] = true
		locks = append(locks, r.lockFor(id))
	}
	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// Ingest stores a source record verbatim with status pending.
func (r *Resolver) Ingest(rec models.SourceRecord) *models.SourceRecord {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Status = models.ResolutionPending
	rec.MasterEntityID = nil
	rec.IngestedAt = time.Now().UTC()

	r.mu.Lock()
	r.records[rec.ID] = &rec
	r.mu.Unlock()

	log.Printf("[Resolver] Ingested source record %s from %s (%q)", rec.ID, rec.SourceSystem, rec.Name)
	return &rec
}

// GetRecord returns a source record by ID.
func (r *Resolver) GetRecord(id uuid.UUID) (*models.SourceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// GetEntity returns a master entity by ID.
func (r *Resolver) GetEntity(id uuid.UUID) (*models.MasterEntity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	return e, ok
}

// GetCandidate returns a match candidate by ID.
func (r *Resolver) GetCandidate(id uuid.UUID) (*models.MatchCandidate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.candidates[id]
	return c, ok
}

// PendingCandidates lists candidates awaiting review.
func (r *Resolver) PendingCandidates() []*models.MatchCandidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.MatchCandidate
	for _, c := range r.candidates {
		if c.Status == "pending" {
			out = append(out, c)
		}
	}
	return out
}

// block returns the candidate master entities for a record: same kind,
// and when both sides carry a DOB, the same birth year.
func (r *Resolver) block(rec *models.SourceRecord) []*models.MasterEntity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.MasterEntity
	for _, e := range r.entities {
		if e.Kind != rec.Kind {
			continue
		}
		if rec.DateOfBirth != nil && e.DateOfBirth != nil &&
			rec.DateOfBirth.UTC().Year() != e.DateOfBirth.UTC().Year() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Resolve runs the pipeline for one pending source record. It returns the
// owning master entity when resolution is decided (auto-merge or new
// entity) and the review-queue candidates otherwise.
func (r *Resolver) Resolve(recordID uuid.UUID) (*models.MasterEntity, []*models.MatchCandidate, error) {
	r.mu.RLock()
	rec, ok := r.records[recordID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, core.NotFound("source record %s not found", recordID)
	}
	if rec.Status != models.ResolutionPending {
		return nil, nil, core.Invalid("source record %s already resolved (%s)", recordID, rec.Status)
	}

	type scored struct {
		entity *models.MasterEntity
		score  float64
		rule   *ResolutionRule
		fields map[string]float64
	}

	var best *scored
	var queue []scored
	for _, entity := range r.block(rec) {
		score, rule, fields := scorePair(rec, entity, r.rules)
		if rule == nil {
			// No declarative rule fired; fall back to the base weights.
			score = 0
			for field, weight := range baseWeights {
				score += weight * fields[field]
			}
			if fields[FieldIdentifier] == 1.0 {
				score = 1.0
			}
		}
		if score < candidateFloor {
			continue
		}
		s := scored{entity: entity, score: score, rule: rule, fields: fields}
		queue = append(queue, s)
		if best == nil || s.score > best.score {
			last := s
			best = &last
		}
	}

	// Auto-decide: merge only when the best candidate clears the auto
	// threshold and its rule permits unattended merging.
	if best != nil && best.score >= autoMergeScore && best.rule != nil && best.rule.AllowAutoMerge {
		entity, err := r.attachRecord(best.entity.ID, rec, models.ResolutionAuto, best.score, "system")
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[Resolver] Auto-merged record %s into entity %s via %s (%.3f)",
			rec.ID, entity.ID, best.rule.Code, best.score)
		return entity, nil, nil
	}

	// Nothing scored: mint a fresh master entity from the record.
	if len(queue) == 0 {
		entity := r.createEntityFrom(rec)
		log.Printf("[Resolver] Record %s created new master entity %s", rec.ID, entity.ID)
		return entity, nil, nil
	}

	// Queue candidates for human review; record stays pending.
	now := time.Now().UTC()
	var out []*models.MatchCandidate
	r.mu.Lock()
	for _, s := range queue {
		ruleCode := ""
		if s.rule != nil {
			ruleCode = s.rule.Code
		}
		c := &models.MatchCandidate{
			ID:             uuid.New(),
			SourceRecordID: rec.ID,
			MasterEntityID: s.entity.ID,
			OverallScore:   s.score,
			FieldScores:    s.fields,
			Confidence:     models.ConfidenceLabel(s.score),
			MatchedRule:    ruleCode,
			Status:         "pending",
			CreatedAt:      now,
		}
		r.candidates[c.ID] = c
		out = append(out, c)
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].OverallScore > out[j].OverallScore })
	log.Printf("[Resolver] Record %s queued %d match candidates for review", rec.ID, len(out))
	return nil, out, nil
}

// ReviewCandidate applies a human decision to a pending candidate.
// Approve merges the record into the candidate entity; reject marks the
// candidate and, when no candidates remain, mints a new entity.
func (r *Resolver) ReviewCandidate(candidateID uuid.UUID, decision models.CandidateDecision, reviewer string) (*models.MasterEntity, error) {
	if decision != models.DecisionApprove && decision != models.DecisionReject {
		return nil, core.Invalid("unknown candidate decision %q", decision)
	}

	// The pending-check and the status flip must be one atomic step so two
	// concurrent reviews of the same candidate cannot both pass it.
	r.mu.Lock()
	cand, ok := r.candidates[candidateID]
	if !ok {
		r.mu.Unlock()
		return nil, core.NotFound("match candidate %s not found", candidateID)
	}
	if cand.Status != "pending" {
		r.mu.Unlock()
		return nil, core.Invalid("match candidate %s already reviewed (%s)", candidateID, cand.Status)
	}
	rec := r.records[cand.SourceRecordID]
	if rec == nil {
		r.mu.Unlock()
		return nil, core.NotFound("source record %s not found", cand.SourceRecordID)
	}
	now := time.Now().UTC()
	cand.ReviewedAt = &now
	cand.ReviewedBy = reviewer
	if decision == models.DecisionApprove {
		cand.Status = "approved"
	} else {
		cand.Status = "rejected"
	}
	r.mu.Unlock()

	if decision == models.DecisionApprove {
		entity, err := r.attachRecord(cand.MasterEntityID, rec, models.ResolutionManual, cand.OverallScore, reviewer)
		if err != nil {
			return nil, err
		}
		r.closeSiblingCandidates(rec.ID, candidateID)
		r.audit(reviewer, "candidate.approve", candidateID.String(), "merged into "+entity.ID.String())
		return entity, nil
	}

	r.audit(reviewer, "candidate.reject", candidateID.String(), "")
	// When every candidate for the record is rejected, the record becomes
	// its own master entity. The record is claimed under the lock so two
	// concurrent final rejects cannot both mint one.
	r.mu.Lock()
	if r.pendingCandidatesLocked(rec.ID) || rec.Status != models.ResolutionPending {
		r.mu.Unlock()
		return nil, nil
	}
	rec.Status = models.ResolutionManual
	r.mu.Unlock()
	return r.createEntityFrom(rec), nil
}

// pendingCandidatesLocked reports whether the record still has candidates
// awaiting review. Caller holds r.mu.
func (r *Resolver) pendingCandidatesLocked(recordID uuid.UUID) bool {
	for _, c := range r.candidates {
		if c.SourceRecordID == recordID && c.Status == "pending" {
			return true
		}
	}
	return false
}

func (r *Resolver) closeSiblingCandidates(recordID, except uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.candidates {
		if c.SourceRecordID == recordID && c.ID != except && c.Status == "pending" {
			c.Status = "rejected"
		}
	}
}

// createEntityFrom mints a new master entity seeded by one source record.
func (r *Resolver) createEntityFrom(rec *models.SourceRecord) *models.MasterEntity {
	now := time.Now().UTC()
	entity := &models.MasterEntity{
		ID:          uuid.New(),
		Kind:        rec.Kind,
		PrimaryName: rec.Name,
		DateOfBirth: rec.DateOfBirth,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	entity.NameVariants = []models.NameVariant{{
		Name: rec.Name, Type: models.NameLegal, Confidence: 1.0, IsPrimary: true,
	}}
	for _, alias := range rec.AliasNames {
		entity.NameVariants = append(entity.NameVariants, models.NameVariant{
			Name: alias, Type: models.NameAlias, Confidence: 0.8,
		})
	}
	entity.Nationalities = append(entity.Nationalities, rec.Nationalities...)
	entity.Identifiers = append(entity.Identifiers, rec.Identifiers...)
	entity.Addresses = append(entity.Addresses, rec.Addresses...)
	entity.SourceRecords = []uuid.UUID{rec.ID}
	entity.SourceSystems = []string{rec.SourceSystem}
	entity.LastResolvedAt = now
	entity.QualityScore = qualityScore(entity)

	r.mu.Lock()
	r.entities[entity.ID] = entity
	rec.Status = models.ResolutionAuto
	rec.MasterEntityID = &entity.ID
	rec.ResolvedAt = &now
	r.mu.Unlock()

	r.audit("system", "entity.create", entity.ID.String(), "seeded from record "+rec.ID.String())
	return entity
}
