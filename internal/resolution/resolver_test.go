package resolution

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/pkg/models"
)

func ssn(value string) models.Identifier {
	return models.Identifier{Type: models.IDTaxID, Value: value, IssuingCountry: "US"}
}

func individualRecord(system, name string, ids ...models.Identifier) models.SourceRecord {
	return models.SourceRecord{
		SourceSystem: system,
		SourceKey:    system + "-" + name,
		Kind:         models.KindIndividual,
		Name:         name,
		Identifiers:  ids,
	}
}

func TestResolve_NewRecordCreatesEntity(t *testing.T) {
	r := NewResolver(nil)

	rec := r.Ingest(individualRecord("core-banking", "John Smith", ssn("123-45-6789")))
	entity, candidates, err := r.Resolve(rec.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if entity == nil {
		t.Fatal("Expected a new master entity for an unmatched record")
	}
	if len(candidates) != 0 {
		t.Errorf("Expected no review candidates, got %d", len(candidates))
	}
	if entity.PrimaryName != "John Smith" {
		t.Errorf("Expected primary name John Smith, got %q", entity.PrimaryName)
	}

	got, ok := r.GetRecord(rec.ID)
	if !ok || got.MasterEntityID == nil || *got.MasterEntityID != entity.ID {
		t.Error("Source record must point at its master entity after resolution")
	}
}

func TestResolve_SameSSNAutoMerges(t *testing.T) {
	// Two records from different systems sharing an SSN must resolve to one
	// master entity: the identifier match short-circuits to 1.0 and
	// SSN_EXACT permits unattended merging.
	r := NewResolver(nil)

	r1 := r.Ingest(individualRecord("core-banking", "John Smith", ssn("123-45-6789")))
	entity1, _, err := r.Resolve(r1.ID)
	if err != nil || entity1 == nil {
		t.Fatalf("First resolve failed: %v", err)
	}

	r2 := r.Ingest(individualRecord("card-platform", "J. Smith", ssn("123-45-6789")))
	entity2, candidates, err := r.Resolve(r2.ID)
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("Expected auto-merge, got %d review candidates", len(candidates))
	}
	if entity2 == nil || entity2.ID != entity1.ID {
		t.Fatal("Both records must resolve to the same master entity")
	}
	if len(entity2.SourceRecords) != 2 {
		t.Errorf("Expected 2 source records, got %d", len(entity2.SourceRecords))
	}
	if len(entity2.NameVariants) != 2 {
		t.Errorf("Expected 2 name variants (John Smith, J. Smith), got %d", len(entity2.NameVariants))
	}

	got, _ := r.GetRecord(r2.ID)
	if got.Status != models.ResolutionAuto {
		t.Errorf("Expected auto resolution status, got %s", got.Status)
	}
}

func TestResolve_NameOnlyMatchQueuesCandidate(t *testing.T) {
	dob := time.Date(1980, 6, 1, 0, 0, 0, 0, time.UTC)

	r := NewResolver(nil)
	seed := individualRecord("core-banking", "Maria Fernanda Lopez")
	seed.DateOfBirth = &dob
	first := r.Ingest(seed)
	if _, _, err := r.Resolve(first.ID); err != nil {
		t.Fatalf("Seed resolve failed: %v", err)
	}

	dup := individualRecord("brokerage", "Maria Fernanda Lopez")
	dup.DateOfBirth = &dob
	second := r.Ingest(dup)

	entity, candidates, err := r.Resolve(second.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if entity != nil {
		t.Fatal("NAME_DOB must not auto-merge; expected a review candidate")
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 review candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.MatchedRule != "NAME_DOB" {
		t.Errorf("Expected NAME_DOB to fire, got %q", c.MatchedRule)
	}
	if c.OverallScore < 0.95 {
		t.Errorf("Exact name + exact DOB should score >= 0.95, got %v", c.OverallScore)
	}
	if c.Confidence != models.ConfidenceDefinite {
		t.Errorf("Expected definite confidence, got %s", c.Confidence)
	}

	rec, _ := r.GetRecord(second.ID)
	if rec.Status != models.ResolutionPending {
		t.Errorf("Queued record must stay pending, got %s", rec.Status)
	}
}

func TestReviewCandidate_ApproveAndReject(t *testing.T) {
	dob := time.Date(1980, 6, 1, 0, 0, 0, 0, time.UTC)

	r := NewResolver(nil)
	seed := individualRecord("core-banking", "Chen Wei")
	seed.DateOfBirth = &dob
	first := r.Ingest(seed)
	seedEntity, _, _ := r.Resolve(first.ID)

	dup := individualRecord("brokerage", "Chen Wei")
	dup.DateOfBirth = &dob
	second := r.Ingest(dup)
	_, candidates, _ := r.Resolve(second.ID)
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}

	entity, err := r.ReviewCandidate(candidates[0].ID, models.DecisionApprove, "analyst1")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if entity.ID != seedEntity.ID {
		t.Error("Approval must merge into the candidate's master entity")
	}
	rec, _ := r.GetRecord(second.ID)
	if rec.Status != models.ResolutionManual {
		t.Errorf("Expected manual status after approval, got %s", rec.Status)
	}

	// Reviewing the same candidate twice is invalid.
	if _, err := r.ReviewCandidate(candidates[0].ID, models.DecisionApprove, "analyst1"); !core.IsInvalid(err) {
		t.Errorf("Re-review must return an invalid error, got %v", err)
	}
}

func TestReviewCandidate_RejectMintsNewEntity(t *testing.T) {
	dob := time.Date(1990, 1, 15, 0, 0, 0, 0, time.UTC)

	r := NewResolver(nil)
	seed := individualRecord("core-banking", "Alex Morgan")
	seed.DateOfBirth = &dob
	first := r.Ingest(seed)
	seedEntity, _, _ := r.Resolve(first.ID)

	dup := individualRecord("card-platform", "Alex Morgan")
	dup.DateOfBirth = &dob
	second := r.Ingest(dup)
	_, candidates, _ := r.Resolve(second.ID)

	entity, err := r.ReviewCandidate(candidates[0].ID, models.DecisionReject, "analyst2")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if entity == nil {
		t.Fatal("Rejecting the only candidate must mint a new master entity")
	}
	if entity.ID == seedEntity.ID {
		t.Error("Rejected record must not land on the existing entity")
	}
}

func TestReviewCandidate_ConcurrentRejectsApplyOnce(t *testing.T) {
	// Two reviewers racing on the same candidate, while an analyst queue
	// polls PendingCandidates: exactly one review wins per candidate, the
	// loser gets an invalid error, and no decision is applied twice.
	dob := time.Date(1975, 3, 10, 0, 0, 0, 0, time.UTC)

	r := NewResolver(nil)
	seed := individualRecord("core-banking", "Riley Quinn")
	seed.DateOfBirth = &dob
	first := r.Ingest(seed)
	if _, _, err := r.Resolve(first.ID); err != nil {
		t.Fatalf("Seed resolve failed: %v", err)
	}

	const dups = 20
	candidateIDs := make([]uuid.UUID, 0, dups)
	for i := 0; i < dups; i++ {
		rec := individualRecord(fmt.Sprintf("system-%d", i), "Riley Quinn")
		rec.DateOfBirth = &dob
		ingested := r.Ingest(rec)
		_, candidates, err := r.Resolve(ingested.ID)
		if err != nil {
			t.Fatalf("Resolve %d failed: %v", i, err)
		}
		if len(candidates) != 1 {
			t.Fatalf("Expected 1 candidate for duplicate %d, got %d", i, len(candidates))
		}
		candidateIDs = append(candidateIDs, candidates[0].ID)
	}

	done := make(chan struct{})
	var readerWG sync.WaitGroup
	readerWG.Add(1)
	go func() {
		defer readerWG.Done()
		for {
			select {
			case <-done:
				return
			default:
				r.PendingCandidates()
			}
		}
	}()

	var wg sync.WaitGroup
	var invalid, minted int64
	for _, id := range candidateIDs {
		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func(candidateID uuid.UUID) {
				defer wg.Done()
				entity, err := r.ReviewCandidate(candidateID, models.DecisionReject, "analyst4")
				switch {
				case core.IsInvalid(err):
					atomic.AddInt64(&invalid, 1)
				case err != nil:
					t.Errorf("Reject failed: %v", err)
				case entity != nil:
					atomic.AddInt64(&minted, 1)
				}
			}(id)
		}
	}
	wg.Wait()
	close(done)
	readerWG.Wait()

	if invalid != dups {
		t.Errorf("Expected %d losing reviews to be invalid, got %d", dups, invalid)
	}
	if minted != dups {
		t.Errorf("Expected %d records to mint exactly one entity each, got %d", dups, minted)
	}
	if pending := r.PendingCandidates(); len(pending) != 0 {
		t.Errorf("Expected an empty review queue, got %d pending", len(pending))
	}
}

func TestMerge_UnionAndIdempotence(t *testing.T) {
	r := NewResolver(nil)

	a := r.Ingest(individualRecord("core-banking", "Sam Carter", ssn("111-22-3333")))
	entityA, _, _ := r.Resolve(a.ID)

	b := r.Ingest(individualRecord("brokerage", "Samuel Carter", ssn("444-55-6666")))
	entityB, _, _ := r.Resolve(b.ID)

	survivor, err := r.Merge(entityA.ID, entityB.ID, "analyst1", 0.9)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(survivor.Identifiers) != 2 {
		t.Errorf("Expected both SSNs on the survivor, got %d identifiers", len(survivor.Identifiers))
	}
	if len(survivor.SourceRecords) != 2 {
		t.Errorf("Expected 2 source records, got %d", len(survivor.SourceRecords))
	}
	if len(survivor.MergeHistory) != 1 {
		t.Fatalf("Expected 1 merge history entry, got %d", len(survivor.MergeHistory))
	}
	if survivor.MergeHistory[0].MergedEntityID != entityB.ID {
		t.Error("Merge history must record the absorbed entity")
	}
	if _, ok := r.GetEntity(entityB.ID); ok {
		t.Error("Merged entity must be removed from the store")
	}

	recB, _ := r.GetRecord(b.ID)
	if recB.MasterEntityID == nil || *recB.MasterEntityID != entityA.ID {
		t.Error("Moved source record must point at the survivor")
	}

	// Replaying the same merge is a no-op, not an error.
	again, err := r.Merge(entityA.ID, entityB.ID, "analyst1", 0.9)
	if err != nil {
		t.Fatalf("Repeated merge must be idempotent, got %v", err)
	}
	if len(again.MergeHistory) != 1 {
		t.Errorf("Repeated merge must not append history, got %d entries", len(again.MergeHistory))
	}
}

func TestMerge_KindMismatchConflicts(t *testing.T) {
	r := NewResolver(nil)

	a := r.Ingest(individualRecord("core-banking", "Jordan Reyes"))
	entityA, _, _ := r.Resolve(a.ID)

	org := models.SourceRecord{
		SourceSystem: "registry",
		Kind:         models.KindOrganization,
		Name:         "Reyes Trading LLC",
	}
	b := r.Ingest(org)
	entityB, _, _ := r.Resolve(b.ID)

	if _, err := r.Merge(entityA.ID, entityB.ID, "analyst1", 0.9); !core.IsConflict(err) {
		t.Errorf("Cross-kind merge must conflict, got %v", err)
	}
}

func TestSplit_GroupsBecomeEntities(t *testing.T) {
	r := NewResolver(nil)

	a := r.Ingest(individualRecord("core-banking", "Pat Kim", ssn("777-88-9999")))
	entity, _, _ := r.Resolve(a.ID)
	b := r.Ingest(individualRecord("card-platform", "Pat Kim Jr", ssn("777-88-9999")))
	merged, _, _ := r.Resolve(b.ID)
	if merged == nil || merged.ID != entity.ID {
		t.Fatal("Setup: records must auto-merge before the split")
	}

	out, err := r.Split(entity.ID, [][]uuid.UUID{{a.ID}, {b.ID}}, "analyst3")
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Expected 2 entities after split, got %d", len(out))
	}
	if _, ok := r.GetEntity(entity.ID); ok {
		t.Error("Original entity must be removed after split")
	}
	for _, e := range out {
		if len(e.SourceRecords) != 1 {
			t.Errorf("Each split entity must own exactly 1 source record, got %d", len(e.SourceRecords))
		}
	}

	recA, _ := r.GetRecord(a.ID)
	if recA.Status != models.ResolutionSplit {
		t.Errorf("Expected split status, got %s", recA.Status)
	}
}

func TestSplit_MustAssignEveryRecord(t *testing.T) {
	r := NewResolver(nil)

	a := r.Ingest(individualRecord("core-banking", "Dana Fox", ssn("222-33-4444")))
	entity, _, _ := r.Resolve(a.ID)
	b := r.Ingest(individualRecord("card-platform", "Dana Fox", ssn("222-33-4444")))
	r.Resolve(b.ID)
	c := r.Ingest(individualRecord("brokerage", "Dana Fox", ssn("222-33-4444")))
	r.Resolve(c.ID)

	_, err := r.Split(entity.ID, [][]uuid.UUID{{a.ID}, {b.ID}}, "analyst3")
	if !core.IsInvalid(err) {
		t.Errorf("Partial split must be invalid, got %v", err)
	}
	if _, ok := r.GetEntity(entity.ID); !ok {
		t.Error("Failed split must leave the original entity intact")
	}
}

func TestQualityScore_Completeness(t *testing.T) {
	dob := time.Date(1985, 2, 20, 0, 0, 0, 0, time.UTC)

	full := models.SourceRecord{
		SourceSystem:  "core-banking",
		Kind:          models.KindIndividual,
		Name:          "Complete Person",
		DateOfBirth:   &dob,
		Nationalities: []string{"US"},
		Identifiers:   []models.Identifier{ssn("555-66-7777")},
		Addresses:     []models.Address{{Type: models.AddrResidential, City: "Boston", Country: "US"}},
	}

	r := NewResolver(nil)
	rec := r.Ingest(full)
	entity, _, _ := r.Resolve(rec.ID)
	if entity.QualityScore != 100.0 {
		t.Errorf("Fully populated entity must score 100, got %v", entity.QualityScore)
	}

	bare := r.Ingest(individualRecord("core-banking", "Name Only Person"))
	bareEntity, _, _ := r.Resolve(bare.ID)
	if bareEntity.QualityScore >= entity.QualityScore {
		t.Errorf("Name-only entity must score below a complete one, got %v", bareEntity.QualityScore)
	}
}
