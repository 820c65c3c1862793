package resolution

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/pkg/models"
)

// Merge / Split
//
// Merging unions attributes with dedup: name variants keyed on the
// normalized name, identifiers on (type, value, issuing country),
// nationalities case-insensitively. Source record references always
// move; nothing is ever dropped. Merge history is append-only, so a
// merge is undone only by an explicit split, never by edits.

// attachRecord binds a source record to an existing master entity,
// unioning the record's attributes into the golden record.
func (r *Resolver) attachRecord(entityID uuid.UUID, rec *models.SourceRecord,
	status models.ResolutionStatus, confidence float64, actor string) (*models.MasterEntity, error) {

	unlock := r.lockAll([]uuid.UUID{entityID})
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[entityID]
	if !ok {
		return nil, core.NotFound("master entity %s not found", entityID)
	}

	now := time.Now().UTC()

	addNameVariant(entity, models.NameVariant{Name: rec.Name, Type: models.NameLegal, Confidence: confidence})
	for _, alias := range rec.AliasNames {
		addNameVariant(entity, models.NameVariant{Name: alias, Type: models.NameAlias, Confidence: confidence * 0.8})
	}
	for _, id := range rec.Identifiers {
		if !entity.HasIdentifier(id) {
			entity.Identifiers = append(entity.Identifiers, id)
		}
	}
	for _, nat := range rec.Nationalities {
		addNationality(entity, nat)
	}
	for _, addr := range rec.Addresses {
		addAddress(entity, addr)
	}
	if entity.DateOfBirth == nil && rec.DateOfBirth != nil {
		dob := *rec.DateOfBirth
		entity.DateOfBirth = &dob
	}

	if !containsUUID(entity.SourceRecords, rec.ID) {
		entity.SourceRecords = append(entity.SourceRecords, rec.ID)
	}
	addString(&entity.SourceSystems, rec.SourceSystem)

	rec.Status = status
	rec.MasterEntityID = &entity.ID
	rec.ResolvedAt = &now

	entity.QualityScore = qualityScore(entity)
	entity.LastResolvedAt = now
	entity.UpdatedAt = now

	r.audit(actor, "entity.attach", entity.ID.String(), "record "+rec.ID.String())
	return entity, nil
}

// Merge folds one master entity into another. The survivor keeps its ID
// and primary name; every attribute and source record of the merged
// entity moves over, and the merge is recorded in history. Re-merging an
// entity that is already in the survivor's history is a no-op.
func (r *Resolver) Merge(survivorID, mergedID uuid.UUID, actor string, confidence float64) (*models.MasterEntity, error) {
	if survivorID == mergedID {
		return nil, core.Invalid("cannot merge an entity into itself")
	}

	unlock := r.lockAll([]uuid.UUID{survivorID, mergedID})
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	survivor, ok := r.entities[survivorID]
	if !ok {
		return nil, core.NotFound("master entity %s not found", survivorID)
	}
	merged, ok := r.entities[mergedID]
	if !ok {
		// Idempotence: already folded into the survivor earlier.
		for _, h := range survivor.MergeHistory {
			if h.MergedEntityID == mergedID {
				return survivor, nil
			}
		}
		return nil, core.NotFound("master entity %s not found", mergedID)
	}
	if survivor.Kind != merged.Kind {
		return nil, core.Conflict("cannot merge %s entity into %s entity", merged.Kind, survivor.Kind)
	}

	now := time.Now().UTC()

	addNameVariant(survivor, models.NameVariant{Name: merged.PrimaryName, Type: models.NameAlias, Confidence: confidence})
	for _, v := range merged.NameVariants {
		nv := v
		nv.IsPrimary = false
		addNameVariant(survivor, nv)
	}
	for _, id := range merged.Identifiers {
		if !survivor.HasIdentifier(id) {
			survivor.Identifiers = append(survivor.Identifiers, id)
		}
	}
	for _, nat := range merged.Nationalities {
		addNationality(survivor, nat)
	}
	for _, addr := range merged.Addresses {
		addAddress(survivor, addr)
	}
	for _, rel := range merged.Relationships {
		survivor.Relationships = append(survivor.Relationships, rel)
	}
	if survivor.DateOfBirth == nil && merged.DateOfBirth != nil {
		dob := *merged.DateOfBirth
		survivor.DateOfBirth = &dob
	}

	for _, recID := range merged.SourceRecords {
		if !containsUUID(survivor.SourceRecords, recID) {
			survivor.SourceRecords = append(survivor.SourceRecords, recID)
		}
		if rec, ok := r.records[recID]; ok {
			rec.MasterEntityID = &survivor.ID
		}
	}
	for _, sys := range merged.SourceSystems {
		addString(&survivor.SourceSystems, sys)
	}
	survivor.MergeHistory = append(survivor.MergeHistory, merged.MergeHistory...)

	survivor.MergeHistory = append(survivor.MergeHistory, models.MergeHistoryEntry{
		MergedEntityID: mergedID,
		MergedAt:       now,
		MergedBy:       actor,
		Confidence:     confidence,
	})

	delete(r.entities, mergedID)

	survivor.QualityScore = qualityScore(survivor)
	survivor.LastResolvedAt = now
	survivor.UpdatedAt = now

	r.audit(actor, "entity.merge", survivorID.String(), "absorbed "+mergedID.String())
	log.Printf("[Resolver] Merged entity %s into %s (%d source records)", mergedID, survivorID, len(survivor.SourceRecords))
	return survivor, nil
}

// Split breaks an over-merged entity apart. Each group of source record
// IDs becomes its own new master entity; the original is removed. Every
// source record of the original must be assigned to exactly one group.
func (r *Resolver) Split(entityID uuid.UUID, groups [][]uuid.UUID, actor string) ([]*models.MasterEntity, error) {
	if len(groups) < 2 {
		return nil, core.Invalid("split requires at least 2 groups")
	}

	unlock := r.lockAll([]uuid.UUID{entityID})
	defer unlock()

	r.mu.Lock()
	entity, ok := r.entities[entityID]
	if !ok {
		r.mu.Unlock()
		return nil, core.NotFound("master entity %s not found", entityID)
	}

	assigned := make(map[uuid.UUID]bool)
	for _, group := range groups {
		if len(group) == 0 {
			r.mu.Unlock()
			return nil, core.Invalid("split group cannot be empty")
		}
		for _, recID := range group {
			if !containsUUID(entity.SourceRecords, recID) {
				r.mu.Unlock()
				return nil, core.Invalid("source record %s does not belong to entity %s", recID, entityID)
			}
			if assigned[recID] {
				r.mu.Unlock()
				return nil, core.Invalid("source record %s assigned to more than one group", recID)
			}
			assigned[recID] = true
		}
	}
	if len(assigned) != len(entity.SourceRecords) {
		r.mu.Unlock()
		return nil, core.Invalid("split must assign all %d source records, got %d", len(entity.SourceRecords), len(assigned))
	}

	now := time.Now().UTC()
	var out []*models.MasterEntity
	for _, group := range groups {
		fresh := &models.MasterEntity{
			ID:        uuid.New(),
			Kind:      entity.Kind,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, recID := range group {
			rec, ok := r.records[recID]
			if !ok {
				continue
			}
			if fresh.PrimaryName == "" {
				fresh.PrimaryName = rec.Name
				fresh.NameVariants = append(fresh.NameVariants, models.NameVariant{
					Name: rec.Name, Type: models.NameLegal, Confidence: 1.0, IsPrimary: true,
				})
			} else {
				addNameVariant(fresh, models.NameVariant{Name: rec.Name, Type: models.NameLegal, Confidence: 1.0})
			}
			for _, alias := range rec.AliasNames {
				addNameVariant(fresh, models.NameVariant{Name: alias, Type: models.NameAlias, Confidence: 0.8})
			}
			for _, id := range rec.Identifiers {
				if !fresh.HasIdentifier(id) {
					fresh.Identifiers = append(fresh.Identifiers, id)
				}
			}
			for _, nat := range rec.Nationalities {
				addNationality(fresh, nat)
			}
			for _, addr := range rec.Addresses {
				addAddress(fresh, addr)
			}
			if fresh.DateOfBirth == nil && rec.DateOfBirth != nil {
				dob := *rec.DateOfBirth
				fresh.DateOfBirth = &dob
			}
			fresh.SourceRecords = append(fresh.SourceRecords, recID)
			addString(&fresh.SourceSystems, rec.SourceSystem)

			rec.Status = models.ResolutionSplit
			rec.MasterEntityID = &fresh.ID
			rec.ResolvedAt = &now
		}
		fresh.QualityScore = qualityScore(fresh)
		fresh.LastResolvedAt = now
		r.entities[fresh.ID] = fresh
		out = append(out, fresh)
	}

	delete(r.entities, entityID)
	r.mu.Unlock()

	r.audit(actor, "entity.split", entityID.String(), "")
	log.Printf("[Resolver] Split entity %s into %d entities", entityID, len(out))
	return out, nil
}

// qualityScore measures golden-record completeness on 0-100. Present
// fields: primary name, DOB, at least one identifier, at least one
// address, at least one nationality (half weight).
func qualityScore(e *models.MasterEntity) float64 {
	const total = 4.5
	score := 0.0
	if e.PrimaryName != "" {
		score += 1.0
	}
	if e.DateOfBirth != nil {
		score += 1.0
	}
	if len(e.Identifiers) > 0 {
		score += 1.0
	}
	if len(e.Addresses) > 0 {
		score += 1.0
	}
	if len(e.Nationalities) > 0 {
		score += 0.5
	}
	return score / total * 100.0
}

func addNameVariant(e *models.MasterEntity, v models.NameVariant) {
	if v.Name == "" {
		return
	}
	for _, existing := range e.NameVariants {
		if strings.EqualFold(existing.Name, v.Name) {
			return
		}
	}
	e.NameVariants = append(e.NameVariants, v)
}

func addNationality(e *models.MasterEntity, nat string) {
	if nat == "" {
		return
	}
	for _, existing := range e.Nationalities {
		if strings.EqualFold(existing, nat) {
			return
		}
	}
	e.Nationalities = append(e.Nationalities, nat)
}

func addAddress(e *models.MasterEntity, addr models.Address) {
	for _, existing := range e.Addresses {
		if existing.Type == addr.Type &&
			strings.EqualFold(existing.Street1, addr.Street1) &&
			strings.EqualFold(existing.City, addr.City) &&
			strings.EqualFold(existing.PostalCode, addr.PostalCode) &&
			strings.EqualFold(existing.Country, addr.Country) {
			return
		}
	}
	e.Addresses = append(e.Addresses, addr)
}

func addString(slice *[]string, s string) {
	if s == "" {
		return
	}
	for _, existing := range *slice {
		if existing == s {
			return
		}
	}
	*slice = append(*slice, s)
}

func containsUUID(slice []uuid.UUID, id uuid.UUID) bool {
	for _, existing := range slice {
		if existing == id {
			return true
		}
	}
	return false
}
