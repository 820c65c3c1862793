package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Master Entity Model
//
// A master entity (golden record) is the resolved, deduplicated
// representation of one real-world party across all upstream systems.
// Source records are raw tuples from those systems; resolution binds
// each to exactly one master entity. Merge history is append-only and
// reversible only via explicit split.

// EntityKind discriminates what a master entity represents.
type EntityKind string

const (
	KindIndividual   EntityKind = "individual"
	KindOrganization EntityKind = "organization"
	KindAccount      EntityKind = "account"
	KindTransaction  EntityKind = "transaction"
)

// NameVariantType tags how a name variant relates to the entity.
type NameVariantType string

const (
	NameLegal   NameVariantType = "legal"
	NameAlias   NameVariantType = "alias"
	NameMaiden  NameVariantType = "maiden"
	NameTrading NameVariantType = "trading"
	NameFormer  NameVariantType = "former"
)

// NameVariant is one known spelling of an entity's name.
type NameVariant struct {
	Name       string          `json:"name"`
	Type       NameVariantType `json:"type"`
	Confidence float64         `json:"confidence"` // [0,1]
	IsPrimary  bool            `json:"isPrimary"`
}

// IdentifierType classifies an identity document or account key.
type IdentifierType string

const (
	IDTaxID         IdentifierType = "tax_id"
	IDPassport      IdentifierType = "passport"
	IDAccountNumber IdentifierType = "account_number"
	IDPhone         IdentifierType = "phone"
	IDEmail         IdentifierType = "email"
)

// Identifier is a typed identity key. Uniqueness within an entity is on
// (type, value, issuing country).
type Identifier struct {
	Type           IdentifierType `json:"type"`
	Value          string         `json:"value"`
	IssuingCountry string         `json:"issuingCountry,omitempty"`
	Verified       bool           `json:"verified"`
}

// Matches reports whether two identifiers refer to the same document:
// same type, case-insensitive value, and same issuing country.
func (id Identifier) Matches(other Identifier) bool {
	return id.Type == other.Type &&
		strings.EqualFold(id.Value, other.Value) &&
		strings.EqualFold(id.IssuingCountry, other.IssuingCountry)
}

// AddressType classifies a postal address.
type AddressType string

const (
	AddrResidential AddressType = "residential"
	AddrBusiness    AddressType = "business"
	AddrMailing     AddressType = "mailing"
	AddrRegistered  AddressType = "registered"
)

// Address is a structured postal address with a validity interval.
type Address struct {
	Type       AddressType `json:"type"`
	Street1    string      `json:"street1,omitempty"`
	Street2    string      `json:"street2,omitempty"`
	City       string      `json:"city,omitempty"`
	State      string      `json:"state,omitempty"`
	PostalCode string      `json:"postalCode,omitempty"`
	Country    string      `json:"country,omitempty"`
	ValidFrom  *time.Time  `json:"validFrom,omitempty"`
	ValidTo    *time.Time  `json:"validTo,omitempty"`
}

// Relationship links two master entities (ownership, control, family).
type Relationship struct {
	TargetEntityID uuid.UUID `json:"targetEntityId"`
	Type           string    `json:"type"` // owner/director/family/associate/subsidiary
	OwnershipPct   *float64  `json:"ownershipPct,omitempty"`
	Since          time.Time `json:"since"`
}

// MergeHistoryEntry records one merge into this master entity. Append-only.
type MergeHistoryEntry struct {
	MergedEntityID uuid.UUID `json:"mergedEntityId"`
	MergedAt       time.Time `json:"mergedAt"`
	MergedBy       string    `json:"mergedBy"`
	Confidence     float64   `json:"confidence"`
}

// MasterEntity is the golden record. Invariants: at most one primary name
// variant; identifiers unique within (type, value, issuing country);
// references at least one source record; LastResolvedAt <= UpdatedAt.
type MasterEntity struct {
	ID             uuid.UUID           `json:"id"`
	Kind           EntityKind          `json:"kind"`
	PrimaryName    string              `json:"primaryName"`
	NameVariants   []NameVariant       `json:"nameVariants"`
	DateOfBirth    *time.Time          `json:"dateOfBirth,omitempty"`
	Nationalities  []string            `json:"nationalities,omitempty"`
	Identifiers    []Identifier        `json:"identifiers"`
	Addresses      []Address           `json:"addresses"`
	Relationships  []Relationship      `json:"relationships"`
	SourceRecords  []uuid.UUID         `json:"sourceRecords"`
	SourceSystems  []string            `json:"sourceSystems"`
	MergeHistory   []MergeHistoryEntry `json:"mergeHistory"`
	QualityScore   float64             `json:"qualityScore"` // completeness, 0-100
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	LastResolvedAt time.Time           `json:"lastResolvedAt"`
}

// AllNames returns the primary name plus every variant, for screening.
func (e *MasterEntity) AllNames() []string {
	names := make([]string, 0, len(e.NameVariants)+1)
	if e.PrimaryName != "" {
		names = append(names, e.PrimaryName)
	}
	for _, v := range e.NameVariants {
		if v.Name != e.PrimaryName {
			names = append(names, v.Name)
		}
	}
	return names
}

// HasIdentifier reports whether the entity carries an equivalent identifier.
func (e *MasterEntity) HasIdentifier(id Identifier) bool {
	for _, existing := range e.Identifiers {
		if existing.Matches(id) {
			return true
		}
	}
	return false
}

// ResolutionStatus tracks how a source record was bound to a master entity.
type ResolutionStatus string

const (
	ResolutionPending  ResolutionStatus = "pending"
	ResolutionAuto     ResolutionStatus = "auto"
	ResolutionManual   ResolutionStatus = "manual"
	ResolutionRejected ResolutionStatus = "rejected"
	ResolutionSplit    ResolutionStatus = "split"
)

// SourceRecord is a raw tuple from an upstream system. Stored verbatim on
// ingest; once resolved it points at its owning master entity.
type SourceRecord struct {
	ID             uuid.UUID        `json:"id"`
	SourceSystem   string           `json:"sourceSystem"`
	SourceKey      string           `json:"sourceKey"` // upstream primary key
	Kind           EntityKind       `json:"kind"`
	Name           string           `json:"name"`
	AliasNames     []string         `json:"aliasNames,omitempty"`
	DateOfBirth    *time.Time       `json:"dateOfBirth,omitempty"`
	Nationalities  []string         `json:"nationalities,omitempty"`
	Identifiers    []Identifier     `json:"identifiers,omitempty"`
	Addresses      []Address        `json:"addresses,omitempty"`
	Status         ResolutionStatus `json:"status"`
	MasterEntityID *uuid.UUID       `json:"masterEntityId,omitempty"`
	IngestedAt     time.Time        `json:"ingestedAt"`
	ResolvedAt     *time.Time       `json:"resolvedAt,omitempty"`
}

// MatchConfidence labels a pairwise comparison score.
type MatchConfidence string

const (
	ConfidenceDefinite MatchConfidence = "definite" // >= 0.95
	ConfidenceProbable MatchConfidence = "probable" // >= 0.80
	ConfidencePossible MatchConfidence = "possible" // >= 0.60
	ConfidenceUnlikely MatchConfidence = "unlikely"
)

// CandidateDecision is the human verdict on a pending match candidate.
type CandidateDecision string

const (
	DecisionApprove CandidateDecision = "approve"
	DecisionReject  CandidateDecision = "reject"
)

// MatchCandidate is a possible source-record-to-master-entity binding
// awaiting review. Auto-merge thresholds bypass this queue.
type MatchCandidate struct {
	ID             uuid.UUID       `json:"id"`
	SourceRecordID uuid.UUID       `json:"sourceRecordId"`
	MasterEntityID uuid.UUID       `json:"masterEntityId"`
	OverallScore   float64         `json:"overallScore"`
	FieldScores    map[string]float64 `json:"fieldScores"`
	Confidence     MatchConfidence `json:"confidence"`
	MatchedRule    string          `json:"matchedRule,omitempty"`
	Status         string          `json:"status"` // pending/approved/rejected
	CreatedAt      time.Time       `json:"createdAt"`
	ReviewedAt     *time.Time      `json:"reviewedAt,omitempty"`
	ReviewedBy     string          `json:"reviewedBy,omitempty"`
}

// ConfidenceLabel maps a pairwise score to its confidence band.
func ConfidenceLabel(score float64) MatchConfidence {
	switch {
	case score >= 0.95:
		return ConfidenceDefinite
	case score >= 0.80:
		return ConfidenceProbable
	case score >= 0.60:
		return ConfidencePossible
	default:
		return ConfidenceUnlikely
	}
}
