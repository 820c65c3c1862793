package models

import (
	"time"

	"github.com/google/uuid"
)

// Suspicious Activity Report Model
//
// SARs carry a multi-role approval chain: the report declares which roles
// must sign off, and it transitions to approved only when the union of
// collected approvals covers that set. Filing is permitted only from
// approved. Narratives are keyed by section (who/what/when/where/why/how)
// and every edit keeps the prior version.

// SARType classifies the filing.
type SARType string

const (
	SARInitial    SARType = "initial"
	SARContinuing SARType = "continuing"
	SARCorrected  SARType = "corrected"
	SARJoint      SARType = "joint"
)

// SARStatus is the report workflow state.
type SARStatus string

const (
	SARDraft         SARStatus = "draft"
	SARPendingReview SARStatus = "pending_review"
	SARApproved      SARStatus = "approved"
	SARSubmitted     SARStatus = "submitted"
	SARAcknowledged  SARStatus = "acknowledged"
	SARRejected      SARStatus = "rejected"
	SARAmended       SARStatus = "amended"
)

// SARSubject is a party named in the report.
type SARSubject struct {
	EntityID    *uuid.UUID `json:"entityId,omitempty"`
	Name        string     `json:"name"`
	Role        string     `json:"role"` // subject/beneficiary/conductor
	Identifier  string     `json:"identifier,omitempty"`
	AddedAt     time.Time  `json:"addedAt"`
}

// SuspiciousActivity is one activity record inside a SAR.
type SuspiciousActivity struct {
	ActivityType string    `json:"activityType"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	TotalAmount  Money     `json:"totalAmount"`
	Description  string    `json:"description,omitempty"`
}

// SARTransaction is a transaction detail attached to the report.
type SARTransaction struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Amount        Money     `json:"amount"`
	Date          time.Time `json:"date"`
	Description   string    `json:"description,omitempty"`
}

// NarrativeSection keys: who, what, when, where, why, how.
type NarrativeSection string

const (
	NarrativeWho   NarrativeSection = "who"
	NarrativeWhat  NarrativeSection = "what"
	NarrativeWhen  NarrativeSection = "when"
	NarrativeWhere NarrativeSection = "where"
	NarrativeWhy   NarrativeSection = "why"
	NarrativeHow   NarrativeSection = "how"
)

// ValidNarrativeSection reports whether s is one of the six sections.
func ValidNarrativeSection(s NarrativeSection) bool {
	switch s {
	case NarrativeWho, NarrativeWhat, NarrativeWhen, NarrativeWhere, NarrativeWhy, NarrativeHow:
		return true
	}
	return false
}

// NarrativeVersion is one versioned revision of a narrative section.
type NarrativeVersion struct {
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	WrittenAt time.Time `json:"writtenAt"`
}

// SARApproval records one role's sign-off.
type SARApproval struct {
	Role       string    `json:"role"` // compliance_officer/bsa_officer/...
	ApprovedBy string    `json:"approvedBy"`
	ApprovedAt time.Time `json:"approvedAt"`
}

// SARSubmission records one filing attempt.
type SARSubmission struct {
	Method      string    `json:"method"` // electronic/paper
	SubmittedAt time.Time `json:"submittedAt"`
	BSAID       string    `json:"bsaId,omitempty"`
	AckNumber   string    `json:"ackNumber,omitempty"`
}

// SAR is a suspicious activity report.
// Number format SAR-YYYYMMDD-NNNNNN is externally visible and fixed.
type SAR struct {
	ID                   uuid.UUID                               `json:"id"`
	Number               string                                  `json:"number"`
	Type                 SARType                                 `json:"type"`
	Status               SARStatus                               `json:"status"`
	CaseID               *uuid.UUID                              `json:"caseId,omitempty"`
	Subjects             []SARSubject                            `json:"subjects,omitempty"`
	Activities           []SuspiciousActivity                    `json:"activities,omitempty"`
	Transactions         []SARTransaction                        `json:"transactions,omitempty"`
	Narratives           map[NarrativeSection][]NarrativeVersion `json:"narratives,omitempty"`
	RequiredApprovals    []string                                `json:"requiredApprovals"`
	Approvals            []SARApproval                           `json:"approvals,omitempty"`
	Submissions          []SARSubmission                         `json:"submissions,omitempty"`
	FilingDeadline       time.Time                               `json:"filingDeadline"`
	AmendsSARNumber      string                                  `json:"amendsSarNumber,omitempty"`
	RejectionReason      string                                  `json:"rejectionReason,omitempty"`
	BSAID                string                                  `json:"bsaId,omitempty"`
	SubmittedAt          *time.Time                              `json:"submittedAt,omitempty"`
	AcknowledgedAt       *time.Time                              `json:"acknowledgedAt,omitempty"`
	CreatedAt            time.Time                               `json:"createdAt"`
	UpdatedAt            time.Time                               `json:"updatedAt"`
	PreparedBy           string                                  `json:"preparedBy,omitempty"`
	Version              int64                                   `json:"version"`
}

// ApprovedRoles returns the set of roles that have signed off so far.
func (s *SAR) ApprovedRoles() map[string]bool {
	roles := make(map[string]bool, len(s.Approvals))
	for _, a := range s.Approvals {
		roles[a.Role] = true
	}
	return roles
}

// FullyApproved reports whether every required role has approved.
func (s *SAR) FullyApproved() bool {
	approved := s.ApprovedRoles()
	for _, role := range s.RequiredApprovals {
		if !approved[role] {
			return false
		}
	}
	return true
}

// CurrentNarrative returns the latest revision of a section, if any.
func (s *SAR) CurrentNarrative(section NarrativeSection) (NarrativeVersion, bool) {
	versions := s.Narratives[section]
	if len(versions) == 0 {
		return NarrativeVersion{}, false
	}
	return versions[len(versions)-1], true
}
