package models

import (
	"time"

	"github.com/google/uuid"
)

// ListType distinguishes the screening list families.
type ListType string

const (
	ListSanctions ListType = "sanctions"
	ListPEP       ListType = "pep"
	ListInternal  ListType = "internal"
	ListAdverse   ListType = "adverse_media"
)

// ListEntry is one screenable record on a sanctions/PEP/watch list.
type ListEntry struct {
	ID            uuid.UUID    `json:"id"`
	ListID        uuid.UUID    `json:"listId"`
	PrimaryName   string       `json:"primaryName"`
	Aliases       []string     `json:"aliases,omitempty"`
	DateOfBirth   *time.Time   `json:"dateOfBirth,omitempty"`
	Nationalities []string     `json:"nationalities,omitempty"`
	Identifiers   []Identifier `json:"identifiers,omitempty"`
	Program       string       `json:"program,omitempty"` // e.g. OFAC SDN, EU, UN
	Active        bool         `json:"active"`
	ListedAt      time.Time    `json:"listedAt"`
}

// ScreeningList is a named immutable list snapshot.
type ScreeningList struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Type      ListType    `json:"type"`
	Entries   []ListEntry `json:"entries"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// ScreeningRequest is one subject to screen against one or more lists.
type ScreeningRequest struct {
	ID            uuid.UUID    `json:"id"`
	SubjectID     uuid.UUID    `json:"subjectId"` // customer / master entity
	Name          string       `json:"name"`
	Aliases       []string     `json:"aliases,omitempty"`
	DateOfBirth   *time.Time   `json:"dateOfBirth,omitempty"`
	Nationalities []string     `json:"nationalities,omitempty"`
	Identifiers   []Identifier `json:"identifiers,omitempty"`
	ListIDs       []uuid.UUID  `json:"listIds,omitempty"` // empty = all lists
	Threshold     float64      `json:"threshold,omitempty"` // default 0.8
	RequestedBy   string       `json:"requestedBy,omitempty"`
}

// MatchType bands the name score: exact >= 0.95, fuzzy >= 0.7, else partial.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchFuzzy   MatchType = "fuzzy"
	MatchPartial MatchType = "partial"
)

// FieldScores breaks a match down per compared field.
type FieldScores struct {
	Name        float64 `json:"name"`
	Identifier  float64 `json:"identifier"`
	DOB         float64 `json:"dob"`
	Nationality float64 `json:"nationality"`
}

// ScreeningMatch is one list entry scored against the request subject.
type ScreeningMatch struct {
	ListEntryID uuid.UUID   `json:"listEntryId"`
	ListID      uuid.UUID   `json:"listId"`
	EntryName   string      `json:"entryName"`
	Program     string      `json:"program,omitempty"`
	OverallScore float64    `json:"overallScore"`
	FieldScores FieldScores `json:"fieldScores"`
	MatchType   MatchType   `json:"matchType"`
}

// ScreeningStatus is the review state of a screening result.
type ScreeningStatus string

const (
	ScreeningPendingReview  ScreeningStatus = "pending_review"
	ScreeningConfirmedMatch ScreeningStatus = "confirmed_match"
	ScreeningFalsePositive  ScreeningStatus = "false_positive"
	ScreeningPotentialMatch ScreeningStatus = "potential_match"
	ScreeningEscalated      ScreeningStatus = "escalated"
	ScreeningClear          ScreeningStatus = "clear"
)

// ScreeningResult is the outcome of one request against N lists.
// Matches are sorted by (score desc, list entry ID asc).
type ScreeningResult struct {
	ID          uuid.UUID        `json:"id"`
	RequestID   uuid.UUID        `json:"requestId"`
	SubjectID   uuid.UUID        `json:"subjectId"`
	SubjectName string           `json:"subjectName"`
	Matches     []ScreeningMatch `json:"matches"`
	Status      ScreeningStatus  `json:"status"`
	ScreenedAt  time.Time        `json:"screenedAt"`
	ListsChecked int             `json:"listsChecked"`
}

// BestScore returns the highest match score, or 0 with no matches.
func (r *ScreeningResult) BestScore() float64 {
	if len(r.Matches) == 0 {
		return 0
	}
	return r.Matches[0].OverallScore
}

// BatchJobStatus is the lifecycle of a batch screening/analysis job.
type BatchJobStatus string

const (
	JobPending   BatchJobStatus = "pending"
	JobRunning   BatchJobStatus = "running"
	JobCompleted BatchJobStatus = "completed"
	JobCancelled BatchJobStatus = "cancelled"
	JobFailed    BatchJobStatus = "failed"
)

// BatchJobProgress are the atomically maintained batch counters.
type BatchJobProgress struct {
	Total        int `json:"total"`
	Processed    int `json:"processed"`
	MatchesFound int `json:"matchesFound"`
	Errors       int `json:"errors"`
}
