package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertStatus is the alert workflow state. Transitions form a DAG; the
// only back-edge is under_review -> assigned via reassignment.
type AlertStatus string

const (
	AlertNew                 AlertStatus = "new"
	AlertAssigned            AlertStatus = "assigned"
	AlertUnderReview         AlertStatus = "under_review"
	AlertEscalated           AlertStatus = "escalated"
	AlertClosedFalsePositive AlertStatus = "closed_false_positive"
	AlertClosedTruePositive  AlertStatus = "closed_true_positive"
	AlertSARFiled            AlertStatus = "sar_filed"
)

// IsClosed reports whether the status is terminal for working purposes.
func (s AlertStatus) IsClosed() bool {
	return s == AlertClosedFalsePositive || s == AlertClosedTruePositive || s == AlertSARFiled
}

// AlertSLA maps severity to the review deadline offset.
func AlertSLA(sev Severity) time.Duration {
	switch sev {
	case SeverityCritical:
		return 3 * 24 * time.Hour
	case SeverityHigh:
		return 7 * 24 * time.Hour
	case SeverityMedium:
		return 14 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Assignment is one entry in the append-only assignment history.
type Assignment struct {
	AssignedTo string    `json:"assignedTo"`
	AssignedBy string    `json:"assignedBy"`
	AssignedAt time.Time `json:"assignedAt"`
	Note       string    `json:"note,omitempty"`
}

// Comment is an append-only analyst comment on an alert.
type Comment struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Evidence is an attached artifact reference. The core stores the path,
// never the bytes (document store is an external collaborator).
type Evidence struct {
	Description string    `json:"description"`
	DocumentPath string   `json:"documentPath"`
	AddedBy     string    `json:"addedBy"`
	AddedAt     time.Time `json:"addedAt"`
}

// Alert materializes one or more detected patterns into a workflow object.
// Number format ALT-YYYYMMDD-NNNNNN is externally visible and fixed.
type Alert struct {
	ID          uuid.UUID     `json:"id"`
	Number      string        `json:"number"`
	Status      AlertStatus   `json:"status"`
	Severity    Severity      `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	CustomerID  uuid.UUID     `json:"customerId"`
	AccountID   string        `json:"accountId,omitempty"`
	PatternIDs  []uuid.UUID   `json:"patternIds,omitempty"`
	PatternType PatternType   `json:"patternType,omitempty"`
	RiskScore   int           `json:"riskScore"` // 0-100
	DueDate     time.Time     `json:"dueDate"`
	Assignments []Assignment  `json:"assignments,omitempty"`
	Comments    []Comment     `json:"comments,omitempty"`
	Evidence    []Evidence    `json:"evidence,omitempty"`
	CaseID      *uuid.UUID    `json:"caseId,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	ClosedAt    *time.Time    `json:"closedAt,omitempty"`
	Resolution  string        `json:"resolution,omitempty"`
	Version     int64         `json:"version"` // optimistic-lock counter
}

// AssignedTo returns the current assignee, if any.
func (a *Alert) AssignedTo() string {
	if len(a.Assignments) == 0 {
		return ""
	}
	return a.Assignments[len(a.Assignments)-1].AssignedTo
}

// AlertSummary is the search-result projection of an alert.
type AlertSummary struct {
	ID         uuid.UUID   `json:"id"`
	Number     string      `json:"number"`
	Status     AlertStatus `json:"status"`
	Severity   Severity    `json:"severity"`
	Title      string      `json:"title"`
	CustomerID uuid.UUID   `json:"customerId"`
	RiskScore  int         `json:"riskScore"`
	AssignedTo string      `json:"assignedTo,omitempty"`
	DueDate    time.Time   `json:"dueDate"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// AlertSearchCriteria filters alert searches. Zero values mean "any".
type AlertSearchCriteria struct {
	Status      AlertStatus `json:"status,omitempty"`
	Severity    Severity    `json:"severity,omitempty"`
	CustomerID  *uuid.UUID  `json:"customerId,omitempty"`
	AssignedTo  string      `json:"assignedTo,omitempty"`
	PatternType PatternType `json:"patternType,omitempty"`
	OverdueOnly bool        `json:"overdueOnly,omitempty"`
	Page        int         `json:"page,omitempty"`
	PageSize    int         `json:"pageSize,omitempty"`
}

// AlertStatistics is the aggregate dashboard view of the alert book.
type AlertStatistics struct {
	Total      int                 `json:"total"`
	ByStatus   map[AlertStatus]int `json:"byStatus"`
	BySeverity map[Severity]int    `json:"bySeverity"`
	Open       int                 `json:"open"`
	Overdue    int                 `json:"overdue"`
	SARsFiled  int                 `json:"sarsFiled"`
}

// Page is a generic offset-paginated result set.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
}
