package lifecycle

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

// Alert Manager
//
// State machine: new -> assigned -> under_review -> {escalated,
// closed_false_positive, closed_true_positive}; closed_true_positive ->
// sar_filed. The single back-edge is under_review -> assigned via
// reassignment. ClosedAt is set exactly on entry into a closed or
// sar_filed state; the due date is recomputed whenever severity changes;
// assignments and comments are append-only.

// alertTransitions enumerates the legal status edges.
var alertTransitions = map[models.AlertStatus][]models.AlertStatus{
	models.AlertNew:      {models.AlertAssigned},
	models.AlertAssigned: {models.AlertUnderReview},
	models.AlertUnderReview: {
		models.AlertAssigned, // reassignment
		models.AlertEscalated,
		models.AlertClosedFalsePositive,
		models.AlertClosedTruePositive,
	},
	models.AlertClosedTruePositive: {models.AlertSARFiled},
}

func alertCanTransition(from, to models.AlertStatus) bool {
	for _, next := range alertTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateAlert is the input to AlertManager.Create.
type CreateAlert struct {
	Severity    models.Severity
	Title       string
	Description string
	CustomerID  uuid.UUID
	AccountID   string
	PatternIDs  []uuid.UUID
	PatternType models.PatternType
	RiskScore   int
}

// AlertManager owns the alert book.
type AlertManager struct {
	mu       sync.RWMutex
	alerts   map[uuid.UUID]*models.Alert
	sequence *Sequence
	onCritical func(*models.Alert)
}

// NewAlertManager creates an alert manager. onCritical, when set, is
// invoked for every newly created critical-severity alert (notification
// sink hookup).
func NewAlertManager(onCritical func(*models.Alert)) *AlertManager {
	return &AlertManager{
		alerts:     make(map[uuid.UUID]*models.Alert),
		sequence:   NewSequence("ALT"),
		onCritical: onCritical,
	}
}

// Create opens a new alert in state new with an SLA-derived due date.
func (m *AlertManager) Create(input CreateAlert) (*models.Alert, error) {
	if input.Title == "" {
		return nil, core.Invalid("alert title is required")
	}
	if input.Severity == "" {
		input.Severity = models.SeverityMedium
	}

	now := time.Now().UTC()
	alert := &models.Alert{
		ID:          uuid.New(),
		Number:      m.sequence.Next(now),
		Status:      models.AlertNew,
		Severity:    input.Severity,
		Title:       input.Title,
		Description: input.Description,
		CustomerID:  input.CustomerID,
		AccountID:   input.AccountID,
		PatternIDs:  input.PatternIDs,
		PatternType: input.PatternType,
		RiskScore:   input.RiskScore,
		DueDate:     now.Add(models.AlertSLA(input.Severity)),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	m.mu.Lock()
	m.alerts[alert.ID] = alert
	m.mu.Unlock()

	log.Printf("[Alerts] Created %s (%s, %s)", alert.Number, alert.Severity, alert.PatternType)
	if alert.Severity == models.SeverityCritical && m.onCritical != nil {
		m.onCritical(alert)
	}
	return alert, nil
}

// Get returns an alert by ID.
func (m *AlertManager) Get(id uuid.UUID) (*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	alert, ok := m.alerts[id]
	if !ok {
		return nil, core.NotFound("alert %s not found", id)
	}
	return alert, nil
}

// Update edits severity, title or description under an optimistic version
// check. A severity change recomputes the due date from CreatedAt.
func (m *AlertManager) Update(id uuid.UUID, expectedVersion int64, severity models.Severity, title, description string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, core.NotFound("alert %s not found", id)
	}
	if alert.Version != expectedVersion {
		return nil, core.Conflict("alert %s modified concurrently (version %d, expected %d)", id, alert.Version, expectedVersion)
	}
	if alert.Status.IsClosed() {
		return nil, core.Invalid("alert %s is closed", alert.Number)
	}

	if severity != "" && severity != alert.Severity {
		alert.Severity = severity
		alert.DueDate = alert.CreatedAt.Add(models.AlertSLA(severity))
	}
	if title != "" {
		alert.Title = title
	}
	if description != "" {
		alert.Description = description
	}
	alert.Version++
	alert.UpdatedAt = time.Now().UTC()
	return alert, nil
}

// Assign moves the alert to assigned and appends to assignment history.
// Legal from new and, as reassignment, from under_review.
func (m *AlertManager) Assign(id uuid.UUID, assignee, assigner, note string) (*models.Alert, error) {
	if assignee == "" {
		return nil, core.Invalid("assignee is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, core.NotFound("alert %s not found", id)
	}
	if alert.Status != models.AlertNew && !alertCanTransition(alert.Status, models.AlertAssigned) {
		return nil, core.Invalid("cannot assign alert %s in state %s", alert.Number, alert.Status)
	}

	now := time.Now().UTC()
	alert.Assignments = append(alert.Assignments, models.Assignment{
		AssignedTo: assignee,
		AssignedBy: assigner,
		AssignedAt: now,
		Note:       note,
	})
	alert.Status = models.AlertAssigned
	alert.Version++
	alert.UpdatedAt = now
	return alert, nil
}

// StartReview moves an assigned alert into under_review.
func (m *AlertManager) StartReview(id uuid.UUID) (*models.Alert, error) {
	return m.transition(id, models.AlertUnderReview)
}

// Escalate moves an alert under review into escalated.
func (m *AlertManager) Escalate(id uuid.UUID) (*models.Alert, error) {
	return m.transition(id, models.AlertEscalated)
}

func (m *AlertManager) transition(id uuid.UUID, to models.AlertStatus) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, core.NotFound("alert %s not found", id)
	}
	if !alertCanTransition(alert.Status, to) {
		return nil, core.Invalid("alert %s cannot move from %s to %s", alert.Number, alert.Status, to)
	}
	alert.Status = to
	alert.Version++
	alert.UpdatedAt = time.Now().UTC()
	return alert, nil
}

// Close resolves an alert under review as a true or false positive.
func (m *AlertManager) Close(id uuid.UUID, isTruePositive bool, notes string) (*models.Alert, error) {
	target := models.AlertClosedFalsePositive
	if isTruePositive {
		target = models.AlertClosedTruePositive
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, core.NotFound("alert %s not found", id)
	}
	if !alertCanTransition(alert.Status, target) {
		return nil, core.Invalid("alert %s cannot close from state %s", alert.Number, alert.Status)
	}

	now := time.Now().UTC()
	alert.Status = target
	alert.ClosedAt = &now
	alert.Resolution = notes
	alert.Version++
	alert.UpdatedAt = now

	log.Printf("[Alerts] %s closed as %s", alert.Number, target)
	return alert, nil
}

// MarkSARFiled records a filed SAR against a true-positive alert.
func (m *AlertManager) MarkSARFiled(id uuid.UUID) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, core.NotFound("alert %s not found", id)
	}
	if !alertCanTransition(alert.Status, models.AlertSARFiled) {
		return nil, core.Invalid("alert %s must be closed_true_positive before SAR filing, is %s", alert.Number, alert.Status)
	}

	now := time.Now().UTC()
	alert.Status = models.AlertSARFiled
	if alert.ClosedAt == nil {
		alert.ClosedAt = &now
	}
	alert.Version++
	alert.UpdatedAt = now
	return alert, nil
}

// AddComment appends an analyst comment.
func (m *AlertManager) AddComment(id uuid.UUID, author, text string) (*models.Alert, error) {
	if text == "" {
		return nil, core.Invalid("comment text is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, core.NotFound("alert %s not found", id)
	}
	alert.Comments = append(alert.Comments, models.Comment{
		Author:    author,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	alert.UpdatedAt = time.Now().UTC()
	return alert, nil
}

// AddEvidence appends a document-store reference.
func (m *AlertManager) AddEvidence(id uuid.UUID, description, documentPath, addedBy string) (*models.Alert, error) {
	if documentPath == "" {
		return nil, core.Invalid("evidence document path is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, core.NotFound("alert %s not found", id)
	}
	alert.Evidence = append(alert.Evidence, models.Evidence{
		Description:  description,
		DocumentPath: documentPath,
		AddedBy:      addedBy,
		AddedAt:      time.Now().UTC(),
	})
	alert.UpdatedAt = time.Now().UTC()
	return alert, nil
}

// LinkCase associates the alert with a case.
func (m *AlertManager) LinkCase(id, caseID uuid.UUID) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, core.NotFound("alert %s not found", id)
	}
	alert.CaseID = &caseID
	alert.UpdatedAt = time.Now().UTC()
	return alert, nil
}

// Search filters the alert book and returns one page of summaries,
// ordered by creation time descending.
func (m *AlertManager) Search(criteria models.AlertSearchCriteria) models.Page[models.AlertSummary] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	var hits []*models.Alert
	for _, alert := range m.alerts {
		if criteria.Status != "" && alert.Status != criteria.Status {
			continue
		}
		if criteria.Severity != "" && alert.Severity != criteria.Severity {
			continue
		}
		if criteria.CustomerID != nil && alert.CustomerID != *criteria.CustomerID {
			continue
		}
		if criteria.AssignedTo != "" && !strings.EqualFold(alert.AssignedTo(), criteria.AssignedTo) {
			continue
		}
		if criteria.PatternType != "" && alert.PatternType != criteria.PatternType {
			continue
		}
		if criteria.OverdueOnly && (alert.Status.IsClosed() || !alert.DueDate.Before(now)) {
			continue
		}
		hits = append(hits, alert)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].CreatedAt.After(hits[j].CreatedAt) })

	page, size := criteria.Page, criteria.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	start := (page - 1) * size
	end := start + size
	if start > len(hits) {
		start = len(hits)
	}
	if end > len(hits) {
		end = len(hits)
	}

	items := make([]models.AlertSummary, 0, end-start)
	for _, alert := range hits[start:end] {
		items = append(items, models.AlertSummary{
			ID:         alert.ID,
			Number:     alert.Number,
			Status:     alert.Status,
			Severity:   alert.Severity,
			Title:      alert.Title,
			CustomerID: alert.CustomerID,
			RiskScore:  alert.RiskScore,
			AssignedTo: alert.AssignedTo(),
			DueDate:    alert.DueDate,
			CreatedAt:  alert.CreatedAt,
		})
	}

	return models.Page[models.AlertSummary]{
		Items:      items,
		TotalCount: len(hits),
		Page:       page,
		PageSize:   size,
	}
}

// Statistics aggregates the alert book.
func (m *AlertManager) Statistics() models.AlertStatistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	stats := models.AlertStatistics{
		ByStatus:   make(map[models.AlertStatus]int),
		BySeverity: make(map[models.Severity]int),
	}
	for _, alert := range m.alerts {
		stats.Total++
		stats.ByStatus[alert.Status]++
		stats.BySeverity[alert.Severity]++
		if !alert.Status.IsClosed() {
			stats.Open++
			if alert.DueDate.Before(now) {
				stats.Overdue++
			}
		}
		if alert.Status == models.AlertSARFiled {
			stats.SARsFiled++
		}
	}
	return stats
}
