package lifecycle

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/pkg/models"
)

// Case Manager
//
// State machine: draft -> open -> in_progress -> {pending_review,
// escalated, pending_sar}; pending_sar -> sar_filed -> closed; any open
// state can close directly. The timeline is append-only and written
// automatically on every state-changing operation.

var caseTransitions = map[models.CaseStatus][]models.CaseStatus{
	models.CaseDraft:      {models.CaseOpen},
	models.CaseOpen:       {models.CaseInProgress},
	models.CaseInProgress: {models.CasePendingReview, models.CaseEscalated, models.CasePendingSAR},
	models.CasePendingReview: {models.CaseInProgress, models.CaseEscalated, models.CasePendingSAR},
	models.CaseEscalated:  {models.CaseInProgress, models.CasePendingSAR},
	models.CasePendingSAR: {models.CaseSARFiled},
}

func caseCanTransition(from, to models.CaseStatus) bool {
	if to == models.CaseClosedNoAction || to == models.CaseClosedWithAction {
		return !from.IsClosed()
	}
	for _, next := range caseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateCase is the input to CaseManager.Create.
type CreateCase struct {
	Title      string
	Category   models.CaseCategory
	Priority   models.CasePriority
	CustomerID uuid.UUID
	AlertIDs   []uuid.UUID
	CreatedBy  string
}

// CaseManager owns the case book.
type CaseManager struct {
	mu       sync.RWMutex
	cases    map[uuid.UUID]*models.Case
	sequence *Sequence
}

// NewCaseManager creates a case manager.
func NewCaseManager() *CaseManager {
	return &CaseManager{
		cases:    make(map[uuid.UUID]*models.Case),
		sequence: NewSequence("CASE"),
	}
}

// Create opens a new case in draft with an SLA-derived due date.
func (m *CaseManager) Create(input CreateCase) (*models.Case, error) {
	if input.Title == "" {
		return nil, core.Invalid("case title is required")
	}
	if input.Category == "" {
		input.Category = models.CategoryOther
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}

	now := time.Now().UTC()
	c := &models.Case{
		ID:         uuid.New(),
		Number:     m.sequence.Next(now),
		Title:      input.Title,
		Category:   input.Category,
		Priority:   input.Priority,
		Status:     models.CaseDraft,
		CustomerID: input.CustomerID,
		AlertIDs:   input.AlertIDs,
		DueDate:    now.Add(models.CaseSLA(input.Priority)),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	c.Timeline = append(c.Timeline, models.TimelineEntry{
		Timestamp:   now,
		EventType:   "created",
		Description: fmt.Sprintf("Case created (%s, %s priority)", c.Category, c.Priority),
		Actor:       input.CreatedBy,
	})

	m.mu.Lock()
	m.cases[c.ID] = c
	m.mu.Unlock()

	log.Printf("[Cases] Created %s (%s)", c.Number, c.Category)
	return c, nil
}

// Get returns a case by ID.
func (m *CaseManager) Get(id uuid.UUID) (*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, core.NotFound("case %s not found", id)
	}
	return c, nil
}

func (m *CaseManager) locked(id uuid.UUID) (*models.Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return nil, core.NotFound("case %s not found", id)
	}
	return c, nil
}

func appendTimeline(c *models.Case, eventType, description, actor string) {
	now := time.Now().UTC()
	c.Timeline = append(c.Timeline, models.TimelineEntry{
		Timestamp:   now,
		EventType:   eventType,
		Description: description,
		Actor:       actor,
	})
	c.UpdatedAt = now
	c.Version++
}

// Transition moves a case to a new status with timeline recording.
func (m *CaseManager) Transition(id uuid.UUID, to models.CaseStatus, actor string) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.locked(id)
	if err != nil {
		return nil, err
	}
	if !caseCanTransition(c.Status, to) {
		return nil, core.Invalid("case %s cannot move from %s to %s", c.Number, c.Status, to)
	}
	from := c.Status
	c.Status = to
	appendTimeline(c, "status_change", fmt.Sprintf("Status %s -> %s", from, to), actor)
	return c, nil
}

// Open moves a draft case to open.
func (m *CaseManager) Open(id uuid.UUID, actor string) (*models.Case, error) {
	return m.Transition(id, models.CaseOpen, actor)
}

// Assign sets the investigator and moves a freshly opened case into
// progress.
func (m *CaseManager) Assign(id uuid.UUID, assignee, actor string) (*models.Case, error) {
	if assignee == "" {
		return nil, core.Invalid("assignee is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.locked(id)
	if err != nil {
		return nil, err
	}
	if c.Status.IsClosed() {
		return nil, core.Invalid("case %s is closed", c.Number)
	}
	c.AssignedTo = assignee
	appendTimeline(c, "assignment", fmt.Sprintf("Assigned to %s", assignee), actor)
	if c.Status == models.CaseOpen {
		c.Status = models.CaseInProgress
		appendTimeline(c, "status_change", "Status open -> in_progress", actor)
	}
	return c, nil
}

// AddFinding records an investigator conclusion.
func (m *CaseManager) AddFinding(id uuid.UUID, summary, detail string, severity models.Severity, actor string) (*models.Case, error) {
	if summary == "" {
		return nil, core.Invalid("finding summary is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.locked(id)
	if err != nil {
		return nil, err
	}
	if c.Status.IsClosed() {
		return nil, core.Invalid("case %s is closed", c.Number)
	}
	c.Findings = append(c.Findings, models.Finding{
		ID:         uuid.New(),
		Summary:    summary,
		Detail:     detail,
		Severity:   severity,
		RecordedBy: actor,
		RecordedAt: time.Now().UTC(),
	})
	appendTimeline(c, "finding_added", summary, actor)
	return c, nil
}

// AddDocument attaches a document-store reference.
func (m *CaseManager) AddDocument(id uuid.UUID, name, documentPath, actor string) (*models.Case, error) {
	if documentPath == "" {
		return nil, core.Invalid("document path is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.locked(id)
	if err != nil {
		return nil, err
	}
	c.Documents = append(c.Documents, models.CaseDocument{
		ID:           uuid.New(),
		Name:         name,
		DocumentPath: documentPath,
		AddedBy:      actor,
		AddedAt:      time.Now().UTC(),
	})
	appendTimeline(c, "document_added", name, actor)
	return c, nil
}

// AddRelatedEntity links a master entity to the case with a role.
func (m *CaseManager) AddRelatedEntity(id, entityID uuid.UUID, role, actor string) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.locked(id)
	if err != nil {
		return nil, err
	}
	c.RelatedEntities = append(c.RelatedEntities, models.RelatedEntity{
		EntityID: entityID,
		Role:     role,
		AddedAt:  time.Now().UTC(),
	})
	appendTimeline(c, "related_entity_added", fmt.Sprintf("Entity %s as %s", entityID, role), actor)
	return c, nil
}

// LinkAlert attaches an alert to the case.
func (m *CaseManager) LinkAlert(id, alertID uuid.UUID, actor string) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.locked(id)
	if err != nil {
		return nil, err
	}
	for _, existing := range c.AlertIDs {
		if existing == alertID {
			return c, nil
		}
	}
	c.AlertIDs = append(c.AlertIDs, alertID)
	appendTimeline(c, "alert_linked", fmt.Sprintf("Alert %s linked", alertID), actor)
	return c, nil
}

// LinkSAR attaches a SAR reference to the case.
func (m *CaseManager) LinkSAR(id, sarID uuid.UUID, actor string) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.locked(id)
	if err != nil {
		return nil, err
	}
	c.SARIDs = append(c.SARIDs, sarID)
	appendTimeline(c, "sar_linked", fmt.Sprintf("SAR %s linked", sarID), actor)
	return c, nil
}

// Escalate moves the case to escalated.
func (m *CaseManager) Escalate(id uuid.UUID, reason, actor string) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.locked(id)
	if err != nil {
		return nil, err
	}
	if !caseCanTransition(c.Status, models.CaseEscalated) {
		return nil, core.Invalid("case %s cannot escalate from %s", c.Number, c.Status)
	}
	from := c.Status
	c.Status = models.CaseEscalated
	appendTimeline(c, "escalation", fmt.Sprintf("Escalated from %s: %s", from, reason), actor)
	return c, nil
}

// Close resolves the case. resolutionType no_action maps to
// closed_no_action, anything else to closed_with_action.
func (m *CaseManager) Close(id uuid.UUID, resolutionType, summary, actor string) (*models.Case, error) {
	target := models.CaseClosedWithAction
	if resolutionType == "no_action" {
		target = models.CaseClosedNoAction
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.locked(id)
	if err != nil {
		return nil, err
	}
	if !caseCanTransition(c.Status, target) {
		return nil, core.Invalid("case %s is already closed", c.Number)
	}

	now := time.Now().UTC()
	c.Status = target
	c.ClosedAt = &now
	c.ResolutionType = resolutionType
	c.ResolutionSummary = summary
	appendTimeline(c, "closed", fmt.Sprintf("Closed (%s): %s", resolutionType, summary), actor)

	log.Printf("[Cases] %s closed as %s", c.Number, target)
	return c, nil
}

// Search filters the case book with pagination, newest first.
func (m *CaseManager) Search(criteria models.CaseSearchCriteria) models.Page[*models.Case] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []*models.Case
	for _, c := range m.cases {
		if criteria.Status != "" && c.Status != criteria.Status {
			continue
		}
		if criteria.Category != "" && c.Category != criteria.Category {
			continue
		}
		if criteria.Priority != "" && c.Priority != criteria.Priority {
			continue
		}
		if criteria.CustomerID != nil && c.CustomerID != *criteria.CustomerID {
			continue
		}
		if criteria.AssignedTo != "" && !strings.EqualFold(c.AssignedTo, criteria.AssignedTo) {
			continue
		}
		hits = append(hits, c)
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

	return models.Page[*models.Case]{
		Items:      hits[start:end],
		TotalCount: len(hits),
		Page:       page,
		PageSize:   size,
	}
}

// Statistics aggregates the case book.
func (m *CaseManager) Statistics() models.CaseStatistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	stats := models.CaseStatistics{
		ByStatus:   make(map[models.CaseStatus]int),
		ByCategory: make(map[models.CaseCategory]int),
	}
	for _, c := range m.cases {
		stats.Total++
		stats.ByStatus[c.Status]++
		stats.ByCategory[c.Category]++
		if !c.Status.IsClosed() {
			stats.Open++
			if c.DueDate.Before(now) {
				stats.Overdue++
			}
		}
	}
	return stats
}
