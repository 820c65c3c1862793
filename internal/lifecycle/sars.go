package lifecycle

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/pkg/models"
)

// SAR Manager
//
// State machine: draft -> pending_review -> {approved, rejected -> draft};
// approved -> submitted -> acknowledged; amendment forks a new report that
// must reference the prior SAR number. Approval is multi-role: the report
// moves to approved only when the union of collected roles covers
// RequiredApprovals. Filing is permitted only from approved.

// Filing deadline offset from creation (regulatory 30-day clock).
const filingDeadline = 30 * 24 * time.Hour

// defaultApprovalRoles is used when a new SAR does not name its approvers.
var defaultApprovalRoles = []string{"compliance_officer", "bsa_officer"}

// CreateSAR is the input to SARManager.Create.
type CreateSAR struct {
	Type              models.SARType
	CaseID            *uuid.UUID
	RequiredApprovals []string
	PreparedBy        string
}

// SARManager owns the SAR book.
type SARManager struct {
	mu       sync.RWMutex
	sars     map[uuid.UUID]*models.SAR
	byNumber map[string]uuid.UUID
	sequence *Sequence
}

// NewSARManager creates a SAR manager.
func NewSARManager() *SARManager {
	return &SARManager{
		sars:     make(map[uuid.UUID]*models.SAR),
		byNumber: make(map[string]uuid.UUID),
		sequence: NewSequence("SAR"),
	}
}

// Create opens a new draft SAR with the regulatory filing deadline.
func (m *SARManager) Create(input CreateSAR) (*models.SAR, error) {
	if input.Type == "" {
		input.Type = models.SARInitial
	}
	required := input.RequiredApprovals
	if len(required) == 0 {
		required = append([]string(nil), defaultApprovalRoles...)
	}

	now := time.Now().UTC()
	sar := &models.SAR{
		ID:                uuid.New(),
		Number:            m.sequence.Next(now),
		Type:              input.Type,
		Status:            models.SARDraft,
		CaseID:            input.CaseID,
		RequiredApprovals: required,
		FilingDeadline:    now.Add(filingDeadline),
		PreparedBy:        input.PreparedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}

	m.mu.Lock()
	m.sars[sar.ID] = sar
	m.byNumber[sar.Number] = sar.ID
	m.mu.Unlock()

	log.Printf("[SARs] Created %s (%s)", sar.Number, sar.Type)
	return sar, nil
}

// Get returns a SAR by ID.
func (m *SARManager) Get(id uuid.UUID) (*models.SAR, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sar, ok := m.sars[id]
	if !ok {
		return nil, core.NotFound("SAR %s not found", id)
	}
	return sar, nil
}

// GetByNumber resolves a SAR by its external number.
func (m *SARManager) GetByNumber(number string) (*models.SAR, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byNumber[number]
	if !ok {
		return nil, core.NotFound("SAR %s not found", number)
	}
	return m.sars[id], nil
}

func (m *SARManager) editable(id uuid.UUID) (*models.SAR, error) {
	sar, ok := m.sars[id]
	if !ok {
		return nil, core.NotFound("SAR %s not found", id)
	}
	if sar.Status != models.SARDraft {
		return nil, core.Invalid("SAR %s is %s; only drafts are editable", sar.Number, sar.Status)
	}
	return sar, nil
}

// AddSubject names a party on a draft SAR.
func (m *SARManager) AddSubject(id uuid.UUID, subject models.SARSubject) (*models.SAR, error) {
	if subject.Name == "" {
		return nil, core.Invalid("subject name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sar, err := m.editable(id)
	if err != nil {
		return nil, err
	}
	subject.AddedAt = time.Now().UTC()
	sar.Subjects = append(sar.Subjects, subject)
	sar.UpdatedAt = subject.AddedAt
	sar.Version++
	return sar, nil
}

// AddActivity records a suspicious activity block on a draft SAR.
func (m *SARManager) AddActivity(id uuid.UUID, activity models.SuspiciousActivity) (*models.SAR, error) {
	if activity.ActivityType == "" {
		return nil, core.Invalid("activity type is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sar, err := m.editable(id)
	if err != nil {
		return nil, err
	}
	sar.Activities = append(sar.Activities, activity)
	sar.UpdatedAt = time.Now().UTC()
	sar.Version++
	return sar, nil
}

// AddTransaction attaches a transaction detail to a draft SAR.
func (m *SARManager) AddTransaction(id uuid.UUID, tx models.SARTransaction) (*models.SAR, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sar, err := m.editable(id)
	if err != nil {
		return nil, err
	}
	sar.Transactions = append(sar.Transactions, tx)
	sar.UpdatedAt = time.Now().UTC()
	sar.Version++
	return sar, nil
}

// AddNarrative appends a new revision of one narrative section. Prior
// revisions are kept.
func (m *SARManager) AddNarrative(id uuid.UUID, section models.NarrativeSection, content, author string) (*models.SAR, error) {
	if !models.ValidNarrativeSection(section) {
		return nil, core.Invalid("unknown narrative section %q", section)
	}
	if content == "" {
		return nil, core.Invalid("narrative content is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sar, err := m.editable(id)
	if err != nil {
		return nil, err
	}
	if sar.Narratives == nil {
		sar.Narratives = make(map[models.NarrativeSection][]models.NarrativeVersion)
	}
	sar.Narratives[section] = append(sar.Narratives[section], models.NarrativeVersion{
		Version:   len(sar.Narratives[section]) + 1,
		Content:   content,
		Author:    author,
		WrittenAt: time.Now().UTC(),
	})
	sar.UpdatedAt = time.Now().UTC()
	sar.Version++
	return sar, nil
}

// SubmitForApproval moves a draft into pending_review. The draft must
// name at least one subject and carry at least one narrative section.
func (m *SARManager) SubmitForApproval(id uuid.UUID) (*models.SAR, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sar, err := m.editable(id)
	if err != nil {
		return nil, err
	}
	if len(sar.Subjects) == 0 {
		return nil, core.Invalid("SAR %s has no subjects", sar.Number)
	}
	if len(sar.Narratives) == 0 {
		return nil, core.Invalid("SAR %s has no narrative", sar.Number)
	}

	sar.Status = models.SARPendingReview
	sar.UpdatedAt = time.Now().UTC()
	sar.Version++
	return sar, nil
}

// Approve records one role's sign-off. The SAR transitions to approved
// only when the union of approved roles covers the required set.
func (m *SARManager) Approve(id uuid.UUID, role, approver string) (*models.SAR, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sar, ok := m.sars[id]
	if !ok {
		return nil, core.NotFound("SAR %s not found", id)
	}
	if sar.Status != models.SARPendingReview {
		return nil, core.Invalid("SAR %s is not pending review (%s)", sar.Number, sar.Status)
	}
	if !containsRole(sar.RequiredApprovals, role) {
		return nil, core.Invalid("role %s is not required on SAR %s", role, sar.Number)
	}
	if sar.ApprovedRoles()[role] {
		return nil, core.Conflict("role %s already approved SAR %s", role, sar.Number)
	}

	now := time.Now().UTC()
	sar.Approvals = append(sar.Approvals, models.SARApproval{
		Role:       role,
		ApprovedBy: approver,
		ApprovedAt: now,
	})
	if sar.FullyApproved() {
		sar.Status = models.SARApproved
		log.Printf("[SARs] %s fully approved", sar.Number)
	}
	sar.UpdatedAt = now
	sar.Version++
	return sar, nil
}

// Reject sends a pending SAR back to draft with the reason recorded.
// Collected approvals are discarded; the next review starts clean.
func (m *SARManager) Reject(id uuid.UUID, reason string) (*models.SAR, error) {
	if reason == "" {
		return nil, core.Invalid("rejection reason is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sar, ok := m.sars[id]
	if !ok {
		return nil, core.NotFound("SAR %s not found", id)
	}
	if sar.Status != models.SARPendingReview {
		return nil, core.Invalid("SAR %s is not pending review (%s)", sar.Number, sar.Status)
	}

	sar.Status = models.SARDraft
	sar.RejectionReason = reason
	sar.Approvals = nil
	sar.UpdatedAt = time.Now().UTC()
	sar.Version++
	return sar, nil
}

// File submits an approved SAR to the regulator.
func (m *SARManager) File(id uuid.UUID, method string) (*models.SAR, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sar, ok := m.sars[id]
	if !ok {
		return nil, core.NotFound("SAR %s not found", id)
	}
	if sar.Status != models.SARApproved {
		return nil, core.Invalid("SAR must be approved before filing")
	}
	if method == "" {
		method = "electronic"
	}

	now := time.Now().UTC()
	sar.Status = models.SARSubmitted
	sar.SubmittedAt = &now
	// BSA tracking identifier is assigned at filing time; Acknowledge may
	// later replace it with the regulator's official one.
	if sar.BSAID == "" {
		sar.BSAID = "BSA-" + now.Format("20060102") + "-" + strings.ToUpper(uuid.NewString()[:8])
	}
	sar.Submissions = append(sar.Submissions, models.SARSubmission{
		Method:      method,
		SubmittedAt: now,
		BSAID:       sar.BSAID,
	})
	sar.UpdatedAt = now
	sar.Version++

	log.Printf("[SARs] %s filed (%s)", sar.Number, method)
	return sar, nil
}

// Acknowledge records the regulator's receipt of a submitted SAR.
func (m *SARManager) Acknowledge(id uuid.UUID, ackNumber, bsaID string) (*models.SAR, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sar, ok := m.sars[id]
	if !ok {
		return nil, core.NotFound("SAR %s not found", id)
	}
	if sar.Status != models.SARSubmitted {
		return nil, core.Invalid("SAR %s has not been submitted (%s)", sar.Number, sar.Status)
	}

	now := time.Now().UTC()
	sar.Status = models.SARAcknowledged
	sar.AcknowledgedAt = &now
	if bsaID != "" {
		sar.BSAID = bsaID
	}
	if n := len(sar.Submissions); n > 0 {
		sar.Submissions[n-1].AckNumber = ackNumber
		sar.Submissions[n-1].BSAID = sar.BSAID
	}
	sar.UpdatedAt = now
	sar.Version++
	return sar, nil
}

// Amend forks a new draft SAR referencing the prior report's number and
// marks the original amended. The fork copies subjects, activities,
// transactions and the latest narrative revisions.
func (m *SARManager) Amend(id uuid.UUID, preparedBy string) (*models.SAR, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prior, ok := m.sars[id]
	if !ok {
		return nil, core.NotFound("SAR %s not found", id)
	}
	if prior.Status == models.SARAmended {
		return nil, core.Invalid("SAR %s is already amended", prior.Number)
	}

	now := time.Now().UTC()
	amended := &models.SAR{
		ID:                uuid.New(),
		Number:            m.sequence.Next(now),
		Type:              models.SARCorrected,
		Status:            models.SARDraft,
		CaseID:            prior.CaseID,
		Subjects:          append([]models.SARSubject(nil), prior.Subjects...),
		Activities:        append([]models.SuspiciousActivity(nil), prior.Activities...),
		Transactions:      append([]models.SARTransaction(nil), prior.Transactions...),
		RequiredApprovals: append([]string(nil), prior.RequiredApprovals...),
		FilingDeadline:    now.Add(filingDeadline),
		AmendsSARNumber:   prior.Number,
		PreparedBy:        preparedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
	amended.Narratives = make(map[models.NarrativeSection][]models.NarrativeVersion)
	for section := range prior.Narratives {
		if latest, ok := prior.CurrentNarrative(section); ok {
			latest.Version = 1
			amended.Narratives[section] = []models.NarrativeVersion{latest}
		}
	}

	prior.Status = models.SARAmended
	prior.UpdatedAt = now
	prior.Version++

	m.sars[amended.ID] = amended
	m.byNumber[amended.Number] = amended.ID

	log.Printf("[SARs] %s amended by %s", prior.Number, amended.Number)
	return amended, nil
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
