package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/lifecycle"
	"github.com/rawblock/aml-engine/pkg/models"
)

// Investigation Handlers
//
// Alert, case, SAR and workflow commands. Each handler binds the request,
// delegates to the core and writes the mutated object through to the
// persistence adapter when one is connected.

func (h *APIHandler) persistAlert(alert *models.Alert) {
	if h.dbStore == nil || alert == nil {
		return
	}
	if err := h.dbStore.SaveAlert(context.Background(), alert); err != nil {
		log.Printf("[API] Failed to persist alert %s: %v", alert.Number, err)
	}
}

func (h *APIHandler) persistCase(c *models.Case) {
	if h.dbStore == nil || c == nil {
		return
	}
	if err := h.dbStore.SaveCase(context.Background(), c); err != nil {
		log.Printf("[API] Failed to persist case %s: %v", c.Number, err)
	}
}

func (h *APIHandler) persistSAR(sar *models.SAR) {
	if h.dbStore == nil || sar == nil {
		return
	}
	if err := h.dbStore.SaveSAR(context.Background(), sar); err != nil {
		log.Printf("[API] Failed to persist SAR %s: %v", sar.Number, err)
	}
}

// POST /api/v1/alerts
func (h *APIHandler) handleCreateAlert(c *gin.Context) {
	var req struct {
		Severity    models.Severity    `json:"severity"`
		Title       string             `json:"title" binding:"required"`
		Description string             `json:"description"`
		CustomerID  uuid.UUID          `json:"customerId"`
		AccountID   string             `json:"accountId"`
		PatternType models.PatternType `json:"patternType"`
		RiskScore   int                `json:"riskScore"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	alert, err := h.core.Alerts.Create(lifecycle.CreateAlert{
		Severity:    req.Severity,
		Title:       req.Title,
		Description: req.Description,
		CustomerID:  req.CustomerID,
		AccountID:   req.AccountID,
		PatternType: req.PatternType,
		RiskScore:   req.RiskScore,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistAlert(alert)
	c.JSON(http.StatusCreated, alert)
}

// GET /api/v1/alerts/:id
func (h *APIHandler) handleGetAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	alert, err := h.core.Alerts.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// PUT /api/v1/alerts/:id
func (h *APIHandler) handleUpdateAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		ExpectedVersion int64           `json:"expectedVersion" binding:"required"`
		Severity        models.Severity `json:"severity"`
		Title           string          `json:"title"`
		Description     string          `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	alert, err := h.core.Alerts.Update(id, req.ExpectedVersion, req.Severity, req.Title, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistAlert(alert)
	c.JSON(http.StatusOK, alert)
}

// POST /api/v1/alerts/:id/assign
func (h *APIHandler) handleAssignAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Assignee string `json:"assignee" binding:"required"`
		Assigner string `json:"assigner"`
		Note     string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	alert, err := h.core.Alerts.Assign(id, req.Assignee, req.Assigner, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistAlert(alert)
	c.JSON(http.StatusOK, alert)
}

// POST /api/v1/alerts/:id/review
func (h *APIHandler) handleReviewAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	alert, err := h.core.Alerts.StartReview(id)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistAlert(alert)
	c.JSON(http.StatusOK, alert)
}

// POST /api/v1/alerts/:id/escalate
func (h *APIHandler) handleEscalateAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	alert, err := h.core.Alerts.Escalate(id)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistAlert(alert)
	c.JSON(http.StatusOK, alert)
}

// POST /api/v1/alerts/:id/close
func (h *APIHandler) handleCloseAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		IsTruePositive bool   `json:"isTruePositive"`
		Notes          string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	alert, err := h.core.Alerts.Close(id, req.IsTruePositive, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistAlert(alert)
	c.JSON(http.StatusOK, alert)
}

// POST /api/v1/alerts/:id/comments
func (h *APIHandler) handleAddComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Author string `json:"author" binding:"required"`
		Text   string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	alert, err := h.core.Alerts.AddComment(id, req.Author, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// POST /api/v1/alerts/:id/evidence
func (h *APIHandler) handleAddEvidence(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Description  string `json:"description" binding:"required"`
		DocumentPath string `json:"documentPath" binding:"required"`
		AddedBy      string `json:"addedBy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	alert, err := h.core.Alerts.AddEvidence(id, req.Description, req.DocumentPath, req.AddedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// POST /api/v1/alerts/search
func (h *APIHandler) handleSearchAlerts(c *gin.Context) {
	var criteria models.AlertSearchCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.core.Alerts.Search(criteria))
}

// GET /api/v1/alerts/statistics
func (h *APIHandler) handleAlertStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.core.Alerts.Statistics())
}

// POST /api/v1/cases
func (h *APIHandler) handleCreateCase(c *gin.Context) {
	var req struct {
		Title      string              `json:"title" binding:"required"`
		Category   models.CaseCategory `json:"category"`
		Priority   models.CasePriority `json:"priority"`
		CustomerID uuid.UUID           `json:"customerId"`
		AlertIDs   []uuid.UUID         `json:"alertIds"`
		CreatedBy  string              `json:"createdBy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	created, err := h.core.Cases.Create(lifecycle.CreateCase{
		Title:      req.Title,
		Category:   req.Category,
		Priority:   req.Priority,
		CustomerID: req.CustomerID,
		AlertIDs:   req.AlertIDs,
		CreatedBy:  req.CreatedBy,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistCase(created)
	c.JSON(http.StatusCreated, created)
}

// GET /api/v1/cases/:id
func (h *APIHandler) handleGetCase(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	found, err := h.core.Cases.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

// POST /api/v1/cases/:id/open
func (h *APIHandler) handleOpenCase(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Actor string `json:"actor"`
	}
	c.ShouldBindJSON(&req)
	opened, err := h.core.Cases.Open(id, req.Actor)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistCase(opened)
	c.JSON(http.StatusOK, opened)
}

// POST /api/v1/cases/:id/assign
func (h *APIHandler) handleAssignCase(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Assignee string `json:"assignee" binding:"required"`
		Actor    string `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	assigned, err := h.core.Cases.Assign(id, req.Assignee, req.Actor)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistCase(assigned)
	c.JSON(http.StatusOK, assigned)
}

// POST /api/v1/cases/:id/findings
func (h *APIHandler) handleAddFinding(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Summary  string          `json:"summary" binding:"required"`
		Detail   string          `json:"detail"`
		Severity models.Severity `json:"severity"`
		Actor    string          `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	updated, err := h.core.Cases.AddFinding(id, req.Summary, req.Detail, req.Severity, req.Actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// POST /api/v1/cases/:id/documents
func (h *APIHandler) handleAddDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Name         string `json:"name" binding:"required"`
		DocumentPath string `json:"documentPath" binding:"required"`
		Actor        string `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	updated, err := h.core.Cases.AddDocument(id, req.Name, req.DocumentPath, req.Actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// POST /api/v1/cases/:id/entities
func (h *APIHandler) handleAddRelatedEntity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		EntityID uuid.UUID `json:"entityId" binding:"required"`
		Role     string    `json:"role"`
		Actor    string    `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	updated, err := h.core.Cases.AddRelatedEntity(id, req.EntityID, req.Role, req.Actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// POST /api/v1/cases/:id/alerts
func (h *APIHandler) handleLinkAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		AlertID uuid.UUID `json:"alertId" binding:"required"`
		Actor   string    `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	updated, err := h.core.Cases.LinkAlert(id, req.AlertID, req.Actor)
	if err != nil {
		writeError(c, err)
		return
	}
	if alert, aerr := h.core.Alerts.LinkCase(req.AlertID, id); aerr == nil {
		h.persistAlert(alert)
	}
	c.JSON(http.StatusOK, updated)
}

// POST /api/v1/cases/:id/escalate
func (h *APIHandler) handleEscalateCase(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required"`
		Actor  string `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	escalated, err := h.core.Cases.Escalate(id, req.Reason, req.Actor)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistCase(escalated)
	c.JSON(http.StatusOK, escalated)
}

// POST /api/v1/cases/:id/close
func (h *APIHandler) handleCloseCase(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		ResolutionType string `json:"resolutionType" binding:"required"`
		Summary        string `json:"summary" binding:"required"`
		Actor          string `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	closed, err := h.core.Cases.Close(id, req.ResolutionType, req.Summary, req.Actor)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistCase(closed)
	c.JSON(http.StatusOK, closed)
}

// POST /api/v1/cases/search
func (h *APIHandler) handleSearchCases(c *gin.Context) {
	var criteria models.CaseSearchCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.core.Cases.Search(criteria))
}

// GET /api/v1/cases/statistics
func (h *APIHandler) handleCaseStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.core.Cases.Statistics())
}

// POST /api/v1/sars
func (h *APIHandler) handleCreateSAR(c *gin.Context) {
	var req struct {
		Type              models.SARType `json:"type"`
		CaseID            *uuid.UUID     `json:"caseId"`
		RequiredApprovals []string       `json:"requiredApprovals"`
		PreparedBy        string         `json:"preparedBy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	sar, err := h.core.SARs.Create(lifecycle.CreateSAR{
		Type:              req.Type,
		CaseID:            req.CaseID,
		RequiredApprovals: req.RequiredApprovals,
		PreparedBy:        req.PreparedBy,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if req.CaseID != nil {
		if linked, lerr := h.core.Cases.LinkSAR(*req.CaseID, sar.ID, req.PreparedBy); lerr == nil {
			h.persistCase(linked)
		}
	}
	h.persistSAR(sar)
	c.JSON(http.StatusCreated, sar)
}

// GET /api/v1/sars/:id
func (h *APIHandler) handleGetSAR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sar, err := h.core.SARs.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sar)
}

// POST /api/v1/sars/:id/subjects
func (h *APIHandler) handleAddSubject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var subject models.SARSubject
	if err := c.ShouldBindJSON(&subject); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	sar, err := h.core.SARs.AddSubject(id, subject)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sar)
}

// POST /api/v1/sars/:id/activities
func (h *APIHandler) handleAddActivity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var activity models.SuspiciousActivity
	if err := c.ShouldBindJSON(&activity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	sar, err := h.core.SARs.AddActivity(id, activity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sar)
}

// POST /api/v1/sars/:id/transactions
func (h *APIHandler) handleAddSARTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var tx models.SARTransaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	sar, err := h.core.SARs.AddTransaction(id, tx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sar)
}

// POST /api/v1/sars/:id/narrative
func (h *APIHandler) handleAddNarrative(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Section models.NarrativeSection `json:"section" binding:"required"`
		Content string                  `json:"content" binding:"required"`
		Author  string                  `json:"author"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	sar, err := h.core.SARs.AddNarrative(id, req.Section, req.Content, req.Author)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sar)
}

// POST /api/v1/sars/:id/submit
func (h *APIHandler) handleSubmitSAR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sar, err := h.core.SARs.SubmitForApproval(id)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistSAR(sar)
	c.JSON(http.StatusOK, sar)
}

// POST /api/v1/sars/:id/approve
func (h *APIHandler) handleApproveSAR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Role     string `json:"role" binding:"required"`
		Approver string `json:"approver"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	sar, err := h.core.SARs.Approve(id, req.Role, req.Approver)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistSAR(sar)
	c.JSON(http.StatusOK, sar)
}

// POST /api/v1/sars/:id/reject
func (h *APIHandler) handleRejectSAR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	sar, err := h.core.SARs.Reject(id, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistSAR(sar)
	c.JSON(http.StatusOK, sar)
}

// POST /api/v1/sars/:id/file
func (h *APIHandler) handleFileSAR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Method   string      `json:"method"`
		AlertIDs []uuid.UUID `json:"alertIds"`
	}
	c.ShouldBindJSON(&req)
	sar, err := h.core.FileSAR(id, req.Method, req.AlertIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistSAR(sar)
	c.JSON(http.StatusOK, sar)
}

// POST /api/v1/sars/:id/acknowledge
func (h *APIHandler) handleAcknowledgeSAR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		AckNumber string `json:"ackNumber"`
		BSAID     string `json:"bsaId"`
	}
	c.ShouldBindJSON(&req)
	sar, err := h.core.SARs.Acknowledge(id, req.AckNumber, req.BSAID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistSAR(sar)
	c.JSON(http.StatusOK, sar)
}

// POST /api/v1/sars/:id/amend
func (h *APIHandler) handleAmendSAR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		PreparedBy string `json:"preparedBy"`
	}
	c.ShouldBindJSON(&req)
	amended, err := h.core.SARs.Amend(id, req.PreparedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	h.persistSAR(amended)
	c.JSON(http.StatusCreated, amended)
}

// POST /api/v1/workflows
func (h *APIHandler) handleCreateWorkflow(c *gin.Context) {
	var req struct {
		Type       models.WorkflowType `json:"type" binding:"required"`
		EntityID   uuid.UUID           `json:"entityId"`
		EntityKind string              `json:"entityKind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	wf, err := h.core.Workflows.Create(req.Type, req.EntityID, req.EntityKind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wf)
}

// POST /api/v1/workflows/:id/start
func (h *APIHandler) handleStartWorkflow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Assignee string `json:"assignee"`
	}
	c.ShouldBindJSON(&req)
	wf, err := h.core.Workflows.Start(id, req.Assignee)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

// POST /api/v1/workflows/:id/complete-step
func (h *APIHandler) handleCompleteStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Actor string `json:"actor"`
		Note  string `json:"note"`
	}
	c.ShouldBindJSON(&req)
	wf, err := h.core.Workflows.CompleteStep(id, req.Actor, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

// POST /api/v1/workflows/:id/skip-step
func (h *APIHandler) handleSkipStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Actor string `json:"actor"`
		Note  string `json:"note"`
	}
	c.ShouldBindJSON(&req)
	wf, err := h.core.Workflows.SkipStep(id, req.Actor, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

// POST /api/v1/workflows/:id/request-approval
func (h *APIHandler) handleRequestApproval(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Approvers []string `json:"approvers" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	wf, err := h.core.Workflows.RequestApproval(id, req.Approvers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

// POST /api/v1/workflows/:id/approve-step
func (h *APIHandler) handleApproveStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Approver string `json:"approver" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	wf, err := h.core.Workflows.ApproveStep(id, req.Approver)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

// POST /api/v1/workflows/:id/reject-step
func (h *APIHandler) handleRejectStep(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Approver string `json:"approver"`
		Reason   string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	wf, err := h.core.Workflows.RejectStep(id, req.Approver, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

// POST /api/v1/workflows/:id/cancel
func (h *APIHandler) handleCancelWorkflow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	c.ShouldBindJSON(&req)
	wf, err := h.core.Workflows.Cancel(id, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

// POST /api/v1/workflows/:id/reassign
func (h *APIHandler) handleReassignWorkflow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Assignee string `json:"assignee" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	wf, err := h.core.Workflows.Reassign(id, req.Assignee)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

// GET /api/v1/workflows/overdue
func (h *APIHandler) handleOverdueWorkflows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workflows": h.core.Workflows.Overdue(time.Now().UTC())})
}
