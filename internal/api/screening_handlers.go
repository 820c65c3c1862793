package api

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/pkg/models"
)

// Screening, Resolution, Risk & Monitoring Handlers

// POST /api/v1/screening/screen
func (h *APIHandler) handleScreen(c *gin.Context) {
	var req models.ScreeningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject name is required"})
		return
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	result := h.core.Screen(req)
	if h.dbStore != nil {
		if err := h.dbStore.SaveScreeningResult(context.Background(), &result); err != nil {
			log.Printf("[API] Failed to persist screening result %s: %v", result.ID, err)
		}
	}
	c.JSON(http.StatusOK, result)
}

// POST /api/v1/screening/batch
func (h *APIHandler) handleBatchScreen(c *gin.Context) {
	var req struct {
		Name     string                    `json:"name" binding:"required"`
		Subjects []models.ScreeningRequest `json:"subjects" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if len(req.Subjects) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one subject is required"})
		return
	}

	job := h.core.RunBatchScreen(context.Background(), req.Name, req.Subjects)
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":    job.ID,
		"status":   job.CurrentStatus(),
		"subjects": len(req.Subjects),
	})
}

// GET /api/v1/screening/batch/:id
func (h *APIHandler) handleBatchScreenStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	job, found := h.core.BatchScreen.GetJob(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobId":    job.ID,
		"name":     job.Name,
		"status":   job.CurrentStatus(),
		"progress": job.Progress(),
	})
}

// POST /api/v1/screening/batch/:id/cancel
func (h *APIHandler) handleBatchScreenCancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	job, found := h.core.BatchScreen.GetJob(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	job.Cancel()
	c.JSON(http.StatusOK, gin.H{"jobId": job.ID, "status": job.CurrentStatus()})
}

// POST /api/v1/lists
func (h *APIHandler) handleCreateList(c *gin.Context) {
	var req struct {
		Name string          `json:"name" binding:"required"`
		Type models.ListType `json:"type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, h.core.Lists.CreateList(req.Name, req.Type))
}

// POST /api/v1/lists/:id/entries
func (h *APIHandler) handleAddListEntry(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var entry models.ListEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	added, found := h.core.Lists.AddEntry(id, entry)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "list not found"})
		return
	}
	c.JSON(http.StatusCreated, added)
}

// POST /api/v1/entities/records
func (h *APIHandler) handleIngestRecord(c *gin.Context) {
	var rec models.SourceRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if rec.Name == "" || rec.SourceSystem == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and sourceSystem are required"})
		return
	}
	c.JSON(http.StatusCreated, h.core.Resolver.Ingest(rec))
}

// POST /api/v1/entities/records/:id/resolve
func (h *APIHandler) handleResolveRecord(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entity, candidates, err := h.core.Resolver.Resolve(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entity":     entity,
		"candidates": candidates,
	})
}

// POST /api/v1/entities/merge
func (h *APIHandler) handleMergeEntities(c *gin.Context) {
	var req struct {
		EntityIDs []uuid.UUID `json:"entityIds" binding:"required"`
		Surviving uuid.UUID   `json:"surviving" binding:"required"`
		Actor     string      `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	merged, err := h.core.MergeEntities(req.EntityIDs, req.Surviving, req.Actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, merged)
}

// POST /api/v1/entities/:id/split
func (h *APIHandler) handleSplitEntity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Groups [][]uuid.UUID `json:"groups" binding:"required"`
		Actor  string        `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	entities, err := h.core.Resolver.Split(id, req.Groups, req.Actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

// POST /api/v1/entities/candidates/:id/review
func (h *APIHandler) handleReviewCandidate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Decision models.CandidateDecision `json:"decision" binding:"required"`
		Reviewer string                   `json:"reviewer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	entity, err := h.core.Resolver.ReviewCandidate(id, req.Decision, req.Reviewer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

// GET /api/v1/entities/:id
func (h *APIHandler) handleGetEntity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entity, found := h.core.Resolver.GetEntity(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	c.JSON(http.StatusOK, entity)
}

// POST /api/v1/risk/profiles
func (h *APIHandler) handleUpsertProfile(c *gin.Context) {
	var profile models.CustomerRiskProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if profile.CustomerID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customerId is required"})
		return
	}
	c.JSON(http.StatusCreated, h.core.Profiles.Upsert(profile))
}

// GET /api/v1/risk/profiles/:id
func (h *APIHandler) handleGetProfile(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	profile, found := h.core.Profiles.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "risk profile not found"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// POST /api/v1/risk/profiles/:id/assess
func (h *APIHandler) handleAssessRisk(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Trigger string `json:"trigger"`
	}
	c.ShouldBindJSON(&req)
	if req.Trigger == "" {
		req.Trigger = "manual"
	}
	assessment, err := h.core.AssessCustomerRisk(id, req.Trigger)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.dbStore != nil {
		if err := h.dbStore.SaveRiskAssessment(context.Background(), assessment); err != nil {
			log.Printf("[API] Failed to persist assessment for %s: %v", id, err)
		}
	}
	c.JSON(http.StatusOK, assessment)
}

// POST /api/v1/risk/overrides
func (h *APIHandler) handleRequestOverride(c *gin.Context) {
	var req struct {
		CustomerID        uuid.UUID        `json:"customerId" binding:"required"`
		RequestedLevel    models.RiskLevel `json:"requestedLevel" binding:"required"`
		Reason            string           `json:"reason" binding:"required"`
		Justification     string           `json:"justification"`
		RequestedBy       string           `json:"requestedBy"`
		RequiredApprovers []string         `json:"requiredApprovers" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	override, err := h.core.Profiles.RequestOverride(req.CustomerID, req.RequestedLevel,
		req.Reason, req.Justification, req.RequestedBy, req.RequiredApprovers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, override)
}

// POST /api/v1/risk/overrides/:id/approve
func (h *APIHandler) handleApproveOverride(c *gin.Context) {
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
	override, err := h.core.Profiles.ApproveOverride(id, req.Approver)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, override)
}

// POST /api/v1/risk/overrides/:id/reject
func (h *APIHandler) handleRejectOverride(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Approver string `json:"approver"`
	}
	c.ShouldBindJSON(&req)
	override, err := h.core.Profiles.RejectOverride(id, req.Approver)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, override)
}

// POST /api/v1/monitor/transaction
func (h *APIHandler) handleMonitorTransaction(c *gin.Context) {
	var req struct {
		Transaction models.Transaction     `json:"transaction" binding:"required"`
		Context     models.CustomerContext `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Transaction.ID == uuid.Nil {
		req.Transaction.ID = uuid.New()
	}

	detected := h.core.MonitorTransaction(&req.Transaction, &req.Context)
	c.JSON(http.StatusOK, gin.H{
		"transactionId": req.Transaction.ID,
		"patterns":      detected,
	})
}

// POST /api/v1/monitor/batch
func (h *APIHandler) handleBatchAnalysis(c *gin.Context) {
	var req struct {
		Name         string               `json:"name" binding:"required"`
		Transactions []models.Transaction `json:"transactions" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if len(req.Transactions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one transaction is required"})
		return
	}

	job := h.core.RunBatchAnalysis(context.Background(), req.Name, req.Transactions)
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":        job.ID,
		"status":       job.CurrentStatus(),
		"transactions": len(req.Transactions),
	})
}

// GET /api/v1/monitor/batch/:id
func (h *APIHandler) handleBatchAnalysisStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	job, found := h.core.Analyzer.GetJob(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobId":    job.ID,
		"name":     job.Name,
		"status":   job.CurrentStatus(),
		"progress": job.Progress(),
		"patterns": job.Patterns(),
	})
}
