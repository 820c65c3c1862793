package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/internal/core"
	"github.com/rawblock/aml-engine/internal/db"
	"github.com/rawblock/aml-engine/internal/engine"
)

// APIHandler carries the wired core and collaborators into the handlers.
type APIHandler struct {
	core    *engine.AmlCore
	dbStore *db.PostgresStore
	wsHub   *Hub
}

// SetupRouter builds the gin engine: CORS from env, bearer auth and
// per-IP rate limiting on the command surface, and a websocket stream for
// critical events. Handlers hold no business logic; they bind JSON, call
// the core and map error kinds to status codes.
func SetupRouter(amlCore *engine.AmlCore, dbStore *db.PostgresStore, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://ops.example.com
	// Development: leave empty for *
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{core: amlCore, dbStore: dbStore, wsHub: wsHub}

	// Critical events flow straight to connected dashboards.
	amlCore.Notifier.SetBroadcast(BroadcastEvent(wsHub))

	public := r.Group("/api/v1")
	{
		public.GET("/health", handler.handleHealth)
		public.GET("/stream", wsHub.Subscribe)
	}

	// Batch submissions fan out to the worker pool; they get a much
	// tighter budget than ordinary investigation commands.
	limiter := NewRateLimiter(120, 30)
	batchLimiter := NewRateLimiter(12, 4)
	api := r.Group("/api/v1", AuthMiddleware(), limiter.Middleware())
	{
		api.POST("/alerts", handler.handleCreateAlert)
		api.GET("/alerts/:id", handler.handleGetAlert)
		api.PUT("/alerts/:id", handler.handleUpdateAlert)
		api.POST("/alerts/:id/assign", handler.handleAssignAlert)
		api.POST("/alerts/:id/review", handler.handleReviewAlert)
		api.POST("/alerts/:id/escalate", handler.handleEscalateAlert)
		api.POST("/alerts/:id/close", handler.handleCloseAlert)
		api.POST("/alerts/:id/comments", handler.handleAddComment)
		api.POST("/alerts/:id/evidence", handler.handleAddEvidence)
		api.POST("/alerts/search", handler.handleSearchAlerts)
		api.GET("/alerts/statistics", handler.handleAlertStatistics)

		api.POST("/cases", handler.handleCreateCase)
		api.GET("/cases/:id", handler.handleGetCase)
		api.POST("/cases/:id/open", handler.handleOpenCase)
		api.POST("/cases/:id/assign", handler.handleAssignCase)
		api.POST("/cases/:id/findings", handler.handleAddFinding)
		api.POST("/cases/:id/documents", handler.handleAddDocument)
		api.POST("/cases/:id/entities", handler.handleAddRelatedEntity)
		api.POST("/cases/:id/alerts", handler.handleLinkAlert)
		api.POST("/cases/:id/escalate", handler.handleEscalateCase)
		api.POST("/cases/:id/close", handler.handleCloseCase)
		api.POST("/cases/search", handler.handleSearchCases)
		api.GET("/cases/statistics", handler.handleCaseStatistics)

		api.POST("/sars", handler.handleCreateSAR)
		api.GET("/sars/:id", handler.handleGetSAR)
		api.POST("/sars/:id/subjects", handler.handleAddSubject)
		api.POST("/sars/:id/activities", handler.handleAddActivity)
		api.POST("/sars/:id/transactions", handler.handleAddSARTransaction)
		api.POST("/sars/:id/narrative", handler.handleAddNarrative)
		api.POST("/sars/:id/submit", handler.handleSubmitSAR)
		api.POST("/sars/:id/approve", handler.handleApproveSAR)
		api.POST("/sars/:id/reject", handler.handleRejectSAR)
		api.POST("/sars/:id/file", handler.handleFileSAR)
		api.POST("/sars/:id/acknowledge", handler.handleAcknowledgeSAR)
		api.POST("/sars/:id/amend", handler.handleAmendSAR)

		api.POST("/screening/screen", handler.handleScreen)
		api.POST("/screening/batch", batchLimiter.Middleware(), handler.handleBatchScreen)
		api.GET("/screening/batch/:id", handler.handleBatchScreenStatus)
		api.POST("/screening/batch/:id/cancel", handler.handleBatchScreenCancel)
		api.POST("/lists", handler.handleCreateList)
		api.POST("/lists/:id/entries", handler.handleAddListEntry)

		api.POST("/entities/records", handler.handleIngestRecord)
		api.POST("/entities/records/:id/resolve", handler.handleResolveRecord)
		api.POST("/entities/merge", handler.handleMergeEntities)
		api.POST("/entities/:id/split", handler.handleSplitEntity)
		api.POST("/entities/candidates/:id/review", handler.handleReviewCandidate)
		api.GET("/entities/:id", handler.handleGetEntity)

		api.POST("/risk/profiles", handler.handleUpsertProfile)
		api.GET("/risk/profiles/:id", handler.handleGetProfile)
		api.POST("/risk/profiles/:id/assess", handler.handleAssessRisk)
		api.POST("/risk/overrides", handler.handleRequestOverride)
		api.POST("/risk/overrides/:id/approve", handler.handleApproveOverride)
		api.POST("/risk/overrides/:id/reject", handler.handleRejectOverride)

		api.POST("/monitor/transaction", handler.handleMonitorTransaction)
		api.POST("/monitor/batch", batchLimiter.Middleware(), handler.handleBatchAnalysis)
		api.GET("/monitor/batch/:id", handler.handleBatchAnalysisStatus)

		api.POST("/workflows", handler.handleCreateWorkflow)
		api.POST("/workflows/:id/start", handler.handleStartWorkflow)
		api.POST("/workflows/:id/complete-step", handler.handleCompleteStep)
		api.POST("/workflows/:id/skip-step", handler.handleSkipStep)
		api.POST("/workflows/:id/request-approval", handler.handleRequestApproval)
		api.POST("/workflows/:id/approve-step", handler.handleApproveStep)
		api.POST("/workflows/:id/reject-step", handler.handleRejectStep)
		api.POST("/workflows/:id/cancel", handler.handleCancelWorkflow)
		api.POST("/workflows/:id/reassign", handler.handleReassignWorkflow)
		api.GET("/workflows/overdue", handler.handleOverdueWorkflows)

		api.GET("/audit/recent", handler.handleRecentAudit)
	}

	return r
}

// writeError maps core error kinds to HTTP status codes: NotFound -> 404,
// Invalid -> 400, Conflict -> 409.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch core.KindOf(err) {
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindInvalid:
		status = http.StatusBadRequest
	case core.KindConflict:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// pathID parses a UUID path parameter, writing a 400 on failure.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id: " + c.Param("id")})
		return uuid.Nil, false
	}
	return id, true
}

// handleHealth returns engine status for service discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	stats := h.core.Alerts.Statistics()
	payload := gin.H{
		"status":      "operational",
		"engine":      "AML Analytical Core v1.0",
		"dbConnected": h.dbStore != nil,
		"openAlerts":  stats.Open,
		"listEntries": h.core.Lists.Size(),
	}
	if h.dbStore != nil {
		if retained, err := h.dbStore.CountAlertsByStatus(c.Request.Context()); err == nil {
			payload["retainedAlerts"] = retained
		} else {
			log.Printf("[API] Retention-store count failed: %v", err)
		}
	}
	c.JSON(http.StatusOK, payload)
}

// handleRecentAudit returns the newest audit entries.
func (h *APIHandler) handleRecentAudit(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.core.Audit.Recent(100)})
}

// BroadcastEvent adapts the notification sink to the websocket hub. Wired
// as the Notifier broadcast callback.
func BroadcastEvent(wsHub *Hub) func(core.Event) {
	return func(event core.Event) {
		payload, err := json.Marshal(gin.H{"type": "event", "event": event})
		if err != nil {
			log.Printf("[Hub] Failed to marshal event %s: %v", event.ID, err)
			return
		}
		wsHub.Publish(event.Severity, payload)
	}
}
