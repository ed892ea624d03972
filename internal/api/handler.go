package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fieldops/fieldsync/internal/models"
)

// Handler exposes the sync engine over HTTP
type Handler struct {
	syncService   SyncService
	statusService StatusService
	catalog       EntityCatalog
	logger        *logrus.Logger
}

// NewHandler creates a new API handler
func NewHandler(syncService SyncService, statusService StatusService, catalog EntityCatalog, logger *logrus.Logger) *Handler {
	return &Handler{
		syncService:   syncService,
		statusService: statusService,
		catalog:       catalog,
		logger:        logger,
	}
}

// SyncRequest is the optional body of a sync trigger request
// @Description Optional entity-type filter for a sync pass
type SyncRequest struct {
	// Entities restricts the pass to these entity types; empty means all
	Entities []string `json:"entities" example:"customers,jobs"`
}

// ErrorResponse is the error payload returned by all endpoints
type ErrorResponse struct {
	Error string `json:"error" example:"tenant id cannot be empty"`
}

// TriggerSync godoc
// @Summary Run a sync pass for a tenant
// @Description Runs the entity sync loop for every registered (or requested) entity type and returns per-entity summaries
// @Tags sync
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant identifier"
// @Param request body SyncRequest false "Optional entity filter"
// @Success 200 {object} models.PassSummary
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /tenants/{tenantID}/sync [post]
func (h *Handler) TriggerSync(c *gin.Context) {
	tenantID := c.Param("tenantID")

	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	summary, err := h.syncService.SyncTenant(c.Request.Context(), tenantID, req.Entities)
	if err != nil {
		h.logger.WithError(err).WithField("tenant", tenantID).Error("Sync pass failed to start")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetSyncStatus godoc
// @Summary Get sync status for a tenant
// @Description Returns the sync state row for every entity type that has been synced for the tenant
// @Tags sync
// @Produce json
// @Param tenantID path string true "Tenant identifier"
// @Success 200 {array} models.SyncState
// @Failure 500 {object} ErrorResponse
// @Router /tenants/{tenantID}/sync-status [get]
func (h *Handler) GetSyncStatus(c *gin.Context) {
	tenantID := c.Param("tenantID")

	states, err := h.statusService.ListStates(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.WithError(err).WithField("tenant", tenantID).Error("Failed to list sync states")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list sync states"})
		return
	}
	if states == nil {
		states = []*models.SyncState{}
	}

	c.JSON(http.StatusOK, states)
}

// ListEntities godoc
// @Summary List registered entity types
// @Description Returns the entity types the engine knows how to synchronize
// @Tags sync
// @Produce json
// @Success 200 {array} string
// @Router /entities [get]
func (h *Handler) ListEntities(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Names())
}

// Health godoc
// @Summary Health check
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
