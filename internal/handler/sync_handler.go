package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/repository"
	"github.com/pulsoria/social-sync/internal/syncer"
)

// SyncHandler exposes manual sync triggering and status.
type SyncHandler struct {
	orchestrator *syncer.Orchestrator
	runs         repository.SyncRunRepository
	logger       *zap.Logger
}

// NewSyncHandler creates a sync handler.
func NewSyncHandler(orchestrator *syncer.Orchestrator, runs repository.SyncRunRepository, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		runs:         runs,
		logger:       logger,
	}
}

// Run triggers a synchronous batch for one tenant.
func (h *SyncHandler) Run(c *gin.Context) {
	var req SyncRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	summary, err := h.orchestrator.RunTenant(c.Request.Context(), req.TenantID)
	if err != nil {
		h.logger.Error("sync batch failed to start", zap.String("tenant_id", req.TenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Internal error",
			Message: "failed to run sync batch",
		})
		return
	}

	c.JSON(http.StatusOK, SyncRunResponse{Summary: summary})
}

// Status returns each account's latest sync run for a tenant.
func (h *SyncHandler) Status(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Message: "tenant_id query parameter is required",
		})
		return
	}

	runs, err := h.runs.ListLatestByTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to list sync runs", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Internal error",
			Message: "failed to list sync runs",
		})
		return
	}

	c.JSON(http.StatusOK, SyncStatusResponse{Runs: runs})
}
