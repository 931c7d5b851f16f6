package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/app"
	"github.com/yourusername/hotsync-go/internal/domain"
)

// UpdateHandler starts hot update runs and reports their status
type UpdateHandler struct {
	orchestrator *app.HotUpdateOrchestrator
	logger       *zap.Logger
}

// NewUpdateHandler creates a new update handler
func NewUpdateHandler(orchestrator *app.HotUpdateOrchestrator, logger *zap.Logger) *UpdateHandler {
	return &UpdateHandler{orchestrator: orchestrator, logger: logger}
}

// RunRequest optionally overrides the auto download tags of every package
type RunRequest struct {
	Tags []string `json:"tags,omitempty"`
}

// Run handles POST /api/v1/update. The run continues after the response is sent.
func (h *UpdateHandler) Run(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if h.orchestrator.IsRunning() {
		writeError(c, domain.ErrRunInProgress)
		return
	}

	go func() {
		err := h.orchestrator.Run(context.Background(), app.RunOptions{Tags: req.Tags})
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrRunInProgress):
			h.logger.Info("Update run skipped, another run started first")
		default:
			h.logger.Error("Update run failed", zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "update started"})
}

// Status handles GET /api/v1/update
func (h *UpdateHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Status())
}
