package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/app"
	"github.com/yourusername/hotsync-go/internal/domain"
)

// DownloadHandler handles download task HTTP requests
type DownloadHandler struct {
	service *app.PackageService
	logger  *zap.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(service *app.PackageService, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		service: service,
		logger:  logger,
	}
}

// CreateTaskRequest represents a request to create a download task
type CreateTaskRequest struct {
	Package       string   `json:"package,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Paths         []string `json:"paths,omitempty"`
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
	MaxRetries    *int     `json:"max_retries,omitempty"`
	Start         bool     `json:"start"`
}

func (r CreateTaskRequest) selection() domain.Selection {
	if len(r.Paths) > 0 {
		return domain.ByPath{Paths: r.Paths}
	}
	return domain.ByTag{Tags: r.Tags}
}

// CreateTask handles POST /api/v1/tasks
func (h *DownloadHandler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dm, err := h.service.Downloads(req.Package)
	if err != nil {
		writeError(c, err)
		return
	}

	retries := -1
	if req.MaxRetries != nil {
		retries = *req.MaxRetries
	}
	task, err := dm.Create(req.selection(), req.MaxConcurrent, retries)
	if err != nil {
		h.logger.Error("Failed to create download task", zap.String("package", req.Package), zap.Error(err))
		writeError(c, err)
		return
	}

	if req.Start {
		// the task outlives the request
		if err := task.Begin(context.Background()); err != nil {
			writeError(c, err)
			return
		}
	}

	c.JSON(http.StatusCreated, task.Snapshot())
}

// ListTasks handles GET /api/v1/tasks
func (h *DownloadHandler) ListTasks(c *gin.Context) {
	snaps := h.service.TaskSnapshots()
	if state := c.Query("state"); state != "" {
		filtered := snaps[:0]
		for _, s := range snaps {
			if string(s.State) == state {
				filtered = append(filtered, s)
			}
		}
		snaps = filtered
	}
	if pkg := c.Query("package"); pkg != "" {
		filtered := snaps[:0]
		for _, s := range snaps {
			if s.Package == pkg {
				filtered = append(filtered, s)
			}
		}
		snaps = filtered
	}
	if snaps == nil {
		snaps = []app.TaskSnapshot{}
	}
	c.JSON(http.StatusOK, snaps)
}

// GetTask handles GET /api/v1/tasks/:id
func (h *DownloadHandler) GetTask(c *gin.Context) {
	task, err := h.service.FindTask(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task.Snapshot())
}

// BeginTask handles POST /api/v1/tasks/:id/begin
func (h *DownloadHandler) BeginTask(c *gin.Context) {
	h.transition(c, "begin", func(t *app.DownloadTask) error { return t.Begin(context.Background()) })
}

// PauseTask handles POST /api/v1/tasks/:id/pause
func (h *DownloadHandler) PauseTask(c *gin.Context) {
	h.transition(c, "pause", (*app.DownloadTask).Pause)
}

// ResumeTask handles POST /api/v1/tasks/:id/resume
func (h *DownloadHandler) ResumeTask(c *gin.Context) {
	h.transition(c, "resume", (*app.DownloadTask).Resume)
}

// CancelTask handles POST /api/v1/tasks/:id/cancel
func (h *DownloadHandler) CancelTask(c *gin.Context) {
	h.transition(c, "cancel", (*app.DownloadTask).Cancel)
}

func (h *DownloadHandler) transition(c *gin.Context, action string, apply func(*app.DownloadTask) error) {
	id := c.Param("id")
	task, err := h.service.FindTask(id)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := apply(task); err != nil {
		h.logger.Warn("Task transition rejected",
			zap.String("task_id", id),
			zap.String("action", action),
			zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task.Snapshot())
}
