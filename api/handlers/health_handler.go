package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/hotsync-go/internal/app"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	service      *app.PackageService
	orchestrator *app.HotUpdateOrchestrator
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *app.PackageService, orchestrator *app.HotUpdateOrchestrator) *HealthHandler {
	return &HealthHandler{
		service:      service,
		orchestrator: orchestrator,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	PlayMode string `json:"play_mode"`
	Packages struct {
		Total       int `json:"total"`
		Initialized int `json:"initialized"`
	} `json:"packages"`
	Update struct {
		State   string `json:"state"`
		Running bool   `json:"running"`
	} `json:"update"`
	ActiveDownloads bool `json:"active_downloads"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:   "ok",
		Version:  Version,
		PlayMode: string(h.service.PlayMode()),
	}
	for _, name := range h.service.Registry().Names() {
		response.Packages.Total++
		if h.service.IsPackageInitialized(name) {
			response.Packages.Initialized++
		}
	}
	response.Update.State = string(h.orchestrator.State())
	response.Update.Running = h.orchestrator.IsRunning()
	response.ActiveDownloads = h.service.HasActiveDownloads()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready. The service is ready once every package is initialized.
func (h *HealthHandler) Ready(c *gin.Context) {
	var pending []string
	for _, name := range h.service.Registry().Names() {
		if !h.service.IsPackageInitialized(name) {
			pending = append(pending, name)
		}
	}
	if len(pending) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"reason":  "packages not initialized",
			"pending": pending,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
