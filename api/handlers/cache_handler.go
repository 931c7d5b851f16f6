package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/app"
)

// CacheHandler exposes cache inspection and cleanup
type CacheHandler struct {
	janitor *app.CacheJanitor
	logger  *zap.Logger
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(janitor *app.CacheJanitor, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{janitor: janitor, logger: logger}
}

// GetInfo handles GET /api/v1/packages/:name/cache
func (h *CacheHandler) GetInfo(c *gin.Context) {
	info, err := h.janitor.CacheInfo(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ClearUnused handles POST /api/v1/packages/:name/cache/clear-unused
func (h *CacheHandler) ClearUnused(c *gin.Context) {
	name := c.Param("name")
	removed, err := h.janitor.ClearUnused(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("Failed to clear unused cache", zap.String("package", name), zap.Error(err))
		writeError(c, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"package": name, "removed": removed})
}

// ClearAll handles DELETE /api/v1/packages/:name/cache
func (h *CacheHandler) ClearAll(c *gin.Context) {
	name := c.Param("name")
	if err := h.janitor.ClearAll(c.Request.Context(), name); err != nil {
		h.logger.Error("Failed to clear cache", zap.String("package", name), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cache cleared"})
}
