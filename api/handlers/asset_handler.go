package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/app"
)

// AssetHandler answers asset existence and load requests
type AssetHandler struct {
	loader *app.ContentLoader
	logger *zap.Logger
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(loader *app.ContentLoader, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{loader: loader, logger: logger}
}

// Exists handles GET /api/v1/assets/exists?key=...&package=...
func (h *AssetHandler) Exists(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'key' is required"})
		return
	}
	exists, err := h.loader.CheckExists(key, c.Query("package"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "exists": exists})
}

// Load handles GET /api/v1/assets/load?key=...&package=...
// With raw=true the main bundle is streamed instead of the handle description.
func (h *AssetHandler) Load(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'key' is required"})
		return
	}

	handle, err := h.loader.LoadByKey(c.Request.Context(), key, c.Query("package"))
	if err != nil {
		writeError(c, err)
		return
	}

	if raw, _ := strconv.ParseBool(c.Query("raw")); !raw {
		c.JSON(http.StatusOK, handle)
		return
	}

	r, err := handle.Open()
	if err != nil {
		h.logger.Error("Failed to open cached bundle",
			zap.String("key", key),
			zap.String("bundle", handle.Bundle.FileName),
			zap.Error(err))
		writeError(c, err)
		return
	}
	defer r.Close()

	c.DataFromReader(http.StatusOK, handle.Bundle.Size, "application/octet-stream", r, map[string]string{
		"Content-Disposition": "attachment; filename=" + handle.Bundle.FileName,
		"X-Bundle-Hash":       handle.Bundle.Hash,
	})
}
