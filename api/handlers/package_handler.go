package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/app"
)

// PackageHandler exposes package lifecycle operations
type PackageHandler struct {
	service *app.PackageService
	logger  *zap.Logger
}

// NewPackageHandler creates a new package handler
func NewPackageHandler(service *app.PackageService, logger *zap.Logger) *PackageHandler {
	return &PackageHandler{service: service, logger: logger}
}

// ListPackages handles GET /api/v1/packages
func (h *PackageHandler) ListPackages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default":  h.service.Registry().DefaultPackageName(),
		"packages": h.service.Registry().Snapshots(),
	})
}

// GetPackage handles GET /api/v1/packages/:name
func (h *PackageHandler) GetPackage(c *gin.Context) {
	pkg, err := h.service.Package(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pkg.Snapshot())
}

// InitPackage handles POST /api/v1/packages/:name/init
func (h *PackageHandler) InitPackage(c *gin.Context) {
	name := c.Param("name")
	if err := h.service.InitPackage(c.Request.Context(), name); err != nil {
		h.logger.Error("Failed to initialize package", zap.String("package", name), zap.Error(err))
		writeError(c, err)
		return
	}
	pkg, _ := h.service.Package(name)
	c.JSON(http.StatusOK, pkg.Snapshot())
}

// RequestVersion handles POST /api/v1/packages/:name/version
func (h *PackageHandler) RequestVersion(c *gin.Context) {
	name := c.Param("name")
	version, err := h.service.RequestVersion(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("Failed to request package version", zap.String("package", name), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": name, "version": version})
}

// UpdateManifestRequest selects the manifest version to load. Empty means the known remote version.
type UpdateManifestRequest struct {
	Version string `json:"version"`
}

// UpdateManifest handles POST /api/v1/packages/:name/manifest
func (h *PackageHandler) UpdateManifest(c *gin.Context) {
	name := c.Param("name")
	var req UpdateManifestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.service.UpdateManifest(c.Request.Context(), name, req.Version); err != nil {
		h.logger.Error("Failed to update manifest", zap.String("package", name), zap.Error(err))
		writeError(c, err)
		return
	}
	pkg, _ := h.service.Package(name)
	c.JSON(http.StatusOK, pkg.Snapshot())
}

// GetManifest handles GET /api/v1/packages/:name/manifest
func (h *PackageHandler) GetManifest(c *gin.Context) {
	pkg, err := h.service.Package(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	manifest := pkg.Manifest()
	if manifest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "manifest not loaded"})
		return
	}
	c.JSON(http.StatusOK, manifest)
}

// DownloadSize handles GET /api/v1/packages/:name/download-size?tags=a,b or ?paths=x
func (h *PackageHandler) DownloadSize(c *gin.Context) {
	dm, err := h.service.Downloads(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	progress, err := dm.DownloadSize(selectionFromQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"package":     c.Param("name"),
		"total_count": progress.TotalCount,
		"total_bytes": progress.TotalBytes,
		"needed":      progress.TotalCount > 0,
	})
}
