package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/hotsync-go/internal/domain"
)

// statusFor maps the domain error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPackageNotFound),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPackageNotReady),
		errors.Is(err, domain.ErrNotCached),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrRunInProgress),
		errors.Is(err, domain.ErrVersionMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNetwork),
		errors.Is(err, domain.ErrCorruptManifest),
		errors.Is(err, domain.ErrPartialDownload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// selectionFromQuery reads ?paths=a,b or ?tags=x,y. Paths win when both are given.
func selectionFromQuery(c *gin.Context) domain.Selection {
	if paths := splitList(c.Query("paths")); len(paths) > 0 {
		return domain.ByPath{Paths: paths}
	}
	return domain.ByTag{Tags: splitList(c.Query("tags"))}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
