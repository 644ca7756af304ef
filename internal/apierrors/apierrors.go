package apierrors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/auth"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/scoring"
)

// RetryAfterSeconds is advertised when scoring is temporarily unavailable
const RetryAfterSeconds = "30"

// Mapping binds a sentinel error to an HTTP status
type Mapping struct {
	Err    error
	Status int
}

var defaults = []Mapping{
	{projects.ErrInvalidProject, http.StatusBadRequest},
	{projects.ErrNotFound, http.StatusNotFound},
	{projects.ErrAlreadyDecided, http.StatusConflict},
	{ledger.ErrNotFound, http.StatusNotFound},
	{ledger.ErrAlreadyMinted, http.StatusConflict},
	{scoring.ErrScoringUnavailable, http.StatusServiceUnavailable},
	{auth.ErrUnauthenticated, http.StatusUnauthorized},
}

// Status returns the HTTP status for err, consulting extra mappings before the defaults
func Status(err error, extra ...Mapping) int {
	for _, m := range extra {
		if errors.Is(err, m.Err) {
			return m.Status
		}
	}
	for _, m := range defaults {
		if errors.Is(err, m.Err) {
			return m.Status
		}
	}
	return http.StatusInternalServerError
}

// Write renders err as a JSON error body with the mapped status
func Write(c *gin.Context, logger *zap.Logger, err error, extra ...Mapping) {
	status := Status(err, extra...)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", RetryAfterSeconds)
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
