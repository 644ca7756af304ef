package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/apierrors"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/auth"
)

// Handler serves dashboard summaries
type Handler struct {
	aggregator *Aggregator
	logger     *zap.Logger
}

// NewHandler creates a dashboard handler
func NewHandler(aggregator *Aggregator, logger *zap.Logger) *Handler {
	return &Handler{aggregator: aggregator, logger: logger}
}

// RegisterRoutes registers dashboard routes. The group must run auth middleware.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	d := router.Group("/dashboard")
	{
		d.GET("/summary", auth.RequireRole(auth.RoleAdmin, auth.RoleReviewer), h.platformSummary)
		d.GET("/me", h.ownerSummary)
	}
}

func (h *Handler) platformSummary(c *gin.Context) {
	summary, err := h.aggregator.PlatformSummary(c.Request.Context())
	if err != nil {
		apierrors.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ownerSummary(c *gin.Context) {
	summary, err := h.aggregator.OwnerSummary(c.Request.Context(), auth.CurrentIdentity(c).UserID)
	if err != nil {
		apierrors.Write(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
