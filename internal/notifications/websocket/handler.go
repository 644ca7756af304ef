package websocket

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/auth"
)

// Handler exposes the ledger event stream
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

// NewHandler creates a WebSocket handler
func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// RegisterRoutes registers the stream route. The group must run auth middleware.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws/ledger", h.stream)
}

// stream handles GET /api/v1/ws/ledger. Staff receive every event, clients only their own.
func (h *Handler) stream(c *gin.Context) {
	identity := auth.CurrentIdentity(c)
	all := identity.Role == auth.RoleAdmin || identity.Role == auth.RoleReviewer
	if _, err := h.manager.HandleConnection(c.Writer, c.Request, identity.UserID, all); err != nil {
		// the upgrader already wrote an HTTP error
		h.logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
	}
}
