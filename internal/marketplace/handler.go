package marketplace

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/apierrors"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/auth"
)

var errorMappings = []apierrors.Mapping{
	{Err: ErrNotFound, Status: http.StatusNotFound},
	{Err: ErrInvalidListing, Status: http.StatusBadRequest},
	{Err: ErrInvalidEscrowTransition, Status: http.StatusConflict},
	{Err: ErrVestingNotElapsed, Status: http.StatusConflict},
}

// Handler handles HTTP requests for the marketplace
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new marketplace handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers marketplace routes. The group must run auth middleware.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	listings := router.Group("/marketplace/listings")
	{
		listings.POST("", h.createListing)
		listings.GET("", h.listListings)
		listings.GET("/:id", h.getListing)
		listings.POST("/:id/purchase", h.purchaseListing)
		listings.POST("/:id/release", auth.RequireRole(auth.RoleAdmin), h.releaseListing)
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	apierrors.Write(c, h.logger, err, errorMappings...)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) createListing(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	listing, err := h.service.CreateListing(c.Request.Context(), auth.CurrentIdentity(c).UserID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

func (h *Handler) listListings(c *gin.Context) {
	filter := ListingFilter{
		SellerID: c.Query("seller_id"),
		BuyerID:  c.Query("buyer_id"),
		Status:   EscrowStatus(c.Query("status")),
	}
	listings, err := h.service.ListListings(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings, "count": len(listings)})
}

func (h *Handler) getListing(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	listing, err := h.service.GetListing(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// purchaseListing handles POST /api/v1/marketplace/listings/:id/purchase; the caller is the buyer
func (h *Handler) purchaseListing(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	listing, err := h.service.PurchaseListing(c.Request.Context(), id, auth.CurrentIdentity(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) releaseListing(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	listing, err := h.service.ReleaseListing(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}
