package verification

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/apierrors"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/auth"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
)

var errorMappings = []apierrors.Mapping{
	{Err: ErrBelowThreshold, Status: http.StatusUnprocessableEntity},
	{Err: ErrInvalidDecision, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for project verification
type Handler struct {
	workflow *Workflow
	logger   *zap.Logger
}

// NewHandler creates a new verification handler
func NewHandler(workflow *Workflow, logger *zap.Logger) *Handler {
	return &Handler{
		workflow: workflow,
		logger:   logger,
	}
}

// RegisterRoutes registers verification routes. The group must run auth middleware.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	p := router.Group("/projects")
	{
		p.POST("", h.submitProject)
		p.GET("", h.listProjects)
		p.GET("/:id", h.getProject)
		p.POST("/:id/verify", h.runVerification)
		p.POST("/:id/decision", auth.RequireRole(auth.RoleAdmin, auth.RoleReviewer), h.decide)
		p.GET("/:id/credits", h.listProjectCredits)
	}
	router.GET("/users/:id/credits", h.listUserCredits)
}

type decisionRequest struct {
	Decision Decision `json:"decision" binding:"required"`
}

func isStaff(identity auth.Identity) bool {
	return identity.Role == auth.RoleAdmin || identity.Role == auth.RoleReviewer
}

// submitProject handles POST /api/v1/projects
func (h *Handler) submitProject(c *gin.Context) {
	var req projects.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := auth.CurrentIdentity(c)
	project, err := h.workflow.Submit(c.Request.Context(), identity.UserID, req)
	if err != nil {
		apierrors.Write(c, h.logger, err, errorMappings...)
		return
	}
	c.JSON(http.StatusCreated, project)
}

// listProjects handles GET /api/v1/projects
func (h *Handler) listProjects(c *gin.Context) {
	identity := auth.CurrentIdentity(c)
	filter := projects.ProjectFilter{
		OwnerID: c.Query("owner_id"),
		Status:  projects.Status(c.Query("status")),
	}
	if !isStaff(identity) {
		filter.OwnerID = identity.UserID
	}

	list, err := h.workflow.ListProjects(c.Request.Context(), filter)
	if err != nil {
		apierrors.Write(c, h.logger, err, errorMappings...)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": list, "count": len(list)})
}

// loadAccessible resolves :id and enforces that clients only see their own projects
func (h *Handler) loadAccessible(c *gin.Context) (*projects.Project, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project ID"})
		return nil, false
	}
	project, err := h.workflow.GetProject(c.Request.Context(), id)
	if err != nil {
		apierrors.Write(c, h.logger, err, errorMappings...)
		return nil, false
	}
	identity := auth.CurrentIdentity(c)
	if !isStaff(identity) && project.OwnerID != identity.UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": projects.ErrNotFound.Error()})
		return nil, false
	}
	return project, true
}

// getProject handles GET /api/v1/projects/:id
func (h *Handler) getProject(c *gin.Context) {
	project, ok := h.loadAccessible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, project)
}

// runVerification handles POST /api/v1/projects/:id/verify
func (h *Handler) runVerification(c *gin.Context) {
	project, ok := h.loadAccessible(c)
	if !ok {
		return
	}

	outcome, err := h.workflow.RunVerification(c.Request.Context(), project.ID)
	if err != nil {
		apierrors.Write(c, h.logger, err, errorMappings...)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// decide handles POST /api/v1/projects/:id/decision
func (h *Handler) decide(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project ID"})
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := auth.CurrentIdentity(c)
	outcome, err := h.workflow.DecideManually(c.Request.Context(), id, req.Decision, identity.UserID)
	if err != nil {
		apierrors.Write(c, h.logger, err, errorMappings...)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// listProjectCredits handles GET /api/v1/projects/:id/credits
func (h *Handler) listProjectCredits(c *gin.Context) {
	project, ok := h.loadAccessible(c)
	if !ok {
		return
	}
	txs, err := h.workflow.ListCreditsByProject(c.Request.Context(), project.ID)
	if err != nil {
		apierrors.Write(c, h.logger, err, errorMappings...)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

// listUserCredits handles GET /api/v1/users/:id/credits
func (h *Handler) listUserCredits(c *gin.Context) {
	userID := c.Param("id")
	identity := auth.CurrentIdentity(c)
	if userID != identity.UserID && !isStaff(identity) {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot read another user's credits"})
		return
	}
	txs, err := h.workflow.ListCreditsByUser(c.Request.Context(), userID)
	if err != nil {
		apierrors.Write(c, h.logger, err, errorMappings...)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}
