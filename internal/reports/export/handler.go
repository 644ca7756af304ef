package export

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/apierrors"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/auth"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
	"carbon-scribe/blue-carbon/blue-carbon-backend/pkg/pdf"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Source reads the records exports are built from
type Source interface {
	GetProject(ctx context.Context, projectID uuid.UUID) (*projects.Project, error)
	ListCreditsByProject(ctx context.Context, projectID uuid.UUID) ([]*ledger.CreditTransaction, error)
	ListCreditsByUser(ctx context.Context, userID string) ([]*ledger.CreditTransaction, error)
}

// Handler serves statement and certificate downloads
type Handler struct {
	source    Source
	generator *pdf.Generator
	logger    *zap.Logger
}

// NewHandler creates an export handler
func NewHandler(source Source, generator *pdf.Generator, logger *zap.Logger) *Handler {
	return &Handler{source: source, generator: generator, logger: logger}
}

// RegisterRoutes registers export routes. The group must run auth middleware.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/users/:id/credits/statement.xlsx", h.excelStatement)
	router.GET("/users/:id/credits/statement.csv", h.csvStatement)
	router.GET("/projects/:id/certificate.pdf", h.certificate)
}

func isStaff(identity auth.Identity) bool {
	return identity.Role == auth.RoleAdmin || identity.Role == auth.RoleReviewer
}

func (h *Handler) userCredits(c *gin.Context) (string, []*ledger.CreditTransaction, bool) {
	userID := c.Param("id")
	identity := auth.CurrentIdentity(c)
	if userID != identity.UserID && !isStaff(identity) {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot export another user's credits"})
		return "", nil, false
	}
	txs, err := h.source.ListCreditsByUser(c.Request.Context(), userID)
	if err != nil {
		apierrors.Write(c, h.logger, err)
		return "", nil, false
	}
	return userID, txs, true
}

func (h *Handler) excelStatement(c *gin.Context) {
	userID, txs, ok := h.userCredits(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := WriteExcelStatement(&buf, userID, txs, time.Now().UTC()); err != nil {
		apierrors.Write(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="credit-statement.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) csvStatement(c *gin.Context) {
	_, txs, ok := h.userCredits(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := WriteCSVStatement(&buf, txs); err != nil {
		apierrors.Write(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="credit-statement.csv"`)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func (h *Handler) certificate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project ID"})
		return
	}
	ctx := c.Request.Context()
	project, err := h.source.GetProject(ctx, id)
	if err != nil {
		apierrors.Write(c, h.logger, err)
		return
	}
	identity := auth.CurrentIdentity(c)
	if !isStaff(identity) && project.OwnerID != identity.UserID {
		apierrors.Write(c, h.logger, projects.ErrNotFound)
		return
	}

	txs, err := h.source.ListCreditsByProject(ctx, id)
	if err != nil {
		apierrors.Write(c, h.logger, err)
		return
	}
	if len(txs) == 0 {
		apierrors.Write(c, h.logger, ledger.ErrNotFound)
		return
	}

	var buf bytes.Buffer
	if err := WriteCertificate(&buf, h.generator, project, txs[0]); err != nil {
		h.logger.Error("Failed to render certificate", zap.String("project_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render certificate"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="certificate-`+id.String()+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
