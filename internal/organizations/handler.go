package organizations

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/middleware"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/pkg/apperror"
	"github.com/dfworx/chat-backend/pkg/response"
)

// Directory is the read side used by the handler.
type Directory interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetUser(ctx context.Context, orgID, userID uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context, orgID uuid.UUID, query string, limit int) ([]models.User, error)
}

// Handler serves the caller's organization and its members.
type Handler struct {
	dir    Directory
	logger *zap.Logger
}

// NewHandler creates an organizations handler.
func NewHandler(dir Directory, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dir: dir, logger: logger}
}

// Me returns the caller with their organization.
// GET /me
func (h *Handler) Me(c *gin.Context) {
	sc, ok := middleware.Scope(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	org, err := h.dir.GetOrganization(c.Request.Context(), sc.OrganizationID)
	if err != nil {
		h.fail(c, err, "failed to load organization")
		return
	}
	out := gin.H{"organization": org, "role": sc.Role}
	user, err := h.dir.GetUser(c.Request.Context(), sc.OrganizationID, sc.UserID)
	switch {
	case err == nil:
		out["user"] = user
	case apperror.IsNotFound(err):
		out["user"] = models.User{ID: sc.UserID, OrganizationID: sc.OrganizationID, Email: sc.Email, Role: sc.Role}
	default:
		h.fail(c, err, "failed to load user")
		return
	}
	response.OK(c, out)
}

// ListUsers lists active members of the caller's organization.
// GET /users?q=&limit=
func (h *Handler) ListUsers(c *gin.Context) {
	sc, ok := middleware.Scope(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	users, err := h.dir.ListUsers(c.Request.Context(), sc.OrganizationID, c.Query("q"), limit)
	if err != nil {
		h.fail(c, err, "failed to list users")
		return
	}
	response.OK(c, users)
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	if !apperror.IsNotFound(err) {
		h.logger.Error(msg, zap.Error(err))
	}
	response.Error(c, err, msg)
}
