package search

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/middleware"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/pkg/response"
)

// Handler serves message search.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a search handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the search routes. Reindexing is for admins.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/search/messages", h.Search)
	g.POST("/search/reindex", middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin), h.Reindex)
}

// Search handles GET /search/messages?q=&thread_id=&limit=&offset=
func (h *Handler) Search(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	threadID, ok := response.QueryUUID(c, "thread_id")
	if !ok {
		return
	}
	limit, offset := response.Paging(c)
	res, err := h.svc.SearchMessages(c.Request.Context(), sc, Input{
		Text:     c.Query("q"),
		ThreadID: threadID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		response.Fail(c, h.logger, err, "search failed")
		return
	}
	response.OK(c, res)
}

// Reindex handles POST /search/reindex for the caller's organization.
func (h *Handler) Reindex(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	n, err := h.svc.Reindex(c.Request.Context(), sc.OrganizationID, 0)
	if err != nil {
		h.logger.Error("reindex", zap.Error(err), zap.String("organization_id", sc.OrganizationID.String()))
		response.Internal(c, "reindex failed")
		return
	}
	h.logger.Info("reindexed messages", zap.Int("count", n), zap.String("organization_id", sc.OrganizationID.String()))
	response.OK(c, gin.H{"indexed": n})
}
