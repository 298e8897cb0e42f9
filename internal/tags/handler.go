package tags

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/middleware"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/pkg/response"
)

// CreateRequest is the body for POST /tags.
type CreateRequest struct {
	Name        string             `json:"name" binding:"required"`
	Color       string             `json:"color"`
	Category    models.TagCategory `json:"category" binding:"required"`
	Description string             `json:"description"`
	Metadata    *models.Metadata   `json:"metadata"`
}

// Handler handles the tag registry endpoints.
type Handler struct {
	chat   *chat.Service
	logger *zap.Logger
}

// NewHandler creates a tags handler.
func NewHandler(svc *chat.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chat: svc, logger: logger}
}

// Register mounts the tag routes. Deactivation is limited to moderators and
// above.
func (h *Handler) Register(g *gin.RouterGroup, write ...gin.HandlerFunc) {
	g.GET("/tags", h.List)
	g.GET("/tags/assignable", h.Assignable)
	g.GET("/tags/:id", h.Get)
	w := g.Group("", write...)
	w.POST("/tags", h.Create)
	w.POST("/tags/:id/deactivate",
		middleware.RequireRole(models.RoleModerator, models.RoleAdmin, models.RoleSuperAdmin),
		h.Deactivate)
}

// Create handles POST /tags.
func (h *Handler) Create(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	tag, err := h.chat.CreateTag(c.Request.Context(), sc, chat.CreateTagInput{
		Name:        req.Name,
		Color:       req.Color,
		Category:    req.Category,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to create tag")
		return
	}
	response.Created(c, tag)
}

// List handles GET /tags?category=&active=&q=
func (h *Handler) List(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	f := models.TagFilter{Category: category(c), Query: c.Query("q")}
	if f.IsActive, ok = response.QueryBool(c, "active"); !ok {
		return
	}
	list, err := h.chat.ListTags(c.Request.Context(), sc, f)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list tags")
		return
	}
	response.OK(c, list)
}

// Assignable handles GET /tags/assignable?category=
func (h *Handler) Assignable(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	list, err := h.chat.AssignableTags(c.Request.Context(), sc, category(c))
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list tags")
		return
	}
	response.OK(c, list)
}

// Get handles GET /tags/:id.
func (h *Handler) Get(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "tag")
	if !ok {
		return
	}
	tag, err := h.chat.GetTag(c.Request.Context(), sc, id)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to get tag")
		return
	}
	response.OK(c, tag)
}

// Deactivate handles POST /tags/:id/deactivate.
func (h *Handler) Deactivate(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "tag")
	if !ok {
		return
	}
	tag, err := h.chat.DeactivateTag(c.Request.Context(), sc, id)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to deactivate tag")
		return
	}
	response.OK(c, tag)
}

func category(c *gin.Context) *models.TagCategory {
	raw := c.Query("category")
	if raw == "" {
		return nil
	}
	cat := models.TagCategory(raw)
	return &cat
}
