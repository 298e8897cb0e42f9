package reactions

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/middleware"
	"github.com/dfworx/chat-backend/pkg/response"
)

// AddRequest is the body for POST /messages/:id/reactions.
type AddRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// Handler handles reaction endpoints.
type Handler struct {
	chat   *chat.Service
	logger *zap.Logger
}

// NewHandler creates a reactions handler.
func NewHandler(svc *chat.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chat: svc, logger: logger}
}

// Register mounts the reaction routes.
func (h *Handler) Register(g *gin.RouterGroup, write ...gin.HandlerFunc) {
	g.GET("/messages/:id/reactions", h.List)
	w := g.Group("", write...)
	w.POST("/messages/:id/reactions", h.Add)
	w.DELETE("/messages/:id/reactions/:emoji", h.Remove)
}

// Add handles POST /messages/:id/reactions. A new reaction answers 201; a
// repeat of an existing one answers 200 with the attempted reaction.
func (h *Handler) Add(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	r, inserted, err := h.chat.AddReaction(c.Request.Context(), sc, id, req.Emoji)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to add reaction")
		return
	}
	if inserted {
		response.Created(c, r)
		return
	}
	response.OK(c, r)
}

// Remove handles DELETE /messages/:id/reactions/:emoji. The emoji is taken
// from the path already unescaped.
func (h *Handler) Remove(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	removed, err := h.chat.RemoveReaction(c.Request.Context(), sc, id, c.Param("emoji"))
	if err != nil {
		response.Fail(c, h.logger, err, "failed to remove reaction")
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: gin.H{"removed": removed}})
}

// List handles GET /messages/:id/reactions.
func (h *Handler) List(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	list, err := h.chat.ListReactions(c.Request.Context(), sc, id)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list reactions")
		return
	}
	response.OK(c, list)
}
