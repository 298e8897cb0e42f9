package messages

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/middleware"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/pkg/response"
)

// SendRequest is the body for POST /threads/:id/messages.
type SendRequest struct {
	Content         string           `json:"content" binding:"required"`
	ParentMessageID *uuid.UUID       `json:"parent_message_id"`
	Mentions        []string         `json:"mentions"`
	TagIDs          []uuid.UUID      `json:"tag_ids"`
	Metadata        *models.Metadata `json:"metadata"`
}

// EditRequest is the body for PATCH /messages/:id.
type EditRequest struct {
	Content string `json:"content" binding:"required"`
}

// Handler handles message HTTP endpoints.
type Handler struct {
	chat   *chat.Service
	logger *zap.Logger
}

// NewHandler creates a messages handler.
func NewHandler(svc *chat.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chat: svc, logger: logger}
}

// Register mounts the message routes on g. write is applied to mutating
// routes only.
func (h *Handler) Register(g *gin.RouterGroup, write ...gin.HandlerFunc) {
	g.GET("/threads/:id/messages", h.ListInThread)
	g.GET("/messages", h.List)
	g.GET("/messages/:id", h.Get)
	g.GET("/messages/:id/chain", h.Chain)
	g.GET("/messages/:id/replies", h.Replies)
	w := g.Group("", write...)
	w.POST("/threads/:id/messages", h.Send)
	w.PATCH("/messages/:id", h.Edit)
	w.DELETE("/messages/:id", h.Delete)
	w.POST("/messages/:id/tags/:tagId", h.AttachTag)
	w.DELETE("/messages/:id/tags/:tagId", h.DetachTag)
}

// Send handles POST /threads/:id/messages.
func (h *Handler) Send(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	threadID, ok := response.ParamUUID(c, "id", "thread")
	if !ok {
		return
	}
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	msg, err := h.chat.SendMessage(c.Request.Context(), sc, chat.SendMessageInput{
		ThreadID: threadID,
		Content:  req.Content,
		ParentID: req.ParentMessageID,
		Mentions: req.Mentions,
		TagIDs:   req.TagIDs,
		Metadata: req.Metadata,
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to send message")
		return
	}
	response.Created(c, msg)
}

// ListInThread handles GET /threads/:id/messages.
func (h *Handler) ListInThread(c *gin.Context) {
	threadID, ok := response.ParamUUID(c, "id", "thread")
	if !ok {
		return
	}
	h.list(c, &threadID)
}

// List handles GET /messages across the organization, optionally narrowed
// by thread_id.
func (h *Handler) List(c *gin.Context) {
	threadID, ok := response.QueryUUID(c, "thread_id")
	if !ok {
		return
	}
	h.list(c, threadID)
}

// list reads user_id, tag_id, parent_id, roots_only, from, to, q,
// include_deleted, limit and offset.
func (h *Handler) list(c *gin.Context, threadID *uuid.UUID) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	f := models.MessageFilter{ThreadID: threadID, Query: c.Query("q")}
	if f.UserID, ok = response.QueryUUID(c, "user_id"); !ok {
		return
	}
	if f.TagID, ok = response.QueryUUID(c, "tag_id"); !ok {
		return
	}
	if f.ParentID, ok = response.QueryUUID(c, "parent_id"); !ok {
		return
	}
	if f.From, ok = response.QueryTime(c, "from"); !ok {
		return
	}
	if f.To, ok = response.QueryTime(c, "to"); !ok {
		return
	}
	roots, ok := response.QueryBool(c, "roots_only")
	if !ok {
		return
	}
	deleted, ok := response.QueryBool(c, "include_deleted")
	if !ok {
		return
	}
	f.RootsOnly = roots != nil && *roots
	f.IncludeDeleted = deleted != nil && *deleted
	if !middleware.AllowDeleted(c, sc, f.IncludeDeleted) {
		return
	}
	f.Limit, f.Offset = response.Paging(c)

	list, err := h.chat.ListMessages(c.Request.Context(), sc, f)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list messages")
		return
	}
	response.OK(c, list)
}

// Get handles GET /messages/:id?include_deleted=
func (h *Handler) Get(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	deleted, ok := response.QueryBool(c, "include_deleted")
	if !ok {
		return
	}
	includeDeleted := deleted != nil && *deleted
	if !middleware.AllowDeleted(c, sc, includeDeleted) {
		return
	}
	msg, err := h.chat.GetMessage(c.Request.Context(), sc, id, includeDeleted)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to get message")
		return
	}
	response.OK(c, msg)
}

// Edit handles PATCH /messages/:id.
func (h *Handler) Edit(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	msg, err := h.chat.EditMessage(c.Request.Context(), sc, id, req.Content)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to edit message")
		return
	}
	response.OK(c, msg)
}

// Delete handles DELETE /messages/:id. The message is tombstoned.
func (h *Handler) Delete(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	msg, err := h.chat.SoftDeleteMessage(c.Request.Context(), sc, id)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to delete message")
		return
	}
	response.OK(c, msg)
}

// Chain handles GET /messages/:id/chain.
func (h *Handler) Chain(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	chain, err := h.chat.ReplyChain(c.Request.Context(), sc, id)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to load reply chain")
		return
	}
	response.OK(c, chain)
}

// Replies handles GET /messages/:id/replies.
func (h *Handler) Replies(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	replies, err := h.chat.Replies(c.Request.Context(), sc, id)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list replies")
		return
	}
	response.OK(c, replies)
}

// AttachTag handles POST /messages/:id/tags/:tagId.
func (h *Handler) AttachTag(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	tagID, ok := response.ParamUUID(c, "tagId", "tag")
	if !ok {
		return
	}
	link, err := h.chat.AttachTag(c.Request.Context(), sc, models.KindMessage, id, tagID)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to attach tag")
		return
	}
	response.Created(c, link)
}

// DetachTag handles DELETE /messages/:id/tags/:tagId.
func (h *Handler) DetachTag(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	tagID, ok := response.ParamUUID(c, "tagId", "tag")
	if !ok {
		return
	}
	if err := h.chat.DetachTag(c.Request.Context(), sc, models.KindMessage, id, tagID); err != nil {
		response.Fail(c, h.logger, err, "failed to detach tag")
		return
	}
	response.NoContent(c)
}
