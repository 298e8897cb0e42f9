package threads

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/middleware"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/pkg/response"
)

// CreateRequest is the body for POST /threads.
type CreateRequest struct {
	Type        models.ThreadType `json:"type" binding:"required"`
	Title       string            `json:"title" binding:"required"`
	Description string            `json:"description"`
	PostID      *uuid.UUID        `json:"post_id"`
	TagIDs      []uuid.UUID       `json:"tag_ids"`
	Metadata    *models.Metadata  `json:"metadata"`
}

// UpdateRequest is the body for PATCH /threads/:id. Omitted fields are left
// unchanged.
type UpdateRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Metadata    *models.Metadata `json:"metadata"`
}

// Handler handles thread HTTP endpoints.
type Handler struct {
	chat   *chat.Service
	logger *zap.Logger
}

// NewHandler creates a threads handler.
func NewHandler(svc *chat.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chat: svc, logger: logger}
}

// Register mounts the thread routes on g.
func (h *Handler) Register(g *gin.RouterGroup, write ...gin.HandlerFunc) {
	g.GET("/threads", h.List)
	g.GET("/threads/:id", h.Get)
	w := g.Group("", write...)
	w.POST("/threads", h.Create)
	w.PATCH("/threads/:id", h.Update)
	w.POST("/threads/:id/archive", h.Archive)
	w.POST("/threads/:id/unarchive", h.Unarchive)
	w.POST("/threads/:id/tags/:tagId", h.AttachTag)
	w.DELETE("/threads/:id/tags/:tagId", h.DetachTag)
}

// Create handles POST /threads.
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
	th, err := h.chat.CreateThread(c.Request.Context(), sc, chat.CreateThreadInput{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		PostID:      req.PostID,
		TagIDs:      req.TagIDs,
		Metadata:    req.Metadata,
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to create thread")
		return
	}
	response.Created(c, th)
}

// Get handles GET /threads/:id. Post threads carry best-effort post context.
func (h *Handler) Get(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "thread")
	if !ok {
		return
	}
	view, err := h.chat.GetThread(c.Request.Context(), sc, id)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to get thread")
		return
	}
	response.OK(c, view)
}

// List handles GET /threads?type=&post_id=&tag_ids=&archived=&created_by=&q=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	f := models.ThreadFilter{Query: c.Query("q")}
	if t := c.Query("type"); t != "" {
		tt := models.ThreadType(t)
		f.Type = &tt
	}
	if f.PostID, ok = response.QueryUUID(c, "post_id"); !ok {
		return
	}
	if f.CreatedBy, ok = response.QueryUUID(c, "created_by"); !ok {
		return
	}
	if f.TagIDs, ok = response.QueryUUIDs(c, "tag_ids"); !ok {
		return
	}
	if f.IsArchived, ok = response.QueryBool(c, "archived"); !ok {
		return
	}
	f.Limit, f.Offset = response.Paging(c)

	list, err := h.chat.ListThreads(c.Request.Context(), sc, f)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to list threads")
		return
	}
	response.OK(c, list)
}

// Update handles PATCH /threads/:id.
func (h *Handler) Update(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "thread")
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	th, err := h.chat.UpdateThread(c.Request.Context(), sc, id, chat.UpdateThreadInput{
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to update thread")
		return
	}
	response.OK(c, th)
}

// Archive handles POST /threads/:id/archive.
func (h *Handler) Archive(c *gin.Context) {
	h.setArchived(c, true)
}

// Unarchive handles POST /threads/:id/unarchive.
func (h *Handler) Unarchive(c *gin.Context) {
	h.setArchived(c, false)
}

func (h *Handler) setArchived(c *gin.Context, archived bool) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "thread")
	if !ok {
		return
	}
	var (
		th  *models.Thread
		err error
	)
	if archived {
		th, err = h.chat.ArchiveThread(c.Request.Context(), sc, id)
	} else {
		th, err = h.chat.UnarchiveThread(c.Request.Context(), sc, id)
	}
	if err != nil {
		response.Fail(c, h.logger, err, "failed to update thread")
		return
	}
	response.OK(c, th)
}

// AttachTag handles POST /threads/:id/tags/:tagId.
func (h *Handler) AttachTag(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "thread")
	if !ok {
		return
	}
	tagID, ok := response.ParamUUID(c, "tagId", "tag")
	if !ok {
		return
	}
	link, err := h.chat.AttachTag(c.Request.Context(), sc, models.KindThread, id, tagID)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to attach tag")
		return
	}
	response.Created(c, link)
}

// DetachTag handles DELETE /threads/:id/tags/:tagId.
func (h *Handler) DetachTag(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "thread")
	if !ok {
		return
	}
	tagID, ok := response.ParamUUID(c, "tagId", "tag")
	if !ok {
		return
	}
	if err := h.chat.DetachTag(c.Request.Context(), sc, models.KindThread, id, tagID); err != nil {
		response.Fail(c, h.logger, err, "failed to detach tag")
		return
	}
	response.NoContent(c)
}
