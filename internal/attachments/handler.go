package attachments

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/middleware"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/pkg/apperror"
	"github.com/dfworx/chat-backend/pkg/response"
)

// ObjectStore is the attachment side of object storage. *storage.S3
// implements it.
type ObjectStore interface {
	PresignExpire() time.Duration
	PresignAttachmentUpload(ctx context.Context, key, contentType string, size int64) (string, error)
	PresignAttachmentDownload(ctx context.Context, key, filename string) (string, error)
	AttachmentSize(ctx context.Context, key string) (int64, error)
	DeleteAttachment(ctx context.Context, key string) error
}

// UploadURLRequest is the body for POST /messages/:id/attachments/upload-url.
type UploadURLRequest struct {
	Filename string `json:"filename" binding:"required"`
	MimeType string `json:"mime_type" binding:"required"`
	Size     int64  `json:"size" binding:"required"`
}

// UploadURLResponse tells the client where to PUT the file and which key
// to register afterwards.
type UploadURLResponse struct {
	UploadURL  string    `json:"upload_url"`
	StorageKey string    `json:"storage_key"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AddRequest is the body for POST /messages/:id/attachments.
type AddRequest struct {
	StorageKey   string           `json:"storage_key" binding:"required"`
	Filename     string           `json:"filename" binding:"required"`
	MimeType     string           `json:"mime_type" binding:"required"`
	Size         int64            `json:"size" binding:"required"`
	ThumbnailKey string           `json:"thumbnail_key"`
	Metadata     *models.Metadata `json:"metadata"`
}

// DownloadURLResponse is a short-lived link to the stored file.
type DownloadURLResponse struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Handler handles attachment endpoints. Without an object store the upload
// and download URL endpoints answer 503 and registered sizes are trusted.
type Handler struct {
	chat    *chat.Service
	objects ObjectStore
	logger  *zap.Logger
}

// NewHandler creates an attachments handler. objects may be nil.
func NewHandler(svc *chat.Service, objects ObjectStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chat: svc, objects: objects, logger: logger}
}

// Register mounts the attachment routes.
func (h *Handler) Register(g *gin.RouterGroup, write ...gin.HandlerFunc) {
	g.GET("/attachments/:id", h.Get)
	g.GET("/attachments/:id/download-url", h.DownloadURL)
	w := g.Group("", write...)
	w.POST("/messages/:id/attachments/upload-url", h.UploadURL)
	w.POST("/messages/:id/attachments", h.Add)
	w.DELETE("/attachments/:id", h.Remove)
}

// UploadURL handles POST /messages/:id/attachments/upload-url.
func (h *Handler) UploadURL(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	msgID, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	if h.objects == nil {
		response.ServiceUnavailable(c, "object storage is not configured")
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := chat.ValidateFilename(req.Filename); err != nil {
		response.Error(c, err, "")
		return
	}
	if err := h.chat.ValidateUpload(req.MimeType, req.Size); err != nil {
		response.Error(c, err, "")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.chat.GetMessage(ctx, sc, msgID, false); err != nil {
		response.Fail(c, h.logger, err, "failed to load message")
		return
	}
	key := chat.AttachmentKey(sc.OrganizationID, msgID, req.Filename)
	url, err := h.objects.PresignAttachmentUpload(ctx, key, req.MimeType, req.Size)
	if err != nil {
		h.logger.Error("presign upload", zap.Error(err), zap.String("key", key))
		response.Internal(c, "failed to create upload url")
		return
	}
	response.OK(c, UploadURLResponse{
		UploadURL:  url,
		StorageKey: key,
		ExpiresAt:  time.Now().UTC().Add(h.objects.PresignExpire()),
	})
}

// Add handles POST /messages/:id/attachments. When object storage is
// configured the object must exist and match the declared size.
func (h *Handler) Add(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	msgID, ok := response.ParamUUID(c, "id", "message")
	if !ok {
		return
	}
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	if h.objects != nil {
		size, err := h.objects.AttachmentSize(ctx, req.StorageKey)
		if err != nil {
			h.logger.Debug("attachment object missing", zap.Error(err), zap.String("key", req.StorageKey))
			response.Error(c, apperror.Validation("storage_key", "no uploaded object under this key"), "")
			return
		}
		if size != req.Size {
			response.Error(c, apperror.Validation("size", "declared size %d does not match stored size %d", req.Size, size), "")
			return
		}
	}
	a, err := h.chat.AddAttachment(ctx, sc, chat.AddAttachmentInput{
		MessageID:    msgID,
		StorageKey:   req.StorageKey,
		Filename:     req.Filename,
		MimeType:     req.MimeType,
		Size:         req.Size,
		ThumbnailKey: req.ThumbnailKey,
		Metadata:     req.Metadata,
	})
	if err != nil {
		response.Fail(c, h.logger, err, "failed to add attachment")
		return
	}
	response.Created(c, a)
}

// Get handles GET /attachments/:id.
func (h *Handler) Get(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "attachment")
	if !ok {
		return
	}
	a, err := h.chat.GetAttachment(c.Request.Context(), sc, id)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to get attachment")
		return
	}
	response.OK(c, a)
}

// DownloadURL handles GET /attachments/:id/download-url.
func (h *Handler) DownloadURL(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "attachment")
	if !ok {
		return
	}
	if h.objects == nil {
		response.ServiceUnavailable(c, "object storage is not configured")
		return
	}
	ctx := c.Request.Context()
	a, err := h.chat.GetAttachment(ctx, sc, id)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to get attachment")
		return
	}
	url, err := h.objects.PresignAttachmentDownload(ctx, a.StorageKey, a.Filename)
	if err != nil {
		h.logger.Error("presign download", zap.Error(err), zap.String("key", a.StorageKey))
		response.Internal(c, "failed to create download url")
		return
	}
	response.OK(c, DownloadURLResponse{DownloadURL: url, ExpiresAt: time.Now().UTC().Add(h.objects.PresignExpire())})
}

// Remove handles DELETE /attachments/:id. The metadata row goes first; a
// failure to delete the stored object is logged and left for cleanup.
func (h *Handler) Remove(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "id", "attachment")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	a, err := h.chat.RemoveAttachment(ctx, sc, id)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to remove attachment")
		return
	}
	if h.objects != nil {
		for _, key := range []string{a.StorageKey, a.ThumbnailKey} {
			if key == "" {
				continue
			}
			if err := h.objects.DeleteAttachment(ctx, key); err != nil {
				h.logger.Warn("delete attachment object", zap.Error(err), zap.String("key", key))
			}
		}
	}
	response.NoContent(c)
}
