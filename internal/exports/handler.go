package exports

import (
	"context"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/export"
	"github.com/dfworx/chat-backend/internal/middleware"
	"github.com/dfworx/chat-backend/pkg/response"
)

// Presigner links to finished export artifacts. *storage.S3 implements it.
type Presigner interface {
	PresignExportDownload(ctx context.Context, key, filename string) (string, error)
}

// ExportRequest is the body for POST /threads/:id/export.
type ExportRequest struct {
	Format             export.Format `json:"format" binding:"required"`
	TagIDs             []uuid.UUID   `json:"tag_ids"`
	From               *time.Time    `json:"from"`
	To                 *time.Time    `json:"to"`
	IncludeAttachments bool          `json:"include_attachments"`
	IncludeTags        bool          `json:"include_tags"`
	IncludeDeleted     bool          `json:"include_deleted"`
}

// JobView is a job status with a download link once it completed.
type JobView struct {
	*export.Job
	DownloadURL string `json:"download_url,omitempty"`
}

// Handler serves thread exports. Without jobs, async exports answer 503.
type Handler struct {
	exporter  *export.Exporter
	jobs      *export.Jobs
	presigner Presigner
	logger    *zap.Logger
}

// NewHandler creates an exports handler. jobs and presigner may be nil.
func NewHandler(exporter *export.Exporter, jobs *export.Jobs, presigner Presigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{exporter: exporter, jobs: jobs, presigner: presigner, logger: logger}
}

// Register mounts the export routes.
func (h *Handler) Register(g *gin.RouterGroup, write ...gin.HandlerFunc) {
	g.GET("/exports/:jobId", h.Status)
	w := g.Group("", write...)
	w.POST("/threads/:id/export", h.Export)
}

// Export handles POST /threads/:id/export[?async=true]. The synchronous form
// answers with the file itself.
func (h *Handler) Export(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	threadID, ok := response.ParamUUID(c, "id", "thread")
	if !ok {
		return
	}
	async, ok := response.QueryBool(c, "async")
	if !ok {
		return
	}
	var body ExportRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !middleware.AllowDeleted(c, sc, body.IncludeDeleted) {
		return
	}
	req := export.Request{
		ThreadID:           threadID,
		Format:             body.Format,
		TagIDs:             body.TagIDs,
		From:               body.From,
		To:                 body.To,
		IncludeAttachments: body.IncludeAttachments,
		IncludeTags:        body.IncludeTags,
		IncludeDeleted:     body.IncludeDeleted,
	}

	if async != nil && *async {
		if h.jobs == nil {
			response.ServiceUnavailable(c, "async exports are not available")
			return
		}
		job, err := h.jobs.Submit(c.Request.Context(), sc, req)
		if err != nil {
			response.Fail(c, h.logger, err, "failed to queue export")
			return
		}
		response.Accepted(c, job)
		return
	}

	res, err := h.exporter.Export(c.Request.Context(), sc, req)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to export thread")
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
	c.Data(http.StatusOK, res.MimeType, res.Data)
}

// Status handles GET /exports/:jobId.
func (h *Handler) Status(c *gin.Context) {
	sc, ok := middleware.MustScope(c)
	if !ok {
		return
	}
	id, ok := response.ParamUUID(c, "jobId", "export")
	if !ok {
		return
	}
	if h.jobs == nil {
		response.ServiceUnavailable(c, "async exports are not available")
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), sc, id)
	if err != nil {
		response.Fail(c, h.logger, err, "failed to load export")
		return
	}
	view := JobView{Job: job}
	if job.State == export.JobCompleted && h.presigner != nil {
		url, err := h.presigner.PresignExportDownload(c.Request.Context(), job.ObjectKey, job.Filename)
		if err != nil {
			h.logger.Error("presign export", zap.Error(err), zap.String("job_id", id.String()))
		} else {
			view.DownloadURL = url
		}
	}
	response.OK(c, view)
}
