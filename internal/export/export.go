// Package export renders a thread and its messages as a JSON or Markdown
// document. Exports run synchronously through Exporter or asynchronously as
// queued jobs tracked in Jobs.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/metrics"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

// Format is the output encoding of an export.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == FormatJSON || f == FormatMarkdown
}

const (
	fetchPage          = 200
	defaultMaxMessages = 10000
)

// Source is the read side of the chat service used to assemble exports.
type Source interface {
	GetThread(ctx context.Context, sc tenant.Scope, id uuid.UUID) (*models.ThreadView, error)
	ListMessages(ctx context.Context, sc tenant.Scope, f models.MessageFilter) ([]models.Message, error)
	GetMessage(ctx context.Context, sc tenant.Scope, id uuid.UUID, includeDeleted bool) (*models.MessageComplete, error)
}

// Request selects what goes into an export. A message matches TagIDs when
// it carries any of them.
type Request struct {
	ThreadID           uuid.UUID   `json:"thread_id"`
	Format             Format      `json:"format"`
	TagIDs             []uuid.UUID `json:"tag_ids,omitempty"`
	From               *time.Time  `json:"from,omitempty"`
	To                 *time.Time  `json:"to,omitempty"`
	IncludeAttachments bool        `json:"include_attachments"`
	IncludeTags        bool        `json:"include_tags"`
	IncludeDeleted     bool        `json:"include_deleted"`
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if r.ThreadID == uuid.Nil {
		return apperror.Validation("thread_id", "thread is required")
	}
	if !r.Format.Valid() {
		return apperror.Validation("format", "format must be json or markdown")
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return apperror.Validation("to", "to must not be before from")
	}
	return nil
}

// Message is one exported message with the associations the request asked for.
type Message struct {
	models.Message
	Tags        []models.Tag        `json:"tags,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	Reactions   []models.Reaction   `json:"reactions,omitempty"`
	ReplyCount  int                 `json:"reply_count"`
}

// Document is the format-independent export content.
type Document struct {
	Thread     models.ThreadView `json:"thread"`
	Messages   []Message         `json:"messages"`
	Tags       []models.Tag      `json:"tags"`
	Request    Request           `json:"request"`
	ExportedAt time.Time         `json:"exported_at"`
	ExportedBy uuid.UUID         `json:"exported_by"`
	Truncated  bool              `json:"truncated,omitempty"`
}

// Result is a rendered export.
type Result struct {
	Data     []byte `json:"-"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

// Exporter builds and renders exports.
type Exporter struct {
	source      Source
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
	maxMessages int
}

// NewExporter builds an Exporter. maxMessages caps the messages in one
// document; zero means the default.
func NewExporter(source Source, maxMessages int, m *metrics.Metrics, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	return &Exporter{
		source:      source,
		metrics:     m,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		maxMessages: maxMessages,
	}
}

// Export builds and renders the requested document.
func (e *Exporter) Export(ctx context.Context, sc tenant.Scope, req Request) (res *Result, err error) {
	defer func() { e.metrics.ExportJob(string(req.Format), err) }()
	doc, err := e.Build(ctx, sc, req)
	if err != nil {
		return nil, err
	}
	return Render(doc)
}

// Build assembles the document for req. Messages keep thread order.
func (e *Exporter) Build(ctx context.Context, sc tenant.Scope, req Request) (*Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	view, err := e.source.GetThread(ctx, sc, req.ThreadID)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Thread:     *view,
		Messages:   []Message{},
		Tags:       []models.Tag{},
		Request:    req,
		ExportedAt: e.now(),
		ExportedBy: sc.UserID,
	}

	wanted := make(map[uuid.UUID]struct{}, len(req.TagIDs))
	for _, id := range req.TagIDs {
		wanted[id] = struct{}{}
	}
	tags := map[uuid.UUID]models.Tag{}
	if req.IncludeTags {
		for _, t := range view.Tags {
			tags[t.ID] = t
		}
	} else {
		doc.Thread.Tags = nil
	}

	filter := models.MessageFilter{
		ThreadID:       &req.ThreadID,
		From:           req.From,
		To:             req.To,
		IncludeDeleted: req.IncludeDeleted,
		Limit:          fetchPage,
	}
	for {
		page, err := e.source.ListMessages(ctx, sc, filter)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		filter.Offset += len(page)
		for _, m := range page {
			full, err := e.source.GetMessage(ctx, sc, m.ID, req.IncludeDeleted)
			if err != nil {
				if apperror.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			if len(wanted) > 0 && !carriesAny(full.Tags, wanted) {
				continue
			}
			if len(doc.Messages) == e.maxMessages {
				doc.Truncated = true
				break
			}
			out := Message{Message: full.Message, Reactions: full.Reactions, ReplyCount: full.ReplyCount}
			if req.IncludeTags {
				out.Tags = full.Tags
				for _, t := range full.Tags {
					tags[t.ID] = t
				}
			}
			if req.IncludeAttachments {
				out.Attachments = full.Attachments
			}
			doc.Messages = append(doc.Messages, out)
		}
		if doc.Truncated {
			e.logger.Warn("export truncated",
				zap.String("thread_id", req.ThreadID.String()), zap.Int("max_messages", e.maxMessages))
			break
		}
	}

	for _, t := range tags {
		doc.Tags = append(doc.Tags, t)
	}
	sort.Slice(doc.Tags, func(i, j int) bool { return doc.Tags[i].Slug < doc.Tags[j].Slug })
	return doc, nil
}

func carriesAny(tags []models.Tag, wanted map[uuid.UUID]struct{}) bool {
	for _, t := range tags {
		if _, ok := wanted[t.ID]; ok {
			return true
		}
	}
	return false
}

// Render encodes doc in its requested format.
func Render(doc *Document) (*Result, error) {
	base := models.Slugify(doc.Thread.Title)
	if base == "" {
		base = "thread-" + doc.Thread.ID.String()
	}
	base += "-" + doc.ExportedAt.Format("20060102-150405")

	switch doc.Request.Format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json export: %w", err)
		}
		return &Result{Data: data, Filename: base + ".json", MimeType: "application/json"}, nil
	case FormatMarkdown:
		data, err := renderMarkdown(doc)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: base + ".md", MimeType: "text/markdown; charset=utf-8"}, nil
	default:
		return nil, apperror.Validation("format", "format must be json or markdown")
	}
}
