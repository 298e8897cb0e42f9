// Package chat implements the chat data model operations: threads, messages,
// the tag registry and the tag/reaction/attachment associations. Every
// operation takes a tenant.Scope and checks ownership through package tenant
// before touching the store.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/metrics"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/store"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

// Directory looks up users in the external identity store.
type Directory interface {
	GetUser(ctx context.Context, orgID, userID uuid.UUID) (*models.User, error)
}

// PostResolver resolves a thread's external post reference. It never fails:
// nil means the post is unavailable.
type PostResolver interface {
	Resolve(ctx context.Context, orgID, postID uuid.UUID) *models.PostContext
}

// Publisher delivers realtime events.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Indexer keeps the free-text search index in step with messages.
// Implementations must not block the caller on the index.
type Indexer interface {
	IndexMessage(ctx context.Context, m *models.Message)
	RemoveMessage(ctx context.Context, id uuid.UUID)
}

// Options are the tunable limits of the service.
type Options struct {
	DefaultPageSize    int
	MaxPageSize        int
	MaxAttachmentBytes int64
}

// Deps are the collaborators of the service. Only Store is required.
type Deps struct {
	Store     store.Store
	Directory Directory
	Posts     PostResolver
	Publisher Publisher
	Indexer   Indexer
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Service implements the chat operations.
type Service struct {
	store     store.Store
	directory Directory
	posts     PostResolver
	publisher Publisher
	indexer   Indexer
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
	opts      Options
}

// NewService builds a Service, filling unset collaborators with no-ops.
func NewService(d Deps, opts Options) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.Posts == nil {
		d.Posts = noPosts{}
	}
	if d.Publisher == nil {
		d.Publisher = noPublisher{}
	}
	if d.Indexer == nil {
		d.Indexer = noIndexer{}
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 50
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 200
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = 25 << 20
	}
	return &Service{
		store:     d.Store,
		directory: d.Directory,
		posts:     d.Posts,
		publisher: d.Publisher,
		indexer:   d.Indexer,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Clock,
		opts:      opts,
	}
}

type noPosts struct{}

func (noPosts) Resolve(context.Context, uuid.UUID, uuid.UUID) *models.PostContext { return nil }

type noPublisher struct{}

func (noPublisher) Publish(context.Context, models.Event) error { return nil }

type noIndexer struct{}

func (noIndexer) IndexMessage(context.Context, *models.Message) {}
func (noIndexer) RemoveMessage(context.Context, uuid.UUID)      {}

// publish emits an event. Delivery failures are logged and counted but never
// fail the mutation that produced the event.
func (s *Service) publish(ctx context.Context, sc tenant.Scope, typ models.EventType, entityID, threadID uuid.UUID, data interface{}) {
	ev := models.Event{
		Type:           typ,
		EntityID:       entityID,
		OrganizationID: sc.OrganizationID,
		ThreadID:       threadID,
		ActorID:        sc.UserID,
		Timestamp:      s.now(),
		Data:           data,
	}
	err := s.publisher.Publish(ctx, ev)
	if err != nil {
		s.logger.Warn("publish event failed",
			zap.String("type", string(typ)),
			zap.String("entity_id", entityID.String()),
			zap.Error(err))
	}
	s.metrics.Event(string(typ), err)
}

// notFound converts store.ErrNotFound into the domain error for entity.
func notFound(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperror.NotFound(entity, id)
	}
	return err
}

func (s *Service) pageSize(limit int) int {
	if limit <= 0 {
		return s.opts.DefaultPageSize
	}
	if limit > s.opts.MaxPageSize {
		return s.opts.MaxPageSize
	}
	return limit
}

func (s *Service) loadThread(ctx context.Context, sc tenant.Scope, id uuid.UUID) (*models.Thread, error) {
	t, err := s.store.GetThread(ctx, id)
	if err != nil {
		return nil, notFound(err, "thread", id)
	}
	if err := tenant.Own(sc, "thread", id, t.OrganizationID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) loadMessage(ctx context.Context, sc tenant.Scope, id uuid.UUID) (*models.Message, error) {
	m, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, notFound(err, "message", id)
	}
	if err := tenant.Own(sc, "message", id, m.OrganizationID); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) loadTag(ctx context.Context, sc tenant.Scope, id uuid.UUID) (*models.Tag, error) {
	t, err := s.store.GetTag(ctx, id)
	if err != nil {
		return nil, notFound(err, "tag", id)
	}
	if err := tenant.Own(sc, "tag", id, t.OrganizationID); err != nil {
		return nil, err
	}
	return t, nil
}
