package search

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/metrics"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/store"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

const (
	defaultLimit   = 20
	maxLimit       = 100
	snippetRadius  = 60
	indexQueueSize = 1024

	EngineMeili = "meilisearch"
	EngineStore = "store"
)

// Engine is a full-text index of messages.
type Engine interface {
	Healthy() bool
	Search(q Query) ([]Hit, int, error)
	IndexMessage(rec MessageRecord) error
	IndexMessages(recs []MessageRecord) error
	DeleteMessage(id string) error
}

// Service searches messages through the engine when healthy and through the
// store otherwise. It also keeps the engine in step with message writes.
type Service struct {
	engine  Engine
	store   store.Messages
	threads store.Threads
	metrics *metrics.Metrics
	logger  *zap.Logger

	// Index writes are applied in submission order by a single goroutine.
	ops     chan indexOp
	pending sync.WaitGroup
}

// indexOp is one queued index write. A nil rec deletes deleteID.
type indexOp struct {
	rec      *MessageRecord
	deleteID string
}

// NewService builds the search facade. engine may be nil.
func NewService(engine Engine, st store.Store, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{engine: engine, store: st, threads: st, metrics: m, logger: logger}
	if engine != nil {
		s.ops = make(chan indexOp, indexQueueSize)
		go s.drain()
	}
	return s
}

// Input is a caller's search request.
type Input struct {
	Text     string
	ThreadID *uuid.UUID
	Limit    int
	Offset   int
}

// SearchMessages runs a free-text query over the caller's organization.
// Deleted messages never match.
func (s *Service) SearchMessages(ctx context.Context, sc tenant.Scope, in Input) (resp *Response, err error) {
	defer func() { s.metrics.Operation("search_messages", err) }()
	if err = sc.Validate(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, apperror.Validation("q", "search text is required")
	}
	if utf8.RuneCountInString(text) > 200 {
		return nil, apperror.Validation("q", "search text must be at most 200 characters")
	}
	if in.ThreadID != nil {
		t, terr := s.threads.GetThread(ctx, *in.ThreadID)
		if terr != nil {
			return nil, apperror.NotFound("thread", *in.ThreadID)
		}
		if err = tenant.Own(sc, "thread", t.ID, t.OrganizationID); err != nil {
			return nil, err
		}
	}
	q := Query{
		OrganizationID: sc.OrganizationID,
		Text:           text,
		ThreadID:       in.ThreadID,
		Limit:          clampLimit(in.Limit),
		Offset:         max(in.Offset, 0),
	}

	if s.engine != nil && s.engine.Healthy() {
		hits, total, serr := s.engine.Search(q)
		if serr == nil {
			return s.hydrate(ctx, sc, q, hits, total), nil
		}
		s.logger.Warn("search engine failed, falling back to store", zap.Error(serr))
	}
	return s.fallback(ctx, sc, q)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// hydrate replaces index hits with the stored messages. Hits that no longer
// exist, are deleted or belong elsewhere are dropped.
func (s *Service) hydrate(ctx context.Context, sc tenant.Scope, q Query, hits []Hit, total int) *Response {
	resp := newResponse(q, total, EngineMeili)
	threads := map[uuid.UUID]*models.Thread{}
	for _, h := range hits {
		m, err := s.store.GetMessage(ctx, h.ID)
		if err != nil || m.OrganizationID != sc.OrganizationID || m.IsDeleted {
			continue
		}
		resp.Messages = append(resp.Messages, Result{
			Message:        *m,
			Thread:         s.thread(ctx, threads, m.ThreadID),
			MatchSnippet:   h.Snippet,
			RelevanceScore: h.Score,
		})
	}
	return resp
}

func (s *Service) fallback(ctx context.Context, sc tenant.Scope, q Query) (*Response, error) {
	all, err := s.store.ListMessages(ctx, sc.OrganizationID, models.MessageFilter{ThreadID: q.ThreadID, Query: q.Text})
	if err != nil {
		return nil, err
	}
	resp := newResponse(q, len(all), EngineStore)
	threads := map[uuid.UUID]*models.Thread{}
	for _, m := range store.Page(all, q.Offset, q.Limit) {
		resp.Messages = append(resp.Messages, Result{
			Message:      m,
			Thread:       s.thread(ctx, threads, m.ThreadID),
			MatchSnippet: Snippet(m.Content, q.Text),
		})
	}
	return resp, nil
}

func newResponse(q Query, total int, engine string) *Response {
	return &Response{
		Messages: []Result{},
		Total:    total,
		Page:     q.Offset/q.Limit + 1,
		PageSize: q.Limit,
		Engine:   engine,
	}
}

func (s *Service) thread(ctx context.Context, cache map[uuid.UUID]*models.Thread, id uuid.UUID) *models.Thread {
	if t, ok := cache[id]; ok {
		return t
	}
	t, err := s.threads.GetThread(ctx, id)
	if err != nil {
		t = nil
	}
	cache[id] = t
	return t
}

// Snippet cuts the text around the first case-insensitive match and marks it.
func Snippet(content, text string) string {
	lc, lt := strings.ToLower(content), strings.ToLower(text)
	i := strings.Index(lc, lt)
	if i < 0 || len(lc) != len(content) || len(lt) != len(text) {
		return truncateRunes(content, 2*snippetRadius)
	}
	start := i
	for n := 0; start > 0 && n < snippetRadius; n++ {
		_, size := utf8.DecodeLastRuneInString(content[:start])
		start -= size
	}
	end := i + len(lt)
	for n := 0; end < len(content) && n < snippetRadius; n++ {
		_, size := utf8.DecodeRuneInString(content[end:])
		end += size
	}
	var b strings.Builder
	if start > 0 {
		b.WriteString("…")
	}
	b.WriteString(content[start:i])
	b.WriteString("<mark>")
	b.WriteString(content[i : i+len(lt)])
	b.WriteString("</mark>")
	b.WriteString(content[i+len(lt) : end])
	if end < len(content) {
		b.WriteString("…")
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

// IndexMessage queues a message for indexing.
func (s *Service) IndexMessage(_ context.Context, m *models.Message) {
	if s.engine == nil || m == nil {
		return
	}
	rec := RecordFromMessage(m)
	s.enqueue(indexOp{rec: &rec})
}

// RemoveMessage queues the removal of a message from the index.
func (s *Service) RemoveMessage(_ context.Context, id uuid.UUID) {
	if s.engine == nil {
		return
	}
	s.enqueue(indexOp{deleteID: id.String()})
}

func (s *Service) enqueue(op indexOp) {
	s.pending.Add(1)
	s.ops <- op
}

func (s *Service) drain() {
	for op := range s.ops {
		s.apply(op)
		s.pending.Done()
	}
}

func (s *Service) apply(op indexOp) {
	if op.rec == nil {
		if err := s.engine.DeleteMessage(op.deleteID); err != nil {
			s.logger.Warn("remove message from index failed", zap.String("message_id", op.deleteID), zap.Error(err))
		}
		return
	}
	if err := s.engine.IndexMessage(*op.rec); err != nil {
		s.logger.Warn("index message failed", zap.String("message_id", op.rec.ID), zap.Error(err))
	}
}

// Reindex rebuilds the index for one organization from the store, in
// batches. It returns the number of messages indexed.
func (s *Service) Reindex(ctx context.Context, orgID uuid.UUID, batch int) (int, error) {
	if s.engine == nil {
		return 0, nil
	}
	if batch <= 0 {
		batch = 500
	}
	indexed := 0
	for offset := 0; ; offset += batch {
		msgs, err := s.store.ListMessages(ctx, orgID, models.MessageFilter{Limit: batch, Offset: offset})
		if err != nil {
			return indexed, err
		}
		if len(msgs) == 0 {
			return indexed, nil
		}
		recs := make([]MessageRecord, 0, len(msgs))
		for i := range msgs {
			recs = append(recs, RecordFromMessage(&msgs[i]))
		}
		if err := s.engine.IndexMessages(recs); err != nil {
			return indexed, err
		}
		indexed += len(recs)
		if len(msgs) < batch {
			return indexed, nil
		}
	}
}

// Wait blocks until every queued index write has been applied.
func (s *Service) Wait() {
	s.pending.Wait()
}
