package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/store"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

const maxTitleLength = 200

// CreateThreadInput is the payload of CreateThread.
type CreateThreadInput struct {
	Type        models.ThreadType
	Title       string
	Description string
	PostID      *uuid.UUID
	TagIDs      []uuid.UUID
	Metadata    *models.Metadata
}

// UpdateThreadInput carries the fields to change; nil leaves a field as is.
type UpdateThreadInput struct {
	Title       *string
	Description *string
	Metadata    *models.Metadata
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperror.Validation("title", "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", apperror.Validation("title", "title must be at most %d characters", maxTitleLength)
	}
	return title, nil
}

// CreateThread creates a global or post-bound thread. A post thread must
// carry a post id and a global thread must not. The post itself is not
// looked up: the reference is opaque and may dangle later anyway.
func (s *Service) CreateThread(ctx context.Context, sc tenant.Scope, in CreateThreadInput) (thread *models.Thread, err error) {
	defer func() { s.metrics.Operation("create_thread", err) }()
	if err = sc.Validate(); err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, apperror.Validation("type", "type must be global or post")
	}
	if in.Type == models.ThreadPost && (in.PostID == nil || *in.PostID == uuid.Nil) {
		return nil, apperror.Validation("post_id", "post threads require a post id")
	}
	if in.Type == models.ThreadGlobal && in.PostID != nil {
		return nil, apperror.Validation("post_id", "global threads cannot reference a post")
	}
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if err = in.Metadata.Validate(models.KindThread); err != nil {
		return nil, err
	}

	now := s.now()
	thread = &models.Thread{
		ID:             uuid.New(),
		Type:           in.Type,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		PostID:         in.PostID,
		OrganizationID: sc.OrganizationID,
		CreatedBy:      sc.UserID,
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	links, err := s.buildLinks(ctx, sc, models.KindThread, thread.ID, in.TagIDs)
	if err != nil {
		return nil, err
	}
	if err = s.store.CreateThread(ctx, thread, links); err != nil {
		return nil, err
	}
	s.publish(ctx, sc, models.EventThreadCreated, thread.ID, thread.ID, thread)
	return thread, nil
}

// GetThread returns a thread with its tags, live message count, latest
// message and, for post threads, the resolved post context. An unresolvable
// post never fails the read.
func (s *Service) GetThread(ctx context.Context, sc tenant.Scope, id uuid.UUID) (*models.ThreadView, error) {
	t, err := s.loadThread(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	tags, err := s.store.ListTagsFor(ctx, sc.OrganizationID, models.KindThread, id)
	if err != nil {
		return nil, err
	}
	view := &models.ThreadView{Thread: *t, Tags: tags}
	if view.MessageCount, view.LastMessage, err = s.store.ThreadActivity(ctx, sc.OrganizationID, id); err != nil {
		return nil, err
	}
	if t.Type == models.ThreadPost && t.PostID != nil {
		view.Post = s.posts.Resolve(ctx, sc.OrganizationID, *t.PostID)
		view.PostUnavailable = view.Post == nil
	}
	return view, nil
}

// UpdateThread changes title, description or metadata.
func (s *Service) UpdateThread(ctx context.Context, sc tenant.Scope, id uuid.UUID, in UpdateThreadInput) (thread *models.Thread, err error) {
	defer func() { s.metrics.Operation("update_thread", err) }()
	if thread, err = s.loadThread(ctx, sc, id); err != nil {
		return nil, err
	}
	if in.Title != nil {
		if thread.Title, err = validateTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		thread.Description = strings.TrimSpace(*in.Description)
	}
	if in.Metadata != nil {
		if err = in.Metadata.Validate(models.KindThread); err != nil {
			return nil, err
		}
		thread.Metadata = in.Metadata
	}
	thread.UpdatedAt = s.now()
	if err = s.store.UpdateThread(ctx, thread); err != nil {
		return nil, notFound(err, "thread", id)
	}
	s.publish(ctx, sc, models.EventThreadUpdated, thread.ID, thread.ID, thread)
	return thread, nil
}

// ArchiveThread archives a thread. Archiving twice is a no-op and emits a
// single thread_updated.
func (s *Service) ArchiveThread(ctx context.Context, sc tenant.Scope, id uuid.UUID) (*models.Thread, error) {
	return s.setArchived(ctx, sc, id, true)
}

// UnarchiveThread reverses ArchiveThread with the same idempotency.
func (s *Service) UnarchiveThread(ctx context.Context, sc tenant.Scope, id uuid.UUID) (*models.Thread, error) {
	return s.setArchived(ctx, sc, id, false)
}

func (s *Service) setArchived(ctx context.Context, sc tenant.Scope, id uuid.UUID, archived bool) (thread *models.Thread, err error) {
	op := "archive_thread"
	if !archived {
		op = "unarchive_thread"
	}
	defer func() { s.metrics.Operation(op, err) }()
	if thread, err = s.loadThread(ctx, sc, id); err != nil {
		return nil, err
	}
	now := s.now()
	changed, err := s.store.SetThreadArchived(ctx, id, archived, now)
	if err != nil {
		return nil, notFound(err, "thread", id)
	}
	if !changed {
		return thread, nil
	}
	thread.IsArchived = archived
	thread.UpdatedAt = now
	s.publish(ctx, sc, models.EventThreadUpdated, thread.ID, thread.ID, thread)
	return thread, nil
}

// ListThreads lists threads with AND semantics across every filter. Each tag
// id is looked up independently and the resulting id sets are intersected
// with the base listing before paging.
func (s *Service) ListThreads(ctx context.Context, sc tenant.Scope, f models.ThreadFilter) ([]models.Thread, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if f.Type != nil && !f.Type.Valid() {
		return nil, apperror.Validation("type", "type must be global or post")
	}
	limit := s.pageSize(f.Limit)
	if len(f.TagIDs) == 0 {
		f.Limit = limit
		return s.store.ListThreads(ctx, sc.OrganizationID, f)
	}

	allowed, err := s.intersectTagged(ctx, sc, models.KindThread, f.TagIDs)
	if err != nil {
		return nil, err
	}
	offset := f.Offset
	f.Limit, f.Offset = 0, 0
	base, err := s.store.ListThreads(ctx, sc.OrganizationID, f)
	if err != nil {
		return nil, err
	}
	out := make([]models.Thread, 0, len(base))
	for _, t := range base {
		if _, ok := allowed[t.ID]; ok {
			out = append(out, t)
		}
	}
	return store.Page(out, offset, limit), nil
}

// intersectTagged returns the ids of entities carrying every tag in tagIDs.
func (s *Service) intersectTagged(ctx context.Context, sc tenant.Scope, kind models.EntityKind, tagIDs []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	var acc map[uuid.UUID]struct{}
	for _, tagID := range tagIDs {
		ids, err := s.store.EntityIDsByTag(ctx, sc.OrganizationID, kind, tagID)
		if err != nil {
			return nil, err
		}
		next := make(map[uuid.UUID]struct{}, len(ids))
		for _, id := range ids {
			if acc == nil {
				next[id] = struct{}{}
			} else if _, ok := acc[id]; ok {
				next[id] = struct{}{}
			}
		}
		acc = next
		if len(acc) == 0 {
			break
		}
	}
	return acc, nil
}
