package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/store"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

const (
	maxContentLength = 10000
	maxMentions      = 50
	maxChainDepth    = 1000
)

// SendMessageInput is the payload of SendMessage. Mentions are user ids as
// sent by the client.
type SendMessageInput struct {
	ThreadID uuid.UUID
	Content  string
	ParentID *uuid.UUID
	Mentions []string
	TagIDs   []uuid.UUID
	Metadata *models.Metadata
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperror.Validation("content", "content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return apperror.Validation("content", "content must be at most %d characters", maxContentLength)
	}
	return nil
}

// parseMentions checks id syntax and collapses repeats. Mentioned users are
// not looked up.
func parseMentions(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw) > maxMentions {
		return nil, apperror.Validation("mentions", "at most %d mentions allowed", maxMentions)
	}
	seen := make(map[uuid.UUID]struct{}, len(raw))
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(strings.TrimSpace(r))
		if err != nil {
			return nil, apperror.Validation("mentions", "%q is not a user id", r)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// author snapshots the caller's display identity. Directory failures fall
// back to the token e-mail; sending never fails on the directory.
func (s *Service) author(ctx context.Context, sc tenant.Scope) models.Author {
	a := models.Author{ID: sc.UserID, Email: sc.Email}
	if local, _, ok := strings.Cut(sc.Email, "@"); ok {
		a.Name = local
	}
	if s.directory == nil {
		return a
	}
	u, err := s.directory.GetUser(ctx, sc.OrganizationID, sc.UserID)
	if err != nil || u == nil {
		s.logger.Debug("author lookup failed, using token identity",
			zap.String("user_id", sc.UserID.String()), zap.Error(err))
		return a
	}
	if u.Name != "" {
		a.Name = u.Name
	}
	if u.Email != "" {
		a.Email = u.Email
	}
	return a
}

// SendMessage appends a message to a thread. Tag links are written in the
// same transaction as the message.
func (s *Service) SendMessage(ctx context.Context, sc tenant.Scope, in SendMessageInput) (msg *models.Message, err error) {
	defer func() { s.metrics.Operation("send_message", err) }()
	if err = sc.Validate(); err != nil {
		return nil, err
	}
	if err = validateContent(in.Content); err != nil {
		return nil, err
	}
	if err = in.Metadata.Validate(models.KindMessage); err != nil {
		return nil, err
	}
	thread, err := s.loadThread(ctx, sc, in.ThreadID)
	if err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		parent, perr := s.store.GetMessage(ctx, *in.ParentID)
		if perr != nil || parent.OrganizationID != sc.OrganizationID || parent.ThreadID != thread.ID {
			return nil, apperror.Validation("parent_message_id", "parent message is not in this thread")
		}
	}
	mentions, err := parseMentions(in.Mentions)
	if err != nil {
		return nil, err
	}

	a := s.author(ctx, sc)
	now := s.now()
	msg = &models.Message{
		ID:              uuid.New(),
		ThreadID:        thread.ID,
		Content:         in.Content,
		AuthorID:        a.ID,
		AuthorName:      a.Name,
		AuthorEmail:     a.Email,
		ParentMessageID: in.ParentID,
		OrganizationID:  sc.OrganizationID,
		Mentions:        mentions,
		Metadata:        in.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	links, err := s.buildLinks(ctx, sc, models.KindMessage, msg.ID, in.TagIDs)
	if err != nil {
		return nil, err
	}
	if err = s.store.CreateMessage(ctx, msg, links); err != nil {
		return nil, err
	}
	s.indexer.IndexMessage(ctx, msg)
	s.publish(ctx, sc, models.EventMessageCreated, msg.ID, msg.ThreadID, msg)
	return msg, nil
}

// EditMessage replaces a message's content. Only the author may edit, and
// tombstones cannot be edited. Concurrent edits resolve last-write-wins.
func (s *Service) EditMessage(ctx context.Context, sc tenant.Scope, id uuid.UUID, content string) (msg *models.Message, err error) {
	defer func() { s.metrics.Operation("edit_message", err) }()
	if err = validateContent(content); err != nil {
		return nil, err
	}
	if msg, err = s.loadMessage(ctx, sc, id); err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, apperror.NotFound("message", id)
	}
	if msg.AuthorID != sc.UserID {
		return nil, apperror.Validation("author_id", "only the author can edit this message")
	}
	if msg, err = s.store.UpdateMessageContent(ctx, id, content, s.now()); err != nil {
		return nil, notFound(err, "message", id)
	}
	s.indexer.IndexMessage(ctx, msg)
	s.publish(ctx, sc, models.EventMessageUpdated, msg.ID, msg.ThreadID, msg)
	return msg, nil
}

// SoftDeleteMessage tombstones a message, keeping its content. The author or
// a moderator may delete; repeating the call is a no-op.
func (s *Service) SoftDeleteMessage(ctx context.Context, sc tenant.Scope, id uuid.UUID) (msg *models.Message, err error) {
	defer func() { s.metrics.Operation("delete_message", err) }()
	if msg, err = s.loadMessage(ctx, sc, id); err != nil {
		return nil, err
	}
	if msg.AuthorID != sc.UserID && !sc.Role.CanModerate() {
		return nil, apperror.Validation("author_id", "only the author or a moderator can delete this message")
	}
	if msg.IsDeleted {
		return msg, nil
	}
	now := s.now()
	changed, err := s.store.MarkMessageDeleted(ctx, id, now)
	if err != nil {
		return nil, notFound(err, "message", id)
	}
	msg.IsDeleted = true
	msg.UpdatedAt = now
	if changed {
		s.indexer.RemoveMessage(ctx, id)
		s.publish(ctx, sc, models.EventMessageDeleted, msg.ID, msg.ThreadID, map[string]interface{}{"id": msg.ID})
	}
	return msg, nil
}

// ListMessages lists messages in (created_at, seq) order. Tombstones are
// excluded unless IncludeDeleted is set. A tag filter is resolved through
// the tag index and merged with the base listing before paging.
func (s *Service) ListMessages(ctx context.Context, sc tenant.Scope, f models.MessageFilter) ([]models.Message, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if f.ThreadID != nil {
		if _, err := s.loadThread(ctx, sc, *f.ThreadID); err != nil {
			return nil, err
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, apperror.Validation("to", "to must not be before from")
	}
	limit := s.pageSize(f.Limit)
	if f.TagID == nil {
		f.Limit = limit
		return s.store.ListMessages(ctx, sc.OrganizationID, f)
	}

	allowed, err := s.intersectTagged(ctx, sc, models.KindMessage, []uuid.UUID{*f.TagID})
	if err != nil {
		return nil, err
	}
	offset := f.Offset
	f.Limit, f.Offset = 0, 0
	base, err := s.store.ListMessages(ctx, sc.OrganizationID, f)
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(allowed))
	for _, m := range base {
		if _, ok := allowed[m.ID]; ok {
			out = append(out, m)
		}
	}
	return store.Page(out, offset, limit), nil
}

// ReplyChain returns the path from the top-level ancestor down to the
// message. Tombstoned ancestors stay in the chain to keep it connected, with
// their content withheld.
func (s *Service) ReplyChain(ctx context.Context, sc tenant.Scope, id uuid.UUID) ([]models.Message, error) {
	m, err := s.loadMessage(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, apperror.NotFound("message", id)
	}
	chain := []models.Message{*m}
	seen := map[uuid.UUID]struct{}{m.ID: {}}
	for m.ParentMessageID != nil && len(chain) < maxChainDepth {
		pid := *m.ParentMessageID
		if _, loop := seen[pid]; loop {
			break
		}
		seen[pid] = struct{}{}
		if m, err = s.loadMessage(ctx, sc, pid); err != nil {
			return nil, err
		}
		if m.IsDeleted {
			m.Content = ""
		}
		chain = append(chain, *m)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Replies lists the live direct replies to a message.
func (s *Service) Replies(ctx context.Context, sc tenant.Scope, id uuid.UUID) ([]models.Message, error) {
	if _, err := s.loadMessage(ctx, sc, id); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, sc.OrganizationID, models.MessageFilter{ParentID: &id})
}

// GetMessage returns a message with its tags, attachments, reactions and
// reply count. Tombstones are hidden unless includeDeleted is set.
func (s *Service) GetMessage(ctx context.Context, sc tenant.Scope, id uuid.UUID, includeDeleted bool) (*models.MessageComplete, error) {
	m, err := s.loadMessage(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted && !includeDeleted {
		return nil, apperror.NotFound("message", id)
	}
	out := &models.MessageComplete{Message: *m}
	if out.Tags, err = s.store.ListTagsFor(ctx, sc.OrganizationID, models.KindMessage, id); err != nil {
		return nil, err
	}
	if out.Attachments, err = s.store.ListAttachments(ctx, sc.OrganizationID, id); err != nil {
		return nil, err
	}
	if out.Reactions, err = s.store.ListReactions(ctx, sc.OrganizationID, id); err != nil {
		return nil, err
	}
	if out.ReplyCount, err = s.store.CountReplies(ctx, sc.OrganizationID, id); err != nil {
		return nil, err
	}
	return out, nil
}
