package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
)

type linkKey struct {
	kind     models.EntityKind
	entityID uuid.UUID
	tagID    uuid.UUID
}

type reactionKey struct {
	messageID uuid.UUID
	userID    uuid.UUID
	emoji     string
}

type slugKey struct {
	orgID uuid.UUID
	slug  string
}

// Memory is an in-process Store. Returned values are copies; callers never
// share state with the maps.
type Memory struct {
	mu          sync.RWMutex
	seq         int64
	threads     map[uuid.UUID]*models.Thread
	messages    map[uuid.UUID]*models.Message
	tags        map[uuid.UUID]*models.Tag
	slugs       map[slugKey]uuid.UUID
	links       map[linkKey]*models.TagLink
	reactions   map[reactionKey]*models.Reaction
	attachments map[uuid.UUID]*models.Attachment
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		threads:     make(map[uuid.UUID]*models.Thread),
		messages:    make(map[uuid.UUID]*models.Message),
		tags:        make(map[uuid.UUID]*models.Tag),
		slugs:       make(map[slugKey]uuid.UUID),
		links:       make(map[linkKey]*models.TagLink),
		reactions:   make(map[reactionKey]*models.Reaction),
		attachments: make(map[uuid.UUID]*models.Attachment),
	}
}

func copyMetadata(m *models.Metadata) *models.Metadata {
	if m == nil {
		return nil
	}
	out := &models.Metadata{Version: m.Version}
	if m.Values != nil {
		out.Values = make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			out.Values[k] = v
		}
	}
	return out
}

func copyThread(t *models.Thread) *models.Thread {
	c := *t
	if t.PostID != nil {
		id := *t.PostID
		c.PostID = &id
	}
	c.Metadata = copyMetadata(t.Metadata)
	return &c
}

func copyMessage(m *models.Message) *models.Message {
	c := *m
	if m.ParentMessageID != nil {
		id := *m.ParentMessageID
		c.ParentMessageID = &id
	}
	if m.Mentions != nil {
		c.Mentions = append([]uuid.UUID(nil), m.Mentions...)
	}
	c.Metadata = copyMetadata(m.Metadata)
	return &c
}

func copyTag(t *models.Tag) *models.Tag {
	c := *t
	c.Metadata = copyMetadata(t.Metadata)
	return &c
}

func copyAttachment(a *models.Attachment) *models.Attachment {
	c := *a
	c.Metadata = copyMetadata(a.Metadata)
	return &c
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// insertLinks must be called with mu held. It checks every link before
// writing any so a duplicate leaves no partial state behind.
func (s *Memory) insertLinks(links []models.TagLink) error {
	seen := make(map[linkKey]struct{}, len(links))
	for _, l := range links {
		k := linkKey{l.Kind, l.EntityID, l.TagID}
		if _, ok := s.links[k]; ok {
			return ErrDuplicate
		}
		if _, ok := seen[k]; ok {
			return ErrDuplicate
		}
		seen[k] = struct{}{}
	}
	for i := range links {
		l := links[i]
		s.links[linkKey{l.Kind, l.EntityID, l.TagID}] = &l
	}
	return nil
}

func (s *Memory) CreateThread(_ context.Context, t *models.Thread, links []models.TagLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[t.ID]; ok {
		return ErrDuplicate
	}
	if err := s.insertLinks(links); err != nil {
		return err
	}
	s.threads[t.ID] = copyThread(t)
	return nil
}

func (s *Memory) GetThread(_ context.Context, id uuid.UUID) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyThread(t), nil
}

func (s *Memory) UpdateThread(_ context.Context, t *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.threads[t.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Title = t.Title
	cur.Description = t.Description
	cur.Metadata = copyMetadata(t.Metadata)
	cur.UpdatedAt = t.UpdatedAt
	return nil
}

func (s *Memory) SetThreadArchived(_ context.Context, id uuid.UUID, archived bool, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.IsArchived == archived {
		return false, nil
	}
	t.IsArchived = archived
	t.UpdatedAt = at
	return true, nil
}

func (s *Memory) ListThreads(_ context.Context, orgID uuid.UUID, f models.ThreadFilter) ([]models.Thread, error) {
	s.mu.RLock()
	var out []models.Thread
	for _, t := range s.threads {
		if t.OrganizationID != orgID {
			continue
		}
		if f.Type != nil && t.Type != *f.Type {
			continue
		}
		if f.PostID != nil && (t.PostID == nil || *t.PostID != *f.PostID) {
			continue
		}
		if f.IsArchived != nil && t.IsArchived != *f.IsArchived {
			continue
		}
		if f.CreatedBy != nil && t.CreatedBy != *f.CreatedBy {
			continue
		}
		if f.Query != "" && !containsFold(t.Title, f.Query) && !containsFold(t.Description, f.Query) {
			continue
		}
		out = append(out, *copyThread(t))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return Page(out, f.Offset, f.Limit), nil
}

func (s *Memory) CreateMessage(_ context.Context, m *models.Message, links []models.TagLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; ok {
		return ErrDuplicate
	}
	if err := s.insertLinks(links); err != nil {
		return err
	}
	s.seq++
	m.Seq = s.seq
	s.messages[m.ID] = copyMessage(m)
	return nil
}

func (s *Memory) GetMessage(_ context.Context, id uuid.UUID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(m), nil
}

func (s *Memory) UpdateMessageContent(_ context.Context, id uuid.UUID, content string, at time.Time) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeleted {
		return nil, ErrNotFound
	}
	m.Content = content
	m.IsEdited = true
	m.UpdatedAt = at
	return copyMessage(m), nil
}

func (s *Memory) MarkMessageDeleted(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return false, ErrNotFound
	}
	if m.IsDeleted {
		return false, nil
	}
	m.IsDeleted = true
	m.UpdatedAt = at
	return true, nil
}

func (s *Memory) ListMessages(_ context.Context, orgID uuid.UUID, f models.MessageFilter) ([]models.Message, error) {
	s.mu.RLock()
	var out []models.Message
	for _, m := range s.messages {
		if m.OrganizationID != orgID {
			continue
		}
		if !f.IncludeDeleted && m.IsDeleted {
			continue
		}
		if f.ThreadID != nil && m.ThreadID != *f.ThreadID {
			continue
		}
		if f.UserID != nil && m.AuthorID != *f.UserID {
			continue
		}
		if f.ParentID != nil && (m.ParentMessageID == nil || *m.ParentMessageID != *f.ParentID) {
			continue
		}
		if f.RootsOnly && m.ParentMessageID != nil {
			continue
		}
		if f.From != nil && m.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && m.CreatedAt.After(*f.To) {
			continue
		}
		if f.Query != "" && !containsFold(m.Content, f.Query) {
			continue
		}
		out = append(out, *copyMessage(m))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Before(&out[j]) })
	return Page(out, f.Offset, f.Limit), nil
}

func (s *Memory) CountReplies(_ context.Context, orgID, parentID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if m.OrganizationID == orgID && !m.IsDeleted && m.ParentMessageID != nil && *m.ParentMessageID == parentID {
			n++
		}
	}
	return n, nil
}

// ThreadActivity counts a thread's live messages and returns the latest one.
func (s *Memory) ThreadActivity(_ context.Context, orgID, threadID uuid.UUID) (int, *models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	var last *models.Message
	for _, m := range s.messages {
		if m.OrganizationID != orgID || m.ThreadID != threadID || m.IsDeleted {
			continue
		}
		n++
		if last == nil || last.Before(m) {
			last = m
		}
	}
	if last != nil {
		last = copyMessage(last)
	}
	return n, last, nil
}

func (s *Memory) CreateTag(_ context.Context, t *models.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := slugKey{t.OrganizationID, t.Slug}
	if _, ok := s.slugs[k]; ok {
		return ErrDuplicate
	}
	s.slugs[k] = t.ID
	s.tags[t.ID] = copyTag(t)
	return nil
}

func (s *Memory) GetTag(_ context.Context, id uuid.UUID) (*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTag(t), nil
}

func (s *Memory) SetTagActive(_ context.Context, id uuid.UUID, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.IsActive == active {
		return false, nil
	}
	t.IsActive = active
	return true, nil
}

func (s *Memory) ListTags(_ context.Context, orgID uuid.UUID, f models.TagFilter) ([]models.Tag, error) {
	s.mu.RLock()
	var out []models.Tag
	for _, t := range s.tags {
		if t.OrganizationID != orgID {
			continue
		}
		if f.Category != nil && t.Category != *f.Category {
			continue
		}
		if f.IsActive != nil && t.IsActive != *f.IsActive {
			continue
		}
		if f.Query != "" && !containsFold(t.Name, f.Query) && !containsFold(t.Slug, f.Query) {
			continue
		}
		out = append(out, *copyTag(t))
	}
	s.mu.RUnlock()
	sortTags(out)
	return out, nil
}

func sortTags(tags []models.Tag) {
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Category != tags[j].Category {
			return tags[i].Category < tags[j].Category
		}
		return tags[i].Name < tags[j].Name
	})
}

func (s *Memory) CreateTagLink(_ context.Context, l *models.TagLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLinks([]models.TagLink{*l})
}

func (s *Memory) DeleteTagLink(_ context.Context, kind models.EntityKind, entityID, tagID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := linkKey{kind, entityID, tagID}
	if _, ok := s.links[k]; !ok {
		return false, nil
	}
	delete(s.links, k)
	return true, nil
}

func (s *Memory) ListTagsFor(_ context.Context, orgID uuid.UUID, kind models.EntityKind, entityID uuid.UUID) ([]models.Tag, error) {
	s.mu.RLock()
	out := []models.Tag{}
	for k, l := range s.links {
		if k.kind != kind || k.entityID != entityID || l.OrganizationID != orgID {
			continue
		}
		if t, ok := s.tags[k.tagID]; ok {
			out = append(out, *copyTag(t))
		}
	}
	s.mu.RUnlock()
	sortTags(out)
	return out, nil
}

func (s *Memory) EntityIDsByTag(_ context.Context, orgID uuid.UUID, kind models.EntityKind, tagID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for k, l := range s.links {
		if k.kind == kind && k.tagID == tagID && l.OrganizationID == orgID {
			out = append(out, k.entityID)
		}
	}
	return out, nil
}

func (s *Memory) AddReaction(_ context.Context, r *models.Reaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := reactionKey{r.MessageID, r.UserID, r.Emoji}
	if _, ok := s.reactions[k]; ok {
		return false, nil
	}
	c := *r
	s.reactions[k] = &c
	return true, nil
}

func (s *Memory) RemoveReaction(_ context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := reactionKey{messageID, userID, emoji}
	if _, ok := s.reactions[k]; !ok {
		return false, nil
	}
	delete(s.reactions, k)
	return true, nil
}

func (s *Memory) ListReactions(_ context.Context, orgID, messageID uuid.UUID) ([]models.Reaction, error) {
	s.mu.RLock()
	out := []models.Reaction{}
	for _, r := range s.reactions {
		if r.MessageID == messageID && r.OrganizationID == orgID {
			out = append(out, *r)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) CreateAttachment(_ context.Context, a *models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attachments[a.ID]; ok {
		return ErrDuplicate
	}
	s.attachments[a.ID] = copyAttachment(a)
	return nil
}

func (s *Memory) GetAttachment(_ context.Context, id uuid.UUID) (*models.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attachments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAttachment(a), nil
}

func (s *Memory) DeleteAttachment(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attachments[id]; !ok {
		return false, nil
	}
	delete(s.attachments, id)
	return true, nil
}

func (s *Memory) ListAttachments(_ context.Context, orgID, messageID uuid.UUID) ([]models.Attachment, error) {
	s.mu.RLock()
	out := []models.Attachment{}
	for _, a := range s.attachments {
		if a.MessageID == messageID && a.OrganizationID == orgID {
			out = append(out, *copyAttachment(a))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ Store = (*Memory)(nil)
