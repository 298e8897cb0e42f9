// Package store persists the chat data model. Each method touches one
// row-equivalent; CreateThread and CreateMessage additionally write their tag
// links in the same transaction. Lookups by id are not tenant-filtered (the
// caller checks ownership through package tenant); every listing takes the
// organization id and filters by it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique key is violated.
	ErrDuplicate = errors.New("store: duplicate")
)

// Threads persists threads.
type Threads interface {
	CreateThread(ctx context.Context, t *models.Thread, links []models.TagLink) error
	GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error)
	UpdateThread(ctx context.Context, t *models.Thread) error
	SetThreadArchived(ctx context.Context, id uuid.UUID, archived bool, at time.Time) (bool, error)
	ListThreads(ctx context.Context, orgID uuid.UUID, f models.ThreadFilter) ([]models.Thread, error)
}

// Messages persists messages. Tombstones are never removed.
type Messages interface {
	CreateMessage(ctx context.Context, m *models.Message, links []models.TagLink) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	UpdateMessageContent(ctx context.Context, id uuid.UUID, content string, at time.Time) (*models.Message, error)
	MarkMessageDeleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListMessages(ctx context.Context, orgID uuid.UUID, f models.MessageFilter) ([]models.Message, error)
	CountReplies(ctx context.Context, orgID, parentID uuid.UUID) (int, error)
	ThreadActivity(ctx context.Context, orgID, threadID uuid.UUID) (count int, last *models.Message, err error)
}

// Tags persists the tag registry.
type Tags interface {
	CreateTag(ctx context.Context, t *models.Tag) error
	GetTag(ctx context.Context, id uuid.UUID) (*models.Tag, error)
	SetTagActive(ctx context.Context, id uuid.UUID, active bool) (bool, error)
	ListTags(ctx context.Context, orgID uuid.UUID, f models.TagFilter) ([]models.Tag, error)
}

// TagLinks persists message/thread tag associations.
type TagLinks interface {
	CreateTagLink(ctx context.Context, l *models.TagLink) error
	DeleteTagLink(ctx context.Context, kind models.EntityKind, entityID, tagID uuid.UUID) (bool, error)
	ListTagsFor(ctx context.Context, orgID uuid.UUID, kind models.EntityKind, entityID uuid.UUID) ([]models.Tag, error)
	EntityIDsByTag(ctx context.Context, orgID uuid.UUID, kind models.EntityKind, tagID uuid.UUID) ([]uuid.UUID, error)
}

// Reactions persists reactions. AddReaction reports whether a row was
// inserted; a duplicate (message, user, emoji) is a silent no-op.
type Reactions interface {
	AddReaction(ctx context.Context, r *models.Reaction) (bool, error)
	RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error)
	ListReactions(ctx context.Context, orgID, messageID uuid.UUID) ([]models.Reaction, error)
}

// Attachments persists attachment metadata.
type Attachments interface {
	CreateAttachment(ctx context.Context, a *models.Attachment) error
	GetAttachment(ctx context.Context, id uuid.UUID) (*models.Attachment, error)
	DeleteAttachment(ctx context.Context, id uuid.UUID) (bool, error)
	ListAttachments(ctx context.Context, orgID, messageID uuid.UUID) ([]models.Attachment, error)
}

// Store is the full persistence surface used by the chat service.
type Store interface {
	Threads
	Messages
	Tags
	TagLinks
	Reactions
	Attachments
}

// Page applies offset/limit to an already ordered slice. limit <= 0 means
// no limit.
func Page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
