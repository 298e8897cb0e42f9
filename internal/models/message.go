package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a chat message. Deleted messages are tombstones: content is
// kept for audit, default reads skip them. Seq is a store-assigned insertion
// counter that breaks ties between identical CreatedAt values.
type Message struct {
	ID              uuid.UUID   `json:"id"`
	ThreadID        uuid.UUID   `json:"thread_id"`
	Content         string      `json:"content"`
	AuthorID        uuid.UUID   `json:"author_id"`
	AuthorName      string      `json:"author_name"`
	AuthorEmail     string      `json:"author_email"`
	ParentMessageID *uuid.UUID  `json:"parent_message_id,omitempty"`
	IsEdited        bool        `json:"is_edited"`
	IsDeleted       bool        `json:"is_deleted"`
	OrganizationID  uuid.UUID   `json:"organization_id"`
	Mentions        []uuid.UUID `json:"mentions,omitempty"`
	Metadata        *Metadata   `json:"metadata,omitempty"`
	Seq             int64       `json:"seq"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Before reports whether m sorts before o in thread order.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.Seq < o.Seq
}

// MessageFilter narrows ListMessages. A nil ParentID lists every message;
// RootsOnly restricts to messages without a parent.
type MessageFilter struct {
	ThreadID       *uuid.UUID
	UserID         *uuid.UUID
	TagID          *uuid.UUID
	ParentID       *uuid.UUID
	RootsOnly      bool
	From           *time.Time
	To             *time.Time
	Query          string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// MessageComplete is a message with its associations.
type MessageComplete struct {
	Message
	Tags        []Tag        `json:"tags"`
	Attachments []Attachment `json:"attachments"`
	Reactions   []Reaction   `json:"reactions"`
	ReplyCount  int          `json:"reply_count"`
}
