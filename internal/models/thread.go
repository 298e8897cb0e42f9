package models

import (
	"time"

	"github.com/google/uuid"
)

// ThreadType distinguishes workspace-wide threads from post-bound ones.
type ThreadType string

const (
	ThreadGlobal ThreadType = "global"
	ThreadPost   ThreadType = "post"
)

// Valid reports whether t is a known thread type.
func (t ThreadType) Valid() bool {
	return t == ThreadGlobal || t == ThreadPost
}

// Thread is a conversation container. PostID is set iff Type is ThreadPost;
// it references a post in the relational store without referential integrity.
type Thread struct {
	ID             uuid.UUID  `json:"id"`
	Type           ThreadType `json:"type"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	PostID         *uuid.UUID `json:"post_id,omitempty"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	CreatedBy      uuid.UUID  `json:"created_by"`
	IsArchived     bool       `json:"is_archived"`
	Metadata       *Metadata  `json:"metadata,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ThreadFilter narrows ListThreads. TagIDs are resolved separately and
// intersected by the caller; stores ignore them.
type ThreadFilter struct {
	Type       *ThreadType
	PostID     *uuid.UUID
	TagIDs     []uuid.UUID
	IsArchived *bool
	CreatedBy  *uuid.UUID
	Query      string
	Limit      int
	Offset     int
}

// ThreadView is a thread as presented to readers: tags, activity and
// best-effort post context. PostUnavailable is set when a post thread's
// reference could not be resolved. MessageCount and LastMessage cover live
// messages only.
type ThreadView struct {
	Thread
	Tags            []Tag        `json:"tags"`
	MessageCount    int          `json:"message_count"`
	LastMessage     *Message     `json:"last_message,omitempty"`
	Post            *PostContext `json:"post,omitempty"`
	PostUnavailable bool         `json:"post_unavailable,omitempty"`
}
