package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is file metadata bound to a message. The bytes live in object
// storage under StorageKey.
type Attachment struct {
	ID             uuid.UUID `json:"id"`
	MessageID      uuid.UUID `json:"message_id"`
	StorageKey     string    `json:"storage_key"`
	Filename       string    `json:"filename"`
	MimeType       string    `json:"mime_type"`
	Size           int64     `json:"size"`
	UploadedBy     uuid.UUID `json:"uploaded_by"`
	ThumbnailKey   string    `json:"thumbnail_key,omitempty"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Metadata       *Metadata `json:"metadata,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
