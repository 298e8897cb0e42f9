package models

import (
	"time"

	"github.com/google/uuid"
)

// Reaction is one emoji from one user on one message; (MessageID, UserID,
// Emoji) is unique.
type Reaction struct {
	ID             uuid.UUID `json:"id"`
	MessageID      uuid.UUID `json:"message_id"`
	UserID         uuid.UUID `json:"user_id"`
	Emoji          string    `json:"emoji"`
	OrganizationID uuid.UUID `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}
