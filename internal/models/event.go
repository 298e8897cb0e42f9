package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a realtime change notification.
type EventType string

const (
	EventMessageCreated  EventType = "message_created"
	EventMessageUpdated  EventType = "message_updated"
	EventMessageDeleted  EventType = "message_deleted"
	EventReactionAdded   EventType = "reaction_added"
	EventReactionRemoved EventType = "reaction_removed"
	EventThreadCreated   EventType = "thread_created"
	EventThreadUpdated   EventType = "thread_updated"
)

// Event is the push payload delivered to subscribed clients.
type Event struct {
	Type           EventType   `json:"type"`
	EntityID       uuid.UUID   `json:"entity_id"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	ThreadID       uuid.UUID   `json:"thread_id"`
	ActorID        uuid.UUID   `json:"actor_id"`
	Timestamp      time.Time   `json:"timestamp"`
	Data           interface{} `json:"data,omitempty"`
}
