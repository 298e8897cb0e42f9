// Package search provides free-text search over messages. Meilisearch is
// used when reachable; otherwise the store's substring match serves queries.
package search

import (
	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
)

// MessageRecord is the indexed shape of a message.
type MessageRecord struct {
	ID             string `json:"id"`
	ThreadID       string `json:"threadId"`
	OrganizationID string `json:"organizationId"`
	AuthorID       string `json:"authorId"`
	AuthorName     string `json:"authorName"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"createdAt"`
}

// RecordFromMessage converts a message for indexing.
func RecordFromMessage(m *models.Message) MessageRecord {
	return MessageRecord{
		ID:             m.ID.String(),
		ThreadID:       m.ThreadID.String(),
		OrganizationID: m.OrganizationID.String(),
		AuthorID:       m.AuthorID.String(),
		AuthorName:     m.AuthorName,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.Unix(),
	}
}

// Query is a message search request. OrganizationID is always applied.
type Query struct {
	OrganizationID uuid.UUID
	Text           string
	ThreadID       *uuid.UUID
	Limit          int
	Offset         int
}

// Hit is one raw index match.
type Hit struct {
	ID      uuid.UUID
	Snippet string
	Score   float64
}

// Result is a message match with its thread.
type Result struct {
	Message        models.Message `json:"message"`
	Thread         *models.Thread `json:"thread,omitempty"`
	MatchSnippet   string         `json:"match_snippet"`
	RelevanceScore float64        `json:"relevance_score"`
}

// Response is a page of results.
type Response struct {
	Messages []Result `json:"messages"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	Engine   string   `json:"engine"`
}
