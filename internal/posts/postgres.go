package posts

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dfworx/chat-backend/internal/models"
)

// PostgresSource reads posts from the CMS tables.
type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSource reads from table (e.g. "app_web.posts").
func NewPostgresSource(pool *pgxpool.Pool, table string) *PostgresSource {
	if table == "" {
		table = "posts"
	}
	return &PostgresSource{pool: pool, table: pgx.Identifier(splitTable(table)).Sanitize()}
}

func splitTable(t string) []string {
	if schema, name, ok := strings.Cut(t, "."); ok {
		return []string{schema, name}
	}
	return []string{t}
}

// FindPost returns one post, or ErrNotFound.
func (s *PostgresSource) FindPost(ctx context.Context, postID uuid.UUID) (*models.PostContext, error) {
	q := `SELECT post_id, organization_id, title, slug, COALESCE(excerpt, ''), status, published_at
		FROM ` + s.table + ` WHERE post_id = $1`
	var p models.PostContext
	err := s.pool.QueryRow(ctx, q, postID).
		Scan(&p.ID, &p.OrganizationID, &p.Title, &p.Slug, &p.Excerpt, &p.Status, &p.PublishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
