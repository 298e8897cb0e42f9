package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dfworx/chat-backend/internal/models"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store on an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// conds accumulates WHERE clauses; "?" in a clause becomes the next
// positional parameter.
type conds struct {
	parts []string
	args  []interface{}
}

func (c *conds) add(clause string, arg interface{}) {
	c.args = append(c.args, arg)
	c.parts = append(c.parts, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(c.args))))
}

func (c *conds) sql() string {
	if len(c.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.parts, " AND ")
}

func pageSQL(offset, limit int) string {
	var s string
	if limit > 0 {
		s += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		s += fmt.Sprintf(" OFFSET %d", offset)
	}
	return s
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func linkTable(kind models.EntityKind) (table, column string) {
	if kind == models.KindThread {
		return "thread_tags", "thread_id"
	}
	return "message_tags", "message_id"
}

func insertLink(ctx context.Context, tx pgx.Tx, l models.TagLink) error {
	table, column := linkTable(l.Kind)
	q := `INSERT INTO ` + table + ` (id, ` + column + `, tag_id, organization_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := tx.Exec(ctx, q, l.ID, l.EntityID, l.TagID, l.OrganizationID, l.CreatedAt)
	return err
}

const threadColumns = `id, type, title, description, post_id, organization_id, created_by, is_archived, metadata, created_at, updated_at`

func scanThread(row scanner) (*models.Thread, error) {
	var t models.Thread
	err := row.Scan(&t.ID, &t.Type, &t.Title, &t.Description, &t.PostID, &t.OrganizationID,
		&t.CreatedBy, &t.IsArchived, &t.Metadata, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateThread inserts a thread and its initial tag links in one transaction.
func (s *Postgres) CreateThread(ctx context.Context, t *models.Thread, links []models.TagLink) error {
	const q = `INSERT INTO threads (` + threadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, q, t.ID, t.Type, t.Title, t.Description, t.PostID, t.OrganizationID,
			t.CreatedBy, t.IsArchived, t.Metadata, t.CreatedAt, t.UpdatedAt); err != nil {
			return err
		}
		for _, l := range links {
			if err := insertLink(ctx, tx, l); err != nil {
				return err
			}
		}
		return nil
	})
	return mapErr(err)
}

// GetThread returns a thread by ID.
func (s *Postgres) GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	const q = `SELECT ` + threadColumns + ` FROM threads WHERE id = $1`
	t, err := scanThread(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return t, nil
}

// UpdateThread rewrites the mutable thread fields.
func (s *Postgres) UpdateThread(ctx context.Context, t *models.Thread) error {
	const q = `UPDATE threads SET title = $1, description = $2, metadata = $3, updated_at = $4 WHERE id = $5`
	tag, err := s.pool.Exec(ctx, q, t.Title, t.Description, t.Metadata, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetThreadArchived flips is_archived and reports whether the row changed.
func (s *Postgres) SetThreadArchived(ctx context.Context, id uuid.UUID, archived bool, at time.Time) (bool, error) {
	const q = `UPDATE threads SET is_archived = $1, updated_at = $2 WHERE id = $3 AND is_archived <> $1`
	tag, err := s.pool.Exec(ctx, q, archived, at, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM threads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// ListThreads returns threads of one organization, newest first.
func (s *Postgres) ListThreads(ctx context.Context, orgID uuid.UUID, f models.ThreadFilter) ([]models.Thread, error) {
	var c conds
	c.add("organization_id = ?", orgID)
	if f.Type != nil {
		c.add("type = ?", string(*f.Type))
	}
	if f.PostID != nil {
		c.add("post_id = ?", *f.PostID)
	}
	if f.IsArchived != nil {
		c.add("is_archived = ?", *f.IsArchived)
	}
	if f.CreatedBy != nil {
		c.add("created_by = ?", *f.CreatedBy)
	}
	if f.Query != "" {
		c.add("(title ILIKE ? OR description ILIKE ?)", "%"+f.Query+"%")
	}
	q := `SELECT ` + threadColumns + ` FROM threads` + c.sql() + ` ORDER BY created_at DESC, id` + pageSQL(f.Offset, f.Limit)
	rows, err := s.pool.Query(ctx, q, c.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

const messageColumns = `id, thread_id, content, author_id, author_name, author_email, parent_message_id,
	is_edited, is_deleted, organization_id, mentions, metadata, seq, created_at, updated_at`

func scanMessage(row scanner) (*models.Message, error) {
	var m models.Message
	var mentions []string
	err := row.Scan(&m.ID, &m.ThreadID, &m.Content, &m.AuthorID, &m.AuthorName, &m.AuthorEmail, &m.ParentMessageID,
		&m.IsEdited, &m.IsDeleted, &m.OrganizationID, &mentions, &m.Metadata, &m.Seq, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, s := range mentions {
		if id, err := uuid.Parse(s); err == nil {
			m.Mentions = append(m.Mentions, id)
		}
	}
	return &m, nil
}

func mentionStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// CreateMessage inserts a message and its tag links in one transaction and
// fills in the store-assigned seq.
func (s *Postgres) CreateMessage(ctx context.Context, m *models.Message, links []models.TagLink) error {
	const q = `INSERT INTO messages (id, thread_id, content, author_id, author_name, author_email, parent_message_id,
			is_edited, is_deleted, organization_id, mentions, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, FALSE, $8, $9, $10, $11, $12)
		RETURNING seq`
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, q, m.ID, m.ThreadID, m.Content, m.AuthorID, m.AuthorName, m.AuthorEmail, m.ParentMessageID,
			m.OrganizationID, mentionStrings(m.Mentions), m.Metadata, m.CreatedAt, m.UpdatedAt).Scan(&m.Seq)
		if err != nil {
			return err
		}
		for _, l := range links {
			if err := insertLink(ctx, tx, l); err != nil {
				return err
			}
		}
		return nil
	})
	return mapErr(err)
}

// GetMessage returns a message by ID, tombstones included.
func (s *Postgres) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	const q = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	m, err := scanMessage(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return m, nil
}

// UpdateMessageContent replaces content on a live message in a single
// statement; concurrent edits resolve last-write-wins.
func (s *Postgres) UpdateMessageContent(ctx context.Context, id uuid.UUID, content string, at time.Time) (*models.Message, error) {
	const q = `UPDATE messages SET content = $1, is_edited = TRUE, updated_at = $2
		WHERE id = $3 AND is_deleted = FALSE
		RETURNING ` + messageColumns
	m, err := scanMessage(s.pool.QueryRow(ctx, q, content, at, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return m, nil
}

// MarkMessageDeleted tombstones a message and reports whether it was live.
func (s *Postgres) MarkMessageDeleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	const q = `UPDATE messages SET is_deleted = TRUE, updated_at = $1 WHERE id = $2 AND is_deleted = FALSE`
	tag, err := s.pool.Exec(ctx, q, at, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// ListMessages returns messages of one organization in (created_at, seq) order.
func (s *Postgres) ListMessages(ctx context.Context, orgID uuid.UUID, f models.MessageFilter) ([]models.Message, error) {
	var c conds
	c.add("organization_id = ?", orgID)
	if !f.IncludeDeleted {
		c.add("is_deleted = ?", false)
	}
	if f.ThreadID != nil {
		c.add("thread_id = ?", *f.ThreadID)
	}
	if f.UserID != nil {
		c.add("author_id = ?", *f.UserID)
	}
	if f.ParentID != nil {
		c.add("parent_message_id = ?", *f.ParentID)
	}
	if f.RootsOnly {
		c.parts = append(c.parts, "parent_message_id IS NULL")
	}
	if f.From != nil {
		c.add("created_at >= ?", *f.From)
	}
	if f.To != nil {
		c.add("created_at <= ?", *f.To)
	}
	if f.Query != "" {
		c.add("content ILIKE ?", "%"+f.Query+"%")
	}
	q := `SELECT ` + messageColumns + ` FROM messages` + c.sql() + ` ORDER BY created_at, seq` + pageSQL(f.Offset, f.Limit)
	rows, err := s.pool.Query(ctx, q, c.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// CountReplies returns the number of live direct replies to a message.
func (s *Postgres) CountReplies(ctx context.Context, orgID, parentID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM messages WHERE organization_id = $1 AND parent_message_id = $2 AND is_deleted = FALSE`
	var n int
	err := s.pool.QueryRow(ctx, q, orgID, parentID).Scan(&n)
	return n, err
}

// ThreadActivity counts a thread's live messages and returns the latest one
// in (created_at, seq) order.
func (s *Postgres) ThreadActivity(ctx context.Context, orgID, threadID uuid.UUID) (int, *models.Message, error) {
	const countQ = `SELECT COUNT(*) FROM messages WHERE organization_id = $1 AND thread_id = $2 AND is_deleted = FALSE`
	const lastQ = `SELECT ` + messageColumns + ` FROM messages
		WHERE organization_id = $1 AND thread_id = $2 AND is_deleted = FALSE
		ORDER BY created_at DESC, seq DESC LIMIT 1`
	var n int
	if err := s.pool.QueryRow(ctx, countQ, orgID, threadID).Scan(&n); err != nil {
		return 0, nil, err
	}
	if n == 0 {
		return 0, nil, nil
	}
	last, err := scanMessage(s.pool.QueryRow(ctx, lastQ, orgID, threadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return n, nil, nil
		}
		return 0, nil, err
	}
	return n, last, nil
}

var _ Store = (*Postgres)(nil)
