package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
)

const tagColumns = `id, name, slug, color, category, description, organization_id, created_by, is_active, metadata, created_at`

func scanTag(row scanner) (*models.Tag, error) {
	var t models.Tag
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Color, &t.Category, &t.Description, &t.OrganizationID,
		&t.CreatedBy, &t.IsActive, &t.Metadata, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTag inserts a tag. A duplicate (organization_id, slug) yields ErrDuplicate.
func (s *Postgres) CreateTag(ctx context.Context, t *models.Tag) error {
	const q = `INSERT INTO tags (` + tagColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.pool.Exec(ctx, q, t.ID, t.Name, t.Slug, t.Color, t.Category, t.Description, t.OrganizationID,
		t.CreatedBy, t.IsActive, t.Metadata, t.CreatedAt)
	return mapErr(err)
}

// GetTag returns a tag by ID.
func (s *Postgres) GetTag(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	const q = `SELECT ` + tagColumns + ` FROM tags WHERE id = $1`
	t, err := scanTag(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return t, nil
}

// SetTagActive flips is_active and reports whether the row changed.
func (s *Postgres) SetTagActive(ctx context.Context, id uuid.UUID, active bool) (bool, error) {
	const q = `UPDATE tags SET is_active = $1 WHERE id = $2 AND is_active <> $1`
	tag, err := s.pool.Exec(ctx, q, active, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tags WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// ListTags returns tags of one organization ordered by category and name.
func (s *Postgres) ListTags(ctx context.Context, orgID uuid.UUID, f models.TagFilter) ([]models.Tag, error) {
	var c conds
	c.add("organization_id = ?", orgID)
	if f.Category != nil {
		c.add("category = ?", string(*f.Category))
	}
	if f.IsActive != nil {
		c.add("is_active = ?", *f.IsActive)
	}
	if f.Query != "" {
		c.add("(name ILIKE ? OR slug ILIKE ?)", "%"+f.Query+"%")
	}
	return s.queryTags(ctx, `SELECT `+tagColumns+` FROM tags`+c.sql()+` ORDER BY category, name`, c.args...)
}

func (s *Postgres) queryTags(ctx context.Context, q string, args ...interface{}) ([]models.Tag, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// CreateTagLink inserts a message or thread tag link.
func (s *Postgres) CreateTagLink(ctx context.Context, l *models.TagLink) error {
	table, column := linkTable(l.Kind)
	q := `INSERT INTO ` + table + ` (id, ` + column + `, tag_id, organization_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, q, l.ID, l.EntityID, l.TagID, l.OrganizationID, l.CreatedAt)
	return mapErr(err)
}

// DeleteTagLink removes a link and reports whether one existed.
func (s *Postgres) DeleteTagLink(ctx context.Context, kind models.EntityKind, entityID, tagID uuid.UUID) (bool, error) {
	table, column := linkTable(kind)
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE `+column+` = $1 AND tag_id = $2`, entityID, tagID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListTagsFor returns the tags linked to one message or thread.
func (s *Postgres) ListTagsFor(ctx context.Context, orgID uuid.UUID, kind models.EntityKind, entityID uuid.UUID) ([]models.Tag, error) {
	table, column := linkTable(kind)
	q := `SELECT t.id, t.name, t.slug, t.color, t.category, t.description, t.organization_id, t.created_by,
			t.is_active, t.metadata, t.created_at
		FROM tags t JOIN ` + table + ` l ON l.tag_id = t.id
		WHERE l.organization_id = $1 AND l.` + column + ` = $2
		ORDER BY t.category, t.name`
	return s.queryTags(ctx, q, orgID, entityID)
}

// EntityIDsByTag returns the ids of messages or threads carrying a tag.
func (s *Postgres) EntityIDsByTag(ctx context.Context, orgID uuid.UUID, kind models.EntityKind, tagID uuid.UUID) ([]uuid.UUID, error) {
	table, column := linkTable(kind)
	rows, err := s.pool.Query(ctx, `SELECT `+column+` FROM `+table+` WHERE organization_id = $1 AND tag_id = $2`, orgID, tagID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddReaction inserts a reaction unless the (message, user, emoji) key
// already exists, and reports whether a row was inserted.
func (s *Postgres) AddReaction(ctx context.Context, r *models.Reaction) (bool, error) {
	const q = `INSERT INTO reactions (id, message_id, user_id, emoji, organization_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING`
	tag, err := s.pool.Exec(ctx, q, r.ID, r.MessageID, r.UserID, r.Emoji, r.OrganizationID, r.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveReaction deletes a reaction and reports whether one existed.
func (s *Postgres) RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	const q = `DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`
	tag, err := s.pool.Exec(ctx, q, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListReactions returns the reactions on a message, oldest first.
func (s *Postgres) ListReactions(ctx context.Context, orgID, messageID uuid.UUID) ([]models.Reaction, error) {
	const q = `SELECT id, message_id, user_id, emoji, organization_id, created_at
		FROM reactions WHERE organization_id = $1 AND message_id = $2 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, orgID, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Reaction{}
	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.ID, &r.MessageID, &r.UserID, &r.Emoji, &r.OrganizationID, &r.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

const attachmentColumns = `id, message_id, storage_key, filename, mime_type, size, uploaded_by, thumbnail_key, organization_id, metadata, created_at`

func scanAttachment(row scanner) (*models.Attachment, error) {
	var a models.Attachment
	err := row.Scan(&a.ID, &a.MessageID, &a.StorageKey, &a.Filename, &a.MimeType, &a.Size, &a.UploadedBy,
		&a.ThumbnailKey, &a.OrganizationID, &a.Metadata, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAttachment inserts attachment metadata.
func (s *Postgres) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	const q = `INSERT INTO attachments (` + attachmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.pool.Exec(ctx, q, a.ID, a.MessageID, a.StorageKey, a.Filename, a.MimeType, a.Size, a.UploadedBy,
		a.ThumbnailKey, a.OrganizationID, a.Metadata, a.CreatedAt)
	return mapErr(err)
}

// GetAttachment returns an attachment by ID.
func (s *Postgres) GetAttachment(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	const q = `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = $1`
	a, err := scanAttachment(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

// DeleteAttachment removes attachment metadata and reports whether it existed.
func (s *Postgres) DeleteAttachment(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListAttachments returns the attachments on a message, oldest first.
func (s *Postgres) ListAttachments(ctx context.Context, orgID, messageID uuid.UUID) ([]models.Attachment, error) {
	const q = `SELECT ` + attachmentColumns + ` FROM attachments WHERE organization_id = $1 AND message_id = $2 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, orgID, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}
