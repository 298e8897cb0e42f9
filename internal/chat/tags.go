package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/store"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

const maxTagNameLength = 64

// CreateTagInput is the payload of CreateTag.
type CreateTagInput struct {
	Name        string
	Color       string
	Category    models.TagCategory
	Description string
	Metadata    *models.Metadata
}

// CreateTag registers a tag. The slug is derived from the name and must be
// unused within the organization.
func (s *Service) CreateTag(ctx context.Context, sc tenant.Scope, in CreateTagInput) (tag *models.Tag, err error) {
	defer func() { s.metrics.Operation("create_tag", err) }()
	if err = sc.Validate(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.Validation("name", "name is required")
	}
	if utf8.RuneCountInString(name) > maxTagNameLength {
		return nil, apperror.Validation("name", "name must be at most %d characters", maxTagNameLength)
	}
	slug := models.Slugify(name)
	if slug == "" {
		return nil, apperror.Validation("name", "name must contain at least one letter or digit")
	}
	if !in.Category.Valid() {
		return nil, apperror.Validation("category", "unknown category %q", in.Category)
	}
	if !models.ValidColor(in.Color) {
		return nil, apperror.Validation("color", "color must be #RGB or #RRGGBB")
	}
	if err = in.Metadata.Validate(models.KindTag); err != nil {
		return nil, err
	}

	tag = &models.Tag{
		ID:             uuid.New(),
		Name:           name,
		Slug:           slug,
		Color:          in.Color,
		Category:       in.Category,
		Description:    strings.TrimSpace(in.Description),
		OrganizationID: sc.OrganizationID,
		CreatedBy:      sc.UserID,
		IsActive:       true,
		Metadata:       in.Metadata,
		CreatedAt:      s.now(),
	}
	if err = s.store.CreateTag(ctx, tag); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperror.Conflict("name", "a tag with slug %q already exists", slug)
		}
		return nil, err
	}
	return tag, nil
}

// DeactivateTag hides a tag from assignable pickers. Existing associations
// are kept. Deactivating an inactive tag is a no-op.
func (s *Service) DeactivateTag(ctx context.Context, sc tenant.Scope, id uuid.UUID) (tag *models.Tag, err error) {
	defer func() { s.metrics.Operation("deactivate_tag", err) }()
	if tag, err = s.loadTag(ctx, sc, id); err != nil {
		return nil, err
	}
	if _, err = s.store.SetTagActive(ctx, id, false); err != nil {
		return nil, notFound(err, "tag", id)
	}
	tag.IsActive = false
	return tag, nil
}

// GetTag returns one tag of the caller's organization.
func (s *Service) GetTag(ctx context.Context, sc tenant.Scope, id uuid.UUID) (*models.Tag, error) {
	return s.loadTag(ctx, sc, id)
}

// ListTags lists the organization's tags.
func (s *Service) ListTags(ctx context.Context, sc tenant.Scope, f models.TagFilter) ([]models.Tag, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if f.Category != nil && !f.Category.Valid() {
		return nil, apperror.Validation("category", "unknown category %q", *f.Category)
	}
	return s.store.ListTags(ctx, sc.OrganizationID, f)
}

// AssignableTags lists the active tags, optionally of one category.
func (s *Service) AssignableTags(ctx context.Context, sc tenant.Scope, category *models.TagCategory) ([]models.Tag, error) {
	active := true
	return s.ListTags(ctx, sc, models.TagFilter{Category: category, IsActive: &active})
}
