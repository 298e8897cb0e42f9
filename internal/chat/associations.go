package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/store"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

// assignableTag loads a tag for linking to an entity of entityOrg. A tag from
// another organization is a tenant mismatch, not a miss.
func (s *Service) assignableTag(ctx context.Context, tagID, entityOrg uuid.UUID) (*models.Tag, error) {
	tag, err := s.store.GetTag(ctx, tagID)
	if err != nil {
		return nil, notFound(err, "tag", tagID)
	}
	if err := tenant.Same("tag", tag.OrganizationID, entityOrg); err != nil {
		return nil, err
	}
	if !tag.IsActive {
		return nil, apperror.Validation("tag_id", "tag %q is inactive", tag.Slug)
	}
	return tag, nil
}

// buildLinks validates tagIDs for an entity about to be created and returns
// the join rows to write with it. Repeated ids are collapsed.
func (s *Service) buildLinks(ctx context.Context, sc tenant.Scope, kind models.EntityKind, entityID uuid.UUID, tagIDs []uuid.UUID) ([]models.TagLink, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}
	seen := make(map[uuid.UUID]struct{}, len(tagIDs))
	links := make([]models.TagLink, 0, len(tagIDs))
	for _, id := range tagIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := s.assignableTag(ctx, id, sc.OrganizationID); err != nil {
			return nil, err
		}
		links = append(links, models.TagLink{
			ID:             uuid.New(),
			Kind:           kind,
			EntityID:       entityID,
			TagID:          id,
			OrganizationID: sc.OrganizationID,
			CreatedAt:      s.now(),
		})
	}
	return links, nil
}

// taggable resolves the message or thread a tag is attached to and returns
// its organization and thread.
func (s *Service) taggable(ctx context.Context, sc tenant.Scope, kind models.EntityKind, id uuid.UUID) (orgID, threadID uuid.UUID, err error) {
	switch kind {
	case models.KindThread:
		t, err := s.loadThread(ctx, sc, id)
		if err != nil {
			return uuid.Nil, uuid.Nil, err
		}
		return t.OrganizationID, t.ID, nil
	case models.KindMessage:
		m, err := s.loadMessage(ctx, sc, id)
		if err != nil {
			return uuid.Nil, uuid.Nil, err
		}
		if m.IsDeleted {
			return uuid.Nil, uuid.Nil, apperror.NotFound("message", id)
		}
		return m.OrganizationID, m.ThreadID, nil
	}
	return uuid.Nil, uuid.Nil, apperror.Validation("kind", "tags attach to messages or threads, not %q", kind)
}

func updatedEvent(kind models.EntityKind) models.EventType {
	if kind == models.KindThread {
		return models.EventThreadUpdated
	}
	return models.EventMessageUpdated
}

// AttachTag links a tag to a message or thread.
func (s *Service) AttachTag(ctx context.Context, sc tenant.Scope, kind models.EntityKind, entityID, tagID uuid.UUID) (link *models.TagLink, err error) {
	defer func() { s.metrics.Operation("attach_tag", err) }()
	if err = sc.Validate(); err != nil {
		return nil, err
	}
	orgID, threadID, err := s.taggable(ctx, sc, kind, entityID)
	if err != nil {
		return nil, err
	}
	if _, err = s.assignableTag(ctx, tagID, orgID); err != nil {
		return nil, err
	}

	link = &models.TagLink{
		ID:             uuid.New(),
		Kind:           kind,
		EntityID:       entityID,
		TagID:          tagID,
		OrganizationID: orgID,
		CreatedAt:      s.now(),
	}
	if err = s.store.CreateTagLink(ctx, link); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperror.Conflict("tag_id", "tag is already attached to this %s", kind)
		}
		return nil, err
	}
	s.publish(ctx, sc, updatedEvent(kind), entityID, threadID, map[string]interface{}{"tag_attached": tagID})
	return link, nil
}

// DetachTag removes a tag link outright.
func (s *Service) DetachTag(ctx context.Context, sc tenant.Scope, kind models.EntityKind, entityID, tagID uuid.UUID) (err error) {
	defer func() { s.metrics.Operation("detach_tag", err) }()
	if err = sc.Validate(); err != nil {
		return err
	}
	_, threadID, err := s.taggable(ctx, sc, kind, entityID)
	if err != nil {
		return err
	}
	removed, err := s.store.DeleteTagLink(ctx, kind, entityID, tagID)
	if err != nil {
		return err
	}
	if !removed {
		return apperror.NotFound("tag association", tagID)
	}
	s.publish(ctx, sc, updatedEvent(kind), entityID, threadID, map[string]interface{}{"tag_detached": tagID})
	return nil
}
