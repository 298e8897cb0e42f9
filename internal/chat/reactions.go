package chat

import (
	"context"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

const maxEmojiBytes = 32

func validateEmoji(emoji string) error {
	if emoji == "" || len(emoji) > maxEmojiBytes {
		return apperror.Validation("emoji", "emoji must be 1 to %d bytes", maxEmojiBytes)
	}
	if !utf8.ValidString(emoji) {
		return apperror.Validation("emoji", "emoji must be valid UTF-8")
	}
	for _, r := range emoji {
		if unicode.IsSpace(r) {
			return apperror.Validation("emoji", "emoji must not contain whitespace")
		}
	}
	return nil
}

// AddReaction records the caller's emoji on a message. Repeating the same
// (message, user, emoji) is a no-op; reaction_added fires only when a row
// was actually inserted, so concurrent duplicates emit one event.
func (s *Service) AddReaction(ctx context.Context, sc tenant.Scope, messageID uuid.UUID, emoji string) (r *models.Reaction, inserted bool, err error) {
	defer func() { s.metrics.Operation("add_reaction", err) }()
	if err = validateEmoji(emoji); err != nil {
		return nil, false, err
	}
	m, err := s.loadMessage(ctx, sc, messageID)
	if err != nil {
		return nil, false, err
	}
	if m.IsDeleted {
		return nil, false, apperror.NotFound("message", messageID)
	}
	r = &models.Reaction{
		ID:             uuid.New(),
		MessageID:      messageID,
		UserID:         sc.UserID,
		Emoji:          emoji,
		OrganizationID: sc.OrganizationID,
		CreatedAt:      s.now(),
	}
	if inserted, err = s.store.AddReaction(ctx, r); err != nil {
		return nil, false, err
	}
	if inserted {
		s.publish(ctx, sc, models.EventReactionAdded, r.ID, m.ThreadID, r)
		return r, true, nil
	}
	existing, err := s.existingReaction(ctx, sc, messageID, emoji)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		r = existing
	}
	return r, false, nil
}

// existingReaction returns the stored reaction of the caller, if any.
func (s *Service) existingReaction(ctx context.Context, sc tenant.Scope, messageID uuid.UUID, emoji string) (*models.Reaction, error) {
	all, err := s.store.ListReactions(ctx, sc.OrganizationID, messageID)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].UserID == sc.UserID && all[i].Emoji == emoji {
			return &all[i], nil
		}
	}
	return nil, nil
}

// RemoveReaction withdraws the caller's emoji. Removing an absent reaction
// is a no-op.
func (s *Service) RemoveReaction(ctx context.Context, sc tenant.Scope, messageID uuid.UUID, emoji string) (removed bool, err error) {
	defer func() { s.metrics.Operation("remove_reaction", err) }()
	if err = validateEmoji(emoji); err != nil {
		return false, err
	}
	m, err := s.loadMessage(ctx, sc, messageID)
	if err != nil {
		return false, err
	}
	if removed, err = s.store.RemoveReaction(ctx, messageID, sc.UserID, emoji); err != nil {
		return false, err
	}
	if removed {
		s.publish(ctx, sc, models.EventReactionRemoved, messageID, m.ThreadID, map[string]interface{}{
			"message_id": messageID,
			"user_id":    sc.UserID,
			"emoji":      emoji,
		})
	}
	return removed, nil
}

// ListReactions lists the reactions on a message.
func (s *Service) ListReactions(ctx context.Context, sc tenant.Scope, messageID uuid.UUID) ([]models.Reaction, error) {
	if _, err := s.loadMessage(ctx, sc, messageID); err != nil {
		return nil, err
	}
	return s.store.ListReactions(ctx, sc.OrganizationID, messageID)
}
