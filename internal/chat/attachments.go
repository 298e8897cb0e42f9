package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

const maxFilenameLength = 255

// AddAttachmentInput is the metadata of an already uploaded file.
type AddAttachmentInput struct {
	MessageID    uuid.UUID
	StorageKey   string
	Filename     string
	MimeType     string
	Size         int64
	ThumbnailKey string
	Metadata     *models.Metadata
}

// AttachmentKeyPrefix is the object storage prefix owned by an organization.
func AttachmentKeyPrefix(orgID uuid.UUID) string {
	return "attachments/" + orgID.String() + "/"
}

// AttachmentKey builds the storage key for a new upload to a message.
func AttachmentKey(orgID, messageID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s%s/%s/%s", AttachmentKeyPrefix(orgID), messageID, uuid.New(), filename)
}

// ValidateFilename rejects empty names and names carrying path separators.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperror.Validation("filename", "filename is required")
	}
	if len(name) > maxFilenameLength {
		return apperror.Validation("filename", "filename must be at most %d bytes", maxFilenameLength)
	}
	if strings.ContainsAny(name, `/\`) {
		return apperror.Validation("filename", "filename must not contain path separators")
	}
	return nil
}

// ValidateUpload checks the declared MIME type and size of a file.
func (s *Service) ValidateUpload(mimeType string, size int64) error {
	if mimeType == "" || !strings.Contains(mimeType, "/") {
		return apperror.Validation("mime_type", "mime type is required")
	}
	if size <= 0 {
		return apperror.Validation("size", "size must be positive")
	}
	if size > s.opts.MaxAttachmentBytes {
		return apperror.Validation("size", "size must be at most %d bytes", s.opts.MaxAttachmentBytes)
	}
	return nil
}

// AddAttachment records attachment metadata on a live message. Keys must lie
// under the caller's organization prefix.
func (s *Service) AddAttachment(ctx context.Context, sc tenant.Scope, in AddAttachmentInput) (a *models.Attachment, err error) {
	defer func() { s.metrics.Operation("add_attachment", err) }()
	if err = ValidateFilename(in.Filename); err != nil {
		return nil, err
	}
	if err = s.ValidateUpload(in.MimeType, in.Size); err != nil {
		return nil, err
	}
	prefix := AttachmentKeyPrefix(sc.OrganizationID)
	if !strings.HasPrefix(in.StorageKey, prefix) {
		return nil, apperror.Validation("storage_key", "storage key is outside the organization's storage")
	}
	if in.ThumbnailKey != "" && !strings.HasPrefix(in.ThumbnailKey, prefix) {
		return nil, apperror.Validation("thumbnail_key", "thumbnail key is outside the organization's storage")
	}
	if err = in.Metadata.Validate(models.KindAttachment); err != nil {
		return nil, err
	}
	m, err := s.loadMessage(ctx, sc, in.MessageID)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, apperror.NotFound("message", in.MessageID)
	}

	a = &models.Attachment{
		ID:             uuid.New(),
		MessageID:      m.ID,
		StorageKey:     in.StorageKey,
		Filename:       in.Filename,
		MimeType:       in.MimeType,
		Size:           in.Size,
		UploadedBy:     sc.UserID,
		ThumbnailKey:   in.ThumbnailKey,
		OrganizationID: sc.OrganizationID,
		Metadata:       in.Metadata,
		CreatedAt:      s.now(),
	}
	if err = s.store.CreateAttachment(ctx, a); err != nil {
		return nil, err
	}
	s.publish(ctx, sc, models.EventMessageUpdated, m.ID, m.ThreadID, map[string]interface{}{"attachment_added": a})
	return a, nil
}

// GetAttachment returns attachment metadata of the caller's organization.
func (s *Service) GetAttachment(ctx context.Context, sc tenant.Scope, id uuid.UUID) (*models.Attachment, error) {
	a, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return nil, notFound(err, "attachment", id)
	}
	if err := tenant.Own(sc, "attachment", id, a.OrganizationID); err != nil {
		return nil, err
	}
	return a, nil
}

// RemoveAttachment deletes attachment metadata outright and returns what was
// removed so the caller can clean up the stored object. Only the uploader or
// a moderator may remove.
func (s *Service) RemoveAttachment(ctx context.Context, sc tenant.Scope, id uuid.UUID) (a *models.Attachment, err error) {
	defer func() { s.metrics.Operation("remove_attachment", err) }()
	if a, err = s.GetAttachment(ctx, sc, id); err != nil {
		return nil, err
	}
	if a.UploadedBy != sc.UserID && !sc.Role.CanModerate() {
		return nil, apperror.Validation("uploaded_by", "only the uploader or a moderator can remove this attachment")
	}
	removed, err := s.store.DeleteAttachment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, apperror.NotFound("attachment", id)
	}
	if m, merr := s.store.GetMessage(ctx, a.MessageID); merr == nil {
		s.publish(ctx, sc, models.EventMessageUpdated, m.ID, m.ThreadID, map[string]interface{}{"attachment_removed": a.ID})
	}
	return a, nil
}
