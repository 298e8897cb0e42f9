package apperror

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKindsSurviveWrapping(t *testing.T) {
	id := uuid.New()
	wrapped := fmt.Errorf("send message: %w", NotFound("thread", id))

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Contains(t, wrapped.Error(), id.String())

	assert.True(t, IsValidation(Validation("title", "must not be empty")))
	assert.True(t, IsConflict(Conflict("slug", "%q already exists", "bug")))
	assert.True(t, IsTenantMismatch(TenantMismatch("tag", "belongs to another organization")))
}

func TestValidationMessage(t *testing.T) {
	assert.Equal(t, "validation: postId: required for post threads", Validation("postId", "required for post threads").Error())
	assert.Equal(t, "validation: bad input", (&ValidationError{Message: "bad input"}).Error())
}
