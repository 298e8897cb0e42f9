package tenant

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

func TestScopeValidate(t *testing.T) {
	assert.True(t, apperror.IsValidation(Scope{UserID: uuid.New()}.Validate()))
	assert.True(t, apperror.IsValidation(Scope{OrganizationID: uuid.New()}.Validate()))
	assert.NoError(t, Scope{OrganizationID: uuid.New(), UserID: uuid.New(), Role: models.RoleUser}.Validate())
}

func TestOwnHidesOtherTenants(t *testing.T) {
	s := Scope{OrganizationID: uuid.New(), UserID: uuid.New()}
	id := uuid.New()

	assert.NoError(t, Own(s, "thread", id, s.OrganizationID))
	err := Own(s, "thread", id, uuid.New())
	assert.True(t, apperror.IsNotFound(err))
	assert.False(t, apperror.IsTenantMismatch(err))
}

func TestSame(t *testing.T) {
	org := uuid.New()
	assert.NoError(t, Same("tag", org, org))
	assert.True(t, apperror.IsTenantMismatch(Same("tag", org, uuid.New())))
}
