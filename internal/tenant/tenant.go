// Package tenant is the single place where organization isolation is checked.
// Every chat operation receives a Scope and routes all ownership checks
// through Own and Same; stores additionally filter every query by the scope's
// organization id.
package tenant

import (
	"github.com/google/uuid"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

// Scope identifies the caller: who is acting, in which organization, with
// which role.
type Scope struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           models.Role
	Email          string
}

// Validate rejects scopes missing an organization or user.
func (s Scope) Validate() error {
	if s.OrganizationID == uuid.Nil {
		return apperror.Validation("organization_id", "organization is required")
	}
	if s.UserID == uuid.Nil {
		return apperror.Validation("user_id", "user is required")
	}
	return nil
}

// Own checks that an entity loaded by id belongs to the caller's
// organization. Entities of other tenants are reported as not found so
// their existence does not leak.
func Own(s Scope, entity string, id, orgID uuid.UUID) error {
	if orgID != s.OrganizationID {
		return apperror.NotFound(entity, id)
	}
	return nil
}

// Same checks that two referenced entities belong to one organization, e.g.
// a tag and the message it is being attached to.
func Same(entity string, entityOrg, otherOrg uuid.UUID) error {
	if entityOrg != otherOrg {
		return apperror.TenantMismatch(entity, "%s belongs to a different organization", entity)
	}
	return nil
}
