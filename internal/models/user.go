package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role inside their organization.
type Role string

const (
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// CanModerate reports whether r may tombstone messages written by others.
func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleAdmin || r == RoleSuperAdmin
}

// User is the external identity record (relational store, read-only here).
type User struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Author is the denormalized author snapshot copied onto a message at send
// time. Later profile changes are intentionally not propagated: a message is
// a historical record of who wrote it under which name.
type Author struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}
