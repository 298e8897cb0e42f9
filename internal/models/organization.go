package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant. It lives in the relational store and is
// only ever read by this service.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
