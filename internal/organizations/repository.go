// Package organizations reads tenants and users from the relational store.
// This service never writes them.
package organizations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

// Repository reads organizations and users.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOrganization returns an organization by ID.
func (r *Repository) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	const q = `SELECT organization_id, name, slug, is_active, created_at, updated_at
		FROM organizations WHERE organization_id = $1`
	var org models.Organization
	err := r.pool.QueryRow(ctx, q, id).Scan(&org.ID, &org.Name, &org.Slug, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("organization", id)
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// GetUser returns a user of the organization. Users of other organizations
// are not found.
func (r *Repository) GetUser(ctx context.Context, orgID, userID uuid.UUID) (*models.User, error) {
	const q = `SELECT user_id, organization_id, email, name, role, is_active, created_at
		FROM users WHERE user_id = $1 AND organization_id = $2`
	var u models.User
	err := r.pool.QueryRow(ctx, q, userID, orgID).Scan(&u.ID, &u.OrganizationID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("user", userID)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns the active users of an organization by name, for
// mention pickers.
func (r *Repository) ListUsers(ctx context.Context, orgID uuid.UUID, query string, limit int) ([]models.User, error) {
	const q = `SELECT user_id, organization_id, email, name, role, is_active, created_at
		FROM users
		WHERE organization_id = $1 AND is_active AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
		ORDER BY name, user_id
		LIMIT $3`
	rows, err := r.pool.Query(ctx, q, orgID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}
