// Package repository reads and updates tenant settings.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic_booking_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tenant is the settings view of a tenant row.
type Tenant struct {
	ID           uuid.UUID
	Slug         string
	Name         string
	Timezone     *string
	ContactEmail *string
	UpdatedAt    time.Time
}

// SettingsUpdate holds optional new values; nil leaves a column unchanged.
type SettingsUpdate struct {
	Timezone     *string
	ContactEmail *string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const tenantColumns = `id, slug, name, timezone, contact_email, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Timezone, &t.ContactEmail, &t.UpdatedAt)
	return t, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Tenant, error) {
	t, err := scanTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, apperr.NotFound("tenant not found")
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// GetTenantTimezone returns the stored zone id, or "" when none is set.
func (r *Repository) GetTenantTimezone(ctx context.Context, id uuid.UUID) (string, error) {
	var zone *string
	err := r.pool.QueryRow(ctx, `SELECT timezone FROM tenants WHERE id = $1`, id).Scan(&zone)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.NotFound("tenant not found")
	}
	if err != nil {
		return "", fmt.Errorf("failed to get tenant timezone: %w", err)
	}
	if zone == nil {
		return "", nil
	}
	return *zone, nil
}

func (r *Repository) UpdateSettings(ctx context.Context, id uuid.UUID, upd SettingsUpdate) (Tenant, error) {
	t, err := scanTenant(r.pool.QueryRow(ctx, `
		UPDATE tenants
		SET timezone = COALESCE($2, timezone),
			contact_email = COALESCE($3, contact_email),
			updated_at = now()
		WHERE id = $1
		RETURNING `+tenantColumns,
		id, upd.Timezone, upd.ContactEmail,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, apperr.NotFound("tenant not found")
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("failed to update tenant settings: %w", err)
	}
	return t, nil
}
