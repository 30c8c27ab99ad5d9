// Package repository reads reservation context for notifications and records
// delivery attempts.
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

const errRepoNotConfigured = "notification repository not configured"

// ReservationContext is everything a reservation email needs.
type ReservationContext struct {
	ReservationID uuid.UUID
	TenantID      uuid.UUID
	TenantName    string
	Status        string
	SubjectName   string
	SubjectType   string
	Description   string
	SlotStart     time.Time
	SlotEnd       time.Time
	ClientUserID  uuid.UUID
	ClientName    string
	ClientEmail   *string
	DoctorName    string
	DoctorUserID  *uuid.UUID
	DoctorEmail   *string
	ServiceName   *string
	RoomName      *string
}

// Delivery is one audited send attempt to one recipient.
type Delivery struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ReservationID uuid.UUID
	Kind          string
	Recipient     string
	Success       bool
	LastError     *string
	AttemptedAt   time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) LoadReservationContext(ctx context.Context, reservationID, tenantID uuid.UUID) (ReservationContext, error) {
	if r == nil || r.pool == nil {
		return ReservationContext{}, errors.New(errRepoNotConfigured)
	}

	var rc ReservationContext
	err := r.pool.QueryRow(ctx, `
		SELECT r.id, r.tenant_id, t.name, r.status, r.subject_name, r.subject_type, r.description,
			s.start_time, s.end_time,
			r.user_id, cu.full_name, cu.email,
			d.full_name, d.user_id, du.email,
			st.name, rm.name
		FROM reservations r
		JOIN tenants t ON t.id = r.tenant_id
		JOIN slots s ON s.id = r.slot_id
		JOIN doctors d ON d.id = r.doctor_id
		JOIN users cu ON cu.id = r.user_id
		LEFT JOIN users du ON du.id = d.user_id
		LEFT JOIN service_types st ON st.id = s.service_type_id
		LEFT JOIN rooms rm ON rm.id = s.room_id
		WHERE r.id = $1 AND r.tenant_id = $2`,
		reservationID, tenantID,
	).Scan(
		&rc.ReservationID, &rc.TenantID, &rc.TenantName, &rc.Status, &rc.SubjectName, &rc.SubjectType, &rc.Description,
		&rc.SlotStart, &rc.SlotEnd,
		&rc.ClientUserID, &rc.ClientName, &rc.ClientEmail,
		&rc.DoctorName, &rc.DoctorUserID, &rc.DoctorEmail,
		&rc.ServiceName, &rc.RoomName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReservationContext{}, apperr.NotFound("reservation not found")
	}
	if err != nil {
		return ReservationContext{}, fmt.Errorf("failed to load reservation context: %w", err)
	}
	return rc, nil
}

// GetTenantContact returns the tenant's default contact address, or "" when unset.
func (r *Repository) GetTenantContact(ctx context.Context, tenantID uuid.UUID) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New(errRepoNotConfigured)
	}

	var contact *string
	err := r.pool.QueryRow(ctx, `SELECT contact_email FROM tenants WHERE id = $1`, tenantID).Scan(&contact)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.NotFound("tenant not found")
	}
	if err != nil {
		return "", fmt.Errorf("failed to load tenant contact: %w", err)
	}
	if contact == nil {
		return "", nil
	}
	return *contact, nil
}

// RecordDelivery stores one attempt. AttemptedAt defaults to now.
func (r *Repository) RecordDelivery(ctx context.Context, d Delivery) (uuid.UUID, error) {
	if r == nil || r.pool == nil {
		return uuid.Nil, errors.New(errRepoNotConfigured)
	}
	if d.TenantID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("tenantId is required")
	}
	if d.Kind == "" {
		return uuid.Nil, fmt.Errorf("kind is required")
	}
	if d.AttemptedAt.IsZero() {
		d.AttemptedAt = time.Now().UTC()
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO notification_deliveries (tenant_id, reservation_id, kind, recipient, success, last_error, attempted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		d.TenantID, d.ReservationID, d.Kind, d.Recipient, d.Success, d.LastError, d.AttemptedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record delivery: %w", err)
	}
	return id, nil
}

func (r *Repository) ListDeliveries(ctx context.Context, reservationID, tenantID uuid.UUID, limit int) ([]Delivery, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, reservation_id, kind, recipient, success, last_error, attempted_at
		 FROM notification_deliveries
		 WHERE reservation_id = $1 AND tenant_id = $2
		 ORDER BY attempted_at DESC
		 LIMIT $3`,
		reservationID, tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	out := make([]Delivery, 0)
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.ReservationID, &d.Kind, &d.Recipient, &d.Success, &d.LastError, &d.AttemptedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
