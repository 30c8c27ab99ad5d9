package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic_booking_backend/platform/apperr"
	"clinic_booking_backend/platform/db"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	reservationNotFoundMsg = "reservation not found"

	activeSlotIndex = "reservations_active_slot_uidx"

	reservationColumns = `r.id, r.tenant_id, r.slot_id, r.doctor_id, r.user_id, r.subject_name, r.subject_type,
		r.description, r.phone, r.status, r.created_at, r.updated_at`
	detailColumns = reservationColumns + `, s.start_time, s.end_time, d.user_id`
)

var (
	// ErrSlotUnavailable is returned when the slot is missing, belongs to
	// another tenant, or is marked unavailable.
	ErrSlotUnavailable = errors.New("slot not available")
	// ErrSlotTaken is returned when the slot already holds an active reservation.
	ErrSlotTaken = errors.New("slot already has an active reservation")
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Reservation is the reservation database model.
type Reservation struct {
	ID          uuid.UUID `db:"id"`
	TenantID    uuid.UUID `db:"tenant_id"`
	SlotID      uuid.UUID `db:"slot_id"`
	DoctorID    uuid.UUID `db:"doctor_id"`
	UserID      uuid.UUID `db:"user_id"`
	SubjectName string    `db:"subject_name"`
	SubjectType string    `db:"subject_type"`
	Description string    `db:"description"`
	Phone       *string   `db:"phone"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Details is a reservation joined with its slot and the slot doctor's account.
type Details struct {
	Reservation
	SlotStart    time.Time
	SlotEnd      time.Time
	DoctorUserID *uuid.UUID
}

// LockedSlot is the slot row as seen under the booking lock.
type LockedSlot struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	DoctorID    uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	IsAvailable bool
}

// NewReservation holds the client-entered fields of a booking.
type NewReservation struct {
	TenantID    uuid.UUID
	SlotID      uuid.UUID
	UserID      uuid.UUID
	SubjectName string
	SubjectType string
	Description string
	Phone       *string
}

// ListFilter narrows a reservation listing.
type ListFilter struct {
	UserID       *uuid.UUID
	DoctorUserID *uuid.UUID
	Status       *string
	From         *time.Time
	To           *time.Time
	Limit        uint64
	Offset       uint64
}

// Repository provides database operations for reservations.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new reservations repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func reservationFields(r *Reservation) []any {
	return []any{
		&r.ID, &r.TenantID, &r.SlotID, &r.DoctorID, &r.UserID, &r.SubjectName, &r.SubjectType,
		&r.Description, &r.Phone, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	}
}

func scanDetails(row rowScanner) (Details, error) {
	var d Details
	dest := append(reservationFields(&d.Reservation), &d.SlotStart, &d.SlotEnd, &d.DoctorUserID)
	if err := row.Scan(dest...); err != nil {
		return Details{}, err
	}
	return d, nil
}

// Book claims a slot in one transaction. The slot row is locked first so
// concurrent bookers of the same slot serialize on it; guard runs against the
// locked row and may veto the booking. The partial unique index on active
// reservations backs the check.
func (r *Repository) Book(ctx context.Context, res NewReservation, guard func(LockedSlot) error) (Reservation, LockedSlot, error) {
	var created Reservation
	var slot LockedSlot

	err := db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT id, tenant_id, doctor_id, start_time, end_time, is_available
			FROM slots WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
			res.SlotID, res.TenantID,
		).Scan(&slot.ID, &slot.TenantID, &slot.DoctorID, &slot.StartTime, &slot.EndTime, &slot.IsAvailable)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSlotUnavailable
			}
			return fmt.Errorf("failed to lock slot: %w", err)
		}
		if !slot.IsAvailable {
			return ErrSlotUnavailable
		}

		if guard != nil {
			if err := guard(slot); err != nil {
				return err
			}
		}

		var taken bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM reservations WHERE slot_id = $1 AND status IN ('PENDING', 'CONFIRMED'))`,
			slot.ID,
		).Scan(&taken); err != nil {
			return fmt.Errorf("failed to check slot reservations: %w", err)
		}
		if taken {
			return ErrSlotTaken
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO reservations AS r (tenant_id, slot_id, doctor_id, user_id, subject_name, subject_type, description, phone, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'PENDING')
			RETURNING `+reservationColumns,
			res.TenantID, slot.ID, slot.DoctorID, res.UserID,
			res.SubjectName, res.SubjectType, res.Description, res.Phone,
		).Scan(reservationFields(&created)...)
		if err != nil {
			if db.IsUniqueViolation(err, activeSlotIndex) {
				return ErrSlotTaken
			}
			return fmt.Errorf("failed to create reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return Reservation{}, LockedSlot{}, err
	}
	return created, slot, nil
}

// GetDetails retrieves a reservation with its slot, scoped to the tenant.
func (r *Repository) GetDetails(ctx context.Context, id, tenantID uuid.UUID) (Details, error) {
	query := `SELECT ` + detailColumns + `
		FROM reservations r
		JOIN slots s ON s.id = r.slot_id
		JOIN doctors d ON d.id = r.doctor_id
		WHERE r.id = $1 AND r.tenant_id = $2`

	details, err := scanDetails(r.pool.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Details{}, apperr.NotFound(reservationNotFoundMsg)
		}
		return Details{}, fmt.Errorf("failed to get reservation: %w", err)
	}
	return details, nil
}

// UpdateStatus sets the status of a reservation. Re-activating a reservation
// whose slot was booked again yields ErrSlotTaken.
func (r *Repository) UpdateStatus(ctx context.Context, id, tenantID uuid.UUID, status string) (Details, error) {
	query := `WITH updated AS (
			UPDATE reservations SET status = $3, updated_at = now()
			WHERE id = $1 AND tenant_id = $2
			RETURNING *
		)
		SELECT ` + detailColumns + `
		FROM updated r
		JOIN slots s ON s.id = r.slot_id
		JOIN doctors d ON d.id = r.doctor_id`

	details, err := scanDetails(r.pool.QueryRow(ctx, query, id, tenantID, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Details{}, apperr.NotFound(reservationNotFoundMsg)
		}
		if db.IsUniqueViolation(err, activeSlotIndex) {
			return Details{}, ErrSlotTaken
		}
		return Details{}, fmt.Errorf("failed to update reservation status: %w", err)
	}
	return details, nil
}

// List returns reservations ordered by slot start.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Details, error) {
	builder := psql.Select(detailColumns).
		From("reservations r").
		Join("slots s ON s.id = r.slot_id").
		Join("doctors d ON d.id = r.doctor_id").
		Where(squirrel.Eq{"r.tenant_id": tenantID}).
		OrderBy("s.start_time ASC", "r.created_at ASC")

	if filter.UserID != nil {
		builder = builder.Where(squirrel.Eq{"r.user_id": *filter.UserID})
	}
	if filter.DoctorUserID != nil {
		builder = builder.Where(squirrel.Eq{"d.user_id": *filter.DoctorUserID})
	}
	if filter.Status != nil {
		builder = builder.Where(squirrel.Eq{"r.status": *filter.Status})
	}
	if filter.From != nil {
		builder = builder.Where(squirrel.GtOrEq{"s.start_time": filter.From.UTC()})
	}
	if filter.To != nil {
		builder = builder.Where(squirrel.Lt{"s.start_time": filter.To.UTC()})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		builder = builder.Offset(filter.Offset)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build reservation list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	items := make([]Details, 0)
	for rows.Next() {
		d, err := scanDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reservations: %w", err)
	}
	return items, nil
}
