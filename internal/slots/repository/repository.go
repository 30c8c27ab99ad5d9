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
	slotNotFoundMsg        = "slot not found"
	doctorNotFoundMsg      = "doctor not found"
	serviceTypeNotFoundMsg = "service type not found"

	slotRangeConstraint = "slots_doctor_range_key"

	slotColumns = `id, tenant_id, doctor_id, start_time, end_time, room_id, service_type_id,
		equipment, notes, is_available, created_at, updated_at`
)

var (
	// ErrDuplicateSlot is returned when the doctor already owns a slot with
	// the same start and end.
	ErrDuplicateSlot = errors.New("slot with identical range exists")
	// ErrSlotLocked is returned when a slot with active reservations would be modified.
	ErrSlotLocked = errors.New("slot has active reservations")
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Slot is the slot database model. Times are UTC instants.
type Slot struct {
	ID            uuid.UUID  `db:"id"`
	TenantID      uuid.UUID  `db:"tenant_id"`
	DoctorID      uuid.UUID  `db:"doctor_id"`
	StartTime     time.Time  `db:"start_time"`
	EndTime       time.Time  `db:"end_time"`
	RoomID        *uuid.UUID `db:"room_id"`
	ServiceTypeID *uuid.UUID `db:"service_type_id"`
	Equipment     *string    `db:"equipment"`
	Notes         *string    `db:"notes"`
	IsAvailable   bool       `db:"is_available"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// NewSlot holds the fields of a slot to insert.
type NewSlot struct {
	TenantID      uuid.UUID
	DoctorID      uuid.UUID
	StartTime     time.Time
	EndTime       time.Time
	RoomID        *uuid.UUID
	ServiceTypeID *uuid.UUID
	Equipment     *string
	Notes         *string
}

// InsertOutcome reports what happened to one candidate of a bulk insert.
type InsertOutcome struct {
	Slot     NewSlot
	ID       uuid.UUID
	Inserted bool
}

// ListFilter narrows a slot listing. Zero values mean no restriction.
type ListFilter struct {
	DoctorID      *uuid.UUID
	From          *time.Time
	To            *time.Time
	OnlyAvailable bool
	Limit         uint64
	Offset        uint64
}

// Doctor is a provider owning slots.
type Doctor struct {
	ID       uuid.UUID  `db:"id"`
	TenantID uuid.UUID  `db:"tenant_id"`
	UserID   *uuid.UUID `db:"user_id"`
	FullName string     `db:"full_name"`
}

// ServiceType carries the duration used to derive slot ends.
type ServiceType struct {
	ID              uuid.UUID `db:"id"`
	TenantID        uuid.UUID `db:"tenant_id"`
	Name            string    `db:"name"`
	DurationMinutes int       `db:"duration_minutes"`
}

// Repository provides database operations for slots.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new slots repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID, &s.TenantID, &s.DoctorID, &s.StartTime, &s.EndTime, &s.RoomID, &s.ServiceTypeID,
		&s.Equipment, &s.Notes, &s.IsAvailable, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// Create inserts a single slot. A duplicate range yields ErrDuplicateSlot.
func (r *Repository) Create(ctx context.Context, slot NewSlot) (Slot, error) {
	query := `INSERT INTO slots (tenant_id, doctor_id, start_time, end_time, room_id, service_type_id, equipment, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + slotColumns

	created, err := scanSlot(r.pool.QueryRow(ctx, query,
		slot.TenantID, slot.DoctorID, slot.StartTime.UTC(), slot.EndTime.UTC(),
		slot.RoomID, slot.ServiceTypeID, slot.Equipment, slot.Notes,
	))
	if err != nil {
		if db.IsUniqueViolation(err, slotRangeConstraint) {
			return Slot{}, ErrDuplicateSlot
		}
		return Slot{}, fmt.Errorf("failed to create slot: %w", err)
	}
	return created, nil
}

// InsertMany inserts all slots in one transaction. Candidates colliding with
// an existing (doctor, start, end) row are skipped by the unique constraint,
// so concurrent generation runs never persist a range twice.
func (r *Repository) InsertMany(ctx context.Context, slots []NewSlot) ([]InsertOutcome, error) {
	if len(slots) == 0 {
		return nil, nil
	}

	outcomes := make([]InsertOutcome, len(slots))
	err := db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, s := range slots {
			batch.Queue(`INSERT INTO slots (tenant_id, doctor_id, start_time, end_time, room_id, service_type_id, equipment, notes)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT ON CONSTRAINT slots_doctor_range_key DO NOTHING
				RETURNING id`,
				s.TenantID, s.DoctorID, s.StartTime.UTC(), s.EndTime.UTC(),
				s.RoomID, s.ServiceTypeID, s.Equipment, s.Notes,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for i, s := range slots {
			outcomes[i].Slot = s
			var id uuid.UUID
			err := results.QueryRow().Scan(&id)
			switch {
			case err == nil:
				outcomes[i].ID = id
				outcomes[i].Inserted = true
			case errors.Is(err, pgx.ErrNoRows):
				outcomes[i].Inserted = false
			default:
				_ = results.Close()
				return fmt.Errorf("failed to insert generated slot: %w", err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

// GetByID retrieves a slot scoped to the tenant.
func (r *Repository) GetByID(ctx context.Context, id, tenantID uuid.UUID) (Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1 AND tenant_id = $2`

	slot, err := scanSlot(r.pool.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Slot{}, apperr.NotFound(slotNotFoundMsg)
		}
		return Slot{}, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

// List returns slots ordered by start time.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Slot, error) {
	builder := psql.Select(slotColumns).
		From("slots").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("start_time ASC", "doctor_id ASC")

	if filter.DoctorID != nil {
		builder = builder.Where(squirrel.Eq{"doctor_id": *filter.DoctorID})
	}
	if filter.From != nil {
		builder = builder.Where(squirrel.GtOrEq{"start_time": filter.From.UTC()})
	}
	if filter.To != nil {
		builder = builder.Where(squirrel.Lt{"start_time": filter.To.UTC()})
	}
	if filter.OnlyAvailable {
		builder = builder.Where(squirrel.Eq{"is_available": true}).
			Where(`NOT EXISTS (SELECT 1 FROM reservations r WHERE r.slot_id = slots.id AND r.status IN ('PENDING', 'CONFIRMED'))`)
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		builder = builder.Offset(filter.Offset)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build slot list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	slots := make([]Slot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slots: %w", err)
	}
	return slots, nil
}

// UpdateUnlocked applies mutate to a slot that has no active reservations.
// The slot row is locked for the duration of the check and the write, the
// same lock a booking takes, so the two cannot interleave.
func (r *Repository) UpdateUnlocked(ctx context.Context, id, tenantID uuid.UUID, mutate func(*Slot) error) (Slot, error) {
	var updated Slot
	err := db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		slot, err := lockSlot(ctx, tx, id, tenantID)
		if err != nil {
			return err
		}
		if err := ensureNoActiveReservations(ctx, tx, id); err != nil {
			return err
		}
		if err := mutate(&slot); err != nil {
			return err
		}

		updated, err = scanSlot(tx.QueryRow(ctx, `UPDATE slots SET
				doctor_id = $3, start_time = $4, end_time = $5, room_id = $6, service_type_id = $7,
				equipment = $8, notes = $9, is_available = $10, updated_at = now()
			WHERE id = $1 AND tenant_id = $2
			RETURNING `+slotColumns,
			id, tenantID, slot.DoctorID, slot.StartTime.UTC(), slot.EndTime.UTC(), slot.RoomID,
			slot.ServiceTypeID, slot.Equipment, slot.Notes, slot.IsAvailable,
		))
		if err != nil {
			if db.IsUniqueViolation(err, slotRangeConstraint) {
				return ErrDuplicateSlot
			}
			return fmt.Errorf("failed to update slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return Slot{}, err
	}
	return updated, nil
}

// DeleteUnlocked removes a slot that has no active reservations. Cancelled
// and completed reservations are removed with it.
func (r *Repository) DeleteUnlocked(ctx context.Context, id, tenantID uuid.UUID) error {
	return db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := lockSlot(ctx, tx, id, tenantID); err != nil {
			return err
		}
		if err := ensureNoActiveReservations(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM reservations WHERE slot_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete slot history: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM slots WHERE id = $1 AND tenant_id = $2`, id, tenantID); err != nil {
			return fmt.Errorf("failed to delete slot: %w", err)
		}
		return nil
	})
}

// GetDoctor returns a doctor of the tenant.
func (r *Repository) GetDoctor(ctx context.Context, id, tenantID uuid.UUID) (Doctor, error) {
	var d Doctor
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, user_id, full_name FROM doctors WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&d.ID, &d.TenantID, &d.UserID, &d.FullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Doctor{}, apperr.NotFound(doctorNotFoundMsg)
		}
		return Doctor{}, fmt.Errorf("failed to get doctor: %w", err)
	}
	return d, nil
}

// GetDoctorByUser returns the doctor profile bound to a user account.
func (r *Repository) GetDoctorByUser(ctx context.Context, userID, tenantID uuid.UUID) (Doctor, error) {
	var d Doctor
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, user_id, full_name FROM doctors WHERE user_id = $1 AND tenant_id = $2`,
		userID, tenantID,
	).Scan(&d.ID, &d.TenantID, &d.UserID, &d.FullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Doctor{}, apperr.NotFound(doctorNotFoundMsg)
		}
		return Doctor{}, fmt.Errorf("failed to get doctor by user: %w", err)
	}
	return d, nil
}

// GetServiceType returns a service type of the tenant.
func (r *Repository) GetServiceType(ctx context.Context, id, tenantID uuid.UUID) (ServiceType, error) {
	var st ServiceType
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, duration_minutes FROM service_types WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&st.ID, &st.TenantID, &st.Name, &st.DurationMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ServiceType{}, apperr.NotFound(serviceTypeNotFoundMsg)
		}
		return ServiceType{}, fmt.Errorf("failed to get service type: %w", err)
	}
	return st, nil
}

// RoomExists reports whether the room belongs to the tenant.
func (r *Repository) RoomExists(ctx context.Context, id, tenantID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1 AND tenant_id = $2)`,
		id, tenantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check room: %w", err)
	}
	return exists, nil
}

const activeReservationQuery = `SELECT EXISTS (
	SELECT 1 FROM reservations WHERE slot_id = $1 AND status IN ('PENDING', 'CONFIRMED')
)`

func lockSlot(ctx context.Context, tx pgx.Tx, id, tenantID uuid.UUID) (Slot, error) {
	slot, err := scanSlot(tx.QueryRow(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		id, tenantID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Slot{}, apperr.NotFound(slotNotFoundMsg)
		}
		return Slot{}, fmt.Errorf("failed to lock slot: %w", err)
	}
	return slot, nil
}

func ensureNoActiveReservations(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) error {
	var active bool
	if err := tx.QueryRow(ctx, activeReservationQuery, slotID).Scan(&active); err != nil {
		return fmt.Errorf("failed to check slot reservations: %w", err)
	}
	if active {
		return ErrSlotLocked
	}
	return nil
}
