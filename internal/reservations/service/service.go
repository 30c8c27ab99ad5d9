package service

import (
	"context"
	"errors"
	"time"

	"clinic_booking_backend/internal/events"
	"clinic_booking_backend/internal/reservations/repository"
	"clinic_booking_backend/internal/reservations/transport"
	"clinic_booking_backend/internal/shared/bookingerr"
	"clinic_booking_backend/internal/shared/principal"
	"clinic_booking_backend/internal/slots/generator"
	"clinic_booking_backend/platform/apperr"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"
	"clinic_booking_backend/platform/phone"
	"clinic_booking_backend/platform/sanitize"
	"clinic_booking_backend/platform/timezone"
	"clinic_booking_backend/platform/validator"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

const defaultPageSize = 50

// Store is the reservation store used by the service.
type Store interface {
	Book(ctx context.Context, res repository.NewReservation, guard func(repository.LockedSlot) error) (repository.Reservation, repository.LockedSlot, error)
	GetDetails(ctx context.Context, id, tenantID uuid.UUID) (repository.Details, error)
	UpdateStatus(ctx context.Context, id, tenantID uuid.UUID, status string) (repository.Details, error)
	List(ctx context.Context, tenantID uuid.UUID, filter repository.ListFilter) ([]repository.Details, error)
}

// ZoneResolver yields the tenant's IANA zone.
type ZoneResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID) string
}

// Service provides booking and reservation lifecycle logic
type Service struct {
	store       Store
	zones       ZoneResolver
	bus         events.Bus
	val         *validator.Validator
	metrics     *metrics.Metrics
	log         *logger.Logger
	phoneRegion string
	now         func() time.Time
}

// New creates a new reservations service
func New(store Store, zones ZoneResolver, bus events.Bus, val *validator.Validator, m *metrics.Metrics, log *logger.Logger, phoneRegion string) *Service {
	return &Service{
		store:       store,
		zones:       zones,
		bus:         bus,
		val:         val,
		metrics:     m,
		log:         log,
		phoneRegion: phoneRegion,
		now:         time.Now,
	}
}

// Book claims a slot for the actor. Clients may only book slots starting on
// a later tenant-local date than today; staff are exempt.
func (s *Service) Book(ctx context.Context, actor principal.Principal, req transport.BookReservationRequest) (*transport.ReservationResponse, error) {
	if err := s.val.Struct(req); err != nil {
		return nil, apperr.Validation("invalid reservation").WithDetails(err.Error())
	}

	zone := s.zones.Resolve(ctx, actor.TenantID)
	newRes := repository.NewReservation{
		TenantID:    actor.TenantID,
		SlotID:      req.SlotID,
		UserID:      actor.UserID,
		SubjectName: sanitize.Limit(sanitize.Text(req.SubjectName), 200),
		SubjectType: sanitize.Limit(sanitize.Text(req.SubjectType), 100),
		Description: sanitize.Limit(sanitize.Text(req.Description), 2000),
	}
	if req.Phone != nil {
		if normalized := phone.NormalizeE164ForRegion(*req.Phone, s.phoneRegion); normalized != "" {
			newRes.Phone = &normalized
		}
	}

	var guard func(repository.LockedSlot) error
	if !actor.IsStaff() {
		guard = func(slot repository.LockedSlot) error {
			return CheckBookingWindow(slot.StartTime, s.now(), zone)
		}
	}

	created, slot, err := s.store.Book(ctx, newRes, guard)
	if err != nil {
		err = s.mapBookingError(err)
		s.recordRejection(ctx, actor, req.SlotID, err)
		return nil, err
	}
	s.metrics.Booking(metrics.OutcomeBooked)

	s.publishIntent(ctx, events.IntentReservationCreated, created.ID, actor.TenantID, false)

	resp := toResponse(repository.Details{
		Reservation: created,
		SlotStart:   slot.StartTime,
		SlotEnd:     slot.EndTime,
	}, zone)
	return &resp, nil
}

// CheckBookingWindow rejects slots whose local start date is not strictly
// after the local date of now.
func CheckBookingWindow(slotStart, now time.Time, zone string) error {
	slotDate := timezone.UTCToLocal(slotStart, zone).Date
	if !slotDate.After(timezone.Today(now, zone)) {
		return bookingerr.TooSoonToBook(slotDate.String())
	}
	return nil
}

func (s *Service) mapBookingError(err error) error {
	switch {
	case errors.Is(err, repository.ErrSlotUnavailable):
		return bookingerr.SlotNotFound()
	case errors.Is(err, repository.ErrSlotTaken):
		return bookingerr.SlotAlreadyBooked()
	}
	return err
}

func (s *Service) recordRejection(ctx context.Context, actor principal.Principal, slotID uuid.UUID, err error) {
	outcome := metrics.OutcomeError
	switch {
	case apperr.HasCode(err, bookingerr.CodeSlotAlreadyBooked):
		outcome = metrics.OutcomeAlreadyBooked
	case apperr.HasCode(err, bookingerr.CodeSlotNotFound):
		outcome = metrics.OutcomeNotFound
	case apperr.HasCode(err, bookingerr.CodeTooSoonToBook):
		outcome = metrics.OutcomeTooSoon
	}
	s.metrics.Booking(outcome)

	if domainErr, ok := apperr.As(err); ok {
		s.log.WithContext(ctx).BookingRejected("book", domainErr.Code, actor.TenantID.String(), slotID.String())
	}
}

// Transition moves a reservation to a new status on behalf of actor. The
// notification intent is published after the change commits and never
// affects its result.
func (s *Service) Transition(ctx context.Context, actor principal.Principal, id uuid.UUID, req transport.UpdateStatusRequest) (*transport.ReservationResponse, error) {
	next, err := ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetDetails(ctx, id, actor.TenantID)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeTransition(actor, current, next); err != nil {
		s.log.WithContext(ctx).BookingRejected("transition", bookingerr.CodeForbidden, actor.TenantID.String(), id.String())
		return nil, err
	}

	updated, err := s.store.UpdateStatus(ctx, id, actor.TenantID, string(next))
	if err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, bookingerr.SlotAlreadyBooked()
		}
		return nil, err
	}
	s.metrics.Transition(string(next))

	kind, notifyBoth := IntentFor(next, actor, req.NotifyBoth)
	s.publishIntent(ctx, kind, id, actor.TenantID, notifyBoth)
	if next == transport.StatusConfirmed && s.bus != nil {
		s.bus.Publish(ctx, events.ReservationConfirmed{
			BaseEvent:     events.NewBaseEvent(),
			ReservationID: id,
			TenantID:      actor.TenantID,
			SlotStart:     updated.SlotStart,
		})
	}

	resp := toResponse(updated, s.zones.Resolve(ctx, actor.TenantID))
	return &resp, nil
}

// Cancel is the client-facing shortcut for a transition to CANCELLED.
func (s *Service) Cancel(ctx context.Context, actor principal.Principal, id uuid.UUID) (*transport.ReservationResponse, error) {
	return s.Transition(ctx, actor, id, transport.UpdateStatusRequest{Status: string(transport.StatusCancelled)})
}

// GetByID returns a reservation visible to actor.
func (s *Service) GetByID(ctx context.Context, actor principal.Principal, id uuid.UUID) (*transport.ReservationResponse, error) {
	details, err := s.store.GetDetails(ctx, id, actor.TenantID)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeView(actor, details); err != nil {
		return nil, err
	}
	resp := toResponse(details, s.zones.Resolve(ctx, actor.TenantID))
	return &resp, nil
}

// List returns the reservations visible to actor: their own for clients,
// those on their slots for doctors, all for admins.
func (s *Service) List(ctx context.Context, actor principal.Principal, req transport.ListReservationsRequest) (*transport.ReservationListResponse, error) {
	if err := s.val.Struct(req); err != nil {
		return nil, apperr.Validation("invalid reservation query").WithDetails(err.Error())
	}
	zone := s.zones.Resolve(ctx, actor.TenantID)

	var filter repository.ListFilter
	switch {
	case actor.IsClient():
		filter.UserID = &actor.UserID
	case actor.IsDoctor():
		filter.DoctorUserID = &actor.UserID
	}
	if req.Status != "" {
		filter.Status = &req.Status
	}
	if req.From != "" {
		from, err := timezone.StartOfDayUTC(req.From, zone)
		if err != nil {
			return nil, apperr.Validation("invalid from date")
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := civil.ParseDate(req.To)
		if err != nil {
			return nil, apperr.Validation("invalid to date")
		}
		until := timezone.StartOfDate(to.AddDays(1), zone)
		filter.To = &until
	}

	page, pageSize := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	filter.Limit = uint64(pageSize)
	filter.Offset = uint64((page - 1) * pageSize)

	rows, err := s.store.List(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]transport.ReservationResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, toResponse(row, zone))
	}
	return &transport.ReservationListResponse{Items: items, Page: page, PageSize: pageSize}, nil
}

func (s *Service) publishIntent(ctx context.Context, kind events.IntentKind, reservationID, tenantID uuid.UUID, notifyBoth bool) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.ReservationNotificationRequested{
		BaseEvent:     events.NewBaseEvent(),
		Kind:          kind,
		ReservationID: reservationID,
		TenantID:      tenantID,
		NotifyBoth:    notifyBoth,
	})
}

func toResponse(d repository.Details, zone string) transport.ReservationResponse {
	ls := timezone.UTCToLocal(d.SlotStart, zone)
	le := timezone.UTCToLocal(d.SlotEnd, zone)
	return transport.ReservationResponse{
		ID:          d.ID,
		SlotID:      d.SlotID,
		DoctorID:    d.DoctorID,
		UserID:      d.UserID,
		SubjectName: d.SubjectName,
		SubjectType: d.SubjectType,
		Description: d.Description,
		Phone:       d.Phone,
		Status:      transport.ReservationStatus(d.Status),
		SlotStart:   d.SlotStart.UTC(),
		SlotEnd:     d.SlotEnd.UTC(),
		LocalDate:   ls.Date.String(),
		LocalStart:  generator.FormatClock(ls.Time),
		LocalEnd:    generator.FormatClock(le.Time),
		Timezone:    zone,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
