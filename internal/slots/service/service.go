package service

import (
	"context"
	"errors"
	"time"

	"clinic_booking_backend/internal/shared/bookingerr"
	"clinic_booking_backend/internal/shared/principal"
	"clinic_booking_backend/internal/slots/generator"
	"clinic_booking_backend/internal/slots/repository"
	"clinic_booking_backend/internal/slots/transport"
	"clinic_booking_backend/platform/apperr"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"
	"clinic_booking_backend/platform/sanitize"
	"clinic_booking_backend/platform/timezone"
	"clinic_booking_backend/platform/validator"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

const (
	maxCandidates   = 5000
	defaultPageSize = 100
	roomNotFoundMsg = "room not found"
)

// Repository is the slot store used by the service.
type Repository interface {
	Create(ctx context.Context, slot repository.NewSlot) (repository.Slot, error)
	InsertMany(ctx context.Context, slots []repository.NewSlot) ([]repository.InsertOutcome, error)
	GetByID(ctx context.Context, id, tenantID uuid.UUID) (repository.Slot, error)
	List(ctx context.Context, tenantID uuid.UUID, filter repository.ListFilter) ([]repository.Slot, error)
	UpdateUnlocked(ctx context.Context, id, tenantID uuid.UUID, mutate func(*repository.Slot) error) (repository.Slot, error)
	DeleteUnlocked(ctx context.Context, id, tenantID uuid.UUID) error
	GetDoctor(ctx context.Context, id, tenantID uuid.UUID) (repository.Doctor, error)
	GetDoctorByUser(ctx context.Context, userID, tenantID uuid.UUID) (repository.Doctor, error)
	GetServiceType(ctx context.Context, id, tenantID uuid.UUID) (repository.ServiceType, error)
	RoomExists(ctx context.Context, id, tenantID uuid.UUID) (bool, error)
}

// ZoneResolver yields the tenant's IANA zone.
type ZoneResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID) string
}

// Service provides slot generation and manual slot management.
type Service struct {
	repo    Repository
	zones   ZoneResolver
	val     *validator.Validator
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

// New creates a new slots service
func New(repo Repository, zones ZoneResolver, val *validator.Validator, m *metrics.Metrics, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		zones:   zones,
		val:     val,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Generate expands a weekly pattern into slots for one doctor. Candidates
// whose range the doctor already owns are skipped and reported; rerunning an
// identical pattern therefore creates nothing.
func (s *Service) Generate(ctx context.Context, actor principal.Principal, req transport.GenerateSlotsRequest) (*transport.GenerationReport, error) {
	if err := s.val.Struct(req); err != nil {
		return nil, bookingerr.InvalidPattern("invalid generation pattern: %v", err)
	}

	zone := s.zones.Resolve(ctx, actor.TenantID)
	pattern, err := s.buildPattern(zone, req)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeDoctor(ctx, actor, req.DoctorID); err != nil {
		return nil, err
	}
	if err := s.ensureRoom(ctx, req.RoomID, actor.TenantID); err != nil {
		return nil, err
	}
	if req.ServiceTypeID != nil {
		st, err := s.repo.GetServiceType(ctx, *req.ServiceTypeID, actor.TenantID)
		if err != nil {
			return nil, err
		}
		if pattern.ServiceDurationMinutes == nil {
			duration := st.DurationMinutes
			pattern.ServiceDurationMinutes = &duration
		}
	}

	report := &transport.GenerationReport{
		Timezone:   zone,
		CreatedIDs: []uuid.UUID{},
		Skipped:    []transport.SkippedRange{},
	}

	var pending []repository.NewSlot
	var locals []generator.Candidate
	for c := range generator.Generate(pattern) {
		report.Candidates++
		if report.Candidates > maxCandidates {
			return nil, bookingerr.InvalidPattern("pattern produces more than %d slots; narrow the window or raise the step", maxCandidates)
		}

		start := timezone.LocalToUTC(c.StartDateTime(), zone)
		end := timezone.LocalToUTC(c.EndDateTime(), zone)
		if !end.After(start) || timezone.UTCToLocal(start, zone) != c.StartDateTime() {
			report.Skipped = append(report.Skipped, skipped(c, transport.SkipReasonDSTGap))
			continue
		}

		pending = append(pending, repository.NewSlot{
			TenantID:      actor.TenantID,
			DoctorID:      req.DoctorID,
			StartTime:     start,
			EndTime:       end,
			RoomID:        req.RoomID,
			ServiceTypeID: req.ServiceTypeID,
			Equipment:     sanitize.TextPtr(req.Equipment),
			Notes:         sanitize.TextPtr(req.Notes),
		})
		locals = append(locals, c)
	}

	outcomes, err := s.repo.InsertMany(ctx, pending)
	if err != nil {
		return nil, err
	}

	for i, outcome := range outcomes {
		if outcome.Inserted {
			report.Created++
			report.CreatedIDs = append(report.CreatedIDs, outcome.ID)
			continue
		}
		report.ConflictsSkipped++
		report.Skipped = append(report.Skipped, skipped(locals[i], transport.SkipReasonConflict))
	}

	s.metrics.SlotsGenerated(report.Created, report.ConflictsSkipped)
	s.log.WithContext(ctx).Info("slots generated",
		"doctor_id", req.DoctorID,
		"timezone", zone,
		"candidates", report.Candidates,
		"created", report.Created,
		"conflicts", report.ConflictsSkipped,
	)

	return report, nil
}

func skipped(c generator.Candidate, reason string) transport.SkippedRange {
	return transport.SkippedRange{
		Date:   c.Date.String(),
		Start:  generator.FormatClock(c.Start),
		End:    generator.FormatClock(c.End),
		Reason: reason,
	}
}

// buildPattern parses and checks the request beyond its struct tags.
func (s *Service) buildPattern(zone string, req transport.GenerateSlotsRequest) (generator.Pattern, error) {
	startTime, err := generator.ParseClock(req.StartTime)
	if err != nil {
		return generator.Pattern{}, bookingerr.InvalidPattern("%v", err)
	}
	endTime, err := generator.ParseClock(req.EndTime)
	if err != nil {
		return generator.Pattern{}, bookingerr.InvalidPattern("%v", err)
	}
	if !startTime.Before(endTime) {
		return generator.Pattern{}, bookingerr.InvalidPattern("startTime %s must be before endTime %s", req.StartTime, req.EndTime)
	}

	breaks := make([]generator.Interval, 0, len(req.Breaks))
	for _, b := range req.Breaks {
		bs, err := generator.ParseClock(b.Start)
		if err != nil {
			return generator.Pattern{}, bookingerr.InvalidPattern("%v", err)
		}
		be, err := generator.ParseClock(b.End)
		if err != nil {
			return generator.Pattern{}, bookingerr.InvalidPattern("%v", err)
		}
		if !bs.Before(be) {
			return generator.Pattern{}, bookingerr.InvalidPattern("break %s-%s must start before it ends", b.Start, b.End)
		}
		breaks = append(breaks, generator.Interval{Start: bs, End: be})
	}

	startDate, err := civil.ParseDate(req.StartDate)
	if err != nil {
		return generator.Pattern{}, bookingerr.InvalidPattern("invalid startDate %q", req.StartDate)
	}
	today := timezone.Today(s.now(), zone)
	if startDate.Before(today) {
		return generator.Pattern{}, bookingerr.InvalidPattern("startDate %s is in the past (today is %s in %s)", startDate, today, zone)
	}
	limit := civil.DateOf(today.In(time.UTC).AddDate(1, 0, 0))
	if startDate.After(limit) {
		return generator.Pattern{}, bookingerr.InvalidPattern("startDate %s is more than one year ahead", startDate)
	}

	weekdays := make([]time.Weekday, 0, len(req.Weekdays))
	for _, d := range req.Weekdays {
		weekdays = append(weekdays, time.Weekday(d))
	}

	return generator.Pattern{
		Weekdays:               weekdays,
		StartTime:              startTime,
		EndTime:                endTime,
		StepMinutes:            req.StepMinutes,
		ServiceDurationMinutes: req.ServiceDurationMinutes,
		Breaks:                 breaks,
		WeeksCount:             req.WeeksCount,
		StartDate:              startDate,
	}, nil
}

// authorizeDoctor checks the doctor exists in the tenant and that a doctor
// caller manages only their own schedule.
func (s *Service) authorizeDoctor(ctx context.Context, actor principal.Principal, doctorID uuid.UUID) error {
	doctor, err := s.repo.GetDoctor(ctx, doctorID, actor.TenantID)
	if err != nil {
		return err
	}
	if actor.IsAdmin() {
		return nil
	}
	if actor.IsDoctor() && doctor.UserID != nil && *doctor.UserID == actor.UserID {
		return nil
	}
	return bookingerr.Forbidden("you can only manage slots of your own schedule")
}

func (s *Service) ensureRoom(ctx context.Context, roomID *uuid.UUID, tenantID uuid.UUID) error {
	if roomID == nil {
		return nil
	}
	exists, err := s.repo.RoomExists(ctx, *roomID, tenantID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound(roomNotFoundMsg)
	}
	return nil
}

// Create adds one slot. The end defaults to start plus the service type duration.
func (s *Service) Create(ctx context.Context, actor principal.Principal, req transport.CreateSlotRequest) (*transport.SlotResponse, error) {
	if err := s.val.Struct(req); err != nil {
		return nil, apperr.Validation("invalid slot").WithDetails(err.Error())
	}
	if err := s.authorizeDoctor(ctx, actor, req.DoctorID); err != nil {
		return nil, err
	}
	if err := s.ensureRoom(ctx, req.RoomID, actor.TenantID); err != nil {
		return nil, err
	}

	zone := s.zones.Resolve(ctx, actor.TenantID)
	start, end, err := s.resolveRange(ctx, actor.TenantID, zone, req.Date, req.StartTime, req.EndTime, req.ServiceTypeID)
	if err != nil {
		return nil, err
	}

	slot, err := s.repo.Create(ctx, repository.NewSlot{
		TenantID:      actor.TenantID,
		DoctorID:      req.DoctorID,
		StartTime:     start,
		EndTime:       end,
		RoomID:        req.RoomID,
		ServiceTypeID: req.ServiceTypeID,
		Equipment:     sanitize.TextPtr(req.Equipment),
		Notes:         sanitize.TextPtr(req.Notes),
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateSlot) {
			return nil, bookingerr.SlotConflict(describeRange(start, end, zone))
		}
		return nil, err
	}

	resp := toResponse(slot, zone)
	return &resp, nil
}

// resolveRange turns local date and clock values into a UTC range.
func (s *Service) resolveRange(ctx context.Context, tenantID uuid.UUID, zone, date, startClock string, endClock *string, serviceTypeID *uuid.UUID) (time.Time, time.Time, error) {
	day, err := civil.ParseDate(date)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("invalid date " + date)
	}
	startTime, err := generator.ParseClock(startClock)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation(err.Error())
	}
	startLocal := civil.DateTime{Date: day, Time: startTime}

	var endLocal civil.DateTime
	switch {
	case endClock != nil:
		endTime, err := generator.ParseClock(*endClock)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.Validation(err.Error())
		}
		endLocal = civil.DateTime{Date: day, Time: endTime}
	case serviceTypeID != nil:
		st, err := s.repo.GetServiceType(ctx, *serviceTypeID, tenantID)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		endLocal = civil.DateTimeOf(startLocal.In(time.UTC).Add(time.Duration(st.DurationMinutes) * time.Minute))
	default:
		return time.Time{}, time.Time{}, apperr.Validation("endTime or serviceTypeId is required")
	}

	start := timezone.LocalToUTC(startLocal, zone)
	end := timezone.LocalToUTC(endLocal, zone)
	if !end.After(start) {
		return time.Time{}, time.Time{}, apperr.Validation("slot must end after it starts")
	}
	return start, end, nil
}

// GetByID returns one slot of the tenant.
func (s *Service) GetByID(ctx context.Context, actor principal.Principal, id uuid.UUID) (*transport.SlotResponse, error) {
	slot, err := s.repo.GetByID(ctx, id, actor.TenantID)
	if err != nil {
		return nil, err
	}
	resp := toResponse(slot, s.zones.Resolve(ctx, actor.TenantID))
	return &resp, nil
}

// List returns slots in a tenant-local date range. Clients only see slots
// that can still be booked.
func (s *Service) List(ctx context.Context, actor principal.Principal, req transport.ListSlotsRequest) (*transport.SlotListResponse, error) {
	if err := s.val.Struct(req); err != nil {
		return nil, apperr.Validation("invalid slot query").WithDetails(err.Error())
	}
	zone := s.zones.Resolve(ctx, actor.TenantID)

	filter := repository.ListFilter{
		DoctorID:      req.DoctorID,
		OnlyAvailable: req.OnlyAvailable || actor.IsClient(),
	}
	if req.Mine {
		if !actor.IsDoctor() {
			return nil, bookingerr.Forbidden("only doctors have their own schedule")
		}
		doctor, err := s.repo.GetDoctorByUser(ctx, actor.UserID, actor.TenantID)
		if err != nil {
			return nil, err
		}
		filter.DoctorID = &doctor.ID
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

	slots, err := s.repo.List(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, err
	}

	items := make([]transport.SlotResponse, 0, len(slots))
	for _, slot := range slots {
		items = append(items, toResponse(slot, zone))
	}
	return &transport.SlotListResponse{Items: items, Page: page, PageSize: pageSize}, nil
}

// Update edits a slot that holds no active reservation.
func (s *Service) Update(ctx context.Context, actor principal.Principal, id uuid.UUID, req transport.UpdateSlotRequest) (*transport.SlotResponse, error) {
	if err := s.val.Struct(req); err != nil {
		return nil, apperr.Validation("invalid slot").WithDetails(err.Error())
	}
	if err := s.ensureRoom(ctx, req.RoomID, actor.TenantID); err != nil {
		return nil, err
	}
	zone := s.zones.Resolve(ctx, actor.TenantID)

	slot, err := s.repo.UpdateUnlocked(ctx, id, actor.TenantID, func(slot *repository.Slot) error {
		if err := s.authorizeDoctor(ctx, actor, slot.DoctorID); err != nil {
			return err
		}
		return s.applyUpdate(ctx, actor.TenantID, zone, slot, req)
	})
	if err != nil {
		return nil, s.mapWriteError(err, zone)
	}

	resp := toResponse(slot, zone)
	return &resp, nil
}

func (s *Service) applyUpdate(ctx context.Context, tenantID uuid.UUID, zone string, slot *repository.Slot, req transport.UpdateSlotRequest) error {
	if req.Date != nil || req.StartTime != nil || req.EndTime != nil || req.ServiceTypeID != nil {
		currentStart := timezone.UTCToLocal(slot.StartTime, zone)
		currentEnd := timezone.UTCToLocal(slot.EndTime, zone)

		date := currentStart.Date.String()
		if req.Date != nil {
			date = *req.Date
		}
		startClock := generator.FormatClock(currentStart.Time)
		if req.StartTime != nil {
			startClock = *req.StartTime
		}
		endClock := req.EndTime
		if endClock == nil && req.ServiceTypeID == nil {
			kept := generator.FormatClock(currentEnd.Time)
			endClock = &kept
		}

		start, end, err := s.resolveRange(ctx, tenantID, zone, date, startClock, endClock, req.ServiceTypeID)
		if err != nil {
			return err
		}
		slot.StartTime, slot.EndTime = start, end
	}

	if req.ServiceTypeID != nil {
		slot.ServiceTypeID = req.ServiceTypeID
	}
	if req.RoomID != nil {
		slot.RoomID = req.RoomID
	}
	if req.Equipment != nil {
		slot.Equipment = sanitize.TextPtr(req.Equipment)
	}
	if req.Notes != nil {
		slot.Notes = sanitize.TextPtr(req.Notes)
	}
	if req.IsAvailable != nil {
		slot.IsAvailable = *req.IsAvailable
	}
	return nil
}

// Delete removes a slot that holds no active reservation.
func (s *Service) Delete(ctx context.Context, actor principal.Principal, id uuid.UUID) error {
	slot, err := s.repo.GetByID(ctx, id, actor.TenantID)
	if err != nil {
		return err
	}
	if err := s.authorizeDoctor(ctx, actor, slot.DoctorID); err != nil {
		return err
	}
	if err := s.repo.DeleteUnlocked(ctx, id, actor.TenantID); err != nil {
		return s.mapWriteError(err, "")
	}
	return nil
}

func (s *Service) mapWriteError(err error, zone string) error {
	switch {
	case errors.Is(err, repository.ErrSlotLocked):
		return bookingerr.SlotLocked()
	case errors.Is(err, repository.ErrDuplicateSlot):
		return bookingerr.SlotConflict("the requested time range in " + zone)
	}
	return err
}

func describeRange(start, end time.Time, zone string) string {
	ls := timezone.UTCToLocal(start, zone)
	le := timezone.UTCToLocal(end, zone)
	return ls.Date.String() + " " + generator.FormatClock(ls.Time) + "-" + generator.FormatClock(le.Time) + " (" + zone + ")"
}

func toResponse(slot repository.Slot, zone string) transport.SlotResponse {
	ls := timezone.UTCToLocal(slot.StartTime, zone)
	le := timezone.UTCToLocal(slot.EndTime, zone)
	return transport.SlotResponse{
		ID:            slot.ID,
		DoctorID:      slot.DoctorID,
		StartTime:     slot.StartTime.UTC(),
		EndTime:       slot.EndTime.UTC(),
		LocalDate:     ls.Date.String(),
		LocalStart:    generator.FormatClock(ls.Time),
		LocalEnd:      generator.FormatClock(le.Time),
		Timezone:      zone,
		RoomID:        slot.RoomID,
		ServiceTypeID: slot.ServiceTypeID,
		Equipment:     slot.Equipment,
		Notes:         slot.Notes,
		IsAvailable:   slot.IsAvailable,
		CreatedAt:     slot.CreatedAt,
		UpdatedAt:     slot.UpdatedAt,
	}
}
