package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"clinic_booking_backend/internal/shared/bookingerr"
	"clinic_booking_backend/internal/shared/principal"
	"clinic_booking_backend/internal/slots/repository"
	"clinic_booking_backend/internal/slots/transport"
	"clinic_booking_backend/platform/apperr"
	"clinic_booking_backend/platform/httpkit"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/validator"

	"github.com/google/uuid"
)

type slotKey struct {
	doctor uuid.UUID
	start  time.Time
	end    time.Time
}

type fakeRepo struct {
	mu           sync.Mutex
	slots        map[uuid.UUID]repository.Slot
	keys         map[slotKey]uuid.UUID
	doctors      map[uuid.UUID]repository.Doctor
	serviceTypes map[uuid.UUID]repository.ServiceType
	active       map[uuid.UUID]bool
	lastFilter   repository.ListFilter
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		slots:        make(map[uuid.UUID]repository.Slot),
		keys:         make(map[slotKey]uuid.UUID),
		doctors:      make(map[uuid.UUID]repository.Doctor),
		serviceTypes: make(map[uuid.UUID]repository.ServiceType),
		active:       make(map[uuid.UUID]bool),
	}
}

func (f *fakeRepo) insertLocked(s repository.NewSlot) (repository.Slot, bool) {
	key := slotKey{doctor: s.DoctorID, start: s.StartTime.UTC(), end: s.EndTime.UTC()}
	if _, exists := f.keys[key]; exists {
		return repository.Slot{}, false
	}
	slot := repository.Slot{
		ID:            uuid.New(),
		TenantID:      s.TenantID,
		DoctorID:      s.DoctorID,
		StartTime:     s.StartTime.UTC(),
		EndTime:       s.EndTime.UTC(),
		RoomID:        s.RoomID,
		ServiceTypeID: s.ServiceTypeID,
		Equipment:     s.Equipment,
		Notes:         s.Notes,
		IsAvailable:   true,
	}
	f.slots[slot.ID] = slot
	f.keys[key] = slot.ID
	return slot, true
}

func (f *fakeRepo) Create(_ context.Context, s repository.NewSlot) (repository.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.insertLocked(s)
	if !ok {
		return repository.Slot{}, repository.ErrDuplicateSlot
	}
	return slot, nil
}

func (f *fakeRepo) InsertMany(_ context.Context, slots []repository.NewSlot) ([]repository.InsertOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]repository.InsertOutcome, 0, len(slots))
	for _, s := range slots {
		slot, ok := f.insertLocked(s)
		out = append(out, repository.InsertOutcome{Slot: s, ID: slot.ID, Inserted: ok})
	}
	return out, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id, tenantID uuid.UUID) (repository.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[id]
	if !ok || slot.TenantID != tenantID {
		return repository.Slot{}, apperr.NotFound("slot not found")
	}
	return slot, nil
}

func (f *fakeRepo) List(_ context.Context, tenantID uuid.UUID, filter repository.ListFilter) ([]repository.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	var out []repository.Slot
	for _, s := range f.slots {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateUnlocked(_ context.Context, id, tenantID uuid.UUID, mutate func(*repository.Slot) error) (repository.Slot, error) {
	f.mu.Lock()
	slot, ok := f.slots[id]
	active := f.active[id]
	f.mu.Unlock()
	if !ok || slot.TenantID != tenantID {
		return repository.Slot{}, apperr.NotFound("slot not found")
	}
	if active {
		return repository.Slot{}, repository.ErrSlotLocked
	}
	if err := mutate(&slot); err != nil {
		return repository.Slot{}, err
	}
	f.mu.Lock()
	f.slots[id] = slot
	f.mu.Unlock()
	return slot, nil
}

func (f *fakeRepo) DeleteUnlocked(_ context.Context, id, _ uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active[id] {
		return repository.ErrSlotLocked
	}
	delete(f.slots, id)
	return nil
}

func (f *fakeRepo) GetDoctor(_ context.Context, id, tenantID uuid.UUID) (repository.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok || d.TenantID != tenantID {
		return repository.Doctor{}, apperr.NotFound("doctor not found")
	}
	return d, nil
}

func (f *fakeRepo) GetDoctorByUser(_ context.Context, userID, tenantID uuid.UUID) (repository.Doctor, error) {
	for _, d := range f.doctors {
		if d.TenantID == tenantID && d.UserID != nil && *d.UserID == userID {
			return d, nil
		}
	}
	return repository.Doctor{}, apperr.NotFound("doctor not found")
}

func (f *fakeRepo) GetServiceType(_ context.Context, id, tenantID uuid.UUID) (repository.ServiceType, error) {
	st, ok := f.serviceTypes[id]
	if !ok || st.TenantID != tenantID {
		return repository.ServiceType{}, apperr.NotFound("service type not found")
	}
	return st, nil
}

func (f *fakeRepo) RoomExists(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}

type fixedZone string

func (z fixedZone) Resolve(context.Context, uuid.UUID) string { return string(z) }

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	admin    principal.Principal
	doctor   principal.Principal
	doctorID uuid.UUID
}

// now is Wednesday 2026-03-04 10:00 UTC.
var now = time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tenantID := uuid.New()
	doctorUser := uuid.New()
	doctorID := uuid.New()

	repo := newFakeRepo()
	repo.doctors[doctorID] = repository.Doctor{ID: doctorID, TenantID: tenantID, UserID: &doctorUser, FullName: "Dr. Novak"}

	svc := New(repo, fixedZone("Europe/Prague"), validator.New(), nil, logger.New("development"))
	svc.now = func() time.Time { return now }

	return &fixture{
		svc:      svc,
		repo:     repo,
		admin:    principal.Principal{UserID: uuid.New(), TenantID: tenantID, Role: httpkit.RoleAdmin},
		doctor:   principal.Principal{UserID: doctorUser, TenantID: tenantID, Role: httpkit.RoleDoctor},
		doctorID: doctorID,
	}
}

func intPtr(v int) *int { return &v }

func mondayPattern(doctorID uuid.UUID) transport.GenerateSlotsRequest {
	return transport.GenerateSlotsRequest{
		DoctorID:    doctorID,
		Weekdays:    []int{1},
		StartTime:   "08:00",
		EndTime:     "12:00",
		StepMinutes: intPtr(60),
		Breaks:      []transport.BreakInterval{{Start: "11:00", End: "12:00"}},
		WeeksCount:  1,
		StartDate:   "2026-03-09",
	}
}

func TestGenerateStoresPragueSlotsInUTC(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.Generate(context.Background(), f.doctor, mondayPattern(f.doctorID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Created != 3 || report.ConflictsSkipped != 0 {
		t.Fatalf("expected 3 created and 0 conflicts, got %+v", report)
	}

	want := map[time.Time]time.Time{
		time.Date(2026, time.March, 9, 7, 0, 0, 0, time.UTC): time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC): time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC): time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC),
	}
	for _, id := range report.CreatedIDs {
		slot := f.repo.slots[id]
		end, ok := want[slot.StartTime]
		if !ok || !end.Equal(slot.EndTime) {
			t.Fatalf("unexpected slot %s-%s", slot.StartTime, slot.EndTime)
		}
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	req := mondayPattern(f.doctorID)
	req.WeeksCount = 4

	first, err := f.svc.Generate(context.Background(), f.admin, req)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := f.svc.Generate(context.Background(), f.admin, req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Created != 12 {
		t.Fatalf("expected 12 slots on first run, got %d", first.Created)
	}
	if second.Created != 0 || second.ConflictsSkipped != 12 {
		t.Fatalf("expected rerun to create nothing, got %+v", second)
	}
	for _, s := range second.Skipped {
		if s.Reason != transport.SkipReasonConflict {
			t.Fatalf("expected conflict reason, got %q", s.Reason)
		}
	}
	if second.Skipped[0].Date != "2026-03-09" || second.Skipped[0].Start != "08:00" {
		t.Fatalf("expected skipped ranges in local time, got %+v", second.Skipped[0])
	}
}

func TestGenerateUsesServiceTypeDuration(t *testing.T) {
	f := newFixture(t)
	stID := uuid.New()
	f.repo.serviceTypes[stID] = repository.ServiceType{ID: stID, TenantID: f.admin.TenantID, Name: "Vaccination", DurationMinutes: 45}

	req := transport.GenerateSlotsRequest{
		DoctorID:      f.doctorID,
		Weekdays:      []int{1},
		StartTime:     "09:00",
		EndTime:       "10:30",
		StepMinutes:   intPtr(30),
		ServiceTypeID: &stID,
		WeeksCount:    1,
		StartDate:     "2026-03-09",
	}
	report, err := f.svc.Generate(context.Background(), f.admin, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Created != 2 {
		t.Fatalf("expected two overlapping 45 minute slots, got %d", report.Created)
	}
	for _, id := range report.CreatedIDs {
		slot := f.repo.slots[id]
		if slot.EndTime.Sub(slot.StartTime) != 45*time.Minute {
			t.Fatalf("expected 45 minute slot, got %s", slot.EndTime.Sub(slot.StartTime))
		}
	}
}

func TestGenerateRejectsInvalidPatterns(t *testing.T) {
	f := newFixture(t)

	cases := map[string]func(*transport.GenerateSlotsRequest){
		"past start date":  func(r *transport.GenerateSlotsRequest) { r.StartDate = "2026-03-03" },
		"too far ahead":    func(r *transport.GenerateSlotsRequest) { r.StartDate = "2027-03-05" },
		"inverted window":  func(r *transport.GenerateSlotsRequest) { r.StartTime, r.EndTime = "12:00", "08:00" },
		"no weekdays":      func(r *transport.GenerateSlotsRequest) { r.Weekdays = nil },
		"weekday out":      func(r *transport.GenerateSlotsRequest) { r.Weekdays = []int{7} },
		"too many weeks":   func(r *transport.GenerateSlotsRequest) { r.WeeksCount = 27 },
		"negative step":    func(r *transport.GenerateSlotsRequest) { r.StepMinutes = intPtr(-5) },
		"inverted break":   func(r *transport.GenerateSlotsRequest) { r.Breaks = []transport.BreakInterval{{Start: "11:00", End: "10:00"}} },
		"malformed clock":  func(r *transport.GenerateSlotsRequest) { r.StartTime = "8am" },
		"too many breaks":  func(r *transport.GenerateSlotsRequest) { r.Breaks = make([]transport.BreakInterval, 11) },
		"candidate blowup": func(r *transport.GenerateSlotsRequest) { r.Weekdays = []int{0, 1, 2, 3, 4, 5, 6}; r.StartTime, r.EndTime, r.StepMinutes, r.WeeksCount = "00:00", "23:59", intPtr(1), 26 },
	}

	for name, mutate := range cases {
		req := mondayPattern(f.doctorID)
		mutate(&req)
		_, err := f.svc.Generate(context.Background(), f.admin, req)
		if !apperr.HasCode(err, bookingerr.CodeInvalidPattern) {
			t.Fatalf("%s: expected invalid_pattern, got %v", name, err)
		}
	}
	if len(f.repo.slots) != 0 {
		t.Fatalf("expected nothing persisted, got %d slots", len(f.repo.slots))
	}
}

func TestGenerateForbidsForeignDoctor(t *testing.T) {
	f := newFixture(t)
	other := f.doctor
	other.UserID = uuid.New()

	_, err := f.svc.Generate(context.Background(), other, mondayPattern(f.doctorID))
	if !apperr.HasCode(err, bookingerr.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCreateDerivesEndFromServiceTypeAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	stID := uuid.New()
	f.repo.serviceTypes[stID] = repository.ServiceType{ID: stID, TenantID: f.admin.TenantID, DurationMinutes: 20}

	req := transport.CreateSlotRequest{
		DoctorID:      f.doctorID,
		Date:          "2026-07-13",
		StartTime:     "14:00",
		ServiceTypeID: &stID,
	}
	slot, err := f.svc.Create(context.Background(), f.admin, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot.LocalEnd != "14:20" {
		t.Fatalf("expected derived end 14:20, got %s", slot.LocalEnd)
	}
	if want := time.Date(2026, time.July, 13, 12, 0, 0, 0, time.UTC); !slot.StartTime.Equal(want) {
		t.Fatalf("expected summer offset start %s, got %s", want, slot.StartTime)
	}

	_, err = f.svc.Create(context.Background(), f.admin, req)
	if !apperr.HasCode(err, bookingerr.CodeSlotConflict) {
		t.Fatalf("expected slot_conflict, got %v", err)
	}
}

func TestBookedSlotCannotBeEditedOrDeleted(t *testing.T) {
	f := newFixture(t)
	report, err := f.svc.Generate(context.Background(), f.admin, mondayPattern(f.doctorID))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id := report.CreatedIDs[0]
	f.repo.active[id] = true

	notes := "bring x-ray"
	if _, err := f.svc.Update(context.Background(), f.admin, id, transport.UpdateSlotRequest{Notes: &notes}); !apperr.HasCode(err, bookingerr.CodeSlotLocked) {
		t.Fatalf("expected slot_locked on update, got %v", err)
	}
	if err := f.svc.Delete(context.Background(), f.admin, id); !apperr.HasCode(err, bookingerr.CodeSlotLocked) {
		t.Fatalf("expected slot_locked on delete, got %v", err)
	}

	f.repo.active[id] = false
	if err := f.svc.Delete(context.Background(), f.admin, id); err != nil {
		t.Fatalf("expected delete after cancellation to succeed, got %v", err)
	}
}

func TestUpdateMovesStartAndKeepsEnd(t *testing.T) {
	f := newFixture(t)
	report, err := f.svc.Generate(context.Background(), f.admin, mondayPattern(f.doctorID))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	start := "08:30"
	updated, err := f.svc.Update(context.Background(), f.admin, report.CreatedIDs[0], transport.UpdateSlotRequest{StartTime: &start})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.LocalStart != "08:30" || updated.LocalEnd != "09:00" {
		t.Fatalf("expected 08:30-09:00, got %s-%s", updated.LocalStart, updated.LocalEnd)
	}
}

func TestListMineResolvesCallersDoctorProfile(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()

	if _, err := f.svc.List(context.Background(), f.doctor, transport.ListSlotsRequest{Mine: true, DoctorID: &other}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if f.repo.lastFilter.DoctorID == nil || *f.repo.lastFilter.DoctorID != f.doctorID {
		t.Fatalf("expected filter on own doctor profile, got %v", f.repo.lastFilter.DoctorID)
	}

	if _, err := f.svc.List(context.Background(), f.admin, transport.ListSlotsRequest{Mine: true}); !apperr.HasCode(err, bookingerr.CodeForbidden) {
		t.Fatalf("expected forbidden for non-doctor caller, got %v", err)
	}

	stranger := principal.Principal{UserID: uuid.New(), TenantID: f.doctor.TenantID, Role: httpkit.RoleDoctor}
	if _, err := f.svc.List(context.Background(), stranger, transport.ListSlotsRequest{Mine: true}); apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("expected not found for doctor without profile, got %v", err)
	}
}
