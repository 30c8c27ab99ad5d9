package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clinic_booking_backend/internal/events"
	"clinic_booking_backend/internal/reservations/repository"
	"clinic_booking_backend/internal/reservations/transport"
	"clinic_booking_backend/internal/shared/bookingerr"
	"clinic_booking_backend/internal/shared/principal"
	"clinic_booking_backend/platform/apperr"
	platformevents "clinic_booking_backend/platform/events"
	"clinic_booking_backend/platform/httpkit"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/validator"

	"github.com/google/uuid"
)

// fakeStore serializes every call on one mutex, which stands in for the
// slot row lock of the real store.
type fakeStore struct {
	mu           sync.Mutex
	slots        map[uuid.UUID]repository.LockedSlot
	reservations map[uuid.UUID]repository.Details
	doctorUsers  map[uuid.UUID]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		slots:        make(map[uuid.UUID]repository.LockedSlot),
		reservations: make(map[uuid.UUID]repository.Details),
		doctorUsers:  make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeStore) activeOn(slotID, except uuid.UUID) bool {
	for id, r := range f.reservations {
		if id != except && r.SlotID == slotID && IsActive(transport.ReservationStatus(r.Status)) {
			return true
		}
	}
	return false
}

func (f *fakeStore) Book(_ context.Context, res repository.NewReservation, guard func(repository.LockedSlot) error) (repository.Reservation, repository.LockedSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot, ok := f.slots[res.SlotID]
	if !ok || slot.TenantID != res.TenantID || !slot.IsAvailable {
		return repository.Reservation{}, repository.LockedSlot{}, repository.ErrSlotUnavailable
	}
	if guard != nil {
		if err := guard(slot); err != nil {
			return repository.Reservation{}, repository.LockedSlot{}, err
		}
	}
	if f.activeOn(slot.ID, uuid.Nil) {
		return repository.Reservation{}, repository.LockedSlot{}, repository.ErrSlotTaken
	}

	created := repository.Reservation{
		ID:          uuid.New(),
		TenantID:    res.TenantID,
		SlotID:      slot.ID,
		DoctorID:    slot.DoctorID,
		UserID:      res.UserID,
		SubjectName: res.SubjectName,
		SubjectType: res.SubjectType,
		Description: res.Description,
		Phone:       res.Phone,
		Status:      string(transport.StatusPending),
	}
	doctorUser := f.doctorUsers[slot.DoctorID]
	f.reservations[created.ID] = repository.Details{
		Reservation:  created,
		SlotStart:    slot.StartTime,
		SlotEnd:      slot.EndTime,
		DoctorUserID: &doctorUser,
	}
	return created, slot, nil
}

func (f *fakeStore) GetDetails(_ context.Context, id, tenantID uuid.UUID) (repository.Details, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.reservations[id]
	if !ok || d.TenantID != tenantID {
		return repository.Details{}, apperr.NotFound("reservation not found")
	}
	return d, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id, tenantID uuid.UUID, status string) (repository.Details, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.reservations[id]
	if !ok || d.TenantID != tenantID {
		return repository.Details{}, apperr.NotFound("reservation not found")
	}
	if IsActive(transport.ReservationStatus(status)) && f.activeOn(d.SlotID, id) {
		return repository.Details{}, repository.ErrSlotTaken
	}
	d.Status = status
	f.reservations[id] = d
	return d, nil
}

func (f *fakeStore) List(_ context.Context, tenantID uuid.UUID, filter repository.ListFilter) ([]repository.Details, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Details
	for _, d := range f.reservations {
		if d.TenantID != tenantID {
			continue
		}
		if filter.UserID != nil && d.UserID != *filter.UserID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) intents() []events.ReservationNotificationRequested {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.ReservationNotificationRequested
	for _, e := range b.published {
		if intent, ok := e.(events.ReservationNotificationRequested); ok {
			out = append(out, intent)
		}
	}
	return out
}

type fixedZone string

func (z fixedZone) Resolve(context.Context, uuid.UUID) string { return string(z) }

// now is 23:30 on 2026-06-30 in Prague.
var now = time.Date(2026, time.June, 30, 21, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *fakeStore
	bus      *recordingBus
	tenantID uuid.UUID
	client   principal.Principal
	doctor   principal.Principal
	admin    principal.Principal
	doctorID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tenantID := uuid.New()
	doctorID := uuid.New()
	doctorUser := uuid.New()

	store := newFakeStore()
	store.doctorUsers[doctorID] = doctorUser
	bus := &recordingBus{}

	svc := New(store, fixedZone("Europe/Prague"), bus, validator.New(), nil, logger.New("development"), "CZ")
	svc.now = func() time.Time { return now }

	return &fixture{
		svc:      svc,
		store:    store,
		bus:      bus,
		tenantID: tenantID,
		client:   principal.Principal{UserID: uuid.New(), TenantID: tenantID, Role: httpkit.RoleClient},
		doctor:   principal.Principal{UserID: doctorUser, TenantID: tenantID, Role: httpkit.RoleDoctor},
		admin:    principal.Principal{UserID: uuid.New(), TenantID: tenantID, Role: httpkit.RoleAdmin},
		doctorID: doctorID,
	}
}

func (f *fixture) addSlot(start time.Time) uuid.UUID {
	id := uuid.New()
	f.store.slots[id] = repository.LockedSlot{
		ID:          id,
		TenantID:    f.tenantID,
		DoctorID:    f.doctorID,
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		IsAvailable: true,
	}
	return id
}

func bookReq(slotID uuid.UUID) transport.BookReservationRequest {
	return transport.BookReservationRequest{SlotID: slotID, SubjectName: "Rex", SubjectType: "dog"}
}

// tomorrow 08:00 Prague.
var tomorrowMorning = time.Date(2026, time.July, 1, 6, 0, 0, 0, time.UTC)

func TestConcurrentBookingsYieldExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	slotID := f.addSlot(tomorrowMorning)

	const attempts = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			actor := f.client
			actor.UserID = uuid.New()
			_, errs[i] = f.svc.Book(context.Background(), actor, bookReq(slotID))
		}(i)
	}
	close(start)
	wg.Wait()

	successes, taken := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperr.HasCode(err, bookingerr.CodeSlotAlreadyBooked):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || taken != attempts-1 {
		t.Fatalf("expected 1 success and %d already booked, got %d and %d", attempts-1, successes, taken)
	}
}

func TestBookPublishesCreatedIntentAndNormalizesInput(t *testing.T) {
	f := newFixture(t)
	slotID := f.addSlot(tomorrowMorning)

	phoneNumber := "601 123 456"
	req := bookReq(slotID)
	req.SubjectName = "  <b>Rex</b>   junior "
	req.Phone = &phoneNumber

	res, err := f.svc.Book(context.Background(), f.client, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != transport.StatusPending {
		t.Fatalf("expected PENDING, got %s", res.Status)
	}
	if res.SubjectName != "Rex junior" {
		t.Fatalf("expected sanitized name, got %q", res.SubjectName)
	}
	if res.Phone == nil || *res.Phone != "+420601123456" {
		t.Fatalf("expected E.164 phone, got %v", res.Phone)
	}
	if res.LocalDate != "2026-07-01" || res.LocalStart != "08:00" {
		t.Fatalf("expected local 2026-07-01 08:00, got %s %s", res.LocalDate, res.LocalStart)
	}

	intents := f.bus.intents()
	if len(intents) != 1 || intents[0].Kind != events.IntentReservationCreated || intents[0].ReservationID != res.ID {
		t.Fatalf("expected one created intent, got %+v", intents)
	}
}

func TestClientCannotBookSameDayButStaffCan(t *testing.T) {
	f := newFixture(t)
	// 23:45 Prague on 2026-06-30, still in the future but the same local day.
	lateTonight := f.addSlot(time.Date(2026, time.June, 30, 21, 45, 0, 0, time.UTC))

	_, err := f.svc.Book(context.Background(), f.client, bookReq(lateTonight))
	if !apperr.HasCode(err, bookingerr.CodeTooSoonToBook) {
		t.Fatalf("expected too_soon_to_book, got %v", err)
	}
	domainErr, _ := apperr.As(err)
	if details, ok := domainErr.Details.(map[string]string); !ok || details["date"] != "2026-06-30" {
		t.Fatalf("expected error to name 2026-06-30, got %+v", domainErr.Details)
	}

	if _, err := f.svc.Book(context.Background(), f.doctor, bookReq(lateTonight)); err != nil {
		t.Fatalf("expected doctor booking to succeed, got %v", err)
	}

	pastSlot := f.addSlot(time.Date(2026, time.June, 29, 8, 0, 0, 0, time.UTC))
	if _, err := f.svc.Book(context.Background(), f.admin, bookReq(pastSlot)); err != nil {
		t.Fatalf("expected admin booking to succeed, got %v", err)
	}
}

func TestBookRejectsMissingForeignAndUnavailableSlots(t *testing.T) {
	f := newFixture(t)

	unavailable := f.addSlot(tomorrowMorning)
	slot := f.store.slots[unavailable]
	slot.IsAvailable = false
	f.store.slots[unavailable] = slot

	foreign := f.addSlot(tomorrowMorning.Add(time.Hour))
	slot = f.store.slots[foreign]
	slot.TenantID = uuid.New()
	f.store.slots[foreign] = slot

	for name, id := range map[string]uuid.UUID{"missing": uuid.New(), "unavailable": unavailable, "foreign": foreign} {
		_, err := f.svc.Book(context.Background(), f.client, bookReq(id))
		if !apperr.HasCode(err, bookingerr.CodeSlotNotFound) {
			t.Fatalf("%s: expected slot_not_found, got %v", name, err)
		}
	}
	if len(f.bus.intents()) != 0 {
		t.Fatalf("expected no intents for rejected bookings")
	}
}

func (f *fixture) book(t *testing.T) transport.ReservationResponse {
	t.Helper()
	res, err := f.svc.Book(context.Background(), f.client, bookReq(f.addSlot(tomorrowMorning)))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return *res
}

func (f *fixture) transition(t *testing.T, actor principal.Principal, id uuid.UUID, status string) *transport.ReservationResponse {
	t.Helper()
	res, err := f.svc.Transition(context.Background(), actor, id, transport.UpdateStatusRequest{Status: status})
	if err != nil {
		t.Fatalf("transition to %s: %v", status, err)
	}
	return res
}

func TestClientCancelOfConfirmedReservationNotifiesBoth(t *testing.T) {
	f := newFixture(t)
	res := f.book(t)
	f.transition(t, f.doctor, res.ID, "CONFIRMED")

	cancelled, err := f.svc.Cancel(context.Background(), f.client, res.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != transport.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}

	intents := f.bus.intents()
	last := intents[len(intents)-1]
	if last.Kind != events.IntentReservationCancelled || !last.NotifyBoth {
		t.Fatalf("expected cancelled intent with notifyBoth, got %+v", last)
	}
}

func TestStaffCancelNotifiesBothOnlyWhenAsked(t *testing.T) {
	f := newFixture(t)

	quiet := f.book(t)
	f.transition(t, f.admin, quiet.ID, "CANCELLED")
	intents := f.bus.intents()
	if last := intents[len(intents)-1]; last.NotifyBoth {
		t.Fatalf("expected staff cancel without flag to notify client only")
	}

	loud := f.book(t)
	if _, err := f.svc.Transition(context.Background(), f.doctor, loud.ID, transport.UpdateStatusRequest{Status: "CANCELLED", NotifyBoth: true}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	intents = f.bus.intents()
	if last := intents[len(intents)-1]; !last.NotifyBoth {
		t.Fatalf("expected staff cancel with flag to notify both")
	}
}

func TestConfirmPublishesReminderSource(t *testing.T) {
	f := newFixture(t)
	res := f.book(t)
	f.transition(t, f.doctor, res.ID, "confirmed")

	var confirmed *events.ReservationConfirmed
	for _, e := range f.bus.published {
		if c, ok := e.(events.ReservationConfirmed); ok {
			confirmed = &c
		}
	}
	if confirmed == nil || confirmed.ReservationID != res.ID || !confirmed.SlotStart.Equal(tomorrowMorning) {
		t.Fatalf("expected confirmation event for reminders, got %+v", confirmed)
	}
}

func TestTransitionAuthorization(t *testing.T) {
	f := newFixture(t)
	res := f.book(t)

	otherDoctor := principal.Principal{UserID: uuid.New(), TenantID: f.tenantID, Role: httpkit.RoleDoctor}
	otherClient := principal.Principal{UserID: uuid.New(), TenantID: f.tenantID, Role: httpkit.RoleClient}

	cases := []struct {
		name   string
		actor  principal.Principal
		status string
	}{
		{"client confirms own", f.client, "CONFIRMED"},
		{"client completes own", f.client, "COMPLETED"},
		{"client cancels foreign", otherClient, "CANCELLED"},
		{"foreign doctor confirms", otherDoctor, "CONFIRMED"},
	}
	for _, tc := range cases {
		_, err := f.svc.Transition(context.Background(), tc.actor, res.ID, transport.UpdateStatusRequest{Status: tc.status})
		if !apperr.HasCode(err, bookingerr.CodeForbidden) {
			t.Fatalf("%s: expected forbidden, got %v", tc.name, err)
		}
	}
	if got := f.store.reservations[res.ID].Status; got != "PENDING" {
		t.Fatalf("expected status untouched, got %s", got)
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	res := f.book(t)

	_, err := f.svc.Transition(context.Background(), f.admin, res.ID, transport.UpdateStatusRequest{Status: "ARCHIVED"})
	if !apperr.HasCode(err, bookingerr.CodeInvalidStatus) {
		t.Fatalf("expected invalid_status, got %v", err)
	}
}

// Terminal states are not guarded: staff may leave them and may re-enter
// the current status.
func TestTerminalAndSameStatusTransitionsAreAllowed(t *testing.T) {
	f := newFixture(t)
	res := f.book(t)

	f.transition(t, f.admin, res.ID, "PENDING")
	f.transition(t, f.admin, res.ID, "COMPLETED")
	if got := f.transition(t, f.admin, res.ID, "PENDING"); got.Status != transport.StatusPending {
		t.Fatalf("expected COMPLETED -> PENDING to pass, got %s", got.Status)
	}
	f.transition(t, f.doctor, res.ID, "CANCELLED")
	f.transition(t, f.doctor, res.ID, "CANCELLED")
	if got := f.transition(t, f.doctor, res.ID, "CONFIRMED"); got.Status != transport.StatusConfirmed {
		t.Fatalf("expected CANCELLED -> CONFIRMED to pass, got %s", got.Status)
	}
}

func TestReactivationOfRebookedSlotIsRejected(t *testing.T) {
	f := newFixture(t)
	slotID := f.addSlot(tomorrowMorning)

	first, err := f.svc.Book(context.Background(), f.client, bookReq(slotID))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	f.transition(t, f.admin, first.ID, "CANCELLED")

	second := f.client
	second.UserID = uuid.New()
	if _, err := f.svc.Book(context.Background(), second, bookReq(slotID)); err != nil {
		t.Fatalf("expected cancelled slot to be bookable again, got %v", err)
	}

	_, err = f.svc.Transition(context.Background(), f.admin, first.ID, transport.UpdateStatusRequest{Status: "CONFIRMED"})
	if !apperr.HasCode(err, bookingerr.CodeSlotAlreadyBooked) {
		t.Fatalf("expected slot_already_booked, got %v", err)
	}
}

func TestFailingNotificationHandlerDoesNotAffectTransition(t *testing.T) {
	f := newFixture(t)
	bus := platformevents.NewInMemoryBus(logger.New("development"))
	bus.Subscribe(events.ReservationNotificationRequested{}.EventName(), events.HandlerFunc(func(context.Context, events.Event) error {
		return errors.New("smtp down")
	}))
	bus.Subscribe(events.ReservationConfirmed{}.EventName(), events.HandlerFunc(func(context.Context, events.Event) error {
		panic("scheduler exploded")
	}))
	f.svc.bus = bus

	res := f.book(t)
	confirmed := f.transition(t, f.doctor, res.ID, "CONFIRMED")
	bus.Wait()

	if confirmed.Status != transport.StatusConfirmed || f.store.reservations[res.ID].Status != "CONFIRMED" {
		t.Fatalf("expected transition to stand despite notification failure")
	}
}

func TestListScopesClientsToOwnReservations(t *testing.T) {
	f := newFixture(t)
	f.book(t)
	other := f.client
	other.UserID = uuid.New()
	if _, err := f.svc.Book(context.Background(), other, bookReq(f.addSlot(tomorrowMorning.Add(time.Hour)))); err != nil {
		t.Fatalf("book: %v", err)
	}

	mine, err := f.svc.List(context.Background(), f.client, transport.ListReservationsRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine.Items) != 1 || mine.Items[0].UserID != f.client.UserID {
		t.Fatalf("expected only the client's reservation, got %+v", mine.Items)
	}

	all, err := f.svc.List(context.Background(), f.admin, transport.ListReservationsRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all.Items) != 2 {
		t.Fatalf("expected admin to see 2 reservations, got %d", len(all.Items))
	}
}

func TestGetByIDHidesForeignReservations(t *testing.T) {
	f := newFixture(t)
	res := f.book(t)
	stranger := principal.Principal{UserID: uuid.New(), TenantID: f.tenantID, Role: httpkit.RoleClient}

	if _, err := f.svc.GetByID(context.Background(), stranger, res.ID); !apperr.HasCode(err, bookingerr.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.GetByID(context.Background(), f.doctor, res.ID); err != nil {
		t.Fatalf("expected slot doctor to read reservation, got %v", err)
	}
}
