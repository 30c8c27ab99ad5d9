// Package notification reacts to reservation events. It sends the emails
// that follow a reservation change and schedules reminders, so the booking
// modules never talk to mail servers or queues directly.
package notification

import (
	"context"
	"time"

	"clinic_booking_backend/internal/email"
	"clinic_booking_backend/internal/events"
	apphttp "clinic_booking_backend/internal/http"
	notifhandler "clinic_booking_backend/internal/notification/handler"
	"clinic_booking_backend/internal/notification/repository"
	"clinic_booking_backend/internal/notification/service"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queue hands work to the background scheduler.
type Queue interface {
	EnqueueIntent(ctx context.Context, intent service.Intent) error
	ScheduleReminder(ctx context.Context, reservationID, tenantID uuid.UUID, runAt time.Time) error
}

// Module handles all notification-related event subscriptions.
type Module struct {
	dispatcher   *service.Dispatcher
	contacts     *service.ContactResolver
	queue        Queue
	reminderLead time.Duration
	handler      *notifhandler.HTTPHandler
	log          *logger.Logger
	now          func() time.Time
}

// NewModule wires the dispatcher to Postgres and the given sender.
func NewModule(pool *pgxpool.Pool, zones service.ZoneResolver, sender email.Sender, m *metrics.Metrics, contactTTL time.Duration, log *logger.Logger) *Module {
	repo := repository.New(pool)
	contacts := service.NewContactResolver(repo, contactTTL, log)
	dispatcher := service.NewDispatcher(repo, repo, contacts, zones, sender, m, log)

	mod := New(dispatcher, contacts, log)
	mod.handler = notifhandler.NewHTTPHandler(repo)
	return mod
}

// New builds a module around an existing dispatcher.
func New(dispatcher *service.Dispatcher, contacts *service.ContactResolver, log *logger.Logger) *Module {
	return &Module{
		dispatcher:   dispatcher,
		contacts:     contacts,
		reminderLead: 24 * time.Hour,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the module name for logging
func (m *Module) Name() string { return "notification" }

// RegisterRoutes exposes the delivery audit trail to admins.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.handler == nil {
		return
	}
	m.handler.RegisterRoutes(ctx.Admin)
}

// SetQueue routes intents through the background scheduler. Without a queue
// intents are dispatched inline and reminders are not scheduled.
func (m *Module) SetQueue(q Queue) { m.queue = q }

// SetReminderLead sets how long before slot start reminders fire.
func (m *Module) SetReminderLead(d time.Duration) {
	if d > 0 {
		m.reminderLead = d
	}
}

// Dispatcher returns the dispatcher for reuse by the scheduler worker.
func (m *Module) Dispatcher() *service.Dispatcher { return m.dispatcher }

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ReservationNotificationRequested{}.EventName(), m)
	bus.Subscribe(events.ReservationConfirmed{}.EventName(), m)
	bus.Subscribe(events.TenantSettingsChanged{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ReservationNotificationRequested:
		return m.handleNotificationRequested(ctx, e)
	case events.ReservationConfirmed:
		return m.handleReservationConfirmed(ctx, e)
	case events.TenantSettingsChanged:
		return m.handleTenantSettingsChanged(ctx, e)
	default:
		return nil
	}
}

func (m *Module) handleNotificationRequested(ctx context.Context, e events.ReservationNotificationRequested) error {
	intent := service.IntentFromEvent(e)
	if m.queue != nil {
		err := m.queue.EnqueueIntent(ctx, intent)
		if err == nil {
			return nil
		}
		m.log.Warn("failed to enqueue notification, dispatching inline",
			"reservation_id", e.ReservationID.String(), "kind", string(e.Kind), "error", err)
	}
	m.dispatcher.Dispatch(ctx, intent)
	return nil
}

func (m *Module) handleReservationConfirmed(ctx context.Context, e events.ReservationConfirmed) error {
	if m.queue == nil {
		return nil
	}
	runAt := e.SlotStart.Add(-m.reminderLead)
	if !runAt.After(m.now()) {
		m.log.Debug("reminder not scheduled, slot too close", "reservation_id", e.ReservationID.String())
		return nil
	}
	if err := m.queue.ScheduleReminder(ctx, e.ReservationID, e.TenantID, runAt); err != nil {
		m.log.Warn("failed to schedule reminder", "reservation_id", e.ReservationID.String(), "error", err)
		return err
	}
	return nil
}

func (m *Module) handleTenantSettingsChanged(_ context.Context, e events.TenantSettingsChanged) error {
	m.contacts.Invalidate(e.TenantID)
	return nil
}

var _ apphttp.Module = (*Module)(nil)
var _ events.Handler = (*Module)(nil)
