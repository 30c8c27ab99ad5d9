package scheduler

import (
	"context"
	"fmt"

	"clinic_booking_backend/internal/events"
	notifservice "clinic_booking_backend/internal/notification/service"
	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// IntentDispatcher sends the notification for one intent.
type IntentDispatcher interface {
	Dispatch(ctx context.Context, intent notifservice.Intent) bool
}

type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	dispatcher IntentDispatcher
	log        *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, dispatcher IntentDispatcher, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	return newWorker(server, dispatcher, log), nil
}

func newWorker(server *asynq.Server, dispatcher IntentDispatcher, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		server:     server,
		mux:        mux,
		dispatcher: dispatcher,
		log:        log,
	}

	mux.HandleFunc(TaskNotificationDispatch, w.handleNotificationDispatch)
	mux.HandleFunc(TaskReservationReminder, w.handleReservationReminder)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// Dispatch failures are already logged and audited by the dispatcher, so the
// handlers below only fail on malformed payloads.

func (w *Worker) handleNotificationDispatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseNotificationDispatchPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	reservationID, tenantID, err := parseIDs(payload.ReservationID, payload.TenantID)
	if err != nil {
		return err
	}

	w.dispatcher.Dispatch(ctx, notifservice.Intent{
		Kind:          events.IntentKind(payload.Kind),
		ReservationID: reservationID,
		TenantID:      tenantID,
		NotifyBoth:    payload.NotifyBoth,
	})
	return nil
}

func (w *Worker) handleReservationReminder(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReservationReminderPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	reservationID, tenantID, err := parseIDs(payload.ReservationID, payload.TenantID)
	if err != nil {
		return err
	}

	w.dispatcher.Dispatch(ctx, notifservice.Intent{
		Kind:          events.IntentReservationReminder,
		ReservationID: reservationID,
		TenantID:      tenantID,
	})
	return nil
}

func parseIDs(reservation, tenant string) (uuid.UUID, uuid.UUID, error) {
	reservationID, err := uuid.Parse(reservation)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: invalid reservation id: %v", asynq.SkipRetry, err)
	}
	tenantID, err := uuid.Parse(tenant)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: invalid tenant id: %v", asynq.SkipRetry, err)
	}
	return reservationID, tenantID, nil
}
