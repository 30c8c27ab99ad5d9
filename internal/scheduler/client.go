package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"clinic_booking_backend/internal/notification"
	notifservice "clinic_booking_backend/internal/notification/service"
	"clinic_booking_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Notification tasks are best-effort and not retried.
const maxRetry = 0

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return NewClientWithOpt(opt, cfg.GetAsynqQueueName()), nil
}

// NewClientWithOpt builds a client on an explicit Redis connection.
func NewClientWithOpt(opt asynq.RedisConnOpt, queue string) *Client {
	if queue == "" {
		queue = "default"
	}
	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueIntent queues one notification for immediate dispatch.
func (c *Client) EnqueueIntent(ctx context.Context, intent notifservice.Intent) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewNotificationDispatchTask(NotificationDispatchPayload{
		Kind:          string(intent.Kind),
		ReservationID: intent.ReservationID.String(),
		TenantID:      intent.TenantID.String(),
		NotifyBoth:    intent.NotifyBoth,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(maxRetry))
	return err
}

// ScheduleReminder queues a reminder at runAt. A reminder already scheduled
// for the reservation is kept.
func (c *Client) ScheduleReminder(ctx context.Context, reservationID, tenantID uuid.UUID, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewReservationReminderTask(ReservationReminderPayload{
		ReservationID: reservationID.String(),
		TenantID:      tenantID.String(),
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(runAt),
		asynq.Queue(c.queue),
		asynq.TaskID(reminderTaskID(reservationID)),
		asynq.MaxRetry(maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func reminderTaskID(reservationID uuid.UUID) string {
	return "reminder-" + reservationID.String()
}

var _ notification.Queue = (*Client)(nil)

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
