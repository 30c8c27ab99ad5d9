package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic_booking_backend/internal/email"
	"clinic_booking_backend/internal/notification"
	"clinic_booking_backend/internal/scheduler"
	"clinic_booking_backend/internal/tenants"
	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/db"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"
	"clinic_booking_backend/platform/timezone"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	zones := timezone.NewResolver(tenants.NewRepository(pool), timezone.NewCache(cfg.GetTimezoneCacheTTL()), cfg.GetDefaultTimezone(), log)

	// Worker-side dispatch wiring (no HTTP handlers required).
	notificationModule := notification.NewModule(pool, zones, email.NewSenderFromConfig(cfg), metrics.New(), cfg.GetContactCacheTTL(), log)

	worker, err := scheduler.NewWorker(cfg, notificationModule.Dispatcher(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
