package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic_booking_backend/internal/email"
	"clinic_booking_backend/internal/events"
	apphttp "clinic_booking_backend/internal/http"
	"clinic_booking_backend/internal/http/router"
	"clinic_booking_backend/internal/notification"
	"clinic_booking_backend/internal/reservations"
	"clinic_booking_backend/internal/scheduler"
	"clinic_booking_backend/internal/slots"
	"clinic_booking_backend/internal/tenants"
	"clinic_booking_backend/migrations"
	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/db"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"
	"clinic_booking_backend/platform/timezone"
	"clinic_booking_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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
	log.Info("database connection established")

	if cfg.MigrationsEnabled {
		if err := db.RunMigrations(ctx, pool, migrations.FS); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	appMetrics := metrics.New()
	val := validator.New()

	tenantRepo := tenants.NewRepository(pool)
	zones := timezone.NewResolver(tenantRepo, timezone.NewCache(cfg.GetTimezoneCacheTTL()), cfg.GetDefaultTimezone(), log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events
	notificationModule := notification.NewModule(pool, zones, email.NewSenderFromConfig(cfg), appMetrics, cfg.GetContactCacheTTL(), log)
	notificationModule.SetReminderLead(cfg.GetReminderLeadTime())
	queue, closeQueue := initQueue(cfg, log)
	if queue != nil {
		defer closeQueue()
		notificationModule.SetQueue(queue)
	}
	notificationModule.RegisterHandlers(eventBus)

	tenantsModule := tenants.NewModule(tenantRepo, zones, eventBus, val, log)
	slotsModule := slots.NewModule(pool, zones, val, appMetrics, log)
	reservationsModule := reservations.NewModule(pool, zones, eventBus, val, appMetrics, log, cfg.GetPhoneRegion())

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  db.NewPoolAdapter(pool),
		Metrics: appMetrics,
		Modules: []apphttp.Module{
			tenantsModule,
			slotsModule,
			reservationsModule,
			notificationModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		eventBus.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initQueue connects the notification queue when Redis is configured.
// Without it notifications are sent inline and reminders are disabled.
func initQueue(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; notifications dispatched inline, reminders disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
