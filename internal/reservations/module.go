// Package reservations provides the booking and reservation lifecycle module.
package reservations

import (
	"clinic_booking_backend/internal/events"
	apphttp "clinic_booking_backend/internal/http"
	"clinic_booking_backend/internal/reservations/handler"
	"clinic_booking_backend/internal/reservations/repository"
	"clinic_booking_backend/internal/reservations/service"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"
	"clinic_booking_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the reservations domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
	Repo    *repository.Repository
}

// NewModule creates a new reservations module with all dependencies wired
func NewModule(pool *pgxpool.Pool, zones service.ZoneResolver, bus events.Bus, val *validator.Validator, m *metrics.Metrics, log *logger.Logger, phoneRegion string) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, zones, bus, val, m, log, phoneRegion)

	return &Module{
		handler: handler.New(svc),
		Service: svc,
		Repo:    repo,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "reservations"
}

// RegisterRoutes registers the module's routes under /api/v1/reservations
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/reservations"), ctx.BookingRateLimiter.RateLimit())
}

var _ apphttp.Module = (*Module)(nil)
