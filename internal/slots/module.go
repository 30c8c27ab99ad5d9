// Package slots provides the slot generation and management module.
package slots

import (
	apphttp "clinic_booking_backend/internal/http"
	"clinic_booking_backend/internal/slots/handler"
	"clinic_booking_backend/internal/slots/repository"
	"clinic_booking_backend/internal/slots/service"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"
	"clinic_booking_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the slots domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new slots module with all dependencies wired
func NewModule(pool *pgxpool.Pool, zones service.ZoneResolver, val *validator.Validator, m *metrics.Metrics, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, zones, val, m, log)

	return &Module{
		handler: handler.New(svc),
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "slots"
}

// RegisterRoutes registers the module's routes under /api/v1/slots
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/slots"))
}

var _ apphttp.Module = (*Module)(nil)
