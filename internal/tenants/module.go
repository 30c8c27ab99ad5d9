// Package tenants provides tenant settings: the timezone every scheduling
// operation reads and the default notification contact.
package tenants

import (
	"clinic_booking_backend/internal/events"
	apphttp "clinic_booking_backend/internal/http"
	"clinic_booking_backend/internal/tenants/handler"
	"clinic_booking_backend/internal/tenants/repository"
	"clinic_booking_backend/internal/tenants/service"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the tenants domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule wires the settings service. repo is shared with the timezone
// resolver so both read the same rows.
func NewModule(repo *repository.Repository, zones service.ZoneCache, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repo, zones, bus, val, log)
	return &Module{
		handler: handler.New(svc),
		Service: svc,
	}
}

// NewRepository exposes the tenants repository for the timezone resolver.
func NewRepository(pool *pgxpool.Pool) *repository.Repository {
	return repository.New(pool)
}

func (m *Module) Name() string {
	return "tenants"
}

// RegisterRoutes registers the module's routes under /api/v1/tenant
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/tenant"))
}

var _ apphttp.Module = (*Module)(nil)
