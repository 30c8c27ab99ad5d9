// Package service implements tenant settings.
package service

import (
	"context"
	"strings"

	"clinic_booking_backend/internal/events"
	"clinic_booking_backend/internal/shared/bookingerr"
	"clinic_booking_backend/internal/shared/principal"
	"clinic_booking_backend/internal/tenants/repository"
	"clinic_booking_backend/internal/tenants/transport"
	"clinic_booking_backend/platform/apperr"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/timezone"
	"clinic_booking_backend/platform/validator"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Tenant, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, upd repository.SettingsUpdate) (repository.Tenant, error)
}

// ZoneCache is the part of the timezone resolver this service needs.
type ZoneCache interface {
	Resolve(ctx context.Context, tenantID uuid.UUID) string
	Invalidate(tenantID uuid.UUID)
}

type Service struct {
	repo  Repository
	zones ZoneCache
	bus   events.Bus
	val   *validator.Validator
	log   *logger.Logger
}

func New(repo Repository, zones ZoneCache, bus events.Bus, val *validator.Validator, log *logger.Logger) *Service {
	return &Service{repo: repo, zones: zones, bus: bus, val: val, log: log}
}

func (s *Service) Get(ctx context.Context, actor principal.Principal) (transport.SettingsResponse, error) {
	t, err := s.repo.GetByID(ctx, actor.TenantID)
	if err != nil {
		return transport.SettingsResponse{}, err
	}
	return s.toResponse(ctx, t), nil
}

// Update changes the tenant zone and default contact. Admins only.
func (s *Service) Update(ctx context.Context, actor principal.Principal, req transport.UpdateSettingsRequest) (transport.SettingsResponse, error) {
	if !actor.IsAdmin() {
		return transport.SettingsResponse{}, bookingerr.Forbidden("only tenant admins can change settings")
	}
	upd := repository.SettingsUpdate{
		Timezone:     trimmed(req.Timezone),
		ContactEmail: trimmed(req.ContactEmail),
	}
	if err := s.val.Struct(transport.UpdateSettingsRequest{Timezone: upd.Timezone, ContactEmail: upd.ContactEmail}); err != nil {
		return transport.SettingsResponse{}, apperr.Validation(err.Error())
	}
	if upd.Timezone != nil && !timezone.IsAllowed(*upd.Timezone) {
		return transport.SettingsResponse{}, apperr.Validation("unsupported timezone: " + *upd.Timezone).
			WithDetails(map[string]any{"supported": timezone.AllowedZones()})
	}

	t, err := s.repo.UpdateSettings(ctx, actor.TenantID, upd)
	if err != nil {
		return transport.SettingsResponse{}, err
	}

	s.zones.Invalidate(actor.TenantID)
	if s.bus != nil {
		s.bus.Publish(ctx, events.TenantSettingsChanged{
			BaseEvent: events.NewBaseEvent(),
			TenantID:  actor.TenantID,
			Timezone:  deref(t.Timezone),
		})
	}
	s.log.Info("tenant settings updated", "tenant_id", actor.TenantID.String(), "timezone", deref(t.Timezone))

	return s.toResponse(ctx, t), nil
}

func (s *Service) toResponse(ctx context.Context, t repository.Tenant) transport.SettingsResponse {
	return transport.SettingsResponse{
		ID:                t.ID,
		Slug:              t.Slug,
		Name:              t.Name,
		Timezone:          t.Timezone,
		EffectiveTimezone: s.zones.Resolve(ctx, t.ID),
		ContactEmail:      t.ContactEmail,
		SupportedZones:    timezone.AllowedZones(),
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
