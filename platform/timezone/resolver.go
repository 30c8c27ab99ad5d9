// Package timezone resolves tenant time zones and converts between tenant
// wall-clock values and UTC instants.
//
// Local values are naive civil date/times: they never carry an offset. The
// offset is attached from the tz database for the exact instant, so daylight
// saving transitions are honoured.
package timezone

import (
	"context"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // zone database for minimal container images

	"clinic_booking_backend/platform/logger"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// DefaultZone is used when a tenant has no zone or an unsupported one.
const DefaultZone = "Europe/Prague"

var allowedZones = map[string]struct{}{
	"UTC":                 {},
	"Europe/Amsterdam":    {},
	"Europe/Athens":       {},
	"Europe/Berlin":       {},
	"Europe/Bratislava":   {},
	"Europe/Brussels":     {},
	"Europe/Bucharest":    {},
	"Europe/Budapest":     {},
	"Europe/Copenhagen":   {},
	"Europe/Dublin":       {},
	"Europe/Helsinki":     {},
	"Europe/Kyiv":         {},
	"Europe/Lisbon":       {},
	"Europe/Ljubljana":    {},
	"Europe/London":       {},
	"Europe/Madrid":       {},
	"Europe/Oslo":         {},
	"Europe/Paris":        {},
	"Europe/Prague":       {},
	"Europe/Rome":         {},
	"Europe/Stockholm":    {},
	"Europe/Vienna":       {},
	"Europe/Warsaw":       {},
	"Europe/Zurich":       {},
	"America/New_York":    {},
	"America/Chicago":     {},
	"America/Los_Angeles": {},
}

// IsAllowed reports whether zone is on the supported allow-list.
func IsAllowed(zone string) bool {
	_, ok := allowedZones[zone]
	return ok
}

// AllowedZones returns the allow-list in sorted order.
func AllowedZones() []string {
	out := make([]string, 0, len(allowedZones))
	for zone := range allowedZones {
		out = append(out, zone)
	}
	sort.Strings(out)
	return out
}

// Source reads the stored zone id of a tenant.
type Source interface {
	GetTenantTimezone(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// Resolver resolves tenant zones through a TTL cache.
type Resolver struct {
	source   Source
	cache    *cache.Cache
	group    singleflight.Group
	fallback string
	log      *logger.Logger
}

// NewCache creates the per-tenant zone cache with the given TTL.
func NewCache(ttl time.Duration) *cache.Cache {
	return cache.New(ttl, 2*ttl)
}

// NewResolver creates a Resolver. A fallback outside the allow-list is
// replaced by DefaultZone.
func NewResolver(source Source, store *cache.Cache, fallback string, log *logger.Logger) *Resolver {
	if !IsAllowed(fallback) {
		fallback = DefaultZone
	}
	return &Resolver{
		source:   source,
		cache:    store,
		fallback: fallback,
		log:      log,
	}
}

// Fallback returns the zone used when a tenant zone cannot be resolved.
func (r *Resolver) Fallback() string {
	return r.fallback
}

// Resolve returns the tenant's zone id. It never fails: unknown, missing or
// unreadable zones resolve to the fallback and log a warning. Lookup
// failures are not cached.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID) string {
	key := tenantID.String()
	if cached, ok := r.cache.Get(key); ok {
		if zone, ok := cached.(string); ok {
			return zone
		}
	}

	// Shared by every waiter; detached from the first caller's cancellation.
	lookupCtx := context.WithoutCancel(ctx)
	result, _, _ := r.group.Do(key, func() (any, error) {
		stored, err := r.source.GetTenantTimezone(lookupCtx, tenantID)
		if err != nil {
			r.log.Warn("tenant timezone lookup failed, using fallback",
				"tenant_id", key, "fallback", r.fallback, "error", err)
			return r.fallback, nil
		}

		zone := r.normalize(key, stored)
		r.cache.Set(key, zone, cache.DefaultExpiration)
		return zone, nil
	})

	return result.(string)
}

// Location resolves the tenant zone and loads it.
func (r *Resolver) Location(ctx context.Context, tenantID uuid.UUID) *time.Location {
	return LoadZone(r.Resolve(ctx, tenantID))
}

// Invalidate drops the cached zone of a tenant.
func (r *Resolver) Invalidate(tenantID uuid.UUID) {
	r.cache.Delete(tenantID.String())
}

func (r *Resolver) normalize(tenantKey, stored string) string {
	zone := strings.TrimSpace(stored)
	if zone == "" {
		r.log.Warn("tenant has no timezone, using fallback", "tenant_id", tenantKey, "fallback", r.fallback)
		return r.fallback
	}
	if !IsAllowed(zone) {
		r.log.Warn("tenant timezone not supported, using fallback",
			"tenant_id", tenantKey, "timezone", zone, "fallback", r.fallback)
		return r.fallback
	}
	return zone
}

// LoadZone loads an allowed zone, falling back to DefaultZone and then UTC.
func LoadZone(zone string) *time.Location {
	if IsAllowed(zone) {
		if loc, err := time.LoadLocation(zone); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(DefaultZone); err == nil {
		return loc
	}
	return time.UTC
}

// LocalToUTC maps a naive tenant wall-clock value to its UTC instant.
// Wall-clock values inside a spring-forward gap are moved forward by the
// length of the gap; a repeated fall-back hour maps to one of its two instants.
func LocalToUTC(local civil.DateTime, zone string) time.Time {
	return local.In(LoadZone(zone)).UTC()
}

// UTCToLocal maps an instant to the naive wall-clock value in zone.
func UTCToLocal(instant time.Time, zone string) civil.DateTime {
	return civil.DateTimeOf(instant.In(LoadZone(zone)))
}

// StartOfDayUTC returns the instant at which the local date (YYYY-MM-DD)
// begins in zone.
func StartOfDayUTC(localDate string, zone string) (time.Time, error) {
	date, err := civil.ParseDate(localDate)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfDate(date, zone), nil
}

// StartOfDate is StartOfDayUTC for an already parsed date.
func StartOfDate(date civil.Date, zone string) time.Time {
	return LocalToUTC(civil.DateTime{Date: date}, zone)
}

// Today returns the local calendar date of now in zone.
func Today(now time.Time, zone string) civil.Date {
	return civil.DateOf(now.In(LoadZone(zone)))
}
