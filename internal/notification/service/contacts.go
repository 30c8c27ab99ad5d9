package service

import (
	"context"
	"strings"
	"time"

	"clinic_booking_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// TenantContactSource reads a tenant's default contact address.
type TenantContactSource interface {
	GetTenantContact(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// ContactResolver picks the address a notification goes to. A user's own
// address wins; the tenant default contact is the fallback and is cached.
type ContactResolver struct {
	source TenantContactSource
	cache  *cache.Cache
	log    *logger.Logger
}

func NewContactResolver(source TenantContactSource, ttl time.Duration, log *logger.Logger) *ContactResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ContactResolver{
		source: source,
		cache:  cache.New(ttl, 2*ttl),
		log:    log,
	}
}

// Resolve returns userEmail when set, else the tenant contact, else "".
func (r *ContactResolver) Resolve(ctx context.Context, tenantID uuid.UUID, userEmail *string) string {
	if userEmail != nil {
		if addr := strings.TrimSpace(*userEmail); addr != "" {
			return addr
		}
	}
	return r.TenantContact(ctx, tenantID)
}

// TenantContact returns the cached tenant default contact. Lookup failures
// are not cached.
func (r *ContactResolver) TenantContact(ctx context.Context, tenantID uuid.UUID) string {
	if r == nil || r.source == nil {
		return ""
	}
	key := tenantID.String()
	if v, ok := r.cache.Get(key); ok {
		return v.(string)
	}

	contact, err := r.source.GetTenantContact(ctx, tenantID)
	if err != nil {
		if r.log != nil {
			r.log.Warn("tenant contact lookup failed", "tenant_id", key, "error", err)
		}
		return ""
	}
	contact = strings.TrimSpace(contact)
	r.cache.Set(key, contact, cache.DefaultExpiration)
	return contact
}

// Invalidate drops the cached contact for tenantID.
func (r *ContactResolver) Invalidate(tenantID uuid.UUID) {
	if r == nil {
		return
	}
	r.cache.Delete(tenantID.String())
}
