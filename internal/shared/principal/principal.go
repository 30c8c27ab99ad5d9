// Package principal carries the authenticated caller into domain services.
// Role and tenant are trusted inputs taken from the access token.
package principal

import (
	"clinic_booking_backend/platform/httpkit"

	"github.com/google/uuid"
)

// Principal is the actor behind a domain call.
type Principal struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     string
}

// IsClient reports whether the caller acts as a client.
func (p Principal) IsClient() bool { return p.Role == httpkit.RoleClient }

// IsDoctor reports whether the caller acts as a doctor.
func (p Principal) IsDoctor() bool { return p.Role == httpkit.RoleDoctor }

// IsAdmin reports whether the caller acts as a tenant admin.
func (p Principal) IsAdmin() bool { return p.Role == httpkit.RoleAdmin }

// IsStaff reports whether the caller is a doctor or an admin.
func (p Principal) IsStaff() bool { return p.IsDoctor() || p.IsAdmin() }

// FromIdentity builds a Principal from a request identity and its tenant.
func FromIdentity(id httpkit.Identity, tenantID uuid.UUID) Principal {
	return Principal{
		UserID:   id.UserID(),
		TenantID: tenantID,
		Role:     id.PrimaryRole(),
	}
}
