// Package events holds the booking domain events. The bus itself lives in
// platform/events.
package events

import (
	"time"

	"clinic_booking_backend/platform/events"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// IntentKind names the message a reservation change should produce.
type IntentKind string

const (
	IntentReservationCreated   IntentKind = "RESERVATION_CREATED"
	IntentReservationConfirmed IntentKind = "RESERVATION_CONFIRMED"
	IntentReservationCancelled IntentKind = "RESERVATION_CANCELLED"
	IntentReservationCompleted IntentKind = "RESERVATION_COMPLETED"
	IntentReservationReminder  IntentKind = "RESERVATION_REMINDER"
)

// =============================================================================
// Reservation Domain Events
// =============================================================================

// ReservationNotificationRequested is published after a reservation change
// has committed. Handlers must not affect the change itself.
type ReservationNotificationRequested struct {
	BaseEvent
	Kind          IntentKind `json:"kind"`
	ReservationID uuid.UUID  `json:"reservationId"`
	TenantID      uuid.UUID  `json:"tenantId"`
	NotifyBoth    bool       `json:"notifyBoth"`
}

func (e ReservationNotificationRequested) EventName() string {
	return "reservations.notification.requested"
}

// ReservationConfirmed is published when a reservation enters CONFIRMED.
type ReservationConfirmed struct {
	BaseEvent
	ReservationID uuid.UUID `json:"reservationId"`
	TenantID      uuid.UUID `json:"tenantId"`
	SlotStart     time.Time `json:"slotStart"`
}

func (e ReservationConfirmed) EventName() string { return "reservations.reservation.confirmed" }

// =============================================================================
// Tenant Domain Events
// =============================================================================

// TenantSettingsChanged is published when an admin changes the tenant's
// timezone or default contact.
type TenantSettingsChanged struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	Timezone string    `json:"timezone"`
}

func (e TenantSettingsChanged) EventName() string { return "tenants.settings.changed" }
