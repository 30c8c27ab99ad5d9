package service

import (
	"strings"

	"clinic_booking_backend/internal/events"
	"clinic_booking_backend/internal/reservations/repository"
	"clinic_booking_backend/internal/reservations/transport"
	"clinic_booking_backend/internal/shared/bookingerr"
	"clinic_booking_backend/internal/shared/principal"
)

// ParseStatus accepts the four lifecycle states, case-insensitively.
func ParseStatus(value string) (transport.ReservationStatus, error) {
	switch status := transport.ReservationStatus(strings.ToUpper(strings.TrimSpace(value))); status {
	case transport.StatusPending, transport.StatusConfirmed, transport.StatusCancelled, transport.StatusCompleted:
		return status, nil
	}
	return "", bookingerr.InvalidStatus(value)
}

// IsActive reports whether status holds the slot.
func IsActive(status transport.ReservationStatus) bool {
	return status == transport.StatusPending || status == transport.StatusConfirmed
}

// AuthorizeTransition decides whether actor may move the reservation to
// next. The current status is not consulted: same-status and out-of-terminal
// moves are allowed.
func AuthorizeTransition(actor principal.Principal, res repository.Details, next transport.ReservationStatus) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.IsDoctor():
		if res.DoctorUserID == nil || *res.DoctorUserID != actor.UserID {
			return bookingerr.Forbidden("only the doctor of this slot can change the reservation")
		}
		return nil
	case actor.IsClient():
		if res.UserID != actor.UserID {
			return bookingerr.Forbidden("you can only change your own reservations")
		}
		if next != transport.StatusCancelled {
			return bookingerr.Forbidden("clients can only cancel reservations")
		}
		return nil
	}
	return bookingerr.Forbidden("unknown role")
}

// AuthorizeView decides whether actor may read the reservation.
func AuthorizeView(actor principal.Principal, res repository.Details) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.IsDoctor() && res.DoctorUserID != nil && *res.DoctorUserID == actor.UserID:
		return nil
	case actor.IsClient() && res.UserID == actor.UserID:
		return nil
	}
	return bookingerr.Forbidden("you cannot access this reservation")
}

// IntentFor maps a new status to its notification intent. Cancelling
// notifies both sides when a client cancels or staff ask for it.
func IntentFor(next transport.ReservationStatus, actor principal.Principal, staffNotifyBoth bool) (events.IntentKind, bool) {
	switch next {
	case transport.StatusConfirmed:
		return events.IntentReservationConfirmed, false
	case transport.StatusCancelled:
		return events.IntentReservationCancelled, actor.IsClient() || staffNotifyBoth
	case transport.StatusCompleted:
		return events.IntentReservationCompleted, false
	default:
		return events.IntentReservationCreated, false
	}
}
