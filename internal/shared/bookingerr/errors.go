// Package bookingerr defines the rejections of the scheduling and booking
// core. Each carries a stable code next to its HTTP kind.
package bookingerr

import (
	"fmt"

	"clinic_booking_backend/platform/apperr"
)

// Stable machine-readable codes.
const (
	CodeInvalidPattern    = "invalid_pattern"
	CodeSlotConflict      = "slot_conflict"
	CodeSlotNotFound      = "slot_not_found"
	CodeSlotAlreadyBooked = "slot_already_booked"
	CodeTooSoonToBook     = "too_soon_to_book"
	CodeInvalidStatus     = "invalid_status"
	CodeForbidden         = "forbidden"
	CodeSlotLocked        = "slot_locked"
)

// InvalidPattern rejects malformed generation parameters.
func InvalidPattern(format string, args ...any) *apperr.Error {
	return apperr.Validation(fmt.Sprintf(format, args...)).WithCode(CodeInvalidPattern)
}

// SlotConflict reports a slot whose range the doctor already owns.
func SlotConflict(rangeDesc string) *apperr.Error {
	return apperr.Conflict("a slot for " + rangeDesc + " already exists").
		WithCode(CodeSlotConflict).
		WithDetails(map[string]string{"range": rangeDesc})
}

// SlotNotFound reports a slot that is missing, in another tenant, or unavailable.
func SlotNotFound() *apperr.Error {
	return apperr.NotFound("slot not found or not available").WithCode(CodeSlotNotFound)
}

// SlotAlreadyBooked reports a slot held by another active reservation.
func SlotAlreadyBooked() *apperr.Error {
	return apperr.Conflict("slot already booked").WithCode(CodeSlotAlreadyBooked)
}

// TooSoonToBook rejects client bookings on or before the tenant-local today.
func TooSoonToBook(slotDate string) *apperr.Error {
	return apperr.Validation("slots on "+slotDate+" can no longer be booked online; choose a later date").
		WithCode(CodeTooSoonToBook).
		WithDetails(map[string]string{"date": slotDate})
}

// InvalidStatus rejects an unknown reservation status.
func InvalidStatus(status string) *apperr.Error {
	return apperr.Validation(fmt.Sprintf("invalid reservation status %q", status)).WithCode(CodeInvalidStatus)
}

// Forbidden rejects an actor acting outside their rights.
func Forbidden(message string) *apperr.Error {
	return apperr.Forbidden(message).WithCode(CodeForbidden)
}

// SlotLocked rejects edits of a slot that holds an active reservation.
func SlotLocked() *apperr.Error {
	return apperr.Conflict("slot has active reservations and cannot be changed").WithCode(CodeSlotLocked)
}
