package email

const (
	subjectReservationCreatedFmt   = "New reservation request for %s"
	subjectReservationConfirmedFmt = "Your appointment on %s is confirmed"
	subjectReservationCancelledFmt = "Appointment on %s cancelled"
	subjectReservationCompletedFmt = "Thank you for visiting %s"
	subjectReservationReminderFmt  = "Reminder: your appointment on %s"
)
