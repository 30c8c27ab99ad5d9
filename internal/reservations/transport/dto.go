package transport

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusCancelled ReservationStatus = "CANCELLED"
	StatusCompleted ReservationStatus = "COMPLETED"
)

// BookReservationRequest is the request body for booking a slot.
type BookReservationRequest struct {
	SlotID      uuid.UUID `json:"slotId" validate:"required"`
	SubjectName string    `json:"subjectName" validate:"required,min=1,max=200"`
	SubjectType string    `json:"subjectType" validate:"max=100"`
	Description string    `json:"description" validate:"max=2000"`
	Phone       *string   `json:"phone,omitempty" validate:"omitempty,max=40"`
}

// UpdateStatusRequest is the request body for a status transition. Status
// is checked by the lifecycle so unknown values get a dedicated error.
type UpdateStatusRequest struct {
	Status     string `json:"status" validate:"required"`
	NotifyBoth bool   `json:"notifyBoth"`
}

// ListReservationsRequest is the query of a reservation listing. From and To
// are tenant-local dates, both inclusive.
type ListReservationsRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=PENDING CONFIRMED CANCELLED COMPLETED"`
	From     string `form:"from" validate:"omitempty,isodate"`
	To       string `form:"to" validate:"omitempty,isodate"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=200"`
}

// ReservationResponse is the API view of a reservation.
type ReservationResponse struct {
	ID          uuid.UUID         `json:"id"`
	SlotID      uuid.UUID         `json:"slotId"`
	DoctorID    uuid.UUID         `json:"doctorId"`
	UserID      uuid.UUID         `json:"userId"`
	SubjectName string            `json:"subjectName"`
	SubjectType string            `json:"subjectType"`
	Description string            `json:"description"`
	Phone       *string           `json:"phone,omitempty"`
	Status      ReservationStatus `json:"status"`
	SlotStart   time.Time         `json:"slotStart"`
	SlotEnd     time.Time         `json:"slotEnd"`
	LocalDate   string            `json:"localDate"`
	LocalStart  string            `json:"localStart"`
	LocalEnd    string            `json:"localEnd"`
	Timezone    string            `json:"timezone"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ReservationListResponse is a page of reservations.
type ReservationListResponse struct {
	Items    []ReservationResponse `json:"items"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
}
