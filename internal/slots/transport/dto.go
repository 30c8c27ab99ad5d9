package transport

import (
	"time"

	"github.com/google/uuid"
)

// BreakInterval is a local HH:MM range excluded from generation.
type BreakInterval struct {
	Start string `json:"start" validate:"required,hhmm"`
	End   string `json:"end" validate:"required,hhmm"`
}

// GenerateSlotsRequest is the request body for bulk slot generation.
// Weekdays use 0 for Sunday through 6 for Saturday. Times and the start
// date are tenant-local.
type GenerateSlotsRequest struct {
	DoctorID               uuid.UUID       `json:"doctorId" validate:"required"`
	Weekdays               []int           `json:"weekdays" validate:"required,min=1,max=7,unique,dive,min=0,max=6"`
	StartTime              string          `json:"startTime" validate:"required,hhmm"`
	EndTime                string          `json:"endTime" validate:"required,hhmm"`
	StepMinutes            *int            `json:"stepMinutes,omitempty" validate:"omitempty,min=0,max=1440"`
	ServiceTypeID          *uuid.UUID      `json:"serviceTypeId,omitempty"`
	ServiceDurationMinutes *int            `json:"serviceDurationMinutes,omitempty" validate:"omitempty,min=1,max=1440"`
	Breaks                 []BreakInterval `json:"breakIntervals,omitempty" validate:"max=10,dive"`
	WeeksCount             int             `json:"weeksCount" validate:"required,min=1,max=26"`
	StartDate              string          `json:"startDate" validate:"required,isodate"`
	RoomID                 *uuid.UUID      `json:"roomId,omitempty"`
	Equipment              *string         `json:"equipment,omitempty" validate:"omitempty,max=500"`
	Notes                  *string         `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// SkippedRange is a generated candidate that was not persisted.
type SkippedRange struct {
	Date   string `json:"date"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason"`
}

// Skip reasons.
const (
	SkipReasonConflict = "conflict"
	SkipReasonDSTGap   = "nonexistent_local_time"
)

// GenerationReport summarizes a bulk generation run.
type GenerationReport struct {
	Timezone         string         `json:"timezone"`
	Candidates       int            `json:"candidates"`
	Created          int            `json:"created"`
	ConflictsSkipped int            `json:"conflictsSkipped"`
	CreatedIDs       []uuid.UUID    `json:"createdIds"`
	Skipped          []SkippedRange `json:"skipped"`
}

// CreateSlotRequest creates one slot. Date and times are tenant-local; when
// EndTime is omitted it is derived from the service type duration.
type CreateSlotRequest struct {
	DoctorID      uuid.UUID  `json:"doctorId" validate:"required"`
	Date          string     `json:"date" validate:"required,isodate"`
	StartTime     string     `json:"startTime" validate:"required,hhmm"`
	EndTime       *string    `json:"endTime,omitempty" validate:"omitempty,hhmm"`
	ServiceTypeID *uuid.UUID `json:"serviceTypeId,omitempty"`
	RoomID        *uuid.UUID `json:"roomId,omitempty"`
	Equipment     *string    `json:"equipment,omitempty" validate:"omitempty,max=500"`
	Notes         *string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// UpdateSlotRequest edits a slot without active reservations.
type UpdateSlotRequest struct {
	Date          *string    `json:"date,omitempty" validate:"omitempty,isodate"`
	StartTime     *string    `json:"startTime,omitempty" validate:"omitempty,hhmm"`
	EndTime       *string    `json:"endTime,omitempty" validate:"omitempty,hhmm"`
	ServiceTypeID *uuid.UUID `json:"serviceTypeId,omitempty"`
	RoomID        *uuid.UUID `json:"roomId,omitempty"`
	Equipment     *string    `json:"equipment,omitempty" validate:"omitempty,max=500"`
	Notes         *string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
	IsAvailable   *bool      `json:"isAvailable,omitempty"`
}

// ListSlotsRequest is the query of a slot listing. From and To are
// tenant-local dates, both inclusive. Mine limits a doctor caller to their
// own schedule and overrides DoctorID.
type ListSlotsRequest struct {
	DoctorID      *uuid.UUID `form:"doctorId"`
	Mine          bool       `form:"mine"`
	From          string     `form:"from" validate:"omitempty,isodate"`
	To            string     `form:"to" validate:"omitempty,isodate"`
	OnlyAvailable bool       `form:"onlyAvailable"`
	Page          int        `form:"page" validate:"omitempty,min=1"`
	PageSize      int        `form:"pageSize" validate:"omitempty,min=1,max=500"`
}

// SlotResponse is the API view of a slot.
type SlotResponse struct {
	ID            uuid.UUID  `json:"id"`
	DoctorID      uuid.UUID  `json:"doctorId"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       time.Time  `json:"endTime"`
	LocalDate     string     `json:"localDate"`
	LocalStart    string     `json:"localStart"`
	LocalEnd      string     `json:"localEnd"`
	Timezone      string     `json:"timezone"`
	RoomID        *uuid.UUID `json:"roomId,omitempty"`
	ServiceTypeID *uuid.UUID `json:"serviceTypeId,omitempty"`
	Equipment     *string    `json:"equipment,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	IsAvailable   bool       `json:"isAvailable"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// SlotListResponse is a page of slots.
type SlotListResponse struct {
	Items    []SlotResponse `json:"items"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}
