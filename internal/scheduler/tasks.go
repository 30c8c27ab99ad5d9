package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskNotificationDispatch = "notifications.dispatch"

const TaskReservationReminder = "reservations.reminder"

type NotificationDispatchPayload struct {
	Kind          string `json:"kind"`
	ReservationID string `json:"reservationId"`
	TenantID      string `json:"tenantId"`
	NotifyBoth    bool   `json:"notifyBoth"`
}

type ReservationReminderPayload struct {
	ReservationID string `json:"reservationId"`
	TenantID      string `json:"tenantId"`
}

func NewNotificationDispatchTask(payload NotificationDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDispatch, data), nil
}

func ParseNotificationDispatchPayload(task *asynq.Task) (NotificationDispatchPayload, error) {
	var payload NotificationDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationDispatchPayload{}, err
	}
	return payload, nil
}

func NewReservationReminderTask(payload ReservationReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReservationReminder, data), nil
}

func ParseReservationReminderPayload(task *asynq.Task) (ReservationReminderPayload, error) {
	var payload ReservationReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReservationReminderPayload{}, err
	}
	return payload, nil
}
