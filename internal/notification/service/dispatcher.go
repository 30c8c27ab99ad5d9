// Package service turns reservation notification intents into emails.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic_booking_backend/internal/email"
	"clinic_booking_backend/internal/events"
	"clinic_booking_backend/internal/notification/repository"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"
	"clinic_booking_backend/platform/timezone"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

const statusConfirmed = "CONFIRMED"

var errNoRecipient = errors.New("no recipient address")

// Intent asks for the notification that follows one reservation change.
type Intent struct {
	Kind          events.IntentKind `json:"kind"`
	ReservationID uuid.UUID         `json:"reservationId"`
	TenantID      uuid.UUID         `json:"tenantId"`
	NotifyBoth    bool              `json:"notifyBoth"`
}

// IntentFromEvent copies a bus event into an Intent.
func IntentFromEvent(e events.ReservationNotificationRequested) Intent {
	return Intent{
		Kind:          e.Kind,
		ReservationID: e.ReservationID,
		TenantID:      e.TenantID,
		NotifyBoth:    e.NotifyBoth,
	}
}

type ContextReader interface {
	LoadReservationContext(ctx context.Context, reservationID, tenantID uuid.UUID) (repository.ReservationContext, error)
}

type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d repository.Delivery) (uuid.UUID, error)
}

type ZoneResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID) string
}

type audience int

const (
	audienceClient audience = iota
	audienceDoctor
)

var templateByKind = map[events.IntentKind]string{
	events.IntentReservationCreated:   email.TemplateReservationCreated,
	events.IntentReservationConfirmed: email.TemplateReservationConfirmed,
	events.IntentReservationCancelled: email.TemplateReservationCancelled,
	events.IntentReservationCompleted: email.TemplateReservationCompleted,
	events.IntentReservationReminder:  email.TemplateReservationReminder,
}

// audiencesFor maps an intent to the people who hear about it.
func audiencesFor(intent Intent) []audience {
	switch intent.Kind {
	case events.IntentReservationCreated:
		return []audience{audienceDoctor}
	case events.IntentReservationConfirmed, events.IntentReservationCompleted, events.IntentReservationReminder:
		return []audience{audienceClient}
	case events.IntentReservationCancelled:
		if intent.NotifyBoth {
			return []audience{audienceClient, audienceDoctor}
		}
		return []audience{audienceClient}
	default:
		return nil
	}
}

// Dispatcher sends reservation emails and audits every attempt.
type Dispatcher struct {
	reader     ContextReader
	deliveries DeliveryRecorder
	contacts   *ContactResolver
	zones      ZoneResolver
	sender     email.Sender
	metrics    *metrics.Metrics
	log        *logger.Logger
	now        func() time.Time
}

func NewDispatcher(reader ContextReader, deliveries DeliveryRecorder, contacts *ContactResolver, zones ZoneResolver, sender email.Sender, m *metrics.Metrics, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		reader:     reader,
		deliveries: deliveries,
		contacts:   contacts,
		zones:      zones,
		sender:     sender,
		metrics:    m,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch sends the notification for intent. It reports whether every
// recipient was reached and never panics. Every attempt leaves at least one
// audit row; failures before a recipient is known are recorded with an empty
// recipient.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent) (ok bool) {
	kind := string(intent.Kind)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			d.record(ctx, intent, "", err)
			d.fail(kind, intent, err)
			ok = false
		}
	}()

	audiences := audiencesFor(intent)
	if len(audiences) == 0 {
		err := fmt.Errorf("unknown intent kind %q", kind)
		d.record(ctx, intent, "", err)
		d.fail(kind, intent, err)
		return false
	}

	rc, err := d.reader.LoadReservationContext(ctx, intent.ReservationID, intent.TenantID)
	if err != nil {
		d.record(ctx, intent, "", err)
		d.fail(kind, intent, err)
		return false
	}
	if intent.Kind == events.IntentReservationReminder && rc.Status != statusConfirmed {
		d.log.Debug("reminder skipped", "reservation_id", intent.ReservationID.String(), "status", rc.Status)
		return true
	}

	zone := d.zones.Resolve(ctx, intent.TenantID)
	sent := 0
	var firstErr error
	for _, a := range audiences {
		recipient, name := d.recipientFor(ctx, rc, a)
		err := d.safeSend(ctx, intent, rc, zone, a, recipient, name)
		d.record(ctx, intent, recipient, err)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}

	success := firstErr == nil
	d.metrics.Notification(kind, success)
	d.log.NotificationAttempt(kind, intent.ReservationID.String(), sent, success, firstErr)
	return success
}

// safeSend turns a panicking gateway into an error for that recipient only.
func (d *Dispatcher) safeSend(ctx context.Context, intent Intent, rc repository.ReservationContext, zone string, a audience, recipient, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.sendOne(ctx, intent, rc, zone, a, recipient, name)
}

func (d *Dispatcher) sendOne(ctx context.Context, intent Intent, rc repository.ReservationContext, zone string, a audience, recipient, name string) error {
	if recipient == "" {
		return errNoRecipient
	}
	data := emailData(rc, zone, a, name)
	rendered, err := email.RenderReservation(templateByKind[intent.Kind], data)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, email.Message{
		To:      []string{recipient},
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
}

func (d *Dispatcher) recipientFor(ctx context.Context, rc repository.ReservationContext, a audience) (string, string) {
	if a == audienceDoctor {
		return d.contacts.Resolve(ctx, rc.TenantID, rc.DoctorEmail), rc.DoctorName
	}
	return d.contacts.Resolve(ctx, rc.TenantID, rc.ClientEmail), rc.ClientName
}

func (d *Dispatcher) record(ctx context.Context, intent Intent, recipient string, sendErr error) {
	if d.deliveries == nil {
		return
	}
	delivery := repository.Delivery{
		TenantID:      intent.TenantID,
		ReservationID: intent.ReservationID,
		Kind:          string(intent.Kind),
		Recipient:     recipient,
		Success:       sendErr == nil,
		AttemptedAt:   d.now(),
	}
	if sendErr != nil {
		msg := sendErr.Error()
		delivery.LastError = &msg
	}
	if _, err := d.deliveries.RecordDelivery(ctx, delivery); err != nil {
		d.log.Warn("failed to record notification delivery", "reservation_id", intent.ReservationID.String(), "error", err)
	}
}

func (d *Dispatcher) fail(kind string, intent Intent, err error) {
	d.metrics.Notification(kind, false)
	d.log.NotificationAttempt(kind, intent.ReservationID.String(), 0, false, err)
}

func emailData(rc repository.ReservationContext, zone string, a audience, name string) email.ReservationEmailData {
	start := timezone.UTCToLocal(rc.SlotStart, zone)
	end := timezone.UTCToLocal(rc.SlotEnd, zone)
	return email.ReservationEmailData{
		TenantName:    rc.TenantName,
		RecipientName: name,
		ClientName:    rc.ClientName,
		DoctorName:    rc.DoctorName,
		SubjectName:   rc.SubjectName,
		SubjectType:   rc.SubjectType,
		Description:   rc.Description,
		ServiceName:   deref(rc.ServiceName),
		RoomName:      deref(rc.RoomName),
		Date:          start.Date.String(),
		StartTime:     hhmm(start.Time),
		EndTime:       hhmm(end.Time),
		Timezone:      zone,
		ForStaff:      a == audienceDoctor,
	}
}

func hhmm(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
