package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// Template keys, one per reservation notification.
const (
	TemplateReservationCreated   = "reservation_created"
	TemplateReservationConfirmed = "reservation_confirmed"
	TemplateReservationCancelled = "reservation_cancelled"
	TemplateReservationCompleted = "reservation_completed"
	TemplateReservationReminder  = "reservation_reminder"
)

var subjectFormats = map[string]string{
	TemplateReservationCreated:   subjectReservationCreatedFmt,
	TemplateReservationConfirmed: subjectReservationConfirmedFmt,
	TemplateReservationCancelled: subjectReservationCancelledFmt,
	TemplateReservationCompleted: subjectReservationCompletedFmt,
	TemplateReservationReminder:  subjectReservationReminderFmt,
}

// ReservationEmailData is the view model of every reservation email.
// Date and times are already in the tenant's zone.
type ReservationEmailData struct {
	TenantName    string
	RecipientName string
	ClientName    string
	DoctorName    string
	SubjectName   string
	SubjectType   string
	Description   string
	ServiceName   string
	RoomName      string
	Date          string
	StartTime     string
	EndTime       string
	Timezone      string
	ForStaff      bool
}

type baseEmailData struct {
	Title   string
	Heading string
	ReservationEmailData
}

// Rendered is a subject with its two bodies.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// RenderReservation renders the named reservation template.
func RenderReservation(key string, data ReservationEmailData) (Rendered, error) {
	subjectFmt, ok := subjectFormats[key]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown email template %q", key)
	}

	subjectArg := data.Date + " " + data.StartTime
	if key == TemplateReservationCompleted {
		subjectArg = data.TenantName
	}
	subject := fmt.Sprintf(subjectFmt, subjectArg)

	html, err := renderEmailTemplate(key+".html", baseEmailData{
		Title:                subject,
		Heading:              subject,
		ReservationEmailData: data,
	})
	if err != nil {
		return Rendered{}, err
	}
	text, err := renderTextTemplate(key, data)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject, HTML: html, Text: text}, nil
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderTextTemplate(key string, data ReservationEmailData) (string, error) {
	tmpl, err := texttemplate.New("reservation.txt").ParseFS(templateFS, "templates/reservation.txt")
	if err != nil {
		return "", fmt.Errorf("parse text template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, key, data); err != nil {
		return "", fmt.Errorf("execute text template %s: %w", key, err)
	}
	return buf.String(), nil
}
