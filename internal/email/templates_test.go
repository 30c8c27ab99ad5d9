package email

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func sampleData() ReservationEmailData {
	return ReservationEmailData{
		TenantName:    "Vinohrady Vet",
		RecipientName: "Jana",
		ClientName:    "Jana Novak",
		DoctorName:    "Dr. Svoboda",
		SubjectName:   "Rex",
		SubjectType:   "dog",
		Description:   "limping <left leg>",
		Date:          "2026-03-10",
		StartTime:     "08:00",
		EndTime:       "08:30",
		Timezone:      "Europe/Prague",
	}
}

func TestRenderReservationAllTemplates(t *testing.T) {
	keys := []string{
		TemplateReservationCreated,
		TemplateReservationConfirmed,
		TemplateReservationCancelled,
		TemplateReservationCompleted,
		TemplateReservationReminder,
	}
	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			out, err := RenderReservation(key, sampleData())
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if out.Subject == "" {
				t.Fatalf("empty subject")
			}
			for _, want := range []string{"2026-03-10", "08:00", "08:30", "Rex", "Europe/Prague"} {
				if !strings.Contains(out.Text, want) {
					t.Fatalf("text body missing %q:\n%s", want, out.Text)
				}
				if !strings.Contains(out.HTML, want) {
					t.Fatalf("html body missing %q", want)
				}
			}
		})
	}
}

func TestRenderReservationStaffDetails(t *testing.T) {
	data := sampleData()
	data.ForStaff = true

	out, err := RenderReservation(TemplateReservationCreated, data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out.HTML, "limping &lt;left leg&gt;") {
		t.Fatalf("expected escaped description in staff email")
	}
	if !strings.Contains(out.Text, "Client: Jana Novak") {
		t.Fatalf("expected client line in staff text body:\n%s", out.Text)
	}
	if out.Subject != "New reservation request for 2026-03-10 08:00" {
		t.Fatalf("unexpected subject %q", out.Subject)
	}
}

func TestRenderReservationHidesNotesFromClient(t *testing.T) {
	out, err := RenderReservation(TemplateReservationConfirmed, sampleData())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out.HTML, "limping") {
		t.Fatalf("client email must not include staff notes")
	}
}

func TestRenderReservationUnknownKey(t *testing.T) {
	if _, err := RenderReservation("lead_welcome", sampleData()); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestBuildMessageRequiresRecipients(t *testing.T) {
	s := NewSMTPSender("localhost", 25, "", "", "noreply@example.com", "Clinic")
	if _, err := s.buildMessage(Message{Subject: "x", Text: "y"}); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	if _, err := s.buildMessage(Message{To: []string{"a@example.com"}, Subject: "x", Text: "y", HTML: "<p>y</p>"}); err != nil {
		t.Fatalf("build: %v", err)
	}
}

func TestNoopSender(t *testing.T) {
	var s Sender = NoopSender{}
	if err := s.Send(context.Background(), Message{}); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	if err := s.Send(context.Background(), Message{To: []string{"a@example.com"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
