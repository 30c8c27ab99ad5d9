package email

import (
	"context"
	"errors"
)

// Message is one outbound notification email.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers messages. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNoRecipients is returned when a message has no addresses.
var ErrNoRecipients = errors.New("email has no recipients")

// NoopSender drops every message. It is used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	return nil
}
