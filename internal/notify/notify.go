package notify

import (
	"context"
	"log/slog"
)

// Message is one notification: a subject/body pair with an optional file
// attachment.
type Message struct {
	Subject    string
	Body       string
	Attachment string // path of a file to attach; empty for none
}

// Notifier delivers operational notifications. Every call site treats
// delivery as fire-and-forget: a failure is logged and swallowed, never
// propagated to the operation that raised the notification.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Nop is the Notifier used when no sink is configured. An unconfigured
// sink is a normal operating mode, not an error.
type Nop struct{}

func (Nop) Send(_ context.Context, msg Message) error {
	slog.Debug("notification sink unconfigured, dropping message", "subject", msg.Subject)
	return nil
}

// New returns an SMTP-backed Notifier, or a Nop sink when no host is
// configured.
func New(host string, port int, username, password, from, to string) (Notifier, error) {
	if host == "" || from == "" || to == "" {
		slog.Info("notifications disabled, no SMTP sink configured")
		return Nop{}, nil
	}
	return NewMailer(host, port, username, password, from, to)
}
