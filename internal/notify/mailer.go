package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// Mailer sends notifications over SMTP.
type Mailer struct {
	client *mail.Client
	from   string
	to     string
}

// NewMailer creates an SMTP-backed Mailer. Authentication is enabled only
// when a username is configured; either way the client carries a dial
// timeout so a dead sink fails fast instead of hanging a worker.
func NewMailer(host string, port int, username, password, from, to string) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTimeout(10 * time.Second),
	}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return &Mailer{client: client, from: from, to: to}, nil
}

func (m *Mailer) Send(ctx context.Context, msg Message) error {
	mm := mail.NewMsg()
	if err := mm.From(m.from); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := mm.To(m.to); err != nil {
		return fmt.Errorf("set to address: %w", err)
	}
	mm.Subject(msg.Subject)
	mm.SetBodyString(mail.TypeTextPlain, msg.Body)
	if msg.Attachment != "" {
		mm.AttachFile(msg.Attachment)
	}

	if err := m.client.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
