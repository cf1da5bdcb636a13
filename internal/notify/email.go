package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

const mailSendTimeout = 30 * time.Second

// Mailer sends one plain-text message and returns the provider message ID.
type Mailer interface {
	SendMail(ctx context.Context, subject, text string, to []string) (string, error)
}

// Email delivers alerts through a Mailer. An alert with no recipients is
// not an error; nothing is sent.
type Email struct {
	mailer Mailer
}

// NewEmail returns an EMAIL channel backed by m.
func NewEmail(m Mailer) *Email {
	return &Email{mailer: m}
}

func (e *Email) Kind() types.Channel { return types.ChannelEmail }

func (e *Email) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		slog.Debug("notify: email has no recipients, skipping", "alert", msg.Alert.ID)
		return nil
	}
	id, err := e.mailer.SendMail(ctx, msg.Subject, msg.Text, msg.Recipients)
	if err != nil {
		return fmt.Errorf("notify: email: %w", err)
	}
	slog.Debug("notify: email sent", "alert", msg.Alert.ID, "message_id", id, "to", len(msg.Recipients))
	return nil
}

// MailgunMailer sends through the Mailgun API.
type MailgunMailer struct {
	from   string
	client *mailgun.MailgunImpl
}

// NewMailgunMailer returns nil when domain or apiKey is empty so callers can
// fall back to LogMailer.
func NewMailgunMailer(domain, apiKey, from string) *MailgunMailer {
	if domain == "" || apiKey == "" {
		return nil
	}
	if from == "" {
		from = "agentwatch@" + domain
	}
	return &MailgunMailer{
		from:   from,
		client: mailgun.NewMailgun(domain, apiKey),
	}
}

func (m *MailgunMailer) SendMail(ctx context.Context, subject, text string, to []string) (string, error) {
	message := m.client.NewMessage(m.from, subject, text, to...)

	sendCtx, cancel := context.WithTimeout(ctx, mailSendTimeout)
	defer cancel()

	_, id, err := m.client.Send(sendCtx, message)
	if err != nil {
		return "", fmt.Errorf("mailgun send: %w", err)
	}
	return id, nil
}

// LogMailer records messages in the log instead of sending them. It is the
// EMAIL backend when no Mailgun credentials are configured.
type LogMailer struct{}

func (LogMailer) SendMail(_ context.Context, subject, text string, to []string) (string, error) {
	slog.Info("notify: email (no mail provider configured)",
		"subject", subject,
		"to", to,
		"text", text,
	)
	return "", nil
}
