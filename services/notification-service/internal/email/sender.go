package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Message is a rendered email. HTML is optional.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
	ProviderID() string
}

// SendGridSender delivers through the SendGrid v3 mail API.
type SendGridSender struct {
	fromEmail string
	fromName  string
	send      func(ctx context.Context, m *mail.SGMailV3) (int, string, error)
}

func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	client := sendgrid.NewSendClient(apiKey)
	return &SendGridSender{
		fromEmail: fromEmail,
		fromName:  fromName,
		send: func(ctx context.Context, m *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, m)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
	}
}

func (s *SendGridSender) ProviderID() string {
	return "sendgrid"
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if s.fromEmail == "" {
		return errors.New("sendgrid: from address not configured")
	}
	m := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.fromEmail),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		msg.Text,
		msg.HTML,
	)
	status, body, err := s.send(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("sendgrid returned %d: %s", status, strings.TrimSpace(body))
	}
	return nil
}

// SMTPSender sends plain text via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@inkbook.local"
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

func (s *SMTPSender) ProviderID() string {
	return "smtp"
}

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	return smtp.SendMail(s.addr, nil, s.from, []string{msg.To}, []byte(buildMessage(s.from, msg)))
}

func buildMessage(from string, msg Message) string {
	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%q <%s>", msg.ToName, msg.To)
	}
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		strings.NewReplacer("\r", "", "\n", " ").Replace(msg.Subject),
		msg.Text,
	)
}

// LogSender writes the message to the log instead of delivering it.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) ProviderID() string {
	return "log"
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email (log only)", "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}
