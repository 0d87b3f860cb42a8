// Package notify delivers change reports.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

// Dispatcher sends one message to a list of recipients.
type Dispatcher interface {
	Send(ctx context.Context, subject, body string, recipients []string) error
}

// DispatchError wraps any failure to hand a message over.
type DispatchError struct {
	Recipients int
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("notification to %d recipient(s) failed: %v", e.Recipients, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ErrNoRecipients is returned when there is nobody to notify.
var ErrNoRecipients = errors.New("no recipients configured")

const (
	DefaultHost = "smtp.gmail.com"
	DefaultPort = 587
	// DefaultToHeader is shown instead of the recipients, who are all sent as Bcc.
	DefaultToHeader = "<noreply@example.com>"
)

// SMTPConfig holds the deployment-supplied account.
type SMTPConfig struct {
	Host     string
	Port     int
	Sender   string
	Password string
	ToHeader string
}

// SMTP sends plain-text mail through an authenticated submission server. net/smtp
// upgrades the connection with STARTTLS when the server offers it.
type SMTP struct {
	cfg  SMTPConfig
	send func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ToHeader == "" {
		cfg.ToHeader = DefaultToHeader
	}
	return &SMTP{
		cfg: cfg,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// Message builds the mail Send would deliver.
func (s *SMTP) Message(subject, body string, recipients []string) *email.Email {
	mail := email.NewEmail()
	mail.From = s.cfg.Sender
	mail.Bcc = recipients
	mail.Headers.Set("To", s.cfg.ToHeader)
	mail.Subject = subject
	mail.Text = []byte(body)
	return mail
}

func (s *SMTP) Send(ctx context.Context, subject, body string, recipients []string) error {
	recipients = clean(recipients)
	if len(recipients) == 0 {
		return &DispatchError{Err: ErrNoRecipients}
	}
	if s.cfg.Sender == "" {
		return &DispatchError{Recipients: len(recipients), Err: errors.New("no sender configured")}
	}

	mail := s.Message(subject, body, recipients)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Sender, s.cfg.Password, s.cfg.Host)
	}

	done := make(chan error, 1)
	go func() { done <- s.send(mail, addr, auth) }()
	select {
	case <-ctx.Done():
		return &DispatchError{Recipients: len(recipients), Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return &DispatchError{Recipients: len(recipients), Err: err}
		}
		return nil
	}
}

// Writer prints messages instead of sending them. Used for dry runs.
type Writer struct {
	W io.Writer
}

func (w Writer) Send(ctx context.Context, subject, body string, recipients []string) error {
	_, err := fmt.Fprintf(w.W, "To: %s\nSubject: %s\n\n%s\n", strings.Join(clean(recipients), ", "), subject, body)
	if err != nil {
		return &DispatchError{Recipients: len(recipients), Err: err}
	}
	return nil
}

func clean(recipients []string) []string {
	var out []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
