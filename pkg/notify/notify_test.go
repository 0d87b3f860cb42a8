package notify

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/jordan-wright/email"
)

func TestMessageHidesRecipients(t *testing.T) {
	s := NewSMTP(SMTPConfig{Sender: "watcher@example.com"})
	mail := s.Message("空き状況更新", "2025-02-08 (土) | 09:00-11:00", []string{"a@example.com", "b@example.com"})

	raw, err := mail.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	msg := string(raw)
	if strings.Contains(msg, "a@example.com") || strings.Contains(msg, "b@example.com") {
		t.Fatalf("recipients leaked into the headers:\n%s", msg)
	}
	if !strings.Contains(msg, "To: "+DefaultToHeader) {
		t.Fatalf("missing placeholder To header:\n%s", msg)
	}
	if len(mail.Bcc) != 2 || len(mail.To) != 0 {
		t.Fatalf("recipients must go in Bcc, got To=%v Bcc=%v", mail.To, mail.Bcc)
	}
}

func TestSendUsesConfiguredServer(t *testing.T) {
	s := NewSMTP(SMTPConfig{Sender: "watcher@example.com", Password: "app-password"})
	var gotAddr string
	var gotAuth smtp.Auth
	var gotMail *email.Email
	s.send = func(e *email.Email, addr string, auth smtp.Auth) error {
		gotMail, gotAddr, gotAuth = e, addr, auth
		return nil
	}

	if err := s.Send(context.Background(), "subject", "body", []string{" a@example.com ", ""}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.gmail.com:587" || gotAuth == nil {
		t.Fatalf("unexpected server %q / auth %v", gotAddr, gotAuth)
	}
	if len(gotMail.Bcc) != 1 || gotMail.Bcc[0] != "a@example.com" {
		t.Fatalf("unexpected recipients %v", gotMail.Bcc)
	}
}

func TestSendWrapsFailures(t *testing.T) {
	s := NewSMTP(SMTPConfig{Sender: "watcher@example.com"})
	boom := errors.New("535 authentication failed")
	s.send = func(*email.Email, string, smtp.Auth) error { return boom }

	err := s.Send(context.Background(), "s", "b", []string{"a@example.com"})
	var de *DispatchError
	if !errors.As(err, &de) || !errors.Is(err, boom) || de.Recipients != 1 {
		t.Fatalf("expected a DispatchError wrapping the server error, got %v", err)
	}

	err = s.Send(context.Background(), "s", "b", nil)
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}

func TestSendHonoursCancellation(t *testing.T) {
	s := NewSMTP(SMTPConfig{Sender: "watcher@example.com"})
	block := make(chan struct{})
	defer close(block)
	s.send = func(*email.Email, string, smtp.Auth) error { <-block; return nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, "s", "b", []string{"a@example.com"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := (Writer{W: &buf}).Send(context.Background(), "subj", "line1\nline2", []string{"a@example.com"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := buf.String(); got != "To: a@example.com\nSubject: subj\n\nline1\nline2\n" {
		t.Fatalf("unexpected output %q", got)
	}
}
