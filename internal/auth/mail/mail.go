// Package mail sends the handful of transactional emails the service needs:
// password reset links and first-login setup links.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Sender delivers a plain-text email. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends through a single relay using AUTH PLAIN. Auth is skipped
// when no username is configured, which covers local dev relays.
type SMTPSender struct {
	addr     string // host:port
	from     string
	username string
	password string
}

func NewSMTPSender(addr, from, username, password string) *SMTPSender {
	return &SMTPSender{addr: addr, from: from, username: username, password: password}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	var auth smtp.Auth
	if s.username != "" {
		host := s.addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.username, s.password, host)
	}

	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(s.addr, auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return nil
}

// NopSender drops mail. Used when no relay is configured and in tests.
type NopSender struct{}

func (NopSender) Send(ctx context.Context, to, subject, body string) error { return nil }
