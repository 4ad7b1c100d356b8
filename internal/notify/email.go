// Package notify provides email notification delivery.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"nabz/internal/config"
)

// EmailNotifier delivers incident notifications over SMTP to the owner of
// the affected server.
type EmailNotifier struct {
	config config.EmailConfig

	// send is swappable for tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates an email notifier from SMTP settings.
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		config: cfg,
		send:   smtp.SendMail,
	}
}

// Type returns the channel type identifier.
func (e *EmailNotifier) Type() string {
	return "email"
}

// Notify sends the event to the server owner's email address. Servers
// without an owner are skipped silently.
func (e *EmailNotifier) Notify(ctx context.Context, event Event) error {
	if event.OwnerEmail == nil || *event.OwnerEmail == "" {
		return nil
	}

	to := *event.OwnerEmail
	subject := fmt.Sprintf("Nabz: %s %s on %s", event.RuleName, event.Status, event.Hostname)
	body := FormatMessage(event)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	var auth smtp.Auth
	if e.config.Username != "" {
		auth = smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	}

	if err := e.send(addr, auth, e.config.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
