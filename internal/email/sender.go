// Package email delivers operator alert emails over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"salesdesk_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

const (
	subjectEscalationAlertFmt = "Conversation escalated: %s"
	subjectAutoReleaseFmt     = "Conversation auto-released: %s"
)

// Sender delivers inbox alert emails.
type Sender interface {
	SendEscalationAlert(ctx context.Context, toEmail, phone, reason string) error
	SendAutoReleaseNotice(ctx context.Context, toEmail, phone string) error
}

// NewSender returns an SMTP-backed sender, or a no-op sender when email
// delivery is disabled.
func NewSender(cfg config.SMTPConfig) (Sender, error) {
	if !cfg.IsEmailEnabled() {
		return noopSender{}, nil
	}
	if cfg.GetSMTPHost() == "" || cfg.GetEmailFromAddress() == "" {
		return nil, fmt.Errorf("smtp host and from address are required when email is enabled")
	}

	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}, nil
}

// SMTPSender delivers mail via go-mail over a direct SMTP connection.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func (s *SMTPSender) SendEscalationAlert(ctx context.Context, toEmail, phone, reason string) error {
	subject := fmt.Sprintf(subjectEscalationAlertFmt, phone)
	body := fmt.Sprintf(
		"The conversation with %s was handed off to a human operator.\n\nReason: %s\n\nOpen the inbox to take over.",
		phone, reason,
	)
	return s.send(ctx, toEmail, subject, body)
}

func (s *SMTPSender) SendAutoReleaseNotice(ctx context.Context, toEmail, phone string) error {
	subject := fmt.Sprintf(subjectAutoReleaseFmt, phone)
	body := fmt.Sprintf(
		"The escalation window for %s elapsed without activity; the agent resumed control automatically.",
		phone,
	)
	return s.send(ctx, toEmail, subject, body)
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

type noopSender struct{}

func (noopSender) SendEscalationAlert(context.Context, string, string, string) error { return nil }
func (noopSender) SendAutoReleaseNotice(context.Context, string, string) error       { return nil }
