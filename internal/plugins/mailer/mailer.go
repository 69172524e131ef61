// Package mailer provides outbound email for VaultKeep: confirmation codes
// at registration and password-reset links. Settings come from the
// environment at startup. When no SMTP host is configured the app falls
// back to a logging mailer so the auth flows still work in development --
// the code or link just lands in the log instead of an inbox.
package mailer

import (
	"context"

	"github.com/vetrova/vaultkeep/internal/config"
)

// Mailer is the interface other plugins use to send email.
type Mailer interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
}

// NewFromConfig picks the mailer implementation for the given settings:
// a real SMTP sender when a host is configured, the log mailer otherwise.
func NewFromConfig(cfg config.SMTPConfig) Mailer {
	if cfg.Host == "" {
		return NewLogMailer()
	}
	return NewSMTPMailer(cfg)
}
