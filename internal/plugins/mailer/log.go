package mailer

import (
	"context"
	"log/slog"
	"strings"
)

// LogMailer writes outgoing mail to the log instead of sending it. Used in
// development and tests where no SMTP server is available.
type LogMailer struct{}

// NewLogMailer creates a logging mailer.
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

// SendMail logs the message and reports success.
func (m *LogMailer) SendMail(_ context.Context, to []string, subject, body string) error {
	slog.Info("outbound mail (smtp not configured)",
		slog.String("to", strings.Join(to, ", ")),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}
