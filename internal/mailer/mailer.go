// Package mailer renders and delivers transactional email.
package mailer

import (
	"context"
	"fmt"

	"welcomemat/internal/config"
)

// Sender delivers one message with a plain text and an HTML alternative.
type Sender interface {
	Send(ctx context.Context, to, subject, plain, html string) error
}

// Provider names accepted by MAIL_PROVIDER.
const (
	ProviderLog  = "log"
	ProviderSMTP = "smtp"
)

// New returns the Sender selected by cfg.MailProvider.
func New(cfg *config.Config) (Sender, error) {
	switch cfg.MailProvider {
	case "", ProviderLog:
		return NewLogSender(cfg.MailFrom), nil
	case ProviderSMTP:
		return NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}), nil
	default:
		return nil, fmt.Errorf("mailer: unknown provider %q", cfg.MailProvider)
	}
}
