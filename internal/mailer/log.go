package mailer

import (
	"context"
	"log/slog"

	"welcomemat/internal/middleware"
	"welcomemat/internal/observability"
)

// LogSender writes messages to the structured log instead of delivering them. It is the
// development default.
type LogSender struct {
	from   string
	logger *slog.Logger
}

func NewLogSender(from string) *LogSender {
	return &LogSender{from: from, logger: middleware.Logger}
}

func (s *LogSender) Send(ctx context.Context, to, subject, plain, html string) error {
	defer observability.TrackMail(ProviderLog)()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "email logged",
		slog.String("from", s.from),
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", plain),
		slog.Int("html_bytes", len(html)),
	)
	return nil
}
