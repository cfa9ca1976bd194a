package server

import (
	"context"
	"log/slog"
	"time"

	"welcomemat/internal/middleware"
)

// runInvitationSweeper expires stale invitations every interval until ctx is cancelled.
func (s *Server) runInvitationSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepInvitations(ctx)
		}
	}
}

func (s *Server) sweepInvitations(ctx context.Context) {
	n, err := s.invitationService.ExpireStale(ctx)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "invitation sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		middleware.Logger.InfoContext(ctx, "expired stale invitations", slog.Int64("count", n))
	}
}
