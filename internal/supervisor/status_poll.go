package supervisor

import (
	"context"
	"time"
)

const statusPollInterval = 60 * time.Second

// statusPollLoop polls GET /exchange/status every 60s and logs
// transitions in the derived (spec.md §6) status projection. It never
// returns a non-nil error on a single failed poll — a transient REST
// failure should not tear down the streaming session — only ctx
// cancellation ends the loop.
func (s *Supervisor) statusPollLoop(ctx context.Context) error {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	s.pollStatusOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.pollStatusOnce(ctx)
		}
	}
}

func (s *Supervisor) pollStatusOnce(ctx context.Context) {
	resp, err := s.api.GetExchangeStatus(ctx)
	if err != nil {
		s.logger.Error("exchange status poll failed", "error", err)
		return
	}

	status := deriveStatus(*resp)
	if status != s.lastStatus {
		s.logger.Info("exchange status changed", "status", status, "prior", s.lastStatus)
		s.lastStatus = status
	}
}
