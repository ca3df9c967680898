package supervisor

import (
	"context"
	"time"

	"github.com/rickgao/kalshi-stream/internal/config"
)

// configRefreshLoop re-reads the YAML config and tickers file on the
// interval spec.md §4.8 names, diffs the resulting ticker set against
// what the initial subscription actually holds, and pushes any
// addition/removal through UpdateTickers.
func (s *Supervisor) configRefreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Subscription.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.refreshOnce()
		}
	}
}

func (s *Supervisor) refreshOnce() {
	if s.subscriptionID == 0 {
		return
	}

	wanted, err := s.resolveTickers()
	if err != nil {
		s.logger.Error("config refresh: resolve tickers failed", "error", err)
		return
	}
	if wanted == nil {
		return
	}

	if err := s.manager.UpdateTickers(s.subscriptionID, wanted); err != nil {
		s.logger.Error("config refresh: update tickers failed", "error", err)
	}
}

// resolveTickers re-reads the configured tickers file (if any) on top
// of the static config.Subscription.Tickers list. Returns nil (no
// change signal) when all_markets is set, since there is nothing to
// diff against a wildcard subscription.
func (s *Supervisor) resolveTickers() ([]string, error) {
	if s.cfg.Subscription.AllMarkets {
		return nil, nil
	}

	tickers := append([]string(nil), s.cfg.Subscription.Tickers...)
	if s.cfg.Subscription.TickersFile == "" {
		return tickers, nil
	}

	fromFile, err := config.LoadTickersFile(s.cfg.Subscription.TickersFile)
	if err != nil {
		return nil, err
	}
	return append(tickers, fromFile...), nil
}
