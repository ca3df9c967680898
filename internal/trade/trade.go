// Package trade holds the last observed trade print for each market,
// the in-memory analogue of the teacher's internal/writer/trade.go
// batch writer (transform() plus sideToBoolean()), minus the Postgres
// batching.
package trade

import (
	"sync"

	"github.com/rickgao/kalshi-stream/internal/wire"
)

// Print is the last trade observed for one market.
type Print struct {
	MarketTicker string
	TakerSide    string
	YesPrice     int
	NoPrice      int
	Count        int64
	Ts           int64
}

// Store holds the latest Print per market ticker. Unlike tick.Store,
// every trade frame is a fresh print rather than a field-diff, so
// Update is an unconditional last-value overwrite (spec.md §3's
// four-field form).
type Store struct {
	mu     sync.RWMutex
	prints map[string]Print
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{prints: make(map[string]Print)}
}

// Update overwrites the last print recorded for ticker.
func (s *Store) Update(ticker string, msg wire.TradeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prints[ticker] = Print{
		MarketTicker: ticker,
		TakerSide:    msg.TakerSide,
		YesPrice:     msg.YesPrice,
		NoPrice:      msg.NoPrice,
		Count:        msg.Count,
		Ts:           msg.Ts,
	}
}

// Get returns the last trade print for a market.
func (s *Store) Get(ticker string) (Print, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prints[ticker]
	return p, ok
}

// Tickers lists every market with a recorded print.
func (s *Store) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.prints))
	for k := range s.prints {
		out = append(out, k)
	}
	return out
}

// OnTrade implements dispatch.HandlesTrade.
func (s *Store) OnTrade(msg wire.TradeMsg) {
	s.Update(msg.MarketTicker, msg)
}
