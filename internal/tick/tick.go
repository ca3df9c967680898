// Package tick holds the last known ticker quote for each market, the
// in-memory analogue of the teacher's internal/writer/ticker.go batch
// writer: the same per-field values land here, but as a single-owner
// map instead of a Postgres batch insert.
package tick

import (
	"sync"

	"github.com/rickgao/kalshi-stream/internal/wire"
)

// Quote is the last observed ticker state for one market.
type Quote struct {
	MarketTicker       string
	Price              int
	YesBid             int
	YesAsk             int
	Volume             int64
	OpenInterest       int64
	DollarVolume       int64
	DollarOpenInterest int64
	Ts                 int64
}

// Store holds the latest Quote per market ticker.
type Store struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{quotes: make(map[string]Quote)}
}

// Update records a ticker frame, keeping each zero-valued field at its
// prior value rather than overwriting it. Kalshi's ticker frames only
// carry the fields that changed since the last tick (the teacher's
// transform() relied on the same convention via dollarsToInternal's
// empty-string-means-zero handling), so a field reported as zero is
// read as "unchanged" rather than "reset to zero".
func (s *Store) Update(ticker string, msg wire.TickerMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.quotes[ticker]
	q := Quote{
		MarketTicker:       ticker,
		Price:              firstNonZero(msg.Price, prev.Price, existed),
		YesBid:             firstNonZero(msg.YesBid, prev.YesBid, existed),
		YesAsk:             firstNonZero(msg.YesAsk, prev.YesAsk, existed),
		Volume:             firstNonZero64(msg.Volume, prev.Volume, existed),
		OpenInterest:       firstNonZero64(msg.OpenInterest, prev.OpenInterest, existed),
		DollarVolume:       firstNonZero64(msg.DollarVolume, prev.DollarVolume, existed),
		DollarOpenInterest: firstNonZero64(msg.DollarOpenInterest, prev.DollarOpenInterest, existed),
		Ts:                 msg.Ts,
	}
	s.quotes[ticker] = q
}

func firstNonZero(incoming, prior int, existed bool) int {
	if incoming != 0 || !existed {
		return incoming
	}
	return prior
}

func firstNonZero64(incoming, prior int64, existed bool) int64 {
	if incoming != 0 || !existed {
		return incoming
	}
	return prior
}

// Get returns the last known quote for a market.
func (s *Store) Get(ticker string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[ticker]
	return q, ok
}

// Tickers lists every market with a recorded quote.
func (s *Store) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.quotes))
	for k := range s.quotes {
		out = append(out, k)
	}
	return out
}

// OnTick implements dispatch.HandlesTick.
func (s *Store) OnTick(msg wire.TickerMsg) {
	s.Update(msg.MarketTicker, msg)
}
