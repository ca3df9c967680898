// Package book reconstructs per-market YES-perspective order books from
// the orderbook_snapshot/orderbook_delta channel, the way the original
// Python Orderbook (pydiction) did, with the stricter sequence-number
// discipline the streaming client now requires.
//
// A raw Kalshi book is two-sided: "yes" quotes and "no" quotes, each a
// list of resting bids at a price. There is no "ask" side on the wire —
// a NO bid at price p is economically equivalent to a YES ask at
// 100-p, since buying NO at p is the same exposure as selling YES at
// 100-p. Engine folds both sides into a single YES-denominated book:
// Bids come straight from the yes quotes, Asks are derived from the no
// quotes by the 100-p translation.
package book

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rickgao/kalshi-stream/internal/wire"
)

// ErrProtocol signals a malformed inbound frame: missing seq, a delta
// against a level that does not exist, or a crossed book.
var ErrProtocol = errors.New("book: protocol error")

// ErrSequenceGap signals seq > last_seq+1. The market is marked
// desynced and a fresh snapshot must be requested.
var ErrSequenceGap = errors.New("book: sequence gap")

// ErrStaleDelta signals seq <= last_seq. Callers should drop the delta
// silently; it is returned so metrics/logging can observe it, not as a
// failure.
var ErrStaleDelta = errors.New("book: stale delta")

// MaxPrice is the price ceiling for a YES contract, in cents. NO quotes
// translate to YES asks at MaxPrice-p.
const MaxPrice = 100

// Level is a single resting price/quantity pair on one side of a book.
type Level struct {
	Price    int
	Quantity int
}

// Delta is an incremental change to a single price level.
type Delta struct {
	Price int
	Delta int
}

// Orderbook is the synthesised YES-perspective view of one market: Bids
// descending by price, Asks ascending by price.
type Orderbook struct {
	Ticker   string
	Bids     []Level
	Asks     []Level
	LastSeq  int64
	Desynced bool
}

// BestBid returns the highest-priced bid, or (Level{}, false) if empty.
func (o *Orderbook) BestBid() (Level, bool) {
	if len(o.Bids) == 0 {
		return Level{}, false
	}
	return o.Bids[0], true
}

// BestAsk returns the lowest-priced ask, or (Level{}, false) if empty.
func (o *Orderbook) BestAsk() (Level, bool) {
	if len(o.Asks) == 0 {
		return Level{}, false
	}
	return o.Asks[0], true
}

// Spread returns BestAsk.Price - BestBid.Price, or (0, false) if either
// side is empty.
func (o *Orderbook) Spread() (int, bool) {
	bid, ok := o.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := o.BestAsk()
	if !ok {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// Mid returns the simple midpoint of best bid and best ask, truncated
// toward zero, or (0, false) if either side is empty.
func (o *Orderbook) Mid() (int, bool) {
	bid, ok := o.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := o.BestAsk()
	if !ok {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// Micro returns the quantity-weighted microprice: the best bid/ask
// skewed toward whichever side carries less resting size, or (0,
// false) if either side is empty or both sides are empty of quantity.
func (o *Orderbook) Micro() (float64, bool) {
	bid, ok := o.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := o.BestAsk()
	if !ok {
		return 0, false
	}
	totalQty := bid.Quantity + ask.Quantity
	if totalQty == 0 {
		return 0, false
	}
	return float64(bid.Price*ask.Quantity+ask.Price*bid.Quantity) / float64(totalQty), true
}

// snapshot copies the book for safe handoff to readers outside the
// engine's single-writer goroutine.
func (o *Orderbook) snapshot() Orderbook {
	cp := Orderbook{
		Ticker:   o.Ticker,
		LastSeq:  o.LastSeq,
		Desynced: o.Desynced,
		Bids:     make([]Level, len(o.Bids)),
		Asks:     make([]Level, len(o.Asks)),
	}
	copy(cp.Bids, o.Bids)
	copy(cp.Asks, o.Asks)
	return cp
}

// sortBids sorts bids descending by price.
func sortBids(levels []Level) {
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
}

// sortAsks sorts asks ascending by price.
func sortAsks(levels []Level) {
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
}

// applyDelta applies a single delta to one side of the book in place,
// mirroring Orderbook.update in the Python original: matching price
// gets its quantity adjusted (removed if it falls to zero or below),
// no match with a positive delta appends a new level. Returns
// ErrProtocol if a non-positive delta targets a price that is not present.
func applyDelta(levels []Level, d Delta, ascending bool) ([]Level, error) {
	for i, lvl := range levels {
		if lvl.Price != d.Price {
			continue
		}
		newQty := lvl.Quantity + d.Delta
		if newQty > 0 {
			levels[i] = Level{Price: lvl.Price, Quantity: newQty}
		} else {
			levels = append(levels[:i], levels[i+1:]...)
		}
		if ascending {
			sortAsks(levels)
		} else {
			sortBids(levels)
		}
		return levels, nil
	}

	if d.Delta <= 0 {
		return levels, fmt.Errorf("%w: delta %+v has no matching level", ErrProtocol, d)
	}
	levels = append(levels, Level{Price: d.Price, Quantity: d.Delta})
	if ascending {
		sortAsks(levels)
	} else {
		sortBids(levels)
	}
	return levels, nil
}

// translateToAsks converts NO-side quotes into synthetic YES asks:
// price p, quantity q becomes price (MaxPrice-p), quantity q.
func translateToAsks(noLevels []wire.PriceLevel) []Level {
	out := make([]Level, 0, len(noLevels))
	for _, l := range noLevels {
		out = append(out, Level{Price: MaxPrice - l.Price, Quantity: l.Quantity})
	}
	sortAsks(out)
	return out
}

func toBids(yesLevels []wire.PriceLevel) []Level {
	out := make([]Level, 0, len(yesLevels))
	for _, l := range yesLevels {
		out = append(out, Level{Price: l.Price, Quantity: l.Quantity})
	}
	sortBids(out)
	return out
}

// Engine owns every market's Orderbook. It is the sole writer; all
// mutation happens on the Dispatcher goroutine that calls
// ApplySnapshot/ApplyDelta, which take the write lock. Get and Tickers
// may be called concurrently by read-side consumers and take the read
// lock.
type Engine struct {
	mu     sync.RWMutex
	books  map[string]*Orderbook
	onGap  func(ticker string)
}

// NewEngine creates an empty book engine. onGap, if non-nil, is invoked
// (synchronously, on the calling goroutine) whenever a market is marked
// desynced, so the caller can request a fresh snapshot.
func NewEngine(onGap func(ticker string)) *Engine {
	return &Engine{
		books: make(map[string]*Orderbook),
		onGap: onGap,
	}
}

// Get returns an immutable copy of a market's book, or (Orderbook{}, false)
// if no snapshot has arrived yet.
func (e *Engine) Get(ticker string) (Orderbook, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ob, ok := e.books[ticker]
	if !ok {
		return Orderbook{}, false
	}
	return ob.snapshot(), true
}

// Tickers returns the markets currently tracked.
func (e *Engine) Tickers() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.books))
	for t := range e.books {
		out = append(out, t)
	}
	return out
}

// Remove drops a market's book, called when its lifecycle settles.
func (e *Engine) Remove(ticker string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.books, ticker)
}

// ApplySnapshot replaces a market's book wholesale. Missing Seq is a
// ProtocolError.
func (e *Engine) ApplySnapshot(msg wire.OrderbookSnapshotMsg) error {
	if msg.Seq == nil {
		return fmt.Errorf("%w: orderbook_snapshot missing seq for %s", ErrProtocol, msg.MarketTicker)
	}

	ob := &Orderbook{
		Ticker:  msg.MarketTicker,
		Bids:    toBids(msg.Yes),
		Asks:    translateToAsks(msg.No),
		LastSeq: *msg.Seq,
	}
	if err := checkCrossed(ob); err != nil {
		ob.Desynced = true
		e.mu.Lock()
		e.books[msg.MarketTicker] = ob
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.books[msg.MarketTicker] = ob
	e.mu.Unlock()
	return nil
}

// ApplyDelta incrementally updates a market's book. Stale deltas
// (seq<=last_seq) are dropped and reported via ErrStaleDelta. Gaps
// (seq>last_seq+1) mark the book desynced, invoke onGap, and report
// ErrSequenceGap. A missing seq is a ProtocolError.
func (e *Engine) ApplyDelta(msg wire.OrderbookDeltaMsg) error {
	if msg.Seq == nil {
		return fmt.Errorf("%w: orderbook_delta missing seq for %s", ErrProtocol, msg.MarketTicker)
	}

	e.mu.Lock()
	ob, ok := e.books[msg.MarketTicker]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: orderbook_delta for unknown market %s", ErrProtocol, msg.MarketTicker)
	}

	seq := *msg.Seq
	if seq <= ob.LastSeq {
		e.mu.Unlock()
		return fmt.Errorf("%w: seq %d <= last_seq %d for %s", ErrStaleDelta, seq, ob.LastSeq, msg.MarketTicker)
	}
	if seq > ob.LastSeq+1 {
		ob.Desynced = true
		e.mu.Unlock()
		if e.onGap != nil {
			e.onGap(msg.MarketTicker)
		}
		return fmt.Errorf("%w: seq %d > last_seq+1 %d for %s", ErrSequenceGap, seq, ob.LastSeq+1, msg.MarketTicker)
	}

	d := Delta{Price: msg.Price, Delta: msg.Delta}
	var err error
	switch msg.Side {
	case "yes":
		ob.Bids, err = applyDelta(ob.Bids, d, false)
	case "no":
		translated := Delta{Price: MaxPrice - msg.Price, Delta: msg.Delta}
		ob.Asks, err = applyDelta(ob.Asks, translated, true)
	default:
		err = fmt.Errorf("%w: orderbook_delta unknown side %q for %s", ErrProtocol, msg.Side, msg.MarketTicker)
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}
	ob.LastSeq = seq

	if cerr := checkCrossed(ob); cerr != nil {
		ob.Desynced = true
		e.mu.Unlock()
		return cerr
	}

	e.mu.Unlock()
	return nil
}

// checkCrossed rejects a book whose best bid is strictly above its best
// ask; equal best prices are allowed.
func checkCrossed(ob *Orderbook) error {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return nil
	}
	if ob.Bids[0].Price > ob.Asks[0].Price {
		return fmt.Errorf("%w: crossed book for %s (best_bid=%d best_ask=%d)",
			ErrProtocol, ob.Ticker, ob.Bids[0].Price, ob.Asks[0].Price)
	}
	return nil
}
