// Package dispatch routes decoded WebSocket frames to the component
// that owns each message type (spec.md §4.5), generalizing the
// teacher's internal/router.route() type-switch into the capability
// trait shape spec.md §9 asks for: one small interface per concern,
// one concrete implementation per store, registered at construction
// instead of matched by a hardcoded field name.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/rickgao/kalshi-stream/internal/book"
	"github.com/rickgao/kalshi-stream/internal/connection"
	"github.com/rickgao/kalshi-stream/internal/metrics"
	"github.com/rickgao/kalshi-stream/internal/wire"
)

// HandlesBookUpdate is implemented by the Book Engine.
type HandlesBookUpdate interface {
	ApplySnapshot(msg wire.OrderbookSnapshotMsg) error
	ApplyDelta(msg wire.OrderbookDeltaMsg) error
}

// HandlesTick is implemented by the Tick store.
type HandlesTick interface {
	OnTick(msg wire.TickerMsg)
}

// HandlesTrade is implemented by the Trade store.
type HandlesTrade interface {
	OnTrade(msg wire.TradeMsg)
}

// HandlesLifecycle is implemented by the Lifecycle store.
type HandlesLifecycle interface {
	OnLifecycle(msg wire.LifecycleMsg)
}

// HandlesSubscriptionEvent is implemented by the Subscription Manager.
type HandlesSubscriptionEvent interface {
	OnSubscribed(msg wire.SubscribedMsg)
	OnUnsubscribed(sid int64)
	OnUpdateAck(tickers []string)
	OnError(id int64, msg wire.ErrorMsg)
}

// HandlesFill is an external collaborator (portfolio observer); the
// Non-goals exclude building one, but the routing slot spec.md §4.5
// names is still wired so a caller can plug one in.
type HandlesFill interface {
	OnFill(data json.RawMessage)
}

// Stats are the routing counters the teacher's router exposes via
// Stats(), kept under the same names.
type Stats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	UnknownMessages  int64
}

// Dispatcher reads frames from one connection's message stream and
// forwards each to its registered handler. It runs on a single
// goroutine per socket so arrival order is preserved, and never blocks
// on a handler (every handler here performs a synchronous in-memory
// last-value write, the same assumption the teacher's router makes
// about GrowableBuffer.Send).
type Dispatcher struct {
	logger  *slog.Logger
	metrics *metrics.Registry

	book         HandlesBookUpdate
	tick         HandlesTick
	trade        HandlesTrade
	lifecycle    HandlesLifecycle
	subscription HandlesSubscriptionEvent
	fill         HandlesFill

	mu    sync.Mutex
	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Handlers bundles the per-type sinks a Dispatcher routes to. Any
// field may be nil, in which case frames of that type are dropped
// without logging: they count as received but not routed, and unlike
// an unrecognised type they are not counted as unknown.
type Handlers struct {
	Book         HandlesBookUpdate
	Tick         HandlesTick
	Trade        HandlesTrade
	Lifecycle    HandlesLifecycle
	Subscription HandlesSubscriptionEvent
	Fill         HandlesFill
}

// New creates a Dispatcher with the given handler set.
func New(h Handlers, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:       logger,
		book:         h.Book,
		tick:         h.Tick,
		trade:        h.Trade,
		lifecycle:    h.Lifecycle,
		subscription: h.Subscription,
		fill:         h.Fill,
	}
}

// Run consumes frames from input until ctx is cancelled or input is
// closed.
func (d *Dispatcher) Run(ctx context.Context, input <-chan connection.TimestampedMessage) {
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.loop(input)
}

// Stop cancels the dispatch loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Stats returns a snapshot of the routing counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// SetMetrics attaches a metrics registry the dispatcher reports
// per-type message counts, parse errors and unknown types to. Passing
// nil disables reporting.
func (d *Dispatcher) SetMetrics(m *metrics.Registry) {
	d.metrics = m
}

func (d *Dispatcher) loop(input <-chan connection.TimestampedMessage) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case msg, ok := <-input:
			if !ok {
				return
			}
			d.route(msg.Data)
		}
	}
}

// Route parses and routes a single frame. Exported for handler tests
// that want to feed frames directly without standing up a channel.
func (d *Dispatcher) Route(data []byte) {
	d.route(data)
}

func (d *Dispatcher) route(data []byte) {
	d.mu.Lock()
	d.stats.MessagesReceived++
	d.mu.Unlock()

	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		d.logger.Warn("dispatch: failed to parse frame", "error", err)
		d.mu.Lock()
		d.stats.ParseErrors++
		d.mu.Unlock()
		d.metrics.IncDispatchParseError()
		return
	}

	var routed bool
	switch env.Type {
	case wire.TypeSubscribed:
		routed = d.routeSubscribed(env)
	case wire.TypeUnsubscribed:
		routed = d.routeUnsubscribed(env)
	case wire.TypeOK:
		routed = d.routeOK(env)
	case wire.TypeError:
		routed = d.routeError(env)
	case wire.TypeOrderbookSnapshot:
		routed = d.routeOrderbookSnapshot(env)
	case wire.TypeOrderbookDelta:
		routed = d.routeOrderbookDelta(env)
	case wire.TypeTicker:
		routed = d.routeTicker(env)
	case wire.TypeTrade:
		routed = d.routeTrade(env)
	case wire.TypeFill:
		routed = d.routeFill(env)
	case wire.TypeMarketLifecycle:
		routed = d.routeLifecycle(env)
	default:
		d.logger.Debug("dispatch: unknown frame type", "type", env.Type)
		d.metrics.IncDispatchUnknown()
		d.mu.Lock()
		d.stats.UnknownMessages++
		d.mu.Unlock()
		return
	}

	if routed {
		d.metrics.IncDispatched(env.Type)
		d.mu.Lock()
		d.stats.MessagesRouted++
		d.mu.Unlock()
	}
}

func (d *Dispatcher) parseErr(kind string, err error) {
	d.logger.Warn("dispatch: failed to parse payload", "type", kind, "error", err)
	d.mu.Lock()
	d.stats.ParseErrors++
	d.mu.Unlock()
	d.metrics.IncDispatchParseError()
}

func (d *Dispatcher) routeSubscribed(env wire.Envelope) bool {
	if d.subscription == nil {
		return false
	}
	var msg wire.SubscribedMsg
	if err := json.Unmarshal(env.Msg, &msg); err != nil {
		d.parseErr("subscribed", err)
		return false
	}
	d.subscription.OnSubscribed(msg)
	return true
}

func (d *Dispatcher) routeUnsubscribed(env wire.Envelope) bool {
	if d.subscription == nil {
		return false
	}
	var msg wire.UnsubscribedMsg
	if err := json.Unmarshal(env.Msg, &msg); err != nil {
		d.parseErr("unsubscribed", err)
		return false
	}
	for _, sid := range msg.SIDs {
		d.subscription.OnUnsubscribed(sid)
	}
	return true
}

func (d *Dispatcher) routeOK(env wire.Envelope) bool {
	if d.subscription == nil {
		return false
	}
	var msg wire.OKMsg
	if err := json.Unmarshal(env.Msg, &msg); err != nil {
		d.parseErr("ok", err)
		return false
	}
	d.subscription.OnUpdateAck(msg.MarketTickers)
	return true
}

func (d *Dispatcher) routeError(env wire.Envelope) bool {
	if d.subscription == nil {
		return false
	}
	var msg wire.ErrorMsg
	if err := json.Unmarshal(env.Msg, &msg); err != nil {
		d.parseErr("error", err)
		return false
	}
	d.subscription.OnError(env.ID, msg)
	return true
}

func (d *Dispatcher) routeOrderbookSnapshot(env wire.Envelope) bool {
	if d.book == nil {
		return false
	}
	var msg wire.OrderbookSnapshotMsg
	if err := json.Unmarshal(env.Msg, &msg); err != nil {
		d.parseErr("orderbook_snapshot", err)
		return false
	}
	if err := d.book.ApplySnapshot(msg); err != nil {
		d.logger.Warn("dispatch: orderbook_snapshot rejected", "ticker", msg.MarketTicker, "error", err)
		if errors.Is(err, book.ErrProtocol) {
			d.metrics.IncBookProtocolError()
		}
		return false
	}
	return true
}

func (d *Dispatcher) routeOrderbookDelta(env wire.Envelope) bool {
	if d.book == nil {
		return false
	}
	var msg wire.OrderbookDeltaMsg
	if err := json.Unmarshal(env.Msg, &msg); err != nil {
		d.parseErr("orderbook_delta", err)
		return false
	}
	if err := d.book.ApplyDelta(msg); err != nil {
		d.logger.Debug("dispatch: orderbook_delta rejected", "ticker", msg.MarketTicker, "error", err)
		switch {
		case errors.Is(err, book.ErrStaleDelta):
			d.metrics.IncBookStaleDelta()
		case errors.Is(err, book.ErrSequenceGap):
			d.metrics.IncBookSequenceGap()
		case errors.Is(err, book.ErrProtocol):
			d.metrics.IncBookProtocolError()
		}
		return false
	}
	return true
}

func (d *Dispatcher) routeTicker(env wire.Envelope) bool {
	if d.tick == nil {
		return false
	}
	var msg wire.TickerMsg
	if err := json.Unmarshal(env.Msg, &msg); err != nil {
		d.parseErr("ticker", err)
		return false
	}
	d.tick.OnTick(msg)
	return true
}

func (d *Dispatcher) routeTrade(env wire.Envelope) bool {
	if d.trade == nil {
		return false
	}
	var msg wire.TradeMsg
	if err := json.Unmarshal(env.Msg, &msg); err != nil {
		d.parseErr("trade", err)
		return false
	}
	d.trade.OnTrade(msg)
	return true
}

func (d *Dispatcher) routeLifecycle(env wire.Envelope) bool {
	if d.lifecycle == nil {
		return false
	}
	var msg wire.LifecycleMsg
	if err := json.Unmarshal(env.Msg, &msg); err != nil {
		d.parseErr("market_lifecycle", err)
		return false
	}
	d.lifecycle.OnLifecycle(msg)
	return true
}

func (d *Dispatcher) routeFill(env wire.Envelope) bool {
	if d.fill == nil {
		return false
	}
	d.fill.OnFill(env.Msg)
	return true
}
