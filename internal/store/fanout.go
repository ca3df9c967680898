package store

import "github.com/rickgao/kalshi-stream/internal/wire"

// Dispatcher.Handlers has one slot per message type, but the
// supervisor wants both an in-memory last-value store and an optional
// persistence writer to see every frame. These adapters let one slot
// serve two listeners without teaching the dispatcher anything about
// persistence.

// TickHandler is satisfied by internal/tick.Store and by TickerWriter.
type TickHandler interface {
	OnTick(msg wire.TickerMsg)
}

// TradeHandler is satisfied by internal/trade.Store and by TradeWriter.
type TradeHandler interface {
	OnTrade(msg wire.TradeMsg)
}

// BookHandler is satisfied by internal/book.Engine and by
// OrderbookWriter.
type BookHandler interface {
	ApplySnapshot(msg wire.OrderbookSnapshotMsg) error
	ApplyDelta(msg wire.OrderbookDeltaMsg) error
}

// TickFanout forwards one ticker update to a primary handler (the
// in-memory store) and a secondary one (an optional writer).
type TickFanout struct {
	Primary   TickHandler
	Secondary TickHandler
}

func (f TickFanout) OnTick(msg wire.TickerMsg) {
	if f.Primary != nil {
		f.Primary.OnTick(msg)
	}
	if f.Secondary != nil {
		f.Secondary.OnTick(msg)
	}
}

// TradeFanout forwards one trade print to a primary and secondary handler.
type TradeFanout struct {
	Primary   TradeHandler
	Secondary TradeHandler
}

func (f TradeFanout) OnTrade(msg wire.TradeMsg) {
	if f.Primary != nil {
		f.Primary.OnTrade(msg)
	}
	if f.Secondary != nil {
		f.Secondary.OnTrade(msg)
	}
}

// BookFanout forwards snapshot/delta frames to a primary handler (the
// Book Engine, whose sequence validation is authoritative) and a
// secondary one (an optional writer). The primary's error is returned;
// the secondary's is not, since a writer never rejects a frame.
type BookFanout struct {
	Primary   BookHandler
	Secondary BookHandler
}

func (f BookFanout) ApplySnapshot(msg wire.OrderbookSnapshotMsg) error {
	if f.Secondary != nil {
		_ = f.Secondary.ApplySnapshot(msg)
	}
	if f.Primary != nil {
		return f.Primary.ApplySnapshot(msg)
	}
	return nil
}

func (f BookFanout) ApplyDelta(msg wire.OrderbookDeltaMsg) error {
	if f.Secondary != nil {
		_ = f.Secondary.ApplyDelta(msg)
	}
	if f.Primary != nil {
		return f.Primary.ApplyDelta(msg)
	}
	return nil
}
