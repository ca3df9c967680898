package store

import (
	"context"
	"testing"
	"time"

	"github.com/rickgao/kalshi-stream/internal/wire"
)

func TestTradeWriter_OnTradeAddsToBatch(t *testing.T) {
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour, QueueDepth: 10}
	w := NewTradeWriter(cfg, nil, nil)

	w.handle(wire.TradeMsg{MarketTicker: "INXD-24DEC31", TakerSide: "yes", YesPrice: 60, NoPrice: 40, Count: 5})

	w.batchMu.Lock()
	n := len(w.batch)
	row := w.batch[0]
	w.batchMu.Unlock()

	if n != 1 {
		t.Fatalf("batch length = %d, want 1", n)
	}
	if !row.TakerSide {
		t.Error("TakerSide = false, want true for \"yes\"")
	}
	if row.TradeID == "" {
		t.Error("TradeID should be minted, got empty string")
	}
}

func TestTradeWriter_OnTradeDropsWhenQueueFull(t *testing.T) {
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour, QueueDepth: 1}
	w := NewTradeWriter(cfg, nil, nil)

	w.OnTrade(wire.TradeMsg{MarketTicker: "A"})
	w.OnTrade(wire.TradeMsg{MarketTicker: "B"})

	if stats := w.Stats(); stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
}

func TestTradeWriter_LifecycleWithNoMessages(t *testing.T) {
	cfg := WriterConfig{BatchSize: 10, FlushInterval: 10 * time.Millisecond, QueueDepth: 10}
	w := NewTradeWriter(cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	w.Stop()
}
