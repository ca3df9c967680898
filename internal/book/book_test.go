package book

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rickgao/kalshi-stream/internal/wire"
)

func seqPtr(v int64) *int64 { return &v }

func levels(pairs ...[2]int) []wire.PriceLevel {
	out := make([]wire.PriceLevel, len(pairs))
	for i, p := range pairs {
		out[i] = wire.PriceLevel{Price: p[0], Quantity: p[1]}
	}
	return out
}

func wantLevels(pairs ...[2]int) []Level {
	out := make([]Level, len(pairs))
	for i, p := range pairs {
		out[i] = Level{Price: p[0], Quantity: p[1]}
	}
	return out
}

// Scenario 1: snapshot ingest.
func TestEngine_SnapshotIngest(t *testing.T) {
	e := NewEngine(nil)
	err := e.ApplySnapshot(wire.OrderbookSnapshotMsg{
		Seq:          seqPtr(10),
		MarketTicker: "KXMARKET",
		Yes:          levels([2]int{40, 5}, [2]int{41, 3}),
		No:           levels([2]int{55, 2}, [2]int{56, 4}),
	})
	if err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}

	ob, ok := e.Get("KXMARKET")
	if !ok {
		t.Fatal("book not found")
	}
	if ob.LastSeq != 10 {
		t.Errorf("LastSeq = %d, want 10", ob.LastSeq)
	}
	wantBids := wantLevels([2]int{41, 3}, [2]int{40, 5})
	wantAsks := wantLevels([2]int{44, 4}, [2]int{45, 2})
	if !reflect.DeepEqual(ob.Bids, wantBids) {
		t.Errorf("Bids = %+v, want %+v", ob.Bids, wantBids)
	}
	if !reflect.DeepEqual(ob.Asks, wantAsks) {
		t.Errorf("Asks = %+v, want %+v", ob.Asks, wantAsks)
	}
}

func snapshotFixture(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.ApplySnapshot(wire.OrderbookSnapshotMsg{
		Seq:          seqPtr(10),
		MarketTicker: "KXMARKET",
		Yes:          levels([2]int{40, 5}, [2]int{41, 3}),
		No:           levels([2]int{55, 2}, [2]int{56, 4}),
	}); err != nil {
		t.Fatalf("fixture ApplySnapshot: %v", err)
	}
}

// Scenario 2: delta adds a new YES level.
func TestEngine_DeltaAddNewYesLevel(t *testing.T) {
	e := NewEngine(nil)
	snapshotFixture(t, e)

	err := e.ApplyDelta(wire.OrderbookDeltaMsg{
		Seq: seqPtr(11), MarketTicker: "KXMARKET", Side: "yes", Price: 42, Delta: 7,
	})
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	ob, _ := e.Get("KXMARKET")
	want := wantLevels([2]int{42, 7}, [2]int{41, 3}, [2]int{40, 5})
	if !reflect.DeepEqual(ob.Bids, want) {
		t.Errorf("Bids = %+v, want %+v", ob.Bids, want)
	}
	if ob.LastSeq != 11 {
		t.Errorf("LastSeq = %d, want 11", ob.LastSeq)
	}
}

// Scenario 3: delta removes a NO level, removing the translated YES ask.
func TestEngine_DeltaRemoveNoLevel(t *testing.T) {
	e := NewEngine(nil)
	snapshotFixture(t, e)

	err := e.ApplyDelta(wire.OrderbookDeltaMsg{
		Seq: seqPtr(11), MarketTicker: "KXMARKET", Side: "no", Price: 55, Delta: -2,
	})
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	ob, _ := e.Get("KXMARKET")
	want := wantLevels([2]int{44, 4})
	if !reflect.DeepEqual(ob.Asks, want) {
		t.Errorf("Asks = %+v, want %+v", ob.Asks, want)
	}
	if ob.LastSeq != 11 {
		t.Errorf("LastSeq = %d, want 11", ob.LastSeq)
	}
}

// Scenario 4: stale delta dropped, book unchanged.
func TestEngine_StaleDeltaDropped(t *testing.T) {
	e := NewEngine(nil)
	snapshotFixture(t, e)

	err := e.ApplyDelta(wire.OrderbookDeltaMsg{
		Seq: seqPtr(9), MarketTicker: "KXMARKET", Side: "yes", Price: 1, Delta: 1,
	})
	if !errors.Is(err, ErrStaleDelta) {
		t.Fatalf("err = %v, want ErrStaleDelta", err)
	}

	ob, _ := e.Get("KXMARKET")
	if ob.LastSeq != 10 {
		t.Errorf("LastSeq = %d, want 10 (unchanged)", ob.LastSeq)
	}
}

// Scenario 5: sequence gap marks the book desynced and is reported.
func TestEngine_SequenceGapDesyncs(t *testing.T) {
	var gapped string
	e := NewEngine(func(ticker string) { gapped = ticker })
	snapshotFixture(t, e)

	err := e.ApplyDelta(wire.OrderbookDeltaMsg{
		Seq: seqPtr(15), MarketTicker: "KXMARKET", Side: "yes", Price: 1, Delta: 1,
	})
	if !errors.Is(err, ErrSequenceGap) {
		t.Fatalf("err = %v, want ErrSequenceGap", err)
	}

	ob, _ := e.Get("KXMARKET")
	if !ob.Desynced {
		t.Error("book should be marked desynced")
	}
	if ob.LastSeq != 10 {
		t.Errorf("LastSeq = %d, want unchanged 10", ob.LastSeq)
	}
	if gapped != "KXMARKET" {
		t.Errorf("onGap called with %q, want KXMARKET", gapped)
	}
}

// Boundary behaviour: a delta against a nonexistent price with a
// non-positive delta is a protocol error.
func TestEngine_NegativeDeltaNoMatch(t *testing.T) {
	e := NewEngine(nil)
	snapshotFixture(t, e)

	err := e.ApplyDelta(wire.OrderbookDeltaMsg{
		Seq: seqPtr(11), MarketTicker: "KXMARKET", Side: "yes", Price: 99, Delta: -1,
	})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestEngine_MissingSeqIsProtocolError(t *testing.T) {
	e := NewEngine(nil)
	err := e.ApplySnapshot(wire.OrderbookSnapshotMsg{MarketTicker: "KXMARKET"})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}

	snapshotFixture(t, e)
	err = e.ApplyDelta(wire.OrderbookDeltaMsg{MarketTicker: "KXMARKET", Side: "yes", Price: 1, Delta: 1})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestEngine_CrossedBookRejected(t *testing.T) {
	e := NewEngine(nil)
	err := e.ApplySnapshot(wire.OrderbookSnapshotMsg{
		Seq:          seqPtr(1),
		MarketTicker: "KXMARKET",
		Yes:          levels([2]int{60, 5}),
		No:           levels([2]int{55, 2}), // translates to YES ask at 45, crossed vs bid 60
	})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
	ob, ok := e.Get("KXMARKET")
	if !ok {
		t.Fatal("book should still be stored, flagged desynced")
	}
	if !ob.Desynced {
		t.Error("crossed book should be marked desynced")
	}
}

func TestEngine_ZeroQuantityLevelRemoved(t *testing.T) {
	e := NewEngine(nil)
	snapshotFixture(t, e)

	err := e.ApplyDelta(wire.OrderbookDeltaMsg{
		Seq: seqPtr(11), MarketTicker: "KXMARKET", Side: "yes", Price: 40, Delta: -5,
	})
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	ob, _ := e.Get("KXMARKET")
	for _, l := range ob.Bids {
		if l.Price == 40 {
			t.Errorf("level at 40 should have been removed, got %+v", l)
		}
	}
}

func TestEngine_UnknownMarketIsProtocolError(t *testing.T) {
	e := NewEngine(nil)
	err := e.ApplyDelta(wire.OrderbookDeltaMsg{Seq: seqPtr(1), MarketTicker: "NOPE", Side: "yes", Price: 1, Delta: 1})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestOrderbook_DerivedHelpers(t *testing.T) {
	e := NewEngine(nil)
	snapshotFixture(t, e)
	ob, _ := e.Get("KXMARKET")

	bid, ok := ob.BestBid()
	if !ok || bid != (Level{Price: 41, Quantity: 3}) {
		t.Errorf("BestBid = %+v, %v", bid, ok)
	}
	ask, ok := ob.BestAsk()
	if !ok || ask != (Level{Price: 44, Quantity: 4}) {
		t.Errorf("BestAsk = %+v, %v", ask, ok)
	}
	spread, ok := ob.Spread()
	if !ok || spread != 3 {
		t.Errorf("Spread = %d, %v, want 3", spread, ok)
	}
	mid, ok := ob.Mid()
	if !ok || mid != 42 {
		t.Errorf("Mid = %d, %v, want 42", mid, ok)
	}
	micro, ok := ob.Micro()
	if !ok {
		t.Fatal("Micro ok = false")
	}
	wantMicro := float64(41*4+44*3) / float64(7)
	if micro != wantMicro {
		t.Errorf("Micro = %v, want %v", micro, wantMicro)
	}
}

func TestOrderbook_DerivedHelpers_EmptySide(t *testing.T) {
	ob := &Orderbook{Bids: wantLevels([2]int{40, 1})}
	if _, ok := ob.BestAsk(); ok {
		t.Error("BestAsk should be false with no asks")
	}
	if _, ok := ob.Spread(); ok {
		t.Error("Spread should be false with no asks")
	}
	if _, ok := ob.Mid(); ok {
		t.Error("Mid should be false with no asks")
	}
	if _, ok := ob.Micro(); ok {
		t.Error("Micro should be false with no asks")
	}
}

func TestEngine_Remove(t *testing.T) {
	e := NewEngine(nil)
	snapshotFixture(t, e)
	e.Remove("KXMARKET")
	if _, ok := e.Get("KXMARKET"); ok {
		t.Error("book should have been removed")
	}
}
