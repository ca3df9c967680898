package lifecycle

import (
	"errors"
	"testing"

	"github.com/rickgao/kalshi-stream/internal/wire"
)

func ts(v int64) *int64 { return &v }

func TestStore_UpdateAndGet(t *testing.T) {
	s := NewStore()
	if err := s.Update("A", wire.LifecycleMsg{MarketTicker: "A", OpenTs: 100}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	st, ok := s.Get("A")
	if !ok || st.OpenTs != 100 {
		t.Errorf("st = %+v, ok=%v", st, ok)
	}
}

func TestStore_SettlementIsTerminal(t *testing.T) {
	s := NewStore()
	s.Update("A", wire.LifecycleMsg{MarketTicker: "A", IsDeactivated: true, Result: "yes", SettledTs: ts(200)})

	err := s.Update("A", wire.LifecycleMsg{MarketTicker: "A", IsDeactivated: false})
	if !errors.Is(err, ErrProtocolError) {
		t.Fatalf("err = %v, want ErrProtocolError", err)
	}

	st, _ := s.Get("A")
	if !st.IsDeactivated || st.Result != "yes" {
		t.Errorf("state should be unchanged after rejected update: %+v", st)
	}
}

func TestStore_ChangingSettledResultRejected(t *testing.T) {
	s := NewStore()
	s.Update("A", wire.LifecycleMsg{MarketTicker: "A", IsDeactivated: true, Result: "yes"})

	err := s.Update("A", wire.LifecycleMsg{MarketTicker: "A", IsDeactivated: true, Result: "no"})
	if !errors.Is(err, ErrProtocolError) {
		t.Fatalf("err = %v, want ErrProtocolError", err)
	}
}

func TestStore_RepeatingSameSettledResultAllowed(t *testing.T) {
	s := NewStore()
	s.Update("A", wire.LifecycleMsg{MarketTicker: "A", IsDeactivated: true, Result: "yes", SettledTs: ts(200)})

	// A duplicate settlement frame with the same result and a later
	// settled_ts is a re-delivery, not a regression, and should apply.
	if err := s.Update("A", wire.LifecycleMsg{MarketTicker: "A", IsDeactivated: true, Result: "yes", SettledTs: ts(205)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	st, _ := s.Get("A")
	if *st.SettledTs != 205 {
		t.Errorf("SettledTs = %d, want 205", *st.SettledTs)
	}
}

func TestStore_DeactivationWithoutResultIsNotTerminal(t *testing.T) {
	s := NewStore()
	s.Update("A", wire.LifecycleMsg{MarketTicker: "A", IsDeactivated: true, CloseTs: 150})

	// No Result yet, so a further non-terminal update should still apply.
	if err := s.Update("A", wire.LifecycleMsg{MarketTicker: "A", IsDeactivated: true, Result: "no", SettledTs: ts(300)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	st, _ := s.Get("A")
	if st.Result != "no" {
		t.Errorf("Result = %q, want no", st.Result)
	}
}

func TestStore_UnknownTicker(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("missing"); ok {
		t.Error("expected no state for unknown ticker")
	}
}
