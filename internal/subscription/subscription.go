// Package subscription implements the subscription state machine
// (spec.md §4.4), grounded directly on the subscription half of
// original_source/packages/kalshi/src/kalshi/ws/client.py
// (add_subscription, update_subscription, unsubscribe,
// _handle_forced_unsubscription_, resubscribe_all), restructured into
// an explicit PendingAck -> Active -> PendingUnsub state machine wired
// to a Pool instead of a single ad hoc websocket handle.
package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/kalshi-stream/internal/metrics"
	"github.com/rickgao/kalshi-stream/internal/wire"
)

// SubState is a subscription's position in its state machine.
type SubState int

const (
	PendingAck SubState = iota
	Active
	PendingUnsub
)

func (s SubState) String() string {
	switch s {
	case PendingAck:
		return "pending_ack"
	case Active:
		return "active"
	case PendingUnsub:
		return "pending_unsub"
	default:
		return "unknown"
	}
}

// Errors
var (
	ErrUnknownSubscription = errors.New("subscription: unknown id")
	ErrConfirmationTimeout = errors.New("subscription: confirmation timeout")
)

// Subscription tracks one subscribe command's lifecycle.
type Subscription struct {
	ID         int64
	Channels   []string
	Tickers    map[string]struct{}
	AllMarkets bool
	CreatedTs  time.Time
	UpdatedTs  time.Time
	State      SubState
}

func (s *Subscription) tickerList() []string {
	out := make([]string, 0, len(s.Tickers))
	for t := range s.Tickers {
		out = append(out, t)
	}
	return out
}

func tickerSet(tickers []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		out[t] = struct{}{}
	}
	return out
}

// Sender is the subset of internal/pool.Pool the manager needs to ship
// commands and force a reconnect on confirmation timeout.
type Sender interface {
	Send(data []byte) error
	ActiveID() int
	Reconnect(id int) error
}

// Manager owns every live subscription for one client. It is the sole
// writer of subscription state; the dispatcher calls its On* methods
// from a single goroutine per socket, so no subscription map lock is
// needed beyond what guards concurrent reads from external callers
// (e.g. a status endpoint).
type Manager struct {
	pool    Sender
	logger  *slog.Logger
	metrics *metrics.Registry

	confirmationTimeout time.Duration

	idCounter atomic.Int64

	mu                    sync.Mutex
	subs                  map[int64]*Subscription
	pendingUnsubscriptions map[int64]struct{}
	timers                map[int64]*time.Timer
	pendingUpdates        map[int64]pendingUpdate
}

// pendingUpdate is the rollback context for one outstanding
// add_markets/delete_markets command, keyed by that command's own id
// (not the subscription's sid, since update commands mint a fresh id).
type pendingUpdate struct {
	subscriptionID int64
	priorTickers   []string
}

// NewManager creates a subscription manager bound to a pool.
func NewManager(pool Sender, confirmationTimeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pool:                   pool,
		logger:                 logger,
		confirmationTimeout:    confirmationTimeout,
		subs:                   make(map[int64]*Subscription),
		pendingUnsubscriptions: make(map[int64]struct{}),
		timers:                 make(map[int64]*time.Timer),
		pendingUpdates:         make(map[int64]pendingUpdate),
	}
}

func (m *Manager) nextID() int64 {
	return m.idCounter.Add(1)
}

// SetMetrics attaches a metrics registry the manager reports active
// and pending subscription counts, server errors and confirmation
// timeouts to. Passing nil disables reporting.
func (m *Manager) SetMetrics(r *metrics.Registry) {
	m.metrics = r
}

// reportCountsLocked must be called with mu held.
func (m *Manager) reportCountsLocked() {
	var active, pending int
	for _, sub := range m.subs {
		switch sub.State {
		case Active:
			active++
		case PendingAck, PendingUnsub:
			pending++
		}
	}
	m.metrics.SetActiveSubscriptions(active)
	m.metrics.SetPendingSubscriptions(pending)
}

// Subscribe sends a subscribe command and tracks the new subscription
// as PendingAck, arming a confirmation timer.
func (m *Manager) Subscribe(channels []string, tickers []string, allMarkets bool) (int64, error) {
	id := m.nextID()
	now := time.Now()
	sub := &Subscription{
		ID:         id,
		Channels:   channels,
		Tickers:    tickerSet(tickers),
		AllMarkets: allMarkets,
		CreatedTs:  now,
		UpdatedTs:  now,
		State:      PendingAck,
	}

	cmd := wire.NewSubscribeCmd(id, channels, tickers, allMarkets)
	data, err := json.Marshal(cmd)
	if err != nil {
		return 0, fmt.Errorf("subscription: marshal subscribe: %w", err)
	}
	if err := m.pool.Send(data); err != nil {
		return 0, fmt.Errorf("subscription: send subscribe: %w", err)
	}

	m.mu.Lock()
	m.subs[id] = sub
	m.armConfirmationTimerLocked(id)
	m.reportCountsLocked()
	m.mu.Unlock()

	return id, nil
}

// armConfirmationTimerLocked must be called with mu held.
func (m *Manager) armConfirmationTimerLocked(id int64) {
	if m.confirmationTimeout <= 0 {
		return
	}
	timer := time.AfterFunc(m.confirmationTimeout, func() { m.onConfirmationTimeout(id) })
	m.timers[id] = timer
}

func (m *Manager) disarmTimerLocked(id int64) {
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
}

// onConfirmationTimeout escalates an unconfirmed subscribe into a
// connection-level reconnect, per spec.md §4.4's last bullet. Ported
// from _await_confirmation's sleep-then-check, restructured from a
// blocking sleep into a cancellable timer.
func (m *Manager) onConfirmationTimeout(id int64) {
	m.mu.Lock()
	sub, ok := m.subs[id]
	stillPending := ok && sub.State == PendingAck
	m.mu.Unlock()

	if !stillPending {
		return
	}

	m.logger.Error("subscription not confirmed, forcing reconnect", "sid", id, "error", fmt.Errorf("%w: sid %d", ErrConfirmationTimeout, id))
	m.metrics.IncConfirmationTimeout()
	activeID := m.pool.ActiveID()
	if activeID == 0 {
		return
	}
	if err := m.pool.Reconnect(activeID); err != nil {
		m.logger.Error("subscription-triggered reconnect failed", "conn_id", activeID, "error", err)
	}
}

// OnSubscribed transitions a subscription PendingAck -> Active.
func (m *Manager) OnSubscribed(msg wire.SubscribedMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[msg.SID]
	if !ok {
		m.logger.Warn("subscribed frame for unknown sid", "sid", msg.SID, "channel", msg.Channel)
		return
	}
	sub.State = Active
	sub.UpdatedTs = time.Now()
	m.disarmTimerLocked(msg.SID)
	m.reportCountsLocked()
}

// OnUpdateAck records a successful update_subscription acknowledgement.
// State stays Active; the ticker set was already applied optimistically
// by UpdateTickers, so this is a confirmation log point, not a
// transition (spec.md §4.4: "Active -> on ok -> Active").
func (m *Manager) OnUpdateAck(tickers []string) {
	m.logger.Info("subscription update acknowledged", "tickers", tickers)
}

// OnError handles an "error" frame. id is the failed command's own id
// (spec.md §6 correlates error frames to the command, not the
// subscription sid). If id matches an outstanding optimistic
// UpdateTickers command, its ticker set is rolled back to what it was
// before that command was sent.
func (m *Manager) OnError(id int64, msg wire.ErrorMsg) {
	m.logger.Error("subscription error frame received", "id", id, "code", msg.Code, "message", msg.Message)
	m.metrics.IncSubscriptionError(msg.Code)

	m.mu.Lock()
	pu, ok := m.pendingUpdates[id]
	if ok {
		delete(m.pendingUpdates, id)
	}
	m.mu.Unlock()

	if ok {
		m.logger.Warn("rolling back optimistic ticker update after error frame", "subscription_id", pu.subscriptionID, "code", msg.Code)
		m.RollbackUpdate(pu.subscriptionID, pu.priorTickers)
	}
}

// UpdateTickers diffs the subscription's current tickers against
// newTickers and sends add_markets before delete_markets (additions
// have higher time priority, per spec.md §4.4). Updates local state
// optimistically; each command's prior ticker set is recorded so that
// OnError rolls it back when an "error" frame arrives for that
// command's id.
func (m *Manager) UpdateTickers(id int64, newTickers []string) error {
	m.mu.Lock()
	sub, ok := m.subs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownSubscription, id)
	}

	current := sub.Tickers
	priorTickers := sub.tickerList()
	next := tickerSet(newTickers)

	var toAdd, toRemove []string
	for t := range next {
		if _, present := current[t]; !present {
			toAdd = append(toAdd, t)
		}
	}
	for t := range current {
		if _, present := next[t]; !present {
			toRemove = append(toRemove, t)
		}
	}
	m.mu.Unlock()

	if len(toAdd) > 0 {
		cmdID := m.nextID()
		m.registerPendingUpdate(cmdID, id, priorTickers)
		cmd := wire.NewUpdateSubscriptionCmd(cmdID, id, toAdd, wire.ActionAddMarkets)
		data, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("subscription: marshal add_markets: %w", err)
		}
		if err := m.pool.Send(data); err != nil {
			return fmt.Errorf("subscription: send add_markets: %w", err)
		}
	}
	if len(toRemove) > 0 {
		cmdID := m.nextID()
		m.registerPendingUpdate(cmdID, id, priorTickers)
		cmd := wire.NewUpdateSubscriptionCmd(cmdID, id, toRemove, wire.ActionDeleteMarkets)
		data, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("subscription: marshal delete_markets: %w", err)
		}
		if err := m.pool.Send(data); err != nil {
			return fmt.Errorf("subscription: send delete_markets: %w", err)
		}
	}

	m.mu.Lock()
	sub.Tickers = next
	sub.UpdatedTs = time.Now()
	m.mu.Unlock()

	return nil
}

// registerPendingUpdate records the ticker set a subscription held
// before an add_markets/delete_markets command was sent, so a matching
// "error" frame can be rolled back to it.
func (m *Manager) registerPendingUpdate(cmdID, subscriptionID int64, priorTickers []string) {
	m.mu.Lock()
	m.pendingUpdates[cmdID] = pendingUpdate{subscriptionID: subscriptionID, priorTickers: priorTickers}
	m.mu.Unlock()
}

// RollbackUpdate reverts an optimistic UpdateTickers after the server
// reports an "error" frame for that command's subscription id. New
// relative to the original, which only carried a TODO here.
func (m *Manager) RollbackUpdate(id int64, priorTickers []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return
	}
	sub.Tickers = tickerSet(priorTickers)
	sub.UpdatedTs = time.Now()
}

// Unsubscribe sends an unsubscribe command (no "id" field, per spec.md
// §6) for one or more subscription ids, moving them to PendingUnsub.
func (m *Manager) Unsubscribe(ids []int64) error {
	m.mu.Lock()
	valid := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := m.subs[id]; ok {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		m.mu.Unlock()
		return nil
	}
	for _, id := range valid {
		m.pendingUnsubscriptions[id] = struct{}{}
		m.subs[id].State = PendingUnsub
	}
	m.reportCountsLocked()
	m.mu.Unlock()

	cmd := wire.NewUnsubscribeCmd(valid)
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("subscription: marshal unsubscribe: %w", err)
	}
	return m.pool.Send(data)
}

// OnUnsubscribed handles an "unsubscribed" frame. If the sid is a
// pending (explicit) unsubscription, it is removed and forgotten. If
// it is not — a forced/server-initiated unsubscription — the
// subscription is re-created under a fresh id with the same channel
// set, ported from _handle_forced_unsubscription_.
func (m *Manager) OnUnsubscribed(sid int64) {
	m.mu.Lock()
	if _, pending := m.pendingUnsubscriptions[sid]; pending {
		delete(m.pendingUnsubscriptions, sid)
		delete(m.subs, sid)
		m.disarmTimerLocked(sid)
		m.reportCountsLocked()
		m.mu.Unlock()
		return
	}

	sub, ok := m.subs[sid]
	if !ok {
		m.mu.Unlock()
		return
	}
	channels := append([]string(nil), sub.Channels...)
	tickers := sub.tickerList()
	allMarkets := sub.AllMarkets
	delete(m.subs, sid)
	m.disarmTimerLocked(sid)
	m.reportCountsLocked()
	m.mu.Unlock()

	m.logger.Error("forced unsubscription detected, re-subscribing", "sid", sid)
	if _, err := m.Subscribe(channels, tickers, allMarkets); err != nil {
		m.logger.Error("re-subscribe after forced unsubscription failed", "sid", sid, "error", err)
	}
}

// ResubscribeAll replays every Active subscription on the current
// active connection after a reconnect, preserving CreatedTs and
// bumping UpdatedTs. Ported from resubscribe_all.
func (m *Manager) ResubscribeAll() error {
	m.mu.Lock()
	active := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.State == Active {
			active = append(active, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range active {
		cmd := wire.NewSubscribeCmd(sub.ID, sub.Channels, sub.tickerList(), sub.AllMarkets)
		data, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("subscription: marshal resubscribe: %w", err)
		}
		if err := m.pool.Send(data); err != nil {
			return fmt.Errorf("subscription: send resubscribe: %w", err)
		}
		m.mu.Lock()
		sub.UpdatedTs = time.Now()
		m.mu.Unlock()
	}
	return nil
}

// Get returns a copy of a subscription's current state.
func (m *Manager) Get(id int64) (Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return Subscription{}, false
	}
	return *sub, true
}

// ActiveIDs returns the ids of every subscription not already pending
// unsubscription, for use by a caller unsubscribing everything at
// shutdown.
func (m *Manager) ActiveIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.subs))
	for id := range m.subs {
		if _, pending := m.pendingUnsubscriptions[id]; !pending {
			ids = append(ids, id)
		}
	}
	return ids
}
