// Package pool implements the latency-ranked WebSocket connection pool
// (spec.md §4.3), a direct structural port of the original's WsPool
// (original_source/packages/kalshi/src/kalshi/ws/pool.py) into the
// goroutine/channel idiom the teacher's internal/connection/manager.go
// uses for per-connection lifecycle management.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/kalshi-stream/internal/connection"
	"github.com/rickgao/kalshi-stream/internal/metrics"
)

// Pool-wide constants, ported verbatim from ws/pool.py.
const (
	DequeMaxLen    = 10
	PingInterval   = 10 * time.Second
	ReconnectDelay = 5 * time.Second
	WarmupTime     = 100 * time.Second
)

var (
	// ErrNoConnections is returned when the pool has no healthy
	// connection to hand out.
	ErrNoConnections = errors.New("pool: no active connection")
	// ErrUnknownConnection is returned by Reconnect for an id the pool
	// does not manage.
	ErrUnknownConnection = errors.New("pool: unknown connection id")
)

// HeaderFunc produces a fresh set of auth headers for one dial. It is
// called once per connection attempt since a Kalshi signature is
// timestamped and must not be reused across reconnects.
type HeaderFunc func() (http.Header, error)

// Config configures the pool.
type Config struct {
	NConnections int
	URI          string
	Headers      HeaderFunc
	ClientConfig connection.ClientConfig

	PingInterval   time.Duration
	ReconnectDelay time.Duration
	WarmupTime     time.Duration
	PingTimeout    time.Duration
	DequeMaxLen    int
}

// DefaultConfig returns the pool defaults from spec.md §4.3.
func DefaultConfig() Config {
	return Config{
		NConnections:   3,
		ClientConfig:   connection.DefaultClientConfig(),
		PingInterval:   PingInterval,
		ReconnectDelay: ReconnectDelay,
		WarmupTime:     WarmupTime,
		PingTimeout:    5 * time.Second,
		DequeMaxLen:    DequeMaxLen,
	}
}

type pooledConn struct {
	id         int
	mu         sync.Mutex // guards client/latencies replacement on reconnect
	client     *connection.Client
	latencies  *ringBuffer
	usageCount atomic.Int64
}

// Pool is a latency-ranked set of WebSocket connections to one URI.
// n_connections sockets are dialed at Run, each independently pinged
// and latency-tracked; the connection with the lowest mean RTT after a
// warm-up period is elected active. Dead connections are replaced in
// place (same id); the first redial is immediate and a fixed reconnect
// delay separates failed attempts.
type Pool struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Registry

	mu       sync.RWMutex
	conns    map[int]*pooledConn
	activeID int // 0 means "none elected yet"

	messages chan connection.TimestampedMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a pool. Call Run to dial and start monitoring.
func New(cfg Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = PingInterval
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = ReconnectDelay
	}
	if cfg.WarmupTime == 0 {
		cfg.WarmupTime = WarmupTime
	}
	if cfg.DequeMaxLen == 0 {
		cfg.DequeMaxLen = DequeMaxLen
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 5 * time.Second
	}

	return &Pool{
		cfg:      cfg,
		logger:   logger,
		conns:    make(map[int]*pooledConn),
		messages: make(chan connection.TimestampedMessage, 4096),
	}
}

func (p *Pool) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	if p.cfg.Headers != nil {
		h, err := p.cfg.Headers()
		if err != nil {
			return nil, fmt.Errorf("pool: generate auth headers: %w", err)
		}
		headers = h
	}
	return connection.Dial(ctx, p.cfg.URI, headers)
}

// warmup dials and immediately closes a throwaway connection, mirroring
// _initialize_dummy_connection: the first dial after process start pays
// TLS/DNS/handshake setup costs the real connections shouldn't have to.
func (p *Pool) warmup(ctx context.Context) error {
	conn, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("pool: warmup dial: %w", err)
	}
	p.logger.Info("pool warmup connection established, closing")
	return conn.Close()
}

// Run dials n_connections sockets with randomized ids, starts a
// per-connection ping/reconnect monitor for each, waits warmup_time,
// then elects the lowest-latency connection active. Run blocks until
// election completes; monitoring continues in the background until ctx
// is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	if err := p.warmup(p.ctx); err != nil {
		return err
	}

	ids := make([]int, p.cfg.NConnections)
	for i := range ids {
		ids[i] = i + 1
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	var g errgroup.Group
	results := make([]*websocket.Conn, p.cfg.NConnections)
	for i := 0; i < p.cfg.NConnections; i++ {
		i := i
		g.Go(func() error {
			conn, err := p.dial(p.ctx)
			if err != nil {
				return err
			}
			results[i] = conn
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pool: initial dial: %w", err)
	}

	p.mu.Lock()
	for i, conn := range results {
		id := ids[i]
		pc := &pooledConn{
			id:        id,
			client:    connection.NewClient(conn, p.cfg.ClientConfig),
			latencies: newRingBuffer(p.cfg.DequeMaxLen),
		}
		p.conns[id] = pc
		p.logger.Info("pool connection established", "conn_id", id)
	}
	p.mu.Unlock()

	for id := range p.conns {
		p.wg.Add(1)
		go p.monitor(id)
	}

	select {
	case <-time.After(p.cfg.WarmupTime):
	case <-p.ctx.Done():
		return p.ctx.Err()
	}

	p.elect()
	return nil
}

// Stop cancels all connection monitors and closes every socket.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.RLock()
	conns := make([]*pooledConn, 0, len(p.conns))
	for _, pc := range p.conns {
		conns = append(conns, pc)
	}
	p.mu.RUnlock()

	for _, pc := range conns {
		pc.mu.Lock()
		_ = pc.client.Close()
		pc.mu.Unlock()
	}
	p.wg.Wait()
}

// monitor runs for the lifetime of one connection id: it pings every
// PingInterval, records latency samples, and reconnects (same id) on
// ping failure or a reported connection error. It uses its own
// errgroup so a ping/reconnect failure on this connection never
// touches the monitor goroutines of its siblings, mirroring one
// asyncio.create_task per connection in the original.
func (p *Pool) monitor(id int) {
	defer p.wg.Done()

	var g errgroup.Group
	g.Go(func() error {
		p.pingLoop(id)
		return nil
	})
	g.Go(func() error {
		p.forwardLoop(id)
		return nil
	})
	_ = g.Wait()
}

func (p *Pool) pingLoop(id int) {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.mu.RLock()
			pc, ok := p.conns[id]
			p.mu.RUnlock()
			if !ok {
				return
			}

			pc.mu.Lock()
			client := pc.client
			pc.mu.Unlock()

			pc.usageCount.Add(1)
			rtt, err := client.Ping(p.ctx, p.cfg.PingTimeout)
			if err != nil {
				p.logger.Warn("pool ping failed, reconnecting", "conn_id", id, "error", err)
				p.metrics.IncPoolReconnect("ping_failure")
				if rerr := p.reconnectLoop(id); rerr != nil {
					return // pool shutting down
				}
				continue
			}

			pc.mu.Lock()
			pc.latencies.push(rtt.Seconds())
			pc.mu.Unlock()
			p.metrics.ObservePoolRTT(rtt.Seconds())

			p.maybeReelect(id)
		}
	}
}

// forwardLoop relays messages from one connection into the pool-wide
// messages channel, but only while that connection is the active one;
// stale connections' leftover traffic is dropped. A terminal error is
// not relayed: it starts reconnectLoop for that id instead.
func (p *Pool) forwardLoop(id int) {
	p.mu.RLock()
	pc, ok := p.conns[id]
	p.mu.RUnlock()
	if !ok {
		return
	}

	pc.mu.Lock()
	client := pc.client
	pc.mu.Unlock()

	for {
		select {
		case <-p.ctx.Done():
			return
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			if p.ActiveID() == id {
				select {
				case p.messages <- msg:
				case <-p.ctx.Done():
					return
				}
			}
		case err, ok := <-client.Errors():
			if !ok {
				return
			}
			p.logger.Warn("pool connection error, reconnecting", "conn_id", id, "error", err)
			p.metrics.IncPoolReconnect("read_error")
			// reconnectLoop starts a fresh forwardLoop for this id on
			// success; this goroutine's work is done either way.
			p.reconnectLoop(id)
			return
		}
	}
}

// reconnectLoop closes and redials connection id in place, retrying
// every ReconnectDelay until it succeeds or the pool is stopped.
// Ported from _reconnect_connection_.
func (p *Pool) reconnectLoop(id int) error {
	p.mu.RLock()
	pc, ok := p.conns[id]
	p.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}

	pc.mu.Lock()
	_ = pc.client.Close()
	pc.mu.Unlock()

	for {
		select {
		case <-p.ctx.Done():
			return p.ctx.Err()
		default:
		}

		conn, err := p.dial(p.ctx)
		if err != nil {
			p.logger.Error("pool reconnect failed, retrying", "conn_id", id, "error", err, "delay", p.cfg.ReconnectDelay)
			select {
			case <-time.After(p.cfg.ReconnectDelay):
				continue
			case <-p.ctx.Done():
				return p.ctx.Err()
			}
		}

		pc.mu.Lock()
		pc.client = connection.NewClient(conn, p.cfg.ClientConfig)
		pc.latencies.reset()
		pc.mu.Unlock()

		p.logger.Info("pool reconnect succeeded", "conn_id", id)
		go p.forwardLoop(id)
		return nil
	}
}

// Reconnect forces connection id to redial immediately, used by the
// subscription manager when a confirmation timeout escalates (spec.md
// §4.4's last bullet).
func (p *Pool) Reconnect(id int) error {
	p.mu.RLock()
	_, ok := p.conns[id]
	p.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}
	p.metrics.IncPoolReconnect("forced")
	return p.reconnectLoop(id)
}

// SetMetrics attaches a metrics registry the pool reports connection
// counts, elections, reconnects and RTT samples to. Passing nil (the
// zero value) disables reporting; safe to call before Run.
func (p *Pool) SetMetrics(m *metrics.Registry) {
	p.metrics = m
}

// meanLatency returns a connection's mean RTT in seconds, or +Inf if it
// has no samples yet (matching the original's "empty deque = infinite
// latency" tie-break so a never-pinged connection is never elected
// over one with real samples).
func (p *Pool) meanLatency(id int) float64 {
	p.mu.RLock()
	pc, ok := p.conns[id]
	p.mu.RUnlock()
	if !ok {
		return math.Inf(1)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	mean, ok := pc.latencies.mean()
	if !ok {
		return math.Inf(1)
	}
	return mean
}

// elect picks the connection with the lowest mean latency as active.
func (p *Pool) elect() {
	p.mu.RLock()
	ids := make([]int, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	best := 0
	bestLatency := math.Inf(1)
	for _, id := range ids {
		l := p.meanLatency(id)
		if l < bestLatency {
			bestLatency = l
			best = id
		}
	}

	if best == 0 {
		return
	}

	p.mu.Lock()
	changed := p.activeID != best
	p.activeID = best
	p.mu.Unlock()

	if changed {
		p.logger.Info("pool elected connection", "conn_id", best, "mean_rtt_seconds", bestLatency)
		p.metrics.IncPoolElection()
		p.metrics.SetPoolConnections("active", 1)
		p.metrics.SetPoolConnections("standby", len(ids)-1)
	}
}

// maybeReelect re-runs election whenever a fresh sample lands for the
// currently active connection, rather than on a fixed timer, so a
// degrading active connection is demoted promptly.
func (p *Pool) maybeReelect(sampledID int) {
	if p.ActiveID() == sampledID {
		p.elect()
	}
}

// ActiveID returns the currently elected connection id, or 0 if none
// has been elected yet.
func (p *Pool) ActiveID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.activeID
}

// ActiveConnection returns the client for the currently elected
// connection.
func (p *Pool) ActiveConnection() (id int, client *connection.Client, ok bool) {
	p.mu.RLock()
	activeID := p.activeID
	p.mu.RUnlock()
	if activeID == 0 {
		return 0, nil, false
	}

	p.mu.RLock()
	pc, exists := p.conns[activeID]
	p.mu.RUnlock()
	if !exists {
		return 0, nil, false
	}

	pc.mu.Lock()
	client = pc.client
	pc.mu.Unlock()
	return activeID, client, true
}

// Send writes a frame on the active connection.
func (p *Pool) Send(data []byte) error {
	_, client, ok := p.ActiveConnection()
	if !ok {
		return ErrNoConnections
	}
	return client.Send(data)
}

// Messages returns the pool-wide stream of frames received on whichever
// connection is currently active.
func (p *Pool) Messages() <-chan connection.TimestampedMessage { return p.messages }

// UsageCounts returns the number of ping attempts issued per connection
// id, the Go analog of the original's usage_counts diagnostic logged at
// the end of run().
func (p *Pool) UsageCounts() map[int]int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[int]int64, len(p.conns))
	for id, pc := range p.conns {
		out[id] = pc.usageCount.Load()
	}
	return out
}
