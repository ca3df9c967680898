// Package connection provides the WebSocket connection factory and the
// single-connection client used by the pool (spec.md §4.2). It knows
// how to dial, read, write, and keep one socket alive; it knows
// nothing about which connection is "active" or how subscriptions are
// tracked — that lives in internal/pool and internal/subscription.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrNotConnected    = errors.New("connection: not connected")
	ErrStaleConnection = errors.New("connection: stale (no ping)")
	ErrAlreadyClosed   = errors.New("connection: already closed")
)

// ErrConnectFailed wraps a dial failure with its cause, per spec.md §7.
type ErrConnectFailed struct {
	Cause error
}

func (e *ErrConnectFailed) Error() string { return fmt.Sprintf("connection: connect failed: %v", e.Cause) }
func (e *ErrConnectFailed) Unwrap() error { return e.Cause }

// Dial opens a WebSocket connection with the given headers already
// attached (the caller is responsible for generating fresh signature
// headers per dial; a signature is timestamped and must not be reused
// across reconnects).
func Dial(ctx context.Context, uri string, headers http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, uri, headers)
	if err != nil {
		return nil, &ErrConnectFailed{Cause: err}
	}
	return conn, nil
}

// TimestampedMessage wraps raw message data with the time it was
// received locally.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a single Client.
type ClientConfig struct {
	PingTimeout  time.Duration // max time without ping/pong before stale
	WriteTimeout time.Duration // write deadline for sends
	BufferSize   int           // message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   4096,
	}
}

// Client wraps one already-dialed *websocket.Conn with read/write
// serialization, ping/pong bookkeeping, and message/error fan-out
// channels. It does not dial itself — the pool calls Dial and hands
// the resulting socket to NewClient, since the pool (not the client)
// owns reconnect/id-preservation policy.
type Client struct {
	cfg ClientConfig

	conn *websocket.Conn

	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}
	doneOnce sync.Once

	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	lastPingAt time.Time
	closed     bool
}

// NewClient wraps an established connection and starts its read and
// heartbeat loops.
func NewClient(conn *websocket.Conn, cfg ClientConfig) *Client {
	c := &Client{
		cfg:        cfg,
		conn:       conn,
		messages:   make(chan TimestampedMessage, cfg.BufferSize),
		errors:     make(chan error, 1),
		done:       make(chan struct{}),
		connected:  true,
		lastPingAt: time.Now(),
	}

	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()

		c.writeMu.Lock()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		return err
	})
	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	return c
}

// Close gracefully closes the underlying connection. Safe to call
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	c.doneOnce.Do(func() { close(c.done) })

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}

// Send writes raw bytes to the connection.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends an application-level ping control frame and returns the
// round-trip time, blocking until the pong handler fires or the
// deadline passes. The pool's RTT monitor calls this directly rather
// than measuring the passive ping/pong exchange, since Kalshi's server
// does not ping on a fixed cadence.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if !connected {
		return 0, ErrNotConnected
	}

	start := time.Now()
	done := make(chan error, 1)
	c.conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()
		select {
		case done <- nil:
		default:
		}
		return nil
	})

	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.PingMessage, []byte("rtt"), time.Now().Add(timeout))
	c.writeMu.Unlock()
	if err != nil {
		return 0, err
	}

	select {
	case <-done:
		return time.Since(start), nil
	case <-time.After(timeout):
		return 0, fmt.Errorf("connection: ping timed out after %s", timeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.done:
		return 0, ErrAlreadyClosed
	}
}

// Messages returns the channel of inbound raw frames.
func (c *Client) Messages() <-chan TimestampedMessage { return c.messages }

// Errors returns the channel of terminal connection errors. At most
// one error is ever sent before the connection is considered dead.
func (c *Client) Errors() <-chan error { return c.errors }

// IsConnected reports the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		msg := TimestampedMessage{Data: data, ReceivedAt: receivedAt}
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if time.Since(lastPing) > c.cfg.PingTimeout {
				select {
				case c.errors <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
