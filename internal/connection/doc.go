// Package connection implements the connection factory and single-socket
// client used by internal/pool (spec.md §4.2):
//   - Dial opens one authenticated WebSocket.
//   - Client wraps an open socket with read/write serialization, ping/pong
//     bookkeeping, and message/error fan-out channels.
//
// It has no notion of "the pool" or "the active connection" — that
// policy lives in internal/pool.
package connection
