// Package database provides connection pool management for the
// optional Postgres persistence sink internal/store writes to.
//
// The streaming client has no time-series database of its own; the
// single pool here holds whatever table set internal/store's writers
// target (trades, orderbook deltas/snapshots, tickers).
package database
