// Package store is the optional downstream persistence sink: batched
// Postgres writers for ticks, trades and order book updates, adapted
// from the teacher's internal/writer package. It exists purely as a
// collaborator on the event stream spec.md §1 leaves out of core
// scope; the book/tick/trade/lifecycle handlers run identically
// whether or not a store is configured.
//
// Every writer batches rows in memory and flushes on whichever comes
// first: BatchSize rows accumulated, or FlushInterval elapsed. Rows
// use append-only INSERT ... ON CONFLICT DO NOTHING semantics. Ticker
// and order book rows are keyed on fields of the frame itself, so a
// replayed frame (e.g. after a reconnect-triggered resubscribe) does
// not produce a duplicate row; trade rows are keyed on a random id
// minted per print, so a replayed trade frame is stored again.
package store
