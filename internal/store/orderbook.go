package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/kalshi-stream/internal/wire"
)

type orderbookSnapshotRow struct {
	MarketTicker string
	Seq          int64
	Yes          []byte // JSONB
	No           []byte // JSONB
	ReceivedAt   int64
}

type orderbookDeltaRow struct {
	MarketTicker string
	Seq          int64
	Side         bool // true = yes, false = no
	Price        int
	Delta        int
	ReceivedAt   int64
}

// OrderbookWriter persists raw snapshot and delta frames verbatim,
// independent of the Book Engine's sequence-gap bookkeeping: it
// records exchange truth as it arrives, adapted from the teacher's
// internal/writer/orderbook.go. ApplySnapshot/ApplyDelta never reject
// a frame — validity checking belongs to the Book Engine this writer
// is fanned out alongside, not duplicated here.
type OrderbookWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	snapshots chan wire.OrderbookSnapshotMsg
	deltas    chan wire.OrderbookDeltaMsg
	db        *pgxpool.Pool

	snapshotBatch []orderbookSnapshotRow
	deltaBatch    []orderbookDeltaRow
	batchMu       sync.Mutex
	flushTicker   *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   WriterMetrics
}

// NewOrderbookWriter creates an OrderbookWriter.
func NewOrderbookWriter(cfg WriterConfig, db *pgxpool.Pool, logger *slog.Logger) *OrderbookWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderbookWriter{
		cfg:           cfg,
		db:            db,
		logger:        logger,
		snapshots:     make(chan wire.OrderbookSnapshotMsg, cfg.QueueDepth),
		deltas:        make(chan wire.OrderbookDeltaMsg, cfg.QueueDepth),
		snapshotBatch: make([]orderbookSnapshotRow, 0, cfg.BatchSize),
		deltaBatch:    make([]orderbookDeltaRow, 0, cfg.BatchSize),
	}
}

// ApplySnapshot implements dispatch.HandlesBookUpdate by enqueueing
// the frame for persistence. Always returns nil.
func (w *OrderbookWriter) ApplySnapshot(msg wire.OrderbookSnapshotMsg) error {
	select {
	case w.snapshots <- msg:
	default:
		w.metricsMu.Lock()
		w.metrics.Dropped++
		w.metricsMu.Unlock()
	}
	return nil
}

// ApplyDelta implements dispatch.HandlesBookUpdate by enqueueing the
// frame for persistence. Always returns nil.
func (w *OrderbookWriter) ApplyDelta(msg wire.OrderbookDeltaMsg) error {
	select {
	case w.deltas <- msg:
	default:
		w.metricsMu.Lock()
		w.metrics.Dropped++
		w.metricsMu.Unlock()
	}
	return nil
}

// Start begins consuming and flushing.
func (w *OrderbookWriter) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(3)
	go w.consumeSnapshots()
	go w.consumeDeltas()
	go w.flushLoop()

	w.logger.Info("orderbook writer started", "batch_size", w.cfg.BatchSize, "flush_interval", w.cfg.FlushInterval)
}

// Stop drains remaining work and flushes a final time.
func (w *OrderbookWriter) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	w.wg.Wait()
	w.flush()
	w.logger.Info("orderbook writer stopped")
}

// Stats returns a snapshot of the writer's counters.
func (w *OrderbookWriter) Stats() WriterMetrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.metrics
}

func (w *OrderbookWriter) consumeSnapshots() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.snapshots:
			w.handleSnapshot(msg)
		}
	}
}

func (w *OrderbookWriter) consumeDeltas() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.deltas:
			w.handleDelta(msg)
		}
	}
}

func (w *OrderbookWriter) flushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func (w *OrderbookWriter) handleSnapshot(msg wire.OrderbookSnapshotMsg) {
	var seq int64
	if msg.Seq != nil {
		seq = *msg.Seq
	}
	row := orderbookSnapshotRow{
		MarketTicker: msg.MarketTicker,
		Seq:          seq,
		Yes:          levelsToJSONB(msg.Yes),
		No:           levelsToJSONB(msg.No),
		ReceivedAt:   time.Now().UnixMicro(),
	}

	w.batchMu.Lock()
	w.snapshotBatch = append(w.snapshotBatch, row)
	shouldFlush := len(w.snapshotBatch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

func (w *OrderbookWriter) handleDelta(msg wire.OrderbookDeltaMsg) {
	var seq int64
	if msg.Seq != nil {
		seq = *msg.Seq
	}
	row := orderbookDeltaRow{
		MarketTicker: msg.MarketTicker,
		Seq:          seq,
		Side:         sideToBoolean(msg.Side),
		Price:        msg.Price,
		Delta:        msg.Delta,
		ReceivedAt:   time.Now().UnixMicro(),
	}

	w.batchMu.Lock()
	w.deltaBatch = append(w.deltaBatch, row)
	shouldFlush := len(w.deltaBatch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

func (w *OrderbookWriter) flush() {
	w.batchMu.Lock()
	snapshots := w.snapshotBatch
	deltas := w.deltaBatch
	w.snapshotBatch = make([]orderbookSnapshotRow, 0, w.cfg.BatchSize)
	w.deltaBatch = make([]orderbookDeltaRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if len(snapshots) == 0 && len(deltas) == 0 {
		return
	}

	sConflicts, err := w.insertSnapshots(snapshots)
	w.metricsMu.Lock()
	if err != nil {
		w.logger.Error("orderbook snapshot batch insert failed", "error", err, "count", len(snapshots))
		w.metrics.Errors++
	} else if len(snapshots) > 0 {
		w.metrics.Inserts += int64(len(snapshots) - sConflicts)
		w.metrics.Conflicts += int64(sConflicts)
		w.metrics.Flushes++
	}
	w.metricsMu.Unlock()

	dConflicts, err := w.insertDeltas(deltas)
	w.metricsMu.Lock()
	if err != nil {
		w.logger.Error("orderbook delta batch insert failed", "error", err, "count", len(deltas))
		w.metrics.Errors++
	} else if len(deltas) > 0 {
		w.metrics.Inserts += int64(len(deltas) - dConflicts)
		w.metrics.Conflicts += int64(dConflicts)
		w.metrics.Flushes++
	}
	w.metricsMu.Unlock()
}

func (w *OrderbookWriter) insertSnapshots(rows []orderbookSnapshotRow) (conflicts int, err error) {
	if len(rows) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO orderbook_snapshots (market_ticker, seq, yes, no, received_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (market_ticker, seq) DO NOTHING
		`, r.MarketTicker, r.Seq, r.Yes, r.No, r.ReceivedAt)
	}
	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()
	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}

func (w *OrderbookWriter) insertDeltas(rows []orderbookDeltaRow) (conflicts int, err error) {
	if len(rows) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO orderbook_deltas (market_ticker, seq, side, price, delta, received_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (market_ticker, seq, side) DO NOTHING
		`, r.MarketTicker, r.Seq, r.Side, r.Price, r.Delta, r.ReceivedAt)
	}
	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()
	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
