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

type tickerRow struct {
	MarketTicker       string
	Price              int
	YesBid             int
	YesAsk             int
	Volume             int64
	OpenInterest       int64
	DollarVolume       int64
	DollarOpenInterest int64
	Ts                 int64
	ReceivedAt         int64
}

// TickerWriter batches ticker updates and flushes them to the tickers
// table, adapted from the teacher's internal/writer/ticker.go: the
// input is now a plain buffered channel fed by dispatch.HandlesTick
// instead of a router.GrowableBuffer.
type TickerWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input chan wire.TickerMsg
	db    *pgxpool.Pool

	batch       []tickerRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   WriterMetrics
}

// NewTickerWriter creates a TickerWriter. Call OnTick (directly, or
// via a Fanout) to feed it and Start to begin flushing.
func NewTickerWriter(cfg WriterConfig, db *pgxpool.Pool, logger *slog.Logger) *TickerWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TickerWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan wire.TickerMsg, cfg.QueueDepth),
		batch:  make([]tickerRow, 0, cfg.BatchSize),
	}
}

// OnTick implements dispatch.HandlesTick by enqueueing msg for the
// background flush loop. Non-blocking: a full queue drops the message
// and counts it rather than stalling the dispatch goroutine.
func (w *TickerWriter) OnTick(msg wire.TickerMsg) {
	select {
	case w.input <- msg:
	default:
		w.metricsMu.Lock()
		w.metrics.Dropped++
		w.metricsMu.Unlock()
	}
}

// Start begins consuming and flushing.
func (w *TickerWriter) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("ticker writer started", "batch_size", w.cfg.BatchSize, "flush_interval", w.cfg.FlushInterval)
}

// Stop drains remaining work and flushes a final time.
func (w *TickerWriter) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	w.wg.Wait()
	w.flush()
	w.logger.Info("ticker writer stopped")
}

// Stats returns a snapshot of the writer's counters.
func (w *TickerWriter) Stats() WriterMetrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.metrics
}

func (w *TickerWriter) consumeLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.input:
			w.handle(msg)
		}
	}
}

func (w *TickerWriter) flushLoop() {
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

func (w *TickerWriter) handle(msg wire.TickerMsg) {
	row := tickerRow{
		MarketTicker:       msg.MarketTicker,
		Price:              msg.Price,
		YesBid:             msg.YesBid,
		YesAsk:             msg.YesAsk,
		Volume:             msg.Volume,
		OpenInterest:       msg.OpenInterest,
		DollarVolume:       msg.DollarVolume,
		DollarOpenInterest: msg.DollarOpenInterest,
		Ts:                 msg.Ts,
		ReceivedAt:         time.Now().UnixMicro(),
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

func (w *TickerWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]tickerRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	conflicts, err := w.batchInsert(batch)
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	if err != nil {
		w.logger.Error("ticker batch insert failed", "error", err, "count", len(batch))
		w.metrics.Errors++
		return
	}
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
}

func (w *TickerWriter) batchInsert(rows []tickerRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO tickers (market_ticker, price, yes_bid, yes_ask, volume, open_interest, dollar_volume, dollar_open_interest, ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (market_ticker, ts) DO NOTHING
		`, r.MarketTicker, r.Price, r.YesBid, r.YesAsk, r.Volume, r.OpenInterest, r.DollarVolume, r.DollarOpenInterest, r.Ts, r.ReceivedAt)
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
