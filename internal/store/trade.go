package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/google/uuid"

	"github.com/rickgao/kalshi-stream/internal/wire"
)

type tradeRow struct {
	TradeID      string
	MarketTicker string
	TakerSide    bool // true = yes, false = no
	YesPrice     int
	NoPrice      int
	Count        int64
	Ts           int64
	ReceivedAt   int64
}

// TradeWriter batches trade prints and flushes them to the trades
// table, adapted from the teacher's internal/writer/trade.go.
type TradeWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input chan wire.TradeMsg
	db    *pgxpool.Pool

	batch       []tradeRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   WriterMetrics
}

// NewTradeWriter creates a TradeWriter.
func NewTradeWriter(cfg WriterConfig, db *pgxpool.Pool, logger *slog.Logger) *TradeWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan wire.TradeMsg, cfg.QueueDepth),
		batch:  make([]tradeRow, 0, cfg.BatchSize),
	}
}

// OnTrade implements dispatch.HandlesTrade. Non-blocking: drops and
// counts on a full queue rather than stalling the dispatch goroutine.
func (w *TradeWriter) OnTrade(msg wire.TradeMsg) {
	select {
	case w.input <- msg:
	default:
		w.metricsMu.Lock()
		w.metrics.Dropped++
		w.metricsMu.Unlock()
	}
}

// Start begins consuming and flushing.
func (w *TradeWriter) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("trade writer started", "batch_size", w.cfg.BatchSize, "flush_interval", w.cfg.FlushInterval)
}

// Stop drains remaining work and flushes a final time.
func (w *TradeWriter) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	w.wg.Wait()
	w.flush()
	w.logger.Info("trade writer stopped")
}

// Stats returns a snapshot of the writer's counters.
func (w *TradeWriter) Stats() WriterMetrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.metrics
}

func (w *TradeWriter) consumeLoop() {
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

func (w *TradeWriter) flushLoop() {
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

// handle transforms and buffers one trade print. The wire protocol
// doesn't carry a trade id, unlike the teacher's upstream feed, so a
// random one is minted here for the trade_id conflict key. Each call
// mints a new id, so the conflict key does not deduplicate a trade
// frame replayed after a reconnect.
func (w *TradeWriter) handle(msg wire.TradeMsg) {
	row := tradeRow{
		TradeID:      uuid.NewString(),
		MarketTicker: msg.MarketTicker,
		TakerSide:    sideToBoolean(msg.TakerSide),
		YesPrice:     msg.YesPrice,
		NoPrice:      msg.NoPrice,
		Count:        msg.Count,
		Ts:           msg.Ts,
		ReceivedAt:   time.Now().UnixMicro(),
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

func (w *TradeWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]tradeRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	conflicts, err := w.batchInsert(batch)
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	if err != nil {
		w.logger.Error("trade batch insert failed", "error", err, "count", len(batch))
		w.metrics.Errors++
		return
	}
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
}

func (w *TradeWriter) batchInsert(rows []tradeRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO trades (trade_id, market_ticker, taker_side, yes_price, no_price, count, ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (trade_id) DO NOTHING
		`, r.TradeID, r.MarketTicker, r.TakerSide, r.YesPrice, r.NoPrice, r.Count, r.Ts, r.ReceivedAt)
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
