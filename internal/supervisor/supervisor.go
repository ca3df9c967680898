// Package supervisor is the orchestration root for a stream client
// instance: it wires the connection pool, subscription manager,
// dispatcher, and handler stores together and drives boot, the
// steady-state run loops, and graceful shutdown (spec.md §4.8).
//
// Grounded on the teacher's cmd/gatherer/main.go boot sequence (build
// signer/config, build REST client, build registry, build
// manager/router/writers, run) generalized to the three concurrent
// loops this client actually needs.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/kalshi-stream/internal/api"
	"github.com/rickgao/kalshi-stream/internal/auth"
	"github.com/rickgao/kalshi-stream/internal/book"
	"github.com/rickgao/kalshi-stream/internal/config"
	"github.com/rickgao/kalshi-stream/internal/database"
	"github.com/rickgao/kalshi-stream/internal/dispatch"
	"github.com/rickgao/kalshi-stream/internal/lifecycle"
	"github.com/rickgao/kalshi-stream/internal/metrics"
	"github.com/rickgao/kalshi-stream/internal/pool"
	"github.com/rickgao/kalshi-stream/internal/store"
	"github.com/rickgao/kalshi-stream/internal/subscription"
	"github.com/rickgao/kalshi-stream/internal/tick"
	"github.com/rickgao/kalshi-stream/internal/trade"
)

// Supervisor owns the full set of live components for one stream
// client instance and the background loops that keep them current.
type Supervisor struct {
	cfg    config.StreamConfig
	logger *slog.Logger

	creds *auth.Credentials
	api   *api.Client

	pool    *pool.Pool
	manager *subscription.Manager
	disp    *dispatch.Dispatcher

	book      *book.Engine
	ticks     *tick.Store
	trades    *trade.Store
	lifecycle *lifecycle.Store

	metrics    *metrics.Registry
	metricsSrv *http.Server

	tickerWriter    *store.TickerWriter
	tradeWriter     *store.TradeWriter
	orderbookWriter *store.OrderbookWriter

	lastStatus     Status
	subscriptionID int64
}

// New builds every component from cfg but starts nothing. Credential
// loading happens here since pool.Config's HeaderFunc needs a signer
// on hand before the pool ever dials.
func New(ctx context.Context, cfg config.StreamConfig, logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	creds, err := auth.LoadCredentials(cfg.API.APIKey, cfg.API.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("supervisor: load credentials: %w", err)
	}
	creds.Email = cfg.API.Email
	creds.Password = cfg.API.Password

	apiClient := api.NewClient(
		cfg.API.RestURL,
		cfg.API.APIKey,
		creds.PrivateKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	s := &Supervisor{
		cfg:       cfg,
		logger:    logger,
		creds:     creds,
		api:       apiClient,
		ticks:     tick.NewStore(),
		trades:    trade.NewStore(),
		lifecycle: lifecycle.NewStore(),
	}

	if cfg.Metrics.Port > 0 {
		s.metrics = metrics.New()
	}

	s.book = book.NewEngine(s.onSequenceGap)

	poolCfg := pool.DefaultConfig()
	poolCfg.NConnections = cfg.Pool.Connections
	poolCfg.URI = cfg.API.WSURL
	poolCfg.Headers = s.signWebSocketHeaders
	if cfg.Pool.PingInterval > 0 {
		poolCfg.PingInterval = cfg.Pool.PingInterval
	}
	if cfg.Pool.PingTimeout > 0 {
		poolCfg.PingTimeout = cfg.Pool.PingTimeout
	}
	if cfg.Pool.ReconnectDelay > 0 {
		poolCfg.ReconnectDelay = cfg.Pool.ReconnectDelay
	}
	if cfg.Pool.WarmupTime > 0 {
		poolCfg.WarmupTime = cfg.Pool.WarmupTime
	}
	if cfg.Pool.DequeMaxLen > 0 {
		poolCfg.DequeMaxLen = cfg.Pool.DequeMaxLen
	}
	s.pool = pool.New(poolCfg, logger)
	s.pool.SetMetrics(s.metrics)

	s.manager = subscription.NewManager(s.pool, cfg.Subscription.ConfirmationTimeout, logger)
	s.manager.SetMetrics(s.metrics)

	handlers := dispatch.Handlers{
		Book:         s.book,
		Tick:         s.ticks,
		Trade:        s.trades,
		Lifecycle:    s.lifecycle,
		Subscription: s.manager,
	}

	if cfg.Store.Enabled {
		db, err := database.Connect(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, fmt.Errorf("supervisor: connect store database: %w", err)
		}
		writerCfg := store.DefaultWriterConfig()
		s.tickerWriter = store.NewTickerWriter(writerCfg, db, logger)
		s.tradeWriter = store.NewTradeWriter(writerCfg, db, logger)
		s.orderbookWriter = store.NewOrderbookWriter(writerCfg, db, logger)

		handlers.Tick = store.TickFanout{Primary: s.ticks, Secondary: s.tickerWriter}
		handlers.Trade = store.TradeFanout{Primary: s.trades, Secondary: s.tradeWriter}
		handlers.Book = store.BookFanout{Primary: s.book, Secondary: s.orderbookWriter}
	}

	s.disp = dispatch.New(handlers, logger)
	s.disp.SetMetrics(s.metrics)

	return s, nil
}

func (s *Supervisor) signWebSocketHeaders() (http.Header, error) {
	h, err := s.creds.SignWebSocket()
	if err != nil {
		return nil, err
	}
	headers := make(http.Header, len(h))
	for k, v := range h {
		headers.Set(k, v)
	}
	return headers, nil
}

// onSequenceGap is the book engine's onGap callback: it requests a
// fresh snapshot for the desynced ticker by resubscribing its
// orderbook channel under a new id, the implementation-defined
// recovery path spec.md leaves open.
func (s *Supervisor) onSequenceGap(ticker string) {
	if _, err := s.manager.Subscribe([]string{"orderbook_delta"}, []string{ticker}, false); err != nil {
		s.logger.Error("resnapshot subscribe failed", "ticker", ticker, "error", err)
	}
}

// Boot dials the pool, waits for warm-up and election, and subscribes
// to the channels/tickers named in config.
func (s *Supervisor) Boot(ctx context.Context) error {
	if err := s.pool.Run(ctx); err != nil {
		return fmt.Errorf("supervisor: pool run: %w", err)
	}

	if len(s.cfg.Subscription.Channels) > 0 {
		id, err := s.manager.Subscribe(s.cfg.Subscription.Channels, s.cfg.Subscription.Tickers, s.cfg.Subscription.AllMarkets)
		if err != nil {
			return fmt.Errorf("supervisor: initial subscribe: %w", err)
		}
		s.logger.Info("initial subscription sent", "id", id, "channels", s.cfg.Subscription.Channels)
		s.subscriptionID = id
	}

	if s.metrics != nil {
		s.startMetricsServer()
	}
	if s.tickerWriter != nil {
		s.tickerWriter.Start(ctx)
		s.tradeWriter.Start(ctx)
		s.orderbookWriter.Start(ctx)
	}

	return nil
}

func (s *Supervisor) startMetricsServer() {
	path := s.cfg.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, s.metrics.Handler())
	s.metricsSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
}

// Run fans out the dispatch loop plus the config-refresh and
// status-poll background loops, and blocks until ctx is cancelled or
// one of them returns an error.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.disp.Run(ctx, s.pool.Messages())
		return nil
	})

	g.Go(func() error {
		return s.statusPollLoop(ctx)
	})

	if s.cfg.Subscription.RefreshInterval > 0 {
		g.Go(func() error {
			return s.configRefreshLoop(ctx)
		})
	}

	return g.Wait()
}

// Shutdown unsubscribes everything, stops the dispatcher and the pool,
// and drains the optional persistence writers. The status-poll and
// config-refresh loops end when Run's context is cancelled; Shutdown
// does not stop them itself. Handler stores need no
// draining beyond context cancellation since they hold no background
// goroutines.
func (s *Supervisor) Shutdown(ctx context.Context) {
	ids := s.manager.ActiveIDs()
	if len(ids) > 0 {
		if err := s.manager.Unsubscribe(ids); err != nil {
			s.logger.Error("unsubscribe on shutdown failed", "error", err)
		}
	}

	s.disp.Stop()
	s.pool.Stop()

	if s.metricsSrv != nil {
		_ = s.metricsSrv.Shutdown(ctx)
	}
	if s.tickerWriter != nil {
		s.tickerWriter.Stop()
		s.tradeWriter.Stop()
		s.orderbookWriter.Stop()
	}
}
