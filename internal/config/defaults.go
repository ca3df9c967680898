package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL  = "https://api.elections.kalshi.com/trade-api/v2"
	DefaultWSURL    = "wss://api.elections.kalshi.com"
	DefaultTimeout  = 30 * time.Second
	DefaultRetries  = 3
	DefaultDBPort   = 5432
	DefaultSSLMode  = "prefer"
	DefaultMaxConns = 10
	DefaultMinConns = 2

	DefaultPoolConnections    = 4
	DefaultPingInterval       = 10 * time.Second
	DefaultPingTimeout        = 5 * time.Second
	DefaultReconnectDelay     = 5 * time.Second
	DefaultWarmupTime         = 100 * time.Second
	DefaultDequeMaxLen        = 10
	DefaultConfirmationWindow = 10 * time.Second
	DefaultRefreshInterval    = 900 * time.Second

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
)

func (c *StreamConfig) applyDefaults() {
	if len(c.Subscription.Tickers) > 0 {
		c.Subscription.Tickers = NormalizeTickers(c.Subscription.Tickers)
	}
	if len(c.Subscription.Channels) > 0 {
		c.Subscription.Channels = NormalizeChannels(c.Subscription.Channels)
	}

	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultTimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultRetries
	}

	if c.Pool.Connections == 0 {
		c.Pool.Connections = DefaultPoolConnections
	}
	if c.Pool.PingInterval == 0 {
		c.Pool.PingInterval = DefaultPingInterval
	}
	if c.Pool.PingTimeout == 0 {
		c.Pool.PingTimeout = DefaultPingTimeout
	}
	if c.Pool.ReconnectDelay == 0 {
		c.Pool.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Pool.WarmupTime == 0 {
		c.Pool.WarmupTime = DefaultWarmupTime
	}
	if c.Pool.DequeMaxLen == 0 {
		c.Pool.DequeMaxLen = DefaultDequeMaxLen
	}

	if c.Subscription.ConfirmationTimeout == 0 {
		c.Subscription.ConfirmationTimeout = DefaultConfirmationWindow
	}
	if c.Subscription.RefreshInterval == 0 {
		c.Subscription.RefreshInterval = DefaultRefreshInterval
	}

	if c.Store.Enabled {
		applyDBDefaults(&c.Store.Postgres)
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
