package config

import "time"

// StreamConfig is the root configuration for a stream client instance,
// adapted from the teacher's GathererConfig (kalshi/internal/config):
// the writer/poller-heavy gatherer sections are replaced with the
// pool/subscription sections this client actually drives, and the
// optional downstream persistence sink keeps only the Postgres half of
// the teacher's two-database split (streaming has no TimescaleDB
// consumer of its own).
type StreamConfig struct {
	Instance     InstanceConfig     `yaml:"instance"`
	API          APIConfig          `yaml:"api"`
	Pool         PoolConfig         `yaml:"pool"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Store        StoreConfig        `yaml:"store"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// InstanceConfig identifies this client instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// APIConfig holds Kalshi REST/WebSocket endpoints and credentials.
type APIConfig struct {
	RestURL        string        `yaml:"rest_url"`
	WSURL          string        `yaml:"ws_url"`
	APIKey         string        `yaml:"api_key"`          // API key ID (KALSHI-ACCESS-KEY header)
	PrivateKeyPath string        `yaml:"private_key_path"` // RSA private key PEM path
	Email          string        `yaml:"email"`
	Password       string        `yaml:"password"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// PoolConfig holds connection pool settings (spec.md §4.3).
type PoolConfig struct {
	Connections    int           `yaml:"connections"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	WarmupTime     time.Duration `yaml:"warmup_time"`
	DequeMaxLen    int           `yaml:"deque_max_len"`
}

// SubscriptionConfig holds the channels/markets subscribed at boot and
// the refresh cadence that re-reads them (spec.md §4.4, §4.8).
type SubscriptionConfig struct {
	Channels            []string      `yaml:"channels"`
	Tickers             []string      `yaml:"tickers"`
	TickersFile         string        `yaml:"tickers_file"`
	AllMarkets          bool          `yaml:"all_markets"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout"`
	RefreshInterval     time.Duration `yaml:"refresh_interval"`
}

// StoreConfig holds the optional downstream persistence sink settings.
// The book/tick/trade/lifecycle event stream runs with or without it;
// when Enabled is false, internal/store is never constructed.
type StoreConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single Postgres connection (teacher's DBConfig,
// TimescaleDB fields dropped since streaming has no separate
// time-series database).
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics HTTP settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
