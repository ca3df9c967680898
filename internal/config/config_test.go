package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("basic loading", func(t *testing.T) {
		yaml := `
instance:
  id: test-stream
  az: us-east-1a
api:
  rest_url: https://demo-api.kalshi.co/trade-api/v2
subscription:
  channels: [ticker]
  tickers: [KXMARKET]
`
		path := writeTempFile(t, yaml)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Instance.ID != "test-stream" {
			t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-stream")
		}
		if cfg.Instance.AZ != "us-east-1a" {
			t.Errorf("Instance.AZ = %q, want %q", cfg.Instance.AZ, "us-east-1a")
		}
		if cfg.API.RestURL != "https://demo-api.kalshi.co/trade-api/v2" {
			t.Errorf("API.RestURL = %q, want %q", cfg.API.RestURL, "https://demo-api.kalshi.co/trade-api/v2")
		}
		if len(cfg.Subscription.Tickers) != 1 || cfg.Subscription.Tickers[0] != "KXMARKET" {
			t.Errorf("Subscription.Tickers = %v", cfg.Subscription.Tickers)
		}
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := Load("/nonexistent/path/config.yaml")
		if err == nil {
			t.Fatal("expected error for nonexistent file")
		}
		if !strings.Contains(err.Error(), "read config file") {
			t.Errorf("error should mention 'read config file', got %v", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		yaml := `
instance:
  id: test
  invalid yaml here: [
`
		path := writeTempFile(t, yaml)

		_, err := Load(path)
		if err == nil {
			t.Fatal("expected error for invalid YAML")
		}
		if !strings.Contains(err.Error(), "parse config yaml") {
			t.Errorf("error should mention 'parse config yaml', got %v", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeTempFile(t, "")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Instance.ID != "" {
			t.Errorf("Instance.ID = %q, want empty", cfg.Instance.ID)
		}
	})
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Run("single env var", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		yaml := `
instance:
  id: test-stream
api:
  api_key: ${TEST_API_KEY}
`
		path := writeTempFile(t, yaml)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.API.APIKey != "secret123" {
			t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "secret123")
		}
	})

	t.Run("unset env var results in empty", func(t *testing.T) {
		os.Unsetenv("UNSET_VAR_FOR_TEST")

		yaml := `
instance:
  id: ${UNSET_VAR_FOR_TEST}
`
		path := writeTempFile(t, yaml)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Instance.ID != "" {
			t.Errorf("Instance.ID = %q, want empty for unset env var", cfg.Instance.ID)
		}
	})
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-stream
subscription:
  channels: [ticker]
  tickers: [KXMARKET]
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("API.RestURL = %q, want default %q", cfg.API.RestURL, DefaultRestURL)
	}
	if cfg.API.WSURL != DefaultWSURL {
		t.Errorf("API.WSURL = %q, want default %q", cfg.API.WSURL, DefaultWSURL)
	}
	if cfg.API.Timeout != DefaultTimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultTimeout)
	}
	if cfg.API.MaxRetries != DefaultRetries {
		t.Errorf("API.MaxRetries = %d, want default %d", cfg.API.MaxRetries, DefaultRetries)
	}

	if cfg.Pool.Connections != DefaultPoolConnections {
		t.Errorf("Pool.Connections = %d, want default %d", cfg.Pool.Connections, DefaultPoolConnections)
	}
	if cfg.Pool.PingInterval != DefaultPingInterval {
		t.Errorf("Pool.PingInterval = %v, want default %v", cfg.Pool.PingInterval, DefaultPingInterval)
	}
	if cfg.Pool.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("Pool.ReconnectDelay = %v, want default %v", cfg.Pool.ReconnectDelay, DefaultReconnectDelay)
	}
	if cfg.Pool.WarmupTime != DefaultWarmupTime {
		t.Errorf("Pool.WarmupTime = %v, want default %v", cfg.Pool.WarmupTime, DefaultWarmupTime)
	}
	if cfg.Pool.DequeMaxLen != DefaultDequeMaxLen {
		t.Errorf("Pool.DequeMaxLen = %d, want default %d", cfg.Pool.DequeMaxLen, DefaultDequeMaxLen)
	}

	if cfg.Subscription.ConfirmationTimeout != DefaultConfirmationWindow {
		t.Errorf("Subscription.ConfirmationTimeout = %v, want default %v", cfg.Subscription.ConfirmationTimeout, DefaultConfirmationWindow)
	}
	if cfg.Subscription.RefreshInterval != DefaultRefreshInterval {
		t.Errorf("Subscription.RefreshInterval = %v, want default %v", cfg.Subscription.RefreshInterval, DefaultRefreshInterval)
	}

	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestLoadWithDefaultsPreservesSetValues(t *testing.T) {
	yaml := `
instance:
  id: test-stream
api:
  rest_url: https://custom.api.com
  timeout: 60s
  max_retries: 5
pool:
  connections: 8
subscription:
  channels: [ticker]
  tickers: [KXMARKET]
metrics:
  port: 8080
  path: /health
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.API.RestURL != "https://custom.api.com" {
		t.Errorf("API.RestURL = %q, want custom value", cfg.API.RestURL)
	}
	if cfg.API.Timeout != 60*time.Second {
		t.Errorf("API.Timeout = %v, want 60s", cfg.API.Timeout)
	}
	if cfg.API.MaxRetries != 5 {
		t.Errorf("API.MaxRetries = %d, want 5", cfg.API.MaxRetries)
	}
	if cfg.Pool.Connections != 8 {
		t.Errorf("Pool.Connections = %d, want 8", cfg.Pool.Connections)
	}
	if cfg.Metrics.Port != 8080 {
		t.Errorf("Metrics.Port = %d, want 8080", cfg.Metrics.Port)
	}
}

func TestLoadAndValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		yaml := `
instance:
  id: test-stream
subscription:
  channels: [ticker]
  tickers: [KXMARKET]
`
		path := writeTempFile(t, yaml)

		cfg, err := LoadAndValidate(path)
		if err != nil {
			t.Fatalf("LoadAndValidate failed: %v", err)
		}

		if cfg.Instance.ID != "test-stream" {
			t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-stream")
		}
	})

	t.Run("invalid config returns validation error", func(t *testing.T) {
		yaml := `
instance:
  id: ""
`
		path := writeTempFile(t, yaml)

		_, err := LoadAndValidate(path)
		if err == nil {
			t.Fatal("expected validation error")
		}
		if !strings.Contains(err.Error(), "validate config") {
			t.Errorf("error should mention 'validate config', got %v", err)
		}
	})

	t.Run("load error propagates", func(t *testing.T) {
		_, err := LoadAndValidate("/nonexistent/path/config.yaml")
		if err == nil {
			t.Fatal("expected load error")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StreamConfig
		wantErr string
	}{
		{
			name:    "missing instance id",
			cfg:     StreamConfig{},
			wantErr: "instance.id is required",
		},
		{
			name: "missing pool connections",
			cfg: StreamConfig{
				Instance: InstanceConfig{ID: "test"},
			},
			wantErr: "pool.connections must be >= 1",
		},
		{
			name: "missing deque max len",
			cfg: StreamConfig{
				Instance: InstanceConfig{ID: "test"},
				Pool:     PoolConfig{Connections: 4},
			},
			wantErr: "pool.deque_max_len must be >= 1",
		},
		{
			name: "missing subscription channels",
			cfg: StreamConfig{
				Instance: InstanceConfig{ID: "test"},
				Pool:     PoolConfig{Connections: 4, DequeMaxLen: 10},
			},
			wantErr: "subscription.channels must have at least one entry",
		},
		{
			name: "missing tickers and not all markets",
			cfg: StreamConfig{
				Instance: InstanceConfig{ID: "test"},
				Pool:     PoolConfig{Connections: 4, DequeMaxLen: 10},
				Subscription: SubscriptionConfig{
					Channels: []string{"ticker"},
				},
			},
			wantErr: "subscription.tickers, subscription.tickers_file, or subscription.all_markets must be set",
		},
		{
			name: "all_markets satisfies ticker requirement",
			cfg: StreamConfig{
				Instance: InstanceConfig{ID: "test"},
				Pool:     PoolConfig{Connections: 4, DequeMaxLen: 10},
				Subscription: SubscriptionConfig{
					Channels:   []string{"ticker"},
					AllMarkets: true,
				},
				Metrics: MetricsConfig{Port: 9090},
			},
			wantErr: "",
		},
		{
			name: "store enabled requires postgres host",
			cfg: StreamConfig{
				Instance: InstanceConfig{ID: "test"},
				Pool:     PoolConfig{Connections: 4, DequeMaxLen: 10},
				Subscription: SubscriptionConfig{
					Channels: []string{"ticker"},
					Tickers:  []string{"KXMARKET"},
				},
				Store: StoreConfig{Enabled: true},
			},
			wantErr: "store.postgres.host is required",
		},
		{
			name: "metrics port < 1",
			cfg: StreamConfig{
				Instance: InstanceConfig{ID: "test"},
				Pool:     PoolConfig{Connections: 4, DequeMaxLen: 10},
				Subscription: SubscriptionConfig{
					Channels: []string{"ticker"},
					Tickers:  []string{"KXMARKET"},
				},
				Metrics: MetricsConfig{Port: 0},
			},
			wantErr: "metrics.port must be between 1 and 65535, got 0",
		},
		{
			name: "metrics port > 65535",
			cfg: StreamConfig{
				Instance: InstanceConfig{ID: "test"},
				Pool:     PoolConfig{Connections: 4, DequeMaxLen: 10},
				Subscription: SubscriptionConfig{
					Channels: []string{"ticker"},
					Tickers:  []string{"KXMARKET"},
				},
				Metrics: MetricsConfig{Port: 70000},
			},
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name: "valid config",
			cfg: StreamConfig{
				Instance: InstanceConfig{ID: "test"},
				Pool:     PoolConfig{Connections: 4, DequeMaxLen: 10},
				Subscription: SubscriptionConfig{
					Channels: []string{"ticker", "orderbook_delta"},
					Tickers:  []string{"KXMARKET"},
				},
				Store: StoreConfig{
					Enabled: true,
					Postgres: DBConfig{
						Host: "localhost", Name: "db", User: "u", Password: "p",
						MaxConns: 10, MinConns: 2,
					},
				},
				Metrics: MetricsConfig{Port: 9090},
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestDefaultConstants(t *testing.T) {
	if DefaultRestURL != "https://api.elections.kalshi.com/trade-api/v2" {
		t.Errorf("DefaultRestURL = %q, want production URL", DefaultRestURL)
	}
	if DefaultWSURL != "wss://api.elections.kalshi.com" {
		t.Errorf("DefaultWSURL = %q, want production URL", DefaultWSURL)
	}
	if DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", DefaultTimeout)
	}
	if DefaultRetries != 3 {
		t.Errorf("DefaultRetries = %d, want 3", DefaultRetries)
	}
	if DefaultPoolConnections != 4 {
		t.Errorf("DefaultPoolConnections = %d, want 4", DefaultPoolConnections)
	}
	if DefaultWarmupTime != 100*time.Second {
		t.Errorf("DefaultWarmupTime = %v, want 100s", DefaultWarmupTime)
	}
	if DefaultReconnectDelay != 5*time.Second {
		t.Errorf("DefaultReconnectDelay = %v, want 5s", DefaultReconnectDelay)
	}
	if DefaultDequeMaxLen != 10 {
		t.Errorf("DefaultDequeMaxLen = %d, want 10", DefaultDequeMaxLen)
	}
	if DefaultRefreshInterval != 900*time.Second {
		t.Errorf("DefaultRefreshInterval = %v, want 900s", DefaultRefreshInterval)
	}
	if DefaultMetricsPort != 9090 {
		t.Errorf("DefaultMetricsPort = %d, want 9090", DefaultMetricsPort)
	}
	if DefaultMetricsPath != "/metrics" {
		t.Errorf("DefaultMetricsPath = %q, want '/metrics'", DefaultMetricsPath)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
