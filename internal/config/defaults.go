package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultStorageRoot    = "./data"
	DefaultAPITimeout     = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
	DefaultConcurrency    = 8
	DefaultQuote          = "USDT"
	DefaultFlushInterval  = 1 * time.Minute
	DefaultLiveBufferSize = 1024
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
)

func (c *Config) applyDefaults() {
	if c.Storage.Root == "" {
		c.Storage.Root = DefaultStorageRoot
	}

	if c.Binance.Timeout == 0 {
		c.Binance.Timeout = DefaultAPITimeout
	}
	if c.Binance.MaxRetries == 0 {
		c.Binance.MaxRetries = DefaultMaxRetries
	}

	applyDBDefaults(&c.Database.Postgres)

	if c.Collector.Concurrency == 0 {
		c.Collector.Concurrency = DefaultConcurrency
	}
	if c.Collector.Quote == "" {
		c.Collector.Quote = DefaultQuote
	}

	if c.Live.FlushInterval == 0 {
		c.Live.FlushInterval = DefaultFlushInterval
	}
	if c.Live.BufferSize == 0 {
		c.Live.BufferSize = DefaultLiveBufferSize
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
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
