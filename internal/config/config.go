package config

import "time"

// Config is the root configuration for a collector instance.
type Config struct {
	Instance   InstanceConfig    `yaml:"instance"`
	Storage    StorageConfig     `yaml:"storage"`
	Binance    BinanceConfig     `yaml:"binance"`
	Glassnode  GlassnodeConfig   `yaml:"glassnode"`
	Unravel    UnravelConfig     `yaml:"unravel"`
	Database   DatabaseConfig    `yaml:"database"`
	Collector  CollectorConfig   `yaml:"collector"`
	Live       LiveConfig        `yaml:"live"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Delistings map[string]string `yaml:"delistings"` // symbol -> YYYY-MM-DD
}

// InstanceConfig identifies this collector.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StorageConfig holds the local table store settings.
type StorageConfig struct {
	Root string `yaml:"root"` // root directory for CSV tables
}

// BinanceConfig holds Binance API settings.
type BinanceConfig struct {
	FuturesURL string        `yaml:"futures_url"`
	SpotURL    string        `yaml:"spot_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// GlassnodeConfig holds Glassnode API settings.
type GlassnodeConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// UnravelConfig holds Unravel API settings.
type UnravelConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// DatabaseConfig holds the optional remote mirror. When disabled the
// collector runs local-only.
type DatabaseConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
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

// CollectorConfig holds batch collection settings.
type CollectorConfig struct {
	Concurrency int      `yaml:"concurrency"`
	Symbols     []string `yaml:"symbols"` // explicit universe; empty = discover by quote asset
	Quote       string   `yaml:"quote"`   // quote asset for discovery
}

// LiveConfig holds live feed settings.
type LiveConfig struct {
	Symbols       []string      `yaml:"symbols"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}
