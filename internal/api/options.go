package api

import (
	"log/slog"
	"time"

	"github.com/dfilabs/pulse-data/internal/metrics"
)

// Option configures a provider client.
type Option func(*rest)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *rest) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *rest) {
		r.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(maxRetries int, backoff time.Duration) Option {
	return func(r *rest) {
		r.maxRetries = maxRetries
		r.retryBackoff = backoff
	}
}

// WithMetrics attaches pipeline metrics to the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *rest) {
		r.metrics = m
	}
}
