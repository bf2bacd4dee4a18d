// Package bulk runs per-symbol collection concurrently with bounded
// parallelism and per-item failure isolation.
package bulk

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dfilabs/pulse-data/internal/metrics"
	"github.com/dfilabs/pulse-data/internal/model"
	"github.com/dfilabs/pulse-data/internal/store"
)

// DefaultConcurrency bounds in-flight items when the caller passes zero.
const DefaultConcurrency = 8

// Result is the outcome of one symbol's task. Exactly one of Table and
// Err is set.
type Result struct {
	Table *model.Table
	Err   error
}

// ItemFunc produces one symbol's table.
type ItemFunc func(ctx context.Context, symbol string) (*model.Table, error)

// Runner fans an ItemFunc out over many symbols.
type Runner struct {
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics

	completed atomic.Int64
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner with the given concurrency bound; zero or
// negative selects DefaultConcurrency.
func NewRunner(concurrency int, opts ...Option) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	r := &Runner{
		concurrency: concurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Completed returns the number of items finished so far, in either state.
// Observable progress for callers polling from another goroutine.
func (r *Runner) Completed() int64 {
	return r.completed.Load()
}

// Run invokes fn for every symbol with at most the configured number in
// flight. One item's failure never cancels the batch; the returned map has
// an entry per symbol, errors recorded in place.
func (r *Runner) Run(ctx context.Context, symbols []string, fn ItemFunc) map[string]Result {
	r.completed.Store(0)

	results := make(map[string]Result, len(symbols))
	var mu sync.Mutex

	g := &errgroup.Group{}
	g.SetLimit(r.concurrency)

	for _, symbol := range symbols {
		g.Go(func() error {
			r.metrics.FanoutStarted()
			table, err := fn(ctx, symbol)
			r.completed.Add(1)

			outcome := "succeeded"
			if err != nil {
				outcome = "failed"
				r.logger.Warn("collection item failed", "symbol", symbol, "error", err)
			}
			r.metrics.FanoutDone(outcome)

			mu.Lock()
			results[symbol] = Result{Table: table, Err: err}
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	return results
}

// RunAndCache runs the batch and then writes every successful table to the
// local store in a single post-pass. Live collection skips per-item cloud
// writes and batches the local ones here; a failed write downgrades that
// symbol's result to an error.
func (r *Runner) RunAndCache(ctx context.Context, symbols []string, fn ItemFunc, local store.Store, keyFor func(symbol string) model.Key) map[string]Result {
	results := r.Run(ctx, symbols, fn)
	for symbol, res := range results {
		if res.Err != nil {
			continue
		}
		if err := local.Save(ctx, keyFor(symbol), res.Table); err != nil {
			r.logger.Warn("local cache write failed", "symbol", symbol, "error", err)
			results[symbol] = Result{Err: err}
		}
	}
	return results
}
