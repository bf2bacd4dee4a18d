package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dfilabs/pulse-data/internal/delist"
	"github.com/dfilabs/pulse-data/internal/metrics"
	"github.com/dfilabs/pulse-data/internal/model"
	"github.com/dfilabs/pulse-data/internal/store"
)

// Fetcher retrieves raw series rows for one symbol over a time window.
// Implementations page internally; a partial result with nil error is
// valid when later pages fail.
type Fetcher interface {
	FetchRange(ctx context.Context, symbol string, start, end time.Time) (*model.Table, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, symbol string, start, end time.Time) (*model.Table, error)

func (f FetcherFunc) FetchRange(ctx context.Context, symbol string, start, end time.Time) (*model.Table, error) {
	return f(ctx, symbol, start, end)
}

// Reconciler brings persisted tables up to date against a target
// timestamp, fetching only the missing suffix.
type Reconciler struct {
	store   store.Store
	delist  *delist.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDelistings attaches a delisting policy.
func WithDelistings(p *delist.Policy) Option {
	return func(r *Reconciler) { r.delist = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// New creates a Reconciler persisting through the given store.
func New(s store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile brings the table for (dataset, symbol) up to date with target
// and returns it truncated to the effective target.
//
// The sequence is strictly load -> decide -> fetch -> merge -> truncate ->
// persist. A fetch failure degrades to whatever already exists; ErrNoData
// is returned only when nothing exists at all, and then nothing is
// persisted.
func (r *Reconciler) Reconcile(ctx context.Context, ds Dataset, symbol string, fetch Fetcher, target time.Time) (*model.Table, error) {
	began := time.Now()
	table, outcome, err := r.reconcile(ctx, ds, symbol, fetch, target)
	r.metrics.ObserveReconcile(string(ds.Kind), outcome, table.Len(), time.Since(began))
	return table, err
}

func (r *Reconciler) reconcile(ctx context.Context, ds Dataset, symbol string, fetch Fetcher, target time.Time) (*model.Table, string, error) {
	key := ds.Key(symbol)
	effective, delisted := r.delist.Clip(symbol, target)
	if delisted {
		r.logger.Debug("target clipped by delisting",
			"key", key.String(), "target", target, "effective", effective)
	}

	existing, err := r.load(ctx, key)
	if err != nil {
		return nil, "error", fmt.Errorf("load %s: %w", key, err)
	}

	if last, ok := existing.Last(); ok && ds.fresh(last, effective) {
		return existing.TruncateAfter(effective), "fresh", nil
	}

	start := ds.Epoch
	if last, ok := existing.Last(); ok {
		start = last.Add(-ds.stepBack())
	}

	fetched, err := fetch.FetchRange(ctx, symbol, start, effective)
	if err != nil {
		if existing.Empty() {
			return nil, "no_data", fmt.Errorf("%s: %w: %w", key, model.ErrNoData, err)
		}
		r.logger.Warn("fetch failed, falling back to existing data",
			"key", key.String(), "error", err)
		return existing.TruncateAfter(effective), "degraded", nil
	}
	if fetched.Empty() {
		if existing.Empty() {
			return nil, "no_data", fmt.Errorf("%s: %w", key, model.ErrNoData)
		}
		return existing.TruncateAfter(effective), "degraded", nil
	}

	merged := existing.Merge(fetched, ds.Dedup)
	if ds.Derive != nil {
		merged = ds.Derive(merged)
	}
	result := merged.TruncateAfter(effective)
	if result.Empty() {
		return nil, "no_data", fmt.Errorf("%s: %w", key, model.ErrNoData)
	}

	if err := r.store.Save(ctx, key, result); err != nil {
		return nil, "error", fmt.Errorf("save %s: %w", key, err)
	}

	r.logger.Info("reconciled",
		"key", key.String(),
		"rows", result.Len(),
		"fetched", fetched.Len(),
		"target", effective)
	return result, "updated", nil
}

// Available returns the already-persisted table for (dataset, symbol)
// truncated to the effective target, without any network access. ErrNoData
// when nothing is persisted.
func (r *Reconciler) Available(ctx context.Context, ds Dataset, symbol string, target time.Time) (*model.Table, error) {
	key := ds.Key(symbol)
	effective, _ := r.delist.Clip(symbol, target)

	existing, err := r.load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	result := existing.TruncateAfter(effective)
	if result.Empty() {
		return nil, fmt.Errorf("%s: %w", key, model.ErrNoData)
	}
	return result, nil
}

// load treats an absent table as empty.
func (r *Reconciler) load(ctx context.Context, key model.Key) (*model.Table, error) {
	table, err := r.store.Load(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return &model.Table{}, nil
	}
	if err != nil {
		return nil, err
	}
	return table, nil
}
