// Package metrics provides Prometheus instrumentation for the collection
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline. A nil *Metrics
// is valid and records nothing, so tests can pass nil.
type Metrics struct {
	// Fetching
	PagesFetched *prometheus.CounterVec
	FetchErrors  *prometheus.CounterVec

	// Reconciliation
	ReconcileRuns     *prometheus.CounterVec
	ReconcileDuration *prometheus.HistogramVec
	RowsPersisted     *prometheus.CounterVec

	// Fan-out
	FanoutCompleted *prometheus.CounterVec
	FanoutInFlight  prometheus.Gauge

	// Live feed
	LiveCandles    prometheus.Counter
	LiveReconnects prometheus.Counter
}

// New registers and returns all collectors under the given namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pulse_data"
	}
	return &Metrics{
		PagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "pages_total",
			Help:      "Provider API pages fetched",
		}, []string{"provider"}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Provider API page fetch errors",
		}, []string{"provider"}),
		ReconcileRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconciliation runs by dataset kind and outcome",
		}, []string{"kind", "outcome"}),
		ReconcileDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Reconciliation duration by dataset kind",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		RowsPersisted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "rows_persisted_total",
			Help:      "Rows persisted to the blob store",
		}, []string{"kind"}),
		FanoutCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "completed_total",
			Help:      "Fan-out items completed by outcome",
		}, []string{"outcome"}),
		FanoutInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "in_flight",
			Help:      "Fan-out items currently running",
		}),
		LiveCandles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "candles_total",
			Help:      "Closed candles received from the live feed",
		}),
		LiveReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "reconnects_total",
			Help:      "Live feed reconnect attempts",
		}),
	}
}

// ObservePage records a fetched page for a provider.
func (m *Metrics) ObservePage(provider string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(provider).Inc()
}

// ObserveFetchError records a failed page fetch for a provider.
func (m *Metrics) ObserveFetchError(provider string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(provider).Inc()
}

// ObserveReconcile records one reconciliation run.
func (m *Metrics) ObserveReconcile(kind string, outcome string, rows int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileRuns.WithLabelValues(kind, outcome).Inc()
	m.ReconcileDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if rows > 0 {
		m.RowsPersisted.WithLabelValues(kind).Add(float64(rows))
	}
}

// FanoutStarted marks an item entering the RUNNING state.
func (m *Metrics) FanoutStarted() {
	if m == nil {
		return
	}
	m.FanoutInFlight.Inc()
}

// FanoutDone marks an item leaving the RUNNING state.
func (m *Metrics) FanoutDone(outcome string) {
	if m == nil {
		return
	}
	m.FanoutInFlight.Dec()
	m.FanoutCompleted.WithLabelValues(outcome).Inc()
}

// ObserveLiveCandle records a closed candle from the live feed.
func (m *Metrics) ObserveLiveCandle() {
	if m == nil {
		return
	}
	m.LiveCandles.Inc()
}

// ObserveLiveReconnect records a live-feed reconnect attempt.
func (m *Metrics) ObserveLiveReconnect() {
	if m == nil {
		return
	}
	m.LiveReconnects.Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
