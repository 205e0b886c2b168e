package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trend engine
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   prometheus.CounterVec
	HTTPRequestDuration prometheus.HistogramVec

	// Ingestion metrics
	SignalsInsertedTotal prometheus.Counter
	SignalsDroppedTotal  prometheus.Counter

	// Refresh pass metrics
	RefreshPassesTotal  prometheus.CounterVec
	RefreshStageSeconds prometheus.HistogramVec
	SnapshotRowsWritten prometheus.CounterVec
	WatermarkLagSeconds prometheus.Gauge

	// Query metrics
	TrendingQuerySeconds prometheus.HistogramVec
	TrendingCacheHits    prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),

			SignalsInsertedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "trend_signals_inserted_total",
					Help: "Signals actually inserted (duplicates excluded)",
				},
			),
			SignalsDroppedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "trend_signals_dropped_total",
					Help: "Malformed or duplicate signal rows dropped during ingestion",
				},
			),

			RefreshPassesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trend_refresh_passes_total",
					Help: "Refresh passes by outcome",
				},
				[]string{"outcome"}, // ok, skipped, error
			),
			RefreshStageSeconds: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "trend_refresh_stage_seconds",
					Help:    "Duration of each refresh stage",
					Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
				},
				[]string{"stage"}, // aggregate, score, publish, cleanup
			),
			SnapshotRowsWritten: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trend_snapshot_rows_written_total",
					Help: "Snapshot rows published per entity type and window",
				},
				[]string{"entity_type", "window"},
			),
			WatermarkLagSeconds: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "trend_watermark_lag_seconds",
					Help: "Age of the aggregation watermark at the end of the last pass",
				},
			),

			TrendingQuerySeconds: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "trend_query_duration_seconds",
					Help:    "Trending query latency",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
				},
				[]string{"entity_type", "window"},
			),
			TrendingCacheHits: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trend_query_cache_total",
					Help: "Trending query cache lookups",
				},
				[]string{"result"}, // hit, miss, bypass
			),
		}
	})
	return instance
}

// Get returns the metrics singleton, initializing it if needed
func Get() *Metrics {
	return Initialize()
}
