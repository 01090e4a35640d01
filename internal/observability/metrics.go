// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Extraction metrics
	PoolsExtracted   *prometheus.CounterVec
	PoolFailures     *prometheus.CounterVec
	CheckpointsRun   prometheus.Counter
	ExtractionTime   prometheus.Histogram
	LastEpoch        prometheus.Gauge
	LastSlot         prometheus.Gauge
	TotalLiquid      prometheus.Gauge
	TotalUndelegated prometheus.Gauge

	// Statistics metrics
	StatsRunsTotal *prometheus.CounterVec
	StatsDuration  prometheus.Histogram
	NeighborMisses *prometheus.CounterVec

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Storage metrics
	StoreWrites *prometheus.CounterVec
	StoreErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_stakepool_lab"
	}

	return &Metrics{
		// Extraction metrics
		PoolsExtracted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "pools_extracted_total",
			Help:      "Total number of pool snapshots built by provider",
		}, []string{"provider"}),
		PoolFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "pool_failures_total",
			Help:      "Total number of pools that failed extraction by provider",
		}, []string{"provider"}),
		CheckpointsRun: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "checkpoints_total",
			Help:      "Total number of checkpoint extractions run",
		}),
		ExtractionTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "duration_seconds",
			Help:      "Checkpoint extraction duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		LastEpoch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "last_epoch",
			Help:      "Epoch of the most recent checkpoint",
		}),
		LastSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "last_slot",
			Help:      "Slot of the most recent checkpoint",
		}),
		TotalLiquid: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "total_liquid_stake_lamports",
			Help:      "Total liquid stake measured by the most recent checkpoint",
		}),
		TotalUndelegated: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "total_undelegated_lamports",
			Help:      "Total undelegated lamports measured by the most recent checkpoint",
		}),

		// Statistics metrics
		StatsRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "runs_total",
			Help:      "Total number of statistics runs by outcome",
		}, []string{"outcome"}),
		StatsDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "duration_seconds",
			Help:      "Statistics computation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		NeighborMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "neighbor_misses_total",
			Help:      "Total number of missing neighbor checkpoints by role",
		}, []string{"role"}),

		// RPC metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC call duration by method",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_errors_total",
			Help:      "Total number of failed RPC calls by method",
		}, []string{"method"}),

		// Storage metrics
		StoreWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "writes_total",
			Help:      "Total number of store writes by backend",
		}, []string{"backend"}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "write_errors_total",
			Help:      "Total number of failed store writes by backend",
		}, []string{"backend"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPoolExtracted increments the extracted pool counter for a provider.
func RecordPoolExtracted(provider string) {
	DefaultMetrics.PoolsExtracted.WithLabelValues(provider).Inc()
}

// RecordPoolFailure increments the failed pool counter for a provider.
func RecordPoolFailure(provider string) {
	DefaultMetrics.PoolFailures.WithLabelValues(provider).Inc()
}

// RecordCheckpoint records a completed checkpoint extraction.
func RecordCheckpoint(epoch, slot uint64, seconds float64) {
	DefaultMetrics.CheckpointsRun.Inc()
	DefaultMetrics.ExtractionTime.Observe(seconds)
	DefaultMetrics.LastEpoch.Set(float64(epoch))
	DefaultMetrics.LastSlot.Set(float64(slot))
}

// RecordNeighborMiss records a missing previous or next checkpoint.
func RecordNeighborMiss(role string) {
	DefaultMetrics.NeighborMisses.WithLabelValues(role).Inc()
}
