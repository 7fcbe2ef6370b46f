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
	// Oracle metrics
	CacheHits         *prometheus.CounterVec // by tier: local, shared
	CacheMisses       prometheus.Counter
	OracleFetches     *prometheus.CounterVec // by source: primary, fallback
	OracleFetchErrors prometheus.Counter
	OracleAnomalies   prometheus.Counter
	EntryFallbacks    prometheus.Counter
	OracleLatency     prometheus.Histogram

	// Trading metrics
	EntriesTotal     *prometheus.CounterVec // by category
	RejectionsTotal  *prometheus.CounterVec // by reason
	ExitsTotal       *prometheus.CounterVec // by reason
	ExitErrors       prometheus.Counter
	OpenPositions    prometheus.Gauge
	DailyPnLSol      prometheus.Gauge
	CircuitBreakerOn prometheus.Gauge

	// Monitor metrics
	TicksTotal   prometheus.Counter
	TickDuration prometheus.Histogram
	RateLimited  prometheus.Counter

	// Feed metrics
	FeedEvents     *prometheus.CounterVec // by type: mint, graduation
	FeedReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pump_sniper"
	}

	return &Metrics{
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "cache_hits_total",
			Help:      "Price cache hits by tier",
		}, []string{"tier"}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "cache_misses_total",
			Help:      "Price lookups that missed every cache tier",
		}),
		OracleFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "fetches_total",
			Help:      "Successful reserve fetches by endpoint",
		}, []string{"source"}),
		OracleFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "fetch_errors_total",
			Help:      "Reserve fetches that exhausted every endpoint",
		}),
		OracleAnomalies: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "anomalies_total",
			Help:      "Snapshots flagged as anomalous",
		}),
		EntryFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "entry_fallbacks_total",
			Help:      "Snapshots synthesized from a position's entry price",
		}),
		OracleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "fetch_duration_seconds",
			Help:      "Reserve fetch latency including retries",
			Buckets:   prometheus.DefBuckets,
		}),

		EntriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "entries_total",
			Help:      "Positions opened by slot category",
		}, []string{"category"}),
		RejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "rejections_total",
			Help:      "Entry signals rejected by reason",
		}, []string{"reason"}),
		ExitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "exits_total",
			Help:      "Positions closed by reason",
		}, []string{"reason"}),
		ExitErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "exit_errors_total",
			Help:      "Sell attempts that failed and were left for the next tick",
		}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "open_positions",
			Help:      "Current number of open positions",
		}),
		DailyPnLSol: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "daily_pnl_sol",
			Help:      "Realized PnL for the current UTC day in SOL",
		}),
		CircuitBreakerOn: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "circuit_breaker_active",
			Help:      "1 while the circuit breaker is tripped",
		}),

		TicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ticks_total",
			Help:      "Exit monitor ticks completed",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tick_duration_seconds",
			Help:      "Exit monitor tick duration",
			Buckets:   prometheus.DefBuckets,
		}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "rate_limited_total",
			Help:      "Oracle reads that had to wait for a rate limit slot",
		}),

		FeedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Discovery feed events by type",
		}, []string{"type"}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Discovery feed reconnect attempts",
		}),
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
