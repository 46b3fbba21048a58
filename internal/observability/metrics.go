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
	// Ledger metrics
	TradesApplied    *prometheus.CounterVec
	TradesRejected   *prometheus.CounterVec
	TradesReplayed   prometheus.Counter
	LedgerTxDuration *prometheus.HistogramVec
	SnapshotsWritten prometheus.Counter

	// Analysis metrics
	AnalysesTotal        *prometheus.CounterVec
	DecisionLatency      prometheus.Histogram
	CreditsConsumed      prometheus.Counter
	CreditsRefunded      prometheus.Counter
	RecommendationsSaved prometheus.Counter
	APICostTotal         prometheus.Counter

	// Pricing metrics
	OracleLatency   *prometheus.HistogramVec
	OracleErrors    *prometheus.CounterVec
	OracleCacheHits prometheus.Counter

	// Auto-trade metrics
	AutoTradeRuns    *prometheus.CounterVec
	AutoTradeAgents  *prometheus.CounterVec
	AutoTradeLastRun prometheus.Gauge

	// Notification metrics
	WSClients       prometheus.Gauge
	WSEventsSent    prometheus.Counter
	WSEventsDropped prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics on reg.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "trading_arena"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Ledger metrics
		TradesApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "trades_applied_total",
			Help:      "Total number of trades committed, by action",
		}, []string{"action"}),
		TradesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "trades_rejected_total",
			Help:      "Total number of trades rejected, by error code",
		}, []string{"code"}),
		TradesReplayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "trades_replayed_total",
			Help:      "Total number of trade requests answered from an idempotency key",
		}),
		LedgerTxDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tx_duration_seconds",
			Help:      "Duration of per-agent ledger transactions",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
		SnapshotsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "snapshots_written_total",
			Help:      "Total number of portfolio snapshots persisted",
		}),

		// Analysis metrics
		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Total number of analysis requests, by origin of the answer",
		}, []string{"origin"}),
		DecisionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "decision_latency_seconds",
			Help:      "Latency of decision source calls",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		CreditsConsumed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "credits_consumed_total",
			Help:      "Total number of analysis credits consumed",
		}),
		CreditsRefunded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "credits_refunded_total",
			Help:      "Total number of analysis credits refunded after a failure",
		}),
		RecommendationsSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "recommendations_saved_total",
			Help:      "Total number of recommendations cached",
		}),
		APICostTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "api_cost_usd_total",
			Help:      "Total decision source cost in USD",
		}),

		// Pricing metrics
		OracleLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "oracle_latency_seconds",
			Help:      "Price oracle call latency by source",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"source"}),
		OracleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "oracle_errors_total",
			Help:      "Total number of failed price lookups by source",
		}, []string{"source"}),
		OracleCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "cache_hits_total",
			Help:      "Total number of prices served from cache",
		}),

		// Auto-trade metrics
		AutoTradeRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autotrade",
			Name:      "runs_total",
			Help:      "Total number of auto-trade sweeps by status",
		}, []string{"status"}),
		AutoTradeAgents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autotrade",
			Name:      "agents_processed_total",
			Help:      "Total number of agents processed by outcome",
		}, []string{"outcome"}),
		AutoTradeLastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "autotrade",
			Name:      "last_run_timestamp",
			Help:      "Unix timestamp of the last completed sweep",
		}),

		// Notification metrics
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "websocket_clients",
			Help:      "Number of connected websocket subscribers",
		}),
		WSEventsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_sent_total",
			Help:      "Total number of events delivered to subscribers",
		}),
		WSEventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped for slow subscribers",
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// HTTP metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTradeApplied increments the committed trades counter.
func RecordTradeApplied(action string, seconds float64) {
	DefaultMetrics.TradesApplied.WithLabelValues(action).Inc()
	DefaultMetrics.LedgerTxDuration.WithLabelValues("apply_trade").Observe(seconds)
}

// RecordTradeRejected increments the rejected trades counter.
func RecordTradeRejected(code string) {
	DefaultMetrics.TradesRejected.WithLabelValues(code).Inc()
}

// RecordTradeReplayed increments the idempotent replay counter.
func RecordTradeReplayed() {
	DefaultMetrics.TradesReplayed.Inc()
}

// RecordLedgerTx records the duration of a non-trade ledger transaction.
func RecordLedgerTx(operation string, seconds float64) {
	DefaultMetrics.LedgerTxDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordSnapshot increments the snapshot counter.
func RecordSnapshot() {
	DefaultMetrics.SnapshotsWritten.Inc()
}

// RecordAnalysis records an answered analysis request.
func RecordAnalysis(origin string) {
	DefaultMetrics.AnalysesTotal.WithLabelValues(origin).Inc()
}

// RecordDecision records a decision source call and its cost.
func RecordDecision(seconds, costUSD float64) {
	DefaultMetrics.DecisionLatency.Observe(seconds)
	if costUSD > 0 {
		DefaultMetrics.APICostTotal.Add(costUSD)
	}
}

// RecordCreditConsumed increments the consumed credits counter.
func RecordCreditConsumed() {
	DefaultMetrics.CreditsConsumed.Inc()
}

// RecordCreditRefunded increments the refunded credits counter.
func RecordCreditRefunded() {
	DefaultMetrics.CreditsRefunded.Inc()
}

// RecordRecommendationSaved increments the cached recommendations counter.
func RecordRecommendationSaved() {
	DefaultMetrics.RecommendationsSaved.Inc()
}

// RecordOracleCall records a price lookup against a source.
func RecordOracleCall(source string, seconds float64, err error) {
	DefaultMetrics.OracleLatency.WithLabelValues(source).Observe(seconds)
	if err != nil {
		DefaultMetrics.OracleErrors.WithLabelValues(source).Inc()
	}
}

// RecordOracleCacheHit increments the price cache hit counter.
func RecordOracleCacheHit() {
	DefaultMetrics.OracleCacheHits.Inc()
}

// RecordAutoTradeRun records a completed auto-trade sweep.
func RecordAutoTradeRun(status string, unixSeconds float64) {
	DefaultMetrics.AutoTradeRuns.WithLabelValues(status).Inc()
	DefaultMetrics.AutoTradeLastRun.Set(unixSeconds)
}

// RecordAutoTradeAgent records the outcome for one agent of a sweep.
func RecordAutoTradeAgent(outcome string) {
	DefaultMetrics.AutoTradeAgents.WithLabelValues(outcome).Inc()
}

// SetWSClients updates the connected subscribers gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordWSEvent records a delivered or dropped notification.
func RecordWSEvent(delivered bool) {
	if delivered {
		DefaultMetrics.WSEventsSent.Inc()
		return
	}
	DefaultMetrics.WSEventsDropped.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(route, status string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, status).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(route).Observe(seconds)
}
