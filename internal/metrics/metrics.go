// Package metrics provides Prometheus instrumentation for Durin.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "durin",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "durin",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AnalysesTotal counts analysis runs by outcome.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "durin",
			Name:      "analyses_total",
			Help:      "Total analysis runs by outcome (completed, degraded, failed).",
		},
		[]string{"outcome"},
	)

	// AnalysisDuration observes end-to-end analysis latency.
	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "durin",
		Name:      "analysis_duration_seconds",
		Help:      "Time to build the graph, run detectors, and assemble the result.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// SignalsDetectedTotal counts emitted fraud signals by kind.
	SignalsDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "durin",
			Name:      "signals_detected_total",
			Help:      "Total fraud signals emitted by detector kind.",
		},
		[]string{"kind"},
	)

	// HighRiskAccounts tracks the high-risk count of the most recent analysis.
	HighRiskAccounts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "durin",
		Name:      "high_risk_accounts",
		Help:      "High-risk accounts in the most recent analysis.",
	})

	// CycleCapHitsTotal counts analyses where cycle enumeration was truncated.
	CycleCapHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "durin",
		Name:      "cycle_cap_hits_total",
		Help:      "Analyses where circular-flow enumeration hit the cycle cap.",
	})

	// ExplanationsTotal counts risk explanations by source.
	ExplanationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "durin",
			Name:      "explanations_total",
			Help:      "Total risk explanations generated by source (llm, fallback).",
		},
		[]string{"source"},
	)

	// UnderwritingDecisionsTotal counts underwriting decisions by outcome.
	UnderwritingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "durin",
			Name:      "underwriting_decisions_total",
			Help:      "Total underwriting decisions by outcome.",
		},
		[]string{"decision"},
	)

	// LivenessChecksTotal counts liveness verifications by result.
	LivenessChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "durin",
			Name:      "liveness_checks_total",
			Help:      "Total liveness checks by result.",
		},
		[]string{"result"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "durin",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "durin", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "durin", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "durin", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "durin", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "durin", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "durin", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AnalysesTotal,
		AnalysisDuration,
		SignalsDetectedTotal,
		HighRiskAccounts,
		CycleCapHitsTotal,
		ExplanationsTotal,
		UnderwritingDecisionsTotal,
		LivenessChecksTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
