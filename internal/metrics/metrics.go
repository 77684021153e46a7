// Package metrics provides Prometheus instrumentation for payguard.
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
			Namespace: "payguard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AbuseFailuresTotal counts tracked failures by reason.
	AbuseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "abuse_failures_total",
			Help:      "Total failed requests recorded by the abuse tracker, by reason.",
		},
		[]string{"reason"},
	)

	// AbuseAutoBlocksTotal counts auto-blocks by key kind (ip or user).
	AbuseAutoBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "abuse_auto_blocks_total",
			Help:      "Total keys auto-blocked after crossing the failure threshold.",
		},
		[]string{"kind"},
	)

	// AbuseDeniedTotal counts requests denied at the admission gate.
	AbuseDeniedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "payguard",
		Name:      "abuse_denied_total",
		Help:      "Total requests denied because the client was blocked.",
	})

	// IntentChecksTotal counts intent security checks by stage and result.
	// Signature failures must be distinguishable from downstream payment
	// failures, so each pipeline stage reports separately.
	IntentChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "intent_checks_total",
			Help:      "Total intent security checks by stage (signature, expiry, nonce) and result.",
		},
		[]string{"stage", "result"},
	)

	// NonceReplaysTotal counts rejected replay attempts.
	NonceReplaysTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "payguard",
		Name:      "nonce_replays_total",
		Help:      "Total intents rejected because their nonce was already consumed.",
	})

	// NoncesSweptTotal counts nonces removed by the retention sweep.
	NoncesSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "payguard",
		Name:      "nonces_swept_total",
		Help:      "Total consumed nonces removed after the retention horizon.",
	})

	// PaymentsTotal counts payment executions by flow and outcome.
	PaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "payments_total",
			Help:      "Total payment attempts by flow (intent, direct) and outcome.",
		},
		[]string{"flow", "outcome"},
	)

	// BackendCallDuration observes simulate/execute latency against the
	// payment-execution backend.
	BackendCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payguard",
			Name:      "backend_call_duration_seconds",
			Help:      "Payment backend call duration in seconds by operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "payguard", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "payguard", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "payguard", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "payguard", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AbuseFailuresTotal,
		AbuseAutoBlocksTotal,
		AbuseDeniedTotal,
		IntentChecksTotal,
		NonceReplaysTotal,
		NoncesSweptTotal,
		PaymentsTotal,
		BackendCallDuration,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
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
