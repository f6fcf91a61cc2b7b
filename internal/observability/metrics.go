package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexus-trading/walletscope/internal/provider"
)

const namespace = "walletscope"

var (
	// AnalysesTotal counts completed wallet analyses by overall rating.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed wallet analyses by overall risk rating.",
		},
		[]string{"rating"},
	)

	// AnalysisRejectedTotal counts requests failed before the pipeline ran.
	AnalysisRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_rejected_total",
			Help:      "Wallet analyses rejected by reason (invalid_input|exhausted).",
		},
		[]string{"reason"},
	)

	// AnalysisDuration observes end-to-end coordinator latency.
	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wallet analysis duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	// DegradedTotal counts degraded inputs by pipeline section.
	DegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_total",
			Help:      "Inputs replaced by defaults, by section.",
		},
		[]string{"section"},
	)

	// TokensAnalyzed counts tokens scored by the forensics analyzer.
	TokensAnalyzed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_analyzed_total",
			Help:      "Tokens scored by the forensics analyzer.",
		},
	)

	// SuspiciousWalletsTotal counts transaction-monitor hits.
	SuspiciousWalletsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_wallets_total",
			Help:      "Wallets flagged by the transaction monitor.",
		},
	)

	// ProviderRequestsTotal counts upstream calls by provider, operation and outcome.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Upstream provider calls by outcome (ok or error kind).",
		},
		[]string{"provider", "op", "outcome"},
	)

	// ProviderLatency observes upstream call latency.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Upstream provider call latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// CircuitOpen is 1 while a provider's circuit breaker is open.
	CircuitOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_open",
			Help:      "1 when the provider circuit breaker is open.",
		},
		[]string{"provider"},
	)

	// AlertListeners tracks connected alert subscribers.
	AlertListeners = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_listeners",
			Help:      "Connected alert subscribers.",
		},
	)

	// AlertsBroadcastTotal counts alerts fanned out to listeners.
	AlertsBroadcastTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_broadcast_total",
			Help:      "Alerts broadcast to subscribers.",
		},
	)

	// HTTPRequestsTotal counts API requests by method, route and status bucket.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method, route pattern and status class.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes API latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		AnalysesTotal,
		AnalysisRejectedTotal,
		AnalysisDuration,
		DegradedTotal,
		TokensAnalyzed,
		SuspiciousWalletsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		CircuitOpen,
		AlertListeners,
		AlertsBroadcastTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ObserveProvider records one upstream call with its final error.
func ObserveProvider(name, op string, start time.Time, err error) {
	ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = provider.KindOf(err).String()
	}
	ProviderRequestsTotal.WithLabelValues(name, op, outcome).Inc()
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Request.Method, path))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, statusBucket(c.Writer.Status())).Inc()
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

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
