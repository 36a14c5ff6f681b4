package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlanalyst_http_requests_total",
			Help: "Total number of HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlanalyst_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"method", "route"},
	)
	httpInFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlanalyst_http_in_flight_requests",
			Help: "HTTP requests currently being served.",
		},
	)

	inferenceCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlanalyst_inference_calls_total",
			Help: "Total number of inference calls by outcome.",
		},
		[]string{"outcome"},
	)
	inferenceLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlanalyst_inference_latency_seconds",
			Help:    "Inference call latency in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90, 120},
		},
	)
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlanalyst_queries_total",
			Help: "Total number of warehouse queries requested by the model, by outcome.",
		},
		[]string{"outcome"},
	)
	queryLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlanalyst_query_latency_seconds",
			Help:    "Warehouse query latency in seconds for successful queries.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	askTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlanalyst_ask_total",
			Help: "Total number of answered questions by outcome.",
		},
		[]string{"outcome"},
	)
	askIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlanalyst_ask_iterations",
			Help:    "Inference round trips used per question.",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlanalyst_active_sessions",
			Help: "Current number of open analyst sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		httpInFlightRequests,
		inferenceCallsTotal,
		inferenceLatencySeconds,
		queriesTotal,
		queryLatencySeconds,
		askTotal,
		askIterations,
		activeSessions,
	)
}

func ObserveInferenceCall(outcome string, elapsed time.Duration) {
	inferenceCallsTotal.WithLabelValues(outcome).Inc()
	inferenceLatencySeconds.Observe(elapsed.Seconds())
}

// ObserveQuery records one executed tool call. Latency is only recorded for
// queries that reached the warehouse and returned rows.
func ObserveQuery(outcome string, elapsedSec float64) {
	if outcome == "" {
		outcome = "ok"
	}
	queriesTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		queryLatencySeconds.Observe(elapsedSec)
	}
}

func ObserveAsk(outcome string, iterations int) {
	askTotal.WithLabelValues(outcome).Inc()
	if iterations > 0 {
		askIterations.Observe(float64(iterations))
	}
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}
