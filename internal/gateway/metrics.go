package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Access decision metrics
	accessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Total number of access control decisions",
		},
		[]string{"role", "outcome"},
	)

	emergencyOverridesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emergency_overrides_total",
			Help: "Total number of emergency access overrides",
		},
	)

	// Audit chain metrics
	chainVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_verifications_total",
			Help: "Total number of audit chain verification runs",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		accessDecisionsTotal,
		emergencyOverridesTotal,
		chainVerificationsTotal,
	)
}

// metricsHandler exposes the prometheus metrics endpoint
func metricsHandler() http.Handler {
	return promhttp.Handler()
}

// metricsMiddleware records request counts and latency
func (s *Service) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path,
			strconv.Itoa(recorder.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).
			Observe(time.Since(start).Seconds())
	})
}

// recordDecisionMetric records one access decision outcome
func recordDecisionMetric(role string, granted bool) {
	outcome := "denied"
	if granted {
		outcome = "granted"
	}
	accessDecisionsTotal.WithLabelValues(role, outcome).Inc()
}

// recordVerificationMetric records one chain verification run
func recordVerificationMetric(isValid bool) {
	result := "invalid"
	if isValid {
		result = "valid"
	}
	chainVerificationsTotal.WithLabelValues(result).Inc()
}
