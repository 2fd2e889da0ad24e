package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "code"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	// PaymentsTotal counts settled payments by terminal outcome.
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Total number of settled payment attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// GatewayRetriesTotal counts transient gateway failures that consumed
	// retry budget.
	GatewayRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_retries_total",
			Help: "Total number of retried gateway charge calls.",
		},
	)

	// RewardPointsTotal accumulates points credited by the reward engine.
	RewardPointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_points_total",
			Help: "Total reward points credited.",
		},
	)

	// RewardReconciliationsTotal counts reward credits deferred to the
	// reconciliation queue.
	RewardReconciliationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_reconciliations_total",
			Help: "Total reward credits queued for reconciliation.",
		},
	)
)

// NewMetricsMiddleware creates HTTP middleware for collecting Prometheus metrics.
func NewMetricsMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				duration := time.Since(start)
				path := r.URL.Path

				httpRequestDuration.WithLabelValues(serviceName, r.Method, path).Observe(duration.Seconds())
				httpRequestsTotal.WithLabelValues(serviceName, r.Method, path, strconv.Itoa(ww.Status())).Inc()
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
