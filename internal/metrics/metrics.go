// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examdesk_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "examdesk_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examdesk_login_attempts_total",
			Help: "Login attempts by outcome and method",
		},
		[]string{"status", "method"}, // status: success/failure, method: password/google
	)

	AutoFillRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examdesk_autofill_runs_total",
			Help: "Auto-fill runs by mode and outcome",
		},
		[]string{"mode", "outcome"}, // outcome: preview/applied/shortfall/error
	)

	AutoFillShortfall = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "examdesk_autofill_shortfall_questions",
			Help:    "Questions that could not be placed per auto-fill run",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examdesk_notification_deliveries_total",
			Help: "Notification deliveries by channel, kind and outcome",
		},
		[]string{"channel", "kind", "outcome"},
	)

	StatsCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examdesk_stats_cache_total",
			Help: "Exam statistics cache lookups",
		},
		[]string{"result"}, // hit/miss/error
	)

	AttemptsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examdesk_attempts_submitted_total",
			Help: "Attempts submitted and graded",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Middleware records request counts and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
