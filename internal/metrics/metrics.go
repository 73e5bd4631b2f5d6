// Package metrics exposes Prometheus collectors for the fleet control plane.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	dispatchesTotal            *prometheus.CounterVec
	executorCommandsTotal      *prometheus.CounterVec
	reconciliationsTotal       *prometheus.CounterVec
	triggerFiringsTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		dispatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spiderctl_dispatches_total",
				Help: "Total number of crawl dispatch submissions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		executorCommandsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spiderctl_executor_commands_total",
				Help: "Total number of fleet control commands issued, labeled by operation and outcome.",
			},
			[]string{"op", "outcome"},
		)

		reconciliationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spiderctl_run_reconciliations_total",
				Help: "Total number of run record reconciliations, labeled by resulting status.",
			},
			[]string{"status"},
		)

		triggerFiringsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spiderctl_trigger_firings_total",
				Help: "Total number of schedule trigger firings, labeled by trigger kind.",
			},
			[]string{"kind"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spiderctl_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spiderctl_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// IncDispatch records a dispatch submission outcome ("success" or "failure").
func IncDispatch(outcome string) {
	if dispatchesTotal != nil {
		dispatchesTotal.WithLabelValues(outcome).Inc()
	}
}

// IncExecutorCommand records one fleet control command invocation.
func IncExecutorCommand(op, outcome string) {
	if executorCommandsTotal != nil {
		executorCommandsTotal.WithLabelValues(op, outcome).Inc()
	}
}

// IncReconciliation records a run record reconciliation by resulting status.
func IncReconciliation(status string) {
	if reconciliationsTotal != nil {
		reconciliationsTotal.WithLabelValues(status).Inc()
	}
}

// IncTriggerFiring records a schedule trigger firing ("cron" or "date").
func IncTriggerFiring(kind string) {
	if triggerFiringsTotal != nil {
		triggerFiringsTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
