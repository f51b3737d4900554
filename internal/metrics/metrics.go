// Package metrics exposes the service's Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/render"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/storage"
)

// Namespace prefixes every metric name.
const Namespace = "badgehouse"

// Outcome label values.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultNotFound = "not_found"
)

// unmatchedRoute labels requests no route matched, keeping label cardinality bounded.
const unmatchedRoute = "unmatched"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	rendersTotal   *prometheus.CounterVec
	renderDuration prometheus.Histogram

	storageOperationsTotal   *prometheus.CounterVec
	storageOperationDuration *prometheus.HistogramVec
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		rendersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "renders_total",
				Help:      "Total number of render service calls",
			},
			[]string{"result"},
		),
		renderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "render_duration_seconds",
				Help:      "Render service call duration in seconds, retries included",
				Buckets:   prometheus.DefBuckets,
			},
		),

		storageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of badge storage operations",
			},
			[]string{"op", "result"},
		),
		storageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "storage_operation_duration_seconds",
				Help:      "Badge storage operation duration in seconds",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"op"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.rendersTotal,
		m.renderDuration,
		m.storageOperationsTotal,
		m.storageOperationDuration,
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRender records one render call.
func (m *Metrics) ObserveRender(err error, duration time.Duration) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.rendersTotal.WithLabelValues(result).Inc()
	m.renderDuration.Observe(duration.Seconds())
}

// ObserveStorage records one storage operation. A missing badge is counted
// separately from failures.
func (m *Metrics) ObserveStorage(op string, err error, duration time.Duration) {
	result := ResultSuccess
	switch {
	case errors.Is(err, storage.ErrNotFound):
		result = ResultNotFound
	case err != nil:
		result = ResultError
	}
	m.storageOperationsTotal.WithLabelValues(op, result).Inc()
	m.storageOperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// Middleware records request counts and durations labelled by the matched
// route pattern. It must wrap the ServeMux directly so the pattern the mux
// sets on the request is visible after the call.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.statusCode = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

var (
	_ storage.Observer = (*Metrics)(nil)
	_ render.Observer  = (*Metrics)(nil)
)
