// Package metrics provides Prometheus instrumentation for relay sessions.
//
// Every Metrics value owns its own registry, so several relays (and tests) can
// coexist in one process. All methods are safe on a nil *Metrics and do nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Direction labels for BytesRelayed
const (
	// Upstream is inbound -> outbound
	Upstream = "upstream"
	// Downstream is outbound -> inbound
	Downstream = "downstream"
)

// Metrics holds the relay's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionErrors   *prometheus.CounterVec
	AcceptErrors    prometheus.Counter
	BytesTotal      *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	HTTPRequests    *prometheus.CounterVec
}

// New creates a Metrics instance. mode is attached to every series as a
// constant "mode" label (websockify or unwebsockify).
func New(namespace, mode string) *Metrics {
	if namespace == "" {
		namespace = "wsockify"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	labels := prometheus.Labels{"mode": mode}

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "active_sessions",
			Help:        "Number of currently relayed sessions",
			ConstLabels: labels,
		}),
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sessions_total",
			Help:        "Total number of finished sessions by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "session_errors_total",
			Help:        "Total number of session errors by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		AcceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "accept_errors_total",
			Help:        "Total number of accept loop failures",
			ConstLabels: labels,
		}),
		BytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "bytes_relayed_total",
			Help:        "Total number of bytes forwarded by direction",
			ConstLabels: labels,
		}, []string{"direction"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "session_duration_seconds",
			Help:        "Session duration in seconds",
			Buckets:     []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600, 3600},
			ConstLabels: labels,
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
	}
}

// Registry returns the registry holding every collector
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionStarted marks a new live session
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionFinished records a session that has fully torn down
func (m *Metrics) SessionFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(d.Seconds())
}

// SessionError counts a dial or transfer failure
func (m *Metrics) SessionError(kind string) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(kind).Inc()
}

// AcceptError counts an accept loop failure
func (m *Metrics) AcceptError() {
	if m == nil {
		return
	}
	m.AcceptErrors.Inc()
}

// BytesRelayed adds n bytes to the given direction
func (m *Metrics) BytesRelayed(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesTotal.WithLabelValues(direction).Add(float64(n))
}

// HTTPRequest counts one served HTTP request
func (m *Metrics) HTTPRequest(method, path string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, http.StatusText(status)).Inc()
}
