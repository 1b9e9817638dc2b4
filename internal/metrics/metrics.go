// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer; every recorder is then a
// no-op.
type Metrics struct {
	registry        *prometheus.Registry
	authRejections  *prometheus.CounterVec
	identityEvents  *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_auth_rejections_total",
				Help: "Requests rejected by the authorization chain by stage and reason",
			},
			[]string{"stage", "reason"},
		),
		identityEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_lifecycle_events_total",
				Help: "Identity lifecycle events by type",
			},
			[]string{"type"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_http_requests_total",
				Help: "HTTP requests by method and status",
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "identity_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.authRejections,
		m.identityEvents,
		m.requestsTotal,
		m.requestDuration,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AuthRejected(stage string, reason string) {
	if m == nil {
		return
	}
	m.authRejections.WithLabelValues(stage, reason).Inc()
}

func (m *Metrics) IdentityEvent(eventType string) {
	if m == nil {
		return
	}
	m.identityEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
