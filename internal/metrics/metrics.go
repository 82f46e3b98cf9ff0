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

// Metrics groups the collectors of one process. Each instance owns its
// registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	RecordsCreated  *prometheus.CounterVec
	ValidationFails *prometheus.CounterVec
	PublishFailures prometheus.Counter
	EventsMirrored  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "records_created_total",
			Help:      "Records persisted, by kind.",
		}, []string{"kind"}),
		ValidationFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "validation_failures_total",
			Help:      "Submissions rejected before storage, by kind.",
		}, []string{"kind"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "event_publish_failures_total",
			Help:      "Record events that could not be published.",
		}),
		EventsMirrored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conti",
			Name:      "events_mirrored_total",
			Help:      "Record events applied by the mirror worker, by kind and result.",
		}, []string{"kind", "result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conti",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.RecordsCreated,
		m.ValidationFails,
		m.PublishFailures,
		m.EventsMirrored,
		m.RequestDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one HTTP request. route is the pattern, not the
// raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
