// Package metrics holds the Prometheus collectors for the archive.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector exposed on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	entriesArchived *prometheus.CounterVec
	exports         *prometheus.CounterVec
	fetches         *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	collections     prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		entriesArchived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "limoni_entries_archived_total",
			Help: "Entries written to a collection, by origin",
		}, []string{"source"}),
		exports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "limoni_exports_total",
			Help: "Collection exports, by format",
		}, []string{"format"}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "limoni_page_fetches_total",
			Help: "Forum page fetches, by result",
		}, []string{"result"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "limoni_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "limoni_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		collections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "limoni_collections",
			Help: "Number of stored collections",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncEntriesArchived(source string, n int) {
	m.entriesArchived.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) IncExports(format string) {
	m.exports.WithLabelValues(format).Inc()
}

func (m *Metrics) IncFetches(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.fetches.WithLabelValues(result).Inc()
}

func (m *Metrics) SetCollections(n int) {
	m.collections.Set(float64(n))
}

func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(route, statusBucket(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
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
