// Package telemetry exposes Prometheus metrics about NAS polling.
//
// A nil *Metrics is valid and records nothing.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nasbridge"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	auth         *prometheus.CounterVec
	cycles       *prometheus.CounterVec
	cycleSeconds *prometheus.HistogramVec
	nullValues   *prometheus.GaugeVec
	entities     prometheus.Gauge
	presses      *prometheus.CounterVec
}

// New creates Metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "NAS API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "NAS API request latency including a token refresh retry.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Token service calls by result.",
		}, []string{"result"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles by job.",
		}, []string{"job"}),
		cycleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Poll cycle duration by job.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		nullValues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_null_values",
			Help:      "Entities without a value after the last cycle of a job.",
		}, []string{"job"}),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Entities in the current descriptor catalog.",
		}),
		presses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "button_presses_total",
			Help:      "Button presses by key and result.",
		}, []string{"key", "result"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.requests, m.latency, m.auth, m.cycles, m.cycleSeconds, m.nullValues, m.entities, m.presses,
	)
	return m
}

// ObserveRequest records one API call.
func (m *Metrics) ObserveRequest(endpoint, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, outcome).Inc()
	m.latency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// ObserveAuth records one token service call.
func (m *Metrics) ObserveAuth(ok bool) {
	if m == nil {
		return
	}
	m.auth.WithLabelValues(result(ok)).Inc()
}

// ObserveCycle records one completed poll cycle.
func (m *Metrics) ObserveCycle(job string, d time.Duration, nulls int) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(job).Inc()
	m.cycleSeconds.WithLabelValues(job).Observe(d.Seconds())
	m.nullValues.WithLabelValues(job).Set(float64(nulls))
}

// SetEntities records the catalog size.
func (m *Metrics) SetEntities(n int) {
	if m == nil {
		return
	}
	m.entities.Set(float64(n))
}

// ObservePress records a button press.
func (m *Metrics) ObservePress(key string, ok bool) {
	if m == nil {
		return
	}
	m.presses.WithLabelValues(key, result(ok)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
