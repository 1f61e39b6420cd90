package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	interactions *prometheus.CounterVec
	openTickets  prometheus.Gauge
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskbot",
			Name:      "http_requests_total",
			Help:      "Ops API requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deskbot",
			Name:      "http_request_duration_seconds",
			Help:      "Ops API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskbot",
			Name:      "errors_total",
			Help:      "Errors surfaced to users or API clients by source and taxonomy code.",
		}, []string{"source", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskbot",
			Name:      "workflow_transitions_total",
			Help:      "Ticket and application state transitions.",
		}, []string{"workflow", "transition"}),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskbot",
			Name:      "interactions_total",
			Help:      "Inbound platform events by kind.",
		}, []string{"kind"}),
		openTickets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deskbot",
			Name:      "open_tickets",
			Help:      "Tickets currently tracked and not closed.",
		}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.errors, m.transitions, m.interactions, m.openTickets)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(source, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(source, code).Inc()
}

// RecordTransition counts a workflow state change.
func (m *Metrics) RecordTransition(workflow, transition string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(workflow, transition).Inc()
}

// RecordInteraction counts an inbound event.
func (m *Metrics) RecordInteraction(kind string) {
	if m == nil {
		return
	}
	m.interactions.WithLabelValues(kind).Inc()
}

// SetOpenTickets reports the number of open tickets.
func (m *Metrics) SetOpenTickets(n int) {
	if m == nil {
		return
	}
	m.openTickets.Set(float64(n))
}
