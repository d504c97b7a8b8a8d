package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "helpdesk"

// Assignment outcomes.
const (
	AssignmentAssigned   = "assigned"
	AssignmentQueued     = "queued"
	AssignmentNoEligible = "no_eligible"
)

// Metrics holds the Prometheus collectors for one process. Every method is nil-safe so
// services can run without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	assignments     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	repoRetries     *prometheus.CounterVec
	releasedTickets prometheus.Counter
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP error responses by route and error code.",
		}, []string{"route", "method", "code"}),
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Assignment attempts by mode and outcome.",
		}, []string{"mode", "outcome"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_transitions_total",
			Help:      "Ticket status transitions.",
		}, []string{"from", "to"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimistic_lock_conflicts_total",
			Help:      "Saves rejected because the stored version moved on.",
		}, []string{"resource"}),
		repoRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_retries_total",
			Help:      "Repository calls retried after a transient failure.",
		}, []string{"op"}),
		releasedTickets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deactivation_released_tickets_total",
			Help:      "Tickets returned to the queue by agent deactivation.",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordAssignment counts an assignment outcome; mode is "auto", "agent" or "group".
func (m *Metrics) RecordAssignment(mode, outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(mode, outcome).Inc()
}

// RecordTransition counts a status change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordConflict counts an optimistic-lock rejection.
func (m *Metrics) RecordConflict(resource string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(resource).Inc()
}

// RecordRetry counts a retried repository call. Its signature matches repository.RetryHook.
func (m *Metrics) RecordRetry(op string, _ int, _ error) {
	if m == nil {
		return
	}
	m.repoRetries.WithLabelValues(op).Inc()
}

// RecordReleased counts tickets released by a deactivation cascade.
func (m *Metrics) RecordReleased(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.releasedTickets.Add(float64(n))
}
