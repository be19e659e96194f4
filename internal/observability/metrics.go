package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the backend and the resolver.
type Metrics struct {
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	errors         *prometheus.CounterVec

	generations    prometheus.Counter
	staleDiscards  prometheus.Counter
	profileFetches *prometheus.CounterVec
	redirects      *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "localscope_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "localscope_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "localscope_http_errors_total",
			Help: "HTTP error responses by wire code.",
		}, []string{"method", "path", "code"}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "localscope_identity_generations_total",
			Help: "Auth state changes handled by the resolver.",
		}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "localscope_identity_stale_profile_discards_total",
			Help: "Profile fetch results discarded because a newer generation started.",
		}),
		profileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "localscope_identity_profile_fetches_total",
			Help: "Profile fetch outcomes applied by the resolver.",
		}, []string{"outcome"}),
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "localscope_navigation_redirects_total",
			Help: "Navigation replaces issued by the guard.",
		}, []string{"target"}),
	}

	reg.MustRegister(
		m.requests,
		m.requestLatency,
		m.errors,
		m.generations,
		m.staleDiscards,
		m.profileFetches,
		m.redirects,
	)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// GenerationStarted counts an auth state change.
func (m *Metrics) GenerationStarted() {
	if m == nil {
		return
	}
	m.generations.Inc()
}

// StaleProfileDiscarded counts a superseded profile fetch.
func (m *Metrics) StaleProfileDiscarded() {
	if m == nil {
		return
	}
	m.staleDiscards.Inc()
}

// ProfileFetchApplied counts an applied fetch by outcome (loaded, not_found, fetch_failed).
func (m *Metrics) ProfileFetchApplied(outcome string) {
	if m == nil {
		return
	}
	m.profileFetches.WithLabelValues(outcome).Inc()
}

// Redirected counts a guard redirect.
func (m *Metrics) Redirected(target string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(target).Inc()
}
