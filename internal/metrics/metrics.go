// ABOUTME: Prometheus collectors for HTTP traffic, chat sessions and completions
// ABOUTME: A nil *Metrics is valid and records nothing

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "metrosha"

// Metrics owns a private registry and the gateway's collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	activeSessions     prometheus.Gauge
	sessionsRejected   prometheus.Counter
	completions        *prometheus.CounterVec
	completionDuration prometheus.Histogram
	completionTokens   *prometheus.CounterVec
	authFailures       *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry,
// together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_sessions_active",
			Help:      "Chat sessions currently open.",
		}),
		sessionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_sessions_rejected_total",
			Help:      "Chat sessions closed during the handshake.",
		}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completion calls by role and outcome.",
		}, []string{"role", "outcome"}),
		completionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Completion call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		completionTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_tokens_total",
			Help:      "Tokens consumed by completions by role and kind.",
		}, []string{"role", "kind"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected credentials or tokens by path.",
		}, []string{"path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.activeSessions,
		m.sessionsRejected,
		m.completions,
		m.completionDuration,
		m.completionTokens,
		m.authFailures,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished HTTP request.
func (m *Metrics) ObserveHTTP(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// SessionOpened marks a chat session as active.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed marks a chat session as finished.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// SessionRejected counts a handshake that failed authentication.
func (m *Metrics) SessionRejected() {
	if m == nil {
		return
	}
	m.sessionsRejected.Inc()
}

// ObserveCompletion records one completion call. outcome is "ok", "error"
// or "discarded".
func (m *Metrics) ObserveCompletion(role, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(role, outcome).Inc()
	m.completionDuration.Observe(elapsed.Seconds())
}

// AddTokens records token consumption of a successful completion.
func (m *Metrics) AddTokens(role string, prompt, completion int) {
	if m == nil {
		return
	}
	m.completionTokens.WithLabelValues(role, "prompt").Add(float64(prompt))
	m.completionTokens.WithLabelValues(role, "completion").Add(float64(completion))
}

// AuthFailure counts a rejected credential on path ("header", "stream" or "login").
func (m *Metrics) AuthFailure(path string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(path).Inc()
}
