// Package metrics exposes the Prometheus collectors used across the service.
// All methods are safe to call on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	submissions     *prometheus.CounterVec
	feedPublished   *prometheus.CounterVec
	feedDropped     prometheus.Counter
	consoleSessions prometheus.Gauge
	pollFailures    prometheus.Counter
	resolves        *prometheus.CounterVec
	notifyJobs      *prometheus.CounterVec
	pruned          prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_submissions_total",
			Help: "Alert submissions by outcome",
		}, []string{"outcome"}),
		feedPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_feed_events_total",
			Help: "Change events published to the alert feed",
		}, []string{"type"}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alert_feed_dropped_total",
			Help: "Change events dropped because a subscriber buffer was full",
		}),
		consoleSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alert_console_sessions",
			Help: "Mounted admin console sessions",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alert_console_poll_failures_total",
			Help: "Failed reconciliation fetches",
		}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_resolutions_total",
			Help: "Admin resolve and dismiss actions by result",
		}, []string{"action", "result"}),
		notifyJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_notify_jobs_total",
			Help: "Responder notification job executions by result",
		}, []string{"result"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alert_pruned_total",
			Help: "Resolved alerts removed by retention",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.submissions, m.feedPublished, m.feedDropped, m.consoleSessions, m.pollFailures,
		m.resolves, m.notifyJobs, m.pruned, m.httpRequests, m.httpDuration)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FeedPublished(eventType string) {
	if m == nil {
		return
	}
	m.feedPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) FeedDropped() {
	if m == nil {
		return
	}
	m.feedDropped.Inc()
}

func (m *Metrics) ConsoleMounted() {
	if m == nil {
		return
	}
	m.consoleSessions.Inc()
}

func (m *Metrics) ConsoleUnmounted() {
	if m == nil {
		return
	}
	m.consoleSessions.Dec()
}

func (m *Metrics) PollFailed() {
	if m == nil {
		return
	}
	m.pollFailures.Inc()
}

func (m *Metrics) Resolution(action, result string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(action, result).Inc()
}

func (m *Metrics) NotifyJob(result string) {
	if m == nil {
		return
	}
	m.notifyJobs.WithLabelValues(result).Inc()
}

func (m *Metrics) Pruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
