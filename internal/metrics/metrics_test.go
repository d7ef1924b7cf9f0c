package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/garnizeh/campuscare/internal/metrics"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.Submission("ok")
	m.FeedPublished("INSERT")
	m.FeedDropped()
	m.ConsoleMounted()
	m.ConsoleUnmounted()
	m.PollFailed()
	m.Resolution("resolve", "ok")
	m.NotifyJob("ok")
	m.Pruned(3)
	m.ObserveHTTP("GET", "/health", 200, time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", w.Code)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.Submission("stored")
	m.Submission("stored")
	m.FeedPublished("INSERT")
	m.ObserveHTTP("POST", "/v1/alerts", 201, 5*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	body := string(b)

	for _, want := range []string{
		`alert_submissions_total{outcome="stored"} 2`,
		`alert_feed_events_total{type="INSERT"} 1`,
		`http_requests_total{method="POST",route="/v1/alerts",status="201"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in exposition:\n%s", want, body)
		}
	}
}
