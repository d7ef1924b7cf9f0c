package api_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garnizeh/campuscare/api"
)

func TestSystemHandlers(t *testing.T) {
	h := &api.SystemHandler{}

	// HealthHandler
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.HealthHandler(w, req)
	res := w.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: expected 200 got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("health: expected json content-type, got %q", ct)
	}
	b, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(b), `"status":"ok"`) {
		t.Fatalf("health: unexpected body %s", string(b))
	}

	// VersionHandler
	vh := h.VersionHandler("1.2.3", "2025-08-24T00:00:00Z")
	req2 := httptest.NewRequest(http.MethodGet, "/version", nil)
	w2 := httptest.NewRecorder()
	vh(w2, req2)
	res2 := w2.Result()
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("version: expected 200 got %d", res2.StatusCode)
	}
	b2, _ := io.ReadAll(res2.Body)
	if !strings.Contains(string(b2), `"version":"1.2.3"`) || !strings.Contains(string(b2), `"buildTime":"2025-08-24T00:00:00Z"`) {
		t.Fatalf("version: unexpected body %s", string(b2))
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthHandlerDatabase(t *testing.T) {
	cases := []struct {
		name string
		ping pingerFunc
		want int
		body string
	}{
		{name: "Up", ping: func(context.Context) error { return nil }, want: http.StatusOK, body: `"service":"campuscare"`},
		{name: "Down", ping: func(context.Context) error { return errors.New("database is locked") }, want: http.StatusServiceUnavailable, body: `"status":"unavailable"`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := &api.SystemHandler{DB: c.ping}
			w := httptest.NewRecorder()
			h.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			res := w.Result()
			defer res.Body.Close()
			if res.StatusCode != c.want {
				t.Fatalf("expected %d got %d", c.want, res.StatusCode)
			}
			b, _ := io.ReadAll(res.Body)
			if !strings.Contains(string(b), c.body) {
				t.Fatalf("unexpected body %s", string(b))
			}
		})
	}
}
