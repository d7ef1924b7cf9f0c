package api_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dbfs "github.com/garnizeh/campuscare/db"
	"github.com/garnizeh/campuscare/api"
	"github.com/garnizeh/campuscare/internal/alerts"
	"github.com/garnizeh/campuscare/internal/config"
	"github.com/garnizeh/campuscare/internal/db"
	"github.com/garnizeh/campuscare/internal/geo"
	"github.com/garnizeh/campuscare/internal/metrics"
	"github.com/garnizeh/campuscare/internal/realtime"
	"github.com/garnizeh/campuscare/internal/repository/sqlite"
	"github.com/garnizeh/campuscare/pkg/repository"
)

const testSecret = "test-secret"

type testServer struct {
	srv  *httptest.Server
	repo *sqlite.SQLiteRepo
	hub  *realtime.Hub
	feed *realtime.Feed
}

func testConfig() *config.Config {
	cfg := &config.Config{Addr: ":0", JWTSecret: testSecret, DatabasePath: ":memory:"}
	cfg.Alerts.EmergencyNumber = "112"
	cfg.Alerts.PollInterval = time.Hour
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// setupServer wires the full router over an in-memory database. alertRepo
// overrides the alert storage when non-nil.
func setupServer(t *testing.T, alertRepo repository.AlertRepo) *testServer {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
		d.Close()
		t.Fatalf("migrate: %v", err)
	}
	cfg := testConfig()
	repo := sqlite.New(d, nil)
	if alertRepo == nil {
		alertRepo = repo
	}
	m := metrics.New(nil)
	feed := realtime.NewFeed("test", nil, m)
	store := alerts.NewStore(alertRepo, feed, nil)
	submitter := alerts.NewSubmitter(store, alerts.SubmitterOptions{
		Profiles: alerts.NewProfileLookup(repo, time.Minute, nil),
		Dialer:   alerts.TelDialer{Number: cfg.Alerts.EmergencyNumber},
		Metrics:  m,
	})
	hub := realtime.NewHub(realtime.HubConfig{}, nil)

	router := api.SetupRoutes(api.Deps{
		Config:      cfg,
		Version:     "1.0.0",
		BuildTime:   "now",
		DB:          d.GetConn(),
		Store:       store,
		Submitter:   submitter,
		Hub:         hub,
		Planner:     geo.NewPlanner(cfg.Map),
		Preferences: repo,
		Metrics:     m,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		d.Close()
	})
	return &testServer{srv: srv, repo: repo, hub: hub, feed: feed}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func studentToken(t *testing.T) string {
	return signToken(t, jwt.MapClaims{"sub": "u1", "email": "asha@campus.edu", "name": "Asha Rao", "roll_number": "CS-101", "user_type": "student"})
}

func adminToken(t *testing.T) string {
	return signToken(t, jwt.MapClaims{"sub": "admin-1", "name": "Warden"})
}
