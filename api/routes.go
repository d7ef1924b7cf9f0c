package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/campuscare/internal/alerts"
	"github.com/garnizeh/campuscare/internal/config"
	"github.com/garnizeh/campuscare/internal/console"
	"github.com/garnizeh/campuscare/internal/geo"
	"github.com/garnizeh/campuscare/internal/metrics"
	"github.com/garnizeh/campuscare/internal/realtime"
	"github.com/garnizeh/campuscare/pkg/repository"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Config      *config.Config
	Version     string
	BuildTime   string
	DB          Pinger
	Store       *alerts.Store
	Submitter   *alerts.Submitter
	Hub         *realtime.Hub
	Planner     *geo.Planner
	Preferences repository.PreferenceRepo
	Metrics     *metrics.Metrics
}

func SetupRoutes(d Deps) *mux.Router {
	cfg := d.Config
	r := mux.NewRouter()

	// Middleware chain
	r.Use(RecoveryMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware(d.Metrics))
	r.Use(CORSMiddleware)

	systemHandler := &SystemHandler{DB: d.DB}
	alertsHandler := NewAlertsHandler(d.Store, d.Submitter, d.Planner, cfg.Alerts.RecentLimit)
	consoleHandler := NewConsoleHandler(d.Store, d.Hub, d.Planner, console.Options{
		Limit:        cfg.Alerts.RecentLimit,
		PollInterval: cfg.Alerts.PollInterval,
		FeedBuffer:   cfg.Realtime.FeedBuffer,
		Metrics:      d.Metrics,
		Logger:       logger,
	})
	prefsHandler := NewPreferencesHandler(d.Preferences)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(d.Version, d.BuildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.Handle("/metrics", d.Metrics.Handler()).Methods("GET")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	// Alerts; the map route is registered before {id} so it is not taken for one
	apiV1.HandleFunc("/alerts", alertsHandler.Submit).Methods("POST")
	apiV1.HandleFunc("/alerts", alertsHandler.List).Methods("GET")
	apiV1.HandleFunc("/alerts/map", alertsHandler.Map).Methods("GET")
	apiV1.HandleFunc("/alerts/{id}", alertsHandler.Get).Methods("GET")
	apiV1.HandleFunc("/alerts/{id}/resolve", alertsHandler.Resolve).Methods("POST")
	apiV1.HandleFunc("/alerts/{id}", alertsHandler.Dismiss).Methods("DELETE")

	// Admin console
	apiV1.HandleFunc("/admin/console", consoleHandler.Serve).Methods("GET")

	// Preferences
	apiV1.HandleFunc("/preferences/{key}", prefsHandler.Get).Methods("GET")
	apiV1.HandleFunc("/preferences/{key}", prefsHandler.Put).Methods("PUT")

	// preflight requests reach CORSMiddleware through a matched route
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	return r
}
