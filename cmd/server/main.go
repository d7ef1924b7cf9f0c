package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	dbfs "github.com/garnizeh/campuscare/db"
	"github.com/garnizeh/campuscare/api"
	"github.com/garnizeh/campuscare/internal/alerts"
	"github.com/garnizeh/campuscare/internal/config"
	"github.com/garnizeh/campuscare/internal/db"
	"github.com/garnizeh/campuscare/internal/geo"
	"github.com/garnizeh/campuscare/internal/jobs"
	"github.com/garnizeh/campuscare/internal/logging"
	"github.com/garnizeh/campuscare/internal/metrics"
	"github.com/garnizeh/campuscare/internal/realtime"
	"github.com/garnizeh/campuscare/internal/repository/sqlite"
	"github.com/garnizeh/campuscare/internal/retention"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)
	api.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("err", err))
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting campuscare server", slog.String("version", version), slog.String("build_time", buildTime))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open database connection
	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, conn, dbfs.Migrations); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	repo := sqlite.New(conn, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	feed := realtime.NewFeed(instanceID(), logger, m)
	if rc := cfg.Realtime.Redis; rc.Enabled {
		client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		defer client.Close()
		relay := realtime.NewRedisRelay(client, rc.Channel, feed, logger)
		if err := relay.Start(ctx); err != nil {
			return fmt.Errorf("redis relay: %w", err)
		}
		defer relay.Close()
		logger.Info("redis relay started", slog.String("addr", rc.Addr), slog.String("channel", rc.Channel))
	}

	hub := realtime.NewHub(realtime.HubConfig{
		SendBuffer:   cfg.Realtime.SendBuffer,
		WriteTimeout: cfg.Realtime.WriteTimeout,
		PingInterval: cfg.Realtime.PingInterval,
	}, logger)
	// hijacked websocket connections are not drained by Shutdown
	defer hub.Close()

	store := alerts.NewStore(repo, feed, logger)
	subOpts := alerts.SubmitterOptions{
		Profiles:     alerts.NewProfileLookup(repo, cfg.Alerts.ProfileCacheTTL, logger),
		Dialer:       alerts.TelDialer{Number: cfg.Alerts.EmergencyNumber},
		Metrics:      m,
		Logger:       logger,
		ReplayWindow: cfg.Alerts.DedupWindow,
	}
	if url := cfg.Notify.WebhookURL; url != "" {
		client := &http.Client{Timeout: cfg.Notify.Timeout}
		repo.SetJobLease(cfg.Notify.Lease)
		pool := jobs.NewWorkerPool(repo, map[string]jobs.Handler{
			jobs.NotifyAlertType: jobs.WebhookHandler(client, url, m, logger),
		}, jobs.Options{Workers: cfg.Notify.Workers, Logger: logger})
		notifier, err := jobs.NewAlertNotifier(pool, cfg.Notify.MaxAttempts, cfg.Notify.Message, logger)
		if err != nil {
			return err
		}
		pool.Start(ctx)
		defer pool.Stop()
		subOpts.Notifier = notifier
		logger.Info("responder webhook enabled", slog.Int("workers", cfg.Notify.Workers))
	}
	submitter := alerts.NewSubmitter(store, subOpts)

	pruner := retention.New(store, cfg.Retention.Keep, m, logger)
	if err := pruner.Start(ctx, cfg.Retention.Schedule); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	defer pruner.Stop()

	handler := api.SetupRoutes(api.Deps{
		Config:      cfg,
		Version:     version,
		BuildTime:   buildTime,
		DB:          conn.GetConn(),
		Store:       store,
		Submitter:   submitter,
		Hub:         hub,
		Planner:     geo.NewPlanner(cfg.Map),
		Preferences: repo,
		Metrics:     m,
	})

	// Create HTTP server. WriteTimeout stays unset: admin consoles hold
	// long-lived websocket connections.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.APITimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("err", err))
	}

	logger.Info("server exited")
	return nil
}

// instanceID tags events published by this process so the Redis relay can
// skip its own messages.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "campuscare"
	}
	return host + "-" + uuid.NewString()[:8]
}
