package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garnizeh/campuscare/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Addr:         ":8080",
		JWTSecret:    "strongsecret",
		APITimeout:   5 * time.Second,
		DatabasePath: "campuscare.db",
		Alerts:       config.AlertsConfig{EmergencyNumber: "112"},
	}
}

func TestValidate_InsecureJWT_FailsWhenNotDevelopment(t *testing.T) {
	t.Setenv("CAMPUS_ENV", "production")

	cfg := validConfig()
	cfg.JWTSecret = "supersecretkey"

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to fail for insecure JWT in non-development env")
	}
}

func TestValidate_InsecureJWT_AllowsDevelopment(t *testing.T) {
	t.Setenv("CAMPUS_ENV", "development")

	cfg := validConfig()
	cfg.JWTSecret = "supersecretkey"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected Validate to succeed in development env, got: %v", err)
	}
}

func TestValidate_MissingEmergencyNumber(t *testing.T) {
	cfg := validConfig()
	cfg.Alerts.EmergencyNumber = ""

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to fail when alerts.emergency_number is empty")
	}
}

func TestValidate_DefaultsPopulated(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed unexpectedly: %v", err)
	}

	if cfg.Alerts.RecentLimit != 25 {
		t.Fatalf("expected recent limit 25, got %d", cfg.Alerts.RecentLimit)
	}
	if cfg.Alerts.PollInterval != 12*time.Second {
		t.Fatalf("expected poll interval 12s, got %v", cfg.Alerts.PollInterval)
	}
	if cfg.Map.FocusZoom != 16 || cfg.Map.MaxZoom != 18 || cfg.Map.TileSize != 256 {
		t.Fatalf("unexpected map defaults: %+v", cfg.Map)
	}
	if cfg.Realtime.Redis.Channel == "" {
		t.Fatalf("expected redis channel default")
	}
	if cfg.Retention.Schedule != "@daily" {
		t.Fatalf("unexpected retention schedule %q", cfg.Retention.Schedule)
	}
	if cfg.Notify.MaxAttempts <= 0 || cfg.Notify.Workers <= 0 {
		t.Fatalf("expected notify defaults, got %+v", cfg.Notify)
	}
	if cfg.Notify.Lease != 2*time.Minute {
		t.Fatalf("expected 2m job lease, got %v", cfg.Notify.Lease)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"empty addr", func(c *config.Config) { c.Addr = "" }},
		{"empty db path", func(c *config.Config) { c.DatabasePath = "" }},
		{"recent limit too large", func(c *config.Config) { c.Alerts.RecentLimit = 1000 }},
		{"default center out of range", func(c *config.Config) { c.Map.DefaultLat = 95 }},
		{"min zoom above max", func(c *config.Config) { c.Map.MinZoom = 20; c.Map.MaxZoom = 10 }},
		{"redis without addr", func(c *config.Config) { c.Realtime.Redis = config.RedisConfig{Enabled: true} }},
		{"job lease within webhook timeout", func(c *config.Config) { c.Notify.Timeout = time.Minute; c.Notify.Lease = 30 * time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CAMPUS_ADDR", "")
	t.Setenv("CAMPUS_JWT_SECRET", "")
	t.Setenv("CAMPUS_DATABASE_PATH", "")
	t.Setenv("CAMPUS_EMERGENCY_NUMBER", "")

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error for empty path: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected Addr: got %q want %q", cfg.Addr, ":8080")
	}
	if cfg.DatabasePath != "campuscare.db" {
		t.Fatalf("unexpected DatabasePath: got %q", cfg.DatabasePath)
	}
	if cfg.APITimeout != 15*time.Second {
		t.Fatalf("unexpected APITimeout: got %v want %v", cfg.APITimeout, 15*time.Second)
	}
	if cfg.Alerts.EmergencyNumber != "112" {
		t.Fatalf("unexpected emergency number %q", cfg.Alerts.EmergencyNumber)
	}
	if !cfg.MigrateOnStart {
		t.Fatalf("expected migrate_on_start default true")
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("addr: \":9090\"\njwt_secret: \"filekey\"\ntimeout: \"30s\"\ndatabase_path: \"test.db\"\n" +
		"alerts:\n  emergency_number: \"911\"\n  poll_interval: \"5s\"\n  recent_limit: 10\n" +
		"map:\n  default_lat: 40.5\n  default_lon: -74.4\n  default_zoom: 14\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error for file: %v", err)
	}

	if cfg.Addr != ":9090" || cfg.JWTSecret != "filekey" || cfg.DatabasePath != "test.db" {
		t.Fatalf("unexpected top-level values: %+v", cfg)
	}
	if cfg.APITimeout != 30*time.Second {
		t.Fatalf("unexpected APITimeout: got %v", cfg.APITimeout)
	}
	if cfg.Alerts.EmergencyNumber != "911" || cfg.Alerts.PollInterval != 5*time.Second || cfg.Alerts.RecentLimit != 10 {
		t.Fatalf("unexpected alerts section: %+v", cfg.Alerts)
	}
	if cfg.Map.DefaultLat != 40.5 || cfg.Map.DefaultZoom != 14 {
		t.Fatalf("unexpected map section: %+v", cfg.Map)
	}
}

func TestLoadConfig_BadPath(t *testing.T) {
	if _, err := config.LoadConfig("/path/that/does/not/exist.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent path, got nil")
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unterminated"), 0o600); err != nil {
		t.Fatalf("failed to write bad yaml: %v", err)
	}

	if _, err := config.LoadConfig(path); err == nil {
		t.Fatalf("expected YAML decode error, got nil")
	}
}
