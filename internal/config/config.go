package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const insecureDevSecret = "supersecretkey"

type Config struct {
	Addr           string          `yaml:"addr"`
	JWTSecret      string          `yaml:"jwt_secret"`
	APITimeout     time.Duration   `yaml:"timeout"`
	DatabasePath   string          `yaml:"database_path"`
	MigrateOnStart bool            `yaml:"migrate_on_start"`
	Log            LogConfig       `yaml:"log"`
	Alerts         AlertsConfig    `yaml:"alerts"`
	Map            MapConfig       `yaml:"map"`
	Realtime       RealtimeConfig  `yaml:"realtime"`
	Notify         NotifyConfig    `yaml:"notify"`
	Retention      RetentionConfig `yaml:"retention"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type AlertsConfig struct {
	EmergencyNumber string        `yaml:"emergency_number"`
	RecentLimit     int           `yaml:"recent_limit"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	DedupWindow     time.Duration `yaml:"dedup_window"`
	ProfileCacheTTL time.Duration `yaml:"profile_cache_ttl"`
}

// MapConfig holds the default region shown when there is nothing to plot and the
// zoom levels used for focus and fit-bounds views.
type MapConfig struct {
	DefaultLat      float64 `yaml:"default_lat"`
	DefaultLon      float64 `yaml:"default_lon"`
	DefaultZoom     float64 `yaml:"default_zoom"`
	FocusZoom       float64 `yaml:"focus_zoom"`
	SinglePointZoom float64 `yaml:"single_point_zoom"`
	MinZoom         float64 `yaml:"min_zoom"`
	MaxZoom         float64 `yaml:"max_zoom"`
	PaddingPx       float64 `yaml:"padding_px"`
	TileSize        float64 `yaml:"tile_size"`
}

type RealtimeConfig struct {
	FeedBuffer   int           `yaml:"feed_buffer"`
	SendBuffer   int           `yaml:"send_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	Redis        RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// NotifyConfig configures the responder webhook called for every new alert.
// An empty WebhookURL disables the notification jobs.
type NotifyConfig struct {
	WebhookURL  string        `yaml:"webhook_url"`
	Timeout     time.Duration `yaml:"timeout"`
	Workers     int           `yaml:"workers"`
	MaxAttempts int           `yaml:"max_attempts"`
	// Lease bounds how long a claimed job may run before another worker
	// reclaims it. It must exceed Timeout.
	Lease       time.Duration `yaml:"lease"`
	// Message is a text/template over the alert, sent as the payload text.
	Message     string        `yaml:"message"`
}

type RetentionConfig struct {
	Schedule string        `yaml:"schedule"`
	Keep     time.Duration `yaml:"keep"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:           getEnv("CAMPUS_ADDR", ":8080"),
		JWTSecret:      getEnv("CAMPUS_JWT_SECRET", insecureDevSecret),
		APITimeout:     15 * time.Second,
		DatabasePath:   getEnv("CAMPUS_DATABASE_PATH", "campuscare.db"),
		MigrateOnStart: getEnvBool("CAMPUS_MIGRATE_ON_START", true),
		Log: LogConfig{
			Level: getEnv("CAMPUS_LOG_LEVEL", "info"),
			File:  getEnv("CAMPUS_LOG_FILE", ""),
		},
		Alerts: AlertsConfig{
			EmergencyNumber: getEnv("CAMPUS_EMERGENCY_NUMBER", "112"),
		},
		Realtime: RealtimeConfig{
			Redis: RedisConfig{
				Enabled: getEnvBool("CAMPUS_REDIS_ENABLED", false),
				Addr:    getEnv("CAMPUS_REDIS_ADDR", "localhost:6379"),
			},
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("CAMPUS_NOTIFY_WEBHOOK_URL", ""),
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate fills unset values with defaults and rejects configurations that are
// unsafe to run outside development.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.JWTSecret == insecureDevSecret && !IsDevelopment() {
		return errors.New("jwt_secret uses the insecure development default")
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 28
	}

	a := &c.Alerts
	if a.EmergencyNumber == "" {
		return errors.New("alerts.emergency_number is required")
	}
	if a.RecentLimit <= 0 {
		a.RecentLimit = 25
	}
	if a.RecentLimit > 500 {
		return fmt.Errorf("alerts.recent_limit %d exceeds 500", a.RecentLimit)
	}
	if a.PollInterval <= 0 {
		a.PollInterval = 12 * time.Second
	}
	if a.DedupWindow <= 0 {
		a.DedupWindow = 10 * time.Second
	}
	if a.ProfileCacheTTL <= 0 {
		a.ProfileCacheTTL = 5 * time.Minute
	}

	m := &c.Map
	if m.DefaultZoom <= 0 {
		// campus-agnostic fallback: whole-world view
		m.DefaultZoom = 2
	}
	if m.FocusZoom <= 0 {
		m.FocusZoom = 16
	}
	if m.SinglePointZoom <= 0 {
		m.SinglePointZoom = 15
	}
	if m.MaxZoom <= 0 {
		m.MaxZoom = 18
	}
	if m.MinZoom < 0 || m.MinZoom > m.MaxZoom {
		return fmt.Errorf("map.min_zoom %v out of range", m.MinZoom)
	}
	if m.PaddingPx <= 0 {
		m.PaddingPx = 40
	}
	if m.TileSize <= 0 {
		m.TileSize = 256
	}
	if m.DefaultLat < -90 || m.DefaultLat > 90 || m.DefaultLon < -180 || m.DefaultLon > 180 {
		return errors.New("map default center out of range")
	}

	r := &c.Realtime
	if r.FeedBuffer <= 0 {
		r.FeedBuffer = 64
	}
	if r.SendBuffer <= 0 {
		r.SendBuffer = 32
	}
	if r.WriteTimeout <= 0 {
		r.WriteTimeout = 10 * time.Second
	}
	if r.PingInterval <= 0 {
		r.PingInterval = 30 * time.Second
	}
	if r.Redis.Enabled && r.Redis.Addr == "" {
		return errors.New("realtime.redis.addr is required when redis is enabled")
	}
	if r.Redis.Channel == "" {
		r.Redis.Channel = "campuscare:alerts"
	}

	n := &c.Notify
	if n.Timeout <= 0 {
		n.Timeout = 5 * time.Second
	}
	if n.Workers <= 0 {
		n.Workers = 2
	}
	if n.MaxAttempts <= 0 {
		n.MaxAttempts = 5
	}
	if n.Lease <= 0 {
		n.Lease = 2 * time.Minute
	}
	if n.Lease <= n.Timeout {
		return fmt.Errorf("notify.lease (%s) must exceed notify.timeout (%s)", n.Lease, n.Timeout)
	}

	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "@daily"
	}
	if c.Retention.Keep <= 0 {
		c.Retention.Keep = 30 * 24 * time.Hour
	}

	return nil
}

// IsDevelopment reports whether CAMPUS_ENV selects the development environment.
func IsDevelopment() bool {
	env := os.Getenv("CAMPUS_ENV")
	return env == "development" || env == "dev"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
