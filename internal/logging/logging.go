// Package logging builds the process-wide slog logger from configuration.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"

	"github.com/garnizeh/campuscare/internal/config"
)

// New returns a JSON slog logger. When cfg.File is set output goes to a
// size-rotated file, otherwise to stdout. The returned closer releases the file.
func New(cfg config.LogConfig) (*slog.Logger, io.Closer) {
	var w io.WriteCloser = nopCloser{os.Stdout}
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(h), w
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
