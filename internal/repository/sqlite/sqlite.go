package sqlite

import (
	"log/slog"
	"os"
	"time"

	"github.com/garnizeh/campuscare/internal/db"
	"github.com/garnizeh/campuscare/pkg/repository"
)

// SQLiteRepo implements repository interfaces using the internal DB wrapper.
type SQLiteRepo struct {
	conn     *db.DB
	logger   *slog.Logger
	jobLease time.Duration
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.AlertRepo = (*SQLiteRepo)(nil)
var _ repository.ProfileRepo = (*SQLiteRepo)(nil)
var _ repository.PreferenceRepo = (*SQLiteRepo)(nil)
var _ repository.JobRepo = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return &SQLiteRepo{conn: conn, logger: logger, jobLease: DefaultJobLease}
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}
