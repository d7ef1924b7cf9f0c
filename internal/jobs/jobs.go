// Package jobs runs background work persisted in the jobs table: a fixed pool
// of workers with exponential backoff and a dead-letter table for jobs that
// keep failing.
package jobs

import (
	"context"
	"time"

	"github.com/garnizeh/campuscare/internal/models"
)

// Job statuses as stored in the jobs table.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusRetry   = "retry"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Handler is the function that processes a job
type Handler func(ctx context.Context, j *models.BackgroundJob) error

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	// base 2^attempt seconds, capped
	d := time.Duration(1<<uint(min(attempt, 16))) * time.Second
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}
