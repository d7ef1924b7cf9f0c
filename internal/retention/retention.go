// Package retention removes resolved alerts once they are older than the
// configured retention period.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/garnizeh/campuscare/internal/metrics"
)

// Pruner deletes non-active alerts last updated before a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type Job struct {
	pruner  Pruner
	keep    time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	cron *cron.Cron
}

func New(p Pruner, keep time.Duration, m *metrics.Metrics, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{pruner: p, keep: keep, metrics: m, logger: logger, now: time.Now}
}

// RunOnce prunes everything older than the retention period.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.keep)
	n, err := j.pruner.Prune(ctx, cutoff)
	if err != nil {
		j.logger.Error("retention prune failed", "err", err)
		return 0, err
	}
	j.metrics.Pruned(n)
	if n > 0 {
		j.logger.Info("pruned resolved alerts", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Start schedules RunOnce with a standard cron spec or descriptor such as
// "@daily". Runs never overlap.
func (j *Job) Start(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { _, _ = j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("retention schedule %q: %w", schedule, err)
	}
	j.cron = c
	c.Start()
	return nil
}

// Stop halts the scheduler and waits for a running prune to finish.
func (j *Job) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}
