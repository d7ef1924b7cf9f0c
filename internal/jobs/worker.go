package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/garnizeh/campuscare/internal/models"
	"github.com/garnizeh/campuscare/pkg/repository"
)

type Options struct {
	Workers int
	// Idle is how long a worker waits when the queue is empty.
	Idle    time.Duration
	Backoff func(attempt int) time.Duration
	Logger  *slog.Logger
}

type WorkerPool struct {
	repo     repository.JobRepo
	handlers map[string]Handler
	logger   *slog.Logger
	workers  int
	idle     time.Duration
	backoff  func(int) time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorkerPool(repo repository.JobRepo, handlers map[string]Handler, opts Options) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Idle <= 0 {
		opts.Idle = 500 * time.Millisecond
	}
	if opts.Backoff == nil {
		opts.Backoff = BackoffDuration
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &WorkerPool{
		repo:     repo,
		handlers: handlers,
		logger:   opts.Logger,
		workers:  opts.Workers,
		idle:     opts.Idle,
		backoff:  opts.Backoff,
		stop:     make(chan struct{}),
	}
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them. Safe to call twice.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// sleep waits d and reports false when the pool is stopping.
func (p *WorkerPool) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.stop:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Debug("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Debug("context canceled, worker exiting", "id", id)
			return
		default:
		}

		job, err := p.repo.FetchNext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("fetch job", "err", err)
			}
			if !p.sleep(ctx, 2*p.idle) {
				return
			}
			continue
		}
		if job == nil {
			if !p.sleep(ctx, p.idle) {
				return
			}
			continue
		}
		p.run(ctx, job)
	}
}

// bookkeepingTimeout bounds the writes that record a run's outcome. They run
// detached from the pool context so a shutdown mid-job still releases it.
const bookkeepingTimeout = 5 * time.Second

func (p *WorkerPool) run(ctx context.Context, job *models.BackgroundJob) {
	h, ok := p.handlers[job.Type]
	if !ok {
		job.Status = StatusFailed
		job.LastError = "no handler"
		p.deadLetter(ctx, job)
		return
	}

	err := h(ctx, job)
	switch {
	case err == nil:
		job.Status = StatusDone
		p.update(ctx, job, "mark job done")
		return
	case ctx.Err() != nil:
		// interrupted by shutdown: not the job's fault, hand it straight back
		job.Status = StatusRetry
		job.NextTryAt = nil
		job.LastError = "interrupted: " + err.Error()
		p.logger.Info("job interrupted, requeued", "job_id", job.ID, "type", job.Type)
		p.update(ctx, job, "requeue interrupted job")
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		p.logger.Warn("job failed permanently", "job_id", job.ID, "type", job.Type, "attempts", job.Attempts, "err", err)
		p.deadLetter(ctx, job)
		return
	}

	next := time.Now().Add(p.backoff(job.Attempts))
	job.NextTryAt = &next
	job.Status = StatusRetry
	p.logger.Info("job will retry", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts, "next_try_at", next)
	p.update(ctx, job, "update job for retry")
}

func (p *WorkerPool) update(ctx context.Context, job *models.BackgroundJob, what string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	if err := p.repo.UpdateJob(ctx, job); err != nil {
		p.logger.Error(what, "job_id", job.ID, "err", err)
	}
}

func (p *WorkerPool) deadLetter(ctx context.Context, job *models.BackgroundJob) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	if err := p.repo.MoveToDeadLetter(ctx, job); err != nil {
		p.logger.Error("move to dead letter", "job_id", job.ID, "err", err)
	}
}

// Enqueue convenience helper that creates a job and persists it
func (p *WorkerPool) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	j := &models.BackgroundJob{Type: typ, Payload: b, Priority: priority, MaxAttempts: maxAttempts, ScheduledAt: time.Now()}
	return p.repo.Enqueue(ctx, j)
}
