package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/campuscare/internal/models"
)

// DefaultJobLease is how long a claimed job may stay running before another
// worker is allowed to take it over.
const DefaultJobLease = 2 * time.Minute

const jobColumns = `id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, lease_until, created, updated`

// SetJobLease changes the claim lease. It must outlast the slowest handler,
// otherwise a live job is handed out twice. Call it before the repo is shared.
func (r *SQLiteRepo) SetJobLease(d time.Duration) {
	if d < 0 {
		d = DefaultJobLease
	}
	r.jobLease = d
}

// Enqueue stores j as queued and sets its ID.
func (r *SQLiteRepo) Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error) {
	if j == nil {
		return 0, errors.New("enqueue: nil job")
	}
	ts := time.Now().UTC()
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = 5
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = ts
	}
	j.Status = "queued"

	res, err := r.conn.Exec(ctx, `INSERT INTO jobs (type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated)
		VALUES (?, ?, 'queued', ?, ?, ?, ?, ?, ?)`,
		j.Type, string(j.Payload), j.Attempts, j.MaxAttempts, j.Priority, j.ScheduledAt.UTC().Unix(), ts.Unix(), ts.Unix())
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", j.Type, err)
	}
	if j.ID, err = res.LastInsertId(); err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", j.Type, err)
	}
	return j.ID, nil
}

// FetchNext claims the most urgent due job under a lease and returns it, or
// nil when nothing is due. Running jobs whose lease ran out are requeued first,
// so work held by a crashed process is picked up again.
func (r *SQLiteRepo) FetchNext(ctx context.Context) (*models.BackgroundJob, error) {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch next job: %w", err)
	}
	defer tx.Rollback()

	ts := time.Now().UTC().Unix()
	if err := r.requeueStale(ctx, tx, ts); err != nil {
		return nil, err
	}

	j, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE status IN ('queued', 'retry') AND scheduled_at <= ? AND (next_try_at IS NULL OR next_try_at <= ?)
		ORDER BY priority, scheduled_at, id LIMIT 1`, ts, ts))
	if errors.Is(err, sql.ErrNoRows) {
		// keep whatever requeueStale released
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, fmt.Errorf("fetch next job: %w", err)
	}

	lease := ts + int64(r.jobLease/time.Second)
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = 'running', lease_until = ?, updated = ? WHERE id = ?`, lease, ts, j.ID); err != nil {
		return nil, fmt.Errorf("claim job %d: %w", j.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim job %d: %w", j.ID, err)
	}

	leaseUntil := time.Unix(lease, 0).UTC()
	j.Status = "running"
	j.LeaseUntil = &leaseUntil
	j.Updated = time.Unix(ts, 0).UTC()
	return j, nil
}

// requeueStale puts running jobs with an expired lease back in the queue. The
// lost run counts as an attempt so a job that kills its worker still ends up
// dead-lettered.
func (r *SQLiteRepo) requeueStale(ctx context.Context, tx *sql.Tx, ts int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE jobs
		SET status = 'retry', attempts = attempts + 1, last_error = 'lease expired', next_try_at = NULL, lease_until = NULL, updated = ?
		WHERE status = 'running' AND COALESCE(lease_until, 0) <= ?`, ts, ts)
	if err != nil {
		return fmt.Errorf("requeue stale jobs: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		r.logger.Warn("requeued jobs with expired lease", "count", n)
	}
	return nil
}

// UpdateJob writes the outcome of a run and releases the lease.
func (r *SQLiteRepo) UpdateJob(ctx context.Context, j *models.BackgroundJob) error {
	var nextTry sql.NullInt64
	if j.NextTryAt != nil {
		nextTry = sql.NullInt64{Int64: j.NextTryAt.UTC().Unix(), Valid: true}
	}
	lastErr := sql.NullString{String: j.LastError, Valid: j.LastError != ""}
	if _, err := r.conn.Exec(ctx, `UPDATE jobs
		SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, lease_until = NULL, updated = ?
		WHERE id = ?`, j.Status, j.Attempts, nextTry, lastErr, time.Now().UTC().Unix(), j.ID); err != nil {
		return fmt.Errorf("update job %d: %w", j.ID, err)
	}
	j.LeaseUntil = nil
	return nil
}

// MoveToDeadLetter records j in dead_letter_jobs and removes it from the queue
// in one transaction.
func (r *SQLiteRepo) MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("dead-letter job %d: %w", j.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO dead_letter_jobs (job_id, type, payload, attempts, last_error, failed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, time.Now().UTC().Unix()); err != nil {
		return fmt.Errorf("dead-letter job %d: %w", j.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID); err != nil {
		return fmt.Errorf("dead-letter job %d: %w", j.ID, err)
	}
	return tx.Commit()
}

func scanJob(row rowScanner) (*models.BackgroundJob, error) {
	var (
		j                             models.BackgroundJob
		payload, lastErr              sql.NullString
		nextTry, leaseUntil           sql.NullInt64
		scheduledAt, created, updated int64
	)
	if err := row.Scan(&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &j.MaxAttempts, &j.Priority,
		&scheduledAt, &nextTry, &lastErr, &leaseUntil, &created, &updated); err != nil {
		return nil, err
	}
	if payload.Valid {
		j.Payload = json.RawMessage(payload.String)
	}
	j.LastError = lastErr.String
	j.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	j.Created = time.Unix(created, 0).UTC()
	j.Updated = time.Unix(updated, 0).UTC()
	j.NextTryAt = unixPtr(nextTry)
	j.LeaseUntil = unixPtr(leaseUntil)
	return &j, nil
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
