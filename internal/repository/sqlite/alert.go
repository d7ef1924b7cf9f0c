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

const alertColumns = `id, user_id, user_name, user_type, status, location, latitude, longitude, additional_info, created_at, updated_at, resolved_at, resolved_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepo) InsertAlert(ctx context.Context, a *models.Alert) error {
	if a == nil {
		return fmt.Errorf("alert is nil")
	}
	row := a.ToRow()

	var info any
	if row.AdditionalInfo != nil {
		b, err := json.Marshal(row.AdditionalInfo)
		if err != nil {
			return fmt.Errorf("encode additional_info: %w", err)
		}
		info = string(b)
	}

	_, err := r.conn.Exec(ctx, `INSERT INTO emergency_alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, row.UserName, row.UserType, string(row.Status),
		nullString(row.Location), nullFloat(row.Latitude), nullFloat(row.Longitude), info,
		row.CreatedAt.UTC().UnixMilli(), row.UpdatedAt.UTC().UnixMilli(), nullTime(row.ResolvedAt), nullString(row.ResolvedBy))
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	return nil
}

func (r *SQLiteRepo) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+alertColumns+` FROM emergency_alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *SQLiteRepo) ListRecentAlerts(ctx context.Context, limit int, activeOnly bool) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 25
	}
	q := `SELECT ` + alertColumns + ` FROM emergency_alerts`
	args := []any{}
	if activeOnly {
		q += ` WHERE status = ?`
		args = append(args, string(models.StatusActive))
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Alert, 0, limit)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			if errors.Is(err, models.ErrMalformedRow) {
				r.logger.Warn("skipping malformed alert row", "err", err)
				continue
			}
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) DeleteAlert(ctx context.Context, id string) (*models.Alert, error) {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	old, err := scanAlert(tx.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM emergency_alerts WHERE id = ?`, id))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM emergency_alerts WHERE id = ?`, id); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("delete alert %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return old, nil
}

func (r *SQLiteRepo) ResolveAlert(ctx context.Context, id, by string, at time.Time) (*models.Alert, *models.Alert, error) {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return nil, nil, err
	}
	old, err := scanAlert(tx.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM emergency_alerts WHERE id = ?`, id))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if !old.Active() {
		_ = tx.Rollback()
		return nil, nil, nil
	}

	at = at.UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE emergency_alerts SET status = ?, resolved_at = ?, resolved_by = ?, updated_at = ? WHERE id = ?`,
		string(models.StatusResolved), at.UnixMilli(), by, at.UnixMilli(), id); err != nil {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("resolve alert %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	updated := old.Clone()
	updated.Status = models.StatusResolved
	updated.ResolvedAt = &at
	updated.ResolvedBy = by
	updated.UpdatedAt = at
	return old, &updated, nil
}

// PruneResolved deletes resolved or cancelled alerts last updated before the cutoff.
func (r *SQLiteRepo) PruneResolved(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.conn.Exec(ctx, `DELETE FROM emergency_alerts WHERE status != ? AND updated_at < ?`, string(models.StatusActive), before.UTC().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanAlert(s rowScanner) (*models.Alert, error) {
	var (
		id, userID, userName, userType, status string
		location, info, resolvedBy             sql.NullString
		lat, lon                               sql.NullFloat64
		created, updated                       int64
		resolvedAt                             sql.NullInt64
	)
	if err := s.Scan(&id, &userID, &userName, &userType, &status, &location, &lat, &lon, &info, &created, &updated, &resolvedAt, &resolvedBy); err != nil {
		return nil, err
	}

	raw := map[string]any{
		"id":         id,
		"user_id":    userID,
		"user_name":  userName,
		"user_type":  userType,
		"status":     status,
		"created_at": float64(created),
		"updated_at": float64(updated),
	}
	if location.Valid {
		raw["location"] = location.String
	}
	if lat.Valid {
		raw["latitude"] = lat.Float64
	}
	if lon.Valid {
		raw["longitude"] = lon.Float64
	}
	if info.Valid && info.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(info.String), &m); err != nil {
			return nil, fmt.Errorf("%w: additional_info for %s: %v", models.ErrMalformedRow, id, err)
		}
		raw["additional_info"] = m
	}
	if resolvedAt.Valid {
		raw["resolved_at"] = float64(resolvedAt.Int64)
	}
	if resolvedBy.Valid {
		raw["resolved_by"] = resolvedBy.String
	}

	a, err := models.NormalizeRow(raw)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMilli()
}
