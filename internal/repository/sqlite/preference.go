package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/campuscare/pkg/models"
)

func (r *SQLiteRepo) GetPreference(ctx context.Context, userID, key string) (*models.Preference, error) {
	row := r.conn.QueryRow(ctx, `SELECT user_id, pref_key, pref_value, updated FROM user_preferences WHERE user_id = ? AND pref_key = ?`, userID, key)
	var p models.Preference
	if err := row.Scan(&p.UserID, &p.Key, &p.Value, &p.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return &p, nil
}

func (r *SQLiteRepo) PutPreference(ctx context.Context, p *models.Preference) error {
	if p == nil {
		return fmt.Errorf("preference is nil")
	}

	p.Updated = now()
	_, err := r.conn.Exec(ctx, `INSERT INTO user_preferences (user_id, pref_key, pref_value, updated) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, pref_key) DO UPDATE SET pref_value=excluded.pref_value, updated=excluded.updated`,
		p.UserID, p.Key, p.Value, p.Updated)
	return err
}
