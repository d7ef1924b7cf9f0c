package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/campuscare/pkg/models"
)

func (r *SQLiteRepo) UpsertProfile(ctx context.Context, p *models.Profile) error {
	if p == nil {
		return fmt.Errorf("profile is nil")
	}

	_, err := r.conn.Exec(ctx, `INSERT INTO profiles (user_id, full_name, roll_number, user_type, phone, address, updated) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET full_name=excluded.full_name, roll_number=excluded.roll_number, user_type=excluded.user_type, phone=excluded.phone, address=excluded.address, updated=excluded.updated`,
		p.UserID, p.FullName, p.RollNumber, p.UserType, p.Phone, p.Address, now())
	return err
}

func (r *SQLiteRepo) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	row := r.conn.QueryRow(ctx, `SELECT user_id, full_name, roll_number, user_type, phone, address, updated FROM profiles WHERE user_id = ?`, userID)
	var p models.Profile
	if err := row.Scan(&p.UserID, &p.FullName, &p.RollNumber, &p.UserType, &p.Phone, &p.Address, &p.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return &p, nil
}
