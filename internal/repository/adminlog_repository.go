package repository

import (
	"context"
	"fmt"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/models"
)

type AdminLogRepository struct {
	dbm *database.Manager
}

func NewAdminLogRepository(dbm *database.Manager) *AdminLogRepository {
	return &AdminLogRepository{dbm: dbm}
}

func (r *AdminLogRepository) Append(ctx context.Context, adminID int64, action string, targetUserID int64, details string) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO admin_logs (admin_id, action, target_user_id, details)
VALUES ($1, $2, $3, $4)`
	if _, err := db.ExecContext(ctx, query, adminID, action, targetUserID, details); err != nil {
		return fmt.Errorf("insert admin log: %w", err)
	}
	return nil
}

func (r *AdminLogRepository) Recent(ctx context.Context, limit int) ([]models.AdminLog, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT id, admin_id, action, target_user_id, details, timestamp
FROM admin_logs ORDER BY timestamp DESC LIMIT $1`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list admin logs: %w", err)
	}
	defer rows.Close()

	var logs []models.AdminLog
	for rows.Next() {
		var l models.AdminLog
		if err := rows.Scan(&l.ID, &l.AdminID, &l.Action, &l.TargetUserID, &l.Details, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("scan admin log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
