package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/models"
)

type TopupRepository struct {
	dbm *database.Manager
}

func NewTopupRepository(dbm *database.Manager) *TopupRepository {
	return &TopupRepository{dbm: dbm}
}

// Create records a pending deposit claim. The unique constraint on the UTR
// is the replay guard; a violation maps to ErrDuplicateUTR.
func (r *TopupRepository) Create(ctx context.Context, t *models.TopupRequest) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO topup_requests (user_id, amount, utr, status)
VALUES ($1, $2, $3, 'pending')
RETURNING id, request_time`
	err = db.QueryRowContext(ctx, query, t.UserID, t.Amount.String(), t.UTR).Scan(&t.ID, &t.RequestTime)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateUTR
		}
		return fmt.Errorf("insert topup request: %w", err)
	}
	t.Status = models.TopupStatusPending
	return nil
}

func (r *TopupRepository) Get(ctx context.Context, id int64) (*models.TopupRequest, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT id, user_id, amount::text, utr, status, request_time FROM topup_requests WHERE id = $1`
	t, err := scanTopup(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan topup request: %w", err)
	}
	return t, nil
}

func scanTopup(row *sql.Row) (*models.TopupRequest, error) {
	var t models.TopupRequest
	var amount, status string
	if err := row.Scan(&t.ID, &t.UserID, &amount, &t.UTR, &status, &t.RequestTime); err != nil {
		return nil, err
	}
	t.Amount = models.Amount(amount)
	t.Status = models.TopupStatus(status)
	return &t, nil
}

// SetStatus transitions a pending request. The status guard in the WHERE
// clause makes approval idempotent: a second approve affects zero rows.
func (r *TopupRepository) SetStatus(ctx context.Context, id int64, status models.TopupStatus) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	return r.SetStatusIn(ctx, db, id, status)
}

func (r *TopupRepository) SetStatusIn(ctx context.Context, q Querier, id int64, status models.TopupStatus) error {
	const query = `UPDATE topup_requests SET status = $1 WHERE id = $2 AND status = 'pending'`
	res, err := q.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("set topup status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("topup rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTopupNotFound
	}
	return nil
}

func (r *TopupRepository) RecentByUser(ctx context.Context, userID int64, limit int) ([]models.TopupRequest, error) {
	const query = `
SELECT id, user_id, amount::text, utr, status, request_time FROM topup_requests
WHERE user_id = $1
ORDER BY request_time DESC
LIMIT $2`
	return r.list(ctx, query, userID, limit)
}

func (r *TopupRepository) ListPending(ctx context.Context, limit int) ([]models.TopupRequest, error) {
	const query = `
SELECT id, user_id, amount::text, utr, status, request_time FROM topup_requests
WHERE status = 'pending'
ORDER BY request_time
LIMIT $1`
	return r.list(ctx, query, limit)
}

func (r *TopupRepository) list(ctx context.Context, query string, args ...any) ([]models.TopupRequest, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list topup requests: %w", err)
	}
	defer rows.Close()

	var topups []models.TopupRequest
	for rows.Next() {
		var t models.TopupRequest
		var amount, status string
		if err := rows.Scan(&t.ID, &t.UserID, &amount, &t.UTR, &status, &t.RequestTime); err != nil {
			return nil, fmt.Errorf("scan topup row: %w", err)
		}
		t.Amount = models.Amount(amount)
		t.Status = models.TopupStatus(status)
		topups = append(topups, t)
	}
	return topups, rows.Err()
}
