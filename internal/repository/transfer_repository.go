package repository

import (
	"context"
	"fmt"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/models"
)

type TransferRepository struct {
	dbm *database.Manager
}

func NewTransferRepository(dbm *database.Manager) *TransferRepository {
	return &TransferRepository{dbm: dbm}
}

// CreateIn records the transfer inside the caller's transaction, alongside
// the two balance legs it documents.
func (r *TransferRepository) CreateIn(ctx context.Context, q Querier, t *models.BalanceTransfer) error {
	const query = `
INSERT INTO balance_transfers (from_user_id, to_user_id, amount, note)
VALUES ($1, $2, $3, $4)
RETURNING id, transfer_time`
	err := q.QueryRowContext(ctx, query, t.FromUserID, t.ToUserID, t.Amount.String(), t.Note).Scan(&t.ID, &t.TransferTime)
	if err != nil {
		return fmt.Errorf("insert balance transfer: %w", err)
	}
	return nil
}

// RecentByUser returns transfers the user sent or received, newest first.
func (r *TransferRepository) RecentByUser(ctx context.Context, userID int64, limit int) ([]models.BalanceTransfer, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT id, from_user_id, to_user_id, amount::text, transfer_time, note
FROM balance_transfers
WHERE from_user_id = $1 OR to_user_id = $1
ORDER BY transfer_time DESC
LIMIT $2`
	rows, err := db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list balance transfers: %w", err)
	}
	defer rows.Close()

	var transfers []models.BalanceTransfer
	for rows.Next() {
		var t models.BalanceTransfer
		var amount string
		if err := rows.Scan(&t.ID, &t.FromUserID, &t.ToUserID, &amount, &t.TransferTime, &t.Note); err != nil {
			return nil, fmt.Errorf("scan balance transfer: %w", err)
		}
		t.Amount = models.Amount(amount)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}
