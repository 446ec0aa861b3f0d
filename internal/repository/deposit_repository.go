package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/models"
)

// DepositRepository maintains the per-user, per-month deposit aggregates
// that back the monthly leaderboard and gift-code eligibility checks.
type DepositRepository struct {
	dbm *database.Manager
}

func NewDepositRepository(dbm *database.Manager) *DepositRepository {
	return &DepositRepository{dbm: dbm}
}

// AddToMonth accumulates amount into the row for the given month key,
// creating it on first contribution.
func (r *DepositRepository) AddToMonth(ctx context.Context, userID int64, monthYear string, amount decimal.Decimal) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	return r.AddToMonthIn(ctx, db, userID, monthYear, amount)
}

func (r *DepositRepository) AddToMonthIn(ctx context.Context, q Querier, userID int64, monthYear string, amount decimal.Decimal) error {
	const query = `
INSERT INTO monthly_deposits (user_id, month_year, total_deposit)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, month_year) DO UPDATE SET total_deposit = monthly_deposits.total_deposit + EXCLUDED.total_deposit`
	if _, err := q.ExecContext(ctx, query, userID, monthYear, amount.String()); err != nil {
		return fmt.Errorf("accumulate monthly deposit: %w", err)
	}
	return nil
}

// SetMonth overwrites the row for the given month key.
func (r *DepositRepository) SetMonth(ctx context.Context, userID int64, monthYear string, amount decimal.Decimal) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO monthly_deposits (user_id, month_year, total_deposit)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, month_year) DO UPDATE SET total_deposit = EXCLUDED.total_deposit`
	if _, err := db.ExecContext(ctx, query, userID, monthYear, amount.String()); err != nil {
		return fmt.Errorf("set monthly deposit: %w", err)
	}
	return nil
}

// ResetMonth zeroes the row if present; absent rows are left alone.
func (r *DepositRepository) ResetMonth(ctx context.Context, userID int64, monthYear string) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `UPDATE monthly_deposits SET total_deposit = 0 WHERE user_id = $1 AND month_year = $2`
	if _, err := db.ExecContext(ctx, query, userID, monthYear); err != nil {
		return fmt.Errorf("reset monthly deposit: %w", err)
	}
	return nil
}

// MonthTotal returns the aggregate for the month, zero when absent.
func (r *DepositRepository) MonthTotal(ctx context.Context, userID int64, monthYear string) (decimal.Decimal, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	const query = `SELECT total_deposit::text FROM monthly_deposits WHERE user_id = $1 AND month_year = $2`
	var total string
	if err := db.QueryRowContext(ctx, query, userID, monthYear).Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("scan monthly deposit: %w", err)
	}
	return models.Amount(total), nil
}

// TopDepositors lists the month's depositors ordered by total descending,
// with the total row count for pagination.
func (r *DepositRepository) TopDepositors(ctx context.Context, monthYear string, limit, offset int) ([]models.Depositor, int64, error) {
	const query = `
SELECT m.user_id, COALESCE(u.first_name, ''), COALESCE(u.username, ''), m.total_deposit::text
FROM monthly_deposits m
LEFT JOIN users u ON u.user_id = m.user_id
WHERE m.month_year = $1
ORDER BY m.total_deposit DESC
LIMIT $2 OFFSET $3`
	return r.listDepositors(ctx, monthYear, query, `SELECT COUNT(*) FROM monthly_deposits WHERE month_year = $1`, limit, offset)
}

// AllDepositors lists the month's depositors ordered by id.
func (r *DepositRepository) AllDepositors(ctx context.Context, monthYear string, limit, offset int) ([]models.Depositor, int64, error) {
	const query = `
SELECT m.user_id, COALESCE(u.first_name, ''), COALESCE(u.username, ''), m.total_deposit::text
FROM monthly_deposits m
LEFT JOIN users u ON u.user_id = m.user_id
WHERE m.month_year = $1
ORDER BY m.user_id
LIMIT $2 OFFSET $3`
	return r.listDepositors(ctx, monthYear, query, `SELECT COUNT(*) FROM monthly_deposits WHERE month_year = $1`, limit, offset)
}

func (r *DepositRepository) listDepositors(ctx context.Context, monthYear, query, countQuery string, limit, offset int) ([]models.Depositor, int64, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := db.QueryRowContext(ctx, countQuery, monthYear).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count depositors: %w", err)
	}
	rows, err := db.QueryContext(ctx, query, monthYear, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list depositors: %w", err)
	}
	defer rows.Close()

	depositors, err := scanDepositors(rows)
	if err != nil {
		return nil, 0, err
	}
	return depositors, total, nil
}

// DepositorsAbove lists depositors whose month total meets the threshold.
func (r *DepositRepository) DepositorsAbove(ctx context.Context, monthYear string, threshold decimal.Decimal) ([]models.Depositor, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT m.user_id, COALESCE(u.first_name, ''), COALESCE(u.username, ''), m.total_deposit::text
FROM monthly_deposits m
LEFT JOIN users u ON u.user_id = m.user_id
WHERE m.month_year = $1 AND m.total_deposit >= $2
ORDER BY m.total_deposit DESC`
	rows, err := db.QueryContext(ctx, query, monthYear, threshold.String())
	if err != nil {
		return nil, fmt.Errorf("list depositors above threshold: %w", err)
	}
	defer rows.Close()
	return scanDepositors(rows)
}

func scanDepositors(rows *sql.Rows) ([]models.Depositor, error) {
	var depositors []models.Depositor
	for rows.Next() {
		var d models.Depositor
		var total string
		if err := rows.Scan(&d.UserID, &d.FirstName, &d.Username, &total); err != nil {
			return nil, fmt.Errorf("scan depositor: %w", err)
		}
		d.TotalDeposit = models.Amount(total)
		depositors = append(depositors, d)
	}
	return depositors, rows.Err()
}
