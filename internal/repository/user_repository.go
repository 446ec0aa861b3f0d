package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/models"
)

const userColumns = `user_id, balance::text, joined_date, channel_joined, terms_accepted, last_checked, total_orders, first_name, username`

type UserRepository struct {
	dbm *database.Manager
}

func NewUserRepository(dbm *database.Manager) *UserRepository {
	return &UserRepository{dbm: dbm}
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var balance string
	if err := row.Scan(&u.UserID, &balance, &u.JoinedDate, &u.ChannelJoined, &u.TermsAccepted, &u.LastChecked, &u.TotalOrders, &u.FirstName, &u.Username); err != nil {
		return nil, err
	}
	u.Balance = models.Amount(balance)
	return &u, nil
}

func (r *UserRepository) Get(ctx context.Context, userID int64) (*models.User, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	u, err := scanUser(db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// GetOrCreate reads the user row, lazily inserting a zero-balance row with
// the current timestamp when absent. The insert is an upsert so two
// concurrent first lookups create exactly one row.
func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64) (*models.User, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
INSERT INTO users (user_id, balance, joined_date, last_checked)
VALUES ($1, 0, NOW(), NOW())
ON CONFLICT (user_id) DO NOTHING`
	if _, err := db.ExecContext(ctx, query, userID); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("read user after upsert: %w", err)
	}
	return u, nil
}

// UpdateBalance applies balance = balance + delta as a single relative
// update so concurrent calls never lose each other's writes. Returns the
// resulting balance; ErrUserNotFound when no row matches.
func (r *UserRepository) UpdateBalance(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return r.UpdateBalanceIn(ctx, db, userID, delta)
}

// UpdateBalanceIn is UpdateBalance against a caller-supplied Querier, used
// by the transfer transaction.
func (r *UserRepository) UpdateBalanceIn(ctx context.Context, q Querier, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	const query = `
UPDATE users SET balance = balance + $1
WHERE user_id = $2
RETURNING balance::text`
	var balance string
	if err := q.QueryRowContext(ctx, query, delta.String(), userID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("update balance: %w", err)
	}
	return models.Amount(balance), nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, firstName, username string) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `UPDATE users SET first_name = $1, username = $2 WHERE user_id = $3`
	if _, err := db.ExecContext(ctx, query, firstName, username, userID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (r *UserRepository) SetChannelJoined(ctx context.Context, userID int64, joined bool) error {
	return r.setFlag(ctx, `UPDATE users SET channel_joined = $1, last_checked = NOW() WHERE user_id = $2`, userID, joined)
}

func (r *UserRepository) SetTermsAccepted(ctx context.Context, userID int64, accepted bool) error {
	return r.setFlag(ctx, `UPDATE users SET terms_accepted = $1 WHERE user_id = $2`, userID, accepted)
}

func (r *UserRepository) setFlag(ctx context.Context, query string, userID int64, value bool) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, query, value, userID); err != nil {
		return fmt.Errorf("set user flag: %w", err)
	}
	return nil
}

func (r *UserRepository) TouchLastChecked(ctx context.Context, userID int64, at time.Time) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `UPDATE users SET last_checked = $1 WHERE user_id = $2`
	if _, err := db.ExecContext(ctx, query, at, userID); err != nil {
		return fmt.Errorf("touch last checked: %w", err)
	}
	return nil
}

func (r *UserRepository) IncrementTotalOrders(ctx context.Context, userID int64) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `UPDATE users SET total_orders = total_orders + 1 WHERE user_id = $1`
	if _, err := db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("increment total orders: %w", err)
	}
	return nil
}

// Search matches the term against the id, display name and handle.
func (r *UserRepository) Search(ctx context.Context, term string, limit int) ([]models.User, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT ` + userColumns + ` FROM users
WHERE user_id::text LIKE '%' || $1 || '%'
   OR first_name ILIKE '%' || $1 || '%'
   OR username ILIKE '%' || $1 || '%'
ORDER BY user_id
LIMIT $2`
	rows, err := db.QueryContext(ctx, query, term, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var balance string
		if err := rows.Scan(&u.UserID, &balance, &u.JoinedDate, &u.ChannelJoined, &u.TermsAccepted, &u.LastChecked, &u.TotalOrders, &u.FirstName, &u.Username); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		u.Balance = models.Amount(balance)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
