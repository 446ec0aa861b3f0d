package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/models"
)

type GiftCodeRepository struct {
	dbm *database.Manager
}

func NewGiftCodeRepository(dbm *database.Manager) *GiftCodeRepository {
	return &GiftCodeRepository{dbm: dbm}
}

func (r *GiftCodeRepository) Create(ctx context.Context, g *models.GiftCode) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO gift_codes (code, amount, created_by, max_uses, expires_at, min_deposit)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	err = db.QueryRowContext(ctx, query, g.Code, g.Amount.String(), g.CreatedBy, g.MaxUses, g.ExpiresAt, g.MinDeposit.String()).Scan(&g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert gift code: %w", err)
	}
	return nil
}

func (r *GiftCodeRepository) GetByCode(ctx context.Context, code string) (*models.GiftCode, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT code, amount::text, created_by, created_at, max_uses, expires_at, min_deposit::text
FROM gift_codes WHERE code = $1`
	var g models.GiftCode
	var amount, minDeposit string
	var expires sql.NullTime
	err = db.QueryRowContext(ctx, query, code).Scan(&g.Code, &amount, &g.CreatedBy, &g.CreatedAt, &g.MaxUses, &expires, &minDeposit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan gift code: %w", err)
	}
	g.Amount = models.Amount(amount)
	g.MinDeposit = models.Amount(minDeposit)
	if expires.Valid {
		t := expires.Time
		g.ExpiresAt = &t
	}
	return &g, nil
}

// UsedCount derives the code's usage from its redemption log.
func (r *GiftCodeRepository) UsedCount(ctx context.Context, code string) (int, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gift_code_uses WHERE code = $1`, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("count gift code uses: %w", err)
	}
	return n, nil
}

func (r *GiftCodeRepository) HasUserRedeemed(ctx context.Context, code string, userID int64) (bool, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return false, err
	}
	var dummy int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM gift_code_uses WHERE code = $1 AND user_id = $2`, code, userID).Scan(&dummy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check gift code use: %w", err)
	}
	return true, nil
}

// RecordUse appends the redemption row. The unique (code, user_id)
// constraint is what actually prevents double redemption under races;
// callers treat a unique violation here as "already used".
func (r *GiftCodeRepository) RecordUse(ctx context.Context, code string, userID int64) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `INSERT INTO gift_code_uses (code, user_id) VALUES ($1, $2)`
	if _, err := db.ExecContext(ctx, query, code, userID); err != nil {
		return fmt.Errorf("record gift code use: %w", err)
	}
	return nil
}

func (r *GiftCodeRepository) List(ctx context.Context) ([]models.GiftCode, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT code, amount::text, created_by, created_at, max_uses, expires_at, min_deposit::text
FROM gift_codes ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list gift codes: %w", err)
	}
	defer rows.Close()

	var codes []models.GiftCode
	for rows.Next() {
		var g models.GiftCode
		var amount, minDeposit string
		var expires sql.NullTime
		if err := rows.Scan(&g.Code, &amount, &g.CreatedBy, &g.CreatedAt, &g.MaxUses, &expires, &minDeposit); err != nil {
			return nil, fmt.Errorf("scan gift code row: %w", err)
		}
		g.Amount = models.Amount(amount)
		g.MinDeposit = models.Amount(minDeposit)
		if expires.Valid {
			t := expires.Time
			g.ExpiresAt = &t
		}
		codes = append(codes, g)
	}
	return codes, rows.Err()
}

func (r *GiftCodeRepository) Delete(ctx context.Context, code string) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM gift_codes WHERE code = $1`, code); err != nil {
		return fmt.Errorf("delete gift code: %w", err)
	}
	return nil
}
