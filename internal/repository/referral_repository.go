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

type ReferralRepository struct {
	dbm *database.Manager
}

func NewReferralRepository(dbm *database.Manager) *ReferralRepository {
	return &ReferralRepository{dbm: dbm}
}

// Create links a referred user to a referrer. The unique constraint on the
// referred id enforces one referrer per user; a violation maps to
// ErrAlreadyReferred.
func (r *ReferralRepository) Create(ctx context.Context, ref *models.Referral) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO referrals (referrer_id, referred_id, referral_code, is_active)
VALUES ($1, $2, $3, TRUE)
RETURNING id, joined_at`
	err = db.QueryRowContext(ctx, query, ref.ReferrerID, ref.ReferredID, ref.ReferralCode).Scan(&ref.ID, &ref.JoinedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrAlreadyReferred
		}
		return fmt.Errorf("insert referral: %w", err)
	}
	ref.IsActive = true
	return nil
}

func (r *ReferralRepository) GetByReferred(ctx context.Context, referredID int64) (*models.Referral, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT id, referrer_id, referred_id, referral_code, joined_at, is_active
FROM referrals WHERE referred_id = $1`
	var ref models.Referral
	err = db.QueryRowContext(ctx, query, referredID).Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.ReferralCode, &ref.JoinedAt, &ref.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan referral: %w", err)
	}
	return &ref, nil
}

func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID int64) ([]models.Referral, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT id, referrer_id, referred_id, referral_code, joined_at, is_active
FROM referrals WHERE referrer_id = $1
ORDER BY joined_at DESC`
	rows, err := db.QueryContext(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	var refs []models.Referral
	for rows.Next() {
		var ref models.Referral
		if err := rows.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.ReferralCode, &ref.JoinedAt, &ref.IsActive); err != nil {
			return nil, fmt.Errorf("scan referral row: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *ReferralRepository) SetActive(ctx context.Context, referredID int64, active bool) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `UPDATE referrals SET is_active = $1 WHERE referred_id = $2`
	if _, err := db.ExecContext(ctx, query, active, referredID); err != nil {
		return fmt.Errorf("set referral active: %w", err)
	}
	return nil
}

// AddEarning inserts a commission record. Crediting the referrer's balance
// is the caller's concern.
func (r *ReferralRepository) AddEarning(ctx context.Context, e *models.ReferralEarning) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	return r.AddEarningIn(ctx, db, e)
}

func (r *ReferralRepository) AddEarningIn(ctx context.Context, q Querier, e *models.ReferralEarning) error {
	const query = `
INSERT INTO referral_earnings (referrer_id, referred_id, deposit_amount, commission_amount, commission_percent)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, earned_at`
	err := q.QueryRowContext(ctx, query, e.ReferrerID, e.ReferredID, e.DepositAmount.String(), e.CommissionAmount.String(), e.CommissionPercent.String()).Scan(&e.ID, &e.EarnedAt)
	if err != nil {
		return fmt.Errorf("insert referral earning: %w", err)
	}
	return nil
}

func (r *ReferralRepository) EarningsByReferrer(ctx context.Context, referrerID int64, limit int) ([]models.ReferralEarning, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT id, referrer_id, referred_id, deposit_amount::text, commission_amount::text, commission_percent::text, earned_at
FROM referral_earnings WHERE referrer_id = $1
ORDER BY earned_at DESC
LIMIT $2`
	rows, err := db.QueryContext(ctx, query, referrerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list referral earnings: %w", err)
	}
	defer rows.Close()

	var earnings []models.ReferralEarning
	for rows.Next() {
		var e models.ReferralEarning
		var deposit, commission, percent string
		if err := rows.Scan(&e.ID, &e.ReferrerID, &e.ReferredID, &deposit, &commission, &percent, &e.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan referral earning: %w", err)
		}
		e.DepositAmount = models.Amount(deposit)
		e.CommissionAmount = models.Amount(commission)
		e.CommissionPercent = models.Amount(percent)
		earnings = append(earnings, e)
	}
	return earnings, rows.Err()
}

// EarningsTotal sums all commissions credited to the referrer.
func (r *ReferralRepository) EarningsTotal(ctx context.Context, referrerID int64) (decimal.Decimal, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	const query = `SELECT COALESCE(SUM(commission_amount), 0)::text FROM referral_earnings WHERE referrer_id = $1`
	var total string
	if err := db.QueryRowContext(ctx, query, referrerID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum referral earnings: %w", err)
	}
	return models.Amount(total), nil
}
