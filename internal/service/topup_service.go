package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/models"
	"github.com/otpmart/otpshopbot/internal/repository"
)

var ErrTopupAmountInvalid = errors.New("topup amount must be positive")

// TopupService handles deposit claims: submission with UTR replay
// protection, and the approval flow that credits the balance, accumulates
// the monthly aggregate, and pays the referral commission in a single
// transaction.
type TopupService struct {
	dbm       *database.Manager
	log       *slog.Logger
	topups    *repository.TopupRepository
	users     *repository.UserRepository
	deposits  *repository.DepositRepository
	referrals *repository.ReferralRepository
	adminLogs *repository.AdminLogRepository

	commissionPercent decimal.Decimal
	now               func() time.Time
}

func NewTopupService(dbm *database.Manager, log *slog.Logger, topups *repository.TopupRepository, users *repository.UserRepository, deposits *repository.DepositRepository, referrals *repository.ReferralRepository, adminLogs *repository.AdminLogRepository, commissionPercent int) *TopupService {
	return &TopupService{
		dbm:               dbm,
		log:               log,
		topups:            topups,
		users:             users,
		deposits:          deposits,
		referrals:         referrals,
		adminLogs:         adminLogs,
		commissionPercent: decimal.NewFromInt(int64(commissionPercent)),
		now:               time.Now,
	}
}

// Submit files a pending deposit claim. A replayed UTR surfaces as
// repository.ErrDuplicateUTR.
func (s *TopupService) Submit(ctx context.Context, userID int64, amount decimal.Decimal, utr string) (*models.TopupRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrTopupAmountInvalid
	}
	req := &models.TopupRequest{UserID: userID, Amount: amount, UTR: utr}
	if err := s.topups.Create(ctx, req); err != nil {
		return nil, err
	}
	s.log.Info("topup submitted", "user_id", userID, "amount", amount.String(), "utr", utr)
	return req, nil
}

// Approve marks the request approved, credits the user's balance,
// accumulates the current month's deposit aggregate and, when the user was
// referred and the referral is active, records and pays the commission.
// Everything commits together or not at all.
func (s *TopupService) Approve(ctx context.Context, adminID, requestID int64) error {
	req, err := s.topups.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return repository.ErrTopupNotFound
	}

	referral, err := s.referrals.GetByReferred(ctx, req.UserID)
	if err != nil {
		return err
	}

	db, err := s.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.topups.SetStatusIn(ctx, tx, requestID, models.TopupStatusApproved); err != nil {
		return err
	}
	if _, err := s.users.UpdateBalanceIn(ctx, tx, req.UserID, req.Amount); err != nil {
		return fmt.Errorf("credit deposit: %w", err)
	}
	if err := s.deposits.AddToMonthIn(ctx, tx, req.UserID, models.MonthKey(s.now()), req.Amount); err != nil {
		return err
	}

	if referral != nil && referral.IsActive {
		commission := req.Amount.Mul(s.commissionPercent).Div(decimal.NewFromInt(100))
		earning := &models.ReferralEarning{
			ReferrerID:        referral.ReferrerID,
			ReferredID:        req.UserID,
			DepositAmount:     req.Amount,
			CommissionAmount:  commission,
			CommissionPercent: s.commissionPercent,
		}
		if err := s.referrals.AddEarningIn(ctx, tx, earning); err != nil {
			return err
		}
		if _, err := s.users.UpdateBalanceIn(ctx, tx, referral.ReferrerID, commission); err != nil {
			return fmt.Errorf("credit referrer commission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve tx: %w", err)
	}

	s.log.Info("topup approved", "request_id", requestID, "user_id", req.UserID, "amount", req.Amount.String())
	if err := s.adminLogs.Append(ctx, adminID, "topup_approve", req.UserID, fmt.Sprintf("request %d, utr %s", requestID, req.UTR)); err != nil {
		s.log.Warn("append admin log", "err", err)
	}
	return nil
}

// Reject marks the request rejected without touching any balance.
func (s *TopupService) Reject(ctx context.Context, adminID, requestID int64) error {
	req, err := s.topups.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return repository.ErrTopupNotFound
	}
	if err := s.topups.SetStatus(ctx, requestID, models.TopupStatusRejected); err != nil {
		return err
	}
	s.log.Info("topup rejected", "request_id", requestID, "user_id", req.UserID)
	if err := s.adminLogs.Append(ctx, adminID, "topup_reject", req.UserID, fmt.Sprintf("request %d, utr %s", requestID, req.UTR)); err != nil {
		s.log.Warn("append admin log", "err", err)
	}
	return nil
}

func (s *TopupService) RecentByUser(ctx context.Context, userID int64, limit int) ([]models.TopupRequest, error) {
	return s.topups.RecentByUser(ctx, userID, limit)
}

func (s *TopupService) ListPending(ctx context.Context, limit int) ([]models.TopupRequest, error) {
	return s.topups.ListPending(ctx, limit)
}
