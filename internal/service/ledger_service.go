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

var (
	ErrTransferAmountInvalid = errors.New("transfer amount must be positive")
	ErrSelfTransfer          = errors.New("cannot transfer to yourself")
)

// LedgerService owns every operation that mutates monetary state. Balance
// changes are always relative updates issued by the store itself, and the
// two legs of a transfer share one transaction.
type LedgerService struct {
	dbm       *database.Manager
	log       *slog.Logger
	users     *repository.UserRepository
	deposits  *repository.DepositRepository
	transfers *repository.TransferRepository
	referrals *repository.ReferralRepository

	now func() time.Time
}

func NewLedgerService(dbm *database.Manager, log *slog.Logger, users *repository.UserRepository, deposits *repository.DepositRepository, transfers *repository.TransferRepository, referrals *repository.ReferralRepository) *LedgerService {
	return &LedgerService{
		dbm:       dbm,
		log:       log,
		users:     users,
		deposits:  deposits,
		transfers: transfers,
		referrals: referrals,
		now:       time.Now,
	}
}

func (s *LedgerService) GetOrCreateUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.users.GetOrCreate(ctx, userID)
}

func (s *LedgerService) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if user == nil {
		return decimal.Zero, repository.ErrUserNotFound
	}
	return user.Balance, nil
}

// UpdateBalance applies a relative delta to the user's balance. The delta
// may be negative; whether the result is allowed to go negative is the
// caller's policy, checked before calling here.
func (s *LedgerService) UpdateBalance(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	after, err := s.users.UpdateBalance(ctx, userID, delta)
	if err != nil {
		return decimal.Zero, err
	}
	s.log.Info("balance updated",
		"user_id", userID,
		"delta", delta.String(),
		"before", after.Sub(delta).String(),
		"after", after.String(),
	)
	return after, nil
}

// TransferBalance moves amount from one user to another. Debit, credit and
// the transfer record commit together or not at all.
func (s *LedgerService) TransferBalance(ctx context.Context, fromID, toID int64, amount decimal.Decimal, note string) (*models.BalanceTransfer, error) {
	if !amount.IsPositive() {
		return nil, ErrTransferAmountInvalid
	}
	if fromID == toID {
		return nil, ErrSelfTransfer
	}

	db, err := s.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.users.UpdateBalanceIn(ctx, tx, fromID, amount.Neg()); err != nil {
		return nil, fmt.Errorf("debit sender: %w", err)
	}
	if _, err := s.users.UpdateBalanceIn(ctx, tx, toID, amount); err != nil {
		return nil, fmt.Errorf("credit recipient: %w", err)
	}

	transfer := &models.BalanceTransfer{
		FromUserID: fromID,
		ToUserID:   toID,
		Amount:     amount,
		Note:       note,
	}
	if err := s.transfers.CreateIn(ctx, tx, transfer); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transfer tx: %w", err)
	}
	s.log.Info("balance transferred", "from", fromID, "to", toID, "amount", amount.String())
	return transfer, nil
}

// monthKey is the current month's aggregate key, taken from the wall clock
// at mutation time.
func (s *LedgerService) monthKey() string {
	return models.MonthKey(s.now())
}

func (s *LedgerService) UpdateMonthlyDeposit(ctx context.Context, userID int64, amount decimal.Decimal) error {
	return s.deposits.AddToMonth(ctx, userID, s.monthKey(), amount)
}

func (s *LedgerService) SetMonthlyDeposit(ctx context.Context, userID int64, amount decimal.Decimal) error {
	return s.deposits.SetMonth(ctx, userID, s.monthKey(), amount)
}

func (s *LedgerService) ResetMonthlyDeposit(ctx context.Context, userID int64) error {
	return s.deposits.ResetMonth(ctx, userID, s.monthKey())
}

func (s *LedgerService) MonthlyDeposit(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.deposits.MonthTotal(ctx, userID, s.monthKey())
}

// AddReferralEarning records a commission without touching any balance.
// Kept for callers that credit the referrer separately.
func (s *LedgerService) AddReferralEarning(ctx context.Context, e *models.ReferralEarning) error {
	return s.referrals.AddEarning(ctx, e)
}

// CreditReferralCommission records the commission and credits the
// referrer's balance in one transaction, so a crash can never log an
// earning that was not paid out.
func (s *LedgerService) CreditReferralCommission(ctx context.Context, referrerID, referredID int64, depositAmount, percent decimal.Decimal) (*models.ReferralEarning, error) {
	commission := depositAmount.Mul(percent).Div(decimal.NewFromInt(100))

	db, err := s.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin commission tx: %w", err)
	}
	defer tx.Rollback()

	earning := &models.ReferralEarning{
		ReferrerID:        referrerID,
		ReferredID:        referredID,
		DepositAmount:     depositAmount,
		CommissionAmount:  commission,
		CommissionPercent: percent,
	}
	if err := s.referrals.AddEarningIn(ctx, tx, earning); err != nil {
		return nil, err
	}
	if _, err := s.users.UpdateBalanceIn(ctx, tx, referrerID, commission); err != nil {
		return nil, fmt.Errorf("credit referrer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit commission tx: %w", err)
	}
	s.log.Info("referral commission credited",
		"referrer", referrerID,
		"referred", referredID,
		"commission", commission.String(),
	)
	return earning, nil
}
