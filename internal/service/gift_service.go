package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/otpmart/otpshopbot/internal/models"
	"github.com/otpmart/otpshopbot/internal/repository"
)

var (
	ErrGiftCodeInvalid     = errors.New("gift code invalid")
	ErrGiftCodeExpired     = errors.New("gift code expired")
	ErrGiftCodeExhausted   = errors.New("gift code exhausted")
	ErrGiftCodeAlreadyUsed = errors.New("gift code already used")
)

type GiftService struct {
	log      *slog.Logger
	codes    *repository.GiftCodeRepository
	deposits *repository.DepositRepository

	now func() time.Time
}

func NewGiftService(log *slog.Logger, codes *repository.GiftCodeRepository, deposits *repository.DepositRepository) *GiftService {
	return &GiftService{log: log, codes: codes, deposits: deposits, now: time.Now}
}

// Create mints a new gift code. maxUses of zero means unlimited, a nil
// expiry means never expires.
func (s *GiftService) Create(ctx context.Context, createdBy int64, amount decimal.Decimal, maxUses int, expiresAt *time.Time, minDeposit decimal.Decimal) (*models.GiftCode, error) {
	code := &models.GiftCode{
		Code:       generateCode(),
		Amount:     amount,
		CreatedBy:  createdBy,
		MaxUses:    maxUses,
		ExpiresAt:  expiresAt,
		MinDeposit: minDeposit,
	}
	if err := s.codes.Create(ctx, code); err != nil {
		return nil, err
	}
	s.log.Info("gift code created", "code", code.Code, "amount", amount.String(), "max_uses", maxUses)
	return code, nil
}

func generateCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "GIFT-" + raw[:10]
}

// Get loads a code without redeeming it, nil when absent. Callers use it
// to run eligibility checks before offering redemption.
func (s *GiftService) Get(ctx context.Context, code string) (*models.GiftCode, error) {
	return s.codes.GetByCode(ctx, code)
}

// Redeem validates the code for the user and records the redemption. It
// does not credit any balance; the caller does that with the returned
// code's amount. The read checks are an early exit only; the unique
// (code, user) constraint on the use row is what actually loses the race,
// so a unique violation on the insert is reported as already used.
func (s *GiftService) Redeem(ctx context.Context, code string, userID int64) (*models.GiftCode, error) {
	gift, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load gift code: %w", err)
	}
	if gift == nil {
		return nil, ErrGiftCodeInvalid
	}
	if gift.Expired(s.now()) {
		return nil, ErrGiftCodeExpired
	}
	if gift.MaxUses > 0 {
		used, err := s.codes.UsedCount(ctx, code)
		if err != nil {
			return nil, err
		}
		if used >= gift.MaxUses {
			return nil, ErrGiftCodeExhausted
		}
	}
	redeemed, err := s.codes.HasUserRedeemed(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	if redeemed {
		return nil, ErrGiftCodeAlreadyUsed
	}

	if err := s.codes.RecordUse(ctx, code, userID); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrGiftCodeAlreadyUsed
		}
		return nil, err
	}
	s.log.Info("gift code redeemed", "code", code, "user_id", userID)
	return gift, nil
}

// MeetsMinDeposit checks the code's minimum-deposit eligibility against the
// user's current-month deposit total. Callers invoke this before offering
// redemption; Redeem itself does not enforce it.
func (s *GiftService) MeetsMinDeposit(ctx context.Context, gift *models.GiftCode, userID int64) (bool, error) {
	if !gift.MinDeposit.IsPositive() {
		return true, nil
	}
	total, err := s.deposits.MonthTotal(ctx, userID, models.MonthKey(s.now()))
	if err != nil {
		return false, err
	}
	return total.GreaterThanOrEqual(gift.MinDeposit), nil
}

func (s *GiftService) List(ctx context.Context) ([]models.GiftCode, error) {
	return s.codes.List(ctx)
}

func (s *GiftService) Delete(ctx context.Context, code string) error {
	return s.codes.Delete(ctx, code)
}
