package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/models"
	"github.com/otpmart/otpshopbot/internal/repository"
)

func newGifts(dbm *database.Manager) *GiftService {
	return NewGiftService(
		discardLogger(),
		repository.NewGiftCodeRepository(dbm),
		repository.NewDepositRepository(dbm),
	)
}

func giftRow(code, amount string, maxUses int, expiresAt *time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"code", "amount", "created_by", "created_at", "max_uses", "expires_at", "min_deposit"}).
		AddRow(code, amount, int64(1), time.Now(), maxUses, expiresAt, "0")
}

func expectGiftLookup(mock sqlmock.Sqlmock, code string, rows *sqlmock.Rows) {
	expectProbe(mock)
	mock.ExpectQuery("SELECT code, amount::text, created_by").WithArgs(code).WillReturnRows(rows)
}

func TestRedeemUnknownCode(t *testing.T) {
	dbm, mock := testManager(t)
	gifts := newGifts(dbm)

	expectProbe(mock)
	mock.ExpectQuery("SELECT code, amount::text, created_by").
		WithArgs("GIFT-NOPE").
		WillReturnError(sql.ErrNoRows)

	_, err := gifts.Redeem(context.Background(), "GIFT-NOPE", 5)
	require.ErrorIs(t, err, ErrGiftCodeInvalid)
}

func TestRedeemExpiredCode(t *testing.T) {
	dbm, mock := testManager(t)
	gifts := newGifts(dbm)
	gifts.now = func() time.Time { return time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC) }

	expired := time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)
	expectGiftLookup(mock, "GIFT-OLD", giftRow("GIFT-OLD", "100", 0, &expired))

	_, err := gifts.Redeem(context.Background(), "GIFT-OLD", 5)
	require.ErrorIs(t, err, ErrGiftCodeExpired)
}

func TestRedeemExhaustedCode(t *testing.T) {
	dbm, mock := testManager(t)
	gifts := newGifts(dbm)

	expectGiftLookup(mock, "GIFT-FULL", giftRow("GIFT-FULL", "100", 3, nil))
	expectProbe(mock)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM gift_code_uses").
		WithArgs("GIFT-FULL").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	_, err := gifts.Redeem(context.Background(), "GIFT-FULL", 5)
	require.ErrorIs(t, err, ErrGiftCodeExhausted)
}

func TestRedeemAlreadyUsedByReadCheck(t *testing.T) {
	dbm, mock := testManager(t)
	gifts := newGifts(dbm)

	expectGiftLookup(mock, "GIFT-DUP", giftRow("GIFT-DUP", "100", 0, nil))
	expectProbe(mock)
	mock.ExpectQuery("SELECT 1 FROM gift_code_uses").
		WithArgs("GIFT-DUP", int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	_, err := gifts.Redeem(context.Background(), "GIFT-DUP", 5)
	require.ErrorIs(t, err, ErrGiftCodeAlreadyUsed)
}

// Two clients can both pass the read check; the one whose insert hits the
// unique constraint still gets the already-used answer.
func TestRedeemAlreadyUsedByUniqueViolation(t *testing.T) {
	dbm, mock := testManager(t)
	gifts := newGifts(dbm)

	expectGiftLookup(mock, "GIFT-RACE", giftRow("GIFT-RACE", "100", 0, nil))
	expectProbe(mock)
	mock.ExpectQuery("SELECT 1 FROM gift_code_uses").
		WithArgs("GIFT-RACE", int64(5)).
		WillReturnError(sql.ErrNoRows)
	expectProbe(mock)
	mock.ExpectExec("INSERT INTO gift_code_uses").
		WithArgs("GIFT-RACE", int64(5)).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := gifts.Redeem(context.Background(), "GIFT-RACE", 5)
	require.ErrorIs(t, err, ErrGiftCodeAlreadyUsed)
}

func TestRedeemRecordsUse(t *testing.T) {
	dbm, mock := testManager(t)
	gifts := newGifts(dbm)

	expectGiftLookup(mock, "GIFT-OK", giftRow("GIFT-OK", "250.50", 0, nil))
	expectProbe(mock)
	mock.ExpectQuery("SELECT 1 FROM gift_code_uses").
		WithArgs("GIFT-OK", int64(5)).
		WillReturnError(sql.ErrNoRows)
	expectProbe(mock)
	mock.ExpectExec("INSERT INTO gift_code_uses").
		WithArgs("GIFT-OK", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	gift, err := gifts.Redeem(context.Background(), "GIFT-OK", 5)
	require.NoError(t, err)
	require.Equal(t, "250.5", gift.Amount.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMeetsMinDepositSkipsQueryWhenUnset(t *testing.T) {
	dbm, _ := testManager(t)
	gifts := newGifts(dbm)

	ok, err := gifts.MeetsMinDeposit(context.Background(), &models.GiftCode{}, 5)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMeetsMinDepositComparesMonthTotal(t *testing.T) {
	dbm, mock := testManager(t)
	gifts := newGifts(dbm)
	gifts.now = func() time.Time { return time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC) }

	expectProbe(mock)
	mock.ExpectQuery("SELECT total_deposit::text FROM monthly_deposits").
		WithArgs(int64(5), "2025-06").
		WillReturnRows(sqlmock.NewRows([]string{"total_deposit"}).AddRow("400"))

	gift := &models.GiftCode{MinDeposit: models.Amount("500")}
	ok, err := gifts.MeetsMinDeposit(context.Background(), gift, 5)
	require.NoError(t, err)
	require.False(t, ok)
}

// The pre-redemption gate: a code carrying a minimum-deposit requirement
// is refused before any use row is written when the user's month total
// falls short.
func TestMinDepositGateBlocksRedemption(t *testing.T) {
	dbm, mock := testManager(t)
	gifts := newGifts(dbm)
	gifts.now = func() time.Time { return time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC) }

	expectProbe(mock)
	mock.ExpectQuery("SELECT code, amount::text, created_by").
		WithArgs("GIFT-VIP").
		WillReturnRows(sqlmock.NewRows([]string{"code", "amount", "created_by", "created_at", "max_uses", "expires_at", "min_deposit"}).
			AddRow("GIFT-VIP", "100", int64(1), time.Now(), 0, nil, "500"))

	gift, err := gifts.Get(context.Background(), "GIFT-VIP")
	require.NoError(t, err)
	require.NotNil(t, gift)

	expectProbe(mock)
	mock.ExpectQuery("SELECT total_deposit::text FROM monthly_deposits").
		WithArgs(int64(5), "2025-06").
		WillReturnRows(sqlmock.NewRows([]string{"total_deposit"}).AddRow("400"))

	eligible, err := gifts.MeetsMinDeposit(context.Background(), gift, 5)
	require.NoError(t, err)
	require.False(t, eligible)
	// No use-row insert was expected: the refusal happens before Redeem.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGeneratedCodesHavePrefixAndLength(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code := generateCode()
		require.Len(t, code, 15)
		require.Equal(t, "GIFT-", code[:5])
		require.False(t, seen[code])
		seen[code] = true
	}
}
