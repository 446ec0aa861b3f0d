package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testManager(t *testing.T) (*database.Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewManagerWithDB(db, discardLogger()), mock
}

func expectProbe(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
}

func newLedger(dbm *database.Manager) *LedgerService {
	return NewLedgerService(
		dbm,
		discardLogger(),
		repository.NewUserRepository(dbm),
		repository.NewDepositRepository(dbm),
		repository.NewTransferRepository(dbm),
		repository.NewReferralRepository(dbm),
	)
}

func TestTransferBalanceCommitsBothLegs(t *testing.T) {
	dbm, mock := testManager(t)
	ledger := newLedger(dbm)

	expectProbe(mock)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users SET balance = balance").
		WithArgs("-40", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("60"))
	mock.ExpectQuery("UPDATE users SET balance = balance").
		WithArgs("40", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("40"))
	mock.ExpectQuery("INSERT INTO balance_transfers").
		WithArgs(int64(1), int64(2), "40", "lunch").
		WillReturnRows(sqlmock.NewRows([]string{"id", "transfer_time"}).AddRow(int64(11), time.Now()))
	mock.ExpectCommit()

	transfer, err := ledger.TransferBalance(context.Background(), 1, 2, decimal.NewFromInt(40), "lunch")
	require.NoError(t, err)
	require.Equal(t, int64(11), transfer.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferBalanceRollsBackOnFailedCredit(t *testing.T) {
	dbm, mock := testManager(t)
	ledger := newLedger(dbm)

	expectProbe(mock)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users SET balance = balance").
		WithArgs("-40", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("60"))
	mock.ExpectQuery("UPDATE users SET balance = balance").
		WithArgs("40", int64(2)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := ledger.TransferBalance(context.Background(), 1, 2, decimal.NewFromInt(40), "")
	require.ErrorIs(t, err, repository.ErrUserNotFound)
	// Rollback observed, commit never issued: neither leg is visible.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferBalanceRejectsBadInput(t *testing.T) {
	dbm, _ := testManager(t)
	ledger := newLedger(dbm)

	_, err := ledger.TransferBalance(context.Background(), 1, 2, decimal.Zero, "")
	require.ErrorIs(t, err, ErrTransferAmountInvalid)

	_, err = ledger.TransferBalance(context.Background(), 1, 1, decimal.NewFromInt(5), "")
	require.ErrorIs(t, err, ErrSelfTransfer)
}

func TestUpdateBalanceAllowsNegativeResult(t *testing.T) {
	dbm, mock := testManager(t)
	ledger := newLedger(dbm)

	expectProbe(mock)
	mock.ExpectQuery("UPDATE users SET balance = balance").
		WithArgs("-150", int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("-50"))

	after, err := ledger.UpdateBalance(context.Background(), 8, decimal.NewFromInt(-150))
	require.NoError(t, err)
	require.True(t, after.Equal(decimal.NewFromInt(-50)))
}

func TestCreditReferralCommissionIsAtomic(t *testing.T) {
	dbm, mock := testManager(t)
	ledger := newLedger(dbm)

	expectProbe(mock)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO referral_earnings").
		WithArgs(int64(77), int64(3), "500", "25", "5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "earned_at"}).AddRow(int64(1), time.Now()))
	mock.ExpectQuery("UPDATE users SET balance = balance").
		WithArgs("25", int64(77)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("25"))
	mock.ExpectCommit()

	earning, err := ledger.CreditReferralCommission(context.Background(), 77, 3, decimal.NewFromInt(500), decimal.NewFromInt(5))
	require.NoError(t, err)
	require.True(t, earning.CommissionAmount.Equal(decimal.NewFromInt(25)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMonthlyDepositUsesWallClockKey(t *testing.T) {
	dbm, mock := testManager(t)
	ledger := newLedger(dbm)
	ledger.now = func() time.Time { return time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC) }

	expectProbe(mock)
	mock.ExpectExec("INSERT INTO monthly_deposits").
		WithArgs(int64(4), "2025-06", "50").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ledger.UpdateMonthlyDeposit(context.Background(), 4, decimal.NewFromInt(50)))
	require.NoError(t, mock.ExpectationsWereMet())
}
