package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/repository"
)

func newTopups(dbm *database.Manager, commissionPercent int) *TopupService {
	return NewTopupService(
		dbm,
		discardLogger(),
		repository.NewTopupRepository(dbm),
		repository.NewUserRepository(dbm),
		repository.NewDepositRepository(dbm),
		repository.NewReferralRepository(dbm),
		repository.NewAdminLogRepository(dbm),
		commissionPercent,
	)
}

func topupRow(id, userID int64, amount, utr, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "amount", "utr", "status", "request_time"}).
		AddRow(id, userID, amount, utr, status, time.Now())
}

func TestSubmitRejectsNonPositiveAmount(t *testing.T) {
	dbm, _ := testManager(t)
	topups := newTopups(dbm, 5)

	_, err := topups.Submit(context.Background(), 3, decimal.Zero, "UTR1")
	require.ErrorIs(t, err, ErrTopupAmountInvalid)
}

// Approval of a referred user's deposit commits five writes together: the
// status flip, the balance credit, the monthly aggregate, the commission
// record and the referrer's credit.
func TestApprovePaysReferralCommissionAtomically(t *testing.T) {
	dbm, mock := testManager(t)
	topups := newTopups(dbm, 5)
	topups.now = func() time.Time { return time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC) }

	expectProbe(mock)
	mock.ExpectQuery("SELECT id, user_id, amount::text, utr, status, request_time FROM topup_requests").
		WithArgs(int64(9)).
		WillReturnRows(topupRow(9, 3, "500", "UTR77", "pending"))

	expectProbe(mock)
	mock.ExpectQuery("SELECT id, referrer_id, referred_id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "referrer_id", "referred_id", "referral_code", "joined_at", "is_active"}).
			AddRow(int64(1), int64(77), int64(3), "ref77", time.Now(), true))

	expectProbe(mock)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE topup_requests SET status").
		WithArgs("approved", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE users SET balance = balance").
		WithArgs("500", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("500"))
	mock.ExpectExec("INSERT INTO monthly_deposits").
		WithArgs(int64(3), "2025-06", "500").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO referral_earnings").
		WithArgs(int64(77), int64(3), "500", "25", "5").
		WillReturnRows(sqlmock.NewRows([]string{"id", "earned_at"}).AddRow(int64(2), time.Now()))
	mock.ExpectQuery("UPDATE users SET balance = balance").
		WithArgs("25", int64(77)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("25"))
	mock.ExpectCommit()

	expectProbe(mock)
	mock.ExpectExec("INSERT INTO admin_logs").
		WithArgs(int64(1), "topup_approve", int64(3), "request 9, utr UTR77").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, topups.Approve(context.Background(), 1, 9))
	require.NoError(t, mock.ExpectationsWereMet())
}

// A second approve hits the pending-status guard, affects zero rows and
// rolls back without crediting anything.
func TestApproveTwiceRollsBack(t *testing.T) {
	dbm, mock := testManager(t)
	topups := newTopups(dbm, 5)

	expectProbe(mock)
	mock.ExpectQuery("SELECT id, user_id, amount::text, utr, status, request_time FROM topup_requests").
		WithArgs(int64(9)).
		WillReturnRows(topupRow(9, 3, "500", "UTR77", "approved"))

	expectProbe(mock)
	mock.ExpectQuery("SELECT id, referrer_id, referred_id").
		WithArgs(int64(3)).
		WillReturnError(sql.ErrNoRows)

	expectProbe(mock)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE topup_requests SET status").
		WithArgs("approved", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := topups.Approve(context.Background(), 1, 9)
	require.ErrorIs(t, err, repository.ErrTopupNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveMissingRequest(t *testing.T) {
	dbm, mock := testManager(t)
	topups := newTopups(dbm, 5)

	expectProbe(mock)
	mock.ExpectQuery("SELECT id, user_id, amount::text, utr, status, request_time FROM topup_requests").
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	err := topups.Approve(context.Background(), 1, 404)
	require.ErrorIs(t, err, repository.ErrTopupNotFound)
}

func TestRejectLeavesBalanceAlone(t *testing.T) {
	dbm, mock := testManager(t)
	topups := newTopups(dbm, 5)

	expectProbe(mock)
	mock.ExpectQuery("SELECT id, user_id, amount::text, utr, status, request_time FROM topup_requests").
		WithArgs(int64(9)).
		WillReturnRows(topupRow(9, 3, "500", "UTR77", "pending"))

	expectProbe(mock)
	mock.ExpectExec("UPDATE topup_requests SET status").
		WithArgs("rejected", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	expectProbe(mock)
	mock.ExpectExec("INSERT INTO admin_logs").
		WithArgs(int64(1), "topup_reject", int64(3), "request 9, utr UTR77").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, topups.Reject(context.Background(), 1, 9))
	require.NoError(t, mock.ExpectationsWereMet())
}
