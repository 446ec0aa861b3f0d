package repository

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
)

// testManager adopts a sqlmock handle as an already-connected Manager.
// Every repository call still goes through the readiness gate, so tests
// expect one SELECT 1 probe per operation.
func testManager(t *testing.T) (*database.Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewManagerWithDB(db, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func expectProbe(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
}

func userRow(id int64, balance string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"user_id", "balance", "joined_date", "channel_joined", "terms_accepted", "last_checked", "total_orders", "first_name", "username"}).
		AddRow(id, balance, now, false, false, now, 0, "", "")
}

func TestGetOrCreateReturnsZeroBalanceUser(t *testing.T) {
	dbm, mock := testManager(t)
	repo := NewUserRepository(dbm)

	for i := 0; i < 2; i++ {
		expectProbe(mock)
		mock.ExpectExec("INSERT INTO users").
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT (.+) FROM users WHERE user_id").
			WithArgs(int64(42)).
			WillReturnRows(userRow(42, "0"))
	}

	first, err := repo.GetOrCreate(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), first.UserID)
	require.True(t, first.Balance.IsZero())

	// The second lookup hits the same conflict-free upsert and sees the
	// same row.
	second, err := repo.GetOrCreate(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, first.UserID, second.UserID)
	require.True(t, second.Balance.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBalanceIsRelative(t *testing.T) {
	dbm, mock := testManager(t)
	repo := NewUserRepository(dbm)

	// Balance 100, then -150 and +200 as independent relative updates:
	// the store applies each delta, no validation at this level.
	expectProbe(mock)
	mock.ExpectQuery("UPDATE users SET balance = balance").
		WithArgs("-150", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("-50"))
	expectProbe(mock)
	mock.ExpectQuery("UPDATE users SET balance = balance").
		WithArgs("200", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("150"))

	after, err := repo.UpdateBalance(context.Background(), 7, decimal.NewFromInt(-150))
	require.NoError(t, err)
	require.True(t, after.Equal(decimal.NewFromInt(-50)))

	after, err = repo.UpdateBalance(context.Background(), 7, decimal.NewFromInt(200))
	require.NoError(t, err)
	require.True(t, after.Equal(decimal.NewFromInt(150)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBalanceUnknownUser(t *testing.T) {
	dbm, mock := testManager(t)
	repo := NewUserRepository(dbm)

	expectProbe(mock)
	mock.ExpectQuery("UPDATE users SET balance = balance").
		WithArgs("5", int64(999)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.UpdateBalance(context.Background(), 999, decimal.NewFromInt(5))
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetMissingUserIsNil(t *testing.T) {
	dbm, mock := testManager(t)
	repo := NewUserRepository(dbm)

	expectProbe(mock)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE user_id").
		WithArgs(int64(1)).
		WillReturnError(sql.ErrNoRows)

	user, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Nil(t, user)
}
