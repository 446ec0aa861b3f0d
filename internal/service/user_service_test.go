package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/repository"
)

func newUsers(dbm *database.Manager) *UserService {
	return NewUserService(
		discardLogger(),
		repository.NewUserRepository(dbm),
		repository.NewReferralRepository(dbm),
	)
}

func TestAttachReferralIgnoresSelf(t *testing.T) {
	dbm, _ := testManager(t)
	users := newUsers(dbm)

	require.NoError(t, users.AttachReferral(context.Background(), 7, 7, "ref7"))
	require.NoError(t, users.AttachReferral(context.Background(), 0, 7, ""))
}

func TestAttachReferralIgnoresRepeatAttachment(t *testing.T) {
	dbm, mock := testManager(t)
	users := newUsers(dbm)

	expectProbe(mock)
	mock.ExpectQuery("INSERT INTO referrals").
		WithArgs(int64(7), int64(3), "ref7").
		WillReturnError(&pq.Error{Code: "23505"})

	require.NoError(t, users.AttachReferral(context.Background(), 7, 3, "ref7"))
}

func TestAttachReferralLinksOnce(t *testing.T) {
	dbm, mock := testManager(t)
	users := newUsers(dbm)

	expectProbe(mock)
	mock.ExpectQuery("INSERT INTO referrals").
		WithArgs(int64(7), int64(3), "ref7").
		WillReturnRows(sqlmock.NewRows([]string{"id", "joined_at"}).AddRow(int64(1), time.Now()))

	require.NoError(t, users.AttachReferral(context.Background(), 7, 3, "ref7"))
	require.NoError(t, mock.ExpectationsWereMet())
}
