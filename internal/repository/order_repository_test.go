package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/otpmart/otpshopbot/internal/models"
)

func TestOrderSetStatusCompletesCreatedOrder(t *testing.T) {
	dbm, mock := testManager(t)
	repo := NewOrderRepository(dbm)

	expectProbe(mock)
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("completed", "1234", "ORD-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetStatus(context.Background(), "ORD-1", models.OrderStatusCompleted, "1234"))
	require.NoError(t, mock.ExpectationsWereMet())
}

// Completed and cancelled are terminal: the created-status guard leaves a
// settled order untouched and the zero-row update surfaces as
// ErrOrderNotFound.
func TestOrderSetStatusGuardsCreated(t *testing.T) {
	dbm, mock := testManager(t)
	repo := NewOrderRepository(dbm)

	expectProbe(mock)
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("completed", "", "ORD-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStatus(context.Background(), "ORD-1", models.OrderStatusCompleted, "")
	require.ErrorIs(t, err, ErrOrderNotFound)
}
