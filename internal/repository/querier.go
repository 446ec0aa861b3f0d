package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// Querier is the statement surface shared by *sql.DB and *sql.Tx, so the
// same repository statements run standalone or inside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrTopupNotFound = errors.New("topup request not found")

	// ErrOrderNotFound marks a transition on an order that is absent or no
	// longer in the created state.
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateUTR marks a replayed bank transaction reference.
	ErrDuplicateUTR = errors.New("utr already submitted")

	// ErrAlreadyReferred marks a second referral for the same referred user.
	ErrAlreadyReferred = errors.New("user already referred")
)

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation. Redemption and UTR races are resolved by this signal, not by
// the preceding read checks.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
