package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/otpmart/otpshopbot/internal/database"
	"github.com/otpmart/otpshopbot/internal/models"
)

const orderColumns = `id, user_id, service, phone, price::text, original_price::text, discount_applied::text, order_id, activation_id, status, order_time, otp_code, server_used`

type OrderRepository struct {
	dbm *database.Manager
}

func NewOrderRepository(dbm *database.Manager) *OrderRepository {
	return &OrderRepository{dbm: dbm}
}

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO orders (user_id, service, phone, price, original_price, discount_applied, order_id, activation_id, status, otp_code, server_used)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, order_time`
	err = db.QueryRowContext(ctx, query,
		o.UserID, o.Service, o.Phone, o.Price.String(), o.OriginalPrice.String(), o.DiscountApplied.String(),
		o.OrderID, o.ActivationID, string(o.Status), o.OTPCode, o.ServerUsed,
	).Scan(&o.ID, &o.OrderTime)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// SetStatus records a status transition, optionally storing the received
// OTP. The status guard only moves orders out of created, so completed and
// cancelled are terminal; a settled or unknown order maps to
// ErrOrderNotFound.
func (r *OrderRepository) SetStatus(ctx context.Context, orderID string, status models.OrderStatus, otpCode string) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `UPDATE orders SET status = $1, otp_code = COALESCE(NULLIF($2, ''), otp_code) WHERE order_id = $3 AND status = 'created'`
	res, err := db.ExecContext(ctx, query, string(status), otpCode, orderID)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("order rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// RecentByUser returns the user's most recent orders, newest first.
func (r *OrderRepository) RecentByUser(ctx context.Context, userID int64, limit int) ([]models.Order, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT ` + orderColumns + ` FROM orders
WHERE user_id = $1
ORDER BY order_time DESC
LIMIT $2`
	rows, err := db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		var price, original, discount, status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.Service, &o.Phone, &price, &original, &discount, &o.OrderID, &o.ActivationID, &status, &o.OrderTime, &o.OTPCode, &o.ServerUsed); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Price = models.Amount(price)
		o.OriginalPrice = models.Amount(original)
		o.DiscountApplied = models.Amount(discount)
		o.Status = models.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// TotalRevenue sums the prices of completed orders.
func (r *OrderRepository) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	const query = `SELECT COALESCE(SUM(price), 0)::text FROM orders WHERE status = 'completed'`
	var total string
	if err := db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum revenue: %w", err)
	}
	return models.Amount(total), nil
}

// UpsertActiveOrder inserts or replaces the lease for a pending order.
func (r *OrderRepository) UpsertActiveOrder(ctx context.Context, a *models.ActiveOrder) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO active_orders (order_id, activation_id, user_id, phone, product, expires_at, server_used)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (order_id) DO UPDATE SET
    activation_id = EXCLUDED.activation_id,
    phone = EXCLUDED.phone,
    product = EXCLUDED.product,
    expires_at = EXCLUDED.expires_at,
    server_used = EXCLUDED.server_used`
	if _, err := db.ExecContext(ctx, query, a.OrderID, a.ActivationID, a.UserID, a.Phone, a.Product, a.ExpiresAt, a.ServerUsed); err != nil {
		return fmt.Errorf("upsert active order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetActiveOrder(ctx context.Context, orderID string) (*models.ActiveOrder, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT order_id, activation_id, user_id, phone, product, expires_at, created_at, server_used
FROM active_orders WHERE order_id = $1`
	var a models.ActiveOrder
	err = db.QueryRowContext(ctx, query, orderID).Scan(&a.OrderID, &a.ActivationID, &a.UserID, &a.Phone, &a.Product, &a.ExpiresAt, &a.CreatedAt, &a.ServerUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan active order: %w", err)
	}
	return &a, nil
}

func (r *OrderRepository) DeleteActiveOrder(ctx context.Context, orderID string) error {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM active_orders WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete active order: %w", err)
	}
	return nil
}

// DeleteExpiredActiveOrders sweeps leases whose expiry has passed and
// reports how many rows went away.
func (r *OrderRepository) DeleteExpiredActiveOrders(ctx context.Context) (int64, error) {
	db, err := r.dbm.Ready(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM active_orders WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("sweep active orders: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return n, nil
}
