package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/otpmart/otpshopbot/internal/models"
	"github.com/otpmart/otpshopbot/internal/repository"
)

type OrderService struct {
	log    *slog.Logger
	orders *repository.OrderRepository
	users  *repository.UserRepository
}

func NewOrderService(log *slog.Logger, orders *repository.OrderRepository, users *repository.UserRepository) *OrderService {
	return &OrderService{log: log, orders: orders, users: users}
}

// Place records the purchase and its pending lease, and bumps the user's
// order counter.
func (s *OrderService) Place(ctx context.Context, order *models.Order, lease *models.ActiveOrder) error {
	order.Status = models.OrderStatusCreated
	if err := s.orders.Create(ctx, order); err != nil {
		return err
	}
	if lease != nil {
		if err := s.orders.UpsertActiveOrder(ctx, lease); err != nil {
			return err
		}
	}
	if err := s.users.IncrementTotalOrders(ctx, order.UserID); err != nil {
		return err
	}
	s.log.Info("order placed", "order_id", order.OrderID, "user_id", order.UserID, "service", order.Service)
	return nil
}

// Complete marks the order completed with its OTP and releases the lease.
func (s *OrderService) Complete(ctx context.Context, orderID, otpCode string) error {
	if err := s.orders.SetStatus(ctx, orderID, models.OrderStatusCompleted, otpCode); err != nil {
		return err
	}
	if err := s.orders.DeleteActiveOrder(ctx, orderID); err != nil {
		return err
	}
	s.log.Info("order completed", "order_id", orderID)
	return nil
}

// Cancel marks the order cancelled and releases the lease.
func (s *OrderService) Cancel(ctx context.Context, orderID string) error {
	if err := s.orders.SetStatus(ctx, orderID, models.OrderStatusCancelled, ""); err != nil {
		return err
	}
	if err := s.orders.DeleteActiveOrder(ctx, orderID); err != nil {
		return err
	}
	s.log.Info("order cancelled", "order_id", orderID)
	return nil
}

func (s *OrderService) ExtendLease(ctx context.Context, lease *models.ActiveOrder) error {
	return s.orders.UpsertActiveOrder(ctx, lease)
}

func (s *OrderService) ActiveOrder(ctx context.Context, orderID string) (*models.ActiveOrder, error) {
	return s.orders.GetActiveOrder(ctx, orderID)
}

// SweepExpired deletes leases past their expiry. This is periodic
// maintenance: failures are logged and reported as zero effect, never
// propagated.
func (s *OrderService) SweepExpired(ctx context.Context) int64 {
	n, err := s.orders.DeleteExpiredActiveOrders(ctx)
	if err != nil {
		s.log.Warn("active order sweep failed", "err", err)
		return 0
	}
	if n > 0 {
		s.log.Info("expired active orders removed", "count", n)
	}
	return n
}

func (s *OrderService) RecentByUser(ctx context.Context, userID int64, limit int) ([]models.Order, error) {
	return s.orders.RecentByUser(ctx, userID, limit)
}

func (s *OrderService) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	return s.orders.TotalRevenue(ctx)
}
