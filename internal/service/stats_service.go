package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otpmart/otpshopbot/internal/models"
	"github.com/otpmart/otpshopbot/internal/repository"
)

// StatsService is the read-only query surface: leaderboards, paginated
// depositor listings and whole-store aggregates.
type StatsService struct {
	users    *repository.UserRepository
	orders   *repository.OrderRepository
	deposits *repository.DepositRepository

	now func() time.Time
}

func NewStatsService(users *repository.UserRepository, orders *repository.OrderRepository, deposits *repository.DepositRepository) *StatsService {
	return &StatsService{users: users, orders: orders, deposits: deposits, now: time.Now}
}

func (s *StatsService) Totals(ctx context.Context) (*models.Stats, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.Count(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.orders.TotalRevenue(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Stats{TotalUsers: users, TotalOrders: orders, TotalRevenue: revenue}, nil
}

func (s *StatsService) TopDepositors(ctx context.Context, limit, offset int) ([]models.Depositor, int64, error) {
	return s.deposits.TopDepositors(ctx, models.MonthKey(s.now()), limit, offset)
}

func (s *StatsService) AllDepositors(ctx context.Context, limit, offset int) ([]models.Depositor, int64, error) {
	return s.deposits.AllDepositors(ctx, models.MonthKey(s.now()), limit, offset)
}

func (s *StatsService) DepositorsAbove(ctx context.Context, threshold decimal.Decimal) ([]models.Depositor, error) {
	return s.deposits.DepositorsAbove(ctx, models.MonthKey(s.now()), threshold)
}
