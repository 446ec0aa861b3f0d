package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/otpmart/otpshopbot/internal/service"
)

// LeaseSweeper periodically deletes active-order leases whose expiry has
// passed. Best effort: a failed sweep is logged and retried on the next
// tick.
type LeaseSweeper struct {
	log      *slog.Logger
	orders   *service.OrderService
	interval time.Duration
}

func NewLeaseSweeper(log *slog.Logger, orders *service.OrderService, interval time.Duration) *LeaseSweeper {
	return &LeaseSweeper{log: log, orders: orders, interval: interval}
}

func (j *LeaseSweeper) Run(ctx context.Context) {
	j.log.Info("lease sweeper started", "interval", j.interval.String())

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("lease sweeper stopped")
			return
		case <-ticker.C:
			j.orders.SweepExpired(ctx)
		}
	}
}
