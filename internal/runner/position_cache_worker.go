package runner

import (
	"context"
	"time"

	"kite_guard/pkg/logger"
)

// PositionCacheWorker обновляет позиции по расписанию и по пинку.
func (s *Session) PositionCacheWorker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PositionsRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.positionsKick:
		}

		_ = s.RefreshPositions(ctx)
		if err := s.guard.Heartbeat(ctx); err != nil {
			logger.Warn("run guard heartbeat: %v", err)
		}
	}
}

// OrderCacheWorker: то же для ордеров, интервал короче.
func (s *Session) OrderCacheWorker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.OrdersRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.ordersKick:
		}

		_ = s.RefreshOrders(ctx)
	}
}
