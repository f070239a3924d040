package runner

import (
	"context"
	"fmt"
	"time"

	"kite_guard/internal/models"
	feed "kite_guard/internal/modules/kite_websocket/service"
	"kite_guard/pkg/logger"
)

var _ feed.Handler = (*Session)(nil)

// OnConnect: новое соединение ничего не знает о старых подписках, поэтому
// набор токенов берём из свежего снимка позиций.
func (s *Session) OnConnect(ctx context.Context) {
	s.state.SetWSConnected(true)
	s.resetSubscriptions()

	if err := s.RefreshPositions(ctx); err != nil {
		// брокер недоступен, подписываемся по последнему снимку
		s.syncSubscriptions(ctx)
	}
	logger.Info("ticker connected, tokens=%d", len(s.engine.Tokens()))
}

func (s *Session) OnTicks(ctx context.Context, ticks []models.PriceTick) {
	s.state.TouchTick(time.Now())

	results := s.engine.IngestTicks(ctx, ticks)
	for _, r := range results {
		if r.Submitted() {
			// увидеть исполнение как можно раньше
			kick(s.ordersKick)
			kick(s.positionsKick)
			return
		}
	}
}

func (s *Session) OnDisconnect(ctx context.Context, err error) {
	s.state.SetWSConnected(false)
	s.state.IncReconnects()
	logger.Warn("ticker disconnected: %v", err)
	s.notifier.Notify(ctx, fmt.Sprintf("🔌 Тикер отключился: %v. Переподключаюсь…", err))
}

func (s *Session) OnError(_ context.Context, err error) {
	logger.Error("ticker: %v", err)
}

func (s *Session) OnOrderUpdate(context.Context) {
	kick(s.ordersKick)
}
