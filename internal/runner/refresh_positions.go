package runner

import (
	"context"
	"sort"
	"time"

	feed "kite_guard/internal/modules/kite_websocket/service"
	"kite_guard/pkg/logger"
)

// RefreshPositions подтягивает позиции у брокера и пересобирает подписки.
// При ошибке движок остаётся на прошлом снимке.
func (s *Session) RefreshPositions(ctx context.Context) error {
	positions, err := s.source.OpenPositions(ctx, s.cfg.Exchange)
	if err != nil {
		logger.Warn("refresh positions: %v", err)
		return err
	}

	s.engine.RefreshPositions(positions)
	s.state.TouchPositions(time.Now())
	s.state.SetReady(true)

	s.syncSubscriptions(ctx)
	return nil
}

func (s *Session) RefreshOrders(ctx context.Context) error {
	orders, err := s.source.OrdersForToday(ctx)
	if err != nil {
		logger.Warn("refresh orders: %v", err)
		return err
	}
	s.engine.RefreshOrders(orders)
	return nil
}

// syncSubscriptions доводит подписки фида до токенов текущих позиций.
func (s *Session) syncSubscriptions(ctx context.Context) {
	if !s.feed.Connected() {
		return
	}

	want := s.engine.Tokens()

	s.subMu.Lock()
	defer s.subMu.Unlock()

	wantSet := make(map[uint32]struct{}, len(want))
	var add []uint32
	for _, tok := range want {
		wantSet[tok] = struct{}{}
		if _, ok := s.subscribed[tok]; !ok {
			add = append(add, tok)
		}
	}
	var drop []uint32
	for tok := range s.subscribed {
		if _, ok := wantSet[tok]; !ok {
			drop = append(drop, tok)
		}
	}
	sort.Slice(drop, func(i, j int) bool { return drop[i] < drop[j] })

	if err := s.feed.Subscribe(ctx, add, feed.ModeLTP); err != nil {
		logger.Warn("subscribe %v: %v", add, err)
	} else {
		for _, tok := range add {
			s.subscribed[tok] = struct{}{}
		}
	}

	if err := s.feed.Unsubscribe(ctx, drop); err != nil {
		logger.Warn("unsubscribe %v: %v", drop, err)
	} else {
		for _, tok := range drop {
			delete(s.subscribed, tok)
		}
	}

	if len(add) > 0 || len(drop) > 0 {
		logger.Info("ticker subscriptions: +%v -%v", add, drop)
	}
}

func (s *Session) resetSubscriptions() {
	s.subMu.Lock()
	s.subscribed = make(map[uint32]struct{})
	s.subMu.Unlock()
}
