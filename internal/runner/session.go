package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kite_guard/internal/models"
	health "kite_guard/internal/modules/health/service"
	feed "kite_guard/internal/modules/kite_websocket/service"
	"kite_guard/internal/risk"
	"kite_guard/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// PositionSource: REST брокера: позиции и ордера за день.
type PositionSource interface {
	OpenPositions(ctx context.Context, exchange string) ([]models.Position, error)
	OrdersForToday(ctx context.Context) ([]models.OrderRecord, error)
}

// Feed: поток цен с подписками по инструментам.
type Feed interface {
	Run(ctx context.Context, h feed.Handler)
	Subscribe(ctx context.Context, tokens []uint32, mode string) error
	Unsubscribe(ctx context.Context, tokens []uint32) error
	Connected() bool
}

// RunGuard: отметка "скрипт запущен" во внешнем хранилище.
type RunGuard interface {
	Acquire(ctx context.Context, force bool) error
	Heartbeat(ctx context.Context) error
	Release(ctx context.Context) error
}

type Settings struct {
	Exchange         string
	PositionsRefresh time.Duration
	OrdersRefresh    time.Duration
	Force            bool
}

const startupRefreshTimeout = 30 * time.Second

// Session связывает фид, источник позиций и движок риска.
type Session struct {
	cfg      Settings
	engine   *risk.Engine
	source   PositionSource
	feed     Feed
	state    *health.State
	guard    RunGuard
	notifier risk.Notifier

	subMu      sync.Mutex
	subscribed map[uint32]struct{}

	// пинки воркерам обновиться вне расписания
	positionsKick chan struct{}
	ordersKick    chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(
	cfg Settings,
	engine *risk.Engine,
	source PositionSource,
	f Feed,
	state *health.State,
	guard RunGuard,
	notifier risk.Notifier,
) *Session {
	return &Session{
		cfg:           cfg,
		engine:        engine,
		source:        source,
		feed:          f,
		state:         state,
		guard:         guard,
		notifier:      notifier,
		subscribed:    make(map[uint32]struct{}),
		positionsKick: make(chan struct{}, 1),
		ordersKick:    make(chan struct{}, 1),
	}
}

// Start захватывает run-guard, делает первичную загрузку позиций и ордеров
// и запускает воркеры и фид.
func (s *Session) Start(ctx context.Context) error {
	if err := s.guard.Acquire(ctx, s.cfg.Force); err != nil {
		return fmt.Errorf("run guard: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	initCtx, initCancel := context.WithTimeout(runCtx, startupRefreshTimeout)
	g, gctx := errgroup.WithContext(initCtx)
	g.Go(func() error { return s.RefreshPositions(gctx) })
	g.Go(func() error { return s.RefreshOrders(gctx) })
	if err := g.Wait(); err != nil {
		// воркеры повторят по расписанию
		logger.Warn("startup refresh: %v", err)
	}
	initCancel()

	s.goWorker(func() { s.PositionCacheWorker(runCtx) })
	s.goWorker(func() { s.OrderCacheWorker(runCtx) })
	s.goWorker(func() { s.feed.Run(runCtx, s) })

	s.notifier.Notify(ctx, fmt.Sprintf("🚀 Риск-менеджер запущен: %s, позиций %d", s.cfg.Exchange, len(s.engine.Tokens())))
	return nil
}

func (s *Session) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.state.SetReady(false)
	return s.guard.Release(ctx)
}

func (s *Session) goWorker(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func kick(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
