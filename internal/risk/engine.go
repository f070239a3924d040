package risk

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"kite_guard/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNoGateway    = errors.New("risk engine requires an order gateway")
	ErrNoPolicy     = errors.New("risk engine requires an exit policy")
	ErrEmptyOrderID = errors.New("gateway returned empty order id")
)

// OrderGateway отправляет рыночный выход и возвращает id ордера брокера.
type OrderGateway interface {
	SubmitMarketExit(ctx context.Context, order models.ExitOrder) (string, error)
}

// Notifier: fire-and-forget сообщения человеку. Не должен блокировать.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Journal: журнал переходов, best-effort.
type Journal interface {
	Append(ctx context.Context, rec models.AuditRecord) error
}

type Config struct {
	// EvalInterval: не чаще одной полной оценки за интервал.
	EvalInterval time.Duration
	// ExitProduct: продукт выхода для позиций без продукта, по умолчанию NRML.
	ExitProduct string
	// Window: вне сессии тики только обновляют кеш цен. nil означает без ограничений.
	Window *TradingWindow
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithJournal(j Journal) Option {
	return func(e *Engine) {
		if j != nil {
			e.journal = j
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine держит кеш цен и ExitState по символам под одним мьютексом.
// Сетевые вызовы делаются только вне блокировки.
type Engine struct {
	cfg      Config
	policy   Policy
	gateway  OrderGateway
	notifier Notifier
	journal  Journal
	now      func() time.Time

	mu        sync.Mutex
	prices    map[uint32]decimal.Decimal
	positions map[string]models.Position
	orders    []models.OrderRecord
	states    map[string]*ExitState
	// выход исполнен, ждём подтверждения нулевой позиции от refresh
	settled  map[string]struct{}
	lastEval time.Time
}

func NewEngine(cfg Config, policy Policy, gateway OrderGateway, opts ...Option) (*Engine, error) {
	if gateway == nil {
		return nil, ErrNoGateway
	}
	if policy == nil {
		return nil, ErrNoPolicy
	}

	e := &Engine{
		cfg:       cfg,
		policy:    policy,
		gateway:   gateway,
		notifier:  nopNotifier{},
		journal:   nopJournal{},
		now:       time.Now,
		prices:    make(map[uint32]decimal.Decimal),
		positions: make(map[string]models.Position),
		states:    make(map[string]*ExitState),
		settled:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// IngestTicks обновляет кеш цен и, если прошёл EvalInterval, прогоняет
// оценку и исполняет её решения.
func (e *Engine) IngestTicks(ctx context.Context, ticks []models.PriceTick) []ExitResult {
	e.mu.Lock()
	for _, t := range ticks {
		// нулевая цена у брокера значит "сделок не было"
		if !t.LastPrice.IsPositive() {
			continue
		}
		e.prices[t.InstrumentToken] = t.LastPrice
	}

	now := e.now()
	if !e.lastEval.IsZero() && now.Sub(e.lastEval) < e.cfg.EvalInterval {
		e.mu.Unlock()
		return nil
	}
	if !e.cfg.Window.Contains(now) {
		e.mu.Unlock()
		return nil
	}
	e.lastEval = now
	ev := e.evaluateLocked(true)
	e.mu.Unlock()

	return e.Execute(ctx, ev)
}

// RefreshPositions заменяет набор позиций целиком. Позиции ключуются
// по Position.Key, так что MIS и NRML одного инструмента живут раздельно. ExitState переживает
// refresh только для символов, которые остались открытыми.
func (e *Engine) RefreshPositions(positions []models.Position) {
	next := make(map[string]models.Position, len(positions))
	for _, p := range positions {
		if p.Quantity == 0 {
			continue
		}
		next[p.Key()] = p
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.positions = next
	for sym := range e.states {
		if _, ok := next[sym]; !ok {
			delete(e.states, sym)
		}
	}
	// свежий снимок позиций, исполненные выходы больше не держим
	e.settled = make(map[string]struct{})
}

func (e *Engine) RefreshOrders(orders []models.OrderRecord) {
	snapshot := make([]models.OrderRecord, len(orders))
	copy(snapshot, orders)

	e.mu.Lock()
	e.orders = snapshot
	e.mu.Unlock()
}

// Tokens: инструменты текущих позиций, отсортированы.
func (e *Engine) Tokens() []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[uint32]struct{}, len(e.positions))
	out := make([]uint32, 0, len(e.positions))
	for _, p := range e.positions {
		if _, ok := seen[p.InstrumentToken]; ok {
			continue
		}
		seen[p.InstrumentToken] = struct{}{}
		out = append(out, p.InstrumentToken)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Phase и State принимают Position.Key.
func (e *Engine) Phase(symbol string) Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[symbol].phase()
}

func (e *Engine) State(symbol string) (ExitState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[symbol]
	if !ok {
		return ExitState{}, false
	}
	return *st, true
}

func (e *Engine) LastPrice(token uint32) (decimal.Decimal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.prices[token]
	return p, ok
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string) {}

type nopJournal struct{}

func (nopJournal) Append(context.Context, models.AuditRecord) error { return nil }
