package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"kite_guard/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	putToken  uint32 = 11
	callToken uint32 = 12
	putSymbol        = "NFO:NIFTY24JUN22000PE:NRML"
)

type fakeGateway struct {
	mu     sync.Mutex
	orders []models.ExitOrder
	err    error
	seq    int
}

func (g *fakeGateway) SubmitMarketExit(_ context.Context, o models.ExitOrder) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, o)
	if g.err != nil {
		return "", g.err
	}
	g.seq++
	return fmt.Sprintf("ord-%d", g.seq), nil
}

func (g *fakeGateway) submitted() []models.ExitOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.ExitOrder(nil), g.orders...)
}

func (g *fakeGateway) fail(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *fakeNotifier) Notify(_ context.Context, text string) {
	n.mu.Lock()
	n.texts = append(n.texts, text)
	n.mu.Unlock()
}

type fakeJournal struct {
	mu   sync.Mutex
	recs []models.AuditRecord
}

func (j *fakeJournal) Append(_ context.Context, rec models.AuditRecord) error {
	j.mu.Lock()
	j.recs = append(j.recs, rec)
	j.mu.Unlock()
	return nil
}

func (j *fakeJournal) kinds() []models.AuditKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.AuditKind, 0, len(j.recs))
	for _, r := range j.recs {
		out = append(out, r.Kind)
	}
	return out
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine  *Engine
	gateway *fakeGateway
	notes   *fakeNotifier
	journal *fakeJournal
	clock   *manualClock
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		gateway: &fakeGateway{},
		notes:   &fakeNotifier{},
		journal: &fakeJournal{},
		clock:   &manualClock{t: time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC)},
	}
	e, err := NewEngine(cfg, DefaultFixedPolicy(), h.gateway,
		WithNotifier(h.notes),
		WithJournal(h.journal),
		WithClock(h.clock.Now),
	)
	require.NoError(t, err)
	h.engine = e
	return h
}

func shortPut() models.Position {
	return models.Position{
		InstrumentToken: putToken,
		Exchange:        "NFO",
		TradingSymbol:   "NIFTY24JUN22000PE",
		Product:         models.ProductNRML,
		Quantity:        -75,
		AveragePrice:    decimal.NewFromInt(100),
	}
}

func tick(token uint32, price string) models.PriceTick {
	return models.PriceTick{InstrumentToken: token, LastPrice: decimal.RequireFromString(price)}
}

// price выставляет цену без запуска оценки.
func (h *harness) price(token uint32, price string) {
	h.engine.mu.Lock()
	h.engine.prices[token] = decimal.RequireFromString(price)
	h.engine.mu.Unlock()
}

func (h *harness) evaluate(ctx context.Context) ([]ExitResult, Evaluation) {
	ev := h.engine.Evaluate()
	return h.engine.Execute(ctx, ev), ev
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	_, err := NewEngine(Config{}, DefaultFixedPolicy(), nil)
	assert.ErrorIs(t, err, ErrNoGateway)

	_, err = NewEngine(Config{}, nil, &fakeGateway{})
	assert.ErrorIs(t, err, ErrNoPolicy)
}

func TestEngine_StopLossExitsShort(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	h.price(putToken, "170")

	results, ev := h.evaluate(t.Context())

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, models.ExitReasonStopLoss, results[0].Action.Reason)
	assert.True(t, decimal.NewFromInt(-5250).Equal(results[0].Action.PnL))
	assert.Equal(t, []models.ExitOrder{{
		Exchange:      "NFO",
		TradingSymbol: "NIFTY24JUN22000PE",
		Side:          models.SideBuy,
		Quantity:      75,
		Product:       models.ProductNRML,
	}}, h.gateway.submitted())
	assert.True(t, decimal.NewFromInt(-5250).Equal(ev.TotalPnL))
	assert.True(t, decimal.NewFromInt(12750).Equal(ev.TotalNotional))

	st, ok := h.engine.State(putSymbol)
	require.True(t, ok)
	assert.Equal(t, "ord-1", st.PendingOrderID)
	assert.Equal(t, PhaseExitPending, h.engine.Phase(putSymbol))
}

func TestEngine_LongExitsWithSell(t *testing.T) {
	h := newHarness(t, Config{})
	long := models.Position{
		InstrumentToken: callToken,
		Exchange:        "NFO",
		TradingSymbol:   "NIFTY24JUN22000CE",
		Quantity:        50,
		AveragePrice:    decimal.NewFromInt(200),
	}
	h.engine.RefreshPositions([]models.Position{long})
	h.price(callToken, "90")

	results, _ := h.evaluate(t.Context())

	require.Len(t, results, 1)
	assert.Equal(t, models.SideSell, results[0].Action.Order.Side)
	assert.Equal(t, int64(50), results[0].Action.Order.Quantity)
	assert.Equal(t, models.ProductNRML, results[0].Action.Order.Product)
}

func TestEngine_TrailArmsRatchetsAndBreaches(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})

	// P&L = 3750, триггер не превышен
	h.price(putToken, "50")
	results, _ := h.evaluate(t.Context())
	assert.Empty(t, results)
	assert.Equal(t, PhaseFlat, h.engine.Phase(putSymbol))

	// P&L = 3825 → пол 3575
	h.price(putToken, "49")
	results, _ = h.evaluate(t.Context())
	assert.Empty(t, results)
	st, ok := h.engine.State(putSymbol)
	require.True(t, ok)
	require.True(t, st.TrailFloor.Valid)
	assert.True(t, decimal.NewFromInt(3575).Equal(st.TrailFloor.Decimal))
	assert.Equal(t, PhaseTracking, h.engine.Phase(putSymbol))

	// P&L = 3525 < 3575 → выход
	h.price(putToken, "53")
	results, _ = h.evaluate(t.Context())
	require.Len(t, results, 1)
	assert.Equal(t, models.ExitReasonTrailBreach, results[0].Action.Reason)
	assert.True(t, decimal.NewFromInt(3575).Equal(results[0].Action.Floor))
	assert.Equal(t, models.SideBuy, results[0].Action.Order.Side)
	assert.Equal(t, int64(75), results[0].Action.Order.Quantity)

	assert.Equal(t, []models.AuditKind{models.AuditTrailArmed, models.AuditExitSubmitted}, h.journal.kinds())
}

func TestEngine_TrailFloorNeverDecreases(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})

	prices := []string{"49", "45", "47", "40", "43", "42", "41"}
	prev := decimal.Decimal{}
	for _, p := range prices {
		h.price(putToken, p)
		results, _ := h.evaluate(t.Context())
		require.Empty(t, results, "price %s", p)

		st, ok := h.engine.State(putSymbol)
		require.True(t, ok)
		assert.True(t, st.TrailFloor.Decimal.GreaterThanOrEqual(prev), "floor dropped at price %s", p)
		prev = st.TrailFloor.Decimal
	}
	// максимум P&L = (100-40)*75 = 4500 → пол 4250
	assert.True(t, decimal.NewFromInt(4250).Equal(prev))
}

func TestEngine_RatchetsOnlyPastGap(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})

	h.price(putToken, "49") // 3825 → 3575
	h.evaluate(t.Context())
	h.price(putToken, "48.9") // 3832.5 → 3582.5
	h.evaluate(t.Context())

	st, _ := h.engine.State(putSymbol)
	assert.True(t, decimal.RequireFromString("3582.5").Equal(st.TrailFloor.Decimal))
	assert.Equal(t, []models.AuditKind{models.AuditTrailArmed, models.AuditTrailRaised}, h.journal.kinds())
}

func TestEngine_PendingOrderBlocksFurtherExits(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	h.price(putToken, "170")
	h.evaluate(t.Context())
	require.Len(t, h.gateway.submitted(), 1)

	// ордер ещё не виден в списке
	h.price(putToken, "200")
	results, _ := h.evaluate(t.Context())
	assert.Empty(t, results)

	// ордер открыт
	h.engine.RefreshOrders([]models.OrderRecord{{
		OrderID: "ord-1", Exchange: "NFO", TradingSymbol: "NIFTY24JUN22000PE",
		Side: models.SideBuy, Status: models.OrderStatusOpen,
	}})
	h.price(putToken, "250")
	results, _ = h.evaluate(t.Context())
	assert.Empty(t, results)
	assert.Len(t, h.gateway.submitted(), 1)
	assert.Equal(t, PhaseExitPending, h.engine.Phase(putSymbol))
}

func TestEngine_CompletedExitReturnsToFlat(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	h.price(putToken, "170")
	h.evaluate(t.Context())

	h.engine.RefreshOrders([]models.OrderRecord{{
		OrderID: "ord-1", Exchange: "NFO", TradingSymbol: "NIFTY24JUN22000PE",
		Side: models.SideBuy, Status: models.OrderStatusComplete,
		AveragePrice: decimal.NewFromInt(170),
	}})
	results, _ := h.evaluate(t.Context())
	assert.Empty(t, results)
	_, ok := h.engine.State(putSymbol)
	assert.False(t, ok)
	assert.Equal(t, PhaseFlat, h.engine.Phase(putSymbol))

	// пока позиция в снимке не обновилась, повторно не выходим
	results, _ = h.evaluate(t.Context())
	assert.Empty(t, results)
	assert.Len(t, h.gateway.submitted(), 1)

	h.engine.RefreshPositions(nil)
	assert.Empty(t, h.engine.Tokens())
	assert.Contains(t, h.journal.kinds(), models.AuditExitFilled)
}

func TestEngine_RejectedExitKeepsTrail(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	h.price(putToken, "49")
	h.evaluate(t.Context())
	h.price(putToken, "53")
	h.evaluate(t.Context())
	require.Len(t, h.gateway.submitted(), 1)

	h.engine.RefreshOrders([]models.OrderRecord{{
		OrderID: "ord-1", Exchange: "NFO", TradingSymbol: "NIFTY24JUN22000PE",
		Side: models.SideBuy, Status: models.OrderStatusRejected,
	}})
	// цена вернулась выше пола: выхода нет, трейл на месте
	h.price(putToken, "51")
	results, _ := h.evaluate(t.Context())
	assert.Empty(t, results)

	st, ok := h.engine.State(putSymbol)
	require.True(t, ok)
	assert.Empty(t, st.PendingOrderID)
	assert.True(t, decimal.NewFromInt(3575).Equal(st.TrailFloor.Decimal))
	assert.Equal(t, PhaseTracking, h.engine.Phase(putSymbol))

	// следующий пробой отправляет новый выход
	h.price(putToken, "53")
	results, _ = h.evaluate(t.Context())
	require.Len(t, results, 1)
	assert.Equal(t, "ord-2", results[0].OrderID)
}

func TestEngine_RejectedExitRetriesSameCycle(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	h.price(putToken, "170")
	h.evaluate(t.Context())

	h.engine.RefreshOrders([]models.OrderRecord{{
		OrderID: "ord-1", Exchange: "NFO", TradingSymbol: "NIFTY24JUN22000PE",
		Side: models.SideBuy, Status: models.OrderStatusCancelled,
	}})
	results, _ := h.evaluate(t.Context())
	require.Len(t, results, 1)
	assert.Equal(t, "ord-2", results[0].OrderID)
	assert.Contains(t, h.journal.kinds(), models.AuditExitAborted)
}

func TestEngine_UnknownInstrumentTickIsIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})

	results := h.engine.IngestTicks(t.Context(), []models.PriceTick{tick(999, "1")})

	assert.Empty(t, results)
	assert.Empty(t, h.gateway.submitted())
	assert.Equal(t, PhaseFlat, h.engine.Phase(putSymbol))
	_, ok := h.engine.State("NFO:UNKNOWN")
	assert.False(t, ok)
}

func TestEngine_NoPriceNoAction(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})

	results, ev := h.evaluate(t.Context())

	assert.Empty(t, results)
	assert.Zero(t, ev.Priced)
	_, ok := h.engine.State(putSymbol)
	assert.False(t, ok)
}

func TestEngine_ZeroPriceTickIsDropped(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})

	h.engine.IngestTicks(t.Context(), []models.PriceTick{tick(putToken, "0")})

	_, ok := h.engine.LastPrice(putToken)
	assert.False(t, ok)
	assert.Empty(t, h.gateway.submitted())
}

func TestEngine_StopLossWinsOverTrail(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	h.price(putToken, "49")
	h.evaluate(t.Context())

	// цена улетела против нас сразу под стоп-лосс
	h.price(putToken, "170")
	results, _ := h.evaluate(t.Context())
	require.Len(t, results, 1)
	assert.True(t, decimal.NewFromInt(-5250).Equal(results[0].Action.PnL))
}

func TestEngine_ReservedSymbolIsNotReevaluated(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	h.price(putToken, "170")

	h.engine.mu.Lock()
	first := h.engine.evaluateLocked(true)
	second := h.engine.evaluateLocked(true)
	h.engine.mu.Unlock()

	assert.Len(t, first.Actions, 1)
	assert.Empty(t, second.Actions)
	assert.Equal(t, PhaseExitPending, h.engine.Phase(putSymbol))
}

func TestEngine_EvaluateWithoutExecuteLeavesNoMarker(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	h.price(putToken, "170")

	first := h.engine.Evaluate()
	second := h.engine.Evaluate()

	assert.Len(t, first.Actions, 1)
	assert.Len(t, second.Actions, 1)
	assert.Equal(t, PhaseFlat, h.engine.Phase(putSymbol))

	// Execute по любой из оценок записывает pending-ордер
	results := h.engine.Execute(t.Context(), second)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	st, ok := h.engine.State(putSymbol)
	require.True(t, ok)
	assert.Equal(t, "ord-1", st.PendingOrderID)
	assert.Equal(t, PhaseExitPending, h.engine.Phase(putSymbol))

	assert.Empty(t, h.engine.Evaluate().Actions)
	assert.Len(t, h.gateway.submitted(), 1)
}

func TestEngine_ConcurrentTicksSubmitOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.engine.IngestTicks(context.Background(), []models.PriceTick{tick(putToken, "170")})
		}()
		if i%4 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.engine.RefreshPositions([]models.Position{shortPut()})
			}()
		}
	}
	wg.Wait()

	assert.Len(t, h.gateway.submitted(), 1)
}

func TestEngine_FailedSubmissionRetriesNextCycle(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	h.price(putToken, "170")
	h.gateway.fail(errors.New("InputException: margin"))

	results, _ := h.evaluate(t.Context())
	require.Len(t, results, 1)
	assert.False(t, results[0].Submitted())
	assert.Equal(t, PhaseFlat, h.engine.Phase(putSymbol))
	assert.Contains(t, h.journal.kinds(), models.AuditExitFailed)

	h.gateway.fail(nil)
	results, _ = h.evaluate(t.Context())
	require.Len(t, results, 1)
	assert.True(t, results[0].Submitted())
	assert.Len(t, h.gateway.submitted(), 2)
}

func TestEngine_FailedTrailExitKeepsFloor(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	h.price(putToken, "49")
	h.evaluate(t.Context())

	h.gateway.fail(errors.New("timeout"))
	h.price(putToken, "53")
	h.evaluate(t.Context())

	st, ok := h.engine.State(putSymbol)
	require.True(t, ok)
	assert.Empty(t, st.PendingOrderID)
	assert.True(t, decimal.NewFromInt(3575).Equal(st.TrailFloor.Decimal))
}

func TestEngine_RefreshDiscardsClosedSymbols(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	h.price(putToken, "49")
	h.evaluate(t.Context())
	_, ok := h.engine.State(putSymbol)
	require.True(t, ok)

	// позиция всё ещё открыта, трейл сохраняется
	h.engine.RefreshPositions([]models.Position{shortPut()})
	_, ok = h.engine.State(putSymbol)
	assert.True(t, ok)

	// пол поднят до 4250
	h.price(putToken, "40")
	h.evaluate(t.Context())
	st, ok := h.engine.State(putSymbol)
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(4250).Equal(st.TrailFloor.Decimal))

	closed := shortPut()
	closed.Quantity = 0
	h.engine.RefreshPositions([]models.Position{closed})
	_, ok = h.engine.State(putSymbol)
	assert.False(t, ok)
	assert.Empty(t, h.engine.Tokens())

	// вернулась та же позиция: старт с FLAT, пол заново от текущего P&L
	h.engine.RefreshPositions([]models.Position{shortPut()})
	assert.Equal(t, PhaseFlat, h.engine.Phase(putSymbol))

	h.price(putToken, "49")
	results, _ := h.evaluate(t.Context())
	assert.Empty(t, results)
	st, ok = h.engine.State(putSymbol)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(3575).Equal(st.TrailFloor.Decimal))
	assert.Equal(t, PhaseTracking, h.engine.Phase(putSymbol))
}

func TestEngine_ExitUsesPositionProduct(t *testing.T) {
	h := newHarness(t, Config{ExitProduct: models.ProductNRML})
	mis := shortPut()
	mis.Product = models.ProductMIS
	h.engine.RefreshPositions([]models.Position{mis})
	h.price(putToken, "170")

	results, _ := h.evaluate(t.Context())

	require.Len(t, results, 1)
	assert.Equal(t, models.ProductMIS, results[0].Action.Order.Product)
	assert.Equal(t, "NFO:NIFTY24JUN22000PE:MIS", results[0].Action.Symbol)
	assert.Equal(t, PhaseExitPending, h.engine.Phase("NFO:NIFTY24JUN22000PE:MIS"))
}

func TestEngine_ProductsOfOneInstrumentTrackedSeparately(t *testing.T) {
	h := newHarness(t, Config{})
	mis := shortPut()
	mis.Product = models.ProductMIS
	mis.Quantity = -50
	h.engine.RefreshPositions([]models.Position{shortPut(), mis})
	h.price(putToken, "170")

	results, ev := h.evaluate(t.Context())

	// NRML: (170-100)*-75 = -5250 пробивает стоп, MIS: -3500 нет
	require.Len(t, results, 1)
	assert.Equal(t, putSymbol, results[0].Action.Symbol)
	assert.Equal(t, []models.ExitOrder{{
		Exchange:      "NFO",
		TradingSymbol: "NIFTY24JUN22000PE",
		Side:          models.SideBuy,
		Quantity:      75,
		Product:       models.ProductNRML,
	}}, h.gateway.submitted())
	assert.Equal(t, 2, ev.Priced)
	assert.True(t, decimal.NewFromInt(-8750).Equal(ev.TotalPnL))
	assert.Equal(t, PhaseFlat, h.engine.Phase("NFO:NIFTY24JUN22000PE:MIS"))
	assert.Equal(t, []uint32{putToken}, h.engine.Tokens())

	// MIS ушла ниже стопа: -5250 на 50 лотах
	h.price(putToken, "205")
	results, _ = h.evaluate(t.Context())
	require.Len(t, results, 1)
	assert.Equal(t, "NFO:NIFTY24JUN22000PE:MIS", results[0].Action.Symbol)
	assert.Equal(t, int64(50), results[0].Action.Order.Quantity)
	assert.Equal(t, models.ProductMIS, results[0].Action.Order.Product)

	snap := h.engine.Snapshot()
	require.Len(t, snap.Symbols, 2)
	assert.Equal(t, "NFO:NIFTY24JUN22000PE:MIS", snap.Symbols[0].Key)
	assert.Equal(t, putSymbol, snap.Symbols[1].Key)
	assert.Equal(t, "NFO:NIFTY24JUN22000PE", snap.Symbols[1].Symbol)
}

func TestEngine_SellFillMatchesProduct(t *testing.T) {
	h := newHarness(t, Config{})
	mis := shortPut()
	mis.Product = models.ProductMIS
	h.engine.RefreshPositions([]models.Position{mis})
	h.engine.RefreshOrders([]models.OrderRecord{
		{OrderID: "a", Exchange: "NFO", TradingSymbol: "NIFTY24JUN22000PE", Product: models.ProductNRML,
			Side: models.SideSell, Status: models.OrderStatusComplete, AveragePrice: decimal.NewFromInt(150),
			Timestamp: time.Date(2024, 6, 20, 9, 20, 0, 0, time.UTC)},
	})

	snap := h.engine.Snapshot()
	require.Len(t, snap.Symbols, 1)
	assert.True(t, decimal.NewFromInt(100).Equal(snap.Symbols[0].Reference))
}

func TestEngine_SellFillOverridesReference(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.RefreshPositions([]models.Position{shortPut()})
	base := time.Date(2024, 6, 20, 9, 20, 0, 0, time.UTC)
	h.engine.RefreshOrders([]models.OrderRecord{
		{OrderID: "a", Exchange: "NFO", TradingSymbol: "NIFTY24JUN22000PE", Side: models.SideSell,
			Status: models.OrderStatusComplete, AveragePrice: decimal.NewFromInt(90), Timestamp: base},
		{OrderID: "b", Exchange: "NFO", TradingSymbol: "NIFTY24JUN22000PE", Side: models.SideSell,
			Status: models.OrderStatusComplete, AveragePrice: decimal.NewFromInt(110), Timestamp: base.Add(time.Minute)},
		{OrderID: "c", Exchange: "NFO", TradingSymbol: "NIFTY24JUN22000PE", Side: models.SideSell,
			Status: models.OrderStatusOpen, Timestamp: base.Add(2 * time.Minute)},
		{OrderID: "d", Exchange: "NFO", TradingSymbol: "NIFTY24JUN22000PE", Side: models.SideBuy,
			Status: models.OrderStatusComplete, AveragePrice: decimal.NewFromInt(500), Timestamp: base.Add(3 * time.Minute)},
	})
	// от 110: (178-110)*-75 = -5100 < -5000; от 100 было бы -5850
	h.price(putToken, "178")

	results, _ := h.evaluate(t.Context())
	require.Len(t, results, 1)
	assert.True(t, decimal.NewFromInt(-5100).Equal(results[0].Action.PnL))

	snap := h.engine.Snapshot()
	require.Len(t, snap.Symbols, 1)
	assert.True(t, decimal.NewFromInt(110).Equal(snap.Symbols[0].Reference))
}

func TestEngine_IngestTicksThrottlesEvaluation(t *testing.T) {
	h := newHarness(t, Config{EvalInterval: 15 * time.Second})
	h.engine.RefreshPositions([]models.Position{shortPut()})

	// первая оценка сразу: P&L 0
	assert.Empty(t, h.engine.IngestTicks(t.Context(), []models.PriceTick{tick(putToken, "100")}))

	h.clock.Advance(5 * time.Second)
	assert.Empty(t, h.engine.IngestTicks(t.Context(), []models.PriceTick{tick(putToken, "170")}))
	assert.Empty(t, h.gateway.submitted())

	// цена кешируется даже без оценки
	ltp, ok := h.engine.LastPrice(putToken)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(170).Equal(ltp))

	h.clock.Advance(10 * time.Second)
	results := h.engine.IngestTicks(t.Context(), nil)
	require.Len(t, results, 1)
	assert.Len(t, h.gateway.submitted(), 1)
}

func TestEngine_IngestTicksOutsideWindowOnlyCaches(t *testing.T) {
	window, err := ParseTradingWindow("09:15", "15:30", "UTC")
	require.NoError(t, err)
	h := newHarness(t, Config{Window: window})
	h.clock.t = time.Date(2024, 6, 20, 16, 0, 0, 0, time.UTC)
	h.engine.RefreshPositions([]models.Position{shortPut()})

	results := h.engine.IngestTicks(t.Context(), []models.PriceTick{tick(putToken, "170")})

	assert.Empty(t, results)
	assert.Empty(t, h.gateway.submitted())
	_, ok := h.engine.LastPrice(putToken)
	assert.True(t, ok)
}

func TestEngine_SnapshotReportsPhases(t *testing.T) {
	h := newHarness(t, Config{})
	call := models.Position{
		InstrumentToken: callToken, Exchange: "NFO", TradingSymbol: "NIFTY24JUN22000CE",
		Quantity: -75, AveragePrice: decimal.NewFromInt(80),
	}
	h.engine.RefreshPositions([]models.Position{shortPut(), call})
	h.price(putToken, "49")
	h.evaluate(t.Context())

	snap := h.engine.Snapshot()
	require.Len(t, snap.Symbols, 2)
	assert.Equal(t, "NFO:NIFTY24JUN22000CE", snap.Symbols[0].Symbol)
	assert.False(t, snap.Symbols[0].HasPrice)
	assert.Equal(t, PhaseFlat, snap.Symbols[0].Phase)
	assert.Equal(t, PhaseTracking, snap.Symbols[1].Phase)
	assert.True(t, decimal.NewFromInt(3825).Equal(snap.TotalPnL))
	assert.Equal(t, []uint32{putToken, callToken}, h.engine.Tokens())
}
