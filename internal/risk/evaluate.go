package risk

import (
	"fmt"
	"sort"
	"time"

	"kite_guard/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event: переход состояния, о котором надо сообщить и записать в журнал.
type Event struct {
	Kind    models.AuditKind
	Symbol  string
	OrderID string
	PnL     decimal.Decimal
	Text    string
}

// Evaluation: результат одного прохода по позициям. Побочных эффектов
// не содержит, их выполняет Execute.
type Evaluation struct {
	ID      uuid.UUID
	At      time.Time
	Actions []models.ExitAction
	Events  []Event

	// только для отчётов
	TotalPnL      decimal.Decimal
	TotalNotional decimal.Decimal
	Priced        int
}

// Evaluate прогоняет решение по текущему снимку под блокировкой движка.
// Выходы не резервируются: вызов без Execute ничего не блокирует, а
// Execute сам запишет pending-ордер. Параллельный путь тиков (IngestTicks)
// резервирует символы до отправки.
func (e *Engine) Evaluate() Evaluation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(false)
}

// evaluateLocked с reserve помечает выбранные на выход символы как
// отправляемые, и следующая оценка до settle их пропустит.
func (e *Engine) evaluateLocked(reserve bool) Evaluation {
	ev := Evaluation{
		ID:            uuid.New(),
		At:            e.now(),
		TotalPnL:      decimal.Zero,
		TotalNotional: decimal.Zero,
	}

	fills := latestSellFills(e.orders)
	byID := make(map[string]models.OrderRecord, len(e.orders))
	for _, o := range e.orders {
		byID[o.OrderID] = o
	}

	symbols := make([]string, 0, len(e.positions))
	for sym := range e.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		e.evaluateSymbol(&ev, sym, e.positions[sym], fills, byID, reserve)
	}
	return ev
}

func (e *Engine) evaluateSymbol(
	ev *Evaluation,
	sym string,
	pos models.Position,
	fills map[string]models.OrderRecord,
	byID map[string]models.OrderRecord,
	reserve bool,
) {
	ltp, ok := e.prices[pos.InstrumentToken]
	if !ok {
		return
	}
	if _, held := e.settled[sym]; held {
		return
	}

	ref := referencePrice(pos, fills)
	pnl := ltp.Sub(ref).Mul(decimal.NewFromInt(pos.Quantity))

	ev.Priced++
	ev.TotalPnL = ev.TotalPnL.Add(pnl)
	ev.TotalNotional = ev.TotalNotional.Add(ltp.Mul(decimal.NewFromInt(pos.AbsQuantity())))

	limits := e.policy.Limits(pos, ref)
	st := e.states[sym]
	if st != nil {
		st.BaseStop = limits.StopLoss
		if st.submitting {
			return
		}
	}

	if st != nil && st.PendingOrderID != "" {
		order, found := byID[st.PendingOrderID]
		if !found || !order.Status.IsTerminal() {
			return
		}

		if order.Status == models.OrderStatusComplete {
			delete(e.states, sym)
			e.settled[sym] = struct{}{}
			ev.Events = append(ev.Events, Event{
				Kind:    models.AuditExitFilled,
				Symbol:  sym,
				OrderID: order.OrderID,
				PnL:     pnl,
				Text:    fmt.Sprintf("✅ [%s] выход исполнен (order %s) @ %s", sym, order.OrderID, order.AveragePrice.StringFixed(2)),
			})
			return
		}

		// отменён или отклонён: трейл сохраняем, пробуем снова в этом же цикле
		st.PendingOrderID = ""
		ev.Events = append(ev.Events, Event{
			Kind:    models.AuditExitAborted,
			Symbol:  sym,
			OrderID: order.OrderID,
			PnL:     pnl,
			Text:    fmt.Sprintf("⚠️ [%s] выходной ордер %s: %s", sym, order.OrderID, order.Status),
		})
		if st.idle() {
			delete(e.states, sym)
			st = nil
		}
	}

	floor, reason := limits.StopLoss, models.ExitReasonStopLoss
	if st != nil && st.TrailFloor.Valid && st.TrailFloor.Decimal.GreaterThan(floor) {
		floor, reason = st.TrailFloor.Decimal, models.ExitReasonTrailBreach
	}

	if pnl.LessThan(floor) {
		if reserve {
			if st == nil {
				st = &ExitState{}
				e.states[sym] = st
			}
			st.BaseStop = limits.StopLoss
			st.submitting = true
		}
		ev.Actions = append(ev.Actions, models.ExitAction{
			Symbol: sym,
			Reason: reason,
			PnL:    pnl,
			Floor:  floor,
			Order: models.ExitOrder{
				Exchange:      pos.Exchange,
				TradingSymbol: pos.TradingSymbol,
				Side:          pos.ExitSide(),
				Quantity:      pos.AbsQuantity(),
				Product:       e.exitProduct(pos),
			},
		})
		return
	}

	if !pnl.GreaterThan(limits.TrailTrigger) {
		return
	}

	armed := st == nil || !st.TrailFloor.Valid
	if st == nil {
		st = &ExitState{BaseStop: limits.StopLoss}
		e.states[sym] = st
	}
	if !st.raiseFloor(pnl.Sub(limits.TrailGap)) {
		return
	}

	kind, verb := models.AuditTrailRaised, "поднят"
	if armed {
		kind, verb = models.AuditTrailArmed, "взведён"
	}
	ev.Events = append(ev.Events, Event{
		Kind:   kind,
		Symbol: sym,
		PnL:    pnl,
		Text: fmt.Sprintf("📈 [%s] трейл %s: P&L=%s пол=%s",
			sym, verb, pnl.StringFixed(2), st.TrailFloor.Decimal.StringFixed(2)),
	})
}

// latestSellFills: последняя по времени исполненная продажа на каждый
// ключ ордера (с продуктом, если брокер его прислал).
func latestSellFills(orders []models.OrderRecord) map[string]models.OrderRecord {
	out := make(map[string]models.OrderRecord)
	for _, o := range orders {
		if o.Side != models.SideSell || !o.AveragePrice.IsPositive() {
			continue
		}
		sym := o.Key()
		if cur, ok := out[sym]; ok && !o.Timestamp.After(cur.Timestamp) {
			continue
		}
		out[sym] = o
	}
	return out
}

func referencePrice(pos models.Position, fills map[string]models.OrderRecord) decimal.Decimal {
	if fill, ok := fills[pos.Key()]; ok {
		return fill.AveragePrice
	}
	if fill, ok := fills[pos.Symbol()]; ok {
		return fill.AveragePrice
	}
	return pos.AveragePrice
}

// exitProduct: выход ставится в продукт позиции, иначе MIS закрывался бы
// встречной NRML-позицией. Конфиг только для строк без продукта.
func (e *Engine) exitProduct(pos models.Position) string {
	switch {
	case pos.Product != "":
		return pos.Product
	case e.cfg.ExitProduct != "":
		return e.cfg.ExitProduct
	default:
		return models.ProductNRML
	}
}
