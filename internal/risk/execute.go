package risk

import (
	"context"
	"fmt"

	"kite_guard/internal/models"
	"kite_guard/pkg/logger"
	"kite_guard/pkg/tracing"

	"github.com/google/uuid"
)

type ExitResult struct {
	Action  models.ExitAction
	OrderID string
	Err     error
}

func (r ExitResult) Submitted() bool { return r.Err == nil }

// Execute выполняет побочные эффекты оценки вне блокировки: уведомления,
// журнал и отправку выходных ордеров.
func (e *Engine) Execute(ctx context.Context, ev Evaluation) []ExitResult {
	if len(ev.Events) == 0 && len(ev.Actions) == 0 {
		return nil
	}

	span, ctx := tracing.StartSpan(ctx, "risk.Execute")
	span.SetTag("evaluation_id", ev.ID.String())
	span.SetTag("actions", len(ev.Actions))
	defer span.Finish()

	for _, evt := range ev.Events {
		e.publish(ctx, evt)
	}

	results := make([]ExitResult, 0, len(ev.Actions))
	for _, action := range ev.Actions {
		results = append(results, e.submit(ctx, action))
	}
	return results
}

func (e *Engine) submit(ctx context.Context, action models.ExitAction) ExitResult {
	orderID, err := e.gateway.SubmitMarketExit(ctx, action.Order)
	if err == nil && orderID == "" {
		err = ErrEmptyOrderID
	}
	e.settle(action.Symbol, orderID, err)

	res := ExitResult{Action: action, OrderID: orderID, Err: err}
	if err != nil {
		logger.Error("exit %s for %s failed: %v", action.Order, action.Symbol, err)
		e.publish(ctx, Event{
			Kind:   models.AuditExitFailed,
			Symbol: action.Symbol,
			PnL:    action.PnL,
			Text:   fmt.Sprintf("❗️ [%s] не удалось отправить выход (%s): %v", action.Symbol, action.Reason, err),
		})
		return res
	}

	logger.Info("exit %s for %s submitted: order=%s reason=%s pnl=%s floor=%s",
		action.Order, action.Symbol, orderID, action.Reason, action.PnL.StringFixed(2), action.Floor.StringFixed(2))
	e.publish(ctx, Event{
		Kind:    models.AuditExitSubmitted,
		Symbol:  action.Symbol,
		OrderID: orderID,
		PnL:     action.PnL,
		Text: fmt.Sprintf("🛑 [%s] %s: P&L=%s < %s → %s (order %s)",
			action.Symbol, reasonTitle(action.Reason), action.PnL.StringFixed(2), action.Floor.StringFixed(2), action.Order, orderID),
	})
	return res
}

// settle записывает итог отправки. При ошибке состояние возвращается к тому,
// что было до оценки, и следующий цикл попробует снова.
func (e *Engine) settle(symbol, orderID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[symbol]
	if !ok {
		// оценка без резерва (Evaluate): заводим состояние под принятый ордер,
		// если позиция всё ещё в снимке
		if _, open := e.positions[symbol]; err == nil && open {
			e.states[symbol] = &ExitState{PendingOrderID: orderID}
		}
		return
	}
	st.submitting = false
	if err == nil {
		st.PendingOrderID = orderID
		return
	}
	if st.idle() {
		delete(e.states, symbol)
	}
}

func (e *Engine) publish(ctx context.Context, evt Event) {
	e.notifier.Notify(ctx, evt.Text)

	rec := models.AuditRecord{
		ID:        uuid.New(),
		Kind:      evt.Kind,
		Symbol:    evt.Symbol,
		OrderID:   evt.OrderID,
		PnL:       evt.PnL,
		Message:   evt.Text,
		CreatedAt: e.now(),
	}
	if err := e.journal.Append(ctx, rec); err != nil {
		logger.Warn("journal append %s/%s: %v", evt.Kind, evt.Symbol, err)
	}
}

func reasonTitle(r models.ExitReason) string {
	switch r {
	case models.ExitReasonTrailBreach:
		return "пробит трейл"
	default:
		return "стоп-лосс"
	}
}
