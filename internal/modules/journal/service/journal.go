package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kite_guard/internal/models"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

var ErrAlreadyRunning = errors.New("another instance is already running")

// Store: журнал переходов и строка script_status.
type Store interface {
	Append(ctx context.Context, rec models.AuditRecord) error
	Recent(ctx context.Context, limit int) ([]models.AuditRecord, error)

	Status(ctx context.Context, script string) (models.RunStatus, bool, error)
	SetStatus(ctx context.Context, st models.RunStatus) error

	Close() error
}

// Guard: защита от второго экземпляра: RUNNING со свежим heartbeat
// блокирует старт, пока не задан force.
type Guard struct {
	store      Store
	script     string
	runID      string
	staleAfter time.Duration
	now        func() time.Time
}

func NewGuard(store Store, script, runID string, staleAfter time.Duration) *Guard {
	return &Guard{
		store:      store,
		script:     script,
		runID:      runID,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (g *Guard) Acquire(ctx context.Context, force bool) error {
	cur, ok, err := g.store.Status(ctx, g.script)
	if err != nil {
		return fmt.Errorf("read script status: %w", err)
	}
	if ok && !force && cur.State == models.RunStateRunning && cur.RunID != g.runID &&
		(g.staleAfter <= 0 || g.now().Sub(cur.UpdatedAt) < g.staleAfter) {
		return fmt.Errorf("%w: %s run %s, last seen %s", ErrAlreadyRunning, g.script, cur.RunID, cur.UpdatedAt.Format(time.RFC3339))
	}
	return g.Heartbeat(ctx)
}

func (g *Guard) Heartbeat(ctx context.Context) error {
	return g.store.SetStatus(ctx, models.RunStatus{
		Script:    g.script,
		RunID:     g.runID,
		State:     models.RunStateRunning,
		UpdatedAt: g.now(),
	})
}

func (g *Guard) Release(ctx context.Context) error {
	return g.store.SetStatus(ctx, models.RunStatus{
		Script:    g.script,
		RunID:     g.runID,
		State:     models.RunStateStopped,
		UpdatedAt: g.now(),
	})
}

func (g *Guard) RunID() string { return g.runID }

// payload: полная запись в JSON, кладётся рядом с колонками.
type payload struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Symbol    string `json:"symbol"`
	OrderID   string `json:"order_id,omitempty"`
	PnL       string `json:"pnl"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

func encodePayload(rec models.AuditRecord) (string, error) {
	b, err := sonic.Marshal(payload{
		ID:        rec.ID.String(),
		Kind:      string(rec.Kind),
		Symbol:    rec.Symbol,
		OrderID:   rec.OrderID,
		PnL:       rec.PnL.String(),
		Message:   rec.Message,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("encode audit payload: %w", err)
	}
	return string(b), nil
}

func parsePnL(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Nop: журнал выключен.
type Nop struct{}

func (Nop) Append(context.Context, models.AuditRecord) error { return nil }
func (Nop) Recent(context.Context, int) ([]models.AuditRecord, error) {
	return nil, nil
}
func (Nop) Status(context.Context, string) (models.RunStatus, bool, error) {
	return models.RunStatus{}, false, nil
}
func (Nop) SetStatus(context.Context, models.RunStatus) error { return nil }
func (Nop) Close() error                                      { return nil }
