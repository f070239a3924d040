package risk

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type SymbolView struct {
	Key            string              `json:"key"`
	Symbol         string              `json:"symbol"`
	Product        string              `json:"product,omitempty"`
	Token          uint32              `json:"token"`
	Quantity       int64               `json:"quantity"`
	HasPrice       bool                `json:"has_price"`
	LastPrice      decimal.Decimal     `json:"last_price"`
	Reference      decimal.Decimal     `json:"reference"`
	PnL            decimal.Decimal     `json:"pnl"`
	Phase          Phase               `json:"phase"`
	TrailFloor     decimal.NullDecimal `json:"trail_floor"`
	PendingOrderID string              `json:"pending_order_id,omitempty"`
}

type Snapshot struct {
	At             time.Time       `json:"at"`
	LastEvaluation time.Time       `json:"last_evaluation"`
	Symbols        []SymbolView    `json:"symbols"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	TotalNotional  decimal.Decimal `json:"total_notional"`
}

// Snapshot: read-only срез для статуса (/positions, /status).
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := Snapshot{
		At:             e.now(),
		LastEvaluation: e.lastEval,
		Symbols:        make([]SymbolView, 0, len(e.positions)),
		TotalPnL:       decimal.Zero,
		TotalNotional:  decimal.Zero,
	}

	fills := latestSellFills(e.orders)
	for key, pos := range e.positions {
		st := e.states[key]
		view := SymbolView{
			Key:       key,
			Symbol:    pos.Symbol(),
			Product:   pos.Product,
			Token:     pos.InstrumentToken,
			Quantity:  pos.Quantity,
			Reference: referencePrice(pos, fills),
			Phase:     st.phase(),
		}
		if st != nil {
			view.TrailFloor = st.TrailFloor
			view.PendingOrderID = st.PendingOrderID
		}
		if ltp, ok := e.prices[pos.InstrumentToken]; ok {
			view.HasPrice = true
			view.LastPrice = ltp
			view.PnL = ltp.Sub(view.Reference).Mul(decimal.NewFromInt(pos.Quantity))
			out.TotalPnL = out.TotalPnL.Add(view.PnL)
			out.TotalNotional = out.TotalNotional.Add(ltp.Mul(decimal.NewFromInt(pos.AbsQuantity())))
		}
		out.Symbols = append(out.Symbols, view)
	}
	sort.Slice(out.Symbols, func(i, j int) bool { return out.Symbols[i].Key < out.Symbols[j].Key })
	return out
}
