package service

import (
	"fmt"
	"strings"

	"kite_guard/internal/risk"
)

func FormatStatus(s risk.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Позиций: %d\n", len(s.Symbols))
	fmt.Fprintf(&b, "P&L: %s\n", s.TotalPnL.StringFixed(2))
	fmt.Fprintf(&b, "Номинал: %s\n", s.TotalNotional.StringFixed(2))
	if s.LastEvaluation.IsZero() {
		b.WriteString("Оценка: ещё не было")
	} else {
		fmt.Fprintf(&b, "Оценка: %s", s.LastEvaluation.Format("15:04:05"))
	}
	return b.String()
}

func FormatPositions(s risk.Snapshot) string {
	if len(s.Symbols) == 0 {
		return "📭 Открытых позиций нет"
	}

	var b strings.Builder
	b.WriteString("📊 Открытые позиции:\n")
	for _, v := range s.Symbols {
		pnl := "n/a"
		if v.HasPrice {
			pnl = v.PnL.StringFixed(2)
		}
		sym := v.Symbol
		if v.Product != "" {
			sym += " " + v.Product
		}
		fmt.Fprintf(&b, "- %s qty=%d ref=%s P&L=%s [%s]", sym, v.Quantity, v.Reference.StringFixed(2), pnl, v.Phase)
		if v.TrailFloor.Valid {
			fmt.Fprintf(&b, " пол=%s", v.TrailFloor.Decimal.StringFixed(2))
		}
		if v.PendingOrderID != "" {
			fmt.Fprintf(&b, " order=%s", v.PendingOrderID)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
