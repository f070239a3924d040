package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type ExitReason string

const (
	ExitReasonStopLoss    ExitReason = "stop_loss"
	ExitReasonTrailBreach ExitReason = "trail_breach"
)

// ExitOrder: рыночный ордер, закрывающий позицию целиком.
type ExitOrder struct {
	Exchange      string
	TradingSymbol string
	Side          Side
	Quantity      int64
	Product       string
}

func (o ExitOrder) String() string {
	return fmt.Sprintf("%s %d %s:%s (%s)", o.Side, o.Quantity, o.Exchange, o.TradingSymbol, o.Product)
}

type ExitAction struct {
	Symbol string
	Order  ExitOrder
	Reason ExitReason
	PnL    decimal.Decimal
	Floor  decimal.Decimal
}
