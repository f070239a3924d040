package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusComplete  OrderStatus = "COMPLETE"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// IsTerminal: ордер больше не изменится. Остальные статусы брокера
// (TRIGGER PENDING, AMO REQ RECEIVED, VALIDATION PENDING ...) считаем открытыми.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusComplete, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

type OrderRecord struct {
	OrderID       string
	Exchange      string
	TradingSymbol string
	Product       string
	Side          Side
	Status        OrderStatus
	Quantity      int64
	AveragePrice  decimal.Decimal
	Timestamp     time.Time
}

func (o OrderRecord) Symbol() string {
	return SymbolKey(o.Exchange, o.TradingSymbol)
}

// Key совпадает с Position.Key для ордеров с продуктом.
func (o OrderRecord) Key() string {
	return PositionKey(o.Exchange, o.TradingSymbol, o.Product)
}
