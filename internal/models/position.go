package models

import (
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const (
	ProductNRML = "NRML"
	ProductMIS  = "MIS"
)

// Position: открытая позиция из /portfolio/positions (net).
type Position struct {
	InstrumentToken uint32
	Exchange        string
	TradingSymbol   string
	Product         string
	Quantity        int64 // со знаком: < 0 значит шорт
	AveragePrice    decimal.Decimal
}

// Symbol: ключ позиции вида NFO:NIFTY24JUN22000PE.
func (p Position) Symbol() string {
	return SymbolKey(p.Exchange, p.TradingSymbol)
}

// Key: ключ позиции с продуктом, NFO:NIFTY24JUN22000PE:MIS. Kite отдаёт
// отдельную net-строку на каждый продукт одного инструмента.
func (p Position) Key() string {
	return PositionKey(p.Exchange, p.TradingSymbol, p.Product)
}

func (p Position) AbsQuantity() int64 {
	if p.Quantity < 0 {
		return -p.Quantity
	}
	return p.Quantity
}

// ExitSide: сторона ордера, который закрывает позицию.
func (p Position) ExitSide() Side {
	if p.Quantity < 0 {
		return SideBuy
	}
	return SideSell
}

func SymbolKey(exchange, tradingSymbol string) string {
	return exchange + ":" + tradingSymbol
}

func PositionKey(exchange, tradingSymbol, product string) string {
	if product == "" {
		return SymbolKey(exchange, tradingSymbol)
	}
	return SymbolKey(exchange, tradingSymbol) + ":" + product
}
