package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceTick struct {
	InstrumentToken uint32
	LastPrice       decimal.Decimal
	Timestamp       time.Time
}
