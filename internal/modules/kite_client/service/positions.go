package service

import (
	"context"
	"net/http"
	"strings"

	"kite_guard/internal/models"

	"github.com/shopspring/decimal"
)

type positionDTO struct {
	TradingSymbol   string          `json:"tradingsymbol"`
	Exchange        string          `json:"exchange"`
	InstrumentToken uint32          `json:"instrument_token"`
	Product         string          `json:"product"`
	Quantity        int64           `json:"quantity"`
	AveragePrice    decimal.Decimal `json:"average_price"`
}

type positionsDTO struct {
	Net []positionDTO `json:"net"`
	Day []positionDTO `json:"day"`
}

// OpenPositions: net-позиции с ненулевым количеством на бирже exchange
// (пустая строка: биржа из конфига).
func (c *Client) OpenPositions(ctx context.Context, exchange string) ([]models.Position, error) {
	if exchange == "" {
		exchange = c.opts.Exchange
	}

	var resp positionsDTO
	if err := c.do(ctx, http.MethodGet, "/portfolio/positions", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]models.Position, 0, len(resp.Net))
	for _, p := range resp.Net {
		if p.Quantity == 0 {
			continue
		}
		if exchange != "" && !strings.EqualFold(p.Exchange, exchange) {
			continue
		}
		out = append(out, models.Position{
			InstrumentToken: p.InstrumentToken,
			Exchange:        p.Exchange,
			TradingSymbol:   p.TradingSymbol,
			Product:         p.Product,
			Quantity:        p.Quantity,
			AveragePrice:    p.AveragePrice,
		})
	}
	return out, nil
}
