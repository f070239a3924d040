package service

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"kite_guard/internal/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const kiteTimeLayout = "2006-01-02 15:04:05"

// Kite отдаёт время ордеров в IST без зоны.
var ist = time.FixedZone("IST", 5*60*60+30*60)

type kiteTime struct {
	time.Time
}

func (t *kiteTime) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(kiteTimeLayout, string(b), ist)
	if err != nil {
		return errors.Wrapf(err, "parse kite time %q", string(b))
	}
	t.Time = parsed
	return nil
}

type orderDTO struct {
	OrderID         string          `json:"order_id"`
	Exchange        string          `json:"exchange"`
	TradingSymbol   string          `json:"tradingsymbol"`
	Product         string          `json:"product"`
	TransactionType string          `json:"transaction_type"`
	Status          string          `json:"status"`
	Quantity        int64           `json:"quantity"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	OrderTimestamp  kiteTime        `json:"order_timestamp"`
}

// OrdersForToday: все ордера текущего дня.
func (c *Client) OrdersForToday(ctx context.Context) ([]models.OrderRecord, error) {
	var resp []orderDTO
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]models.OrderRecord, 0, len(resp))
	for _, o := range resp {
		out = append(out, models.OrderRecord{
			OrderID:       o.OrderID,
			Exchange:      o.Exchange,
			TradingSymbol: o.TradingSymbol,
			Product:       o.Product,
			Side:          models.Side(strings.ToUpper(o.TransactionType)),
			Status:        models.OrderStatus(strings.ToUpper(o.Status)),
			Quantity:      o.Quantity,
			AveragePrice:  o.AveragePrice,
			Timestamp:     o.OrderTimestamp.Time,
		})
	}
	return out, nil
}
