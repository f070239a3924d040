package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"kite_guard/internal/models"

	"github.com/pkg/errors"
)

type placeOrderDTO struct {
	OrderID string `json:"order_id"`
}

// SubmitMarketExit ставит рыночный DAY-ордер variety=regular.
func (c *Client) SubmitMarketExit(ctx context.Context, order models.ExitOrder) (string, error) {
	if order.Quantity <= 0 {
		return "", errors.Errorf("exit %s: quantity must be positive", order)
	}

	product := order.Product
	if product == "" {
		product = c.opts.Product
	}

	form := url.Values{}
	form.Set("tradingsymbol", order.TradingSymbol)
	form.Set("exchange", order.Exchange)
	form.Set("transaction_type", string(order.Side))
	form.Set("order_type", "MARKET")
	form.Set("quantity", strconv.FormatInt(order.Quantity, 10))
	form.Set("product", product)
	form.Set("validity", "DAY")
	if c.opts.OrderTag != "" {
		form.Set("tag", c.opts.OrderTag)
	}

	var resp placeOrderDTO
	if err := c.do(ctx, http.MethodPost, "/orders/regular", form, &resp); err != nil {
		return "", errors.Wrapf(err, "place exit %s", order)
	}
	return resp.OrderID, nil
}
