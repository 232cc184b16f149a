package square

import (
	"context"
	"fmt"
)

// CreatedOrder is the part of a Square order the payment flow needs.
type CreatedOrder struct {
	ID          string
	State       string
	AmountMinor int64
	Currency    string
}

// CreateOrder opens a Square order under the configured location.
func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (*CreatedOrder, error) {
	if c == nil || c.sdk == nil {
		return nil, errAccessTokenRequired
	}
	if len(params.Lines) == 0 {
		return nil, fmt.Errorf("square order requires at least one line")
	}

	req := params.toSquareRequest(c.locationID, c.ensureIdempotencyKey("order.create", params.IdempotencyKey))
	c.log(ctx, "request", "create_order", map[string]any{
		"location_id":  c.locationID,
		"reference_id": params.ReferenceID,
		"lines":        len(params.Lines),
	})

	resp, err := c.sdk.Orders.Create(ctx, req)
	if err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "create order")
	}

	order := resp.GetOrder()
	if order == nil || stringValue(order.GetID()) == "" {
		return nil, c.mapSquareError(fmt.Errorf("empty order in response"), "create order")
	}

	out := &CreatedOrder{
		ID:    stringValue(order.GetID()),
		State: orderStateString(order.GetState()),
	}
	if total := order.GetTotalMoney(); total != nil {
		if amount := total.GetAmount(); amount != nil {
			out.AmountMinor = *amount
		}
		if currency := total.GetCurrency(); currency != nil {
			out.Currency = string(*currency)
		}
	}

	c.log(ctx, "response", "create_order", map[string]any{
		"square_order_id": out.ID,
		"state":           out.State,
		"amount":          out.AmountMinor,
	})
	return out, nil
}
