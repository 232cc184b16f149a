package square

import (
	"strconv"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// OrderLine is one priced line of a Square order.
type OrderLine struct {
	Name        string
	Quantity    int
	AmountMinor int64
}

// OrderCreateParams encapsulates the inputs for a Square order that a buyer will pay.
type OrderCreateParams struct {
	ReferenceID    string
	Currency       string
	Lines          []OrderLine
	IdempotencyKey string
}

func (p OrderCreateParams) toSquareRequest(locationID, idempotencyKey string) *sq.CreateOrderRequest {
	lines := make([]*sq.OrderLineItem, 0, len(p.Lines))
	for _, line := range p.Lines {
		lines = append(lines, &sq.OrderLineItem{
			Name:           ptrString(line.Name),
			Quantity:       strconv.Itoa(line.Quantity),
			BasePriceMoney: moneyPtr(line.AmountMinor, p.Currency),
		})
	}
	return &sq.CreateOrderRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		Order: &sq.Order{
			LocationID:  locationID,
			ReferenceID: ptrString(p.ReferenceID),
			LineItems:   lines,
		},
	}
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
