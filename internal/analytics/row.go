package analytics

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox/payloads"
)

// OrderEventRow is one row of the order_events table. Order columns are empty
// for stock events and product columns are empty for order events.
type OrderEventRow struct {
	EventID    string
	EventType  enums.OutboxEventType
	OccurredAt time.Time
	OrderID    string
	UserID     string
	ProductID  string
	Status     string
	Amount     *big.Rat
	Currency   string
	Quantity   int64
	Payload    string
}

// Save implements bigquery.ValueSaver. The event id doubles as the insert id so
// streaming retries are deduplicated by BigQuery.
func (r *OrderEventRow) Save() (map[string]bigquery.Value, string, error) {
	row := map[string]bigquery.Value{
		"event_id":    r.EventID,
		"event_type":  string(r.EventType),
		"occurred_at": r.OccurredAt,
		"order_id":    nullString(r.OrderID),
		"user_id":     nullString(r.UserID),
		"product_id":  nullString(r.ProductID),
		"status":      nullString(r.Status),
		"currency":    nullString(r.Currency),
		"quantity":    r.Quantity,
		"payload":     nullString(r.Payload),
	}
	if r.Amount != nil {
		row["amount"] = r.Amount
	} else {
		row["amount"] = nil
	}
	return row, r.EventID, nil
}

func nullString(v string) bigquery.Value {
	if v == "" {
		return nil
	}
	return v
}

type rowBuilder func(row *OrderEventRow, data json.RawMessage) error

var rowBuilders = map[enums.OutboxEventType]rowBuilder{
	enums.EventOrderCreated:   orderCreatedRow,
	enums.EventOrderPaid:      orderPaidRow,
	enums.EventOrderExpired:   orderExpiredRow,
	enums.EventOrderCancelled: statusChangedRow,
	enums.EventOrderShipped:   statusChangedRow,
	enums.EventOrderDelivered: statusChangedRow,
	enums.EventStockRestocked: stockRestockedRow,
}

// BuildRow flattens an outbox envelope into an order_events row.
func BuildRow(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (*OrderEventRow, error) {
	build, ok := rowBuilders[eventType]
	if !ok {
		return nil, fmt.Errorf("unsupported event type %q", eventType)
	}
	if _, err := uuid.Parse(envelope.EventID); err != nil {
		return nil, fmt.Errorf("invalid event id: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("payload missing")
	}

	row := &OrderEventRow{
		EventID:    envelope.EventID,
		EventType:  eventType,
		OccurredAt: envelope.OccurredAt.UTC(),
		Payload:    string(envelope.Data),
	}
	if err := build(row, envelope.Data); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return row, nil
}

func orderCreatedRow(row *OrderEventRow, data json.RawMessage) error {
	var p payloads.OrderCreatedEvent
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if err := setOrder(row, p.OrderID, p.UserID, enums.OrderStatusPendingPayment); err != nil {
		return err
	}
	row.Amount = p.TotalAmount.Rat()
	row.Currency = p.Currency
	for _, line := range p.Lines {
		row.Quantity += int64(line.Quantity)
	}
	return nil
}

func orderPaidRow(row *OrderEventRow, data json.RawMessage) error {
	var p payloads.OrderPaidEvent
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if err := setOrder(row, p.OrderID, p.UserID, enums.OrderStatusPaid); err != nil {
		return err
	}
	row.Amount = p.Amount.Rat()
	row.Currency = p.Currency
	return nil
}

func orderExpiredRow(row *OrderEventRow, data json.RawMessage) error {
	var p payloads.OrderExpiredEvent
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if err := setOrder(row, p.OrderID, p.UserID, enums.OrderStatusCancelled); err != nil {
		return err
	}
	for _, line := range p.Released {
		row.Quantity += int64(line.Quantity)
	}
	return nil
}

func statusChangedRow(row *OrderEventRow, data json.RawMessage) error {
	var p payloads.OrderStatusChangedEvent
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	return setOrder(row, p.OrderID, p.UserID, p.To)
}

func stockRestockedRow(row *OrderEventRow, data json.RawMessage) error {
	var p payloads.StockRestockedEvent
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.ProductID == uuid.Nil {
		return fmt.Errorf("product id required")
	}
	row.ProductID = p.ProductID.String()
	row.Quantity = int64(p.Added)
	return nil
}

func setOrder(row *OrderEventRow, orderID, userID uuid.UUID, status enums.OrderStatus) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("order id required")
	}
	row.OrderID = orderID.String()
	if userID != uuid.Nil {
		row.UserID = userID.String()
	}
	row.Status = string(status)
	return nil
}
