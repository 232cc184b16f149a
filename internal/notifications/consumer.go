package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox/payloads"
	pkgpubsub "github.com/angelmondragon/stockhold-backend/pkg/pubsub"
)

const consumerName = "order-notifications"

type processedGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns buyer-facing order events into in-app notifications.
type Consumer struct {
	repo          Repository
	subscriptions []pkgpubsub.Receiver
	guard         processedGuard
	logg          *logger.Logger
}

func NewConsumer(repo Repository, subscriptions []pkgpubsub.Receiver, guard processedGuard, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if len(subscriptions) == 0 {
		return nil, fmt.Errorf("notification subscriptions required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{repo: repo, subscriptions: subscriptions, guard: guard, logg: logg}, nil
}

// Run receives from every subscription until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return pkgpubsub.ReceiveAll(ctx, func(ctx context.Context, msg *pubsub.Message) bool {
		return c.process(ctx, msg.ID, msg.Attributes, msg.Data)
	}, c.subscriptions...)
}

// process reports whether the message should be acked. Malformed messages are
// acked and logged; they would fail the same way on every redelivery.
func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	build, ok := builders[eventType]
	if !ok {
		c.logg.Debug(logCtx, "notifications.skip")
		return true
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "notifications.decode_envelope", err)
		return true
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "notifications.invalid_event_id", err)
		return true
	}

	notification, err := build(envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "notifications.decode_payload", err)
		return true
	}
	notification.EventID = eventID
	if notification.OrderID != nil {
		logCtx = c.logg.WithOrderID(logCtx, notification.OrderID.String())
	}

	seen, err := c.guard.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "notifications.guard_failed", err)
		return false
	}
	if seen {
		c.logg.Debug(logCtx, "notifications.duplicate")
		return true
	}

	created, err := c.repo.Create(ctx, notification)
	if err != nil {
		c.logg.Error(logCtx, "notifications.create_failed", err)
		if delErr := c.guard.Delete(ctx, consumerName, eventID); delErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", delErr.Error()), "notifications.guard_release_failed")
		}
		return false
	}
	if created {
		c.logg.Info(logCtx, "notifications.created")
	}
	return true
}

type builder func(data json.RawMessage) (*models.Notification, error)

var builders = map[enums.OutboxEventType]builder{
	enums.EventOrderPaid:      buildPaid,
	enums.EventOrderExpired:   buildExpired,
	enums.EventOrderCancelled: buildStatusChanged,
	enums.EventOrderShipped:   buildStatusChanged,
	enums.EventOrderDelivered: buildStatusChanged,
}

func buildPaid(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.OrderPaidEvent
	if err := decode(data, &payload); err != nil {
		return nil, err
	}
	return newOrderNotification(payload.OrderID, payload.UserID, enums.NotificationTypeOrderPaid,
		"Payment received",
		fmt.Sprintf("We received %s %s for order %s.", payload.Amount.StringFixed(2), payload.Currency, shortID(payload.OrderID)))
}

func buildExpired(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.OrderExpiredEvent
	if err := decode(data, &payload); err != nil {
		return nil, err
	}
	return newOrderNotification(payload.OrderID, payload.UserID, enums.NotificationTypeOrderExpired,
		"Reservation expired",
		fmt.Sprintf("Order %s was cancelled because payment did not arrive in time. The items are back in stock.", shortID(payload.OrderID)))
}

func buildStatusChanged(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.OrderStatusChangedEvent
	if err := decode(data, &payload); err != nil {
		return nil, err
	}
	title := "Order updated"
	switch payload.To {
	case enums.OrderStatusCancelled:
		title = "Order cancelled"
	case enums.OrderStatusShipped:
		title = "Order shipped"
	case enums.OrderStatusDelivered:
		title = "Order delivered"
	}
	return newOrderNotification(payload.OrderID, payload.UserID, enums.NotificationTypeOrderStatus,
		title,
		fmt.Sprintf("Order %s is now %s.", shortID(payload.OrderID), strings.ToLower(string(payload.To))))
}

func decode(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return fmt.Errorf("payload missing")
	}
	return json.Unmarshal(data, target)
}

func newOrderNotification(orderID, userID uuid.UUID, kind enums.NotificationType, title, message string) (*models.Notification, error) {
	if orderID == uuid.Nil || userID == uuid.Nil {
		return nil, fmt.Errorf("order and user ids required")
	}
	link := "/orders/" + orderID.String()
	return &models.Notification{
		UserID:  userID,
		OrderID: &orderID,
		Type:    kind,
		Title:   title,
		Message: message,
		Link:    &link,
	}, nil
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}
