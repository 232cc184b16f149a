package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox"
	pkgpubsub "github.com/angelmondragon/stockhold-backend/pkg/pubsub"
)

const consumerName = "analytics"

type rowWriter interface {
	Insert(ctx context.Context, rows ...*OrderEventRow) error
}

type processedGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer mirrors every order and stock event into BigQuery.
type Consumer struct {
	writer        rowWriter
	subscriptions []pkgpubsub.Receiver
	guard         processedGuard
	logg          *logger.Logger
}

func NewConsumer(writer rowWriter, subscriptions []pkgpubsub.Receiver, guard processedGuard, logg *logger.Logger) (*Consumer, error) {
	if writer == nil {
		return nil, fmt.Errorf("analytics writer required")
	}
	if len(subscriptions) == 0 {
		return nil, fmt.Errorf("analytics subscriptions required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{writer: writer, subscriptions: subscriptions, guard: guard, logg: logg}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	return pkgpubsub.ReceiveAll(ctx, func(ctx context.Context, msg *pubsub.Message) bool {
		return c.process(ctx, msg.ID, msg.Attributes, msg.Data)
	}, c.subscriptions...)
}

func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if _, ok := rowBuilders[eventType]; !ok {
		c.logg.Debug(logCtx, "analytics.skip")
		return true
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "analytics.decode_envelope", err)
		return true
	}
	row, err := BuildRow(eventType, envelope)
	if err != nil {
		c.logg.Error(logCtx, "analytics.build_row", err)
		return true
	}
	eventID := uuid.MustParse(row.EventID)
	logCtx = c.logg.WithField(logCtx, "event_id", row.EventID)

	seen, err := c.guard.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "analytics.guard_failed", err)
		return false
	}
	if seen {
		c.logg.Debug(logCtx, "analytics.duplicate")
		return true
	}

	if err := c.writer.Insert(ctx, row); err != nil {
		c.logg.Error(logCtx, "analytics.insert_failed", err)
		if delErr := c.guard.Delete(ctx, consumerName, eventID); delErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", delErr.Error()), "analytics.guard_release_failed")
		}
		return false
	}
	c.logg.Debug(logCtx, "analytics.inserted")
	return true
}
