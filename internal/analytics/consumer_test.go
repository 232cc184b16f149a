package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/outbox/payloads"
	pkgpubsub "github.com/angelmondragon/stockhold-backend/pkg/pubsub"
)

type fakeWriter struct {
	rows []*OrderEventRow
	err  error
}

func (w *fakeWriter) Insert(ctx context.Context, rows ...*OrderEventRow) error {
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, rows...)
	return nil
}

type memoryGuard struct {
	seen    map[uuid.UUID]bool
	deleted int
}

func (g *memoryGuard) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if g.seen == nil {
		g.seen = map[uuid.UUID]bool{}
	}
	if g.seen[eventID] {
		return true, nil
	}
	g.seen[eventID] = true
	return false, nil
}

func (g *memoryGuard) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	delete(g.seen, eventID)
	g.deleted++
	return nil
}

type idleReceiver struct{}

func (idleReceiver) Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error {
	<-ctx.Done()
	return nil
}

func newTestConsumer(t *testing.T, w rowWriter, g processedGuard) *Consumer {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	c, err := NewConsumer(w, []pkgpubsub.Receiver{idleReceiver{}}, g, logg)
	require.NoError(t, err)
	return c
}

func paidMessage(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(testEnvelope(t, payloads.OrderPaidEvent{OrderID: uuid.New(), UserID: uuid.New(), Currency: "USD"}))
	require.NoError(t, err)
	return body
}

func TestConsumerInsertsEachEventOnce(t *testing.T) {
	w := &fakeWriter{}
	c := newTestConsumer(t, w, &memoryGuard{})
	body := paidMessage(t)
	attrs := map[string]string{"event_type": string(enums.EventOrderPaid)}

	assert.True(t, c.process(context.Background(), "m-1", attrs, body))
	assert.True(t, c.process(context.Background(), "m-2", attrs, body))
	require.Len(t, w.rows, 1)
	assert.Equal(t, string(enums.OrderStatusPaid), w.rows[0].Status)
}

func TestConsumerAcksMalformedMessages(t *testing.T) {
	w := &fakeWriter{}
	c := newTestConsumer(t, w, &memoryGuard{})

	assert.True(t, c.process(context.Background(), "m-1", map[string]string{"event_type": "unknown"}, []byte(`{}`)))
	assert.True(t, c.process(context.Background(), "m-2", map[string]string{"event_type": string(enums.EventOrderPaid)}, []byte(`{`)))
	assert.Empty(t, w.rows)
}

func TestConsumerNacksAndReleasesGuardOnInsertFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("bigquery down")}
	g := &memoryGuard{}
	c := newTestConsumer(t, w, g)
	attrs := map[string]string{"event_type": string(enums.EventOrderPaid)}
	body := paidMessage(t)

	assert.False(t, c.process(context.Background(), "m-1", attrs, body))
	assert.Equal(t, 1, g.deleted)

	w.err = nil
	assert.True(t, c.process(context.Background(), "m-1", attrs, body))
	assert.Len(t, w.rows, 1)
}
