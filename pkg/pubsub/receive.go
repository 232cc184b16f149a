package pubsub

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"golang.org/x/sync/errgroup"
)

// Receiver is satisfied by *pubsub.Subscriber.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Handler processes one message and reports whether it should be acked.
type Handler func(ctx context.Context, msg *pubsub.Message) bool

// Subscribers returns receivers for the named subscriptions (IDs or full
// resource names).
func (c *Client) Subscribers(names []string) ([]Receiver, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("pubsub client not initialized")
	}
	receivers := make([]Receiver, 0, len(names))
	for _, name := range names {
		fullName := resourceName(c.projectID, "subscriptions", name)
		if fullName == "" {
			return nil, fmt.Errorf("subscription %q not configured", name)
		}
		receivers = append(receivers, c.client.Subscriber(fullName))
	}
	if len(receivers) == 0 {
		return nil, errors.New("at least one subscription is required")
	}
	return receivers, nil
}

// ReceiveAll runs h against every receiver until ctx ends or one receiver fails,
// which stops the rest.
func ReceiveAll(ctx context.Context, h Handler, receivers ...Receiver) error {
	if len(receivers) == 0 {
		return errors.New("no receivers")
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range receivers {
		g.Go(func() error {
			return r.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
				if h(ctx, msg) {
					msg.Ack()
					return
				}
				msg.Nack()
			})
		})
	}
	return g.Wait()
}
