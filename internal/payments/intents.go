package payments

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/square"
	"github.com/angelmondragon/stockhold-backend/pkg/stripe"
	"github.com/shopspring/decimal"
)

// Intent is the gateway-side order a buyer pays against.
type Intent struct {
	ExternalOrderRef string
	AmountMinor      int64
	Currency         string
}

// IntentCreator opens a gateway order for a pending order.
type IntentCreator interface {
	CreateIntent(ctx context.Context, order *models.Order) (*Intent, error)
}

// ToMinorUnits converts a 2-digit decimal amount into minor currency units.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

const (
	localRefPrefix   = "order_"
	localRefLength   = 14
	localRefAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// LocalIntents issues random order references without calling a gateway. The
// confirmation is expected to carry a signature made with the shared secret.
type LocalIntents struct {
	random io.Reader
}

func NewLocalIntents() *LocalIntents {
	return &LocalIntents{random: rand.Reader}
}

func (l *LocalIntents) CreateIntent(_ context.Context, order *models.Order) (*Intent, error) {
	if order == nil {
		return nil, fmt.Errorf("order required")
	}
	ref, err := l.reference()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order reference")
	}
	return &Intent{
		ExternalOrderRef: ref,
		AmountMinor:      ToMinorUnits(order.TotalAmount),
		Currency:         order.Currency,
	}, nil
}

func (l *LocalIntents) reference() (string, error) {
	buf := make([]byte, localRefLength)
	limit := big.NewInt(int64(len(localRefAlphabet)))
	for i := range buf {
		n, err := rand.Int(l.random, limit)
		if err != nil {
			return "", err
		}
		buf[i] = localRefAlphabet[n.Int64()]
	}
	return localRefPrefix + string(buf), nil
}

type squareOrders interface {
	CreateOrder(ctx context.Context, params square.OrderCreateParams) (*square.CreatedOrder, error)
}

// SquareIntents opens a Square order priced from the order's item snapshot.
type SquareIntents struct {
	client squareOrders
}

func NewSquareIntents(client squareOrders) (*SquareIntents, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareIntents{client: client}, nil
}

func (s *SquareIntents) CreateIntent(ctx context.Context, order *models.Order) (*Intent, error) {
	if order == nil {
		return nil, fmt.Errorf("order required")
	}
	lines := make([]square.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, square.OrderLine{
			Name:        item.Name,
			Quantity:    item.Quantity,
			AmountMinor: ToMinorUnits(item.Price),
		})
	}

	created, err := s.client.CreateOrder(ctx, square.OrderCreateParams{
		ReferenceID:    order.ID.String(),
		Currency:       order.Currency,
		Lines:          lines,
		IdempotencyKey: "intent-" + order.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	intent := &Intent{
		ExternalOrderRef: created.ID,
		AmountMinor:      created.AmountMinor,
		Currency:         created.Currency,
	}
	if intent.AmountMinor == 0 {
		intent.AmountMinor = ToMinorUnits(order.TotalAmount)
	}
	if intent.Currency == "" {
		intent.Currency = order.Currency
	}
	return intent, nil
}

type stripeIntents interface {
	CreatePaymentIntent(ctx context.Context, params stripe.PaymentIntentParams) (*stripe.CreatedIntent, error)
}

// StripeIntents opens a Stripe payment intent for the order total.
type StripeIntents struct {
	client stripeIntents
}

func NewStripeIntents(client stripeIntents) (*StripeIntents, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeIntents{client: client}, nil
}

func (s *StripeIntents) CreateIntent(ctx context.Context, order *models.Order) (*Intent, error) {
	if order == nil {
		return nil, fmt.Errorf("order required")
	}
	created, err := s.client.CreatePaymentIntent(ctx, stripe.PaymentIntentParams{
		OrderID:        order.ID.String(),
		AmountMinor:    ToMinorUnits(order.TotalAmount),
		Currency:       order.Currency,
		IdempotencyKey: "intent-" + order.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	return &Intent{
		ExternalOrderRef: created.ID,
		AmountMinor:      created.AmountMinor,
		Currency:         created.Currency,
	}, nil
}
