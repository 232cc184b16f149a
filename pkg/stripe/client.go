package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/angelmondragon/stockhold-backend/pkg/config"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client creates Stripe payment intents with the configured secret key.
type Client struct {
	environment string
	logg        *logger.Logger
	create      func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// NewClient initializes Stripe once with the configured key and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}
	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{environment: env, logg: logg, create: paymentintent.New}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// PaymentIntentParams describe the intent opened for one order.
type PaymentIntentParams struct {
	OrderID        string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
}

// CreatedIntent is the part of a Stripe payment intent the payment flow needs.
type CreatedIntent struct {
	ID          string
	Status      string
	AmountMinor int64
	Currency    string
}

// CreatePaymentIntent opens a payment intent tagged with the order id.
func (c *Client) CreatePaymentIntent(ctx context.Context, in PaymentIntentParams) (*CreatedIntent, error) {
	if c == nil || c.create == nil {
		return nil, errAPIKeyRequired
	}
	if in.AmountMinor <= 0 {
		return nil, fmt.Errorf("stripe payment intent amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		return nil, fmt.Errorf("stripe payment intent currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.AmountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", in.OrderID)
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	pi, err := c.create(params)
	if err != nil {
		if c.logg != nil {
			c.logg.Error(c.logg.WithField(ctx, "order_id", in.OrderID), "stripe.payment_intent.create_failed", err)
		}
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}
	if pi == nil || pi.ID == "" {
		return nil, fmt.Errorf("stripe create payment intent: empty response")
	}

	return &CreatedIntent{
		ID:          pi.ID,
		Status:      string(pi.Status),
		AmountMinor: pi.Amount,
		Currency:    strings.ToUpper(string(pi.Currency)),
	}, nil
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
