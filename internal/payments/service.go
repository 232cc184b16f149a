package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stockhold-backend/internal/checkout"
	"github.com/angelmondragon/stockhold-backend/internal/orders"
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	messagePaymentVerified = "Payment verified successfully"
	messageAlreadyPaid     = "Order already paid"
	messageMockPaid        = "Payment successful"
)

type checkoutRunner interface {
	Checkout(ctx context.Context, userID uuid.UUID) (*checkout.Result, error)
}

type orderStore interface {
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	SetGatewayOrderRef(ctx context.Context, orderID uuid.UUID, ref string) (bool, error)
}

type paymentFinalizer interface {
	FinalizePayment(ctx context.Context, input orders.FinalizeInput) (*orders.FinalizeResult, error)
}

type signatureVerifier interface {
	Verify(orderRef, paymentRef, signature string) error
}

// Service adapts gateway confirmations onto the order state machine.
type Service interface {
	CreatePaymentIntent(ctx context.Context, userID uuid.UUID) (*IntentResult, error)
	VerifyPayment(ctx context.Context, input VerifyInput) (*Confirmation, error)
	PayMock(ctx context.Context, input MockPayInput) (*Confirmation, error)
}

// IntentResult is returned to the client to open the gateway checkout.
type IntentResult struct {
	OrderID          uuid.UUID `json:"orderId"`
	ExternalOrderRef string    `json:"externalOrderRef"`
	AmountMinorUnits int64     `json:"amountMinorUnits"`
	Currency         string    `json:"currency"`
}

// VerifyInput is a signed gateway confirmation.
type VerifyInput struct {
	OrderID            uuid.UUID
	ExternalOrderRef   string
	ExternalPaymentRef string
	Signature          string
	PayerID            uuid.UUID
}

// MockPayInput settles an order without a gateway.
type MockPayInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Role    enums.Role
}

// Confirmation is the response body of a successful payment call.
type Confirmation struct {
	Message string    `json:"message"`
	OrderID uuid.UUID `json:"orderId"`
}

// ServiceParams groups the payment service dependencies.
type ServiceParams struct {
	Checkout     checkoutRunner
	Orders       orderStore
	Finalizer    paymentFinalizer
	Intents      IntentCreator
	Verifier     signatureVerifier
	Provider     enums.PaymentProvider
	AllowMockPay bool
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	checkout     checkoutRunner
	orders       orderStore
	finalizer    paymentFinalizer
	intents      IntentCreator
	verifier     signatureVerifier
	provider     enums.PaymentProvider
	allowMockPay bool
	logg         *logger.Logger
	now          func() time.Time
}

// NewService builds the payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Finalizer == nil {
		return nil, fmt.Errorf("payment finalizer required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("intent creator required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("signature verifier required")
	}
	if params.Provider != enums.PaymentProviderLocal && params.Provider != enums.PaymentProviderSquare {
		return nil, fmt.Errorf("unsupported payment provider %q", params.Provider)
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		checkout:     params.Checkout,
		orders:       params.Orders,
		finalizer:    params.Finalizer,
		intents:      params.Intents,
		verifier:     params.Verifier,
		provider:     params.Provider,
		allowMockPay: params.AllowMockPay,
		logg:         params.Logger,
		now:          now,
	}, nil
}

// CreatePaymentIntent checks out the user's cart and opens the matching gateway
// order. When the gateway call fails the order stays pending and expires normally.
func (s *service) CreatePaymentIntent(ctx context.Context, userID uuid.UUID) (*IntentResult, error) {
	res, err := s.checkout.Checkout(ctx, userID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, res.OrderID.String())

	intent, err := s.intents.CreateIntent(ctx, res.Order)
	if err != nil {
		s.logg.Error(ctx, "payments.intent.create_failed", err)
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	ok, err := s.orders.SetGatewayOrderRef(ctx, res.OrderID, intent.ExternalOrderRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store gateway order reference")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"provider":           s.provider,
		"external_order_ref": intent.ExternalOrderRef,
	}), "payments.intent.created")

	return &IntentResult{
		OrderID:          res.OrderID,
		ExternalOrderRef: intent.ExternalOrderRef,
		AmountMinorUnits: intent.AmountMinor,
		Currency:         intent.Currency,
	}, nil
}

func (s *service) VerifyPayment(ctx context.Context, input VerifyInput) (*Confirmation, error) {
	orderRef := strings.TrimSpace(input.ExternalOrderRef)
	paymentRef := strings.TrimSpace(input.ExternalPaymentRef)
	switch {
	case input.OrderID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	case orderRef == "" || paymentRef == "" || strings.TrimSpace(input.Signature) == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external order ref, payment ref and signature are required")
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	if err := s.verifier.Verify(orderRef, paymentRef, input.Signature); err != nil {
		s.logg.Warn(ctx, "payments.verify.signature_invalid")
		return nil, err
	}

	order, err := s.load(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.GatewayOrderRef == nil || *order.GatewayOrderRef != orderRef {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external order ref does not belong to this order")
	}

	result, err := s.finalizer.FinalizePayment(ctx, orders.FinalizeInput{
		OrderID: order.ID,
		PayerID: input.PayerID,
		Settlement: orders.Settlement{
			Provider:      s.provider,
			TransactionID: paymentRef,
			Meta:          map[string]any{"externalOrderRef": orderRef},
		},
	})
	if err != nil {
		return nil, err
	}
	message := messagePaymentVerified
	if result.AlreadyPaid {
		message = messageAlreadyPaid
	}
	return &Confirmation{Message: message, OrderID: order.ID}, nil
}

// PayMock settles an order without a gateway. Only the owner or an admin may pay.
func (s *service) PayMock(ctx context.Context, input MockPayInput) (*Confirmation, error) {
	if !s.allowMockPay {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "mock payments are disabled")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.load(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if input.Role != enums.RoleAdmin && order.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}

	result, err := s.finalizer.FinalizePayment(ctx, orders.FinalizeInput{
		OrderID: order.ID,
		PayerID: input.UserID,
		Settlement: orders.Settlement{
			Provider:      enums.PaymentProviderMock,
			TransactionID: fmt.Sprintf("txn_%d", s.now().UnixNano()),
		},
	})
	if err != nil {
		return nil, err
	}
	message := messageMockPaid
	if result.AlreadyPaid {
		message = messageAlreadyPaid
	}
	return &Confirmation{Message: message, OrderID: order.ID}, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}
