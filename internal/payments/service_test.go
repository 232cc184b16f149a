package payments

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/angelmondragon/stockhold-backend/internal/checkout"
	"github.com/angelmondragon/stockhold-backend/internal/orders"
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
	"github.com/angelmondragon/stockhold-backend/pkg/square"
	"github.com/angelmondragon/stockhold-backend/pkg/stripe"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

type stubCheckout struct {
	order *models.Order
	err   error
}

func (s *stubCheckout) Checkout(_ context.Context, userID uuid.UUID) (*checkout.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.order.UserID = userID
	return &checkout.Result{
		OrderID:     s.order.ID,
		Status:      s.order.Status,
		TotalAmount: s.order.TotalAmount,
		Currency:    s.order.Currency,
		Order:       s.order,
	}, nil
}

type stubOrders struct {
	orders map[uuid.UUID]*models.Order
}

func (s *stubOrders) FindByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (s *stubOrders) SetGatewayOrderRef(_ context.Context, orderID uuid.UUID, ref string) (bool, error) {
	order, ok := s.orders[orderID]
	if !ok || order.Status != enums.OrderStatusPendingPayment {
		return false, nil
	}
	order.GatewayOrderRef = &ref
	return true, nil
}

type stubFinalizer struct {
	calls       []orders.FinalizeInput
	alreadyPaid bool
	err         error
}

func (s *stubFinalizer) FinalizePayment(_ context.Context, input orders.FinalizeInput) (*orders.FinalizeResult, error) {
	s.calls = append(s.calls, input)
	if s.err != nil {
		return nil, s.err
	}
	return &orders.FinalizeResult{OrderID: input.OrderID, AlreadyPaid: s.alreadyPaid}, nil
}

type stubIntents struct {
	ref string
	err error
}

func (s stubIntents) CreateIntent(_ context.Context, order *models.Order) (*Intent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Intent{ExternalOrderRef: s.ref, AmountMinor: ToMinorUnits(order.TotalAmount), Currency: order.Currency}, nil
}

type fixture struct {
	svc       Service
	order     *models.Order
	store     *stubOrders
	finalizer *stubFinalizer
}

func newFixture(t *testing.T, intents IntentCreator, allowMock bool) *fixture {
	t.Helper()
	order := &models.Order{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Status:      enums.OrderStatusPendingPayment,
		TotalAmount: decimal.RequireFromString("30.00"),
		Currency:    "INR",
		Items: []models.OrderItem{
			{ProductID: uuid.New(), Name: "Widget", Price: decimal.RequireFromString("10.00"), Quantity: 3},
		},
	}
	store := &stubOrders{orders: map[uuid.UUID]*models.Order{order.ID: order}}
	finalizer := &stubFinalizer{}
	verifier, err := NewVerifier(testSecret)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Checkout:     &stubCheckout{order: order},
		Orders:       store,
		Finalizer:    finalizer,
		Intents:      intents,
		Verifier:     verifier,
		Provider:     enums.PaymentProviderLocal,
		AllowMockPay: allowMock,
		Logger:       logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, order: order, store: store, finalizer: finalizer}
}

func TestCreatePaymentIntentStoresReference(t *testing.T) {
	f := newFixture(t, stubIntents{ref: "order_XYZ"}, false)

	res, err := f.svc.CreatePaymentIntent(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, f.order.ID, res.OrderID)
	assert.Equal(t, "order_XYZ", res.ExternalOrderRef)
	assert.EqualValues(t, 3000, res.AmountMinorUnits)
	assert.Equal(t, "INR", res.Currency)
	require.NotNil(t, f.order.GatewayOrderRef)
	assert.Equal(t, "order_XYZ", *f.order.GatewayOrderRef)
}

func TestCreatePaymentIntentGatewayFailureLeavesOrderPending(t *testing.T) {
	f := newFixture(t, stubIntents{err: errors.New("gateway timeout")}, false)

	_, err := f.svc.CreatePaymentIntent(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Nil(t, f.order.GatewayOrderRef)
	assert.Equal(t, enums.OrderStatusPendingPayment, f.order.Status)
}

func TestVerifyPaymentFinalizesWithPaymentRef(t *testing.T) {
	f := newFixture(t, stubIntents{ref: "order_XYZ"}, false)
	ref := "order_XYZ"
	f.order.GatewayOrderRef = &ref
	payer := uuid.New()

	res, err := f.svc.VerifyPayment(context.Background(), VerifyInput{
		OrderID:            f.order.ID,
		ExternalOrderRef:   ref,
		ExternalPaymentRef: "pay_123",
		Signature:          Sign(testSecret, ref, "pay_123"),
		PayerID:            payer,
	})
	require.NoError(t, err)
	assert.Equal(t, messagePaymentVerified, res.Message)

	require.Len(t, f.finalizer.calls, 1)
	call := f.finalizer.calls[0]
	assert.Equal(t, f.order.ID, call.OrderID)
	assert.Equal(t, payer, call.PayerID)
	assert.Equal(t, "pay_123", call.Settlement.TransactionID)
	assert.Equal(t, enums.PaymentProviderLocal, call.Settlement.Provider)
	assert.Equal(t, ref, call.Settlement.Meta["externalOrderRef"])
}

func TestVerifyPaymentRejectsBadSignatureWithoutStateChange(t *testing.T) {
	f := newFixture(t, stubIntents{ref: "order_XYZ"}, false)
	ref := "order_XYZ"
	f.order.GatewayOrderRef = &ref

	sig := Sign(testSecret, ref, "pay_123")
	_, err := f.svc.VerifyPayment(context.Background(), VerifyInput{
		OrderID:            f.order.ID,
		ExternalOrderRef:   ref,
		ExternalPaymentRef: "pay_123",
		Signature:          strings.Repeat("0", len(sig)),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSignatureInvalid))
	assert.Empty(t, f.finalizer.calls)
}

func TestVerifyPaymentChecksOrderOwnership(t *testing.T) {
	f := newFixture(t, stubIntents{ref: "order_XYZ"}, false)
	ref := "order_XYZ"
	f.order.GatewayOrderRef = &ref

	_, err := f.svc.VerifyPayment(context.Background(), VerifyInput{
		OrderID:            f.order.ID,
		ExternalOrderRef:   "order_OTHER",
		ExternalPaymentRef: "pay_1",
		Signature:          Sign(testSecret, "order_OTHER", "pay_1"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.VerifyPayment(context.Background(), VerifyInput{
		OrderID:            uuid.New(),
		ExternalOrderRef:   ref,
		ExternalPaymentRef: "pay_1",
		Signature:          Sign(testSecret, ref, "pay_1"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Empty(t, f.finalizer.calls)
}

func TestVerifyPaymentReportsAlreadyPaid(t *testing.T) {
	f := newFixture(t, stubIntents{ref: "order_XYZ"}, false)
	ref := "order_XYZ"
	f.order.GatewayOrderRef = &ref
	f.finalizer.alreadyPaid = true

	res, err := f.svc.VerifyPayment(context.Background(), VerifyInput{
		OrderID:            f.order.ID,
		ExternalOrderRef:   ref,
		ExternalPaymentRef: "pay_123",
		Signature:          Sign(testSecret, ref, "pay_123"),
	})
	require.NoError(t, err)
	assert.Equal(t, messageAlreadyPaid, res.Message)
}

func TestPayMock(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, stubIntents{}, false)
		_, err := f.svc.PayMock(context.Background(), MockPayInput{OrderID: f.order.ID, UserID: f.order.UserID, Role: enums.RoleCustomer})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	})

	t.Run("owner pays", func(t *testing.T) {
		f := newFixture(t, stubIntents{}, true)
		res, err := f.svc.PayMock(context.Background(), MockPayInput{OrderID: f.order.ID, UserID: f.order.UserID, Role: enums.RoleCustomer})
		require.NoError(t, err)
		assert.Equal(t, messageMockPaid, res.Message)
		require.Len(t, f.finalizer.calls, 1)
		assert.Equal(t, enums.PaymentProviderMock, f.finalizer.calls[0].Settlement.Provider)
		assert.True(t, strings.HasPrefix(f.finalizer.calls[0].Settlement.TransactionID, "txn_"))
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		f := newFixture(t, stubIntents{}, true)
		_, err := f.svc.PayMock(context.Background(), MockPayInput{OrderID: f.order.ID, UserID: uuid.New(), Role: enums.RoleCustomer})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
		assert.Empty(t, f.finalizer.calls)
	})

	t.Run("admin pays any order", func(t *testing.T) {
		f := newFixture(t, stubIntents{}, true)
		_, err := f.svc.PayMock(context.Background(), MockPayInput{OrderID: f.order.ID, UserID: uuid.New(), Role: enums.RoleAdmin})
		require.NoError(t, err)
	})

	t.Run("missing order", func(t *testing.T) {
		f := newFixture(t, stubIntents{}, true)
		_, err := f.svc.PayMock(context.Background(), MockPayInput{OrderID: uuid.New(), UserID: uuid.New()})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	})
}

type fakeSquare struct {
	params square.OrderCreateParams
	out    *square.CreatedOrder
}

func (f *fakeSquare) CreateOrder(_ context.Context, params square.OrderCreateParams) (*square.CreatedOrder, error) {
	f.params = params
	return f.out, nil
}

func TestSquareIntentsPricesFromSnapshot(t *testing.T) {
	client := &fakeSquare{out: &square.CreatedOrder{ID: "sq_order_1"}}
	intents, err := NewSquareIntents(client)
	require.NoError(t, err)

	order := &models.Order{
		ID:          uuid.New(),
		Currency:    "USD",
		TotalAmount: decimal.RequireFromString("21.98"),
		Items: []models.OrderItem{
			{Name: "Mug", Price: decimal.RequireFromString("10.99"), Quantity: 2},
		},
	}
	intent, err := intents.CreateIntent(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, "sq_order_1", intent.ExternalOrderRef)
	assert.EqualValues(t, 2198, intent.AmountMinor)
	assert.Equal(t, "USD", intent.Currency)
	assert.Equal(t, order.ID.String(), client.params.ReferenceID)
	require.Len(t, client.params.Lines, 1)
	assert.EqualValues(t, 1099, client.params.Lines[0].AmountMinor)
	assert.Equal(t, 2, client.params.Lines[0].Quantity)
}

type fakeStripe struct {
	params stripe.PaymentIntentParams
}

func (f *fakeStripe) CreatePaymentIntent(_ context.Context, params stripe.PaymentIntentParams) (*stripe.CreatedIntent, error) {
	f.params = params
	return &stripe.CreatedIntent{ID: "pi_1", AmountMinor: params.AmountMinor, Currency: "USD"}, nil
}

func TestStripeIntentsUsesOrderTotal(t *testing.T) {
	client := &fakeStripe{}
	intents, err := NewStripeIntents(client)
	require.NoError(t, err)

	order := &models.Order{ID: uuid.New(), Currency: "USD", TotalAmount: decimal.RequireFromString("21.98")}
	intent, err := intents.CreateIntent(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, "pi_1", intent.ExternalOrderRef)
	assert.EqualValues(t, 2198, intent.AmountMinor)
	assert.Equal(t, order.ID.String(), client.params.OrderID)
	assert.Equal(t, "intent-"+order.ID.String(), client.params.IdempotencyKey)
}

func TestLocalIntentsReference(t *testing.T) {
	intents := NewLocalIntents()
	order := &models.Order{ID: uuid.New(), Currency: "INR", TotalAmount: decimal.RequireFromString("0.50")}

	a, err := intents.CreateIntent(context.Background(), order)
	require.NoError(t, err)
	b, err := intents.CreateIntent(context.Background(), order)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a.ExternalOrderRef, "order_"))
	assert.Len(t, a.ExternalOrderRef, len("order_")+14)
	assert.NotEqual(t, a.ExternalOrderRef, b.ExternalOrderRef)
	assert.EqualValues(t, 50, a.AmountMinor)
}

func TestToMinorUnits(t *testing.T) {
	assert.EqualValues(t, 1999, ToMinorUnits(decimal.RequireFromString("19.99")))
	assert.EqualValues(t, 100, ToMinorUnits(decimal.NewFromInt(1)))
	assert.EqualValues(t, 30, ToMinorUnits(decimal.RequireFromString("0.3")))
}
