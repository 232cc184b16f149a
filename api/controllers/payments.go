package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockhold-backend/api/middleware"
	"github.com/angelmondragon/stockhold-backend/api/responses"
	"github.com/angelmondragon/stockhold-backend/api/validators"
	"github.com/angelmondragon/stockhold-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
)

// PaymentIntent checks the caller's cart out and registers the order with the gateway.
func PaymentIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, _, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}

		intent, err := svc.CreatePaymentIntent(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

type verifyPaymentRequest struct {
	OrderID            uuid.UUID `json:"orderId" validate:"required"`
	ExternalOrderRef   string    `json:"externalOrderRef" validate:"required,max=255"`
	ExternalPaymentRef string    `json:"externalPaymentRef" validate:"required,max=255"`
	Signature          string    `json:"signature" validate:"required"`
}

// PaymentVerify confirms a signed gateway payment and marks the order paid.
func PaymentVerify(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, _, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}

		var payload verifyPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		confirmation, err := svc.VerifyPayment(r.Context(), payments.VerifyInput{
			OrderID:            payload.OrderID,
			ExternalOrderRef:   payload.ExternalOrderRef,
			ExternalPaymentRef: payload.ExternalPaymentRef,
			Signature:          payload.Signature,
			PayerID:            userID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, confirmation)
	}
}

// MockPay settles an order without a gateway when mock payments are enabled.
func MockPay(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, role, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		confirmation, err := svc.PayMock(r.Context(), payments.MockPayInput{
			OrderID: orderID,
			UserID:  userID,
			Role:    role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, confirmation)
	}
}
