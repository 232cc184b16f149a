package controllers

import (
	"net/http"

	"github.com/angelmondragon/stockhold-backend/api/middleware"
	"github.com/angelmondragon/stockhold-backend/api/responses"
	checkoutsvc "github.com/angelmondragon/stockhold-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
)

// Checkout reserves stock for the caller's cart and opens a pending-payment order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, _, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}

		result, err := svc.Checkout(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
