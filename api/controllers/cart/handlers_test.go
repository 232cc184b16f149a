package cart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockhold-backend/api/middleware"
	internalcart "github.com/angelmondragon/stockhold-backend/internal/cart"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
)

type stubCartService struct {
	setInput  internalcart.SetItemInput
	removedID uuid.UUID
	err       error
}

func (s *stubCartService) Get(ctx context.Context, userID uuid.UUID) (*internalcart.CartDTO, error) {
	return &internalcart.CartDTO{UserID: userID}, nil
}

func (s *stubCartService) SetItem(ctx context.Context, userID uuid.UUID, input internalcart.SetItemInput) (*internalcart.CartDTO, error) {
	s.setInput = input
	return &internalcart.CartDTO{UserID: userID}, s.err
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*internalcart.CartDTO, error) {
	s.removedID = productID
	if s.err != nil {
		return nil, s.err
	}
	return &internalcart.CartDTO{UserID: userID}, nil
}

func authed(req *http.Request) *http.Request {
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	return req.WithContext(middleware.WithRole(ctx, string(enums.RoleCustomer)))
}

func TestCartSetItem(t *testing.T) {
	svc := &stubCartService{}
	productID := uuid.New()
	body := `{"productId":"` + productID.String() + `","quantity":3}`
	rec := httptest.NewRecorder()
	CartSetItem(svc, nil).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPut, "/api/v1/cart/items", strings.NewReader(body))))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.setInput.ProductID != productID || svc.setInput.Quantity != 3 {
		t.Fatalf("unexpected input %+v", svc.setInput)
	}
}

func TestCartSetItemRejectsZeroQuantity(t *testing.T) {
	svc := &stubCartService{}
	body := `{"productId":"` + uuid.NewString() + `","quantity":0}`
	rec := httptest.NewRecorder()
	CartSetItem(svc, nil).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPut, "/api/v1/cart/items", strings.NewReader(body))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestCartRemoveItemNotFound(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")}
	productID := uuid.New()
	req := authed(httptest.NewRequest(http.MethodDelete, "/", nil))
	rc := chi.NewRouteContext()
	rc.URLParams.Add("productId", productID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	rec := httptest.NewRecorder()
	CartRemoveItem(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if svc.removedID != productID {
		t.Fatalf("unexpected product %s", svc.removedID)
	}
}
