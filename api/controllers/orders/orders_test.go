package orders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockhold-backend/api/middleware"
	internalorders "github.com/angelmondragon/stockhold-backend/internal/orders"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/pagination"
)

type stubOrdersService struct {
	viewer      internalorders.Viewer
	statusInput internalorders.AdminStatusInput
	listUser    uuid.UUID
	listParams  pagination.Params
	err         error
}

func (s *stubOrdersService) FinalizePayment(ctx context.Context, input internalorders.FinalizeInput) (*internalorders.FinalizeResult, error) {
	panic("not implemented")
}

func (s *stubOrdersService) Expire(ctx context.Context, orderID uuid.UUID) (bool, error) {
	panic("not implemented")
}

func (s *stubOrdersService) ExpireOverdue(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	panic("not implemented")
}

func (s *stubOrdersService) AdminSetStatus(ctx context.Context, input internalorders.AdminStatusInput) (*internalorders.OrderDTO, error) {
	s.statusInput = input
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.OrderDTO{ID: input.OrderID, Status: input.Status}, nil
}

func (s *stubOrdersService) Get(ctx context.Context, orderID uuid.UUID, viewer internalorders.Viewer) (*internalorders.OrderDTO, error) {
	s.viewer = viewer
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.OrderDTO{ID: orderID}, nil
}

func (s *stubOrdersService) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	s.listUser = userID
	s.listParams = params
	return &internalorders.OrderList{}, nil
}

func request(method, target, body string, userID uuid.UUID, role enums.Role, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	return req.WithContext(ctx)
}

func TestListUsesCallerAndPaging(t *testing.T) {
	svc := &stubOrdersService{}
	userID := uuid.New()
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, request(http.MethodGet, "/api/v1/orders?limit=10", "", userID, enums.RoleCustomer, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.listUser != userID || svc.listParams.Limit != 10 {
		t.Fatalf("unexpected list call %s %+v", svc.listUser, svc.listParams)
	}
}

func TestDetailForwardsViewer(t *testing.T) {
	svc := &stubOrdersService{}
	userID := uuid.New()
	orderID := uuid.New()
	rec := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(rec, request(http.MethodGet, "/", "", userID, enums.RoleCustomer, map[string]string{"orderId": orderID.String()}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.viewer.UserID != userID || svc.viewer.Role != enums.RoleCustomer {
		t.Fatalf("unexpected viewer %+v", svc.viewer)
	}
}

func TestDetailForbiddenForOtherUsers(t *testing.T) {
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")}
	rec := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(rec, request(http.MethodGet, "/", "", uuid.New(), enums.RoleCustomer, map[string]string{"orderId": uuid.NewString()}))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestAdminSetStatusNormalizesStatus(t *testing.T) {
	svc := &stubOrdersService{}
	adminID := uuid.New()
	orderID := uuid.New()
	rec := httptest.NewRecorder()
	AdminSetStatus(svc, nil).ServeHTTP(rec, request(http.MethodPatch, "/", `{"status":"shipped"}`, adminID, enums.RoleAdmin, map[string]string{"orderId": orderID.String()}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.statusInput.Status != enums.OrderStatusShipped || svc.statusInput.OrderID != orderID || svc.statusInput.AdminID != adminID {
		t.Fatalf("unexpected status input %+v", svc.statusInput)
	}
}

func TestAdminSetStatusRejectsUnknownStatus(t *testing.T) {
	svc := &stubOrdersService{}
	rec := httptest.NewRecorder()
	AdminSetStatus(svc, nil).ServeHTTP(rec, request(http.MethodPatch, "/", `{"status":"REFUNDED"}`, uuid.New(), enums.RoleAdmin, map[string]string{"orderId": uuid.NewString()}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.statusInput.OrderID != uuid.Nil {
		t.Fatalf("service must not be called for unknown status")
	}
}

func TestAdminSetStatusInvalidTransition(t *testing.T) {
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot move PENDING_PAYMENT to DELIVERED")}
	rec := httptest.NewRecorder()
	AdminSetStatus(svc, nil).ServeHTTP(rec, request(http.MethodPatch, "/", `{"status":"DELIVERED"}`, uuid.New(), enums.RoleAdmin, map[string]string{"orderId": uuid.NewString()}))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), string(pkgerrors.CodeInvalidTransition)) {
		t.Fatalf("expected invalid transition 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
