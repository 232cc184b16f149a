package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	product "github.com/angelmondragon/stockhold-backend/internal/products"
	"github.com/angelmondragon/stockhold-backend/pkg/enums"
	"github.com/angelmondragon/stockhold-backend/pkg/pagination"
)

type stubProductService struct {
	params  pagination.Params
	create  product.CreateProductInput
	restock product.RestockInput
}

func (s *stubProductService) Get(ctx context.Context, id uuid.UUID) (*product.ProductDTO, error) {
	return &product.ProductDTO{ID: id}, nil
}

func (s *stubProductService) List(ctx context.Context, params pagination.Params) (*product.ProductList, error) {
	s.params = params
	return &product.ProductList{}, nil
}

func (s *stubProductService) Create(ctx context.Context, input product.CreateProductInput) (*product.ProductDTO, error) {
	s.create = input
	return &product.ProductDTO{ID: uuid.New(), Name: input.Name, Price: input.Price, AvailableStock: input.InitialStock}, nil
}

func (s *stubProductService) Restock(ctx context.Context, input product.RestockInput) (*product.ProductDTO, error) {
	s.restock = input
	return &product.ProductDTO{ID: input.ProductID}, nil
}

func TestProductListParsesPaging(t *testing.T) {
	svc := &stubProductService{}
	rec := httptest.NewRecorder()
	ProductList(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?limit=5&cursor=abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.params.Limit != 5 || svc.params.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.params)
	}
}

func TestAdminCreateProductAcceptsStringPrice(t *testing.T) {
	svc := &stubProductService{}
	body := `{"name":"Tea","price":"4.90","initialStock":5}`
	rec := httptest.NewRecorder()
	AdminCreateProduct(svc, nil).ServeHTTP(rec, actorRequest(http.MethodPost, "/api/admin/v1/products", strings.NewReader(body), uuid.New(), enums.RoleAdmin))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.create.Name != "Tea" || !svc.create.Price.Equal(decimal.RequireFromString("4.90")) || svc.create.InitialStock != 5 {
		t.Fatalf("unexpected input %+v", svc.create)
	}
}

func TestAdminRestockProduct(t *testing.T) {
	svc := &stubProductService{}
	adminID := uuid.New()
	productID := uuid.New()

	req := actorRequest(http.MethodPut, "/api/admin/v1/products/"+productID.String()+"/stock", strings.NewReader(`{"quantity":7}`), adminID, enums.RoleAdmin)
	req = withURLParam(req, "productId", productID.String())
	rec := httptest.NewRecorder()
	AdminRestockProduct(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.restock.ProductID != productID || svc.restock.Quantity != 7 || svc.restock.AdminID != adminID {
		t.Fatalf("unexpected restock input %+v", svc.restock)
	}
}

func TestAdminRestockRejectsZero(t *testing.T) {
	svc := &stubProductService{}
	productID := uuid.New()
	req := actorRequest(http.MethodPut, "/", strings.NewReader(`{"quantity":0}`), uuid.New(), enums.RoleAdmin)
	req = withURLParam(req, "productId", productID.String())
	rec := httptest.NewRecorder()
	AdminRestockProduct(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
