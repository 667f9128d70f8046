package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimacoff/openfoodnetwork/internal/application"
	"github.com/jimacoff/openfoodnetwork/internal/domain"
	"github.com/jimacoff/openfoodnetwork/pkg/logging"
	"github.com/jimacoff/openfoodnetwork/pkg/metrics"
	"github.com/jimacoff/openfoodnetwork/pkg/middleware"
)

type fakeOrderRepo struct {
	saveFn         func(context.Context, *domain.Order) error
	findByNumberFn func(context.Context, string) (*domain.Order, error)
}

func (f *fakeOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, order)
	}
	return nil
}

func (f *fakeOrderRepo) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	if f.findByNumberFn != nil {
		return f.findByNumberFn(ctx, orderNumber)
	}
	return nil, nil
}

func (f *fakeOrderRepo) FindByCustomerID(ctx context.Context, customerID string, pagination domain.Pagination) ([]*domain.Order, error) {
	return nil, nil
}

func (f *fakeOrderRepo) FindByOrderCycle(ctx context.Context, orderCycleID string, pagination domain.Pagination) ([]*domain.Order, error) {
	return nil, nil
}

func (f *fakeOrderRepo) Delete(ctx context.Context, orderNumber string) error {
	return nil
}

type fakeDistributorRepo struct {
	findByIDFn func(context.Context, string) (*domain.Distributor, error)
}

func (f *fakeDistributorRepo) Save(ctx context.Context, distributor *domain.Distributor) error {
	return nil
}

func (f *fakeDistributorRepo) FindByID(ctx context.Context, distributorID string) (*domain.Distributor, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, distributorID)
	}
	return nil, nil
}

type fakeCycleRepo struct {
	findByIDFn func(context.Context, string) (*domain.OrderCycle, error)
}

func (f *fakeCycleRepo) Save(ctx context.Context, cycle *domain.OrderCycle) error {
	return nil
}

func (f *fakeCycleRepo) FindByID(ctx context.Context, orderCycleID string) (*domain.OrderCycle, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, orderCycleID)
	}
	return nil, nil
}

type fakeFeeRepo struct{}

func (f *fakeFeeRepo) Save(ctx context.Context, fee *domain.EnterpriseFee) error {
	return nil
}

func (f *fakeFeeRepo) FindByIDs(ctx context.Context, feeIDs []string) ([]domain.EnterpriseFee, error) {
	return nil, nil
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("order-handler-test")
	cfg.Output = io.Discard
	return logging.New(cfg)
}

func makeRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func newRouter(orderRepo *fakeOrderRepo, distributorRepo *fakeDistributorRepo, cycleRepo *fakeCycleRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	middleware.InitValidator()
	service := application.NewDistributionService(
		orderRepo, distributorRepo, cycleRepo, &fakeFeeRepo{},
		middleware.NewBusinessMetrics(metrics.New(metrics.DefaultConfig("handler-test"))),
		domain.TaxPolicy{ShippingTaxRate: 0.25, ShippingIncludesTax: true},
		testLogger(),
	)
	handler := NewOrderHandler(service, testLogger())

	router := gin.New()
	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", handler.CreateOrder)
		v1.GET("/orders/:orderNumber", handler.GetOrder)
		v1.PUT("/orders/:orderNumber/distributor", handler.SetDistributor)
		v1.PUT("/orders/:orderNumber/order-cycle", handler.SetOrderCycle)
		v1.POST("/orders/:orderNumber/line-items", handler.AddLineItem)
		v1.PUT("/orders/:orderNumber/line-items/:variantId", handler.SetVariantAttributes)
		v1.DELETE("/orders/:orderNumber/line-items/:variantId", handler.RemoveLineItem)
		v1.POST("/orders/:orderNumber/empty", handler.EmptyOrder)
		v1.POST("/orders/:orderNumber/recalculate", handler.RecalculateFees)
		v1.PUT("/orders/:orderNumber/shipment", handler.RecordShipment)
		v1.GET("/orders/:orderNumber/tax-summary", handler.GetTaxSummary)
	}
	return router
}

func TestOrderHandlerCreateOrder(t *testing.T) {
	router := newRouter(&fakeOrderRepo{}, &fakeDistributorRepo{}, &fakeCycleRepo{})

	rec := makeRequest(router, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"customerId": "CUST-001",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = makeRequest(router, http.MethodPost, "/api/v1/orders", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHandlerGetOrderNotFound(t *testing.T) {
	router := newRouter(&fakeOrderRepo{}, &fakeDistributorRepo{}, &fakeCycleRepo{})

	rec := makeRequest(router, http.MethodGet, "/api/v1/orders/ORD-missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderHandlerSetDistributor(t *testing.T) {
	order := domain.NewOrder("CUST-001")
	orderRepo := &fakeOrderRepo{
		findByNumberFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
	}
	distributorRepo := &fakeDistributorRepo{
		findByIDFn: func(_ context.Context, id string) (*domain.Distributor, error) {
			return &domain.Distributor{DistributorID: id, VariantIDs: []string{"V1"}}, nil
		},
	}
	router := newRouter(orderRepo, distributorRepo, &fakeCycleRepo{})

	rec := makeRequest(router, http.MethodPut, "/api/v1/orders/"+order.OrderNumber+"/distributor", map[string]interface{}{
		"distributorId": "D1",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data application.OrderDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "D1", resp.Data.DistributorID)
}

func TestOrderHandlerSetDistributorCannotSupply(t *testing.T) {
	order := domain.NewOrder("CUST-001")
	require.NoError(t, order.AddLineItem("V1", 1, nil, 4.00))
	orderRepo := &fakeOrderRepo{
		findByNumberFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
	}
	distributorRepo := &fakeDistributorRepo{
		findByIDFn: func(_ context.Context, id string) (*domain.Distributor, error) {
			return &domain.Distributor{DistributorID: id, VariantIDs: []string{"V9"}}, nil
		},
	}
	router := newRouter(orderRepo, distributorRepo, &fakeCycleRepo{})

	rec := makeRequest(router, http.MethodPut, "/api/v1/orders/"+order.OrderNumber+"/distributor", map[string]interface{}{
		"distributorId": "D1",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Equal(t, "Distributor or order cycle cannot supply the products in your cart", resp.Details["base"])
}

func TestOrderHandlerSetOrderCycleEmptiesCart(t *testing.T) {
	order := domain.NewOrder("CUST-001")
	order.OrderCycleID = "OC1"
	require.NoError(t, order.AddLineItem("V1", 2, nil, 3.00))
	orderRepo := &fakeOrderRepo{
		findByNumberFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
	}
	cycleRepo := &fakeCycleRepo{
		findByIDFn: func(_ context.Context, id string) (*domain.OrderCycle, error) {
			return &domain.OrderCycle{
				OrderCycleID: id,
				Exchanges: []domain.Exchange{{
					SenderID:   "ENT-COORD",
					ReceiverID: "D1",
					Direction:  domain.ExchangeOutgoing,
					VariantIDs: []string{"V1"},
				}},
			}, nil
		},
	}
	router := newRouter(orderRepo, &fakeDistributorRepo{}, cycleRepo)

	rec := makeRequest(router, http.MethodPut, "/api/v1/orders/"+order.OrderNumber+"/order-cycle", map[string]interface{}{
		"orderCycleId": "OC2",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data application.OrderDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OC2", resp.Data.OrderCycleID)
	assert.Empty(t, resp.Data.LineItems)
}

func TestOrderHandlerAddLineItem(t *testing.T) {
	order := domain.NewOrder("CUST-001")
	order.DistributorID = "D1"
	orderRepo := &fakeOrderRepo{
		findByNumberFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
	}
	distributorRepo := &fakeDistributorRepo{
		findByIDFn: func(_ context.Context, id string) (*domain.Distributor, error) {
			return &domain.Distributor{DistributorID: id, VariantIDs: []string{"V1"}}, nil
		},
	}
	router := newRouter(orderRepo, distributorRepo, &fakeCycleRepo{})

	rec := makeRequest(router, http.MethodPost, "/api/v1/orders/"+order.OrderNumber+"/line-items", map[string]interface{}{
		"variantId": "V1",
		"quantity":  2,
		"unitPrice": 3.50,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = makeRequest(router, http.MethodPost, "/api/v1/orders/"+order.OrderNumber+"/line-items", map[string]interface{}{
		"variantId": "V1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHandlerTaxSummary(t *testing.T) {
	order := domain.NewOrder("CUST-001")
	order.RecordShipment("SM-1", 50.00)
	order.Adjustments = append(order.Adjustments,
		domain.NewAdjustment("Admin fee by ENT-001", 50.00, 10.00, domain.Originator{Kind: domain.OriginatorEnterpriseFee, ID: "FEE-1"}),
	)
	orderRepo := &fakeOrderRepo{
		findByNumberFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
	}
	router := newRouter(orderRepo, &fakeDistributorRepo{}, &fakeCycleRepo{})

	rec := makeRequest(router, http.MethodGet, "/api/v1/orders/"+order.OrderNumber+"/tax-summary", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data application.TaxSummaryDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 10.00, resp.Data.ShippingTax)
	assert.Equal(t, 10.00, resp.Data.EnterpriseFeeTax)
	assert.Equal(t, 20.00, resp.Data.TotalTax)
}

func TestOrderHandlerRejectsMalformedIdentifiers(t *testing.T) {
	router := newRouter(&fakeOrderRepo{}, &fakeDistributorRepo{}, &fakeCycleRepo{})

	t.Run("order number in path", func(t *testing.T) {
		rec := makeRequest(router, http.MethodGet, "/api/v1/orders/not-an-order", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("variant id in body", func(t *testing.T) {
		rec := makeRequest(router, http.MethodPost, "/api/v1/orders/ORD-abc123/line-items", map[string]interface{}{
			"variantId": "bad id!",
			"quantity":  1,
			"unitPrice": 2.50,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("variant id in path", func(t *testing.T) {
		rec := makeRequest(router, http.MethodDelete, "/api/v1/orders/ORD-abc123/line-items/-leading-dash", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("customer id with control characters", func(t *testing.T) {
		rec := makeRequest(router, http.MethodPost, "/api/v1/orders", map[string]interface{}{
			"customerId": "CUST-\u0001",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
