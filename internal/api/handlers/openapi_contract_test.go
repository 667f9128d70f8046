package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimacoff/openfoodnetwork/internal/domain"
	"github.com/jimacoff/openfoodnetwork/pkg/contracts/openapi"
)

func loadSpecValidator(t *testing.T) *openapi.Validator {
	t.Helper()
	specPath, err := filepath.Abs("../../../docs/openapi.yaml")
	require.NoError(t, err)

	validator, err := openapi.NewValidator(specPath)
	require.NoError(t, err)
	return validator
}

func TestOpenAPISpecIsValid(t *testing.T) {
	validator := loadSpecValidator(t)

	doc := validator.GetDocument()
	assert.NotEmpty(t, doc.Info.Title)
	assert.NotEmpty(t, doc.Info.Version)
}

func TestOpenAPIHasRequiredPaths(t *testing.T) {
	validator := loadSpecValidator(t)
	paths := validator.GetPaths()

	required := []string{
		"/api/v1/orders",
		"/api/v1/orders/{orderNumber}",
		"/api/v1/orders/{orderNumber}/distributor",
		"/api/v1/orders/{orderNumber}/order-cycle",
		"/api/v1/orders/{orderNumber}/line-items",
		"/api/v1/orders/{orderNumber}/line-items/{variantId}",
		"/api/v1/orders/{orderNumber}/empty",
		"/api/v1/orders/{orderNumber}/recalculate",
		"/api/v1/orders/{orderNumber}/shipment",
		"/api/v1/orders/{orderNumber}/tax-summary",
		"/api/v1/customers/{customerId}/orders",
	}

	for _, reqPath := range required {
		assert.Contains(t, paths, reqPath)
	}
}

// serveContractRequest runs a request through the router and returns the
// request/response pair in the form the contract validator expects.
func serveContractRequest(t *testing.T, router http.Handler, method, path string, body interface{}) (*http.Request, *http.Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	raw := buf.Bytes()

	req := httptest.NewRequest(method, "http://localhost:8018"+path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	// The router drains req.Body; restore it so the validator can re-read it.
	req.Body = io.NopCloser(bytes.NewReader(raw))
	return req, rec.Result()
}

func TestResponsesMatchContract(t *testing.T) {
	validator := loadSpecValidator(t)

	t.Run("create order", func(t *testing.T) {
		router := newRouter(&fakeOrderRepo{}, &fakeDistributorRepo{}, &fakeCycleRepo{})

		req, resp := serveContractRequest(t, router, http.MethodPost, "/api/v1/orders", map[string]interface{}{
			"customerId": "CUST-001",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		assert.NoError(t, validator.ValidateRequestResponse(req, resp))
	})

	t.Run("get order not found", func(t *testing.T) {
		router := newRouter(&fakeOrderRepo{}, &fakeDistributorRepo{}, &fakeCycleRepo{})

		req, resp := serveContractRequest(t, router, http.MethodGet, "/api/v1/orders/ORD-missing", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		assert.NoError(t, validator.ValidateResponse(req, resp))
	})

	t.Run("tax summary", func(t *testing.T) {
		order := domain.NewOrder("CUST-001")
		order.RecordShipment("SM-1", 50.00)
		orderRepo := &fakeOrderRepo{
			findByNumberFn: func(context.Context, string) (*domain.Order, error) { return order, nil },
		}
		router := newRouter(orderRepo, &fakeDistributorRepo{}, &fakeCycleRepo{})

		req, resp := serveContractRequest(t, router, http.MethodGet, "/api/v1/orders/"+order.OrderNumber+"/tax-summary", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		assert.NoError(t, validator.ValidateResponse(req, resp))
	})
}
