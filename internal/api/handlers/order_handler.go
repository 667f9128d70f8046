package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jimacoff/openfoodnetwork/internal/application"
	"github.com/jimacoff/openfoodnetwork/pkg/api"
	"github.com/jimacoff/openfoodnetwork/pkg/errors"
	"github.com/jimacoff/openfoodnetwork/pkg/logging"
	"github.com/jimacoff/openfoodnetwork/pkg/middleware"
)

// OrderHandler handles HTTP requests for order distribution
type OrderHandler struct {
	service *application.DistributionService
	logger  *logging.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(service *application.DistributionService, logger *logging.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

// orderParams are the validated path parameters shared by order routes.
type orderParams struct {
	OrderNumber string `uri:"orderNumber" json:"orderNumber" binding:"required,order_number"`
	VariantID   string `uri:"variantId" json:"variantId" binding:"omitempty,variant_id"`
}

func bindOrderParams(c *gin.Context, responder *middleware.ErrorResponder) (orderParams, bool) {
	var params orderParams
	if appErr := middleware.BindURI(c, &params); appErr != nil {
		responder.RespondWithAppError(appErr)
		return params, false
	}
	return params, true
}

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var cmd application.CreateOrderCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"customer.id": cmd.CustomerID,
	})

	result, err := h.service.CreateOrder(c.Request.Context(), cmd)
	if err != nil {
		h.respondError(responder, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

// GetOrder handles GET /api/v1/orders/:orderNumber
func (h *OrderHandler) GetOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	params, ok := bindOrderParams(c, responder)
	if !ok {
		return
	}
	orderNumber := params.OrderNumber

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"order.number": orderNumber,
	})

	result, err := h.service.GetOrder(c.Request.Context(), orderNumber)
	if err != nil {
		h.respondError(responder, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ListOrders handles GET /api/v1/customers/:customerId/orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var params struct {
		CustomerID string `uri:"customerId" json:"customerId" binding:"required,safe_string"`
	}
	if appErr := middleware.BindURI(c, &params); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}
	pageReq := api.ParsePagination(c)

	query := application.ListOrdersQuery{
		CustomerID: params.CustomerID,
		Page:       pageReq.Page,
		PageSize:   pageReq.PageSize,
	}

	result, err := h.service.ListOrders(c.Request.Context(), query)
	if err != nil {
		responder.RespondInternalError(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SetDistributor handles PUT /api/v1/orders/:orderNumber/distributor
func (h *OrderHandler) SetDistributor(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	params, ok := bindOrderParams(c, responder)
	if !ok {
		return
	}
	orderNumber := params.OrderNumber

	var cmd application.SetDistributorCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"order.number":   orderNumber,
		"distributor.id": cmd.DistributorID,
	})

	result, err := h.service.SetDistributor(c.Request.Context(), orderNumber, cmd)
	if err != nil {
		h.respondError(responder, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// SetOrderCycle handles PUT /api/v1/orders/:orderNumber/order-cycle
func (h *OrderHandler) SetOrderCycle(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	params, ok := bindOrderParams(c, responder)
	if !ok {
		return
	}
	orderNumber := params.OrderNumber

	var cmd application.SetOrderCycleCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"order.number":   orderNumber,
		"order.cycle.id": cmd.OrderCycleID,
	})

	result, err := h.service.SetOrderCycle(c.Request.Context(), orderNumber, cmd)
	if err != nil {
		h.respondError(responder, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// AddLineItem handles POST /api/v1/orders/:orderNumber/line-items
func (h *OrderHandler) AddLineItem(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	params, ok := bindOrderParams(c, responder)
	if !ok {
		return
	}
	orderNumber := params.OrderNumber

	var cmd application.AddLineItemCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"order.number": orderNumber,
		"variant.id":   cmd.VariantID,
	})

	result, err := h.service.AddLineItem(c.Request.Context(), orderNumber, cmd)
	if err != nil {
		h.respondError(responder, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

// SetVariantAttributes handles PUT /api/v1/orders/:orderNumber/line-items/:variantId
func (h *OrderHandler) SetVariantAttributes(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	params, ok := bindOrderParams(c, responder)
	if !ok {
		return
	}
	orderNumber := params.OrderNumber

	var cmd application.SetVariantAttributesCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}
	cmd.VariantID = params.VariantID

	result, err := h.service.SetVariantAttributes(c.Request.Context(), orderNumber, cmd)
	if err != nil {
		h.respondError(responder, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// RemoveLineItem handles DELETE /api/v1/orders/:orderNumber/line-items/:variantId
func (h *OrderHandler) RemoveLineItem(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	params, ok := bindOrderParams(c, responder)
	if !ok {
		return
	}
	orderNumber := params.OrderNumber
	variantID := params.VariantID

	result, err := h.service.RemoveLineItem(c.Request.Context(), orderNumber, variantID)
	if err != nil {
		h.respondError(responder, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// EmptyOrder handles POST /api/v1/orders/:orderNumber/empty
func (h *OrderHandler) EmptyOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	params, ok := bindOrderParams(c, responder)
	if !ok {
		return
	}
	orderNumber := params.OrderNumber

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"order.number": orderNumber,
	})

	result, err := h.service.EmptyOrder(c.Request.Context(), orderNumber)
	if err != nil {
		h.respondError(responder, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// RecalculateFees handles POST /api/v1/orders/:orderNumber/recalculate
func (h *OrderHandler) RecalculateFees(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	params, ok := bindOrderParams(c, responder)
	if !ok {
		return
	}
	orderNumber := params.OrderNumber

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"order.number": orderNumber,
	})

	result, err := h.service.RecalculateFees(c.Request.Context(), orderNumber)
	if err != nil {
		h.respondError(responder, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// RecordShipment handles PUT /api/v1/orders/:orderNumber/shipment
func (h *OrderHandler) RecordShipment(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	params, ok := bindOrderParams(c, responder)
	if !ok {
		return
	}
	orderNumber := params.OrderNumber

	var cmd application.RecordShipmentCommand
	if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	result, err := h.service.RecordShipment(c.Request.Context(), orderNumber, cmd)
	if err != nil {
		h.respondError(responder, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// GetTaxSummary handles GET /api/v1/orders/:orderNumber/tax-summary
func (h *OrderHandler) GetTaxSummary(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	params, ok := bindOrderParams(c, responder)
	if !ok {
		return
	}
	orderNumber := params.OrderNumber

	result, err := h.service.GetTaxSummary(c.Request.Context(), orderNumber)
	if err != nil {
		h.respondError(responder, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (h *OrderHandler) respondError(responder *middleware.ErrorResponder, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		responder.RespondWithAppError(appErr)
	} else {
		responder.RespondInternalError(err)
	}
}
