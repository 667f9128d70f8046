package application

import (
	"time"
)

// CreateOrderCommand represents command to create an order
type CreateOrderCommand struct {
	CustomerID  string      `json:"customerId" binding:"required,safe_string"`
	ShipAddress *AddressDTO `json:"shipAddress,omitempty"`
}

// SetDistributorCommand represents command to set or clear the order's
// distributor. An empty distributor ID clears the assignment.
type SetDistributorCommand struct {
	DistributorID string `json:"distributorId" binding:"omitempty,safe_string"`
}

// SetOrderCycleCommand represents command to set or clear the order's order
// cycle. An empty order cycle ID clears the assignment.
type SetOrderCycleCommand struct {
	OrderCycleID string `json:"orderCycleId" binding:"omitempty,safe_string"`
}

// AddLineItemCommand represents command to add a variant to the cart
type AddLineItemCommand struct {
	VariantID   string  `json:"variantId" binding:"required,variant_id"`
	Quantity    int     `json:"quantity" binding:"required,gt=0"`
	MaxQuantity *int    `json:"maxQuantity,omitempty"`
	UnitPrice   float64 `json:"unitPrice" binding:"gte=0"`
}

// SetVariantAttributesCommand represents command to update a cart line.
// The variant ID comes from the request path.
type SetVariantAttributesCommand struct {
	VariantID   string `json:"-"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	MaxQuantity *int   `json:"maxQuantity,omitempty"`
}

// RecordShipmentCommand represents command to record the shipping charge
type RecordShipmentCommand struct {
	ShippingMethodID string  `json:"shippingMethodId" binding:"required,safe_string"`
	Cost             float64 `json:"cost" binding:"gte=0"`
}

// ListOrdersQuery represents query to list a customer's orders
type ListOrdersQuery struct {
	CustomerID string
	Page       int64
	PageSize   int64
}

// DTOs

// AddressDTO represents a shipping address
type AddressDTO struct {
	Street        string `json:"street"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zipCode"`
	Country       string `json:"country"`
	RecipientName string `json:"recipientName"`
}

// AdjustmentDTO represents one ledger entry
type AdjustmentDTO struct {
	AdjustmentID   string  `json:"adjustmentId"`
	Label          string  `json:"label"`
	Amount         float64 `json:"amount"`
	IncludedTax    float64 `json:"includedTax"`
	Eligible       bool    `json:"eligible"`
	OriginatorKind string  `json:"originatorKind"`
	OriginatorID   string  `json:"originatorId"`
}

// LineItemDTO represents one cart line
type LineItemDTO struct {
	VariantID   string          `json:"variantId"`
	Quantity    int             `json:"quantity"`
	MaxQuantity *int            `json:"maxQuantity,omitempty"`
	UnitPrice   float64         `json:"unitPrice"`
	Total       float64         `json:"total"`
	Adjustments []AdjustmentDTO `json:"adjustments"`
}

// PaymentDTO represents a recorded payment
type PaymentDTO struct {
	PaymentID string  `json:"paymentId"`
	MethodID  string  `json:"methodId"`
	Amount    float64 `json:"amount"`
}

// ShipmentDTO represents the order's shipment charge
type ShipmentDTO struct {
	ShipmentID       string  `json:"shipmentId"`
	ShippingMethodID string  `json:"shippingMethodId"`
	Cost             float64 `json:"cost"`
}

// OrderDTO represents an order response
type OrderDTO struct {
	OrderNumber      string          `json:"orderNumber"`
	CustomerID       string          `json:"customerId"`
	DistributorID    string          `json:"distributorId,omitempty"`
	OrderCycleID     string          `json:"orderCycleId,omitempty"`
	LineItems        []LineItemDTO   `json:"lineItems"`
	Adjustments      []AdjustmentDTO `json:"adjustments"`
	Payments         []PaymentDTO    `json:"payments"`
	Shipment         *ShipmentDTO    `json:"shipment,omitempty"`
	ShippingMethodID string          `json:"shippingMethodId,omitempty"`
	ShipAddress      AddressDTO      `json:"shipAddress"`
	ItemTotal        float64         `json:"itemTotal"`
	AdjustmentTotal  float64         `json:"adjustmentTotal"`
	Total            float64         `json:"total"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// OrderListResponse represents paginated orders
type OrderListResponse struct {
	Data     []OrderDTO `json:"data"`
	Page     int64      `json:"page"`
	PageSize int64      `json:"pageSize"`
}

// TaxSummaryDTO represents the order's aggregated totals
type TaxSummaryDTO struct {
	OrderNumber           string  `json:"orderNumber"`
	AdminAndHandlingTotal float64 `json:"adminAndHandlingTotal"`
	ShippingTax           float64 `json:"shippingTax"`
	EnterpriseFeeTax      float64 `json:"enterpriseFeeTax"`
	TotalTax              float64 `json:"totalTax"`
	Total                 float64 `json:"total"`
}
