package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors for the Order aggregate
var (
	ErrCannotSupplyProducts = errors.New("Distributor or order cycle cannot supply the products in your cart")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrVariantRequired      = errors.New("variant is required")
)

func newShortID() string {
	return uuid.New().String()[:8]
}

// LineItem is one variant and quantity within an order. It owns the
// per-item fee adjustments applied to it.
type LineItem struct {
	VariantID   string       `bson:"variantId" json:"variantId"`
	Quantity    int          `bson:"quantity" json:"quantity"`
	MaxQuantity *int         `bson:"maxQuantity,omitempty" json:"maxQuantity,omitempty"`
	UnitPrice   float64      `bson:"unitPrice" json:"unitPrice"`
	Adjustments []Adjustment `bson:"adjustments" json:"adjustments"`
}

// Total returns the line item's price total, excluding adjustments.
func (li *LineItem) Total() float64 {
	return li.UnitPrice * float64(li.Quantity)
}

// AdjustmentTotal returns the sum of the line item's eligible adjustments.
func (li *LineItem) AdjustmentTotal() float64 {
	total := 0.0
	for i := range li.Adjustments {
		if li.Adjustments[i].Eligible {
			total += li.Adjustments[i].Amount
		}
	}
	return total
}

// Payment is a payment recorded against the order. Gateway mechanics live
// outside this service; the order only tracks the entries.
type Payment struct {
	PaymentID string  `bson:"paymentId" json:"paymentId"`
	MethodID  string  `bson:"methodId" json:"methodId"`
	Amount    float64 `bson:"amount" json:"amount"`
}

// Shipment records the shipping charge for an order once one exists.
// Shipment creation mechanics are an external collaborator; the order only
// holds the resulting charge.
type Shipment struct {
	ShipmentID       string  `bson:"shipmentId" json:"shipmentId"`
	ShippingMethodID string  `bson:"shippingMethodId" json:"shippingMethodId"`
	Cost             float64 `bson:"cost" json:"cost"`
}

// Address is a shipping address.
type Address struct {
	Street        string `bson:"street" json:"street"`
	City          string `bson:"city" json:"city"`
	State         string `bson:"state" json:"state"`
	ZipCode       string `bson:"zipCode" json:"zipCode"`
	Country       string `bson:"country" json:"country"`
	RecipientName string `bson:"recipientName" json:"recipientName"`
}

// Order is the aggregate root for the distribution consistency engine. It
// holds non-owning references to its distributor and order cycle, and
// exclusively owns its line items, payments, and order-scoped adjustments.
type Order struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderNumber      string             `bson:"orderNumber" json:"orderNumber"`
	CustomerID       string             `bson:"customerId" json:"customerId"`
	DistributorID    string             `bson:"distributorId,omitempty" json:"distributorId,omitempty"`
	OrderCycleID     string             `bson:"orderCycleId,omitempty" json:"orderCycleId,omitempty"`
	LineItems        []LineItem         `bson:"lineItems" json:"lineItems"`
	Adjustments      []Adjustment       `bson:"adjustments" json:"adjustments"`
	Payments         []Payment          `bson:"payments" json:"payments"`
	Shipment         *Shipment          `bson:"shipment,omitempty" json:"shipment,omitempty"`
	ShippingMethodID string             `bson:"shippingMethodId,omitempty" json:"shippingMethodId,omitempty"`
	ShipAddress      Address            `bson:"shipAddress" json:"shipAddress"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`

	// Domain events - transient, not persisted
	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewOrder creates a new, empty order.
func NewOrder(customerID string) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:           primitive.NewObjectID(),
		OrderNumber:  fmt.Sprintf("ORD-%s", newShortID()),
		CustomerID:   customerID,
		LineItems:    make([]LineItem, 0),
		Adjustments:  make([]Adjustment, 0),
		Payments:     make([]Payment, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
		domainEvents: make([]DomainEvent, 0),
	}
}

// HasDistributor reports whether a distributor is assigned.
func (o *Order) HasDistributor() bool { return o.DistributorID != "" }

// HasOrderCycle reports whether an order cycle is assigned.
func (o *Order) HasOrderCycle() bool { return o.OrderCycleID != "" }

// AssignDistributor assigns (or clears) the order's distributor. When the
// currently assigned order cycle does not distribute to the new distributor,
// the cycle is cleared rather than the assignment rejected. Clearing the
// distributor never clears the cycle: only a cycle made invalid by the new
// distributor is dropped.
func (o *Order) AssignDistributor(distributor *Distributor, currentCycle *OrderCycle) {
	previous := o.DistributorID

	if distributor == nil {
		o.DistributorID = ""
	} else {
		o.DistributorID = distributor.DistributorID
		if o.HasOrderCycle() && currentCycle != nil && !currentCycle.HasOutgoingExchangeTo(distributor.DistributorID) {
			cleared := o.OrderCycleID
			o.OrderCycleID = ""
			o.addDomainEvent(NewOrderCycleChangedEvent(o, cleared, ""))
		}
	}

	o.UpdatedAt = time.Now().UTC()
	o.addDomainEvent(NewDistributorChangedEvent(o, previous, o.DistributorID))
}

// AssignOrderCycle assigns (or clears) the order's order cycle. Setting the
// cycle already assigned is a no-op so an unchanged context never clears the
// cart. Any actual change empties the cart first: the cart contents were
// priced under the old fee schedule. When the new cycle does not distribute
// to the current distributor, the distributor is cleared. Returns whether
// the order changed.
func (o *Order) AssignOrderCycle(cycle *OrderCycle, currentDistributor *Distributor) bool {
	requested := ""
	if cycle != nil {
		requested = cycle.OrderCycleID
	}
	if requested == o.OrderCycleID {
		return false
	}

	previous := o.OrderCycleID
	o.Empty()
	o.OrderCycleID = requested

	if cycle != nil && o.HasDistributor() {
		distributorID := o.DistributorID
		if currentDistributor != nil {
			distributorID = currentDistributor.DistributorID
		}
		if !cycle.HasOutgoingExchangeTo(distributorID) {
			cleared := o.DistributorID
			o.DistributorID = ""
			o.addDomainEvent(NewDistributorChangedEvent(o, cleared, ""))
		}
	}

	o.UpdatedAt = time.Now().UTC()
	o.addDomainEvent(NewOrderCycleChangedEvent(o, previous, o.OrderCycleID))
	return true
}

// Empty removes all line items, detaches the shipping method, and drops all
// payments. Emptying an already-empty order is a no-op with the same
// observable result.
func (o *Order) Empty() {
	wasEmpty := len(o.LineItems) == 0 && len(o.Payments) == 0 && o.ShippingMethodID == ""

	o.LineItems = make([]LineItem, 0)
	o.Payments = make([]Payment, 0)
	o.ShippingMethodID = ""
	o.UpdatedAt = time.Now().UTC()

	if !wasEmpty {
		o.addDomainEvent(NewCartEmptiedEvent(o))
	}
}

// ValidateDistribution checks every line item's variant against the current
// channel: each variant must be obtainable from the distributor directly, or
// through the order cycle's exchanges to that distributor. One aggregate
// error is reported for any mismatch, not one per item.
func (o *Order) ValidateDistribution(distributor *Distributor, cycle *OrderCycle) error {
	for i := range o.LineItems {
		variantID := o.LineItems[i].VariantID

		if distributor != nil && distributor.Supplies(variantID) {
			continue
		}

		if distributor != nil && cycle != nil {
			distributed := false
			for _, v := range cycle.VariantsDistributedTo(distributor.DistributorID) {
				if v == variantID {
					distributed = true
					break
				}
			}
			if distributed {
				continue
			}
		}

		return ErrCannotSupplyProducts
	}
	return nil
}

// AddLineItem adds a variant to the cart, merging into an existing line for
// the same variant.
func (o *Order) AddLineItem(variantID string, quantity int, maxQuantity *int, unitPrice float64) error {
	if variantID == "" {
		return ErrVariantRequired
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	for i := range o.LineItems {
		if o.LineItems[i].VariantID == variantID {
			o.LineItems[i].Quantity += quantity
			o.LineItems[i].MaxQuantity = maxQuantity
			o.UpdatedAt = time.Now().UTC()
			return nil
		}
	}

	o.LineItems = append(o.LineItems, LineItem{
		VariantID:   variantID,
		Quantity:    quantity,
		MaxQuantity: maxQuantity,
		UnitPrice:   unitPrice,
		Adjustments: make([]Adjustment, 0),
	})
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// SetVariantAttributes updates quantity and max quantity on the line item
// for a variant. A variant with no line item in the order is a silent no-op:
// absence of the target is not an error. Returns whether a line item was
// updated.
func (o *Order) SetVariantAttributes(variantID string, quantity int, maxQuantity *int) bool {
	if quantity <= 0 {
		return false
	}
	for i := range o.LineItems {
		if o.LineItems[i].VariantID == variantID {
			o.LineItems[i].Quantity = quantity
			o.LineItems[i].MaxQuantity = maxQuantity
			o.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// RemoveLineItem removes the line item for a variant. Removing a variant
// not in the order is a silent no-op. Returns whether a line item was
// removed.
func (o *Order) RemoveLineItem(variantID string) bool {
	for i := range o.LineItems {
		if o.LineItems[i].VariantID == variantID {
			o.LineItems = append(o.LineItems[:i], o.LineItems[i+1:]...)
			o.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// RecordShipment attaches the shipping charge for the order's shipment.
func (o *Order) RecordShipment(shippingMethodID string, cost float64) {
	o.Shipment = &Shipment{
		ShipmentID:       fmt.Sprintf("SHP-%s", newShortID()),
		ShippingMethodID: shippingMethodID,
		Cost:             cost,
	}
	o.ShippingMethodID = shippingMethodID
	o.UpdatedAt = time.Now().UTC()
}

// ProvidedByOrderCycle reports whether the line item's variant is offered
// through the given order cycle. A nil cycle provides nothing.
func ProvidedByOrderCycle(li *LineItem, cycle *OrderCycle) bool {
	if cycle == nil {
		return false
	}
	return cycle.ProvidesVariant(li.VariantID)
}

// ClearFeeAdjustments removes every enterprise-fee-originated adjustment
// from the order and its line items. Adjustments from other originators are
// untouched.
func (o *Order) ClearFeeAdjustments() {
	o.Adjustments = withoutFeeAdjustments(o.Adjustments)
	for i := range o.LineItems {
		o.LineItems[i].Adjustments = withoutFeeAdjustments(o.LineItems[i].Adjustments)
	}
}

// UpdateDistributionCharge recomputes the fee adjustments for the current
// distribution context: clear, then recreate. The resulting fee set is a
// pure function of (distributor, order cycle, line items), so recomputation
// is idempotent. Without an order cycle there is no fee schedule in scope
// and clearing is all that happens.
func (o *Order) UpdateDistributionCharge(applicator *FeeApplicator) {
	o.ClearFeeAdjustments()

	if applicator == nil || applicator.OrderCycle == nil {
		o.UpdatedAt = time.Now().UTC()
		return
	}

	for i := range o.LineItems {
		li := &o.LineItems[i]
		if !ProvidedByOrderCycle(li, applicator.OrderCycle) {
			continue
		}
		li.Adjustments = append(li.Adjustments, applicator.LineItemAdjustments(li)...)
	}

	// Per-order fees apply exactly once, even with zero line items.
	o.Adjustments = append(o.Adjustments, applicator.OrderAdjustments(o)...)

	o.UpdatedAt = time.Now().UTC()
	o.addDomainEvent(NewDistributionChargesUpdatedEvent(o))
}

// ItemCount returns the total quantity across all line items.
func (o *Order) ItemCount() int {
	count := 0
	for i := range o.LineItems {
		count += o.LineItems[i].Quantity
	}
	return count
}

// ItemTotal returns the price total of all line items, excluding
// adjustments.
func (o *Order) ItemTotal() float64 {
	total := 0.0
	for i := range o.LineItems {
		total += o.LineItems[i].Total()
	}
	return total
}

// AdjustmentTotal returns the sum of all eligible adjustments on the order
// and its line items.
func (o *Order) AdjustmentTotal() float64 {
	total := 0.0
	for i := range o.Adjustments {
		if o.Adjustments[i].Eligible {
			total += o.Adjustments[i].Amount
		}
	}
	for i := range o.LineItems {
		total += o.LineItems[i].AdjustmentTotal()
	}
	return total
}

// Total returns the order total: items plus eligible adjustments.
func (o *Order) Total() float64 {
	return Round2(o.ItemTotal() + o.AdjustmentTotal())
}

// AdminAndHandlingTotal sums the eligible, order-scoped enterprise-fee
// adjustments. Ineligible entries, non-fee originators, and line-item-scoped
// fees are excluded.
func (o *Order) AdminAndHandlingTotal() float64 {
	total := 0.0
	for i := range o.Adjustments {
		a := &o.Adjustments[i]
		if a.Eligible && a.IsFee() {
			total += a.Amount
		}
	}
	return Round2(total)
}

// ShippingTax returns the tax component of the shipping charge under the
// given policy, or zero when the order has no shipment yet. This is derived
// from the shipping calculation, not the adjustment ledger.
func (o *Order) ShippingTax(policy TaxPolicy) float64 {
	if o.Shipment == nil {
		return 0
	}
	return Round2(policy.ShippingTaxOn(o.Shipment.Cost))
}

// EnterpriseFeeTax sums the included tax of the eligible, order-scoped
// enterprise-fee adjustments.
func (o *Order) EnterpriseFeeTax() float64 {
	total := 0.0
	for i := range o.Adjustments {
		a := &o.Adjustments[i]
		if a.Eligible && a.IsFee() {
			total += a.IncludedTax
		}
	}
	return Round2(total)
}

// TotalTax is the single externally reported tax figure: shipping tax plus
// enterprise fee tax, as a two-decimal monetary value.
func (o *Order) TotalTax(policy TaxPolicy) float64 {
	return Round2(o.ShippingTax(policy) + o.EnterpriseFeeTax())
}

// addDomainEvent adds a domain event to the order
func (o *Order) addDomainEvent(event DomainEvent) {
	o.domainEvents = append(o.domainEvents, event)
}

// DomainEvents returns all pending domain events
func (o *Order) DomainEvents() []DomainEvent {
	return o.domainEvents
}

// ClearDomainEvents clears all pending domain events
func (o *Order) ClearDomainEvents() {
	o.domainEvents = make([]DomainEvent, 0)
}
