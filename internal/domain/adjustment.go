package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// OriginatorKind tags the source of an adjustment so ledger filters are an
// explicit match on kind rather than a type check on the reference.
type OriginatorKind string

const (
	OriginatorEnterpriseFee  OriginatorKind = "enterprise_fee"
	OriginatorShippingMethod OriginatorKind = "shipping_method"
	OriginatorOther          OriginatorKind = "other"
)

// IsValid checks if the originator kind is valid
func (k OriginatorKind) IsValid() bool {
	switch k {
	case OriginatorEnterpriseFee, OriginatorShippingMethod, OriginatorOther:
		return true
	}
	return false
}

// Originator identifies what created an adjustment.
type Originator struct {
	Kind OriginatorKind `bson:"kind" json:"kind"`
	ID   string         `bson:"id" json:"id"`
}

// Adjustment is a single monetary entry in an order's ledger. The amount is
// signed; IncludedTax is the tax portion embedded in the amount, zero when
// untaxed. Ineligible adjustments are kept for audit but never counted in
// any total.
type Adjustment struct {
	AdjustmentID string     `bson:"adjustmentId" json:"adjustmentId"`
	Label        string     `bson:"label" json:"label"`
	Amount       float64    `bson:"amount" json:"amount"`
	IncludedTax  float64    `bson:"includedTax" json:"includedTax"`
	Eligible     bool       `bson:"eligible" json:"eligible"`
	Originator   Originator `bson:"originator" json:"originator"`
	CreatedAt    time.Time  `bson:"createdAt" json:"createdAt"`
}

// NewAdjustment creates an eligible adjustment for the given originator.
func NewAdjustment(label string, amount, includedTax float64, originator Originator) Adjustment {
	return Adjustment{
		AdjustmentID: fmt.Sprintf("ADJ-%s", uuid.New().String()[:8]),
		Label:        label,
		Amount:       amount,
		IncludedTax:  includedTax,
		Eligible:     true,
		Originator:   originator,
		CreatedAt:    time.Now().UTC(),
	}
}

// IsFee reports whether the adjustment was created by an enterprise fee.
func (a *Adjustment) IsFee() bool {
	return a.Originator.Kind == OriginatorEnterpriseFee
}

// withoutFeeAdjustments returns the adjustments that did not originate from
// an enterprise fee. Shipping-method and other adjustments survive a fee
// context change untouched.
func withoutFeeAdjustments(adjustments []Adjustment) []Adjustment {
	kept := adjustments[:0]
	for _, a := range adjustments {
		if !a.IsFee() {
			kept = append(kept, a)
		}
	}
	return kept
}

// Round2 rounds a monetary value to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// InclusiveTaxComponent returns the tax portion embedded in an amount that
// already includes tax at the given rate: amount * rate / (1 + rate).
func InclusiveTaxComponent(amount, rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	return amount * rate / (1 + rate)
}

// TaxPolicy carries the tax configuration threaded into tax derivation.
// It is an explicit value, never process-global state.
type TaxPolicy struct {
	ShippingTaxRate     float64 `bson:"shippingTaxRate" json:"shippingTaxRate" yaml:"shipping_tax_rate"`
	ShippingIncludesTax bool    `bson:"shippingIncludesTax" json:"shippingIncludesTax" yaml:"shipping_includes_tax"`
}

// ShippingTaxOn returns the tax component of a shipping charge under this
// policy.
func (p TaxPolicy) ShippingTaxOn(amount float64) float64 {
	if p.ShippingTaxRate <= 0 {
		return 0
	}
	if p.ShippingIncludesTax {
		return InclusiveTaxComponent(amount, p.ShippingTaxRate)
	}
	return amount * p.ShippingTaxRate
}
