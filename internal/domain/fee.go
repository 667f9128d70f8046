package domain

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors for fee rules
var (
	ErrInvalidFeeType    = errors.New("invalid fee type")
	ErrInvalidFeeMode    = errors.New("invalid fee application mode")
	ErrInvalidCalculator = errors.New("invalid calculator type")
	ErrNegativeFeeAmount = errors.New("fee amount must not be negative")
)

// FeeApplicationMode determines whether a fee yields one adjustment on the
// order or one per matching line item.
type FeeApplicationMode string

const (
	FeePerOrder FeeApplicationMode = "per_order"
	FeePerItem  FeeApplicationMode = "per_item"
)

// IsValid checks if the application mode is valid
func (m FeeApplicationMode) IsValid() bool {
	return m == FeePerOrder || m == FeePerItem
}

// FeeType categorizes what an enterprise fee charges for.
type FeeType string

const (
	FeeTypeAdmin     FeeType = "admin"
	FeeTypePacking   FeeType = "packing"
	FeeTypeTransport FeeType = "transport"
	FeeTypeFundrais  FeeType = "fundraising"
	FeeTypeSales     FeeType = "sales"
)

// IsValid checks if the fee type is valid
func (t FeeType) IsValid() bool {
	switch t {
	case FeeTypeAdmin, FeeTypePacking, FeeTypeTransport, FeeTypeFundrais, FeeTypeSales:
		return true
	}
	return false
}

// CalculatorType selects the strategy a fee uses to compute its amount.
type CalculatorType string

const (
	CalculatorFlatRate    CalculatorType = "flat_rate"
	CalculatorFlatPerItem CalculatorType = "flat_per_item"
	CalculatorPercent     CalculatorType = "percent"
)

// IsValid checks if the calculator type is valid
func (t CalculatorType) IsValid() bool {
	switch t {
	case CalculatorFlatRate, CalculatorFlatPerItem, CalculatorPercent:
		return true
	}
	return false
}

// CalculationBasis is what a calculator computes against: the quantity and
// monetary total of the charged scope (one line item, or the whole order).
type CalculationBasis struct {
	Quantity int
	Total    float64
}

// Calculator computes a monetary amount for a fee.
type Calculator struct {
	Type    CalculatorType `bson:"type" json:"type"`
	Amount  float64        `bson:"amount" json:"amount"`
	Percent float64        `bson:"percent" json:"percent"`
}

// Compute returns the calculated fee amount for a basis.
func (c Calculator) Compute(basis CalculationBasis) float64 {
	switch c.Type {
	case CalculatorFlatRate:
		return c.Amount
	case CalculatorFlatPerItem:
		return c.Amount * float64(basis.Quantity)
	case CalculatorPercent:
		return basis.Total * c.Percent / 100
	default:
		return 0
	}
}

// TaxCategory describes how a fee's amount relates to tax. When the amounts
// include tax, the computed adjustment carries the embedded tax component;
// untaxed categories carry zero.
type TaxCategory struct {
	TaxRate     float64 `bson:"taxRate" json:"taxRate"`
	IncludesTax bool    `bson:"includesTax" json:"includesTax"`
}

// IncludedTaxOn returns the tax portion embedded in an amount charged under
// this category.
func (tc TaxCategory) IncludedTaxOn(amount float64) float64 {
	if tc.TaxRate <= 0 || !tc.IncludesTax {
		return 0
	}
	return InclusiveTaxComponent(amount, tc.TaxRate)
}

// EnterpriseFee is a configurable fee rule applied to orders or line items
// within a distribution context.
type EnterpriseFee struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FeeID        string             `bson:"feeId" json:"feeId"`
	EnterpriseID string             `bson:"enterpriseId" json:"enterpriseId"`
	Name         string             `bson:"name" json:"name"`
	FeeType      FeeType            `bson:"feeType" json:"feeType"`
	Mode         FeeApplicationMode `bson:"mode" json:"mode"`
	Calculator   Calculator         `bson:"calculator" json:"calculator"`
	TaxCategory  TaxCategory        `bson:"taxCategory" json:"taxCategory"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// NewEnterpriseFee creates a new fee rule.
func NewEnterpriseFee(enterpriseID, name string, feeType FeeType, mode FeeApplicationMode, calc Calculator, taxCategory TaxCategory) (*EnterpriseFee, error) {
	if !feeType.IsValid() {
		return nil, ErrInvalidFeeType
	}
	if !mode.IsValid() {
		return nil, ErrInvalidFeeMode
	}
	if !calc.Type.IsValid() {
		return nil, ErrInvalidCalculator
	}
	if calc.Amount < 0 {
		return nil, ErrNegativeFeeAmount
	}
	return &EnterpriseFee{
		ID:           primitive.NewObjectID(),
		FeeID:        fmt.Sprintf("FEE-%s", newShortID()),
		EnterpriseID: enterpriseID,
		Name:         name,
		FeeType:      feeType,
		Mode:         mode,
		Calculator:   calc,
		TaxCategory:  taxCategory,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// AdjustmentFor builds the ledger entry this fee yields for a basis.
func (f *EnterpriseFee) AdjustmentFor(basis CalculationBasis) Adjustment {
	amount := f.Calculator.Compute(basis)
	includedTax := f.TaxCategory.IncludedTaxOn(amount)
	label := fmt.Sprintf("%s fee by %s", f.Name, f.EnterpriseID)
	return NewAdjustment(label, amount, includedTax, Originator{
		Kind: OriginatorEnterpriseFee,
		ID:   f.FeeID,
	})
}

// FeeApplicator generates fee adjustments for one (order cycle, distributor)
// context. The two creation methods are pure queries over the fee schedule;
// attaching their results to the ledger is the caller's mutation.
type FeeApplicator struct {
	OrderCycle  *OrderCycle
	Distributor *Distributor
	Fees        []EnterpriseFee
}

// NewFeeApplicator creates an applicator for a distribution context.
func NewFeeApplicator(cycle *OrderCycle, distributor *Distributor, fees []EnterpriseFee) *FeeApplicator {
	return &FeeApplicator{
		OrderCycle:  cycle,
		Distributor: distributor,
		Fees:        fees,
	}
}

// LineItemAdjustments returns one adjustment per per-item fee for a line
// item.
func (a *FeeApplicator) LineItemAdjustments(li *LineItem) []Adjustment {
	var adjustments []Adjustment
	basis := CalculationBasis{Quantity: li.Quantity, Total: li.Total()}
	for i := range a.Fees {
		fee := &a.Fees[i]
		if fee.Mode != FeePerItem {
			continue
		}
		adjustments = append(adjustments, fee.AdjustmentFor(basis))
	}
	return adjustments
}

// OrderAdjustments returns one adjustment per per-order fee. Each per-order
// fee yields exactly one adjustment regardless of line item count, including
// for an empty order.
func (a *FeeApplicator) OrderAdjustments(o *Order) []Adjustment {
	var adjustments []Adjustment
	basis := CalculationBasis{Quantity: o.ItemCount(), Total: o.ItemTotal()}
	for i := range a.Fees {
		fee := &a.Fees[i]
		if fee.Mode != FeePerOrder {
			continue
		}
		adjustments = append(adjustments, fee.AdjustmentFor(basis))
	}
	return adjustments
}
