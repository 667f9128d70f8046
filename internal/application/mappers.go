package application

import (
	"github.com/jimacoff/openfoodnetwork/internal/domain"
)

// ToOrderDTO converts an order aggregate to its response representation
func ToOrderDTO(order *domain.Order) *OrderDTO {
	dto := &OrderDTO{
		OrderNumber:      order.OrderNumber,
		CustomerID:       order.CustomerID,
		DistributorID:    order.DistributorID,
		OrderCycleID:     order.OrderCycleID,
		LineItems:        make([]LineItemDTO, len(order.LineItems)),
		Adjustments:      toAdjustmentDTOs(order.Adjustments),
		Payments:         make([]PaymentDTO, len(order.Payments)),
		ShippingMethodID: order.ShippingMethodID,
		ShipAddress:      toAddressDTO(order.ShipAddress),
		ItemTotal:        order.ItemTotal(),
		AdjustmentTotal:  order.AdjustmentTotal(),
		Total:            order.Total(),
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}

	for i := range order.LineItems {
		li := &order.LineItems[i]
		dto.LineItems[i] = LineItemDTO{
			VariantID:   li.VariantID,
			Quantity:    li.Quantity,
			MaxQuantity: li.MaxQuantity,
			UnitPrice:   li.UnitPrice,
			Total:       li.Total(),
			Adjustments: toAdjustmentDTOs(li.Adjustments),
		}
	}

	for i, p := range order.Payments {
		dto.Payments[i] = PaymentDTO{
			PaymentID: p.PaymentID,
			MethodID:  p.MethodID,
			Amount:    p.Amount,
		}
	}

	if order.Shipment != nil {
		dto.Shipment = &ShipmentDTO{
			ShipmentID:       order.Shipment.ShipmentID,
			ShippingMethodID: order.Shipment.ShippingMethodID,
			Cost:             order.Shipment.Cost,
		}
	}

	return dto
}

// ToTaxSummaryDTO derives the aggregated totals for an order under a tax
// policy
func ToTaxSummaryDTO(order *domain.Order, policy domain.TaxPolicy) *TaxSummaryDTO {
	return &TaxSummaryDTO{
		OrderNumber:           order.OrderNumber,
		AdminAndHandlingTotal: order.AdminAndHandlingTotal(),
		ShippingTax:           order.ShippingTax(policy),
		EnterpriseFeeTax:      order.EnterpriseFeeTax(),
		TotalTax:              order.TotalTax(policy),
		Total:                 order.Total(),
	}
}

func toAdjustmentDTOs(adjustments []domain.Adjustment) []AdjustmentDTO {
	dtos := make([]AdjustmentDTO, len(adjustments))
	for i, a := range adjustments {
		dtos[i] = AdjustmentDTO{
			AdjustmentID:   a.AdjustmentID,
			Label:          a.Label,
			Amount:         a.Amount,
			IncludedTax:    a.IncludedTax,
			Eligible:       a.Eligible,
			OriginatorKind: string(a.Originator.Kind),
			OriginatorID:   a.Originator.ID,
		}
	}
	return dtos
}

func toAddressDTO(a domain.Address) AddressDTO {
	return AddressDTO{
		Street:        a.Street,
		City:          a.City,
		State:         a.State,
		ZipCode:       a.ZipCode,
		Country:       a.Country,
		RecipientName: a.RecipientName,
	}
}

func toAddress(dto *AddressDTO) domain.Address {
	if dto == nil {
		return domain.Address{}
	}
	return domain.Address{
		Street:        dto.Street,
		City:          dto.City,
		State:         dto.State,
		ZipCode:       dto.ZipCode,
		Country:       dto.Country,
		RecipientName: dto.RecipientName,
	}
}
