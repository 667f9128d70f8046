package application

import (
	"context"
	"fmt"

	"github.com/jimacoff/openfoodnetwork/internal/domain"
	"github.com/jimacoff/openfoodnetwork/pkg/errors"
	"github.com/jimacoff/openfoodnetwork/pkg/logging"
	"github.com/jimacoff/openfoodnetwork/pkg/middleware"
)

// DistributionService handles order distribution use cases: keeping the
// distributor and order cycle assignments mutually consistent with the cart,
// and recomputing the fee adjustments whenever the context changes.
type DistributionService struct {
	orderRepo       domain.OrderRepository
	distributorRepo domain.DistributorRepository
	cycleRepo       domain.OrderCycleRepository
	feeRepo         domain.EnterpriseFeeRepository
	businessMetrics *middleware.BusinessMetrics
	taxPolicy       domain.TaxPolicy
	logger          *logging.Logger
}

// NewDistributionService creates a new DistributionService
func NewDistributionService(
	orderRepo domain.OrderRepository,
	distributorRepo domain.DistributorRepository,
	cycleRepo domain.OrderCycleRepository,
	feeRepo domain.EnterpriseFeeRepository,
	businessMetrics *middleware.BusinessMetrics,
	taxPolicy domain.TaxPolicy,
	logger *logging.Logger,
) *DistributionService {
	return &DistributionService{
		orderRepo:       orderRepo,
		distributorRepo: distributorRepo,
		cycleRepo:       cycleRepo,
		feeRepo:         feeRepo,
		businessMetrics: businessMetrics,
		taxPolicy:       taxPolicy,
		logger:          logger,
	}
}

// CreateOrder creates a new, empty order
func (s *DistributionService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*OrderDTO, error) {
	order := domain.NewOrder(cmd.CustomerID)
	order.ShipAddress = toAddress(cmd.ShipAddress)

	if err := s.orderRepo.Save(ctx, order); err != nil {
		s.logger.WithError(err).Error("Failed to save order", "orderNumber", order.OrderNumber)
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.businessMetrics.RecordOrderCreated()
	s.logger.Info("Order created", "orderNumber", order.OrderNumber, "customerId", cmd.CustomerID)
	return ToOrderDTO(order), nil
}

// GetOrder retrieves an order by its number
func (s *DistributionService) GetOrder(ctx context.Context, orderNumber string) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	return ToOrderDTO(order), nil
}

// ListOrders lists a customer's orders
func (s *DistributionService) ListOrders(ctx context.Context, query ListOrdersQuery) (*OrderListResponse, error) {
	pagination := domain.Pagination{Page: query.Page, PageSize: query.PageSize}
	if pagination.Page < 1 || pagination.PageSize < 1 {
		pagination = domain.DefaultPagination()
	}

	orders, err := s.orderRepo.FindByCustomerID(ctx, query.CustomerID, pagination)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = *ToOrderDTO(o)
	}
	return &OrderListResponse{Data: dtos, Page: pagination.Page, PageSize: pagination.PageSize}, nil
}

// SetDistributor sets or clears the order's distributor. A newly assigned
// distributor the current order cycle does not distribute to drops the
// cycle; clearing the distributor leaves the cycle alone. The cart is then
// validated against the resulting context and the fee adjustments
// recomputed.
func (s *DistributionService) SetDistributor(ctx context.Context, orderNumber string, cmd SetDistributorCommand) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	var distributor *domain.Distributor
	if cmd.DistributorID != "" {
		distributor, err = s.loadDistributor(ctx, cmd.DistributorID)
		if err != nil {
			return nil, err
		}
	}

	cycle, err := s.loadOrderCycleOf(ctx, order)
	if err != nil {
		return nil, err
	}

	order.AssignDistributor(distributor, cycle)
	if !order.HasOrderCycle() {
		cycle = nil
	}

	if err := order.ValidateDistribution(distributor, cycle); err != nil {
		s.businessMetrics.RecordDistributorChange("rejected")
		return nil, errors.ErrValidation(err.Error()).WithDetail("base", err.Error())
	}

	if err := s.recomputeAndSave(ctx, order, distributor, cycle); err != nil {
		return nil, err
	}

	result := "assigned"
	if cmd.DistributorID == "" {
		result = "cleared"
	}
	s.businessMetrics.RecordDistributorChange(result)
	s.logger.Info("Distributor set",
		"orderNumber", order.OrderNumber,
		"distributorId", cmd.DistributorID,
		"orderCycleId", order.OrderCycleID,
	)
	return ToOrderDTO(order), nil
}

// SetOrderCycle sets or clears the order's order cycle. Assigning the cycle
// already on the order changes nothing. Any actual change empties the cart,
// and drops a distributor the new cycle does not distribute to. The fee
// adjustments are recomputed for the resulting context.
func (s *DistributionService) SetOrderCycle(ctx context.Context, orderNumber string, cmd SetOrderCycleCommand) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	var cycle *domain.OrderCycle
	if cmd.OrderCycleID != "" {
		cycle, err = s.loadOrderCycle(ctx, cmd.OrderCycleID)
		if err != nil {
			return nil, err
		}
	}

	distributor, err := s.loadDistributorOf(ctx, order)
	if err != nil {
		return nil, err
	}

	if !order.AssignOrderCycle(cycle, distributor) {
		return ToOrderDTO(order), nil
	}
	if !order.HasDistributor() {
		distributor = nil
	}

	if err := s.recomputeAndSave(ctx, order, distributor, cycle); err != nil {
		return nil, err
	}

	result := "assigned"
	if cmd.OrderCycleID == "" {
		result = "cleared"
	}
	s.businessMetrics.RecordOrderCycleChange(result)
	s.businessMetrics.RecordCartEmptied("order_cycle_changed")
	s.logger.Info("Order cycle set",
		"orderNumber", order.OrderNumber,
		"orderCycleId", cmd.OrderCycleID,
		"distributorId", order.DistributorID,
	)
	return ToOrderDTO(order), nil
}

// EmptyOrder removes the order's line items, payments, and shipping method,
// then recomputes the fee adjustments for the now-empty cart.
func (s *DistributionService) EmptyOrder(ctx context.Context, orderNumber string) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	order.Empty()

	distributor, cycle, err := s.loadContext(ctx, order)
	if err != nil {
		return nil, err
	}
	if err := s.recomputeAndSave(ctx, order, distributor, cycle); err != nil {
		return nil, err
	}

	s.businessMetrics.RecordCartEmptied("requested")
	s.logger.Info("Order emptied", "orderNumber", order.OrderNumber)
	return ToOrderDTO(order), nil
}

// AddLineItem adds a variant to the cart. The variant must be obtainable
// from the order's current distribution context.
func (s *DistributionService) AddLineItem(ctx context.Context, orderNumber string, cmd AddLineItemCommand) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	if err := order.AddLineItem(cmd.VariantID, cmd.Quantity, cmd.MaxQuantity, cmd.UnitPrice); err != nil {
		return nil, errors.ErrValidation(err.Error())
	}

	distributor, cycle, err := s.loadContext(ctx, order)
	if err != nil {
		return nil, err
	}

	if err := order.ValidateDistribution(distributor, cycle); err != nil {
		return nil, errors.ErrValidation(err.Error()).WithDetail("base", err.Error())
	}

	if err := s.recomputeAndSave(ctx, order, distributor, cycle); err != nil {
		return nil, err
	}

	s.logger.Info("Line item added",
		"orderNumber", order.OrderNumber,
		"variantId", cmd.VariantID,
		"quantity", cmd.Quantity,
	)
	return ToOrderDTO(order), nil
}

// SetVariantAttributes updates the quantity and max quantity of a cart
// line. A variant with no line in the order leaves the order untouched.
func (s *DistributionService) SetVariantAttributes(ctx context.Context, orderNumber string, cmd SetVariantAttributesCommand) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	if !order.SetVariantAttributes(cmd.VariantID, cmd.Quantity, cmd.MaxQuantity) {
		return ToOrderDTO(order), nil
	}

	distributor, cycle, err := s.loadContext(ctx, order)
	if err != nil {
		return nil, err
	}
	if err := s.recomputeAndSave(ctx, order, distributor, cycle); err != nil {
		return nil, err
	}

	return ToOrderDTO(order), nil
}

// RemoveLineItem removes a variant's line from the cart. A variant with no
// line in the order leaves the order untouched.
func (s *DistributionService) RemoveLineItem(ctx context.Context, orderNumber, variantID string) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	if !order.RemoveLineItem(variantID) {
		return ToOrderDTO(order), nil
	}

	distributor, cycle, err := s.loadContext(ctx, order)
	if err != nil {
		return nil, err
	}
	if err := s.recomputeAndSave(ctx, order, distributor, cycle); err != nil {
		return nil, err
	}

	return ToOrderDTO(order), nil
}

// RecordShipment records the shipping charge for the order's shipment
func (s *DistributionService) RecordShipment(ctx context.Context, orderNumber string, cmd RecordShipmentCommand) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	order.RecordShipment(cmd.ShippingMethodID, cmd.Cost)

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("Shipment recorded",
		"orderNumber", order.OrderNumber,
		"shippingMethodId", cmd.ShippingMethodID,
		"cost", cmd.Cost,
	)
	return ToOrderDTO(order), nil
}

// RecalculateFees recomputes the order's fee adjustments for its current
// distribution context. The recompute clears all fee adjustments and
// recreates them, so running it again changes nothing.
func (s *DistributionService) RecalculateFees(ctx context.Context, orderNumber string) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	distributor, cycle, err := s.loadContext(ctx, order)
	if err != nil {
		return nil, err
	}
	if err := s.recomputeAndSave(ctx, order, distributor, cycle); err != nil {
		return nil, err
	}

	s.logger.Info("Distribution charges updated", "orderNumber", order.OrderNumber)
	return ToOrderDTO(order), nil
}

// GetTaxSummary returns the order's aggregated fee and tax totals
func (s *DistributionService) GetTaxSummary(ctx context.Context, orderNumber string) (*TaxSummaryDTO, error) {
	order, err := s.loadOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	return ToTaxSummaryDTO(order, s.taxPolicy), nil
}

// loadOrder retrieves an order or reports it missing
func (s *DistributionService) loadOrder(ctx context.Context, orderNumber string) (*domain.Order, error) {
	order, err := s.orderRepo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	if order == nil {
		return nil, errors.ErrNotFoundWithID("order", orderNumber)
	}
	return order, nil
}

func (s *DistributionService) loadDistributor(ctx context.Context, distributorID string) (*domain.Distributor, error) {
	distributor, err := s.distributorRepo.FindByID(ctx, distributorID)
	if err != nil {
		return nil, fmt.Errorf("failed to find distributor: %w", err)
	}
	if distributor == nil {
		return nil, errors.ErrNotFoundWithID("distributor", distributorID)
	}
	return distributor, nil
}

func (s *DistributionService) loadOrderCycle(ctx context.Context, orderCycleID string) (*domain.OrderCycle, error) {
	cycle, err := s.cycleRepo.FindByID(ctx, orderCycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to find order cycle: %w", err)
	}
	if cycle == nil {
		return nil, errors.ErrNotFoundWithID("order cycle", orderCycleID)
	}
	return cycle, nil
}

// loadDistributorOf loads the order's assigned distributor, nil when none
// is assigned
func (s *DistributionService) loadDistributorOf(ctx context.Context, order *domain.Order) (*domain.Distributor, error) {
	if !order.HasDistributor() {
		return nil, nil
	}
	return s.loadDistributor(ctx, order.DistributorID)
}

// loadOrderCycleOf loads the order's assigned cycle, nil when none is
// assigned
func (s *DistributionService) loadOrderCycleOf(ctx context.Context, order *domain.Order) (*domain.OrderCycle, error) {
	if !order.HasOrderCycle() {
		return nil, nil
	}
	return s.loadOrderCycle(ctx, order.OrderCycleID)
}

func (s *DistributionService) loadContext(ctx context.Context, order *domain.Order) (*domain.Distributor, *domain.OrderCycle, error) {
	distributor, err := s.loadDistributorOf(ctx, order)
	if err != nil {
		return nil, nil, err
	}
	cycle, err := s.loadOrderCycleOf(ctx, order)
	if err != nil {
		return nil, nil, err
	}
	return distributor, cycle, nil
}

// applicatorFor assembles the fee applicator for a distribution context. A
// context without an order cycle has no fee schedule.
func (s *DistributionService) applicatorFor(ctx context.Context, distributor *domain.Distributor, cycle *domain.OrderCycle) (*domain.FeeApplicator, error) {
	if cycle == nil {
		return nil, nil
	}

	fees, err := s.feeRepo.FindByIDs(ctx, cycle.FeeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load fee schedule: %w", err)
	}
	return domain.NewFeeApplicator(cycle, distributor, fees), nil
}

// recomputeAndSave clears and recreates the order's fee adjustments, then
// persists the whole aggregate in one write so the new ledger replaces the
// old one atomically.
func (s *DistributionService) recomputeAndSave(ctx context.Context, order *domain.Order, distributor *domain.Distributor, cycle *domain.OrderCycle) error {
	applicator, err := s.applicatorFor(ctx, distributor, cycle)
	if err != nil {
		return err
	}

	order.UpdateDistributionCharge(applicator)
	if err := s.save(ctx, order); err != nil {
		return err
	}

	s.businessMetrics.RecordFeeRecalculation()
	s.observeFeeAdjustments(order, applicator)
	return nil
}

// observeFeeAdjustments records the amount of each recomputed fee adjustment
func (s *DistributionService) observeFeeAdjustments(order *domain.Order, applicator *domain.FeeApplicator) {
	if applicator == nil {
		return
	}

	feeTypes := make(map[string]domain.FeeType, len(applicator.Fees))
	for _, fee := range applicator.Fees {
		feeTypes[fee.FeeID] = fee.FeeType
	}

	observe := func(adjustments []domain.Adjustment) {
		for i := range adjustments {
			a := &adjustments[i]
			if !a.IsFee() {
				continue
			}
			s.businessMetrics.ObserveFeeAdjustment(string(feeTypes[a.Originator.ID]), a.Amount)
		}
	}

	observe(order.Adjustments)
	for i := range order.LineItems {
		observe(order.LineItems[i].Adjustments)
	}
}

// save persists the order. The repository writes pending domain events to
// the outbox in the same transaction, so a successful save guarantees the
// events will be delivered.
func (s *DistributionService) save(ctx context.Context, order *domain.Order) error {
	if err := s.orderRepo.Save(ctx, order); err != nil {
		s.logger.WithError(err).Error("Failed to save order", "orderNumber", order.OrderNumber)
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}
