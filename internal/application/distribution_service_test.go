package application

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimacoff/openfoodnetwork/internal/domain"
	appErrors "github.com/jimacoff/openfoodnetwork/pkg/errors"
	"github.com/jimacoff/openfoodnetwork/pkg/logging"
	"github.com/jimacoff/openfoodnetwork/pkg/metrics"
	"github.com/jimacoff/openfoodnetwork/pkg/middleware"
)

type fakeOrderRepo struct {
	saveFn             func(context.Context, *domain.Order) error
	findByNumberFn     func(context.Context, string) (*domain.Order, error)
	findByCustomerIDFn func(context.Context, string, domain.Pagination) ([]*domain.Order, error)
	findByOrderCycleFn func(context.Context, string, domain.Pagination) ([]*domain.Order, error)
	deleteFn           func(context.Context, string) error
	saved              []*domain.Order
	events             []domain.DomainEvent
}

// Save mirrors the real repository: pending domain events are drained
// into the outbox on a successful write.
func (f *fakeOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	f.saved = append(f.saved, order)
	if f.saveFn != nil {
		if err := f.saveFn(ctx, order); err != nil {
			return err
		}
	}
	f.events = append(f.events, order.DomainEvents()...)
	order.ClearDomainEvents()
	return nil
}

func (f *fakeOrderRepo) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	if f.findByNumberFn != nil {
		return f.findByNumberFn(ctx, orderNumber)
	}
	return nil, nil
}

func (f *fakeOrderRepo) FindByCustomerID(ctx context.Context, customerID string, pagination domain.Pagination) ([]*domain.Order, error) {
	if f.findByCustomerIDFn != nil {
		return f.findByCustomerIDFn(ctx, customerID, pagination)
	}
	return nil, nil
}

func (f *fakeOrderRepo) FindByOrderCycle(ctx context.Context, orderCycleID string, pagination domain.Pagination) ([]*domain.Order, error) {
	if f.findByOrderCycleFn != nil {
		return f.findByOrderCycleFn(ctx, orderCycleID, pagination)
	}
	return nil, nil
}

func (f *fakeOrderRepo) Delete(ctx context.Context, orderNumber string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, orderNumber)
	}
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

type fakeFeeRepo struct {
	findByIDsFn func(context.Context, []string) ([]domain.EnterpriseFee, error)
}

func (f *fakeFeeRepo) Save(ctx context.Context, fee *domain.EnterpriseFee) error {
	return nil
}

func (f *fakeFeeRepo) FindByIDs(ctx context.Context, feeIDs []string) ([]domain.EnterpriseFee, error) {
	if f.findByIDsFn != nil {
		return f.findByIDsFn(ctx, feeIDs)
	}
	return nil, nil
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("distribution-test")
	cfg.Output = io.Discard
	return logging.New(cfg)
}

type serviceFixture struct {
	orderRepo   *fakeOrderRepo
	distributor *fakeDistributorRepo
	cycles      *fakeCycleRepo
	fees        *fakeFeeRepo
	metrics     *metrics.Metrics
	service     *DistributionService
}

func newFixture(policy domain.TaxPolicy) *serviceFixture {
	f := &serviceFixture{
		orderRepo:   &fakeOrderRepo{},
		distributor: &fakeDistributorRepo{},
		cycles:      &fakeCycleRepo{},
		fees:        &fakeFeeRepo{},
		metrics:     metrics.New(metrics.DefaultConfig("distribution-test")),
	}
	businessMetrics := middleware.NewBusinessMetrics(f.metrics)
	f.service = NewDistributionService(f.orderRepo, f.distributor, f.cycles, f.fees, businessMetrics, policy, testLogger())
	return f
}

func fixtureDistributor(id string, variantIDs ...string) *domain.Distributor {
	return &domain.Distributor{DistributorID: id, Name: "Distributor " + id, VariantIDs: variantIDs}
}

func fixtureCycle(id string, distributorID string, variantIDs ...string) *domain.OrderCycle {
	return &domain.OrderCycle{
		OrderCycleID: id,
		Name:         "Cycle " + id,
		Coordinator:  "ENT-COORD",
		Exchanges: []domain.Exchange{{
			SenderID:   "ENT-COORD",
			ReceiverID: distributorID,
			Direction:  domain.ExchangeOutgoing,
			VariantIDs: variantIDs,
		}},
	}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(domain.TaxPolicy{})

	dto, err := f.service.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: "CUST-001"})

	require.NoError(t, err)
	assert.NotEmpty(t, dto.OrderNumber)
	assert.Equal(t, "CUST-001", dto.CustomerID)
	require.Len(t, f.orderRepo.saved, 1)
}

func TestCreateOrder_SaveFails(t *testing.T) {
	f := newFixture(domain.TaxPolicy{})
	f.orderRepo.saveFn = func(context.Context, *domain.Order) error {
		return errors.New("connection lost")
	}

	dto, err := f.service.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: "CUST-001"})

	assert.Error(t, err)
	assert.Nil(t, dto)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newFixture(domain.TaxPolicy{})

	dto, err := f.service.GetOrder(context.Background(), "ORD-missing")

	assert.Nil(t, dto)
	var appErr *appErrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.CodeNotFound, appErr.Code)
}

func TestSetDistributor(t *testing.T) {
	newOrder := func() *domain.Order {
		order := domain.NewOrder("CUST-001")
		order.ClearDomainEvents()
		return order
	}

	t.Run("assigns distributor and publishes the change", func(t *testing.T) {
		f := newFixture(domain.TaxPolicy{})
		order := newOrder()
		f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }
		f.distributor.findByIDFn = func(_ context.Context, id string) (*domain.Distributor, error) {
			return fixtureDistributor(id, "V1"), nil
		}

		dto, err := f.service.SetDistributor(context.Background(), order.OrderNumber, SetDistributorCommand{DistributorID: "D1"})

		require.NoError(t, err)
		assert.Equal(t, "D1", dto.DistributorID)
		require.Len(t, f.orderRepo.saved, 1)
		require.NotEmpty(t, f.orderRepo.events)
		assert.Equal(t, "distribution.order.distributor_changed", f.orderRepo.events[0].EventType())
	})

	t.Run("unknown distributor is not found", func(t *testing.T) {
		f := newFixture(domain.TaxPolicy{})
		order := newOrder()
		f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }

		_, err := f.service.SetDistributor(context.Background(), order.OrderNumber, SetDistributorCommand{DistributorID: "D9"})

		var appErr *appErrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.CodeNotFound, appErr.Code)
		assert.Empty(t, f.orderRepo.saved)
	})

	t.Run("rejects a distributor that cannot supply the cart", func(t *testing.T) {
		f := newFixture(domain.TaxPolicy{})
		order := newOrder()
		require.NoError(t, order.AddLineItem("V1", 1, nil, 4.00))
		f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }
		f.distributor.findByIDFn = func(_ context.Context, id string) (*domain.Distributor, error) {
			return fixtureDistributor(id, "V9"), nil
		}

		_, err := f.service.SetDistributor(context.Background(), order.OrderNumber, SetDistributorCommand{DistributorID: "D1"})

		var appErr *appErrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.CodeValidationError, appErr.Code)
		assert.Equal(t, "Distributor or order cycle cannot supply the products in your cart", appErr.Details["base"])
		assert.Empty(t, f.orderRepo.saved, "a rejected change is never persisted")
	})

	t.Run("clears a cycle that does not distribute to the new distributor", func(t *testing.T) {
		f := newFixture(domain.TaxPolicy{})
		order := newOrder()
		order.OrderCycleID = "OC1"
		f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }
		f.distributor.findByIDFn = func(_ context.Context, id string) (*domain.Distributor, error) {
			return fixtureDistributor(id, "V1"), nil
		}
		f.cycles.findByIDFn = func(_ context.Context, id string) (*domain.OrderCycle, error) {
			return fixtureCycle(id, "D2", "V1"), nil
		}

		dto, err := f.service.SetDistributor(context.Background(), order.OrderNumber, SetDistributorCommand{DistributorID: "D1"})

		require.NoError(t, err)
		assert.Equal(t, "D1", dto.DistributorID)
		assert.Empty(t, dto.OrderCycleID)
	})
}

func TestSetOrderCycle(t *testing.T) {
	t.Run("changing cycle empties the cart and recomputes fees", func(t *testing.T) {
		fee, err := domain.NewEnterpriseFee("ENT-001", "Admin", domain.FeeTypeAdmin, domain.FeePerOrder,
			domain.Calculator{Type: domain.CalculatorFlatRate, Amount: 5.00}, domain.TaxCategory{})
		require.NoError(t, err)

		f := newFixture(domain.TaxPolicy{})
		order := domain.NewOrder("CUST-001")
		order.OrderCycleID = "OC1"
		require.NoError(t, order.AddLineItem("V1", 2, nil, 3.00))
		order.ClearDomainEvents()

		f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }
		f.cycles.findByIDFn = func(_ context.Context, id string) (*domain.OrderCycle, error) {
			cycle := fixtureCycle(id, "D1", "V1")
			cycle.FeeIDs = []string{fee.FeeID}
			return cycle, nil
		}
		f.fees.findByIDsFn = func(context.Context, []string) ([]domain.EnterpriseFee, error) {
			return []domain.EnterpriseFee{*fee}, nil
		}

		dto, err := f.service.SetOrderCycle(context.Background(), order.OrderNumber, SetOrderCycleCommand{OrderCycleID: "OC2"})

		require.NoError(t, err)
		assert.Equal(t, "OC2", dto.OrderCycleID)
		assert.Empty(t, dto.LineItems)
		require.Len(t, dto.Adjustments, 1)
		assert.Equal(t, 5.00, dto.Adjustments[0].Amount)
	})

	t.Run("same cycle changes nothing and saves nothing", func(t *testing.T) {
		f := newFixture(domain.TaxPolicy{})
		order := domain.NewOrder("CUST-001")
		order.OrderCycleID = "OC1"
		require.NoError(t, order.AddLineItem("V1", 2, nil, 3.00))

		f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }
		f.cycles.findByIDFn = func(_ context.Context, id string) (*domain.OrderCycle, error) {
			return fixtureCycle(id, "D1", "V1"), nil
		}

		dto, err := f.service.SetOrderCycle(context.Background(), order.OrderNumber, SetOrderCycleCommand{OrderCycleID: "OC1"})

		require.NoError(t, err)
		assert.Len(t, dto.LineItems, 1)
		assert.Empty(t, f.orderRepo.saved)
		assert.Empty(t, f.orderRepo.events)
	})

	t.Run("clearing the cycle keeps the distributor", func(t *testing.T) {
		f := newFixture(domain.TaxPolicy{})
		order := domain.NewOrder("CUST-001")
		order.OrderCycleID = "OC1"
		order.DistributorID = "D1"

		f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }
		f.distributor.findByIDFn = func(_ context.Context, id string) (*domain.Distributor, error) {
			return fixtureDistributor(id, "V1"), nil
		}

		dto, err := f.service.SetOrderCycle(context.Background(), order.OrderNumber, SetOrderCycleCommand{OrderCycleID: ""})

		require.NoError(t, err)
		assert.Empty(t, dto.OrderCycleID)
		assert.Equal(t, "D1", dto.DistributorID)
	})
}

func TestAddLineItem(t *testing.T) {
	t.Run("adds a variant the context supplies and applies fees", func(t *testing.T) {
		fee, err := domain.NewEnterpriseFee("ENT-001", "Packing", domain.FeeTypePacking, domain.FeePerItem,
			domain.Calculator{Type: domain.CalculatorFlatPerItem, Amount: 0.50}, domain.TaxCategory{})
		require.NoError(t, err)

		f := newFixture(domain.TaxPolicy{})
		order := domain.NewOrder("CUST-001")
		order.DistributorID = "D1"
		order.OrderCycleID = "OC1"

		f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }
		f.distributor.findByIDFn = func(_ context.Context, id string) (*domain.Distributor, error) {
			return fixtureDistributor(id), nil
		}
		f.cycles.findByIDFn = func(_ context.Context, id string) (*domain.OrderCycle, error) {
			cycle := fixtureCycle(id, "D1", "V1")
			cycle.FeeIDs = []string{fee.FeeID}
			return cycle, nil
		}
		f.fees.findByIDsFn = func(context.Context, []string) ([]domain.EnterpriseFee, error) {
			return []domain.EnterpriseFee{*fee}, nil
		}

		dto, err := f.service.AddLineItem(context.Background(), order.OrderNumber, AddLineItemCommand{
			VariantID: "V1",
			Quantity:  4,
			UnitPrice: 2.00,
		})

		require.NoError(t, err)
		require.Len(t, dto.LineItems, 1)
		require.Len(t, dto.LineItems[0].Adjustments, 1)
		assert.Equal(t, 2.00, dto.LineItems[0].Adjustments[0].Amount)
	})

	t.Run("rejects a variant outside the distribution context", func(t *testing.T) {
		f := newFixture(domain.TaxPolicy{})
		order := domain.NewOrder("CUST-001")
		order.DistributorID = "D1"

		f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }
		f.distributor.findByIDFn = func(_ context.Context, id string) (*domain.Distributor, error) {
			return fixtureDistributor(id, "V1"), nil
		}

		_, err := f.service.AddLineItem(context.Background(), order.OrderNumber, AddLineItemCommand{
			VariantID: "V9",
			Quantity:  1,
			UnitPrice: 2.00,
		})

		var appErr *appErrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.CodeValidationError, appErr.Code)
		assert.Empty(t, f.orderRepo.saved)
	})
}

func TestEmptyOrder(t *testing.T) {
	f := newFixture(domain.TaxPolicy{})
	order := domain.NewOrder("CUST-001")
	require.NoError(t, order.AddLineItem("V1", 2, nil, 3.00))
	order.ShippingMethodID = "SM-1"

	f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }

	dto, err := f.service.EmptyOrder(context.Background(), order.OrderNumber)

	require.NoError(t, err)
	assert.Empty(t, dto.LineItems)
	assert.Empty(t, dto.ShippingMethodID)
	require.Len(t, f.orderRepo.saved, 1)
}

func TestRemoveLineItem_AbsentVariantIsNoop(t *testing.T) {
	f := newFixture(domain.TaxPolicy{})
	order := domain.NewOrder("CUST-001")

	f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }

	dto, err := f.service.RemoveLineItem(context.Background(), order.OrderNumber, "V9")

	require.NoError(t, err)
	assert.Empty(t, dto.LineItems)
	assert.Empty(t, f.orderRepo.saved)
}

func TestRecalculateFees_Idempotent(t *testing.T) {
	fee, err := domain.NewEnterpriseFee("ENT-001", "Admin", domain.FeeTypeAdmin, domain.FeePerOrder,
		domain.Calculator{Type: domain.CalculatorFlatRate, Amount: 5.00}, domain.TaxCategory{})
	require.NoError(t, err)

	f := newFixture(domain.TaxPolicy{})
	order := domain.NewOrder("CUST-001")
	order.DistributorID = "D1"
	order.OrderCycleID = "OC1"
	require.NoError(t, order.AddLineItem("V1", 2, nil, 3.00))

	f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }
	f.distributor.findByIDFn = func(_ context.Context, id string) (*domain.Distributor, error) {
		return fixtureDistributor(id), nil
	}
	f.cycles.findByIDFn = func(_ context.Context, id string) (*domain.OrderCycle, error) {
		cycle := fixtureCycle(id, "D1", "V1")
		cycle.FeeIDs = []string{fee.FeeID}
		return cycle, nil
	}
	f.fees.findByIDsFn = func(context.Context, []string) ([]domain.EnterpriseFee, error) {
		return []domain.EnterpriseFee{*fee}, nil
	}

	first, err := f.service.RecalculateFees(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	second, err := f.service.RecalculateFees(context.Background(), order.OrderNumber)
	require.NoError(t, err)

	assert.Equal(t, first.AdjustmentTotal, second.AdjustmentTotal)
	assert.Len(t, second.Adjustments, 1)
}

func TestGetTaxSummary(t *testing.T) {
	f := newFixture(domain.TaxPolicy{ShippingTaxRate: 0.25, ShippingIncludesTax: true})
	order := domain.NewOrder("CUST-001")
	order.RecordShipment("SM-1", 50.00)
	order.Adjustments = append(order.Adjustments,
		domain.NewAdjustment("Admin fee by ENT-001", 50.00, 10.00, domain.Originator{Kind: domain.OriginatorEnterpriseFee, ID: "FEE-1"}),
		domain.NewAdjustment("Packing fee by ENT-001", 10.00, 2.00, domain.Originator{Kind: domain.OriginatorEnterpriseFee, ID: "FEE-2"}),
	)

	f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) { return order, nil }

	summary, err := f.service.GetTaxSummary(context.Background(), order.OrderNumber)

	require.NoError(t, err)
	assert.Equal(t, 60.00, summary.AdminAndHandlingTotal)
	assert.Equal(t, 10.00, summary.ShippingTax)
	assert.Equal(t, 12.00, summary.EnterpriseFeeTax)
	assert.Equal(t, 22.00, summary.TotalTax)
}

func TestBusinessMetricsRecorded(t *testing.T) {
	fee, err := domain.NewEnterpriseFee("ENT-001", "Admin", domain.FeeTypeAdmin, domain.FeePerOrder,
		domain.Calculator{Type: domain.CalculatorFlatRate, Amount: 5.00}, domain.TaxCategory{})
	require.NoError(t, err)

	f := newFixture(domain.TaxPolicy{})
	f.distributor.findByIDFn = func(_ context.Context, id string) (*domain.Distributor, error) {
		return fixtureDistributor(id, "V1"), nil
	}
	f.cycles.findByIDFn = func(_ context.Context, id string) (*domain.OrderCycle, error) {
		cycle := fixtureCycle(id, "D1", "V1")
		cycle.FeeIDs = []string{fee.FeeID}
		return cycle, nil
	}
	f.fees.findByIDsFn = func(context.Context, []string) ([]domain.EnterpriseFee, error) {
		return []domain.EnterpriseFee{*fee}, nil
	}

	dto, err := f.service.CreateOrder(context.Background(), CreateOrderCommand{CustomerID: "CUST-001"})
	require.NoError(t, err)
	f.orderRepo.findByNumberFn = func(context.Context, string) (*domain.Order, error) {
		return f.orderRepo.saved[len(f.orderRepo.saved)-1], nil
	}

	_, err = f.service.SetDistributor(context.Background(), dto.OrderNumber, SetDistributorCommand{DistributorID: "D1"})
	require.NoError(t, err)
	_, err = f.service.SetOrderCycle(context.Background(), dto.OrderNumber, SetOrderCycleCommand{OrderCycleID: "OC1"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersCreated.WithLabelValues("distribution-test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DistributorChanges.WithLabelValues("distribution-test", "assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrderCycleChanges.WithLabelValues("distribution-test", "assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CartsEmptied.WithLabelValues("distribution-test", "order_cycle_changed")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(f.metrics.FeeRecalculations.WithLabelValues("distribution-test")), 1.0)
	assert.Equal(t, 1, testutil.CollectAndCount(f.metrics.FeeAdjustmentAmount))
}
