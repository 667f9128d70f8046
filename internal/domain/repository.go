package domain

import (
	"context"
)

// OrderRepository defines the interface for order persistence. Save persists
// the whole aggregate (line items and adjustments included) in one write, so
// a clear+recreate of the fee adjustments commits atomically.
type OrderRepository interface {
	// Save persists the full order aggregate
	Save(ctx context.Context, order *Order) error

	// FindByNumber retrieves an order by its order number
	FindByNumber(ctx context.Context, orderNumber string) (*Order, error)

	// FindByCustomerID retrieves orders for a customer
	FindByCustomerID(ctx context.Context, customerID string, pagination Pagination) ([]*Order, error)

	// FindByOrderCycle retrieves orders placed through an order cycle
	FindByOrderCycle(ctx context.Context, orderCycleID string, pagination Pagination) ([]*Order, error)

	// Delete removes an order
	Delete(ctx context.Context, orderNumber string) error
}

// DistributorRepository defines the interface for distributor reference data
type DistributorRepository interface {
	// Save persists a distributor
	Save(ctx context.Context, distributor *Distributor) error

	// FindByID retrieves a distributor by its ID
	FindByID(ctx context.Context, distributorID string) (*Distributor, error)
}

// OrderCycleRepository defines the interface for order cycle reference data
type OrderCycleRepository interface {
	// Save persists an order cycle
	Save(ctx context.Context, cycle *OrderCycle) error

	// FindByID retrieves an order cycle by its ID
	FindByID(ctx context.Context, orderCycleID string) (*OrderCycle, error)
}

// EnterpriseFeeRepository defines the interface for fee rule reference data
type EnterpriseFeeRepository interface {
	// Save persists a fee rule
	Save(ctx context.Context, fee *EnterpriseFee) error

	// FindByIDs retrieves the fee rules for a set of fee IDs, preserving
	// the requested order
	FindByIDs(ctx context.Context, feeIDs []string) ([]EnterpriseFee, error)
}

// Pagination represents pagination options
type Pagination struct {
	Page     int64
	PageSize int64
}

// DefaultPagination returns default pagination options
func DefaultPagination() Pagination {
	return Pagination{
		Page:     1,
		PageSize: 20,
	}
}

// Skip returns the number of documents to skip
func (p Pagination) Skip() int64 {
	return (p.Page - 1) * p.PageSize
}

// Limit returns the maximum number of documents to return
func (p Pagination) Limit() int64 {
	return p.PageSize
}
