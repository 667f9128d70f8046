package domain

import "time"

// DomainEvent is the base interface for all domain events
type DomainEvent interface {
	EventType() string
	AggregateID() string
	OccurredAt() time.Time
}

// DistributorChangedEvent is emitted when an order's distributor assignment
// changes, including when it is cleared to restore consistency.
type DistributorChangedEvent struct {
	OrderNumber   string    `json:"orderNumber"`
	Previous      string    `json:"previous,omitempty"`
	DistributorID string    `json:"distributorId,omitempty"`
	ChangedAt     time.Time `json:"changedAt"`
}

func (e *DistributorChangedEvent) EventType() string {
	return "distribution.order.distributor_changed"
}
func (e *DistributorChangedEvent) AggregateID() string { return e.OrderNumber }
func (e *DistributorChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// NewDistributorChangedEvent creates a DistributorChangedEvent
func NewDistributorChangedEvent(o *Order, previous, current string) *DistributorChangedEvent {
	return &DistributorChangedEvent{
		OrderNumber:   o.OrderNumber,
		Previous:      previous,
		DistributorID: current,
		ChangedAt:     time.Now().UTC(),
	}
}

// OrderCycleChangedEvent is emitted when an order's order cycle assignment
// changes, including when it is cleared to restore consistency.
type OrderCycleChangedEvent struct {
	OrderNumber  string    `json:"orderNumber"`
	Previous     string    `json:"previous,omitempty"`
	OrderCycleID string    `json:"orderCycleId,omitempty"`
	ChangedAt    time.Time `json:"changedAt"`
}

func (e *OrderCycleChangedEvent) EventType() string {
	return "distribution.order.order_cycle_changed"
}
func (e *OrderCycleChangedEvent) AggregateID() string { return e.OrderNumber }
func (e *OrderCycleChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// NewOrderCycleChangedEvent creates an OrderCycleChangedEvent
func NewOrderCycleChangedEvent(o *Order, previous, current string) *OrderCycleChangedEvent {
	return &OrderCycleChangedEvent{
		OrderNumber:  o.OrderNumber,
		Previous:     previous,
		OrderCycleID: current,
		ChangedAt:    time.Now().UTC(),
	}
}

// CartEmptiedEvent is emitted when an order's cart is emptied as part of a
// trading context change or an explicit empty.
type CartEmptiedEvent struct {
	OrderNumber string    `json:"orderNumber"`
	EmptiedAt   time.Time `json:"emptiedAt"`
}

func (e *CartEmptiedEvent) EventType() string { return "distribution.order.cart_emptied" }
func (e *CartEmptiedEvent) AggregateID() string { return e.OrderNumber }
func (e *CartEmptiedEvent) OccurredAt() time.Time { return e.EmptiedAt }

// NewCartEmptiedEvent creates a CartEmptiedEvent
func NewCartEmptiedEvent(o *Order) *CartEmptiedEvent {
	return &CartEmptiedEvent{
		OrderNumber: o.OrderNumber,
		EmptiedAt:   time.Now().UTC(),
	}
}

// DistributionChargesUpdatedEvent is emitted after the fee adjustments for
// an order have been recomputed.
type DistributionChargesUpdatedEvent struct {
	OrderNumber  string    `json:"orderNumber"`
	OrderCycleID string    `json:"orderCycleId"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (e *DistributionChargesUpdatedEvent) EventType() string {
	return "distribution.order.charges_updated"
}
func (e *DistributionChargesUpdatedEvent) AggregateID() string { return e.OrderNumber }
func (e *DistributionChargesUpdatedEvent) OccurredAt() time.Time { return e.UpdatedAt }

// NewDistributionChargesUpdatedEvent creates a DistributionChargesUpdatedEvent
func NewDistributionChargesUpdatedEvent(o *Order) *DistributionChargesUpdatedEvent {
	return &DistributionChargesUpdatedEvent{
		OrderNumber:  o.OrderNumber,
		OrderCycleID: o.OrderCycleID,
		UpdatedAt:    time.Now().UTC(),
	}
}
