package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExchangeDirection indicates which way products flow through an exchange.
type ExchangeDirection string

const (
	ExchangeIncoming ExchangeDirection = "incoming"
	ExchangeOutgoing ExchangeDirection = "outgoing"
)

// IsValid checks if the direction is valid
func (d ExchangeDirection) IsValid() bool {
	return d == ExchangeIncoming || d == ExchangeOutgoing
}

// Distributor is an enterprise capable of fulfilling orders. It supplies a
// set of variants directly and may receive more through order cycles it
// participates in.
type Distributor struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DistributorID string             `bson:"distributorId" json:"distributorId"`
	Name          string             `bson:"name" json:"name"`
	VariantIDs    []string           `bson:"variantIds" json:"variantIds"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
}

// Supplies reports whether the distributor can supply a variant directly,
// outside of any order cycle.
func (d *Distributor) Supplies(variantID string) bool {
	for _, v := range d.VariantIDs {
		if v == variantID {
			return true
		}
	}
	return false
}

// Exchange is one directional leg of an order cycle: a sender, a receiver,
// and the variants traded between them.
type Exchange struct {
	SenderID   string            `bson:"senderId" json:"senderId"`
	ReceiverID string            `bson:"receiverId" json:"receiverId"`
	Direction  ExchangeDirection `bson:"direction" json:"direction"`
	VariantIDs []string          `bson:"variantIds" json:"variantIds"`
}

// HasVariant reports whether the exchange trades the given variant.
func (e *Exchange) HasVariant(variantID string) bool {
	for _, v := range e.VariantIDs {
		if v == variantID {
			return true
		}
	}
	return false
}

// OrderCycle is a time-boxed trading window linking a coordinator to
// distributors through directional exchanges. The fees attached to a cycle
// form the fee schedule for orders placed through it.
type OrderCycle struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderCycleID string             `bson:"orderCycleId" json:"orderCycleId"`
	Name         string             `bson:"name" json:"name"`
	Coordinator  string             `bson:"coordinator" json:"coordinator"`
	OpensAt      time.Time          `bson:"opensAt" json:"opensAt"`
	ClosesAt     time.Time          `bson:"closesAt" json:"closesAt"`
	Exchanges    []Exchange         `bson:"exchanges" json:"exchanges"`
	FeeIDs       []string           `bson:"feeIds" json:"feeIds"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// HasOutgoingExchangeTo reports whether the cycle distributes to the given
// distributor, i.e. an outgoing exchange to it exists.
func (oc *OrderCycle) HasOutgoingExchangeTo(distributorID string) bool {
	for i := range oc.Exchanges {
		e := &oc.Exchanges[i]
		if e.Direction == ExchangeOutgoing && e.ReceiverID == distributorID {
			return true
		}
	}
	return false
}

// Variants returns the union of variants available through all outgoing
// exchanges of the cycle, deduplicated, in first-seen order.
func (oc *OrderCycle) Variants() []string {
	seen := make(map[string]bool)
	var variants []string
	for i := range oc.Exchanges {
		e := &oc.Exchanges[i]
		if e.Direction != ExchangeOutgoing {
			continue
		}
		for _, v := range e.VariantIDs {
			if !seen[v] {
				seen[v] = true
				variants = append(variants, v)
			}
		}
	}
	return variants
}

// ProvidesVariant reports whether the variant is offered through any
// outgoing exchange of the cycle.
func (oc *OrderCycle) ProvidesVariant(variantID string) bool {
	for i := range oc.Exchanges {
		e := &oc.Exchanges[i]
		if e.Direction == ExchangeOutgoing && e.HasVariant(variantID) {
			return true
		}
	}
	return false
}

// VariantsDistributedTo returns the variants the cycle offers to one
// specific distributor.
func (oc *OrderCycle) VariantsDistributedTo(distributorID string) []string {
	seen := make(map[string]bool)
	var variants []string
	for i := range oc.Exchanges {
		e := &oc.Exchanges[i]
		if e.Direction != ExchangeOutgoing || e.ReceiverID != distributorID {
			continue
		}
		for _, v := range e.VariantIDs {
			if !seen[v] {
				seen[v] = true
				variants = append(variants, v)
			}
		}
	}
	return variants
}

// OpenAt reports whether the trading window is open at the given time.
func (oc *OrderCycle) OpenAt(t time.Time) bool {
	return !t.Before(oc.OpensAt) && t.Before(oc.ClosesAt)
}
