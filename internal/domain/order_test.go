package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDistributor(id string, variantIDs ...string) *Distributor {
	return &Distributor{
		DistributorID: id,
		Name:          "Distributor " + id,
		VariantIDs:    variantIDs,
		CreatedAt:     time.Now().UTC(),
	}
}

func testOrderCycle(id string, exchanges ...Exchange) *OrderCycle {
	now := time.Now().UTC()
	return &OrderCycle{
		OrderCycleID: id,
		Name:         "Cycle " + id,
		Coordinator:  "ENT-COORD",
		OpensAt:      now.AddDate(0, 0, -1),
		ClosesAt:     now.AddDate(0, 0, 6),
		Exchanges:    exchanges,
		CreatedAt:    now,
	}
}

func outgoing(receiverID string, variantIDs ...string) Exchange {
	return Exchange{
		SenderID:   "ENT-COORD",
		ReceiverID: receiverID,
		Direction:  ExchangeOutgoing,
		VariantIDs: variantIDs,
	}
}

// TestNewOrder tests order creation
func TestNewOrder(t *testing.T) {
	order := NewOrder("CUST-001")

	require.NotNil(t, order)
	assert.NotEmpty(t, order.OrderNumber)
	assert.Equal(t, "CUST-001", order.CustomerID)
	assert.Empty(t, order.LineItems)
	assert.Empty(t, order.Adjustments)
	assert.Empty(t, order.Payments)
	assert.False(t, order.HasDistributor())
	assert.False(t, order.HasOrderCycle())
	assert.NotZero(t, order.CreatedAt)
}

// TestAssignDistributor tests distributor assignment and the order cycle
// clearing side effect
func TestAssignDistributor(t *testing.T) {
	tests := []struct {
		name              string
		initialCycle      string
		cycle             *OrderCycle
		distributor       *Distributor
		wantDistributor   string
		wantOrderCycle    string
	}{
		{
			name:            "assigns distributor with no cycle set",
			distributor:     testDistributor("D1", "V1"),
			wantDistributor: "D1",
		},
		{
			name:            "keeps cycle that distributes to the new distributor",
			initialCycle:    "OC1",
			cycle:           testOrderCycle("OC1", outgoing("D1", "V1")),
			distributor:     testDistributor("D1"),
			wantDistributor: "D1",
			wantOrderCycle:  "OC1",
		},
		{
			name:            "clears cycle with no outgoing exchange to the new distributor",
			initialCycle:    "OC1",
			cycle:           testOrderCycle("OC1", outgoing("D2", "V1")),
			distributor:     testDistributor("D1"),
			wantDistributor: "D1",
			wantOrderCycle:  "",
		},
		{
			name:           "clearing the distributor leaves the cycle untouched",
			initialCycle:   "OC1",
			cycle:          testOrderCycle("OC1", outgoing("D2", "V1")),
			distributor:    nil,
			wantOrderCycle: "OC1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := NewOrder("CUST-001")
			order.OrderCycleID = tt.initialCycle

			order.AssignDistributor(tt.distributor, tt.cycle)

			assert.Equal(t, tt.wantDistributor, order.DistributorID)
			assert.Equal(t, tt.wantOrderCycle, order.OrderCycleID)
		})
	}
}

// TestAssignOrderCycle tests the cycle change semantics: same-cycle no-op,
// cart emptying, and distributor clearing
func TestAssignOrderCycle(t *testing.T) {
	t.Run("same cycle is a no-op and keeps the cart", func(t *testing.T) {
		order := NewOrder("CUST-001")
		order.OrderCycleID = "OC1"
		require.NoError(t, order.AddLineItem("V1", 2, nil, 5.00))
		order.Payments = append(order.Payments, Payment{PaymentID: "PAY-1", Amount: 10})

		changed := order.AssignOrderCycle(testOrderCycle("OC1", outgoing("D1", "V1")), nil)

		assert.False(t, changed)
		assert.Len(t, order.LineItems, 1)
		assert.Len(t, order.Payments, 1)
		assert.Equal(t, "OC1", order.OrderCycleID)
	})

	t.Run("changing cycle empties the cart before adoption", func(t *testing.T) {
		order := NewOrder("CUST-001")
		order.OrderCycleID = "OC1"
		order.ShippingMethodID = "SM-1"
		require.NoError(t, order.AddLineItem("V1", 2, nil, 5.00))
		order.Payments = append(order.Payments, Payment{PaymentID: "PAY-1", Amount: 10})

		changed := order.AssignOrderCycle(testOrderCycle("OC2", outgoing("D1", "V1")), nil)

		assert.True(t, changed)
		assert.Equal(t, "OC2", order.OrderCycleID)
		assert.Empty(t, order.LineItems)
		assert.Empty(t, order.Payments)
		assert.Empty(t, order.ShippingMethodID)
	})

	t.Run("clears incompatible distributor", func(t *testing.T) {
		order := NewOrder("CUST-001")
		order.DistributorID = "D1"

		order.AssignOrderCycle(testOrderCycle("OC1", outgoing("D2", "V1")), testDistributor("D1"))

		assert.Equal(t, "OC1", order.OrderCycleID)
		assert.Empty(t, order.DistributorID)
	})

	t.Run("keeps distributor the cycle distributes to", func(t *testing.T) {
		order := NewOrder("CUST-001")
		order.DistributorID = "D1"

		order.AssignOrderCycle(testOrderCycle("OC1", outgoing("D1", "V1")), testDistributor("D1"))

		assert.Equal(t, "OC1", order.OrderCycleID)
		assert.Equal(t, "D1", order.DistributorID)
	})

	t.Run("clearing the cycle leaves the distributor untouched", func(t *testing.T) {
		order := NewOrder("CUST-001")
		order.DistributorID = "D1"
		order.OrderCycleID = "OC1"
		require.NoError(t, order.AddLineItem("V1", 1, nil, 5.00))

		changed := order.AssignOrderCycle(nil, testDistributor("D1"))

		assert.True(t, changed)
		assert.Empty(t, order.OrderCycleID)
		assert.Equal(t, "D1", order.DistributorID)
		assert.Empty(t, order.LineItems)
	})
}

// TestEmpty tests cart emptying and its idempotence
func TestEmpty(t *testing.T) {
	order := NewOrder("CUST-001")
	require.NoError(t, order.AddLineItem("V1", 2, nil, 5.00))
	order.ShippingMethodID = "SM-1"
	order.Payments = append(order.Payments, Payment{PaymentID: "PAY-1", Amount: 10})

	order.Empty()

	assert.Empty(t, order.LineItems)
	assert.Empty(t, order.Payments)
	assert.Empty(t, order.ShippingMethodID)

	// Idempotent: emptying again yields the same observable state
	order.Empty()

	assert.Empty(t, order.LineItems)
	assert.Empty(t, order.Payments)
	assert.Empty(t, order.ShippingMethodID)
}

// TestValidateDistribution tests cart-vs-channel validation
func TestValidateDistribution(t *testing.T) {
	tests := []struct {
		name        string
		variants    []string
		distributor *Distributor
		cycle       *OrderCycle
		wantErr     error
	}{
		{
			name:        "empty cart is always valid",
			distributor: testDistributor("D1"),
			wantErr:     nil,
		},
		{
			name:        "variant supplied directly by the distributor",
			variants:    []string{"V1"},
			distributor: testDistributor("D1", "V1"),
			wantErr:     nil,
		},
		{
			name:        "variant distributed through the cycle to the distributor",
			variants:    []string{"V1"},
			distributor: testDistributor("D1"),
			cycle:       testOrderCycle("OC1", outgoing("D1", "V1")),
			wantErr:     nil,
		},
		{
			name:        "variant offered by the cycle to a different distributor",
			variants:    []string{"V1"},
			distributor: testDistributor("D1"),
			cycle:       testOrderCycle("OC1", outgoing("D2", "V1")),
			wantErr:     ErrCannotSupplyProducts,
		},
		{
			name:        "variant obtainable from neither source",
			variants:    []string{"V1", "V9"},
			distributor: testDistributor("D1", "V1"),
			cycle:       testOrderCycle("OC1", outgoing("D1", "V1")),
			wantErr:     ErrCannotSupplyProducts,
		},
		{
			name:     "no distributor with items in the cart",
			variants: []string{"V1"},
			wantErr:  ErrCannotSupplyProducts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := NewOrder("CUST-001")
			for _, v := range tt.variants {
				require.NoError(t, order.AddLineItem(v, 1, nil, 3.50))
			}

			err := order.ValidateDistribution(tt.distributor, tt.cycle)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.EqualError(t, err, "Distributor or order cycle cannot supply the products in your cart")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestAddLineItem tests cart line addition and merging
func TestAddLineItem(t *testing.T) {
	order := NewOrder("CUST-001")

	require.NoError(t, order.AddLineItem("V1", 2, nil, 5.00))
	require.NoError(t, order.AddLineItem("V2", 1, nil, 3.00))
	require.NoError(t, order.AddLineItem("V1", 3, nil, 5.00))

	require.Len(t, order.LineItems, 2)
	assert.Equal(t, 5, order.LineItems[0].Quantity)
	assert.Equal(t, 13.00, order.ItemTotal())
	assert.Equal(t, 6, order.ItemCount())

	assert.ErrorIs(t, order.AddLineItem("", 1, nil, 1.00), ErrVariantRequired)
	assert.ErrorIs(t, order.AddLineItem("V3", 0, nil, 1.00), ErrInvalidQuantity)
}

// TestSetVariantAttributes tests the silent no-op contract for absent
// targets
func TestSetVariantAttributes(t *testing.T) {
	order := NewOrder("CUST-001")
	require.NoError(t, order.AddLineItem("V1", 2, nil, 5.00))

	max := 10
	updated := order.SetVariantAttributes("V1", 4, &max)

	assert.True(t, updated)
	assert.Equal(t, 4, order.LineItems[0].Quantity)
	require.NotNil(t, order.LineItems[0].MaxQuantity)
	assert.Equal(t, 10, *order.LineItems[0].MaxQuantity)

	// A variant not in the order mutates nothing and reports no error
	updated = order.SetVariantAttributes("V9", 3, nil)

	assert.False(t, updated)
	assert.Len(t, order.LineItems, 1)
	assert.Equal(t, 4, order.LineItems[0].Quantity)
}

// TestRemoveLineItem tests line item removal
func TestRemoveLineItem(t *testing.T) {
	order := NewOrder("CUST-001")
	require.NoError(t, order.AddLineItem("V1", 2, nil, 5.00))
	require.NoError(t, order.AddLineItem("V2", 1, nil, 3.00))

	assert.True(t, order.RemoveLineItem("V1"))
	assert.False(t, order.RemoveLineItem("V1"))
	require.Len(t, order.LineItems, 1)
	assert.Equal(t, "V2", order.LineItems[0].VariantID)
}

// TestDomainEvents tests event accumulation on distribution changes
func TestDomainEvents(t *testing.T) {
	order := NewOrder("CUST-001")
	order.ClearDomainEvents()

	order.AssignDistributor(testDistributor("D1"), nil)
	require.Len(t, order.DomainEvents(), 1)
	assert.Equal(t, "distribution.order.distributor_changed", order.DomainEvents()[0].EventType())

	order.ClearDomainEvents()
	order.AssignOrderCycle(testOrderCycle("OC1", outgoing("D1", "V1")), testDistributor("D1"))
	types := make([]string, 0)
	for _, e := range order.DomainEvents() {
		types = append(types, e.EventType())
	}
	assert.Contains(t, types, "distribution.order.order_cycle_changed")
}
