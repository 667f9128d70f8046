package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jimacoff/openfoodnetwork/internal/domain"
	"github.com/jimacoff/openfoodnetwork/internal/infrastructure/messaging"
	sharedmongo "github.com/jimacoff/openfoodnetwork/pkg/mongodb"
	"github.com/jimacoff/openfoodnetwork/pkg/outbox"
	outboxMongo "github.com/jimacoff/openfoodnetwork/pkg/outbox/mongodb"
)

// OrderRepository implements domain.OrderRepository. The whole aggregate is
// written as one document, so a fee recompute's clear and recreate commit
// together. Pending domain events are written to the outbox in the same
// transaction as the aggregate.
type OrderRepository struct {
	db         *mongo.Database
	collection *mongo.Collection
	outboxRepo *outboxMongo.OutboxRepository
	envelopes  *messaging.EnvelopeFactory
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *mongo.Database, envelopes *messaging.EnvelopeFactory) *OrderRepository {
	collection := db.Collection("orders")
	outboxRepo := outboxMongo.NewOutboxRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderNumber", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "customerId", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "orderCycleId", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "distributorId", Value: 1}},
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)
	_ = outboxRepo.EnsureIndexes(ctx)

	return &OrderRepository{
		db:         db,
		collection: collection,
		outboxRepo: outboxRepo,
		envelopes:  envelopes,
	}
}

// GetOutboxRepository exposes the outbox repository for the relay publisher.
func (r *OrderRepository) GetOutboxRepository() outbox.Repository {
	return r.outboxRepo
}

// Save persists the full order aggregate. Pending domain events are written
// to the outbox in the same transaction, so an order change and its events
// commit or roll back together. Saves with no pending events skip the
// transaction.
func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	opts := options.Update().SetUpsert(true)
	filter := sharedmongo.BuildFilter("orderNumber", order.OrderNumber)
	update := sharedmongo.BuildUpsert(order)

	events := order.DomainEvents()
	if len(events) == 0 {
		_, err := r.collection.UpdateOne(ctx, filter, update, opts)
		return err
	}

	outboxEvents := make([]*outbox.OutboxEvent, 0, len(events))
	for _, event := range events {
		outboxEvent, err := outbox.NewOutboxEvent(
			order.OrderNumber,
			"Order",
			r.envelopes.Topic(),
			r.envelopes.Envelope(event),
		)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, outboxEvent)
	}

	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if _, err := r.collection.UpdateOne(sessCtx, filter, update, opts); err != nil {
			return nil, fmt.Errorf("failed to save order: %w", err)
		}
		if err := r.outboxRepo.SaveAll(sessCtx, outboxEvents); err != nil {
			return nil, fmt.Errorf("failed to save outbox events: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	order.ClearDomainEvents()
	return nil
}

// FindByNumber retrieves an order by its order number
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	var order domain.Order
	err := r.collection.FindOne(ctx, sharedmongo.BuildFilter("orderNumber", orderNumber)).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// FindByCustomerID retrieves orders for a customer
func (r *OrderRepository) FindByCustomerID(ctx context.Context, customerID string, pagination domain.Pagination) ([]*domain.Order, error) {
	filter := sharedmongo.BuildFilter("customerId", customerID)
	opts := options.Find().
		SetSort(sharedmongo.SortDescending("createdAt")).
		SetSkip(pagination.Skip()).
		SetLimit(pagination.Limit())

	return r.findMany(ctx, filter, opts)
}

// FindByOrderCycle retrieves orders placed through an order cycle
func (r *OrderRepository) FindByOrderCycle(ctx context.Context, orderCycleID string, pagination domain.Pagination) ([]*domain.Order, error) {
	filter := sharedmongo.BuildFilter("orderCycleId", orderCycleID)
	opts := options.Find().
		SetSort(sharedmongo.SortDescending("createdAt")).
		SetSkip(pagination.Skip()).
		SetLimit(pagination.Limit())

	return r.findMany(ctx, filter, opts)
}

// Delete removes an order
func (r *OrderRepository) Delete(ctx context.Context, orderNumber string) error {
	_, err := r.collection.DeleteOne(ctx, sharedmongo.BuildFilter("orderNumber", orderNumber))
	return err
}

func (r *OrderRepository) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Order, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []*domain.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// DistributorRepository implements domain.DistributorRepository
type DistributorRepository struct {
	collection *mongo.Collection
}

// NewDistributorRepository creates a new DistributorRepository
func NewDistributorRepository(db *mongo.Database) *DistributorRepository {
	collection := db.Collection("distributors")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "distributorId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &DistributorRepository{collection: collection}
}

// Save persists a distributor
func (r *DistributorRepository) Save(ctx context.Context, distributor *domain.Distributor) error {
	opts := options.Update().SetUpsert(true)
	filter := sharedmongo.BuildFilter("distributorId", distributor.DistributorID)
	update := sharedmongo.BuildUpsert(distributor)

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// FindByID retrieves a distributor by its ID
func (r *DistributorRepository) FindByID(ctx context.Context, distributorID string) (*domain.Distributor, error) {
	var distributor domain.Distributor
	err := r.collection.FindOne(ctx, sharedmongo.BuildFilter("distributorId", distributorID)).Decode(&distributor)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &distributor, nil
}

// OrderCycleRepository implements domain.OrderCycleRepository
type OrderCycleRepository struct {
	collection *mongo.Collection
}

// NewOrderCycleRepository creates a new OrderCycleRepository
func NewOrderCycleRepository(db *mongo.Database) *OrderCycleRepository {
	collection := db.Collection("order_cycles")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderCycleId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "opensAt", Value: 1},
				{Key: "closesAt", Value: 1},
			},
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)

	return &OrderCycleRepository{collection: collection}
}

// Save persists an order cycle
func (r *OrderCycleRepository) Save(ctx context.Context, cycle *domain.OrderCycle) error {
	opts := options.Update().SetUpsert(true)
	filter := sharedmongo.BuildFilter("orderCycleId", cycle.OrderCycleID)
	update := sharedmongo.BuildUpsert(cycle)

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// FindByID retrieves an order cycle by its ID
func (r *OrderCycleRepository) FindByID(ctx context.Context, orderCycleID string) (*domain.OrderCycle, error) {
	var cycle domain.OrderCycle
	err := r.collection.FindOne(ctx, sharedmongo.BuildFilter("orderCycleId", orderCycleID)).Decode(&cycle)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &cycle, nil
}

// EnterpriseFeeRepository implements domain.EnterpriseFeeRepository
type EnterpriseFeeRepository struct {
	collection *mongo.Collection
}

// NewEnterpriseFeeRepository creates a new EnterpriseFeeRepository
func NewEnterpriseFeeRepository(db *mongo.Database) *EnterpriseFeeRepository {
	collection := db.Collection("enterprise_fees")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "feeId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "enterpriseId", Value: 1}},
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)

	return &EnterpriseFeeRepository{collection: collection}
}

// Save persists a fee rule
func (r *EnterpriseFeeRepository) Save(ctx context.Context, fee *domain.EnterpriseFee) error {
	opts := options.Update().SetUpsert(true)
	filter := sharedmongo.BuildFilter("feeId", fee.FeeID)
	update := sharedmongo.BuildUpsert(fee)

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// FindByIDs retrieves the fee rules for a set of fee IDs, preserving the
// requested order
func (r *EnterpriseFeeRepository) FindByIDs(ctx context.Context, feeIDs []string) ([]domain.EnterpriseFee, error) {
	if len(feeIDs) == 0 {
		return nil, nil
	}

	cursor, err := r.collection.Find(ctx, sharedmongo.BuildFilter("feeId", bson.M{"$in": feeIDs}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var fees []domain.EnterpriseFee
	if err := cursor.All(ctx, &fees); err != nil {
		return nil, err
	}

	byID := make(map[string]domain.EnterpriseFee, len(fees))
	for _, f := range fees {
		byID[f.FeeID] = f
	}

	ordered := make([]domain.EnterpriseFee, 0, len(fees))
	for _, id := range feeIDs {
		if f, ok := byID[id]; ok {
			ordered = append(ordered, f)
		}
	}
	return ordered, nil
}
