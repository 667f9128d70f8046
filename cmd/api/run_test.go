package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/jimacoff/openfoodnetwork/internal/domain"
	"github.com/jimacoff/openfoodnetwork/internal/infrastructure/messaging"
	"github.com/jimacoff/openfoodnetwork/pkg/kafka"
	"github.com/jimacoff/openfoodnetwork/pkg/logging"
	"github.com/jimacoff/openfoodnetwork/pkg/metrics"
	"github.com/jimacoff/openfoodnetwork/pkg/mongodb"
	"github.com/jimacoff/openfoodnetwork/pkg/outbox"
	"github.com/jimacoff/openfoodnetwork/pkg/tracing"
)

type fakeMongo struct{}

func (f *fakeMongo) Database() *mongo.Database       { return nil }
func (f *fakeMongo) Close(context.Context) error     { return nil }
func (f *fakeMongo) HealthCheck(context.Context) error { return nil }

type fakeProducer struct{}

func (f *fakeProducer) PublishEvent(context.Context, string, *kafka.Envelope) error { return nil }
func (f *fakeProducer) Close() error                                                { return nil }

type fakeRelay struct {
	startErr error
	stopped  bool
}

func (f *fakeRelay) Start(context.Context) error { return f.startErr }

func (f *fakeRelay) Stop() error {
	f.stopped = true
	return nil
}

type fakeOrderRepo struct{}

func (f *fakeOrderRepo) Save(context.Context, *domain.Order) error { return nil }
func (f *fakeOrderRepo) FindByNumber(context.Context, string) (*domain.Order, error) {
	return nil, nil
}
func (f *fakeOrderRepo) FindByCustomerID(context.Context, string, domain.Pagination) ([]*domain.Order, error) {
	return nil, nil
}
func (f *fakeOrderRepo) FindByOrderCycle(context.Context, string, domain.Pagination) ([]*domain.Order, error) {
	return nil, nil
}
func (f *fakeOrderRepo) Delete(context.Context, string) error { return nil }

type fakeDistributorRepo struct{}

func (f *fakeDistributorRepo) Save(context.Context, *domain.Distributor) error { return nil }
func (f *fakeDistributorRepo) FindByID(context.Context, string) (*domain.Distributor, error) {
	return nil, nil
}

type fakeCycleRepo struct{}

func (f *fakeCycleRepo) Save(context.Context, *domain.OrderCycle) error { return nil }
func (f *fakeCycleRepo) FindByID(context.Context, string) (*domain.OrderCycle, error) {
	return nil, nil
}

type fakeFeeRepo struct{}

func (f *fakeFeeRepo) Save(context.Context, *domain.EnterpriseFee) error { return nil }
func (f *fakeFeeRepo) FindByIDs(context.Context, []string) ([]domain.EnterpriseFee, error) {
	return nil, nil
}

type seams struct {
	mongo       func(context.Context, *mongodb.Config, *metrics.Metrics, *logging.Logger) (mongoClient, error)
	producer    func(*kafka.Config, *logging.Logger) eventProducer
	orders      func(*mongo.Database, *messaging.EnvelopeFactory) (domain.OrderRepository, outbox.Repository)
	relay       func(outbox.Repository, eventProducer, *logging.Logger, *metrics.Metrics) outboxPublisher
	distributor func(*mongo.Database) domain.DistributorRepository
	cycles      func(*mongo.Database) domain.OrderCycleRepository
	fees        func(*mongo.Database) domain.EnterpriseFeeRepository
	tracing     func(context.Context, *tracing.Config) (*tracing.TracerProvider, error)
	server      func(*http.Server) error
}

func saveSeams() seams {
	return seams{
		mongo:       newMongoClient,
		producer:    newKafkaProducer,
		orders:      newOrderRepository,
		relay:       newOutboxPublisher,
		distributor: newDistributorRepository,
		cycles:      newOrderCycleRepository,
		fees:        newEnterpriseFeeRepository,
		tracing:     initTracing,
		server:      startHTTPServer,
	}
}

func (s seams) restore() {
	newMongoClient = s.mongo
	newKafkaProducer = s.producer
	newOrderRepository = s.orders
	newOutboxPublisher = s.relay
	newDistributorRepository = s.distributor
	newOrderCycleRepository = s.cycles
	newEnterpriseFeeRepository = s.fees
	initTracing = s.tracing
	startHTTPServer = s.server
}

func stubSeams() {
	newMongoClient = func(context.Context, *mongodb.Config, *metrics.Metrics, *logging.Logger) (mongoClient, error) {
		return &fakeMongo{}, nil
	}
	newKafkaProducer = func(*kafka.Config, *logging.Logger) eventProducer {
		return &fakeProducer{}
	}
	newOrderRepository = func(*mongo.Database, *messaging.EnvelopeFactory) (domain.OrderRepository, outbox.Repository) {
		return &fakeOrderRepo{}, nil
	}
	newOutboxPublisher = func(outbox.Repository, eventProducer, *logging.Logger, *metrics.Metrics) outboxPublisher {
		return &fakeRelay{}
	}
	newDistributorRepository = func(*mongo.Database) domain.DistributorRepository {
		return &fakeDistributorRepo{}
	}
	newOrderCycleRepository = func(*mongo.Database) domain.OrderCycleRepository {
		return &fakeCycleRepo{}
	}
	newEnterpriseFeeRepository = func(*mongo.Database) domain.EnterpriseFeeRepository {
		return &fakeFeeRepo{}
	}
	initTracing = func(context.Context, *tracing.Config) (*tracing.TracerProvider, error) {
		return &tracing.TracerProvider{}, nil
	}
	startHTTPServer = func(*http.Server) error { return http.ErrServerClosed }
}

func TestRunSuccess(t *testing.T) {
	saved := saveSeams()
	defer saved.restore()
	stubSeams()

	signalCh := make(chan os.Signal, 1)
	signalCh <- os.Interrupt

	err := run(context.Background(), signalCh)
	require.NoError(t, err)
}

func TestRunTracingError(t *testing.T) {
	saved := saveSeams()
	defer saved.restore()
	stubSeams()

	initTracing = func(context.Context, *tracing.Config) (*tracing.TracerProvider, error) {
		return nil, errors.New("trace init failed")
	}

	signalCh := make(chan os.Signal, 1)
	signalCh <- os.Interrupt

	err := run(context.Background(), signalCh)
	require.NoError(t, err)
}

func TestRunMongoError(t *testing.T) {
	saved := saveSeams()
	defer saved.restore()
	stubSeams()

	newMongoClient = func(context.Context, *mongodb.Config, *metrics.Metrics, *logging.Logger) (mongoClient, error) {
		return nil, errors.New("mongo error")
	}

	signalCh := make(chan os.Signal, 1)
	signalCh <- os.Interrupt

	err := run(context.Background(), signalCh)
	assert.Error(t, err)
}

func TestRunOutboxStartError(t *testing.T) {
	saved := saveSeams()
	defer saved.restore()
	stubSeams()

	newOutboxPublisher = func(outbox.Repository, eventProducer, *logging.Logger, *metrics.Metrics) outboxPublisher {
		return &fakeRelay{startErr: errors.New("already running")}
	}

	signalCh := make(chan os.Signal, 1)
	signalCh <- os.Interrupt

	err := run(context.Background(), signalCh)
	assert.Error(t, err)
}

func TestRunConfigError(t *testing.T) {
	saved := saveSeams()
	defer saved.restore()
	stubSeams()

	t.Setenv("SHIPPING_TAX_RATE", "bogus")

	signalCh := make(chan os.Signal, 1)
	signalCh <- os.Interrupt

	err := run(context.Background(), signalCh)
	assert.Error(t, err)
}

func TestRunServerErrorLogged(t *testing.T) {
	saved := saveSeams()
	defer saved.restore()
	stubSeams()

	serverCalled := make(chan struct{})
	var serverOnce sync.Once
	// Server goroutines leaked by earlier tests can also invoke this seam,
	// so the close must be idempotent.
	startHTTPServer = func(*http.Server) error {
		serverOnce.Do(func() { close(serverCalled) })
		return errors.New("server failed")
	}

	signalCh := make(chan os.Signal, 1)
	go func() {
		<-serverCalled
		signalCh <- os.Interrupt
	}()

	err := run(context.Background(), signalCh)
	assert.NoError(t, err)
}
