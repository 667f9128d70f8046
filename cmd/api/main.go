package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/yaml.v3"

	"github.com/jimacoff/openfoodnetwork/pkg/kafka"
	"github.com/jimacoff/openfoodnetwork/pkg/logging"
	"github.com/jimacoff/openfoodnetwork/pkg/metrics"
	"github.com/jimacoff/openfoodnetwork/pkg/middleware"
	"github.com/jimacoff/openfoodnetwork/pkg/mongodb"
	"github.com/jimacoff/openfoodnetwork/pkg/outbox"
	"github.com/jimacoff/openfoodnetwork/pkg/tracing"

	"github.com/jimacoff/openfoodnetwork/internal/api/handlers"
	"github.com/jimacoff/openfoodnetwork/internal/application"
	"github.com/jimacoff/openfoodnetwork/internal/domain"
	"github.com/jimacoff/openfoodnetwork/internal/infrastructure/messaging"
	mongoRepo "github.com/jimacoff/openfoodnetwork/internal/infrastructure/mongodb"
)

const serviceName = "distribution-service"

type mongoClient interface {
	Database() *mongo.Database
	Close(context.Context) error
	HealthCheck(context.Context) error
}

type eventProducer interface {
	PublishEvent(ctx context.Context, topic string, envelope *kafka.Envelope) error
	Close() error
}

type outboxPublisher interface {
	Start(ctx context.Context) error
	Stop() error
}

var newMongoClient = func(ctx context.Context, cfg *mongodb.Config, m *metrics.Metrics, logger *logging.Logger) (mongoClient, error) {
	return mongodb.NewProductionClient(ctx, cfg, m, logger)
}

var newKafkaProducer = func(cfg *kafka.Config, logger *logging.Logger) eventProducer {
	return kafka.NewCircuitBreakerProducer(kafka.NewProducer(cfg), logger)
}

var newOrderRepository = func(db *mongo.Database, envelopes *messaging.EnvelopeFactory) (domain.OrderRepository, outbox.Repository) {
	repo := mongoRepo.NewOrderRepository(db, envelopes)
	return repo, repo.GetOutboxRepository()
}

var newOutboxPublisher = func(repo outbox.Repository, producer eventProducer, logger *logging.Logger, m *metrics.Metrics) outboxPublisher {
	return outbox.NewPublisher(repo, producer, logger, m, &outbox.PublisherConfig{
		PollInterval: 1 * time.Second,
		BatchSize:    100,
	})
}

var newDistributorRepository = func(db *mongo.Database) domain.DistributorRepository {
	return mongoRepo.NewDistributorRepository(db)
}

var newOrderCycleRepository = func(db *mongo.Database) domain.OrderCycleRepository {
	return mongoRepo.NewOrderCycleRepository(db)
}

var newEnterpriseFeeRepository = func(db *mongo.Database) domain.EnterpriseFeeRepository {
	return mongoRepo.NewEnterpriseFeeRepository(db)
}

var newDistributionService = application.NewDistributionService

var newOrderHandler = handlers.NewOrderHandler

var newMetrics = metrics.New

var initTracing = tracing.Initialize

var startHTTPServer = func(srv *http.Server) error {
	return srv.ListenAndServe()
}

func main() {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	if err := run(context.Background(), signalCh); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, signalCh <-chan os.Signal) error {
	// Setup enhanced logger
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting distribution-service API")

	// Load configuration
	config, err := loadConfig()
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		return err
	}

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := initTracing(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	metricsConfig := metrics.DefaultConfig(serviceName)
	m := newMetrics(metricsConfig)
	logger.Info("Metrics initialized")

	// Initialize MongoDB with instrumentation and circuit breaker
	mongoConn, err := newMongoClient(ctx, config.MongoDB, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		return err
	}
	defer mongoConn.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	// Initialize Kafka producer with circuit breaker
	producer := newKafkaProducer(config.Kafka, logger)
	defer producer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	// Initialize envelope factory for outgoing events
	envelopes := messaging.NewEnvelopeFactory(serviceName)

	// Initialize repositories
	db := mongoConn.Database()
	orderRepo, outboxRepo := newOrderRepository(db, envelopes)
	distributorRepo := newDistributorRepository(db)
	cycleRepo := newOrderCycleRepository(db)
	feeRepo := newEnterpriseFeeRepository(db)

	// Initialize and start outbox publisher
	relay := newOutboxPublisher(outboxRepo, producer, logger, m)
	if err := relay.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		return err
	}
	defer relay.Stop()
	logger.Info("Outbox publisher started")

	// Initialize business metrics helper
	businessMetrics := middleware.NewBusinessMetrics(m)

	// Initialize application service
	distributionService := newDistributionService(
		orderRepo,
		distributorRepo,
		cycleRepo,
		feeRepo,
		businessMetrics,
		config.Tax,
		logger,
	)

	// Initialize handlers
	orderHandler := newOrderHandler(distributionService, logger)

	// Setup Gin router with middleware
	router := gin.New()

	// Apply standard middleware
	middlewareConfig := middleware.DefaultConfig(serviceName, logger.Logger)
	middleware.Setup(router, middlewareConfig)

	// Add metrics middleware
	router.Use(middleware.MetricsMiddleware(m))

	// Add tracing middleware
	router.Use(middleware.SimpleTracingMiddleware(serviceName))

	// Handle 404 and 405 errors
	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	// Health check endpoints
	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoConn.HealthCheck(ctx)
	}))

	// Metrics endpoint
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		orders := v1.Group("/orders")
		{
			orders.POST("", orderHandler.CreateOrder)
			orders.GET("/:orderNumber", orderHandler.GetOrder)
			orders.PUT("/:orderNumber/distributor", orderHandler.SetDistributor)
			orders.PUT("/:orderNumber/order-cycle", orderHandler.SetOrderCycle)
			orders.POST("/:orderNumber/line-items", orderHandler.AddLineItem)
			orders.PUT("/:orderNumber/line-items/:variantId", orderHandler.SetVariantAttributes)
			orders.DELETE("/:orderNumber/line-items/:variantId", orderHandler.RemoveLineItem)
			orders.POST("/:orderNumber/empty", orderHandler.EmptyOrder)
			orders.POST("/:orderNumber/recalculate", orderHandler.RecalculateFees)
			orders.PUT("/:orderNumber/shipment", orderHandler.RecordShipment)
			orders.GET("/:orderNumber/tax-summary", orderHandler.GetTaxSummary)
		}

		customers := v1.Group("/customers")
		{
			customers.GET("/:customerId/orders", orderHandler.ListOrders)
		}
	}

	// Start server
	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := startHTTPServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	// Wait for interrupt signal
	<-signalCh
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
	return nil
}

// Config holds application configuration
type Config struct {
	ServerAddr string
	MongoDB    *mongodb.Config
	Kafka      *kafka.Config
	Tax        domain.TaxPolicy
}

// fileConfig mirrors Config for the YAML configuration file
type fileConfig struct {
	ServerAddr string `yaml:"server_addr"`
	MongoDB    struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongodb"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
	} `yaml:"kafka"`
	Tax domain.TaxPolicy `yaml:"tax"`
}

// loadConfig reads the optional YAML config file, then applies environment
// overrides on top of it.
func loadConfig() (*Config, error) {
	config := &Config{
		ServerAddr: ":8018",
		MongoDB:    mongodb.DefaultConfig(),
		Kafka:      kafka.DefaultConfig(),
	}
	config.Kafka.ClientID = serviceName

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, err
		}
		if fc.ServerAddr != "" {
			config.ServerAddr = fc.ServerAddr
		}
		if fc.MongoDB.URI != "" {
			config.MongoDB.URI = fc.MongoDB.URI
		}
		if fc.MongoDB.Database != "" {
			config.MongoDB.Database = fc.MongoDB.Database
		}
		if len(fc.Kafka.Brokers) > 0 {
			config.Kafka.Brokers = fc.Kafka.Brokers
		}
		config.Tax = fc.Tax
	}

	config.ServerAddr = getEnv("SERVER_ADDR", config.ServerAddr)
	config.MongoDB.URI = getEnv("MONGODB_URI", config.MongoDB.URI)
	config.MongoDB.Database = getEnv("MONGODB_DATABASE", config.MongoDB.Database)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		config.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if rate := os.Getenv("SHIPPING_TAX_RATE"); rate != "" {
		parsed, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return nil, err
		}
		config.Tax.ShippingTaxRate = parsed
	}
	if inclusive := os.Getenv("SHIPPING_INCLUDES_TAX"); inclusive != "" {
		config.Tax.ShippingIncludesTax = inclusive == "true"
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
