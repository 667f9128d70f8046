package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jimacoff/openfoodnetwork/pkg/logging"
	"github.com/jimacoff/openfoodnetwork/pkg/resilience"
)

// CircuitBreakerProducer wraps Producer with circuit breaker protection so a
// broker outage degrades event publishing instead of request handling.
// Transient publish errors are retried with backoff; each attempt counts
// toward the breaker.
type CircuitBreakerProducer struct {
	producer       *Producer
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    *resilience.RetryConfig
	logger         *logging.Logger
}

// NewCircuitBreakerProducer creates a circuit breaker protected producer
func NewCircuitBreakerProducer(producer *Producer, logger *logging.Logger) *CircuitBreakerProducer {
	config := &resilience.CircuitBreakerConfig{
		Name:                  "kafka-producer",
		MaxRequests:           5,
		Interval:              60 * time.Second,
		Timeout:               30 * time.Second,
		FailureThreshold:      5,
		FailureRatioThreshold: 0.5,
		MinRequestsToTrip:     10,
	}

	var slogLogger *slog.Logger
	if logger != nil && logger.Logger != nil {
		slogLogger = logger.Logger
	} else {
		slogLogger = slog.Default()
	}

	circuitBreaker := resilience.NewCircuitBreaker(config, slogLogger)

	retryConfig := resilience.DefaultRetryConfig()
	retryConfig.RetryableErrors = func(err error) bool {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		// Once the breaker opens, further attempts fail fast anyway.
		return circuitBreaker.State() == gobreaker.StateClosed
	}

	return &CircuitBreakerProducer{
		producer:       producer,
		circuitBreaker: circuitBreaker,
		retryConfig:    retryConfig,
		logger:         logger,
	}
}

// PublishEvent publishes through the circuit breaker, retrying transient
// broker errors
func (p *CircuitBreakerProducer) PublishEvent(ctx context.Context, topic string, envelope *Envelope) error {
	return resilience.Retry(ctx, p.retryConfig, func() error {
		_, err := p.circuitBreaker.Execute(ctx, func() (interface{}, error) {
			return nil, p.producer.PublishEvent(ctx, topic, envelope)
		})
		return err
	})
}

// Close closes the underlying producer
func (p *CircuitBreakerProducer) Close() error {
	return p.producer.Close()
}
