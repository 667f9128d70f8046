package messaging

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jimacoff/openfoodnetwork/internal/domain"
	"github.com/jimacoff/openfoodnetwork/pkg/kafka"
)

// EnvelopeFactory wraps domain events in the wire envelope written to the
// outbox and later relayed to the order events topic.
type EnvelopeFactory struct {
	source string
	topic  string
}

// NewEnvelopeFactory creates an envelope factory for order distribution events
func NewEnvelopeFactory(serviceName string) *EnvelopeFactory {
	return &EnvelopeFactory{
		source: fmt.Sprintf("/%s", serviceName),
		topic:  kafka.Topics.OrderEvents,
	}
}

// Topic returns the topic distribution events are delivered to
func (f *EnvelopeFactory) Topic() string {
	return f.topic
}

// Envelope wraps a domain event, keyed by the order number so events for
// one order stay ordered within a partition
func (f *EnvelopeFactory) Envelope(event domain.DomainEvent) *kafka.Envelope {
	return &kafka.Envelope{
		ID:      uuid.New().String(),
		Type:    event.EventType(),
		Source:  f.source,
		Subject: event.AggregateID(),
		Time:    event.OccurredAt(),
		Data:    event,
	}
}
