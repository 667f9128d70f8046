package outbox

import (
	"encoding/json"
	"time"

	"github.com/jimacoff/openfoodnetwork/pkg/kafka"
)

// DefaultMaxRetries bounds delivery attempts for a single outbox event.
const DefaultMaxRetries = 10

// OutboxEvent is an event stored alongside the aggregate for reliable
// delivery. The payload is the serialized Kafka envelope, written in the
// same transaction as the aggregate and relayed by the Publisher.
type OutboxEvent struct {
	ID            string          `bson:"_id" json:"id"`
	AggregateID   string          `bson:"aggregateId" json:"aggregateId"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType"`
	EventType     string          `bson:"eventType" json:"eventType"`
	Topic         string          `bson:"topic" json:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	RetryCount    int             `bson:"retryCount" json:"retryCount"`
	LastError     string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	MaxRetries    int             `bson:"maxRetries" json:"maxRetries"`
}

// NewOutboxEvent creates an outbox event from an event envelope. The outbox
// record shares the envelope's ID so a delivery can be traced end to end.
func NewOutboxEvent(aggregateID, aggregateType, topic string, envelope *kafka.Envelope) (*OutboxEvent, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		ID:            envelope.ID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     envelope.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		RetryCount:    0,
		MaxRetries:    DefaultMaxRetries,
	}, nil
}

// IsPublished checks if the event has been published
func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// ShouldRetry checks if the event should be retried
func (e *OutboxEvent) ShouldRetry() bool {
	return !e.IsPublished() && e.RetryCount < e.MaxRetries
}

// ToEnvelope decodes the stored payload back into an event envelope
func (e *OutboxEvent) ToEnvelope() (*kafka.Envelope, error) {
	var envelope kafka.Envelope
	if err := json.Unmarshal(e.Payload, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}
