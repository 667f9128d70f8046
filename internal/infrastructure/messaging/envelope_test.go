package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jimacoff/openfoodnetwork/internal/domain"
	"github.com/jimacoff/openfoodnetwork/pkg/kafka"
)

func TestEnvelopeFactory(t *testing.T) {
	factory := NewEnvelopeFactory("distribution-service")

	order := domain.NewOrder("CUST-001")
	event := domain.NewCartEmptiedEvent(order)

	env := factory.Envelope(event)

	assert.Equal(t, kafka.Topics.OrderEvents, factory.Topic())
	assert.Equal(t, "distribution.order.cart_emptied", env.Type)
	assert.Equal(t, "/distribution-service", env.Source)
	assert.Equal(t, order.OrderNumber, env.Subject)
	assert.Equal(t, event.OccurredAt(), env.Time)
	assert.NotEmpty(t, env.ID)
}

func TestEnvelopeFactoryUniqueIDs(t *testing.T) {
	factory := NewEnvelopeFactory("distribution-service")
	order := domain.NewOrder("CUST-001")

	first := factory.Envelope(domain.NewCartEmptiedEvent(order))
	second := factory.Envelope(domain.NewCartEmptiedEvent(order))

	assert.NotEqual(t, first.ID, second.ID)
}
