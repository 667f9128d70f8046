package outbox

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimacoff/openfoodnetwork/pkg/kafka"
	"github.com/jimacoff/openfoodnetwork/pkg/logging"
	sharedtesting "github.com/jimacoff/openfoodnetwork/pkg/testing"
)

type fakeRepository struct {
	mu        sync.Mutex
	events    []*OutboxEvent
	published []string
	retried   []string
}

func (f *fakeRepository) Save(ctx context.Context, event *OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeRepository) SaveAll(ctx context.Context, events []*OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeRepository) FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var unpublished []*OutboxEvent
	for _, event := range f.events {
		if event.ShouldRetry() {
			unpublished = append(unpublished, event)
		}
		if len(unpublished) == limit {
			break
		}
	}
	return unpublished, nil
}

func (f *fakeRepository) MarkPublished(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, event := range f.events {
		if event.ID == eventID {
			now := time.Now().UTC()
			event.PublishedAt = &now
			f.published = append(f.published, eventID)
			return nil
		}
	}
	return errors.New("event not found")
}

func (f *fakeRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, event := range f.events {
		if event.ID == eventID {
			event.RetryCount++
			event.LastError = errorMsg
			f.retried = append(f.retried, eventID)
			return nil
		}
	}
	return errors.New("event not found")
}

func (f *fakeRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*OutboxEvent
	for _, event := range f.events {
		if event.AggregateID == aggregateID {
			matched = append(matched, event)
		}
	}
	return matched, nil
}

func (f *fakeRepository) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeRepository) retriedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.retried)
}

type fakeProducer struct {
	mu         sync.Mutex
	publishErr error
	topics     []string
	envelopes  []*kafka.Envelope
}

func (f *fakeProducer) PublishEvent(ctx context.Context, topic string, envelope *kafka.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.topics = append(f.topics, topic)
	f.envelopes = append(f.envelopes, envelope)
	return nil
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("outbox-test")
	cfg.Output = io.Discard
	return logging.New(cfg)
}

func fastConfig() *PublisherConfig {
	return &PublisherConfig{PollInterval: 5 * time.Millisecond, BatchSize: 10}
}

func seedEvent(t *testing.T, repo *fakeRepository, id string) {
	t.Helper()
	event, err := NewOutboxEvent("ORD-001", "Order", "distribution.order.events", &kafka.Envelope{
		ID:      id,
		Type:    "distribution.order.cart_emptied",
		Source:  "/distribution-service",
		Subject: "ORD-001",
		Time:    time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), event))
}

func TestPublisherRelaysEvents(t *testing.T) {
	repo := &fakeRepository{}
	producer := &fakeProducer{}
	seedEvent(t, repo, "evt-1")
	seedEvent(t, repo, "evt-2")

	publisher := NewPublisher(repo, producer, testLogger(), nil, fastConfig())
	require.NoError(t, publisher.Start(context.Background()))
	defer publisher.Stop()

	sharedtesting.AssertEventually(t, func() bool {
		return repo.publishedCount() == 2
	}, 2*time.Second, "events relayed and marked published")

	producer.mu.Lock()
	defer producer.mu.Unlock()
	require.Len(t, producer.envelopes, 2)
	assert.Equal(t, "distribution.order.events", producer.topics[0])
	assert.Equal(t, "ORD-001", producer.envelopes[0].Subject)
}

func TestPublisherIncrementsRetryOnFailure(t *testing.T) {
	repo := &fakeRepository{}
	producer := &fakeProducer{publishErr: errors.New("broker unavailable")}
	seedEvent(t, repo, "evt-1")

	publisher := NewPublisher(repo, producer, testLogger(), nil, fastConfig())
	require.NoError(t, publisher.Start(context.Background()))
	defer publisher.Stop()

	sharedtesting.AssertEventually(t, func() bool {
		return repo.retriedCount() >= 1
	}, 2*time.Second, "failed delivery increments the retry count")

	assert.Equal(t, 0, repo.publishedCount())
}

func TestPublisherStartStop(t *testing.T) {
	publisher := NewPublisher(&fakeRepository{}, &fakeProducer{}, testLogger(), nil, fastConfig())

	require.NoError(t, publisher.Start(context.Background()))
	assert.True(t, publisher.IsRunning())
	assert.Error(t, publisher.Start(context.Background()), "double start is rejected")

	require.NoError(t, publisher.Stop())
	assert.False(t, publisher.IsRunning())
	assert.Error(t, publisher.Stop(), "double stop is rejected")
}

func TestPublisherStats(t *testing.T) {
	repo := &fakeRepository{}
	producer := &fakeProducer{}
	seedEvent(t, repo, "evt-1")

	publisher := NewPublisher(repo, producer, testLogger(), nil, fastConfig())
	require.NoError(t, publisher.Start(context.Background()))

	sharedtesting.AssertEventually(t, func() bool {
		return repo.publishedCount() == 1
	}, 2*time.Second, "event relayed")

	require.NoError(t, publisher.Stop())
	assert.Equal(t, 1, publisher.Stats()["published"])
	assert.Equal(t, 0, publisher.Stats()["failed"])
}
