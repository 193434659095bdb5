package nats

import (
	"context"
	"errors"
	"sync"
)

// MockPublisher records events in memory for tests.
type MockPublisher struct {
	mu                sync.RWMutex
	publishedEvents   []*ExplanationEvent
	publishError      error
	publishBatchError error
	closed            bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*ExplanationEvent, 0),
	}
}

// PublishExplanation records the event and returns any configured error.
func (m *MockPublisher) PublishExplanation(ctx context.Context, event *ExplanationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// PublishExplanationBatch records the events, failing with the batch error
// if one is set and otherwise with each per-event publish error.
func (m *MockPublisher) PublishExplanationBatch(ctx context.Context, events []*ExplanationEvent) (int, error) {
	m.mu.Lock()
	batchErr := m.publishBatchError
	m.mu.Unlock()
	if batchErr != nil {
		return 0, batchErr
	}

	var errs []error
	published := 0
	for _, e := range events {
		if err := m.PublishExplanation(ctx, e); err != nil {
			errs = append(errs, err)
			continue
		}
		published++
	}
	return published, errors.Join(errs...)
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns a copy of all published events.
func (m *MockPublisher) GetPublishedEvents() []*ExplanationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ExplanationEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventCount returns the number of published events.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishedEvents)
}

// GetPublishedEventsForAccount returns events that mention address.
func (m *MockPublisher) GetPublishedEventsForAccount(address string) []*ExplanationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ExplanationEvent, 0)
	for _, event := range m.publishedEvents {
		for _, a := range event.Accounts {
			if a == address {
				events = append(events, event)
				break
			}
		}
	}
	return events
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// SetPublishBatchError configures the mock to fail PublishExplanationBatch
// outright without recording anything.
func (m *MockPublisher) SetPublishBatchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishBatchError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
