package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	outcomes     []*OutcomeEvent
	runs         []*RunEvent
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishOutcome records the event and returns any configured error.
func (m *MockPublisher) PublishOutcome(ctx context.Context, event *OutcomeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.outcomes = append(m.outcomes, event)
	return nil
}

// PublishRun records the event and returns any configured error.
func (m *MockPublisher) PublishRun(ctx context.Context, event *RunEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.runs = append(m.runs, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetOutcomes returns all published outcome events.
func (m *MockPublisher) GetOutcomes() []*OutcomeEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	events := make([]*OutcomeEvent, len(m.outcomes))
	copy(events, m.outcomes)
	return events
}

// GetRuns returns all published run events.
func (m *MockPublisher) GetRuns() []*RunEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*RunEvent, len(m.runs))
	copy(events, m.runs)
	return events
}

// GetOutcomesForVersion returns outcome events published for one version.
func (m *MockPublisher) GetOutcomesForVersion(version uint64) []*OutcomeEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*OutcomeEvent, 0)
	for _, event := range m.outcomes {
		if event.Version == version {
			events = append(events, event)
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

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
