// Package testutil provides common test helpers and mock implementations.
package testutil

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/real-rm/chatrelay/internal/frame"
	"github.com/real-rm/chatrelay/internal/relay"
)

// MockRelay is a mock implementation of relay.Relay for testing. It tracks
// method calls and allows configurable behavior and error injection.
type MockRelay struct {
	mu sync.Mutex

	// Publish tracking
	PublishFunc      func(context.Context, []string, *frame.MessageEnvelope) error
	PublishCalled    bool
	PublishCallCount int
	LastRecipients   []string
	LastEnvelope     *frame.MessageEnvelope

	// Subscribe tracking: user id -> reference count
	Subscriptions map[string]int

	// UnbalancedUnsubscribes counts UnsubscribeUser calls for users with no
	// outstanding reference. The real relays tolerate these, so a reference
	// accounting bug in a caller is otherwise invisible.
	UnbalancedUnsubscribes int

	receiver relay.Receiver

	// Error injection
	PublishError     error
	SubscribeError   error
	UnsubscribeError error
}

var _ relay.Relay = (*MockRelay)(nil)

// NewMockRelay creates a mock relay.
func NewMockRelay() *MockRelay {
	return &MockRelay{Subscriptions: make(map[string]int)}
}

// Publish mocks Relay.Publish.
func (m *MockRelay) Publish(ctx context.Context, recipientIDs []string, env *frame.MessageEnvelope) error {
	m.mu.Lock()
	m.PublishCalled = true
	m.PublishCallCount++
	m.LastRecipients = append([]string(nil), recipientIDs...)
	m.LastEnvelope = env
	m.mu.Unlock()

	if m.PublishError != nil {
		return m.PublishError
	}
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, recipientIDs, env)
	}
	return nil
}

// SubscribeUser mocks Relay.SubscribeUser with reference counting.
func (m *MockRelay) SubscribeUser(ctx context.Context, userID string) error {
	if m.SubscribeError != nil {
		return m.SubscribeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscriptions[userID]++
	return nil
}

// UnsubscribeUser mocks Relay.UnsubscribeUser.
func (m *MockRelay) UnsubscribeUser(ctx context.Context, userID string) error {
	if m.UnsubscribeError != nil {
		return m.UnsubscribeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Subscriptions[userID] == 0 {
		m.UnbalancedUnsubscribes++
		return nil
	}
	m.Subscriptions[userID]--
	if m.Subscriptions[userID] == 0 {
		delete(m.Subscriptions, userID)
	}
	return nil
}

// UnbalancedCount returns the number of unsubscribes with no matching
// subscribe.
func (m *MockRelay) UnbalancedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UnbalancedUnsubscribes
}

// SetReceiver mocks Relay.SetReceiver.
func (m *MockRelay) SetReceiver(fn relay.Receiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiver = fn
}

// Deliver invokes the installed receiver, simulating an event arriving from
// another instance.
func (m *MockRelay) Deliver(userID string, env *frame.MessageEnvelope) {
	m.mu.Lock()
	receiver := m.receiver
	m.mu.Unlock()
	if receiver != nil {
		receiver(userID, env)
	}
}

// PublishState returns a consistent copy of the publish tracking fields.
func (m *MockRelay) PublishState() (count int, recipients []string, env *frame.MessageEnvelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PublishCallCount, append([]string(nil), m.LastRecipients...), m.LastEnvelope
}

// RefCount returns the current reference count for a user's channel.
func (m *MockRelay) RefCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Subscriptions[userID]
}

// Close mocks Relay.Close.
func (m *MockRelay) Close() error { return nil }

// TestEnvelope builds a valid message envelope for tests.
func TestEnvelope(id, roomID, senderID, content string) *frame.MessageEnvelope {
	return &frame.MessageEnvelope{
		ID:         id,
		ChatRoomID: roomID,
		SenderID:   senderID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
}

// CreateTestLogger creates a logger for testing that routes through t.Log.
func CreateTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// WaitForCondition polls until the condition holds or the timeout elapses.
func WaitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// AssertGoroutineCount measures and reports goroutine count changes
func AssertGoroutineCount(t *testing.T, before, after int, description string) {
	t.Helper()
	delta := after - before

	t.Logf("Goroutine count (%s): %d → %d (delta: %d)", description, before, after, delta)

	// Allow for small variations due to test framework and GC
	tolerance := 5
	assert.InDelta(t, before, after, float64(tolerance),
		"Goroutine count should not increase significantly")
}

// MeasureGoroutines returns the current goroutine count
func MeasureGoroutines() int {
	return runtime.NumGoroutine()
}

// WaitForGoroutines waits for goroutines to stabilize
func WaitForGoroutines() {
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
}
