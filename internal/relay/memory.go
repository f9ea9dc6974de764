package relay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/real-rm/chatrelay/internal/frame"
	"github.com/real-rm/chatrelay/internal/metrics"
)

// MemoryRelay implements Relay in process for single-instance deployments and
// tests. It honors the same contract as the Redis relay: reference-counted
// user subscriptions and one receiver callback per published recipient.
type MemoryRelay struct {
	receiver Receiver
	refs     map[string]int
	mu       sync.Mutex
	logger   *zap.Logger
}

var _ Relay = (*MemoryRelay)(nil)

// NewMemoryRelay creates an in-process relay.
func NewMemoryRelay(logger *zap.Logger) *MemoryRelay {
	return &MemoryRelay{
		refs:   make(map[string]int),
		logger: logger.Named("relay.memory"),
	}
}

// SetReceiver implements Relay.SetReceiver.
func (r *MemoryRelay) SetReceiver(fn Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiver = fn
}

// Publish implements Relay.Publish. Only recipients with a live local
// subscription receive the event; an absent recipient is not an error.
func (r *MemoryRelay) Publish(_ context.Context, recipientIDs []string, env *frame.MessageEnvelope) error {
	r.mu.Lock()
	receiver := r.receiver
	subscribed := make([]string, 0, len(recipientIDs))
	for _, userID := range recipientIDs {
		if r.refs[userID] > 0 {
			subscribed = append(subscribed, userID)
		}
	}
	r.mu.Unlock()

	for range recipientIDs {
		metrics.RelayPublished.Inc()
	}

	if receiver == nil {
		return nil
	}
	for _, userID := range subscribed {
		metrics.RelayReceived.Inc()
		receiver(userID, env)
	}
	return nil
}

// SubscribeUser implements Relay.SubscribeUser with reference counting.
func (r *MemoryRelay) SubscribeUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[userID]++
	if r.refs[userID] == 1 {
		metrics.RelayUserSubscriptions.Inc()
	}
	return nil
}

// UnsubscribeUser implements Relay.UnsubscribeUser.
func (r *MemoryRelay) UnsubscribeUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	count, ok := r.refs[userID]
	if !ok {
		return nil
	}
	if count > 1 {
		r.refs[userID] = count - 1
		return nil
	}
	delete(r.refs, userID)
	metrics.RelayUserSubscriptions.Dec()
	return nil
}

// Close implements Relay.Close.
func (r *MemoryRelay) Close() error {
	return nil
}
