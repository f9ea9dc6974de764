package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/real-rm/chatrelay/internal/constants"
	chaterrors "github.com/real-rm/chatrelay/internal/errors"
	"github.com/real-rm/chatrelay/internal/frame"
	"github.com/real-rm/chatrelay/internal/metrics"
)

// RedisRelay implements Relay over Redis pub/sub. Each recipient user id maps
// to one channel; every instance holding connections for that user subscribes
// to it.
type RedisRelay struct {
	client   *redis.Client
	pubsub   *redis.PubSub
	logger   *zap.Logger
	receiver Receiver

	// refs counts local connections interested in each user's channel.
	refs map[string]int
	mu   sync.Mutex

	done chan struct{}
}

var _ Relay = (*RedisRelay)(nil)

// NewRedisRelay connects to Redis and starts the bus receiver loop.
func NewRedisRelay(ctx context.Context, opts *redis.Options, logger *zap.Logger) (*RedisRelay, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r := &RedisRelay{
		client: client,
		logger: logger.Named("relay.redis"),
		refs:   make(map[string]int),
		done:   make(chan struct{}),
	}

	// Subscribe with no channels; user channels are added as connections
	// register interest.
	r.pubsub = client.Subscribe(context.Background())
	go r.receiveLoop()

	return r, nil
}

// SetReceiver implements Relay.SetReceiver.
func (r *RedisRelay) SetReceiver(fn Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiver = fn
}

// receiveLoop decodes bus payloads and hands them to the local receiver.
func (r *RedisRelay) receiveLoop() {
	ch := r.pubsub.Channel(redis.WithChannelSize(constants.RelayChannelBuffer))
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID := strings.TrimPrefix(msg.Channel, constants.RelayChannelPrefix)
			if userID == msg.Channel {
				r.logger.Warn("Ignoring message on unexpected channel",
					zap.String("channel", msg.Channel))
				continue
			}

			var env frame.MessageEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				metrics.RelayErrors.Inc()
				r.logger.Error("Failed to decode relay payload",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}

			metrics.RelayReceived.Inc()

			r.mu.Lock()
			receiver := r.receiver
			r.mu.Unlock()
			if receiver != nil {
				receiver(userID, &env)
			}
		case <-r.done:
			return
		}
	}
}

// Publish implements Relay.Publish: one PUBLISH per recipient id. Individual
// failures are logged and folded into a single relay error; successfully
// published recipients are unaffected.
func (r *RedisRelay) Publish(ctx context.Context, recipientIDs []string, env *frame.MessageEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return chaterrors.NewRelayError("failed to encode event", err)
	}

	var failed []string
	for _, userID := range recipientIDs {
		if err := r.client.Publish(ctx, constants.RelayChannelPrefix+userID, payload).Err(); err != nil {
			metrics.RelayErrors.Inc()
			failed = append(failed, userID)
			r.logger.Error("Failed to publish event",
				zap.String("user_id", userID),
				zap.String("message_id", env.ID),
				zap.Error(err))
			continue
		}
		metrics.RelayPublished.Inc()
	}

	if len(failed) > 0 {
		e := chaterrors.NewRelayError(
			fmt.Sprintf("publish failed for %d of %d recipients", len(failed), len(recipientIDs)), nil)
		return e.WithDetail("message_id", env.ID)
	}
	return nil
}

// SubscribeUser implements Relay.SubscribeUser with reference counting.
func (r *RedisRelay) SubscribeUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refs[userID]++
	if r.refs[userID] > 1 {
		return nil
	}

	if err := r.pubsub.Subscribe(ctx, constants.RelayChannelPrefix+userID); err != nil {
		r.refs[userID]--
		if r.refs[userID] == 0 {
			delete(r.refs, userID)
		}
		metrics.RelayErrors.Inc()
		return chaterrors.NewRelayError("failed to subscribe user channel", err)
	}

	metrics.RelayUserSubscriptions.Inc()
	r.logger.Debug("Subscribed user channel", zap.String("user_id", userID))
	return nil
}

// UnsubscribeUser implements Relay.UnsubscribeUser. Dropping a reference for
// an unknown user is a no-op.
func (r *RedisRelay) UnsubscribeUser(ctx context.Context, userID string) error {
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

	if err := r.pubsub.Unsubscribe(ctx, constants.RelayChannelPrefix+userID); err != nil {
		metrics.RelayErrors.Inc()
		return chaterrors.NewRelayError("failed to unsubscribe user channel", err)
	}

	metrics.RelayUserSubscriptions.Dec()
	r.logger.Debug("Unsubscribed user channel", zap.String("user_id", userID))
	return nil
}

// Ping reports whether the Redis connection is healthy.
func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements Relay.Close.
func (r *RedisRelay) Close() error {
	close(r.done)
	if err := r.pubsub.Close(); err != nil {
		r.client.Close()
		return fmt.Errorf("failed to close pubsub: %w", err)
	}
	return r.client.Close()
}
