// Package dispatch fans a chat room event out to every delivery path:
// membership resolution feeds the cross-instance relay, while the room-scoped
// SSE and long-poll hubs are notified locally.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/real-rm/chatrelay/internal/constants"
	chaterrors "github.com/real-rm/chatrelay/internal/errors"
	"github.com/real-rm/chatrelay/internal/frame"
	"github.com/real-rm/chatrelay/internal/longpoll"
	"github.com/real-rm/chatrelay/internal/membership"
	"github.com/real-rm/chatrelay/internal/relay"
	"github.com/real-rm/chatrelay/internal/sse"
	"github.com/real-rm/chatrelay/internal/util"
)

// Dispatcher routes freshly created messages to their audiences.
type Dispatcher struct {
	resolver membership.Resolver
	relay    relay.Relay
	sse      *sse.Hub
	longpoll *longpoll.Hub
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(resolver membership.Resolver, rel relay.Relay, sseHub *sse.Hub, lpHub *longpoll.Hub, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		resolver: resolver,
		relay:    rel,
		sse:      sseHub,
		longpoll: lpHub,
		logger:   logger.Named("dispatch"),
	}
}

// MessageCreated handles one message-created event. Recipients are resolved
// from room membership and the event is published per recipient on the relay;
// room-scoped SSE streams and long-poll waiters are resolved locally in the
// same call. Membership failures abort the relay leg only: local room
// delivery does not depend on the member list.
func (d *Dispatcher) MessageCreated(ctx context.Context, env *frame.MessageEnvelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	d.sse.Broadcast(env.ChatRoomID, env)
	d.longpoll.Resolve(env.ChatRoomID, env)

	recipients, err := d.resolver.Recipients(ctx, env.ChatRoomID)
	if err != nil {
		util.LogError(d.logger, "dispatch", "resolve room members", err,
			zap.String("chat_room_id", env.ChatRoomID),
			zap.String("message_id", env.ID))
		return chaterrors.NewRelayError("failed to resolve recipients", err).
			WithDetail("chatRoomId", env.ChatRoomID)
	}
	// No else needed: a room with no members has nothing to relay
	if len(recipients) == 0 {
		return nil
	}

	// Publish off the request path; relay failures are logged and counted,
	// never surfaced to the producer.
	util.SafeGo(d.logger, "relayPublish", func() {
		pubCtx, cancel := util.NewTimeoutContext(constants.RelayPublishTimeout)
		defer cancel()
		if perr := d.relay.Publish(pubCtx, recipients, env); perr != nil {
			util.LogError(d.logger, "dispatch", "publish to relay", perr,
				zap.String("chat_room_id", env.ChatRoomID),
				zap.String("message_id", env.ID),
				zap.Int("recipients", len(recipients)))
		}
	})

	return nil
}
