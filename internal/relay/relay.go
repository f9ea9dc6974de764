// Package relay abstracts the distributed publish/subscribe bus used to fan
// chat events out to recipients connected to other server instances. The
// relay is the only component aware of horizontal scale: local transports
// subscribe per user on this instance, and the bus routes events between
// instances.
package relay

import (
	"context"

	"github.com/real-rm/chatrelay/internal/frame"
)

// Receiver is invoked on the local instance for every event received for a
// user this instance has subscribed. Delivery order per user matches publish
// order on that user's channel.
type Receiver func(userID string, env *frame.MessageEnvelope)

// Relay fans message events out across server instances.
//
// SubscribeUser registers interest in a user's channel so this instance
// becomes a local recipient; subscriptions are reference-counted, so a user
// with several connections on one instance holds a single bus subscription
// and the last disconnect releases it.
type Relay interface {
	// Publish fans the event out on the bus once per recipient id. Every
	// instance subscribed to a recipient receives a local copy.
	Publish(ctx context.Context, recipientIDs []string, env *frame.MessageEnvelope) error

	// SubscribeUser adds a reference to the user's channel subscription.
	SubscribeUser(ctx context.Context, userID string) error

	// UnsubscribeUser drops a reference; the channel subscription is
	// released when the count reaches zero.
	UnsubscribeUser(ctx context.Context, userID string) error

	// SetReceiver installs the local delivery callback. Must be called
	// before the first SubscribeUser.
	SetReceiver(fn Receiver)

	// Close releases bus resources.
	Close() error
}
