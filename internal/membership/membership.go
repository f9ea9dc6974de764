// Package membership resolves a chat room to its recipient user ids.
// Membership business rules live in the persistence service; this package
// only reads the projection the relay needs for fan-out.
package membership

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrInvalidRoomID is returned when the chat room id is empty
	ErrInvalidRoomID = errors.New("chat room ID cannot be empty")
)

// Resolver resolves the recipients of a chat room.
type Resolver interface {
	Recipients(ctx context.Context, chatRoomID string) ([]string, error)
}

// StaticResolver serves a fixed membership map. It backs tests and
// single-tenant deployments without a membership store.
type StaticResolver struct {
	rooms map[string][]string
	mu    sync.RWMutex
}

var _ Resolver = (*StaticResolver)(nil)

// NewStaticResolver creates a resolver over a fixed room map. The map is
// copied; later mutations of the argument are not observed.
func NewStaticResolver(rooms map[string][]string) *StaticResolver {
	copied := make(map[string][]string, len(rooms))
	for roomID, members := range rooms {
		copied[roomID] = append([]string(nil), members...)
	}
	return &StaticResolver{rooms: copied}
}

// Recipients implements Resolver. An unknown room resolves to no recipients.
func (r *StaticResolver) Recipients(_ context.Context, chatRoomID string) ([]string, error) {
	if chatRoomID == "" {
		return nil, ErrInvalidRoomID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.rooms[chatRoomID]...), nil
}

// SetRoom replaces a room's membership. Intended for tests.
func (r *StaticResolver) SetRoom(chatRoomID string, members []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[chatRoomID] = append([]string(nil), members...)
}
