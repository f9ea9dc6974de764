// Package session tracks authenticated connections and enforces credential
// expiry. The registry is the single owner of the connection-id to principal
// mapping; only the gate that created an entry and the expiry sweep may
// remove it.
package session

import (
	"sync"

	"github.com/real-rm/chatrelay/internal/auth"
	"github.com/real-rm/chatrelay/internal/metrics"
)

// Registry is a concurrent map from connection id to the authenticated
// principal. An entry exists iff the connection has completed authentication
// and has not disconnected or been expired.
type Registry struct {
	sessions map[string]auth.Info
	mu       sync.RWMutex
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]auth.Info),
	}
}

// Register binds a principal to a connection id. A refresh for an existing
// connection overwrites the value in place under the same key; it never
// creates a second entry.
func (r *Registry) Register(connID string, info auth.Info) {
	r.mu.Lock()
	_, existed := r.sessions[connID]
	r.sessions[connID] = info
	r.mu.Unlock()

	if !existed {
		metrics.ActiveSessions.Inc()
	}
}

// Unregister removes a connection's entry. Removing an absent entry is a
// no-op, not an error; close paths and the expiry sweep may race benignly.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	_, existed := r.sessions[connID]
	delete(r.sessions, connID)
	r.mu.Unlock()

	if existed {
		metrics.ActiveSessions.Dec()
	}
}

// Get returns the principal bound to a connection id.
func (r *Registry) Get(connID string) (auth.Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.sessions[connID]
	return info, ok
}

// Snapshot returns a copy of all entries for safe iteration outside the lock.
func (r *Registry) Snapshot() map[string]auth.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]auth.Info, len(r.sessions))
	for id, info := range r.sessions {
		snapshot[id] = info
	}
	return snapshot
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
