// Package ratelimit provides rate limiting for WebSocket connections and
// inbound frames. It implements per-user counting and sliding window
// algorithms to prevent abuse and DoS attacks.
package ratelimit

import (
	"sync"
	"time"

	"github.com/real-rm/chatrelay/internal/constants"
)

// ConnectionLimiter limits the number of concurrent connections per user
type ConnectionLimiter struct {
	connections map[string]int // userID -> connection count
	maxPerUser  int
	mu          sync.RWMutex
}

// NewConnectionLimiter creates a new connection limiter
func NewConnectionLimiter(maxPerUser int) *ConnectionLimiter {
	return &ConnectionLimiter{
		connections: make(map[string]int),
		maxPerUser:  maxPerUser,
	}
}

// Allow checks if a new connection is allowed for the user
func (cl *ConnectionLimiter) Allow(userID string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	count := cl.connections[userID]
	if count >= cl.maxPerUser {
		return false
	}

	cl.connections[userID] = count + 1
	return true
}

// Release decrements the connection count for a user
func (cl *ConnectionLimiter) Release(userID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if count, ok := cl.connections[userID]; ok {
		if count <= 1 {
			delete(cl.connections, userID)
		} else {
			cl.connections[userID] = count - 1
		}
	}
}

// GetCount returns the current connection count for a user
func (cl *ConnectionLimiter) GetCount(userID string) int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.connections[userID]
}

// FrameLimiter limits the rate of inbound send frames per user using a
// sliding window
type FrameLimiter struct {
	events map[string][]time.Time // userID -> timestamps
	window time.Duration
	limit  int
	mu     sync.RWMutex

	// Cleanup goroutine management
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupWg       sync.WaitGroup
}

// NewFrameLimiter creates a new frame rate limiter
// window: time window for rate limiting (e.g., 1 minute)
// limit: maximum number of frames allowed in the window
func NewFrameLimiter(window time.Duration, limit int) *FrameLimiter {
	return &FrameLimiter{
		events:          make(map[string][]time.Time),
		window:          window,
		limit:           limit,
		cleanupInterval: constants.DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
}

// Allow checks if a frame is allowed based on rate limiting
// Returns true if allowed, false if rate limit exceeded
func (fl *FrameLimiter) Allow(userID string) bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-fl.window)

	// Filter out old events outside the window
	events := fl.events[userID]
	var recentEvents []time.Time
	for _, t := range events {
		if t.After(cutoff) {
			recentEvents = append(recentEvents, t)
		}
	}

	if len(recentEvents) >= fl.limit {
		return false
	}

	recentEvents = append(recentEvents, now)
	fl.events[userID] = recentEvents

	return true
}

// GetRetryAfter returns the time in milliseconds until the next frame is allowed
func (fl *FrameLimiter) GetRetryAfter(userID string) int {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	events := fl.events[userID]
	if len(events) < fl.limit {
		return 0
	}

	// Find the oldest event in the window
	now := time.Now()
	cutoff := now.Add(-fl.window)

	var oldestInWindow time.Time
	for _, t := range events {
		if t.After(cutoff) {
			if oldestInWindow.IsZero() || t.Before(oldestInWindow) {
				oldestInWindow = t
			}
		}
	}

	if oldestInWindow.IsZero() {
		return 0
	}

	// The limit frees up when the oldest event leaves the window
	expiresAt := oldestInWindow.Add(fl.window)
	retryAfter := expiresAt.Sub(now)

	if retryAfter < 0 {
		return 0
	}

	return int(retryAfter.Milliseconds())
}

// Reset clears the rate limit history for a user
func (fl *FrameLimiter) Reset(userID string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	delete(fl.events, userID)
}

// Cleanup removes expired events to prevent memory leaks
// Should be called periodically
func (fl *FrameLimiter) Cleanup() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-fl.window)

	for userID, events := range fl.events {
		var recentEvents []time.Time
		for _, t := range events {
			if t.After(cutoff) {
				recentEvents = append(recentEvents, t)
			}
		}

		if len(recentEvents) == 0 {
			delete(fl.events, userID)
		} else {
			fl.events[userID] = recentEvents
		}
	}
}

// StartCleanup starts a background goroutine that periodically cleans up expired events
func (fl *FrameLimiter) StartCleanup() {
	fl.cleanupWg.Add(1)
	go func() {
		defer fl.cleanupWg.Done()
		ticker := time.NewTicker(fl.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fl.Cleanup()
			case <-fl.stopCleanup:
				return
			}
		}
	}()
}

// StopCleanup stops the cleanup goroutine and waits for it to finish.
// Safe to call more than once.
func (fl *FrameLimiter) StopCleanup() {
	fl.mu.Lock()
	if fl.stopCleanup != nil {
		select {
		case <-fl.stopCleanup:
			// Already closed, do nothing
		default:
			close(fl.stopCleanup)
		}
	}
	fl.mu.Unlock()

	fl.cleanupWg.Wait()
}

// eventCount returns the total number of tracked events across all users.
// Exposed for tests.
func (fl *FrameLimiter) eventCount() int {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	count := 0
	for _, events := range fl.events {
		count += len(events)
	}
	return count
}
