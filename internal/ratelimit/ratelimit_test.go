package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectionLimiter_Allow(t *testing.T) {
	cl := NewConnectionLimiter(3)

	// First 3 connections should be allowed
	assert.True(t, cl.Allow("user1"))
	assert.True(t, cl.Allow("user1"))
	assert.True(t, cl.Allow("user1"))

	// 4th connection should be denied
	assert.False(t, cl.Allow("user1"))

	// Different user should be allowed
	assert.True(t, cl.Allow("user2"))
}

func TestConnectionLimiter_Release(t *testing.T) {
	cl := NewConnectionLimiter(2)

	// Use up the limit
	cl.Allow("user1")
	cl.Allow("user1")
	assert.False(t, cl.Allow("user1"))

	// Release one connection
	cl.Release("user1")
	assert.True(t, cl.Allow("user1"))
}

func TestConnectionLimiter_GetCount(t *testing.T) {
	cl := NewConnectionLimiter(5)

	assert.Equal(t, 0, cl.GetCount("user1"))

	cl.Allow("user1")
	assert.Equal(t, 1, cl.GetCount("user1"))

	cl.Allow("user1")
	assert.Equal(t, 2, cl.GetCount("user1"))

	cl.Release("user1")
	assert.Equal(t, 1, cl.GetCount("user1"))
}

func TestFrameLimiter_Allow(t *testing.T) {
	fl := NewFrameLimiter(1*time.Second, 3)

	// First 3 frames should be allowed
	assert.True(t, fl.Allow("user1"))
	assert.True(t, fl.Allow("user1"))
	assert.True(t, fl.Allow("user1"))

	// 4th frame should be denied
	assert.False(t, fl.Allow("user1"))

	// Different user should be allowed
	assert.True(t, fl.Allow("user2"))
}

func TestFrameLimiter_WindowExpiry(t *testing.T) {
	fl := NewFrameLimiter(100*time.Millisecond, 2)

	// Use up the limit
	assert.True(t, fl.Allow("user1"))
	assert.True(t, fl.Allow("user1"))
	assert.False(t, fl.Allow("user1"))

	// Wait for window to expire
	time.Sleep(150 * time.Millisecond)

	// Should be allowed again
	assert.True(t, fl.Allow("user1"))
}

func TestFrameLimiter_GetRetryAfter(t *testing.T) {
	fl := NewFrameLimiter(1*time.Second, 2)

	// Use up the limit
	fl.Allow("user1")
	fl.Allow("user1")

	// Should have retry after value
	retryAfter := fl.GetRetryAfter("user1")
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 1000) // Should be within 1 second

	// User with no events should have 0 retry after
	assert.Equal(t, 0, fl.GetRetryAfter("user2"))
}

func TestFrameLimiter_Reset(t *testing.T) {
	fl := NewFrameLimiter(1*time.Second, 2)

	// Use up the limit
	fl.Allow("user1")
	fl.Allow("user1")
	assert.False(t, fl.Allow("user1"))

	// Reset
	fl.Reset("user1")

	// Should be allowed again
	assert.True(t, fl.Allow("user1"))
}

func TestFrameLimiter_Cleanup(t *testing.T) {
	fl := NewFrameLimiter(100*time.Millisecond, 2)

	// Add events for multiple users
	fl.Allow("user1")
	fl.Allow("user2")
	fl.Allow("user3")

	// Wait for events to expire
	time.Sleep(150 * time.Millisecond)

	// Cleanup should remove expired events
	fl.Cleanup()

	// Verify internal state is cleaned up
	fl.mu.RLock()
	assert.Equal(t, 0, len(fl.events))
	fl.mu.RUnlock()
}

func TestFrameLimiter_ConcurrentAccess(t *testing.T) {
	fl := NewFrameLimiter(1*time.Second, 100)

	// Test concurrent access from multiple goroutines
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 10; j++ {
				fl.Allow("user1")
			}
			done <- true
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}

	// Should have exactly 100 events (the limit)
	fl.mu.RLock()
	count := len(fl.events["user1"])
	fl.mu.RUnlock()
	assert.Equal(t, 100, count)
}

func TestConnectionLimiter_ConcurrentAccess(t *testing.T) {
	cl := NewConnectionLimiter(50)

	// Test concurrent access from multiple goroutines
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 10; j++ {
				cl.Allow("user1")
			}
			done <- true
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}

	// Should have exactly 50 connections (the limit)
	assert.Equal(t, 50, cl.GetCount("user1"))
}
