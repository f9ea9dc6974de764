package ratelimit

import (
	"sync"
	"testing"
	"testing/quick"
	"time"
)

// Property: For any sequence of frames exceeding the rate limit, the requests
// past the limit are rejected within the window.
func TestProperty_FrameRateLimitEnforcement(t *testing.T) {
	property := func(userID string, extraRequests uint8) bool {
		if userID == "" {
			userID = "user-1"
		}

		// Low limit so the window never rolls over mid-test
		limiter := NewFrameLimiter(1*time.Minute, 5)

		// Requests up to the limit all succeed
		for i := 0; i < 5; i++ {
			if !limiter.Allow(userID) {
				t.Logf("Request %d failed but should have succeeded", i+1)
				return false
			}
		}

		// Every request beyond the limit fails
		numExtra := int(extraRequests%10) + 1
		for i := 0; i < numExtra; i++ {
			if limiter.Allow(userID) {
				t.Logf("Request beyond limit succeeded but should have failed")
				return false
			}
		}

		return true
	}

	config := &quick.Config{MaxCount: 100}
	if err := quick.Check(property, config); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// Property: When the limit is reached, GetRetryAfter is positive and never
// exceeds the window.
func TestProperty_RetryAfterBounds(t *testing.T) {
	property := func(limitSeed uint8) bool {
		limit := int(limitSeed%10) + 1
		window := 1 * time.Minute
		limiter := NewFrameLimiter(window, limit)

		for i := 0; i < limit; i++ {
			limiter.Allow("user-1")
		}

		retryAfter := limiter.GetRetryAfter("user-1")
		if retryAfter <= 0 {
			t.Logf("Expected positive retry-after at the limit, got %d", retryAfter)
			return false
		}
		if retryAfter > int(window.Milliseconds()) {
			t.Logf("Retry-after %dms exceeds the window %dms", retryAfter, window.Milliseconds())
			return false
		}

		// A user with no events has nothing to wait for
		return limiter.GetRetryAfter("user-2") == 0
	}

	config := &quick.Config{MaxCount: 100}
	if err := quick.Check(property, config); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// Property: Rate limits are tracked per user; one user exhausting their
// budget never affects another.
func TestProperty_IndependentUserLimits(t *testing.T) {
	property := func(otherUser string) bool {
		if otherUser == "" || otherUser == "greedy" {
			otherUser = "other"
		}

		limiter := NewFrameLimiter(1*time.Minute, 3)

		for i := 0; i < 10; i++ {
			limiter.Allow("greedy")
		}

		// The other user's budget is untouched
		for i := 0; i < 3; i++ {
			if !limiter.Allow(otherUser) {
				t.Logf("Request %d for %q failed but should have succeeded", i+1, otherUser)
				return false
			}
		}

		return true
	}

	config := &quick.Config{MaxCount: 100}
	if err := quick.Check(property, config); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// Property: Under concurrent access the limiter never admits more than the
// configured limit within one window.
func TestProperty_ConcurrentEnforcement(t *testing.T) {
	property := func(goroutineSeed uint8) bool {
		goroutines := int(goroutineSeed%8) + 2
		limit := 50
		limiter := NewFrameLimiter(1*time.Minute, limit)

		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0

		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					if limiter.Allow("user-1") {
						mu.Lock()
						allowed++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		attempts := goroutines * 20
		expected := attempts
		if expected > limit {
			expected = limit
		}
		if allowed != expected {
			t.Logf("Admitted %d of %d attempts, expected %d", allowed, attempts, expected)
			return false
		}
		return true
	}

	config := &quick.Config{MaxCount: 20}
	if err := quick.Check(property, config); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}
