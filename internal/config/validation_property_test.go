package config

import (
	"strings"
	"testing"
	"testing/quick"
)

// Property: For any JWT secret shorter than the minimum length, validation
// should fail and the error should name the JWT secret.
func TestProperty_ShortSecretRejection(t *testing.T) {
	property := func(secretLength uint8) bool {
		// Test with secrets that are too short (0-31 characters)
		length := int(secretLength % 32)

		cfg := validTestConfig()
		cfg.Server.JWTSecret = strings.Repeat("a", length)

		// Validation should fail for short secrets
		err := cfg.Validate()
		if err == nil {
			t.Logf("Validation passed for secret length %d, but should have failed", length)
			return false
		}

		// Error message should mention JWT secret
		if !strings.Contains(err.Error(), "JWT secret") {
			t.Logf("Error message doesn't mention JWT secret: %v", err)
			return false
		}

		return true
	}

	config := &quick.Config{
		MaxCount: 100,
	}

	if err := quick.Check(property, config); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// Property: Configuration with weak JWT secrets should be rejected even when
// the secret meets the length requirement.
func TestProperty_WeakSecretRejection(t *testing.T) {
	weakPatterns := []string{"test", "password", "admin", "secret", "changeme", "default"}

	property := func(patternIndex uint8) bool {
		pattern := weakPatterns[int(patternIndex)%len(weakPatterns)]

		// Create a 32+ character secret that contains a weak pattern
		weakSecret := strings.Repeat("x", 16) + pattern + strings.Repeat("y", 16)

		cfg := validTestConfig()
		cfg.Server.JWTSecret = weakSecret

		// Validation should fail for weak secrets
		err := cfg.Validate()
		if err == nil {
			t.Logf("Validation passed for weak secret containing '%s', but should have failed", pattern)
			return false
		}

		// Error message should mention weak secret
		if !strings.Contains(err.Error(), "weak") {
			t.Logf("Error message doesn't mention weak secret: %v", err)
			return false
		}

		return true
	}

	config := &quick.Config{
		MaxCount: 100,
	}

	if err := quick.Check(property, config); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// Property: For any configuration with all required fields and valid values,
// validation should succeed.
func TestProperty_ValidConfigAcceptance(t *testing.T) {
	property := func(portOffset uint8, connsPerUser uint8) bool {
		cfg := validTestConfig()
		cfg.Server.Port = 8000 + int(portOffset%100)           // 8000-8099
		cfg.Server.MaxConnsPerUser = 1 + int(connsPerUser%100) // 1-100

		err := cfg.Validate()
		if err != nil {
			t.Logf("Validation failed for valid config: %v", err)
			return false
		}

		return true
	}

	config := &quick.Config{
		MaxCount: 100,
	}

	if err := quick.Check(property, config); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}
