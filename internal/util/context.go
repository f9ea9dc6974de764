// Package util provides common utility functions to eliminate code duplication.
package util

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// NewTimeoutContext creates a new context with the specified timeout.
//
// Example:
//
//	ctx, cancel := util.NewTimeoutContext(10 * time.Second)
//	defer cancel()
func NewTimeoutContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// NewID creates a cryptographically random 16-byte hex identifier. It backs
// connection ids and SSE/long-poll handle ids.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback: should never happen in practice
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(b)
}
