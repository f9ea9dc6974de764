package util

import (
	"errors"
	"strconv"
	"time"

	"github.com/real-rm/chatrelay/internal/constants"
)

// ErrInvalidTimeout is returned for a non-numeric or non-positive timeout value.
var ErrInvalidTimeout = errors.New("invalid timeout value")

// ParseTimeout interprets a client-supplied timeout query value in
// milliseconds. Empty input yields the fallback; values are capped at
// MaxHoldTimeout so a client cannot pin a handler goroutine indefinitely.
func ParseTimeout(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, ErrInvalidTimeout
	}
	timeout := time.Duration(ms) * time.Millisecond
	if timeout > constants.MaxHoldTimeout {
		timeout = constants.MaxHoldTimeout
	}
	return timeout, nil
}
