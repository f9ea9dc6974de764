package util

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/real-rm/chatrelay/internal/metrics"
)

// SafeGo launches a goroutine with panic recovery.
// If the goroutine panics, the panic is recovered, logged, and the handler
// failure metric is incremented. This prevents a single goroutine panic from
// crashing the entire process.
func SafeGo(logger *zap.Logger, component string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered in goroutine",
					zap.String("component", component),
					zap.String("panic", fmt.Sprintf("%v", r)))
				metrics.HandlerFailures.Inc()
			}
		}()
		fn()
	}()
}
