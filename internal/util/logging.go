package util

import (
	"fmt"

	"go.uber.org/zap"
)

// LogError logs an error with component and operation context.
// This helper standardizes error logging across the codebase.
//
// Parameters:
//   - logger: The logger instance to use
//   - component: The component where the error occurred (e.g., "ws", "relay", "sse")
//   - operation: The operation that failed (e.g., "publish event", "send frame")
//   - err: The error that occurred
//   - fields: Additional zap fields to include in the log
//
// Example:
//
//	util.LogError(logger, "relay", "publish event", err, zap.String("user_id", userID))
func LogError(logger *zap.Logger, component, operation string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{zap.Error(err), zap.String("component", component)}, fields...)
	logger.Error(fmt.Sprintf("Failed to %s", operation), allFields...)
}
