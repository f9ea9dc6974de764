// Package errors provides error handling functionality for the real-time delivery service.
// It defines error categories, error codes, and the domain error type carried
// through the wire-level error reporting paths.
package errors

import (
	"fmt"

	"github.com/real-rm/chatrelay/internal/constants"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryAuth represents authentication and authorization errors
	CategoryAuth ErrorCategory = "auth"
	// CategoryValidation represents input validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryHandler represents failures raised inside application handlers
	CategoryHandler ErrorCategory = "handler"
	// CategoryRelay represents distributed bus publish/subscribe failures
	CategoryRelay ErrorCategory = "relay"
	// CategoryTransport represents individual socket or handle write failures
	CategoryTransport ErrorCategory = "transport"
	// CategoryRateLimit represents rate limiting errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryInternal represents unclassified internal errors
	CategoryInternal ErrorCategory = "internal"
)

// ErrorCode represents specific error codes reported on the wire
type ErrorCode string

const (
	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	// Validation errors
	ErrCodeInvalidFrame ErrorCode = "INVALID_FRAME"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Delivery errors
	ErrCodeHandlerFailure       ErrorCode = "HANDLER_FAILURE"
	ErrCodeRelayFailure         ErrorCode = "RELAY_FAILURE"
	ErrCodeTransportSendFailure ErrorCode = "TRANSPORT_SEND_FAILURE"

	// Rate limiting errors
	ErrCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
	ErrCodeConnectionLimit ErrorCode = "CONNECTION_LIMIT_EXCEEDED"

	// Fallback
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// DeliveryError represents a domain error with category, wire code and
// optional detail map. Fatal errors terminate or prevent the connection;
// recoverable ones are reported on the exception queue.
type DeliveryError struct {
	Category    ErrorCategory
	Code        ErrorCode
	Message     string
	Details     map[string]string
	Recoverable bool
	Cause       error
}

// Error implements the error interface
func (e *DeliveryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// IsFatal returns true if the error must close or prevent the connection
func (e *DeliveryError) IsFatal() bool {
	return !e.Recoverable
}

// WithDetail attaches a key/value detail pair and returns the error for chaining
func (e *DeliveryError) WithDetail(key, value string) *DeliveryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// NewAuthError creates a new authentication error (fatal)
func NewAuthError(code ErrorCode, message string, cause error) *DeliveryError {
	return &DeliveryError{
		Category:    CategoryAuth,
		Code:        code,
		Message:     message,
		Recoverable: false,
		Cause:       cause,
	}
}

// NewValidationError creates a new validation error (recoverable)
func NewValidationError(code ErrorCode, message string, cause error) *DeliveryError {
	return &DeliveryError{
		Category:    CategoryValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
		Cause:       cause,
	}
}

// NewHandlerError creates a new handler failure error (recoverable, isolated per handler)
func NewHandlerError(message string, cause error) *DeliveryError {
	return &DeliveryError{
		Category:    CategoryHandler,
		Code:        ErrCodeHandlerFailure,
		Message:     message,
		Recoverable: true,
		Cause:       cause,
	}
}

// NewRelayError creates a new relay failure error (recoverable; the event is
// dropped for cross-instance recipients only)
func NewRelayError(message string, cause error) *DeliveryError {
	return &DeliveryError{
		Category:    CategoryRelay,
		Code:        ErrCodeRelayFailure,
		Message:     message,
		Recoverable: true,
		Cause:       cause,
	}
}

// NewTransportError creates a new transport send failure error (recoverable;
// only the failing handle is removed)
func NewTransportError(message string, cause error) *DeliveryError {
	return &DeliveryError{
		Category:    CategoryTransport,
		Code:        ErrCodeTransportSendFailure,
		Message:     message,
		Recoverable: true,
		Cause:       cause,
	}
}

// Common error constructors for convenience

// ErrUnauthorized creates an unauthorized error for a rejected credential
func ErrUnauthorized(message string, cause error) *DeliveryError {
	return NewAuthError(ErrCodeUnauthorized, message, cause)
}

// ErrSessionExpired creates the unauthorized error used by the expiry sweep
func ErrSessionExpired(sessionID string) *DeliveryError {
	e := NewAuthError(ErrCodeUnauthorized, constants.ErrMsgSessionExpired, nil)
	return e.WithDetail("session_id", sessionID)
}

// ErrInvalidFrame creates an invalid frame error
func ErrInvalidFrame(details string, cause error) *DeliveryError {
	return NewValidationError(ErrCodeInvalidFrame, fmt.Sprintf("Invalid frame: %s", details), cause)
}

// ErrMissingField creates a missing field error
func ErrMissingField(fieldName string) *DeliveryError {
	return NewValidationError(ErrCodeMissingField, fmt.Sprintf("Required field missing: %s", fieldName), nil)
}

// ErrTooManyRequests creates a too many requests error
func ErrTooManyRequests() *DeliveryError {
	return &DeliveryError{
		Category:    CategoryRateLimit,
		Code:        ErrCodeTooManyRequests,
		Message:     "Too many requests, please slow down",
		Recoverable: true,
	}
}

// ErrConnectionLimitExceeded creates a connection limit exceeded error
func ErrConnectionLimitExceeded() *DeliveryError {
	return &DeliveryError{
		Category:    CategoryRateLimit,
		Code:        ErrCodeConnectionLimit,
		Message:     "Connection limit exceeded, please try again later",
		Recoverable: true,
	}
}

// ErrInternal creates a generic internal error that leaks no detail
func ErrInternal(cause error) *DeliveryError {
	return &DeliveryError{
		Category:    CategoryInternal,
		Code:        ErrCodeInternalError,
		Message:     constants.ErrMsgInternalError,
		Recoverable: true,
		Cause:       cause,
	}
}
