// internal/common/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies failures across the delivery pipeline.
type ErrorCode string

const (
	// Validation and lookup failures. Never retryable.
	ErrCodeValidation       ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound         ErrorCode = "NOTIFICATION_NOT_FOUND"
	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateInvalid  ErrorCode = "TEMPLATE_VALIDATION_FAILED"
	ErrCodeInvalidState     ErrorCode = "INVALID_STATE"

	// Policy rejections. Never retryable.
	ErrCodePreferenceBlocked ErrorCode = "PREFERENCE_BLOCKED"
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"
	ErrCodeExpired           ErrorCode = "NOTIFICATION_EXPIRED"

	// Delivery failures. Retryable unless the provider says otherwise.
	ErrCodeProviderSend   ErrorCode = "PROVIDER_SEND_FAILED"
	ErrCodeCircuitOpen    ErrorCode = "CIRCUIT_OPEN"
	ErrCodeChannelUnknown ErrorCode = "CHANNEL_UNKNOWN"

	// Infrastructure.
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the error type returned by every engine operation.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewValidationError(message, details string) *StandardError {
	return newError(ErrCodeValidation, message, details, false, nil)
}

func NewNotFoundError(message string) *StandardError {
	return newError(ErrCodeNotFound, message, "", false, nil)
}

func NewTemplateNotFoundError(templateID string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "template not found", templateID, false, nil)
}

func NewTemplateValidationError(details string) *StandardError {
	return newError(ErrCodeTemplateInvalid, "template variables failed validation", details, false, nil)
}

func NewInvalidStateError(message, details string) *StandardError {
	return newError(ErrCodeInvalidState, message, details, false, nil)
}

func NewPreferenceBlockedError(reason string) *StandardError {
	return newError(ErrCodePreferenceBlocked, "blocked by recipient preferences", reason, false, nil)
}

func NewRateLimitedError(reason string) *StandardError {
	return newError(ErrCodeRateLimited, "rate limit exceeded", reason, false, nil)
}

func NewExpiredError(notificationID string) *StandardError {
	return newError(ErrCodeExpired, "notification expired before delivery", notificationID, false, nil)
}

func NewProviderSendError(message string, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return newError(ErrCodeProviderSend, message, details, true, cause)
}

func NewCircuitOpenError(channel string) *StandardError {
	return newError(ErrCodeCircuitOpen, "circuit breaker open", channel, true, nil)
}

func NewChannelUnknownError(channel string) *StandardError {
	return newError(ErrCodeChannelUnknown, "no provider registered for channel", channel, false, nil)
}

func NewDatabaseError(message string, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return newError(ErrCodeDatabase, message, details, true, cause)
}

func NewInternalError(message string, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return newError(ErrCodeInternal, message, details, false, cause)
}

// IsRetryable reports whether err (or any wrapped StandardError) is retryable.
func IsRetryable(err error) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// CodeOf returns the ErrorCode of err, or ErrCodeInternal if err is not a StandardError.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
