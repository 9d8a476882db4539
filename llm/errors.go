package llm

import (
	"errors"
	"fmt"
)

// Error represents a provider-neutral backend error.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool
	StatusCode  int
	ProviderErr error // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeProvider        ErrorType = "provider"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeMalformedOutput ErrorType = "malformed_output"
	ErrorTypeUnknown         ErrorType = "unknown"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// IsRetryableError reports whether the error is worth retrying.
func IsRetryableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// IsRateLimitError reports whether the error is a rate limit error.
func IsRateLimitError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsMalformedOutput reports whether the error is a model-output parse failure.
func IsMalformedOutput(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeMalformedOutput
	}
	return false
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		StatusCode:  429,
		ProviderErr: providerErr,
	}
}

// NewNetworkError creates a new transport-level error.
func NewNetworkError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeNetwork,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewProviderError creates a new non-retryable provider error.
func NewProviderError(message string, statusCode int, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		Retryable:   statusCode >= 500,
		StatusCode:  statusCode,
		ProviderErr: providerErr,
	}
}

// NewMalformedOutputError creates an error for model output that could not be
// parsed into the expected structure.
func NewMalformedOutputError(format string, args ...interface{}) *Error {
	return &Error{
		Type:      ErrorTypeMalformedOutput,
		Message:   fmt.Sprintf(format, args...),
		Retryable: false,
	}
}
