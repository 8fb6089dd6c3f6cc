// Package errors defines the agent's typed error, AppError. Provider,
// configuration, context-overflow and cancellation failures are
// AppErrors, and layers above a provider branch on their Code rather
// than inspecting a vendor-specific error type directly. Some failures
// (the planner's no-steps error, the loop's budget-exhausted error,
// artifact write errors) are plain errors, for which CodeOf returns "".
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies an AppError for retry and reporting decisions.
type ErrorCode string

const (
	CodeConfigError         ErrorCode = "CONFIG_ERROR"
	CodeProviderNetwork     ErrorCode = "PROVIDER_NETWORK"
	CodeProviderAuth        ErrorCode = "PROVIDER_AUTH"
	CodeProviderRateLimit   ErrorCode = "PROVIDER_RATE_LIMIT"
	CodeProviderBadResponse ErrorCode = "PROVIDER_BAD_RESPONSE"
	CodeParseError          ErrorCode = "PARSE_ERROR"
	CodeContextOverflow     ErrorCode = "CONTEXT_OVERFLOW"
	CodeArtifactIO          ErrorCode = "ARTIFACT_IO_ERROR"
	CodeCancelled           ErrorCode = "CANCELLED"
)

// IsProviderError reports whether code is one of the four ProviderError kinds.
func (c ErrorCode) IsProviderError() bool {
	switch c {
	case CodeProviderNetwork, CodeProviderAuth, CodeProviderRateLimit, CodeProviderBadResponse:
		return true
	}
	return false
}

// AppError is a structured error carrying a stable Code, a human message,
// the wrapped cause, and optional fields for structured logging.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Fields  map[string]string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap enables errors.Is/errors.As on the cause chain.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithField attaches a structured field and returns the receiver for chaining.
func (e *AppError) WithField(key, value string) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[key] = value
	return e
}

func newErr(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

// NewConfigError wraps a configuration validation or load failure.
func NewConfigError(message string, cause error) *AppError {
	return newErr(CodeConfigError, message, cause)
}

// NewProviderError builds a ProviderError of the given kind. kind must
// satisfy ErrorCode.IsProviderError.
func NewProviderError(kind ErrorCode, provider, message string, cause error) *AppError {
	return newErr(kind, message, cause).WithField("provider", provider)
}

// NewParseError wraps a plan/review parsing failure.
func NewParseError(message string, cause error) *AppError {
	return newErr(CodeParseError, message, cause)
}

// NewContextOverflow reports that a message exceeds max_tokens even after compression.
func NewContextOverflow(message string) *AppError {
	return newErr(CodeContextOverflow, message, nil)
}

// NewArtifactIOError wraps an artifact read/write failure.
func NewArtifactIOError(message string, cause error) *AppError {
	return newErr(CodeArtifactIO, message, cause)
}

// NewCancelled reports a cancellation-sourced failure.
func NewCancelled(message string) *AppError {
	return newErr(CodeCancelled, message, nil)
}

// Is reports whether err is an AppError of the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf extracts the ErrorCode of err, or "" if err is not an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ClassifyProviderError pattern-matches a raw provider-layer error (an HTTP
// status, a transport failure, a vendor SDK error string) into a typed
// ProviderError. If err is already an *AppError it is returned unchanged.
func ClassifyProviderError(err error, provider string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "context canceled") || strings.Contains(msg, "context deadline exceeded") {
		return NewCancelled("request cancelled").WithField("provider", provider)
	}

	authPatterns := []string{"unauthorized", "invalid api key", "401", "403", "authentication", "permission denied"}
	for _, p := range authPatterns {
		if strings.Contains(msg, p) {
			return NewProviderError(CodeProviderAuth, provider, "authentication failed", err)
		}
	}

	rateLimitPatterns := []string{"rate limit", "429", "too many requests", "overloaded", "529"}
	for _, p := range rateLimitPatterns {
		if strings.Contains(msg, p) {
			return NewProviderError(CodeProviderRateLimit, provider, "rate limited", err)
		}
	}

	badResponsePatterns := []string{"bad request", "invalid argument", "model not found", "400", "malformed", "invalid_request"}
	for _, p := range badResponsePatterns {
		if strings.Contains(msg, p) {
			return NewProviderError(CodeProviderBadResponse, provider, "bad response", err)
		}
	}

	// Default: connection resets, timeouts, 5xx, DNS errors all land here.
	return NewProviderError(CodeProviderNetwork, provider, "network error", err)
}
