// Package errors provides standardized error handling for the Zeus query pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Transport failures on external calls. Retried up to the stage budget.
	ErrCodeTransportFailure      ErrorCode = "TRANSPORT_FAILURE"
	ErrCodeSnapshotFetchFailed   ErrorCode = "SNAPSHOT_FETCH_FAILED"
	ErrCodeSnapshotFetchTimeout  ErrorCode = "SNAPSHOT_FETCH_TIMEOUT"
	ErrCodeClassificationFailed  ErrorCode = "CLASSIFICATION_FAILED"
	ErrCodeClassificationTimeout ErrorCode = "CLASSIFICATION_TIMEOUT"
	ErrCodeGenerationFailed      ErrorCode = "GENERATION_FAILED"
	ErrCodeGenerationTimeout     ErrorCode = "GENERATION_TIMEOUT"

	// A successful call returned content that fails to parse. Never retried,
	// always resolved with a fixed default.
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// Generation exhausted its full retry budget. The only code surfaced
	// to the end user, as a generic fallback message.
	ErrCodeGenerationExhausted ErrorCode = "GENERATION_EXHAUSTED"

	// Missing session/user records resolve by creating fresh ones.
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"

	// Cache failures are logged and swallowed, never retried.
	ErrCodeCacheOperationFailed  ErrorCode = "CACHE_OPERATION_FAILED"
	ErrCodeMemoryOperationFailed ErrorCode = "MEMORY_OPERATION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewTransportFailureError creates a retryable external-call error.
func NewTransportFailureError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportFailure,
		Message:   fmt.Sprintf("External service '%s' transport error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSnapshotFetchFailedError creates a retryable snapshot provider error.
func NewSnapshotFetchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSnapshotFetchFailed,
		Message:   "Artist analysis snapshot fetch failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSnapshotFetchTimeoutError creates a retryable snapshot timeout error.
func NewSnapshotFetchTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeSnapshotFetchTimeout,
		Message:   "Artist analysis snapshot fetch timeout",
		Details:   "fetch exceeded the snapshot timeout class",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewClassificationFailedError creates a retryable classifier transport error.
func NewClassificationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeClassificationFailed,
		Message:   "Model classification call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationFailedError creates a retryable generation endpoint error.
func NewGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationFailed,
		Message:   "Generation endpoint call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationTimeoutError creates a retryable generation timeout error.
func NewGenerationTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationTimeout,
		Message:   "Generation endpoint timeout",
		Details:   "call exceeded the generation timeout class",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationExhaustedError marks a generation call whose entire retry
// budget failed. Non-retryable by definition.
func NewGenerationExhaustedError(attempts int, lastErr error) *StandardError {
	details := fmt.Sprintf("attempts: %d", attempts)
	if lastErr != nil {
		details = fmt.Sprintf("attempts: %d, last error: %s", attempts, lastErr.Error())
	}
	return &StandardError{
		Code:      ErrCodeGenerationExhausted,
		Message:   "Generation failed after all retries",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedResponseError creates a non-retryable parse error.
func NewMalformedResponseError(service, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedResponse,
		Message:   fmt.Sprintf("Service '%s' returned unparseable content", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewResourceNotFoundError creates a non-retryable not-found error.
func NewResourceNotFoundError(resource, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResourceNotFound,
		Message:   fmt.Sprintf("Resource not found: %s", resource),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheOperationFailedError creates a non-retryable cache error.
// Cache failures are swallowed by the caller, never propagated.
func NewCacheOperationFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheOperationFailed,
		Message:   fmt.Sprintf("Cache operation '%s' failed", op),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMemoryOperationFailedError creates a non-retryable memory store error.
func NewMemoryOperationFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMemoryOperationFailed,
		Message:   fmt.Sprintf("Conversation memory operation '%s' failed", op),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the per-stage retry budget for an error code.
// A retry is attempted only after a transport failure or timeout, never
// after a malformed-but-successful response.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeTransportFailure,
		ErrCodeSnapshotFetchFailed,
		ErrCodeSnapshotFetchTimeout,
		ErrCodeClassificationFailed,
		ErrCodeClassificationTimeout,
		ErrCodeGenerationFailed,
		ErrCodeGenerationTimeout:
		return 2

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the coarse category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SNAPSHOT"):
		return "SNAPSHOT"
	case strings.Contains(codeStr, "CLASSIFICATION"):
		return "CLASSIFICATION"
	case strings.Contains(codeStr, "GENERATION"):
		return "GENERATION"
	case strings.Contains(codeStr, "CACHE") || strings.Contains(codeStr, "MEMORY"):
		return "STORE"
	case strings.Contains(codeStr, "MALFORMED"):
		return "PARSE"
	default:
		return "OTHER"
	}
}
