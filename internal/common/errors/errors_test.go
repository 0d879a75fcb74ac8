package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRetryCount(t *testing.T) {
	retried := []ErrorCode{
		ErrCodeTransportFailure,
		ErrCodeSnapshotFetchFailed,
		ErrCodeSnapshotFetchTimeout,
		ErrCodeClassificationFailed,
		ErrCodeClassificationTimeout,
		ErrCodeGenerationFailed,
		ErrCodeGenerationTimeout,
	}
	for _, code := range retried {
		assert.Equal(t, 2, GetRetryCount(code), "code %s", code)
		assert.True(t, IsRetryableErrorCode(code), "code %s", code)
	}

	terminal := []ErrorCode{
		ErrCodeMalformedResponse,
		ErrCodeGenerationExhausted,
		ErrCodeResourceNotFound,
		ErrCodeCacheOperationFailed,
		ErrCodeMemoryOperationFailed,
	}
	for _, code := range terminal {
		assert.Equal(t, 0, GetRetryCount(code), "code %s", code)
		assert.False(t, IsRetryableErrorCode(code), "code %s", code)
	}
}

func TestGetErrorCategory(t *testing.T) {
	cases := map[ErrorCode]string{
		ErrCodeSnapshotFetchFailed:   "SNAPSHOT",
		ErrCodeSnapshotFetchTimeout:  "SNAPSHOT",
		ErrCodeClassificationFailed:  "CLASSIFICATION",
		ErrCodeGenerationFailed:      "GENERATION",
		ErrCodeGenerationExhausted:   "GENERATION",
		ErrCodeCacheOperationFailed:  "STORE",
		ErrCodeMemoryOperationFailed: "STORE",
		ErrCodeMalformedResponse:     "PARSE",
		ErrCodeTransportFailure:      "OTHER",
	}
	for code, want := range cases {
		assert.Equal(t, want, GetErrorCategory(code), "code %s", code)
	}
}

func TestConstructorsSetRetryable(t *testing.T) {
	assert.True(t, NewTransportFailureError("genai", errors.New("refused")).Retryable)
	assert.True(t, NewSnapshotFetchFailedError(errors.New("down")).Retryable)
	assert.True(t, NewGenerationFailedError(errors.New("503")).Retryable)
	assert.False(t, NewMalformedResponseError("genai", "bad json").Retryable)
	assert.False(t, NewGenerationExhaustedError(3, errors.New("last")).Retryable)
	assert.False(t, NewCacheOperationFailedError("set", errors.New("oom")).Retryable)
}

func TestStandardErrorMessage(t *testing.T) {
	err := NewGenerationExhaustedError(3, errors.New("upstream down"))
	assert.Equal(t, ErrCodeGenerationExhausted, err.Code)
	assert.Contains(t, err.Error(), string(ErrCodeGenerationExhausted))
	assert.Contains(t, err.Details, "attempts: 3")

	var target *StandardError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
}
