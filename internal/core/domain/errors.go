package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown provider or backend type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Embedding Errors.

	// ErrEmbeddingUnavailable indicates the embedding provider is down or unreachable.
	// Callers may retry under their own policy; the provider never retries silently.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrEmbeddingRateLimited indicates the embedding provider throttled the request.
	ErrEmbeddingRateLimited = errors.New("embedding service rate limited")

	// Index Errors.

	// ErrIndexUnavailable indicates the vector index cannot be used for this request:
	// it is closed, was never loaded, or its snapshot is corrupt.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch indicates a vector does not match the index dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// Generation Errors.

	// ErrGenerationBackendUnavailable indicates every configured model provider
	// exhausted its retry budget.
	ErrGenerationBackendUnavailable = errors.New("generation backend unavailable")

	// ErrGenerationRequestInvalid indicates a non-retryable client-side failure
	// such as a malformed schema, an unknown template or rejected credentials.
	ErrGenerationRequestInvalid = errors.New("generation request invalid")

	// ErrSchemaValidationFailed indicates model output never conformed to the
	// output schema within the refinement budget.
	ErrSchemaValidationFailed = errors.New("schema validation failed")

	// ErrAlternativesMissing indicates a low-confidence result whose schema
	// declares alternatives but which returned none.
	ErrAlternativesMissing = fmt.Errorf("%w: alternatives required below confidence threshold", ErrSchemaValidationFailed)

	// ErrNoConfidence indicates a structured result has no usable confidence value.
	ErrNoConfidence = errors.New("confidence not declared")

	// ErrTimeout indicates a caller deadline expired at some stage.
	// It is distinct from the Unavailable errors so callers can retry with a longer deadline.
	ErrTimeout = errors.New("deadline exceeded")
)

// ProviderError is returned by model and embedding providers.
// Retryable marks transient failures (throttling, timeouts, 5xx).
type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsTimeout reports whether err stems from an expired deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
