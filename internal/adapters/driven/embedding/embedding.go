// Package embedding holds helpers shared by the embedding provider adapters
// and the decorators that wrap them (cache, ratelimit).
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// RateLimitError is returned when a provider throttles a request.
// It unwraps to domain.ErrEmbeddingRateLimited.
type RateLimitError struct {
	Provider string
	// RetryAt is when the provider allows the next request, zero if unknown.
	RetryAt time.Time
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s: %s: %s", e.Provider, domain.ErrEmbeddingRateLimited, e.Message)
	}
	return fmt.Sprintf("%s: %s until %s: %s",
		e.Provider, domain.ErrEmbeddingRateLimited, e.RetryAt.Format(time.RFC3339), e.Message)
}

// Unwrap returns domain.ErrEmbeddingRateLimited.
func (e *RateLimitError) Unwrap() error {
	return domain.ErrEmbeddingRateLimited
}

// BatchFunc embeds one provider-sized batch.
type BatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// InBatches splits texts into chunks of at most size, calls fn once per
// chunk and concatenates the results in input order.
func InBatches(ctx context.Context, texts []string, size int, fn BatchFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if size <= 0 {
		size = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vectors, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: provider returned %d vectors for %d inputs",
				domain.ErrEmbeddingUnavailable, len(vectors), end-start)
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: provider returned no vector for input %d",
					domain.ErrEmbeddingUnavailable, start+i)
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// ClassifyStatus maps a non-2xx provider response to the embedding error taxonomy.
func ClassifyStatus(provider string, status int, header http.Header, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if status == http.StatusTooManyRequests {
		return &RateLimitError{
			Provider: provider,
			RetryAt:  retryAt(header, time.Now()),
			Message:  msg,
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, &domain.ProviderError{
		Provider:   provider,
		Code:       http.StatusText(status),
		Message:    msg,
		StatusCode: status,
		Retryable:  status >= 500,
	})
}

// ClassifyTransport maps a failed round trip to the embedding error taxonomy.
// Deadline expiry becomes domain.ErrTimeout; caller cancellation passes through.
func ClassifyTransport(ctx context.Context, provider string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", provider, domain.ErrTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", provider, err)
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return fmt.Errorf("%s: %w", provider, domain.ErrTimeout)
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, &domain.ProviderError{
		Provider:  provider,
		Code:      "transport",
		Message:   err.Error(),
		Retryable: true,
		Cause:     err,
	})
}

// ToFloat32 narrows a provider vector.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// retryAt reads Retry-After as seconds or an HTTP date.
func retryAt(header http.Header, now time.Time) time.Time {
	if header == nil {
		return time.Time{}
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return time.Time{}
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	if t, err := http.ParseTime(v); err == nil {
		return t
	}
	return time.Time{}
}
