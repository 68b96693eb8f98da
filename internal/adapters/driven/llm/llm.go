// Package llm holds error classification shared by the text-generation
// provider adapters. Retry and failover live in the router subpackage.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// ClassifyStatus builds a ProviderError for a non-2xx response.
// 408, 409, 429 and 5xx are retryable; other client errors are not.
func ClassifyStatus(provider string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	retryable := status == http.StatusRequestTimeout ||
		status == http.StatusConflict ||
		status == http.StatusTooManyRequests ||
		status >= 500
	code := http.StatusText(status)
	if code == "" {
		code = "unknown status"
	}
	return &domain.ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    msg,
		StatusCode: status,
		Retryable:  retryable,
	}
}

// ClassifyTransport builds a retryable ProviderError for a failed round trip.
// Caller cancellation is returned unchanged so it is never retried.
func ClassifyTransport(ctx context.Context, provider string, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	code := "transport"
	var timeout interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeout) && timeout.Timeout()) {
		code = "timeout"
	}
	return &domain.ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   err.Error(),
		Retryable: true,
		Cause:     err,
	}
}

// Malformed reports a 2xx response the adapter could not use.
// Treated as transient: providers occasionally return truncated bodies.
func Malformed(provider, message string, cause error) error {
	return &domain.ProviderError{
		Provider:  provider,
		Code:      "malformed_response",
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}
