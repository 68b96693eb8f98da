package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusRequestTimeout, true},
		{http.StatusConflict, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{529, true}, // Anthropic "overloaded"
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ClassifyStatus("openai", tt.status, []byte("details"))

			var pe *domain.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
		})
	}
}

func TestClassifyStatus_TruncatesBody(t *testing.T) {
	err := ClassifyStatus("openai", 500, []byte(strings.Repeat("x", 2000)))

	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, pe.Message, 512)
}

func TestClassifyTransport(t *testing.T) {
	err := ClassifyTransport(context.Background(), "ollama", errors.New("connection refused"))
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable)
	assert.Equal(t, "transport", pe.Code)

	err = ClassifyTransport(context.Background(), "ollama", context.DeadlineExceeded)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "timeout", pe.Code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = ClassifyTransport(ctx, "ollama", ctx.Err())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.As(err, &pe))
}

func TestMalformed(t *testing.T) {
	err := Malformed("anthropic", "no content blocks", nil)

	assert.True(t, domain.IsRetryable(err))
	assert.Contains(t, err.Error(), "no content blocks")
}
