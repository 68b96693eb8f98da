package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
)

func TestNewLLMService_Defaults(t *testing.T) {
	svc := NewLLMService(LLMConfig{})

	assert.Equal(t, DefaultLLMModel, svc.ModelName())
	assert.Equal(t, DefaultBaseURL, svc.baseURL)
}

func TestGenerateStructured_RequestsJSONFormat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{
			Message: chatMessage{Role: "assistant", Content: `{"answer":"yes"}`},
			Done:    true,
		})
	}))
	defer srv.Close()

	svc := NewLLMService(LLMConfig{BaseURL: srv.URL, Model: "qwen2.5"})

	out, err := svc.GenerateStructured(context.Background(), "q", domain.OutputSchema{}, driven.GenerateOptions{
		SystemPrompt: "sys",
		Temperature:  0.1,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"answer":"yes"}`, out)
	assert.Equal(t, "json", got.Format)
	assert.Equal(t, "qwen2.5", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.Options)
	assert.InDelta(t, 0.1, got.Options.Temperature, 1e-9)
}

func TestGenerate_PlainText(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "hi"}, Done: true})
	}))
	defer srv.Close()

	svc := NewLLMService(LLMConfig{BaseURL: srv.URL})

	out, err := svc.Generate(context.Background(), "q", driven.GenerateOptions{})

	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Empty(t, got.Format)
	assert.Nil(t, got.Options)
	assert.Len(t, got.Messages, 1)
}

func TestGenerate_ModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	svc := NewLLMService(LLMConfig{BaseURL: srv.URL})

	_, err := svc.Generate(context.Background(), "q", driven.GenerateOptions{})

	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Retryable)
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	svc := NewLLMService(LLMConfig{BaseURL: url})

	_, err := svc.Generate(context.Background(), "q", driven.GenerateOptions{})

	assert.True(t, domain.IsRetryable(err))
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	svc := NewLLMService(LLMConfig{BaseURL: srv.URL})

	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}
