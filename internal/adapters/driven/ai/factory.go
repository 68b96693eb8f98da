// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/exportrag/internal/adapters/driven/embedding/cache"
	ollamaembed "github.com/custodia-labs/exportrag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/exportrag/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/exportrag/internal/adapters/driven/embedding/ratelimit"
	anthropicllm "github.com/custodia-labs/exportrag/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/exportrag/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/exportrag/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/exportrag/internal/adapters/driven/llm/router"
	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the AI services built from settings.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	Backend          *router.Router
	LLMServices      []driven.LLMService
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
	for _, svc := range r.LLMServices {
		svc.Close()
	}
}

// Init builds the embedding stack and the generation router.
// store backs the embedding cache; when nil and caching is enabled an
// in-memory cache is used.
func Init(settings *domain.AppSettings, store driven.EmbeddingCache) (*InitResult, error) {
	embedder, err := BuildEmbeddingService(&settings.Embedding, store)
	if err != nil {
		return nil, err
	}

	backend, services, err := BuildBackend(settings.Backends, settings.Retry)
	if err != nil {
		embedder.Close()
		return nil, err
	}

	return &InitResult{
		EmbeddingService: embedder,
		Backend:          backend,
		LLMServices:      services,
	}, nil
}

// BuildEmbeddingService creates the provider service and decorates it with
// the client-side rate limiter and, when enabled, the content-hash cache.
// Cache hits never consume rate limit tokens.
func BuildEmbeddingService(
	settings *domain.EmbeddingSettings, store driven.EmbeddingCache,
) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'exportrag settings validate' to check the configuration",
			domain.ErrEmbeddingUnavailable, err)
	}
	if svc == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrEmbeddingUnavailable)
	}

	var out driven.EmbeddingService = ratelimit.New(svc, ratelimit.Config{
		RequestsPerSecond: settings.RequestsPerSecond,
		MaxWait:           settings.MaxWait,
	})

	if settings.Cache {
		if store == nil {
			store = cache.NewMemory()
		}
		out = cache.New(out, store)
	}

	logger.Debug("Embedding service: %s/%s (%d dims, cache=%t)",
		settings.Provider, svc.ModelName(), svc.Dimensions(), settings.Cache)
	return out, nil
}

// BuildBackend creates one LLM service per configured backend and the
// router that retries and fails over between them in the given order.
func BuildBackend(
	backends []domain.BackendSettings, retry domain.RetrySettings,
) (*router.Router, []driven.LLMService, error) {
	if len(backends) == 0 {
		return nil, nil, fmt.Errorf("%w: no generation backends configured",
			domain.ErrGenerationBackendUnavailable)
	}

	services := make([]driven.LLMService, 0, len(backends))
	closeAll := func() {
		for _, svc := range services {
			svc.Close()
		}
	}

	routed := make([]router.Backend, 0, len(backends))
	for i := range backends {
		b := &backends[i]
		svc, err := CreateLLMService(b)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("backend %s: %w", b.ID, err)
		}
		if svc == nil {
			closeAll()
			return nil, nil, fmt.Errorf("%w: backend %q is not configured", domain.ErrInvalidInput, b.ID)
		}
		services = append(services, svc)
		routed = append(routed, router.Backend{
			ID:          b.ID,
			Service:     svc,
			MaxAttempts: b.MaxAttempts,
			Timeout:     b.Timeout,
		})
		logger.Debug("Generation backend %s: %s/%s", b.ID, b.Provider, svc.ModelName())
	}

	r, err := router.New(router.Config{
		Backends:  routed,
		BaseDelay: retry.BaseDelay,
		MaxDelay:  retry.MaxDelay,
	})
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return r, services, nil
}

// ValidateEmbeddingConfig validates an embedding configuration by creating a service and pinging it.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return err
	}
	defer svc.Close()

	return ping(svc.Ping)
}

// ValidateBackendConfig validates a generation backend by creating a service and pinging it.
func ValidateBackendConfig(settings *domain.BackendSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}

	svc, err := CreateLLMService(settings)
	if err != nil {
		return err
	}
	defer svc.Close()

	return ping(svc.Ping)
}

func ping(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("service unreachable within %s: %w", pingTimeout, err)
		}
		return fmt.Errorf("service unreachable: %w", err)
	}
	return nil
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings)

	case domain.AIProviderAnthropic:
		// Anthropic does not support embeddings.
		return nil, fmt.Errorf("anthropic does not support embeddings, use ollama or openai")

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateLLMService creates the appropriate LLM service for a backend.
// Returns nil if the backend is not configured.
func CreateLLMService(settings *domain.BackendSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaLLM(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAILLM(settings)

	case domain.AIProviderAnthropic:
		return createAnthropicLLM(settings)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Timeout:    settings.Timeout,
		Dimensions: settings.Dimensions,
		BatchSize:  settings.BatchSize,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Timeout:    settings.Timeout,
		Dimensions: settings.Dimensions,
		BatchSize:  settings.BatchSize,
	})
}

// The router bounds each attempt with the backend timeout, so the HTTP
// clients keep their own longer defaults.

// createOllamaLLM creates an Ollama LLM service.
func createOllamaLLM(settings *domain.BackendSettings) driven.LLMService {
	return ollamallm.NewLLMService(ollamallm.LLMConfig{
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
	})
}

// createOpenAILLM creates an OpenAI LLM service.
func createOpenAILLM(settings *domain.BackendSettings) (driven.LLMService, error) {
	return openaillm.NewLLMService(openaillm.LLMConfig{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
	})
}

// createAnthropicLLM creates an Anthropic LLM service.
func createAnthropicLLM(settings *domain.BackendSettings) (driven.LLMService, error) {
	return anthropicllm.NewLLMService(anthropicllm.Config{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
	})
}
