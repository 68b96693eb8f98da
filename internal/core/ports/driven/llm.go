// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// LLMService is a single text-generation provider.
//
// Implementations may include:
//   - OpenAI (GPT-4o family)
//   - Anthropic (Claude)
//   - Ollama (local models)
//
// Errors are reported as *domain.ProviderError so callers can tell
// transient failures from permanent ones. Implementations never retry.
type LLMService interface {
	// Generate produces free text from a prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStructured produces text that should be a JSON object matching schema.
	// The provider's native JSON mode is used where one exists; the output is
	// not validated here.
	GenerateStructured(ctx context.Context, prompt string, schema domain.OutputSchema, opts GenerateOptions) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// SystemPrompt is sent as the system instruction when non-empty.
	SystemPrompt string

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// StopWords are sequences that stop generation when encountered.
	StopWords []string
}

// ModelBackend is the uniform entry point over every configured provider.
// It owns retry with backoff and failover across ProviderPreference.
//
// Terminal errors wrap domain.ErrGenerationBackendUnavailable (every provider
// exhausted), domain.ErrGenerationRequestInvalid (non-retryable failure) or
// domain.ErrTimeout (caller deadline expired).
type ModelBackend interface {
	// Generate produces free text.
	Generate(ctx context.Context, req BackendRequest) (*BackendResponse, error)

	// GenerateStructured produces text intended to satisfy schema.
	GenerateStructured(ctx context.Context, req BackendRequest, schema domain.OutputSchema) (*BackendResponse, error)

	// Providers lists the configured backend ids in default preference order.
	Providers() []string
}

// BackendRequest is one logical generation call.
type BackendRequest struct {
	Prompt  string
	Options GenerateOptions

	// ProviderPreference orders backend ids; empty uses the default order.
	ProviderPreference []string
}

// BackendResponse is the outcome of a successful call.
type BackendResponse struct {
	Text     string
	Provider string
	Attempts int

	// Trace records the state transitions taken by the call.
	Trace []AttemptState
}

// CallState is a state of the per-call retry machine.
type CallState string

// Call states.
const (
	StatePending           CallState = "pending"
	StateAttempting        CallState = "attempting"
	StateRetrying          CallState = "retrying"
	StateSucceeded         CallState = "succeeded"
	StateProviderExhausted CallState = "provider_exhausted"
)

// AttemptState is one entry of a call trace.
type AttemptState struct {
	State    CallState
	Provider string
	Attempt  int
	Err      string
}
