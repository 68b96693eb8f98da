package driving

import (
	"context"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// GenerationService produces schema-conformant structured results.
type GenerationService interface {
	// GenerateStructured always returns a non-nil result. When the result is
	// a failure, the same failure is also returned as the error.
	GenerateStructured(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error)

	// Defaults returns the configured settings that callers apply to
	// requests leaving a field unset, such as MaxRetries.
	Defaults() domain.GenerationSettings
}

// AdvisorService runs the full pipeline: retrieve, generate, then gate.
type AdvisorService interface {
	// Ask answers a request grounded in the corpus.
	Ask(ctx context.Context, req AskRequest) (*AskResult, error)
}

// AskRequest is a grounded question for a named task.
type AskRequest struct {
	// Query is the natural-language question or product description.
	Query string

	// Task names both the prompt template and the output schema.
	Task string

	Filter     domain.MetadataFilter
	TopK       int
	MaxRetries *int

	// ProviderPreference overrides the configured backend order.
	ProviderPreference []string
}

// AskResult bundles the retrieved context, the generation result and,
// when the schema declares a confidence, the gate decision.
type AskResult struct {
	RequestID  string                   `json:"request_id"`
	Context    []domain.ScoredDocument  `json:"context"`
	Generation *domain.GenerationResult `json:"generation"`
	Gate       *domain.GateResult       `json:"gate,omitempty"`
}
