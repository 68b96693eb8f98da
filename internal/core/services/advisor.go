package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// Ensure AdvisorService implements the interface.
var _ driving.AdvisorService = (*AdvisorService)(nil)

// DefaultTask is the task used when an ask request names none.
const DefaultTask = driven.PromptQuestion

// AdvisorService answers exporter requests end to end:
// retrieve context, generate a structured answer, then gate on confidence.
type AdvisorService struct {
	retrieval  driving.RetrievalService
	generation driving.GenerationService
	schemas    driven.SchemaStore
	gate       ConfidenceGate
	defaults   domain.GenerationSettings
}

// NewAdvisorService creates a new advisor service.
func NewAdvisorService(
	retrieval driving.RetrievalService,
	generation driving.GenerationService,
	schemas driven.SchemaStore,
	defaults domain.GenerationSettings,
) *AdvisorService {
	return &AdvisorService{
		retrieval:  retrieval,
		generation: generation,
		schemas:    schemas,
		gate:       NewConfidenceGate(defaults.ConfidenceThreshold),
		defaults:   defaults,
	}
}

// Ask runs the full pipeline for one request.
//
// When retrieval finds nothing the model is not called; the result carries a
// needs-review gate asking for more input. A gate error is returned alongside
// the populated result.
func (s *AdvisorService) Ask(ctx context.Context, req driving.AskRequest) (*driving.AskResult, error) {
	logger.Section("Ask")

	task := strings.TrimSpace(req.Task)
	if task == "" {
		task = DefaultTask
	}
	schema, err := s.schemas.Get(task)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task, err)
	}

	docs, err := s.retrieval.Retrieve(ctx, req.Query, req.Filter, req.TopK)
	if err != nil {
		return nil, err
	}

	result := &driving.AskResult{
		RequestID: uuid.NewString(),
		Context:   docs,
	}
	_, hasConfidence := schema.Field(domain.ConfidenceField)

	if len(docs) == 0 {
		logger.Info("Request %s: no relevant documents, skipping generation", result.RequestID)
		if hasConfidence {
			result.Gate = &domain.GateResult{
				Decision:   domain.DecisionNeedsReview,
				Threshold:  s.gate.Threshold,
				NeedsInput: true,
				Reason:     "no relevant documents found for the query and filter",
			}
		}
		return result, nil
	}

	maxRetries := s.defaults.MaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	gen, err := s.generation.GenerateStructured(ctx, domain.GenerationRequest{
		RequestID:          result.RequestID,
		PromptTemplateID:   task,
		Variables:          map[string]string{"query": req.Query, "country": req.Filter.Country},
		Context:            docs,
		MaxContextChars:    s.defaults.MaxContextChars,
		OutputSchema:       schema,
		MaxRetries:         maxRetries,
		ProviderPreference: req.ProviderPreference,
	})
	result.Generation = gen
	if err != nil {
		return result, err
	}

	if !hasConfidence {
		return result, nil
	}
	gate, err := s.gate.Evaluate(schema, gen.Success.Value)
	result.Gate = gate
	if err != nil {
		logger.Warn("Request %s: %v", result.RequestID, err)
		return result, err
	}
	logger.Info("Request %s: %s (confidence %g)", result.RequestID, gate.Decision, gate.Confidence)
	return result, nil
}
