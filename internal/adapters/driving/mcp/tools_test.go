package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
)

func newTestServer(t *testing.T, ports *Ports) *Server {
	t.Helper()
	if ports.Schemas == nil {
		ports.Schemas = testSchemas()
	}
	server, err := NewServer(ports)
	require.NoError(t, err)
	return server
}

func TestServer_handleRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("returns ranked documents", func(t *testing.T) {
		doc := testDocument("fda-reg", domain.SourceRegulation)
		doc.Metadata.LastUpdated = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		retrieval := &mockRetrievalService{results: []domain.ScoredDocument{
			{Document: doc, RelevanceScore: 0.85, SourcePriorityBoost: 0.05},
		}}
		server := newTestServer(t, &Ports{Retrieval: retrieval})

		_, output, err := server.handleRetrieve(ctx, nil, RetrieveInput{
			Query:  "register a food facility",
			Filter: &FilterInput{Country: "US", SourceTypes: []string{"regulation"}},
			TopK:   3,
		})

		require.NoError(t, err)
		require.Equal(t, 1, output.Count)
		got := output.Documents[0]
		assert.Equal(t, "fda-reg", got.ID)
		assert.Equal(t, 0.85, got.Score)
		assert.Equal(t, 0.05, got.Boost)
		assert.Equal(t, "2024-05-01", got.LastUpdated)
		assert.Equal(t, "regulation, US, https://www.fda.gov/food/registration", got.Citation)
		assert.NotEmpty(t, got.Content)

		assert.Equal(t, "register a food facility", retrieval.lastQuery)
		assert.Equal(t, 3, retrieval.lastTopK)
		assert.Equal(t, "US", retrieval.lastFilter.Country)
		assert.Equal(t, []domain.SourceType{domain.SourceRegulation}, retrieval.lastFilter.SourceTypes)
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}})

		_, output, err := server.handleRetrieve(ctx, nil, RetrieveInput{Query: "x"})

		require.NoError(t, err)
		assert.Zero(t, output.Count)
		assert.Empty(t, output.Documents)
	})

	t.Run("unknown source type is rejected", func(t *testing.T) {
		server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}})

		_, _, err := server.handleRetrieve(ctx, nil, RetrieveInput{
			Query:  "x",
			Filter: &FilterInput{SourceTypes: []string{"blog"}},
		})

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("retrieval error is returned", func(t *testing.T) {
		server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{err: domain.ErrIndexUnavailable}})

		_, _, err := server.handleRetrieve(ctx, nil, RetrieveInput{Query: "x"})

		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	})
}

func TestServer_handleSearchByMetadata(t *testing.T) {
	retrieval := &mockRetrievalService{docs: []domain.Document{
		testDocument("a", domain.SourceGuide),
		testDocument("b", domain.SourceRegulation),
	}}
	server := newTestServer(t, &Ports{Retrieval: retrieval})

	_, output, err := server.handleSearchByMetadata(context.Background(), nil, FilterInput{Country: "US"})

	require.NoError(t, err)
	assert.Equal(t, 2, output.Count)
	assert.Equal(t, "a", output.Documents[0].ID)
	assert.Empty(t, output.Documents[0].Content)
	assert.Equal(t, "US", retrieval.lastFilter.Country)
}

func TestServer_handleGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("success with retrieved context", func(t *testing.T) {
		retrieval := &mockRetrievalService{results: []domain.ScoredDocument{
			{Document: testDocument("a", domain.SourceRegulation), RelevanceScore: 0.9},
		}}
		generation := &mockGenerationService{
			defaults: domain.GenerationSettings{MaxRetries: 4},
			result: &domain.GenerationResult{
				Success: &domain.GenerationSuccess{
					Value:       map[string]any{"hs_code": "0901.21"},
					Provider:    "primary",
					RetriesUsed: 1,
				},
			},
		}
		server := newTestServer(t, &Ports{Retrieval: retrieval, Generation: generation})

		_, output, err := server.handleGenerate(ctx, nil, GenerateInput{
			Task:      "hs_classification",
			Query:     "roasted coffee beans",
			Variables: map[string]string{"product": "coffee"},
			Filter:    &FilterInput{Country: "JP"},
		})

		require.NoError(t, err)
		assert.True(t, output.OK)
		assert.Equal(t, "0901.21", output.Value["hs_code"])
		assert.Equal(t, "primary", output.Provider)
		assert.Equal(t, 1, output.RetriesUsed)

		req := generation.last
		assert.Equal(t, "hs_classification", req.PromptTemplateID)
		assert.Equal(t, "hs_classification", req.OutputSchema.Name)
		assert.Equal(t, 4, req.MaxRetries)
		assert.Len(t, req.Context, 1)
		assert.Equal(t, map[string]string{
			"product": "coffee",
			"query":   "roasted coffee beans",
			"country": "JP",
		}, req.Variables)
	})

	t.Run("failure is reported in output", func(t *testing.T) {
		failure := &domain.GenerationFailure{
			Kind:        domain.FailureSchemaValidation,
			Detail:      "output did not match schema after 2 retries",
			Violations:  domain.Violations{{Field: "hs_code", Message: "required field is missing"}},
			RetriesUsed: 2,
		}
		generation := &mockGenerationService{
			result: &domain.GenerationResult{Failure: failure},
			err:    failure,
		}
		server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}, Generation: generation})
		zero := 0

		_, output, err := server.handleGenerate(ctx, nil, GenerateInput{Task: "hs_classification", MaxRetries: &zero})

		require.NoError(t, err)
		assert.False(t, output.OK)
		assert.Equal(t, "schema_validation_failed", output.FailureKind)
		assert.Equal(t, []string{"hs_code: required field is missing"}, output.Violations)
		assert.Equal(t, 0, generation.last.MaxRetries)
		assert.Empty(t, generation.last.Context)
	})

	t.Run("unknown task", func(t *testing.T) {
		server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}, Generation: &mockGenerationService{}})

		_, _, err := server.handleGenerate(ctx, nil, GenerateInput{Task: "tariff"})

		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestServer_handleAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("needs review with alternatives", func(t *testing.T) {
		advisor := &mockAdvisorService{result: &driving.AskResult{
			RequestID: "req-1",
			Context: []domain.ScoredDocument{
				{Document: testDocument("a", domain.SourceRegulation), RelevanceScore: 0.8},
			},
			Generation: &domain.GenerationResult{Success: &domain.GenerationSuccess{
				Value: map[string]any{"answer": "0901.21", "confidence": 55.0},
			}},
			Gate: &domain.GateResult{
				Decision:     domain.DecisionNeedsReview,
				Confidence:   55,
				Threshold:    70,
				Alternatives: []any{"0901.22"},
				NeedsInput:   true,
				Reason:       "confidence 55 is below threshold 70",
			},
		}}
		server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}, Advisor: advisor})
		retries := 1

		_, output, err := server.handleAsk(ctx, nil, AskInput{
			Query:      "what HS code is roasted coffee?",
			Filter:     &FilterInput{Country: "JP"},
			MaxRetries: &retries,
		})

		require.NoError(t, err)
		assert.Equal(t, "req-1", output.RequestID)
		require.Len(t, output.Sources, 1)
		require.NotNil(t, output.Generation)
		assert.True(t, output.Generation.OK)
		require.NotNil(t, output.Gate)
		assert.Equal(t, "needs_review", output.Gate.Decision)
		assert.Equal(t, []any{"0901.22"}, output.Gate.Alternatives)
		assert.True(t, output.Gate.NeedsInput)

		assert.Equal(t, "JP", advisor.last.Filter.Country)
		require.NotNil(t, advisor.last.MaxRetries)
		assert.Equal(t, 1, *advisor.last.MaxRetries)
	})

	t.Run("alternatives missing is reported, not raised", func(t *testing.T) {
		advisor := &mockAdvisorService{
			result: &driving.AskResult{
				RequestID:  "req-2",
				Generation: &domain.GenerationResult{Success: &domain.GenerationSuccess{Value: map[string]any{}}},
				Gate:       &domain.GateResult{Decision: domain.DecisionNeedsReview, NeedsInput: true},
			},
			err: fmt.Errorf("gate: %w", domain.ErrAlternativesMissing),
		}
		server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}, Advisor: advisor})

		_, output, err := server.handleAsk(ctx, nil, AskInput{Query: "x"})

		require.NoError(t, err)
		assert.Equal(t, "needs_review", output.Gate.Decision)
	})

	t.Run("retrieval failure is a tool error", func(t *testing.T) {
		advisor := &mockAdvisorService{
			result: &driving.AskResult{RequestID: "req-3"},
			err:    errors.New("search index: index unavailable"),
		}
		server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}, Advisor: advisor})

		_, _, err := server.handleAsk(ctx, nil, AskInput{Query: "x"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "index unavailable")
	})

	t.Run("nil result", func(t *testing.T) {
		advisor := &mockAdvisorService{err: domain.ErrNotFound}
		server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}, Advisor: advisor})

		_, _, err := server.handleAsk(ctx, nil, AskInput{Query: "x", Task: "tariff"})

		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
