package services

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
)

// --- Mock implementations ---

// mockEmbeddingService implements driven.EmbeddingService for testing.
type mockEmbeddingService struct {
	mu      sync.Mutex
	vector  []float32
	err     error
	batches [][]string
}

func (m *mockEmbeddingService) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vector, nil
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches = append(m.batches, texts)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vector
	}
	return out, nil
}

func (m *mockEmbeddingService) Dimensions() int {
	return len(m.vector)
}

func (m *mockEmbeddingService) ModelName() string {
	return "mock-embed"
}

func (m *mockEmbeddingService) Ping(_ context.Context) error {
	return m.err
}

func (m *mockEmbeddingService) Close() error {
	return nil
}

// mockModelBackend implements driven.ModelBackend with scripted replies.
type mockModelBackend struct {
	mu       sync.Mutex
	replies  []reply
	requests []driven.BackendRequest
}

type reply struct {
	text string
	err  error
}

func (m *mockModelBackend) next(req driven.BackendRequest) (*driven.BackendResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &driven.BackendResponse{Text: r.text, Provider: "mock", Attempts: 1}, nil
}

func (m *mockModelBackend) Generate(_ context.Context, req driven.BackendRequest) (*driven.BackendResponse, error) {
	return m.next(req)
}

func (m *mockModelBackend) GenerateStructured(
	_ context.Context, req driven.BackendRequest, _ domain.OutputSchema,
) (*driven.BackendResponse, error) {
	return m.next(req)
}

func (m *mockModelBackend) Providers() []string {
	return []string{"mock"}
}

func (m *mockModelBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// mockLLM implements driven.LLMService for router-backed tests.
type mockLLM struct {
	name     string
	generate func(ctx context.Context) (string, error)
}

func (m *mockLLM) Generate(ctx context.Context, _ string, _ driven.GenerateOptions) (string, error) {
	return m.generate(ctx)
}

func (m *mockLLM) GenerateStructured(
	ctx context.Context, _ string, _ domain.OutputSchema, _ driven.GenerateOptions,
) (string, error) {
	return m.generate(ctx)
}

func (m *mockLLM) ModelName() string {
	return m.name
}

func (m *mockLLM) Ping(_ context.Context) error {
	return nil
}

func (m *mockLLM) Close() error {
	return nil
}

// mockSchemaStore implements driven.SchemaStore for testing.
type mockSchemaStore struct {
	schemas map[string]domain.OutputSchema
}

func (m *mockSchemaStore) Get(name string) (domain.OutputSchema, error) {
	s, ok := m.schemas[name]
	if !ok {
		return domain.OutputSchema{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *mockSchemaStore) Names() []string {
	names := make([]string, 0, len(m.schemas))
	for n := range m.schemas {
		names = append(names, n)
	}
	return names
}

func (m *mockSchemaStore) Reload() {}

// mockRetrievalService implements driving.RetrievalService for testing.
type mockRetrievalService struct {
	docs []domain.ScoredDocument
	err  error
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context, _ string, _ domain.MetadataFilter, _ int,
) ([]domain.ScoredDocument, error) {
	return m.docs, m.err
}

func (m *mockRetrievalService) SearchByMetadata(_ context.Context, _ domain.MetadataFilter) ([]domain.Document, error) {
	return nil, m.err
}

// mockGenerationService implements driving.GenerationService for testing.
type mockGenerationService struct {
	defaults domain.GenerationSettings
	result   *domain.GenerationResult
	err      error
	calls    int
	last     domain.GenerationRequest
}

func (m *mockGenerationService) GenerateStructured(
	_ context.Context, req domain.GenerationRequest,
) (*domain.GenerationResult, error) {
	m.calls++
	m.last = req
	return m.result, m.err
}

func (m *mockGenerationService) Defaults() domain.GenerationSettings {
	return m.defaults
}

var (
	_ driven.EmbeddingService   = (*mockEmbeddingService)(nil)
	_ driven.ModelBackend       = (*mockModelBackend)(nil)
	_ driven.LLMService         = (*mockLLM)(nil)
	_ driven.SchemaStore        = (*mockSchemaStore)(nil)
	_ driving.RetrievalService  = (*mockRetrievalService)(nil)
	_ driving.GenerationService = (*mockGenerationService)(nil)
)

// --- Fixtures ---

// unitVector returns a 2D unit vector whose cosine with (1, 0) is sim.
func unitVector(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func ptr[T any](v T) *T {
	return &v
}

func classificationSchema() domain.OutputSchema {
	return domain.OutputSchema{
		Name: "hs_classification",
		Fields: []domain.FieldSpec{
			{Name: "hs_code", Type: domain.FieldString, Required: true},
			{Name: "confidence", Type: domain.FieldNumber, Required: true, Min: ptr(0.0), Max: ptr(100.0)},
			{Name: "alternatives", Type: domain.FieldArray, Items: domain.FieldString},
		},
	}
}
