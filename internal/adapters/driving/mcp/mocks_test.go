package mcp

import (
	"context"
	"sort"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	results    []domain.ScoredDocument
	docs       []domain.Document
	err        error
	lastQuery  string
	lastFilter domain.MetadataFilter
	lastTopK   int
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context, query string, filter domain.MetadataFilter, topK int,
) ([]domain.ScoredDocument, error) {
	m.lastQuery, m.lastFilter, m.lastTopK = query, filter, topK
	return m.results, m.err
}

func (m *mockRetrievalService) SearchByMetadata(
	_ context.Context, filter domain.MetadataFilter,
) ([]domain.Document, error) {
	m.lastFilter = filter
	return m.docs, m.err
}

// mockGenerationService is a mock implementation of driving.GenerationService.
type mockGenerationService struct {
	defaults domain.GenerationSettings
	result   *domain.GenerationResult
	err      error
	last     domain.GenerationRequest
}

func (m *mockGenerationService) GenerateStructured(
	_ context.Context, req domain.GenerationRequest,
) (*domain.GenerationResult, error) {
	m.last = req
	return m.result, m.err
}

func (m *mockGenerationService) Defaults() domain.GenerationSettings {
	return m.defaults
}

// mockAdvisorService is a mock implementation of driving.AdvisorService.
type mockAdvisorService struct {
	result *driving.AskResult
	err    error
	last   driving.AskRequest
}

func (m *mockAdvisorService) Ask(_ context.Context, req driving.AskRequest) (*driving.AskResult, error) {
	m.last = req
	return m.result, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	stats *driving.IndexStats
	err   error
}

func (m *mockIngestService) Ingest(context.Context, []domain.Document) (*driving.IngestStats, error) {
	return &driving.IngestStats{}, m.err
}

func (m *mockIngestService) Rebuild(context.Context) error { return m.err }

func (m *mockIngestService) Snapshot(context.Context) error { return m.err }

func (m *mockIngestService) Restore(context.Context) error { return m.err }

func (m *mockIngestService) Stats(context.Context) (*driving.IndexStats, error) {
	return m.stats, m.err
}

// mockSchemaStore is a mock implementation of driven.SchemaStore.
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
	sort.Strings(names)
	return names
}

func (m *mockSchemaStore) Reload() {}

func testSchemas() *mockSchemaStore {
	return &mockSchemaStore{schemas: map[string]domain.OutputSchema{
		"hs_classification": {
			Name:        "hs_classification",
			Description: "Harmonized System code for a product",
			Fields: []domain.FieldSpec{
				{Name: "hs_code", Type: domain.FieldString, Required: true},
			},
		},
		"question": {
			Name:        "question",
			Description: "Answer to an exporter question",
			Fields: []domain.FieldSpec{
				{Name: "answer", Type: domain.FieldString, Required: true},
			},
		},
	}}
}

func testDocument(id string, st domain.SourceType) domain.Document {
	return domain.Document{
		ID:      id,
		Content: "Shelf-stable foods require FDA facility registration.",
		Metadata: domain.Metadata{
			SourceType: st,
			Country:    "US",
			Title:      "Food facility registration",
			SourceURL:  "https://www.fda.gov/food/registration",
		},
	}
}
