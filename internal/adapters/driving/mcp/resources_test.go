package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
)

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}}
}

func TestExtractSchemaName(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{
			name:     "valid schema URI",
			uri:      "exportrag://schemas/hs_classification",
			expected: "hs_classification",
		},
		{
			name:     "invalid prefix",
			uri:      "file://schemas/hs_classification",
			expected: "",
		},
		{
			name:     "nested path",
			uri:      "exportrag://schemas/a/b",
			expected: "",
		},
		{
			name:     "empty URI",
			uri:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractSchemaName(tt.uri))
		})
	}
}

func TestServer_handleSchemasResource(t *testing.T) {
	server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}})

	result, err := server.handleSchemasResource(context.Background(), readRequest("exportrag://schemas"))
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)

	var infos []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		URI         string `json:"uri"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "hs_classification", infos[0].Name)
	assert.Equal(t, "Harmonized System code for a product", infos[0].Description)
	assert.Equal(t, "exportrag://schemas/hs_classification", infos[0].URI)
	assert.Equal(t, "question", infos[1].Name)
}

func TestServer_handleSchemaResource(t *testing.T) {
	server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}})
	ctx := context.Background()

	t.Run("returns schema fields", func(t *testing.T) {
		result, err := server.handleSchemaResource(ctx, readRequest("exportrag://schemas/hs_classification"))
		require.NoError(t, err)

		var schema domain.OutputSchema
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &schema))
		assert.Equal(t, "hs_classification", schema.Name)
		require.Len(t, schema.Fields, 1)
		assert.Equal(t, "hs_code", schema.Fields[0].Name)
	})

	t.Run("unknown schema is not found", func(t *testing.T) {
		_, err := server.handleSchemaResource(ctx, readRequest("exportrag://schemas/tariff"))
		assert.Error(t, err)
	})

	t.Run("malformed URI is not found", func(t *testing.T) {
		_, err := server.handleSchemaResource(ctx, readRequest("exportrag://other"))
		assert.Error(t, err)
	})
}

func TestServer_handleStatsResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stats", func(t *testing.T) {
		ingest := &mockIngestService{stats: &driving.IndexStats{Documents: 12, Dimensions: 768, Generation: 3, Corpus: 12}}
		server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}, Ingest: ingest})

		result, err := server.handleStatsResource(ctx, readRequest("exportrag://index/stats"))
		require.NoError(t, err)

		var stats driving.IndexStats
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &stats))
		assert.Equal(t, 12, stats.Documents)
		assert.Equal(t, 768, stats.Dimensions)
		assert.Equal(t, uint64(3), stats.Generation)
	})

	t.Run("returns error", func(t *testing.T) {
		ingest := &mockIngestService{err: errors.New("closed")}
		server := newTestServer(t, &Ports{Retrieval: &mockRetrievalService{}, Ingest: ingest})

		_, err := server.handleStatsResource(ctx, readRequest("exportrag://index/stats"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "index stats")
	})
}
