package chunker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		opts        []Option
		wantSize    int
		wantOverlap int
	}{
		{"default values", nil, DefaultChunkSize, DefaultChunkOverlap},
		{"custom chunk size", []Option{WithChunkSize(500)}, 500, DefaultChunkOverlap},
		{"custom overlap", []Option{WithOverlap(100)}, DefaultChunkSize, 100},
		{"overlap exceeds chunk size", []Option{WithChunkSize(100), WithOverlap(150)}, 100, 25},
		{"zero values ignored", []Option{WithChunkSize(0), WithOverlap(-1)}, DefaultChunkSize, DefaultChunkOverlap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.opts...)
			assert.Equal(t, tt.wantSize, p.chunkSize)
			assert.Equal(t, tt.wantOverlap, p.overlap)
		})
	}
}

func TestProcessor_Name(t *testing.T) {
	assert.Equal(t, "chunker", New().Name())
}

func TestProcessor_Process_SmallDocumentUnchanged(t *testing.T) {
	p := New(WithChunkSize(100), WithOverlap(20))
	doc := domain.Document{ID: "reg-1", Content: "Short regulation text.", Embedding: []float32{1}}

	out, err := p.Process(context.Background(), doc)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, doc.ID, out[0].ID)
	assert.Nil(t, out[0].Metadata.ChunkIndex)
	assert.Equal(t, []float32{1}, out[0].Embedding)
}

func TestProcessor_Process_SplitsLongDocument(t *testing.T) {
	p := New(WithChunkSize(100), WithOverlap(20))
	doc := domain.Document{
		ID:        "reg-1",
		Content:   strings.Repeat("x", 250),
		Embedding: []float32{1, 2},
		Metadata: domain.Metadata{
			SourceType:        domain.SourceRegulation,
			Country:           "US",
			ProductCategories: []string{"seafood"},
		},
	}

	out, err := p.Process(context.Background(), doc)

	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, chunk := range out {
		assert.Equal(t, ChunkID("reg-1", i), chunk.ID)
		assert.Equal(t, "reg-1", chunk.Metadata.ParentID)
		require.NotNil(t, chunk.Metadata.ChunkIndex)
		assert.Equal(t, i, *chunk.Metadata.ChunkIndex)
		assert.Nil(t, chunk.Embedding, "chunks must be re-embedded")
		assert.Equal(t, domain.SourceRegulation, chunk.Metadata.SourceType)
		assert.Equal(t, "US", chunk.Metadata.Country)
		assert.LessOrEqual(t, len([]rune(chunk.Content)), 100)
	}
	assert.Equal(t, "reg-1#0", out[0].ID)
}

func TestProcessor_Process_StableIDs(t *testing.T) {
	p := New(WithChunkSize(50), WithOverlap(10))
	doc := domain.Document{ID: "guide-7", Content: strings.Repeat("word ", 40)}

	first, err := p.Process(context.Background(), doc)
	require.NoError(t, err)
	second, err := p.Process(context.Background(), doc)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestProcessor_Process_BreaksOnWhitespace(t *testing.T) {
	p := New(WithChunkSize(20), WithOverlap(0))
	doc := domain.Document{ID: "d", Content: "alpha beta gamma delta epsilon zeta eta theta"}

	out, err := p.Process(context.Background(), doc)

	require.NoError(t, err)
	require.Greater(t, len(out), 1)
	for _, chunk := range out {
		for _, word := range strings.Fields(chunk.Content) {
			assert.Contains(t, doc.Content, word)
			assert.NotContains(t, []string{"alph", "gam", "epsi"}, word)
		}
	}
}

func TestProcessor_Process_OverlapContent(t *testing.T) {
	p := New(WithChunkSize(10), WithOverlap(4))
	doc := domain.Document{ID: "d", Content: "abcdefghijklmnopqrstuvwxyz"}

	out, err := p.Process(context.Background(), doc)

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(out), 2)
	assert.Equal(t, "abcdefghij", out[0].Content)
	assert.True(t, strings.HasPrefix(out[1].Content, "ghij"))
}

func TestProcessor_Process_MultibyteSafe(t *testing.T) {
	p := New(WithChunkSize(5), WithOverlap(1))
	doc := domain.Document{ID: "jp", Content: "輸出規制の概要について説明します"}

	out, err := p.Process(context.Background(), doc)

	require.NoError(t, err)
	for _, chunk := range out {
		assert.True(t, len([]rune(chunk.Content)) <= 5)
		assert.NotContains(t, chunk.Content, "�")
	}
}

func TestProcessor_Process_CopiesMetadataSlices(t *testing.T) {
	p := New(WithChunkSize(10), WithOverlap(0))
	doc := domain.Document{
		ID:       "d",
		Content:  strings.Repeat("y", 30),
		Metadata: domain.Metadata{ProductCategories: []string{"tea"}},
	}

	out, err := p.Process(context.Background(), doc)
	require.NoError(t, err)
	out[0].Metadata.ProductCategories[0] = "coffee"

	assert.Equal(t, "tea", doc.Metadata.ProductCategories[0])
	assert.Equal(t, "tea", out[1].Metadata.ProductCategories[0])
}

func TestProcessor_Process_Cancelled(t *testing.T) {
	p := New(WithChunkSize(10), WithOverlap(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, domain.Document{ID: "d", Content: strings.Repeat("z", 30)})
	assert.ErrorIs(t, err, context.Canceled)
}
