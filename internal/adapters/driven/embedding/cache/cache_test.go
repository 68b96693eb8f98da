package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// countingEmbedder returns [len(text)] and records every batch it sees.
type countingEmbedder struct {
	model   string
	batches [][]string
	err     error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.batches = append(e.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int { return 1 }
func (e *countingEmbedder) ModelName() string { return e.model }
func (e *countingEmbedder) Ping(_ context.Context) error { return nil }
func (e *countingEmbedder) Close() error { return nil }

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]float32, bool, error) {
	return nil, false, errors.New("disk on fire")
}
func (failingCache) Put(context.Context, string, []float32) error { return errors.New("disk on fire") }

func TestKey(t *testing.T) {
	assert.Equal(t, Key("m", "text"), Key("m", "text"))
	assert.NotEqual(t, Key("m", "text"), Key("m", "text "))
	assert.NotEqual(t, Key("m1", "text"), Key("m2", "text"))
	// The separator keeps model and text boundaries apart.
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("m", ""), 64)
}

func TestService_CachesByExactText(t *testing.T) {
	inner := &countingEmbedder{model: "m"}
	mem := NewMemory()
	svc := New(inner, mem)
	ctx := context.Background()

	first, err := svc.EmbedBatch(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, first)

	second, err := svc.EmbedBatch(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2}, {3}, {1}}, second)

	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, inner.batches)
	assert.Equal(t, 3, mem.Len())
}

func TestService_AllHitsSkipProvider(t *testing.T) {
	inner := &countingEmbedder{model: "m"}
	svc := New(inner, NewMemory())
	ctx := context.Background()

	_, err := svc.Embed(ctx, "hello")
	require.NoError(t, err)
	v, err := svc.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, []float32{5}, v)
	assert.Len(t, inner.batches, 1)
}

func TestService_DeduplicatesWithinBatch(t *testing.T) {
	inner := &countingEmbedder{model: "m"}
	svc := New(inner, NewMemory())

	out, err := svc.EmbedBatch(context.Background(), []string{"x", "yy", "x"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {1}}, out)
	assert.Equal(t, [][]string{{"x", "yy"}}, inner.batches)
}

func TestService_PropagatesProviderError(t *testing.T) {
	inner := &countingEmbedder{model: "m", err: domain.ErrEmbeddingRateLimited}
	svc := New(inner, NewMemory())

	_, err := svc.Embed(context.Background(), "x")

	assert.ErrorIs(t, err, domain.ErrEmbeddingRateLimited)
}

func TestService_CacheFailureIsMiss(t *testing.T) {
	inner := &countingEmbedder{model: "m"}
	svc := New(inner, failingCache{})

	v, err := svc.Embed(context.Background(), "abc")

	require.NoError(t, err)
	assert.Equal(t, []float32{3}, v)
}

func TestMemory_CopiesVectors(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	vec := []float32{1, 2}

	require.NoError(t, mem.Put(ctx, "k", vec))
	vec[0] = 99

	got, ok, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, got)

	got[1] = 42
	again, _, _ := mem.Get(ctx, "k")
	assert.Equal(t, []float32{1, 2}, again)

	_, ok, err = mem.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Delegates(t *testing.T) {
	inner := &countingEmbedder{model: "m"}
	svc := New(inner, NewMemory())

	assert.Equal(t, 1, svc.Dimensions())
	assert.Equal(t, "m", svc.ModelName())
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}
