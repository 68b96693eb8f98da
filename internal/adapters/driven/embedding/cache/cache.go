// Package cache provides a content-hash embedding cache decorator.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// Ensure the decorator and memory cache implement their interfaces.
var (
	_ driven.EmbeddingService = (*Service)(nil)
	_ driven.EmbeddingCache   = (*Memory)(nil)
)

// Key returns the cache key for text embedded by model: the hex SHA-256 of
// the model name and the exact text. Equal keys mean byte-identical input.
func Key(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Service wraps an embedding service with a cache.
// Cache failures are logged and treated as misses.
type Service struct {
	next  driven.EmbeddingService
	store driven.EmbeddingCache
}

// New wraps next with store.
func New(next driven.EmbeddingService, store driven.EmbeddingCache) *Service {
	return &Service{next: next, store: store}
}

// Embed returns the cached vector or embeds and caches text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch serves hits from the cache and sends all misses to the
// wrapped service in a single batch. Output order matches input order.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	model := s.next.ModelName()
	keys := make([]string, len(texts))
	// Positions waiting on each distinct missed key.
	pending := make(map[string][]int)
	var missTexts, missKeys []string

	for i, text := range texts {
		keys[i] = Key(model, text)
		if waiting, ok := pending[keys[i]]; ok {
			pending[keys[i]] = append(waiting, i)
			continue
		}
		vec, ok, err := s.store.Get(ctx, keys[i])
		if err != nil {
			logger.Warn("embedding cache: get: %v", err)
		}
		if ok {
			out[i] = vec
			continue
		}
		pending[keys[i]] = []int{i}
		missTexts = append(missTexts, text)
		missKeys = append(missKeys, keys[i])
	}

	if len(missTexts) == 0 {
		logger.Debug("embedding cache: %d/%d hits", len(texts), len(texts))
		return out, nil
	}

	vectors, err := s.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range vectors {
		key := missKeys[j]
		for _, i := range pending[key] {
			out[i] = vec
		}
		if err := s.store.Put(ctx, key, vec); err != nil {
			logger.Warn("embedding cache: put: %v", err)
		}
	}
	logger.Debug("embedding cache: %d/%d hits", len(texts)-len(missTexts), len(texts))
	return out, nil
}

// Dimensions returns the wrapped service's dimensions.
func (s *Service) Dimensions() int { return s.next.Dimensions() }

// ModelName returns the wrapped service's model.
func (s *Service) ModelName() string { return s.next.ModelName() }

// Ping pings the wrapped service.
func (s *Service) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

// Close closes the wrapped service.
func (s *Service) Close() error { return s.next.Close() }

// Memory is an in-process EmbeddingCache.
type Memory struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{vectors: make(map[string][]float32)}
}

// Get returns a copy of the cached vector.
func (m *Memory) Get(_ context.Context, key string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vectors[key]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), v...), true, nil
}

// Put stores a copy of vector.
func (m *Memory) Put(_ context.Context, key string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[key] = append([]float32(nil), vector...)
	return nil
}

// Len returns the number of cached vectors.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}
