package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
)

// Ensure CorpusStore implements the interface.
var _ driven.CorpusStore = (*CorpusStore)(nil)

// CorpusStore is an in-memory implementation of driven.CorpusStore.
type CorpusStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
}

// NewCorpusStore creates a new in-memory corpus store.
func NewCorpusStore() *CorpusStore {
	return &CorpusStore{
		documents: make(map[string]domain.Document),
	}
}

// SaveDocuments stores or updates documents. Nothing is stored if any
// document is invalid.
func (s *CorpusStore) SaveDocuments(_ context.Context, docs []domain.Document) error {
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.documents[doc.ID] = cloneDocument(doc)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *CorpusStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	doc = cloneDocument(doc)
	return &doc, nil
}

// ListDocuments returns all documents ordered by ID.
func (s *CorpusStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, cloneDocument(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// DeleteDocuments removes documents by ID.
func (s *CorpusStore) DeleteDocuments(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.documents, id)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *CorpusStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}

// cloneDocument copies the slices so callers cannot mutate stored state.
func cloneDocument(doc domain.Document) domain.Document {
	doc.Embedding = append([]float32(nil), doc.Embedding...)
	doc.Metadata.ProductCategories = append([]string(nil), doc.Metadata.ProductCategories...)
	doc.Metadata.CertificationTypes = append([]string(nil), doc.Metadata.CertificationTypes...)
	if doc.Metadata.ChunkIndex != nil {
		n := *doc.Metadata.ChunkIndex
		doc.Metadata.ChunkIndex = &n
	}
	return doc
}
