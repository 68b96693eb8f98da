package driven

import (
	"context"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// CorpusStore persists ingested documents, embeddings included, so the
// vector index can be rebuilt without re-embedding the corpus.
type CorpusStore interface {
	// SaveDocuments upserts documents by id.
	SaveDocuments(ctx context.Context, docs []domain.Document) error

	// GetDocument retrieves a document by id.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns every stored document ordered by id.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// DeleteDocuments removes documents by id. Missing ids are ignored.
	DeleteDocuments(ctx context.Context, ids []string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}
