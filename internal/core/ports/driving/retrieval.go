package driving

import (
	"context"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// RetrievalService turns a natural-language query into ranked context.
type RetrievalService interface {
	// Retrieve returns at most topK documents satisfying filter, best first.
	// An empty slice with a nil error means no relevant knowledge was found.
	Retrieve(ctx context.Context, query string, filter domain.MetadataFilter, topK int) ([]domain.ScoredDocument, error)

	// SearchByMetadata lists indexed documents matching filter without ranking.
	SearchByMetadata(ctx context.Context, filter domain.MetadataFilter) ([]domain.Document, error)
}
