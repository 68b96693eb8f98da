package driven

import (
	"context"
	"io"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// VectorIndex stores documents with their embeddings and answers
// nearest-neighbour queries.
//
// Readers never block each other. Add, Remove, Load and Rebuild publish a new
// index generation atomically; an in-flight Search sees either the old
// or the new generation, never a mix.
type VectorIndex interface {
	// Add inserts documents. Ids are assigned upstream; duplicate ids overwrite.
	Add(ctx context.Context, docs []domain.Document) error

	// Remove deletes documents by id. Missing ids are ignored.
	Remove(ctx context.Context, ids []string) error

	// Search returns at most topK documents satisfying filter, ordered by
	// relevance score desc, last updated desc, then id asc.
	// A nil filter matches every document.
	Search(ctx context.Context, query []float32, topK int, filter *domain.MetadataFilter) ([]domain.ScoredDocument, error)

	// SearchByMetadata returns every document satisfying filter, ordered by id.
	SearchByMetadata(ctx context.Context, filter *domain.MetadataFilter) ([]domain.Document, error)

	// Persist writes a snapshot of the current generation to w.
	Persist(ctx context.Context, w io.Writer) error

	// Load replaces the index contents with a snapshot read from r.
	Load(ctx context.Context, r io.Reader) error

	// Replace swaps in a new index built from docs, dropping everything else.
	Replace(ctx context.Context, docs []domain.Document) error

	// Rebuild recomputes the index structure from the full document set.
	Rebuild(ctx context.Context) error

	// Len returns the number of indexed documents.
	Len() int

	// Dimensions returns the vector size, or 0 while the index is empty.
	Dimensions() int

	// Generation returns a counter that increases on every published change.
	Generation() uint64

	// Close releases resources. Subsequent calls fail with domain.ErrIndexUnavailable.
	Close() error
}

// SnapshotStore is an opaque byte sink and source for index snapshots.
type SnapshotStore interface {
	// Save streams a new snapshot through write and commits it atomically.
	Save(ctx context.Context, write func(w io.Writer) error) error

	// Open returns a reader over the most recent snapshot.
	// Returns domain.ErrNotFound if none has been saved.
	Open(ctx context.Context) (io.ReadCloser, error)

	// Location describes where snapshots are kept.
	Location() string
}
