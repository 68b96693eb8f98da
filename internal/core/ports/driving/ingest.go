package driving

import (
	"context"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// IngestService loads corpus documents into the engine.
type IngestService interface {
	// Ingest splits, embeds and indexes documents, recording them in the corpus store.
	Ingest(ctx context.Context, docs []domain.Document) (*IngestStats, error)

	// Rebuild reconstructs the index from the corpus store and swaps it in.
	Rebuild(ctx context.Context) error

	// Snapshot persists the current index to the snapshot store.
	Snapshot(ctx context.Context) error

	// Restore loads the index from the snapshot store.
	Restore(ctx context.Context) error

	// Stats reports the current index state.
	Stats(ctx context.Context) (*IndexStats, error)
}

// IngestStats summarises one ingestion run.
type IngestStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Embedded  int `json:"embedded"`

	// Replaced counts ids from earlier ingestions that the run superseded.
	Replaced int `json:"replaced"`
}

// IndexStats describes the live index.
type IndexStats struct {
	Documents  int    `json:"documents"`
	Dimensions int    `json:"dimensions"`
	Generation uint64 `json:"generation"`
	Corpus     int    `json:"corpus"`
	Snapshot   string `json:"snapshot,omitempty"`
}
