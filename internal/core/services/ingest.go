package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService loads documents into the vector index and corpus store and
// manages index snapshots.
type IngestService struct {
	embedder  driven.EmbeddingService
	index     driven.VectorIndex
	corpus    driven.CorpusStore
	snapshots driven.SnapshotStore
	pipeline  driven.PostProcessorPipeline
}

// NewIngestService creates a new ingest service.
// pipeline and snapshots may be nil: documents are then indexed as given
// and Snapshot/Restore fail with domain.ErrInvalidInput.
func NewIngestService(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	corpus driven.CorpusStore,
	snapshots driven.SnapshotStore,
	pipeline driven.PostProcessorPipeline,
) *IngestService {
	return &IngestService{
		embedder:  embedder,
		index:     index,
		corpus:    corpus,
		snapshots: snapshots,
		pipeline:  pipeline,
	}
}

// Ingest processes, embeds and indexes docs, then records them in the
// corpus store. Documents that already carry an embedding are not re-embedded.
func (s *IngestService) Ingest(ctx context.Context, docs []domain.Document) (*driving.IngestStats, error) {
	logger.Section("Ingest")

	stats := &driving.IngestStats{Documents: len(docs)}
	if len(docs) == 0 {
		return stats, nil
	}
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return nil, err
		}
	}

	chunks, err := s.process(ctx, docs)
	if err != nil {
		return nil, err
	}
	stats.Chunks = len(chunks)
	logger.Debug("%d document(s) produced %d chunk(s)", len(docs), len(chunks))

	embedded, err := s.embedMissing(ctx, chunks)
	if err != nil {
		return nil, err
	}
	stats.Embedded = embedded

	stale, err := s.staleIDs(ctx, docs, chunks)
	if err != nil {
		return nil, err
	}

	// The corpus is written first so a failed save never leaves the index
	// holding documents a rebuild would drop.
	if s.corpus != nil {
		if err := s.corpus.SaveDocuments(ctx, chunks); err != nil {
			return nil, fmt.Errorf("save documents: %w", err)
		}
		if err := s.corpus.DeleteDocuments(ctx, stale); err != nil {
			return nil, fmt.Errorf("delete superseded documents: %w", err)
		}
	}
	if err := s.index.Add(ctx, chunks); err != nil {
		return nil, fmt.Errorf("index documents: %w", err)
	}
	if err := s.index.Remove(ctx, stale); err != nil {
		return nil, fmt.Errorf("remove superseded documents: %w", err)
	}
	stats.Replaced = len(stale)

	logger.Info("Ingested %d document(s) as %d chunk(s), %d embedded, %d superseded",
		stats.Documents, stats.Chunks, stats.Embedded, stats.Replaced)
	return stats, nil
}

// staleIDs returns the ids left over from earlier ingestions of docs: the
// parent itself or any of its chunks that the new chunk set does not contain.
func (s *IngestService) staleIDs(ctx context.Context, docs, chunks []domain.Document) ([]string, error) {
	parents := make(map[string]bool, len(docs))
	for i := range docs {
		parents[docs[i].ID] = true
	}
	fresh := make(map[string]bool, len(chunks))
	for i := range chunks {
		fresh[chunks[i].ID] = true
	}

	seen := map[string]bool{}
	var stale []string
	collect := func(existing []domain.Document) {
		for i := range existing {
			d := &existing[i]
			if fresh[d.ID] || seen[d.ID] {
				continue
			}
			if parents[d.ID] || parents[d.Metadata.ParentID] {
				seen[d.ID] = true
				stale = append(stale, d.ID)
			}
		}
	}

	indexed, err := s.index.SearchByMetadata(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list indexed documents: %w", err)
	}
	collect(indexed)
	if s.corpus != nil {
		stored, err := s.corpus.ListDocuments(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stored documents: %w", err)
		}
		collect(stored)
	}
	slices.Sort(stale)
	return stale, nil
}

func (s *IngestService) process(ctx context.Context, docs []domain.Document) ([]domain.Document, error) {
	if s.pipeline == nil {
		return docs, nil
	}
	out := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		processed, err := s.pipeline.Process(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("process document %s: %w", doc.ID, err)
		}
		out = append(out, processed...)
	}
	return out, nil
}

// embedMissing fills in embeddings in place and returns how many were computed.
func (s *IngestService) embedMissing(ctx context.Context, docs []domain.Document) (int, error) {
	var pending []int
	var texts []string
	for i := range docs {
		if len(docs[i].Embedding) == 0 {
			pending = append(pending, i)
			texts = append(texts, docs[i].Content)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed documents: %w", timeoutOr(ctx, err))
	}
	if len(vectors) != len(pending) {
		return 0, fmt.Errorf("%w: got %d embeddings for %d documents",
			domain.ErrEmbeddingUnavailable, len(vectors), len(pending))
	}
	for j, i := range pending {
		docs[i].Embedding = vectors[j]
	}
	return len(pending), nil
}

// Rebuild reconstructs the index from the corpus store and swaps it in.
// Stored documents without an embedding are embedded and saved back.
func (s *IngestService) Rebuild(ctx context.Context) error {
	logger.Section("Rebuild")
	if s.corpus == nil {
		return fmt.Errorf("%w: no corpus store configured", domain.ErrInvalidInput)
	}

	docs, err := s.corpus.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list corpus: %w", err)
	}

	embedded, err := s.embedMissing(ctx, docs)
	if err != nil {
		return err
	}
	if embedded > 0 {
		if err := s.corpus.SaveDocuments(ctx, docs); err != nil {
			return fmt.Errorf("save re-embedded documents: %w", err)
		}
	}

	if err := s.index.Replace(ctx, docs); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	logger.Info("Rebuilt index from %d document(s) (generation %d)", len(docs), s.index.Generation())
	return nil
}

// Snapshot persists the current index.
func (s *IngestService) Snapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return fmt.Errorf("%w: no snapshot store configured", domain.ErrInvalidInput)
	}
	err := s.snapshots.Save(ctx, func(w io.Writer) error {
		return s.index.Persist(ctx, w)
	})
	if err != nil {
		return fmt.Errorf("snapshot index: %w", err)
	}
	logger.Info("Saved snapshot of %d document(s) to %s", s.index.Len(), s.snapshots.Location())
	return nil
}

// Restore replaces the index with the most recent snapshot.
func (s *IngestService) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return fmt.Errorf("%w: no snapshot store configured", domain.ErrInvalidInput)
	}
	rc, err := s.snapshots.Open(ctx)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer rc.Close()

	if err := s.index.Load(ctx, rc); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	logger.Info("Restored %d document(s) from %s", s.index.Len(), s.snapshots.Location())
	return nil
}

// Stats reports the current index state.
func (s *IngestService) Stats(ctx context.Context) (*driving.IndexStats, error) {
	stats := &driving.IndexStats{
		Documents:  s.index.Len(),
		Dimensions: s.index.Dimensions(),
		Generation: s.index.Generation(),
	}
	if s.corpus != nil {
		n, err := s.corpus.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count corpus: %w", err)
		}
		stats.Corpus = n
	}
	if s.snapshots != nil {
		stats.Snapshot = s.snapshots.Location()
	}
	return stats, nil
}

// LoadOrRebuild restores the index from its snapshot, falling back to a
// rebuild from the corpus store when no snapshot exists.
func (s *IngestService) LoadOrRebuild(ctx context.Context) error {
	if s.snapshots != nil {
		err := s.Restore(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("Snapshot restore failed, rebuilding from corpus: %v", err)
		}
	}
	if s.corpus == nil {
		return nil
	}
	return s.Rebuild(ctx)
}
