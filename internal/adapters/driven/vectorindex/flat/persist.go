package flat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// snapshotVersion is bumped when the on-disk layout changes.
const snapshotVersion = 1

// snapshotFile is the persisted form of an index generation.
// Embeddings are stored as given; normalised vectors are recomputed on load.
type snapshotFile struct {
	Version    int                     `json:"version"`
	Metric     domain.SimilarityMetric `json:"metric"`
	Dimensions int                     `json:"dimensions"`
	Generation uint64                  `json:"generation"`
	Documents  []domain.Document       `json:"documents"`
}

// Persist writes the current generation to w.
func (idx *Index) Persist(ctx context.Context, w io.Writer) error {
	snap, err := idx.load()
	if err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}

	file := snapshotFile{
		Version:    snapshotVersion,
		Metric:     idx.metric,
		Dimensions: snap.dims,
		Generation: snap.generation,
		Documents:  make([]domain.Document, len(snap.entries)),
	}
	for i := range snap.entries {
		file.Documents[i] = snap.entries[i].doc
	}

	if err := json.NewEncoder(w).Encode(&file); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	logger.Debug("flat index: persisted %d document(s) at generation %d", len(file.Documents), file.Generation)
	return nil
}

// Load replaces the index contents with the snapshot read from r.
// The index metric must match the snapshot metric.
func (idx *Index) Load(ctx context.Context, r io.Reader) error {
	file, err := decodeSnapshot(r)
	if err != nil {
		return err
	}
	if file.Metric != idx.metric {
		return fmt.Errorf("%w: snapshot metric %q does not match index metric %q",
			domain.ErrIndexUnavailable, file.Metric, idx.metric)
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	old, err := idx.load()
	if err != nil {
		return err
	}

	generation := old.generation + 1
	if file.Generation >= generation {
		generation = file.Generation + 1
	}
	next, err := idx.build(file.Documents, file.Dimensions, generation)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	idx.current.Store(next)
	logger.Debug("flat index: loaded %d document(s), generation=%d", len(next.entries), next.generation)
	return nil
}

// Load builds a new index from a snapshot.
func Load(ctx context.Context, r io.Reader) (*Index, error) {
	file, err := decodeSnapshot(r)
	if err != nil {
		return nil, err
	}
	idx, err := New(Config{Metric: file.Metric})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	next, err := idx.build(file.Documents, file.Dimensions, file.Generation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	idx.current.Store(next)
	return idx, nil
}

func decodeSnapshot(r io.Reader) (*snapshotFile, error) {
	var file snapshotFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %w", domain.ErrIndexUnavailable, err)
	}
	if file.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", domain.ErrIndexUnavailable, file.Version)
	}
	if !file.Metric.IsValid() {
		return nil, fmt.Errorf("%w: snapshot has unknown metric %q", domain.ErrIndexUnavailable, file.Metric)
	}
	return &file, nil
}
