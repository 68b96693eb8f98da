// Package flat provides an exact, in-memory vector index.
//
// Every search scores every candidate that passes the metadata filter, so
// results are exact and fully deterministic. The index state is an immutable
// snapshot published through an atomic pointer: readers load the pointer and
// never block, writers build a replacement snapshot and swap it in.
package flat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// ctxCheckInterval is how many entries are scored between context checks.
const ctxCheckInterval = 1024

// Config holds configuration for the flat index.
type Config struct {
	// Metric is the similarity metric (default: cosine).
	Metric domain.SimilarityMetric

	// Dimensions fixes the vector size. Zero infers it from the first Add.
	Dimensions int
}

// entry is one indexed document with its search vector.
type entry struct {
	doc domain.Document

	// vec is the embedding, unit-normalised when the metric is cosine.
	vec []float32
}

// snapshot is an immutable index generation.
type snapshot struct {
	entries    []entry // ordered by document id
	byID       map[string]int
	dims       int
	generation uint64
}

// Index is an exact nearest-neighbour index.
type Index struct {
	metric domain.SimilarityMetric

	// writeMu serialises writers; readers only load current.
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
	closed  atomic.Bool
}

// New creates an empty index.
func New(cfg Config) (*Index, error) {
	if cfg.Metric == "" {
		cfg.Metric = domain.MetricCosine
	}
	if !cfg.Metric.IsValid() {
		return nil, fmt.Errorf("%w: unknown similarity metric %q", domain.ErrInvalidInput, cfg.Metric)
	}
	if cfg.Dimensions < 0 {
		return nil, fmt.Errorf("%w: dimensions must not be negative", domain.ErrInvalidInput)
	}

	idx := &Index{metric: cfg.Metric}
	idx.current.Store(&snapshot{byID: map[string]int{}, dims: cfg.Dimensions})
	return idx, nil
}

// Metric returns the similarity metric in use.
func (idx *Index) Metric() domain.SimilarityMetric {
	return idx.metric
}

func (idx *Index) load() (*snapshot, error) {
	if idx.closed.Load() {
		return nil, fmt.Errorf("%w: index closed", domain.ErrIndexUnavailable)
	}
	return idx.current.Load(), nil
}

// Add inserts documents; duplicate ids overwrite.
func (idx *Index) Add(ctx context.Context, docs []domain.Document) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	old, err := idx.load()
	if err != nil {
		return err
	}

	merged := make(map[string]domain.Document, len(old.entries)+len(docs))
	for _, e := range old.entries {
		merged[e.doc.ID] = e.doc
	}
	for i := range docs {
		merged[docs[i].ID] = docs[i]
	}

	next, err := idx.build(mapValues(merged), old.dims, old.generation+1)
	if err != nil {
		return err
	}
	idx.current.Store(next)
	logger.Debug("flat index: added %d document(s), size=%d generation=%d", len(docs), len(next.entries), next.generation)
	return nil
}

// Remove deletes documents by id. Missing ids are ignored.
func (idx *Index) Remove(ctx context.Context, ids []string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	old, err := idx.load()
	if err != nil {
		return err
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := old.byID[id]; ok {
			drop[id] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}

	next := &snapshot{
		entries:    make([]entry, 0, len(old.entries)-len(drop)),
		byID:       make(map[string]int, len(old.entries)-len(drop)),
		dims:       old.dims,
		generation: old.generation + 1,
	}
	for _, e := range old.entries {
		if drop[e.doc.ID] {
			continue
		}
		next.byID[e.doc.ID] = len(next.entries)
		next.entries = append(next.entries, e)
	}
	idx.current.Store(next)
	logger.Debug("flat index: removed %d document(s), size=%d generation=%d", len(drop), len(next.entries), next.generation)
	return nil
}

// Replace swaps in a new index built from docs.
func (idx *Index) Replace(ctx context.Context, docs []domain.Document) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	old, err := idx.load()
	if err != nil {
		return err
	}

	// A replacement may change dimensionality (e.g. a new embedding model)
	// unless the index was configured with a fixed size.
	dims := 0
	if len(old.entries) == 0 {
		dims = old.dims
	}
	next, err := idx.build(dedupe(docs), dims, old.generation+1)
	if err != nil {
		return err
	}
	idx.current.Store(next)
	logger.Debug("flat index: replaced contents, size=%d generation=%d", len(next.entries), next.generation)
	return nil
}

// Rebuild recomputes the index structure from the current document set.
func (idx *Index) Rebuild(ctx context.Context) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	old, err := idx.load()
	if err != nil {
		return err
	}

	docs := make([]domain.Document, len(old.entries))
	for i, e := range old.entries {
		docs[i] = e.doc
	}
	next, err := idx.build(docs, old.dims, old.generation+1)
	if err != nil {
		return err
	}
	idx.current.Store(next)
	logger.Debug("flat index: rebuilt %d document(s), generation=%d", len(next.entries), next.generation)
	return nil
}

// build constructs a snapshot. dims of 0 is inferred from the documents.
func (idx *Index) build(docs []domain.Document, dims int, generation uint64) (*snapshot, error) {
	slices.SortFunc(docs, func(a, b domain.Document) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	snap := &snapshot{
		entries:    make([]entry, 0, len(docs)),
		byID:       make(map[string]int, len(docs)),
		dims:       dims,
		generation: generation,
	}
	for i := range docs {
		doc := docs[i]
		if err := doc.Validate(); err != nil {
			return nil, err
		}
		if len(doc.Embedding) == 0 {
			return nil, fmt.Errorf("%w: document %s has no embedding", domain.ErrInvalidInput, doc.ID)
		}
		if snap.dims == 0 {
			snap.dims = len(doc.Embedding)
		}
		if len(doc.Embedding) != snap.dims {
			return nil, fmt.Errorf("%w: document %s has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, doc.ID, len(doc.Embedding), snap.dims)
		}

		// Documents are owned by the index for the lifetime of the entry.
		doc.Embedding = slices.Clone(doc.Embedding)
		doc.Metadata.ProductCategories = slices.Clone(doc.Metadata.ProductCategories)
		doc.Metadata.CertificationTypes = slices.Clone(doc.Metadata.CertificationTypes)

		snap.byID[doc.ID] = len(snap.entries)
		snap.entries = append(snap.entries, entry{doc: doc, vec: idx.prepare(doc.Embedding)})
	}
	return snap, nil
}

// prepare returns the vector used for scoring.
func (idx *Index) prepare(v []float32) []float32 {
	if idx.metric == domain.MetricCosine {
		return normalise(v)
	}
	return slices.Clone(v)
}

// Search returns at most topK documents satisfying filter.
func (idx *Index) Search(
	ctx context.Context,
	query []float32,
	topK int,
	filter *domain.MetadataFilter,
) ([]domain.ScoredDocument, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", domain.ErrInvalidInput)
	}
	snap, err := idx.load()
	if err != nil {
		return nil, err
	}
	if len(snap.entries) == 0 {
		return []domain.ScoredDocument{}, nil
	}
	if len(query) != snap.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), snap.dims)
	}

	q := idx.prepare(query)
	results := make([]domain.ScoredDocument, 0, min(topK, len(snap.entries)))
	for i := range snap.entries {
		if i%ctxCheckInterval == 0 {
			if err := ctxErr(ctx); err != nil {
				return nil, err
			}
		}
		e := &snap.entries[i]
		if !filter.Matches(e.doc.Metadata) {
			continue
		}
		results = append(results, domain.ScoredDocument{
			Document:       e.doc,
			RelevanceScore: dot(q, e.vec),
		})
	}

	slices.SortFunc(results, compareScored)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SearchByMetadata returns every document satisfying filter, ordered by id.
func (idx *Index) SearchByMetadata(ctx context.Context, filter *domain.MetadataFilter) ([]domain.Document, error) {
	snap, err := idx.load()
	if err != nil {
		return nil, err
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0)
	for i := range snap.entries {
		if filter.Matches(snap.entries[i].doc.Metadata) {
			out = append(out, snap.entries[i].doc)
		}
	}
	return out, nil
}

// Get returns the document with id, if indexed.
func (idx *Index) Get(id string) (domain.Document, bool) {
	snap, err := idx.load()
	if err != nil {
		return domain.Document{}, false
	}
	i, ok := snap.byID[id]
	if !ok {
		return domain.Document{}, false
	}
	return snap.entries[i].doc, true
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.current.Load().entries)
}

// Dimensions returns the vector size, or 0 while unknown.
func (idx *Index) Dimensions() int {
	return idx.current.Load().dims
}

// Generation returns the current generation counter.
func (idx *Index) Generation() uint64 {
	return idx.current.Load().generation
}

// Close marks the index unusable.
func (idx *Index) Close() error {
	idx.closed.Store(true)
	return nil
}

func compareScored(a, b domain.ScoredDocument) int {
	if domain.RankBefore(a, b) {
		return -1
	}
	if domain.RankBefore(b, a) {
		return 1
	}
	return 0
}

func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: vector index: %w", domain.ErrTimeout, err)
	default:
		return err
	}
}

func normalise(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func dedupe(docs []domain.Document) []domain.Document {
	byID := make(map[string]domain.Document, len(docs))
	for i := range docs {
		byID[docs[i].ID] = docs[i]
	}
	return mapValues(byID)
}

func mapValues(m map[string]domain.Document) []domain.Document {
	out := make([]domain.Document, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	return out
}
