package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// RetrievalService ranks indexed documents for a natural-language query.
type RetrievalService struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	ranking  domain.RankingSettings
}

// NewRetrievalService creates a new retrieval service.
// Zero-valued ranking settings fall back to the defaults.
func NewRetrievalService(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	ranking domain.RankingSettings,
) *RetrievalService {
	if ranking.CandidateMultiplier < 1 {
		ranking.CandidateMultiplier = domain.DefaultCandidateMultiplier
	}
	if ranking.DefaultTopK < 1 {
		ranking.DefaultTopK = domain.DefaultTopK
	}
	if ranking.AuthoritativeSources == nil {
		ranking.AuthoritativeSources = domain.DefaultAuthoritativeSources()
	}
	return &RetrievalService{
		embedder: embedder,
		index:    index,
		ranking:  ranking,
	}
}

// Retrieve embeds query, searches a widened candidate pool under filter,
// applies the source-priority boost and returns the best topK.
func (s *RetrievalService) Retrieve(
	ctx context.Context, query string, filter domain.MetadataFilter, topK int,
) ([]domain.ScoredDocument, error) {
	logger.Section("Retrieval")

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = s.ranking.DefaultTopK
	}
	pool := topK * s.ranking.CandidateMultiplier
	logger.Debug("Query: %q, top_k=%d, candidate pool=%d", query, topK, pool)

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("Query embedding failed: %v", err)
		return nil, fmt.Errorf("embed query: %w", timeoutOr(ctx, err))
	}

	candidates, err := s.index.Search(ctx, vec, pool, &filter)
	if err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) {
			logger.Warn("Vector index unavailable (generation %d, %d docs): %v",
				s.index.Generation(), s.index.Len(), err)
		}
		return nil, fmt.Errorf("search index: %w", timeoutOr(ctx, err))
	}
	logger.Debug("Candidates: %d", len(candidates))

	results := s.rank(candidates, &filter, topK)
	logger.Info("Retrieved %d document(s)", len(results))
	return results, nil
}

// rank filters, boosts, sorts and truncates candidates.
func (s *RetrievalService) rank(
	candidates []domain.ScoredDocument, filter *domain.MetadataFilter, topK int,
) []domain.ScoredDocument {
	results := make([]domain.ScoredDocument, 0, len(candidates))
	for _, c := range candidates {
		// The index applies the filter too; re-check so no document leaks
		// through an index that ignores it.
		if !filter.Matches(c.Document.Metadata) {
			continue
		}
		raw := c.Similarity()
		c.SourcePriorityBoost = 0
		if s.ranking.IsAuthoritative(c.Document.Metadata.SourceType) {
			c.SourcePriorityBoost = s.ranking.AuthoritativeBoost
		}
		c.RelevanceScore = raw + c.SourcePriorityBoost
		results = append(results, c)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return domain.RankBefore(results[i], results[j])
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// SearchByMetadata lists documents matching filter, ordered by id.
func (s *RetrievalService) SearchByMetadata(
	ctx context.Context, filter domain.MetadataFilter,
) ([]domain.Document, error) {
	docs, err := s.index.SearchByMetadata(ctx, &filter)
	if err != nil {
		return nil, fmt.Errorf("search by metadata: %w", timeoutOr(ctx, err))
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

// timeoutOr maps an expired caller deadline to domain.ErrTimeout.
func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrTimeout) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}
