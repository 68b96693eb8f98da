package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// SimilarityMetric defines how the vector index scores a candidate.
type SimilarityMetric string

// Available similarity metrics.
const (
	// MetricCosine is cosine similarity, in [-1, 1].
	MetricCosine SimilarityMetric = "cosine"

	// MetricDot is the raw inner product.
	MetricDot SimilarityMetric = "dot"
)

// IsValid returns true if the metric is recognised.
func (m SimilarityMetric) IsValid() bool {
	return m == MetricCosine || m == MetricDot
}

// String returns the string representation.
func (m SimilarityMetric) String() string {
	return string(m)
}

// Description returns a human-readable description of the metric.
func (m SimilarityMetric) Description() string {
	switch m {
	case MetricCosine:
		return "Cosine similarity"
	case MetricDot:
		return "Inner product"
	default:
		return unknownDescription
	}
}

// AIProvider identifies an AI service provider for embeddings or generation.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// SnapshotBackend selects where index snapshots are written.
type SnapshotBackend string

// Available snapshot backends.
const (
	SnapshotFile SnapshotBackend = "file"
	SnapshotBolt SnapshotBackend = "bolt"
)

// IsValid returns true if the backend is recognised.
func (b SnapshotBackend) IsValid() bool {
	return b == SnapshotFile || b == SnapshotBolt
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// BatchSize is the provider's per-request input limit.
	BatchSize int

	// Timeout bounds a single provider call.
	Timeout time.Duration

	// RequestsPerSecond throttles calls client-side. Zero disables throttling.
	RequestsPerSecond float64

	// MaxWait is the longest a call may wait for a throttle token before
	// failing as rate limited.
	MaxWait time.Duration

	// Cache enables the content-hash embedding cache.
	Cache bool

	// Dimensions fixes the vector size. Zero uses the known size of the
	// model, or infers it from the first embedding for unknown models.
	Dimensions int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// BackendSettings configures one text-generation provider.
type BackendSettings struct {
	// ID names the backend in provider preference lists.
	ID string

	// Provider is the service behind this backend.
	Provider AIProvider

	// Model is the generation model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MaxAttempts is the attempt budget before failing over.
	MaxAttempts int
}

// IsConfigured returns true if the backend can be constructed.
func (b BackendSettings) IsConfigured() bool {
	if b.ID == "" || !b.Provider.IsValid() {
		return false
	}
	if b.Provider.RequiresAPIKey() && b.APIKey == "" {
		return false
	}
	return true
}

// RetrySettings controls backoff between backend attempts.
type RetrySettings struct {
	// BaseDelay is the delay before the first retry; it doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
}

// RankingSettings controls the retrieval ranker.
type RankingSettings struct {
	// CandidateMultiplier sizes the candidate pool as a multiple of top_k.
	CandidateMultiplier int

	// AuthoritativeBoost is added to the relevance score of authoritative sources.
	AuthoritativeBoost float64

	// AuthoritativeSources lists source types that receive the boost.
	AuthoritativeSources []SourceType

	// DefaultTopK is used when a caller passes a non-positive top_k.
	DefaultTopK int

	// Metric is the similarity metric used by the vector index.
	Metric SimilarityMetric
}

// IsAuthoritative reports whether st receives the source-priority boost.
func (r RankingSettings) IsAuthoritative(st SourceType) bool {
	for _, a := range r.AuthoritativeSources {
		if a == st {
			return true
		}
	}
	return false
}

// GenerationSettings controls structured generation.
type GenerationSettings struct {
	// MaxRetries is the default schema refinement budget.
	MaxRetries int

	// ProviderPreference orders backend ids for failover.
	ProviderPreference []string

	// MaxContextChars bounds the serialised context block.
	MaxContextChars int

	// ConfidenceThreshold is the inclusive acceptance threshold (0-100).
	ConfidenceThreshold float64
}

// IndexSettings controls index snapshots.
type IndexSettings struct {
	// Snapshot is the snapshot location (file path or bolt database path).
	Snapshot string

	// Backend selects the snapshot sink.
	Backend SnapshotBackend
}

// ChunkSettings controls how long documents are split during ingestion.
type ChunkSettings struct {
	// Size is the target chunk size in characters. Zero disables chunking.
	Size int

	// Overlap is the number of characters shared by consecutive chunks.
	Overlap int
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding  EmbeddingSettings
	Backends   []BackendSettings
	Retry      RetrySettings
	Ranking    RankingSettings
	Generation GenerationSettings
	Index      IndexSettings
	Chunking   ChunkSettings

	// CorpusDir holds the corpus database.
	CorpusDir string
}

// Backend returns the backend with the given id.
func (s *AppSettings) Backend(id string) (BackendSettings, bool) {
	for _, b := range s.Backends {
		if b.ID == id {
			return b, true
		}
	}
	return BackendSettings{}, false
}

// Validate checks settings for values the engine cannot run with.
func (s *AppSettings) Validate() error {
	if s.Embedding.Dimensions < 0 {
		return fmt.Errorf("%w: embedding.dimensions must not be negative", ErrInvalidInput)
	}
	if s.Ranking.CandidateMultiplier < 1 {
		return fmt.Errorf("%w: ranking.candidate_multiplier must be at least 1", ErrInvalidInput)
	}
	if s.Ranking.AuthoritativeBoost < 0 {
		return fmt.Errorf("%w: ranking.authoritative_boost must not be negative", ErrInvalidInput)
	}
	if !s.Ranking.Metric.IsValid() {
		return fmt.Errorf("%w: unknown similarity metric %q", ErrInvalidInput, s.Ranking.Metric)
	}
	if s.Generation.MaxRetries < 0 || s.Generation.MaxRetries > MaxRetriesLimit {
		return fmt.Errorf("%w: generation.max_retries must be between 0 and %d", ErrInvalidInput, MaxRetriesLimit)
	}
	if s.Generation.ConfidenceThreshold < 0 || s.Generation.ConfidenceThreshold > 100 {
		return fmt.Errorf("%w: generation.confidence_threshold must be between 0 and 100", ErrInvalidInput)
	}
	if s.Retry.BaseDelay < 0 || s.Retry.MaxDelay < s.Retry.BaseDelay {
		return fmt.Errorf("%w: retry.max_delay must not be below retry.base_delay", ErrInvalidInput)
	}
	if !s.Index.Backend.IsValid() {
		return fmt.Errorf("%w: unknown snapshot backend %q", ErrInvalidInput, s.Index.Backend)
	}
	for _, st := range s.Ranking.AuthoritativeSources {
		if !st.IsValid() {
			return fmt.Errorf("%w: unknown authoritative source %q", ErrInvalidInput, st)
		}
	}
	return nil
}

// Default tuning values.
const (
	DefaultCandidateMultiplier = 3
	DefaultAuthoritativeBoost  = 0.05
	DefaultTopK                = 5
	DefaultBackendAttempts     = 3
	DefaultRetryBaseDelay      = 500 * time.Millisecond
	DefaultRetryMaxDelay       = 8 * time.Second
	DefaultBackendTimeout      = 60 * time.Second
	DefaultEmbeddingTimeout    = 30 * time.Second
	DefaultEmbeddingMaxWait    = 2 * time.Second
	DefaultChunkSize           = 1500
	DefaultChunkOverlap        = 200
)

// DefaultAuthoritativeSources returns the government-origin source types.
func DefaultAuthoritativeSources() []SourceType {
	return []SourceType{
		SourceRegulation,
		SourceComplianceDoc,
		SourceAgencyInfo,
		SourceTaxSchedule,
		SourceRefusalRecord,
		SourceAlertRecord,
	}
}

// DefaultAppSettings returns settings with sensible defaults.
// Providers are left unconfigured; they must be set in config.toml.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Timeout: DefaultEmbeddingTimeout,
			MaxWait: DefaultEmbeddingMaxWait,
			Cache:   true,
		},
		Retry: RetrySettings{
			BaseDelay: DefaultRetryBaseDelay,
			MaxDelay:  DefaultRetryMaxDelay,
		},
		Ranking: RankingSettings{
			CandidateMultiplier:  DefaultCandidateMultiplier,
			AuthoritativeBoost:   DefaultAuthoritativeBoost,
			AuthoritativeSources: DefaultAuthoritativeSources(),
			DefaultTopK:          DefaultTopK,
			Metric:               MetricCosine,
		},
		Generation: GenerationSettings{
			MaxRetries:          DefaultMaxRetries,
			MaxContextChars:     DefaultMaxContextChars,
			ConfidenceThreshold: DefaultConfidenceThreshold,
		},
		Index: IndexSettings{
			Backend: SnapshotFile,
		},
		Chunking: ChunkSettings{
			Size:    DefaultChunkSize,
			Overlap: DefaultChunkOverlap,
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support text generation.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each generation provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
