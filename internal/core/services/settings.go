package services

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider  = "embedding.provider"
	keyEmbedModel     = "embedding.model"
	keyEmbedBaseURL   = "embedding.base_url"
	keyEmbedAPIKey    = "embedding.api_key"
	keyEmbedBatchSize = "embedding.batch_size"
	keyEmbedTimeout   = "embedding.timeout"
	keyEmbedRPS       = "embedding.requests_per_second"
	keyEmbedMaxWait   = "embedding.max_wait"
	keyEmbedCache     = "embedding.cache"
	keyEmbedDims      = "embedding.dimensions"

	keyBackends = "backends"

	keyRetryBaseDelay = "retry.base_delay"
	keyRetryMaxDelay  = "retry.max_delay"

	keyRankMultiplier    = "ranking.candidate_multiplier"
	keyRankBoost         = "ranking.authoritative_boost"
	keyRankAuthoritative = "ranking.authoritative_sources"
	keyRankTopK          = "ranking.default_top_k"
	keyRankMetric        = "ranking.metric"

	keyGenMaxRetries = "generation.max_retries"
	keyGenPreference = "generation.provider_preference"
	keyGenMaxContext = "generation.max_context_chars"
	keyGenConfidence = "generation.confidence_threshold"

	keyIndexSnapshot = "index.snapshot"
	keyIndexBackend  = "index.snapshot_backend"

	keyChunkSize    = "chunking.size"
	keyChunkOverlap = "chunking.overlap"

	keyCorpusPath = "corpus.path"
)

// Environment variables consulted for API keys missing from config.toml.
//
//nolint:gosec // G101: These are variable names, not credentials.
const (
	envBackendKeyFmt = "EXPORTRAG_%s_API_KEY"
	envOpenAIKey     = "OPENAI_API_KEY"
	envAnthropicKey  = "ANTHROPIC_API_KEY"
)

// setting is one config key written by Save.
type setting struct {
	key   string
	value any
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator

	// getenv resolves API keys missing from the config file.
	getenv func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	embedProvider := s.getProvider(keyEmbedProvider, defaults.Embedding.Provider)
	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider:          embedProvider,
			Model:             s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[embedProvider]),
			BaseURL:           s.configStore.GetString(keyEmbedBaseURL), // No default - empty is valid for cloud providers
			APIKey:            s.apiKey(keyEmbedAPIKey, embedProvider, ""),
			BatchSize:         s.configStore.GetInt(keyEmbedBatchSize),
			Timeout:           s.getDuration(keyEmbedTimeout, defaults.Embedding.Timeout),
			RequestsPerSecond: s.configStore.GetFloat(keyEmbedRPS),
			MaxWait:           s.getDuration(keyEmbedMaxWait, defaults.Embedding.MaxWait),
			Cache:             s.getBool(keyEmbedCache, defaults.Embedding.Cache),
			Dimensions:        s.configStore.GetInt(keyEmbedDims),
		},
		Backends: s.getBackends(),
		Retry: domain.RetrySettings{
			BaseDelay: s.getDuration(keyRetryBaseDelay, defaults.Retry.BaseDelay),
			MaxDelay:  s.getDuration(keyRetryMaxDelay, defaults.Retry.MaxDelay),
		},
		Ranking: domain.RankingSettings{
			CandidateMultiplier:  s.getInt(keyRankMultiplier, defaults.Ranking.CandidateMultiplier),
			AuthoritativeBoost:   s.getFloat(keyRankBoost, defaults.Ranking.AuthoritativeBoost),
			AuthoritativeSources: s.getSourceTypes(keyRankAuthoritative, defaults.Ranking.AuthoritativeSources),
			DefaultTopK:          s.getInt(keyRankTopK, defaults.Ranking.DefaultTopK),
			Metric:               domain.SimilarityMetric(s.getString(keyRankMetric, defaults.Ranking.Metric.String())),
		},
		Generation: domain.GenerationSettings{
			MaxRetries:          s.getIntAllowZero(keyGenMaxRetries, defaults.Generation.MaxRetries),
			ProviderPreference:  s.configStore.GetStringSlice(keyGenPreference),
			MaxContextChars:     s.getInt(keyGenMaxContext, defaults.Generation.MaxContextChars),
			ConfidenceThreshold: s.getFloat(keyGenConfidence, defaults.Generation.ConfidenceThreshold),
		},
		Index: domain.IndexSettings{
			Snapshot: s.configStore.GetString(keyIndexSnapshot),
			Backend:  domain.SnapshotBackend(s.getString(keyIndexBackend, string(defaults.Index.Backend))),
		},
		Chunking: domain.ChunkSettings{
			Size:    s.getIntAllowZero(keyChunkSize, defaults.Chunking.Size),
			Overlap: s.getIntAllowZero(keyChunkOverlap, defaults.Chunking.Overlap),
		},
		CorpusDir: s.configStore.GetString(keyCorpusPath),
	}

	return settings, nil
}

// getBackends reads every backends.<id> table in id order.
func (s *SettingsService) getBackends() []domain.BackendSettings {
	ids := s.configStore.Keys(keyBackends)
	backends := make([]domain.BackendSettings, 0, len(ids))
	for _, id := range ids {
		prefix := keyBackends + "." + id + "."
		provider := s.getProvider(prefix+"provider", "")
		backends = append(backends, domain.BackendSettings{
			ID:          id,
			Provider:    provider,
			Model:       s.getString(prefix+"model", domain.DefaultLLMModels()[provider]),
			BaseURL:     s.configStore.GetString(prefix + "base_url"),
			APIKey:      s.apiKey(prefix+"api_key", provider, id),
			Timeout:     s.getDuration(prefix+"timeout", domain.DefaultBackendTimeout),
			MaxAttempts: s.getInt(prefix+"max_attempts", domain.DefaultBackendAttempts),
		})
	}
	return backends
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []setting{
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedBatchSize, settings.Embedding.BatchSize},
		{keyEmbedTimeout, settings.Embedding.Timeout.String()},
		{keyEmbedRPS, settings.Embedding.RequestsPerSecond},
		{keyEmbedMaxWait, settings.Embedding.MaxWait.String()},
		{keyEmbedCache, settings.Embedding.Cache},
		{keyEmbedDims, settings.Embedding.Dimensions},
		{keyRetryBaseDelay, settings.Retry.BaseDelay.String()},
		{keyRetryMaxDelay, settings.Retry.MaxDelay.String()},
		{keyRankMultiplier, settings.Ranking.CandidateMultiplier},
		{keyRankBoost, settings.Ranking.AuthoritativeBoost},
		{keyRankAuthoritative, sourceTypeStrings(settings.Ranking.AuthoritativeSources)},
		{keyRankTopK, settings.Ranking.DefaultTopK},
		{keyRankMetric, settings.Ranking.Metric.String()},
		{keyGenMaxRetries, settings.Generation.MaxRetries},
		{keyGenPreference, settings.Generation.ProviderPreference},
		{keyGenMaxContext, settings.Generation.MaxContextChars},
		{keyGenConfidence, settings.Generation.ConfidenceThreshold},
		{keyIndexSnapshot, settings.Index.Snapshot},
		{keyIndexBackend, string(settings.Index.Backend)},
		{keyChunkSize, settings.Chunking.Size},
		{keyChunkOverlap, settings.Chunking.Overlap},
		{keyCorpusPath, settings.CorpusDir},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	// API keys are only written when set so that environment keys never
	// leak into the config file.
	if settings.Embedding.APIKey != "" && settings.Embedding.APIKey != s.envKey(settings.Embedding.Provider, "") {
		if err := s.configStore.Set(keyEmbedAPIKey, settings.Embedding.APIKey); err != nil {
			return fmt.Errorf("save embedding api_key: %w", err)
		}
	}

	for _, b := range settings.Backends {
		if err := s.saveBackend(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *SettingsService) saveBackend(b domain.BackendSettings) error {
	if strings.TrimSpace(b.ID) == "" || strings.Contains(b.ID, ".") {
		return fmt.Errorf("%w: invalid backend id %q", domain.ErrInvalidInput, b.ID)
	}
	prefix := keyBackends + "." + b.ID + "."
	values := []setting{
		{"provider", b.Provider.String()},
		{"model", b.Model},
		{"base_url", b.BaseURL},
		{"timeout", b.Timeout.String()},
		{"max_attempts", b.MaxAttempts},
	}
	if b.APIKey != "" && b.APIKey != s.envKey(b.Provider, b.ID) {
		values = append(values, setting{"api_key", b.APIKey})
	}
	for _, v := range values {
		if err := s.configStore.Set(prefix+v.key, v.value); err != nil {
			return fmt.Errorf("save backend %s %s: %w", b.ID, v.key, err)
		}
	}
	return nil
}

// Validate checks the stored settings are complete enough to run.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider is not configured", domain.ErrInvalidInput)
	}
	if len(settings.Backends) == 0 {
		return fmt.Errorf("%w: no generation backends configured", domain.ErrInvalidInput)
	}
	for _, b := range settings.Backends {
		if !b.IsConfigured() {
			return fmt.Errorf("%w: backend %q is not fully configured", domain.ErrInvalidInput, b.ID)
		}
	}
	for _, id := range settings.Generation.ProviderPreference {
		if _, ok := settings.Backend(id); !ok {
			return fmt.Errorf("%w: provider preference names unknown backend %q", domain.ErrInvalidInput, id)
		}
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateBackendConfig validates a configured backend by pinging the provider.
func (s *SettingsService) ValidateBackendConfig(id string) error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	b, ok := settings.Backend(id)
	if !ok {
		return fmt.Errorf("backend %s: %w", id, domain.ErrNotFound)
	}
	return s.aiValidator.ValidateBackend(&b)
}

// Helper methods for reading config with defaults.

// apiKey reads key from config, falling back to the environment.
func (s *SettingsService) apiKey(key string, provider domain.AIProvider, backendID string) string {
	if v := s.configStore.GetString(key); v != "" {
		return v
	}
	return s.envKey(provider, backendID)
}

// envKey resolves EXPORTRAG_<ID>_API_KEY first, then the provider variable.
func (s *SettingsService) envKey(provider domain.AIProvider, backendID string) string {
	if backendID != "" {
		name := fmt.Sprintf(envBackendKeyFmt, strings.ToUpper(strings.ReplaceAll(backendID, "-", "_")))
		if v := s.getenv(name); v != "" {
			return v
		}
	}
	switch provider {
	case domain.AIProviderOpenAI:
		return s.getenv(envOpenAIKey)
	case domain.AIProviderAnthropic:
		return s.getenv(envAnthropicKey)
	}
	return ""
}

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

// getIntAllowZero treats an explicit 0 as a value rather than unset.
func (s *SettingsService) getIntAllowZero(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetDuration(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getSourceTypes(key string, defaultVal []domain.SourceType) []domain.SourceType {
	vals := s.configStore.GetStringSlice(key)
	if vals == nil {
		return defaultVal
	}
	out := make([]domain.SourceType, len(vals))
	for i, v := range vals {
		out[i] = domain.SourceType(v)
	}
	return out
}

func sourceTypeStrings(types []domain.SourceType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
