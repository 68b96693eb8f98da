package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/exportrag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
)

func newSettingsService(store driven.ConfigStore, validator driven.AIConfigValidator, env map[string]string) *SettingsService {
	service := NewSettingsService(store, validator)
	service.getenv = func(name string) string { return env[name] }
	return service
}

func TestNewSettingsService(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store, nil)

	require.NotNil(t, service)
}

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := newSettingsService(memory.NewConfigStore(), nil, nil)

	settings, err := service.Get()

	require.NoError(t, err)
	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults.Ranking, settings.Ranking)
	assert.Equal(t, defaults.Retry, settings.Retry)
	assert.Equal(t, defaults.Generation.MaxRetries, settings.Generation.MaxRetries)
	assert.Equal(t, defaults.Generation.ConfidenceThreshold, settings.Generation.ConfidenceThreshold)
	assert.Equal(t, defaults.Chunking, settings.Chunking)
	assert.Equal(t, domain.SnapshotFile, settings.Index.Backend)
	assert.True(t, settings.Embedding.Cache)
	assert.Empty(t, settings.Backends)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("embedding.provider", "openai")
	_ = store.Set("embedding.requests_per_second", 5)
	_ = store.Set("embedding.cache", false)
	_ = store.Set("embedding.dimensions", 1024)
	_ = store.Set("generation.confidence_threshold", 0)
	_ = store.Set("retry.base_delay", "250ms")
	_ = store.Set("ranking.authoritative_boost", 0.1)
	_ = store.Set("ranking.authoritative_sources", []any{"regulation"})
	_ = store.Set("ranking.metric", "dot")
	_ = store.Set("generation.max_retries", 0)
	_ = store.Set("generation.provider_preference", []any{"local", "cloud"})
	_ = store.Set("index.snapshot_backend", "bolt")
	_ = store.Set("chunking.size", 0)

	service := newSettingsService(store, nil, nil)

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOpenAI, settings.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", settings.Embedding.Model)
	assert.Equal(t, 5.0, settings.Embedding.RequestsPerSecond)
	assert.False(t, settings.Embedding.Cache)
	assert.Equal(t, 1024, settings.Embedding.Dimensions)
	assert.Equal(t, 0.0, settings.Generation.ConfidenceThreshold)
	assert.Equal(t, 250*time.Millisecond, settings.Retry.BaseDelay)
	assert.Equal(t, 0.1, settings.Ranking.AuthoritativeBoost)
	assert.Equal(t, []domain.SourceType{domain.SourceRegulation}, settings.Ranking.AuthoritativeSources)
	assert.Equal(t, domain.MetricDot, settings.Ranking.Metric)
	assert.Equal(t, 0, settings.Generation.MaxRetries)
	assert.Equal(t, []string{"local", "cloud"}, settings.Generation.ProviderPreference)
	assert.Equal(t, domain.SnapshotBolt, settings.Index.Backend)
	assert.Equal(t, 0, settings.Chunking.Size)
}

func TestSettingsService_Get_Backends(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("backends.local.provider", "ollama")
	_ = store.Set("backends.local.base_url", "http://localhost:11434")
	_ = store.Set("backends.cloud.provider", "anthropic")
	_ = store.Set("backends.cloud.model", "claude-3-5-haiku-latest")
	_ = store.Set("backends.cloud.timeout", "20s")
	_ = store.Set("backends.cloud.max_attempts", 5)

	service := newSettingsService(store, nil, nil)

	settings, err := service.Get()

	require.NoError(t, err)
	require.Len(t, settings.Backends, 2)

	cloud, ok := settings.Backend("cloud")
	require.True(t, ok)
	assert.Equal(t, domain.AIProviderAnthropic, cloud.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", cloud.Model)
	assert.Equal(t, 20*time.Second, cloud.Timeout)
	assert.Equal(t, 5, cloud.MaxAttempts)

	local, ok := settings.Backend("local")
	require.True(t, ok)
	assert.Equal(t, "llama3.2", local.Model)
	assert.Equal(t, domain.DefaultBackendTimeout, local.Timeout)
	assert.Equal(t, domain.DefaultBackendAttempts, local.MaxAttempts)
}

func TestSettingsService_Get_APIKeysFromEnvironment(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("embedding.provider", "openai")
	_ = store.Set("backends.primary.provider", "openai")
	_ = store.Set("backends.backup.provider", "anthropic")
	_ = store.Set("backends.configured.provider", "anthropic")
	_ = store.Set("backends.configured.api_key", "from-file")

	service := newSettingsService(store, nil, map[string]string{
		"OPENAI_API_KEY":            "sk-openai",
		"ANTHROPIC_API_KEY":         "sk-ant",
		"EXPORTRAG_PRIMARY_API_KEY": "sk-primary",
	})

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, "sk-openai", settings.Embedding.APIKey)
	primary, _ := settings.Backend("primary")
	assert.Equal(t, "sk-primary", primary.APIKey)
	backup, _ := settings.Backend("backup")
	assert.Equal(t, "sk-ant", backup.APIKey)
	configured, _ := settings.Backend("configured")
	assert.Equal(t, "from-file", configured.APIKey)
}

func TestSettingsService_Get_InvalidProviderReturnsDefault(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("embedding.provider", "invalid_provider")

	service := newSettingsService(store, nil, nil)

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, domain.AIProvider(""), settings.Embedding.Provider)
}

func TestSettingsService_SaveRoundTrip(t *testing.T) {
	store := memory.NewConfigStore()
	service := newSettingsService(store, nil, map[string]string{"OPENAI_API_KEY": "sk-env"})

	want := domain.DefaultAppSettings()
	want.Embedding.Provider = domain.AIProviderOpenAI
	want.Embedding.Model = "text-embedding-3-large"
	want.Embedding.APIKey = "sk-env"
	want.Embedding.Dimensions = 256
	want.Backends = []domain.BackendSettings{
		{ID: "cloud", Provider: domain.AIProviderAnthropic, Model: "m", APIKey: "sk-ant-file",
			Timeout: 15 * time.Second, MaxAttempts: 2},
	}
	want.Generation.ProviderPreference = []string{"cloud"}
	want.Index.Snapshot = "/tmp/snap.db"

	require.NoError(t, service.Save(&want))

	// Keys coming from the environment stay out of the config file.
	_, written := store.Get("embedding.api_key")
	assert.False(t, written)
	assert.Equal(t, "sk-ant-file", store.GetString("backends.cloud.api_key"))

	got, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, want.Embedding, got.Embedding)
	assert.Equal(t, want.Backends, got.Backends)
	assert.Equal(t, want.Ranking, got.Ranking)
	assert.Equal(t, want.Generation, got.Generation)
	assert.Equal(t, want.Index, got.Index)
	assert.Equal(t, want.Chunking, got.Chunking)
}

func TestSettingsService_Save_InvalidBackendID(t *testing.T) {
	service := newSettingsService(memory.NewConfigStore(), nil, nil)
	settings := domain.DefaultAppSettings()
	settings.Backends = []domain.BackendSettings{{ID: "a.b", Provider: domain.AIProviderOllama}}

	err := service.Save(&settings)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// failingConfigStore wraps a ConfigStore and fails Set for one key.
type failingConfigStore struct {
	*memory.ConfigStore
	failOn string
}

func (f *failingConfigStore) Set(key string, value any) error {
	if key == f.failOn {
		return assert.AnError
	}
	return f.ConfigStore.Set(key, value)
}

func TestSettingsService_Save_StoreError(t *testing.T) {
	store := &failingConfigStore{ConfigStore: memory.NewConfigStore(), failOn: "ranking.metric"}
	service := newSettingsService(store, nil, nil)
	settings := domain.DefaultAppSettings()

	err := service.Save(&settings)

	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "ranking.metric")
}

func configuredStore() *memory.ConfigStore {
	store := memory.NewConfigStore()
	_ = store.Set("embedding.provider", "ollama")
	_ = store.Set("backends.local.provider", "ollama")
	return store
}

func TestSettingsService_Validate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(s *memory.ConfigStore)
		wantErr bool
	}{
		{"configured", func(*memory.ConfigStore) {}, false},
		{"no embedding provider", func(s *memory.ConfigStore) { _ = s.Set("embedding.provider", "") }, true},
		{"cloud embedding without key", func(s *memory.ConfigStore) { _ = s.Set("embedding.provider", "openai") }, true},
		{"backend without provider", func(s *memory.ConfigStore) { _ = s.Set("backends.broken.model", "x") }, true},
		{"unknown preference", func(s *memory.ConfigStore) {
			_ = s.Set("generation.provider_preference", []any{"missing"})
		}, true},
		{"retries above limit", func(s *memory.ConfigStore) { _ = s.Set("generation.max_retries", 9) }, true},
		{"bad metric", func(s *memory.ConfigStore) { _ = s.Set("ranking.metric", "euclid") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := configuredStore()
			tt.setup(store)
			service := newSettingsService(store, nil, nil)

			err := service.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettingsService_Validate_NoBackends(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("embedding.provider", "ollama")

	err := newSettingsService(store, nil, nil).Validate()

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsService_GetDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	assert.Equal(t, domain.DefaultAppSettings(), service.GetDefaults())
}

// Mock AIConfigValidator for testing
type mockAIConfigValidator struct {
	embedErr   error
	backendErr error
	checked    string
}

func (m *mockAIConfigValidator) ValidateEmbedding(_ *domain.EmbeddingSettings) error {
	return m.embedErr
}

func (m *mockAIConfigValidator) ValidateBackend(config *domain.BackendSettings) error {
	m.checked = config.ID
	return m.backendErr
}

func TestSettingsService_ValidateEmbeddingConfig(t *testing.T) {
	assert.NoError(t, NewSettingsService(memory.NewConfigStore(), nil).ValidateEmbeddingConfig())
	assert.NoError(t, NewSettingsService(memory.NewConfigStore(), &mockAIConfigValidator{}).ValidateEmbeddingConfig())

	validator := &mockAIConfigValidator{embedErr: assert.AnError}
	assert.ErrorIs(t, NewSettingsService(memory.NewConfigStore(), validator).ValidateEmbeddingConfig(), assert.AnError)
}

func TestSettingsService_ValidateBackendConfig(t *testing.T) {
	validator := &mockAIConfigValidator{}
	service := newSettingsService(configuredStore(), validator, nil)

	require.NoError(t, service.ValidateBackendConfig("local"))
	assert.Equal(t, "local", validator.checked)

	assert.ErrorIs(t, service.ValidateBackendConfig("missing"), domain.ErrNotFound)

	validator.backendErr = assert.AnError
	assert.ErrorIs(t, service.ValidateBackendConfig("local"), assert.AnError)
}
