package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure embedding, generation backends, ranking and other options.

Settings are stored in ~/.exportrag/config.toml. API keys may also come from
the environment or a .env file.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate settings and provider connectivity",
	Long:  `Checks stored settings, then pings the embedding provider and every backend.`,
	RunE:  runSettingsValidate,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long:  `Configure the embedding provider used for ingestion and retrieval.`,
	RunE:  runSettingsEmbedding,
}

var settingsBackendCmd = &cobra.Command{
	Use:   "backend [id]",
	Short: "Add or update a generation backend",
	Long: `Configure a text-generation backend. Backends are tried in the order of
generation.provider_preference; a new backend is appended to that list.`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsBackend,
}

// settingsInput is read by the interactive commands. Tests replace it.
var settingsInput io.Reader = os.Stdin

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsValidateCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsBackendCmd)
	for _, c := range append(settingsCmd.Commands(), settingsCmd) {
		c.Annotations = map[string]string{settingsOnly: ""}
	}
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println(header("Current Settings"))
	cmd.Println()

	// Embedding settings
	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	if settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	if settings.Embedding.Provider.RequiresAPIKey() {
		cmd.Printf("  API Key: %s\n", describeKey(settings.Embedding.APIKey))
	}
	cmd.Printf("  Dimensions: %s\n", describeDimensions(settings.Embedding))
	cmd.Printf("  Cache: %t\n", settings.Embedding.Cache)
	cmd.Printf("  Status: %s\n", configuredStatus(settings.Embedding.IsConfigured()))
	cmd.Println()

	// Generation backends
	cmd.Println("[Backends]")
	if len(settings.Backends) == 0 {
		cmd.Println("  (none)")
	}
	for _, b := range settings.Backends {
		cmd.Printf("  %s: %s, model %s, %d attempt(s), timeout %s [%s]\n",
			b.ID, b.Provider.Description(), b.Model, b.MaxAttempts, b.Timeout,
			configuredStatus(b.IsConfigured()))
		if b.Provider.RequiresAPIKey() {
			cmd.Printf("    API Key: %s\n", describeKey(b.APIKey))
		}
	}
	cmd.Printf("  Retry delay: %s to %s\n", settings.Retry.BaseDelay, settings.Retry.MaxDelay)
	cmd.Println()

	// Ranking and generation
	cmd.Println("[Retrieval]")
	cmd.Printf("  Metric: %s\n", settings.Ranking.Metric.Description())
	cmd.Printf("  Default top_k: %d (candidate pool x%d)\n",
		settings.Ranking.DefaultTopK, settings.Ranking.CandidateMultiplier)
	cmd.Printf("  Authoritative boost: +%.2f\n", settings.Ranking.AuthoritativeBoost)
	cmd.Println()

	cmd.Println("[Generation]")
	cmd.Printf("  Max retries: %d\n", settings.Generation.MaxRetries)
	cmd.Printf("  Provider preference: %s\n", strings.Join(settings.Generation.ProviderPreference, ", "))
	cmd.Printf("  Confidence threshold: %.0f\n", settings.Generation.ConfidenceThreshold)
	cmd.Println()

	// Validation
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'exportrag settings embedding' or 'exportrag settings backend <id>' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsValidate(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}
	if err := settingsService.Validate(); err != nil {
		return err
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	var failed []string
	cmd.Print("Embedding provider... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		failed = append(failed, "embedding")
	} else {
		cmd.Println("OK")
	}
	for _, b := range settings.Backends {
		cmd.Printf("Backend %s... ", b.ID)
		if err := settingsService.ValidateBackendConfig(b.ID); err != nil {
			cmd.Printf("FAILED: %v\n", err)
			failed = append(failed, b.ID)
		} else {
			cmd.Println("OK")
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("unreachable: %s", strings.Join(failed, ", "))
	}
	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	reader := bufio.NewReader(settingsInput)

	cmd.Println("Select Embedding Provider")
	provider, model, apiKey := chooseProvider(cmd, reader,
		domain.AllEmbeddingProviders(), domain.DefaultEmbeddingModels())

	if provider != settings.Embedding.Provider || model != settings.Embedding.Model {
		settings.Embedding.Dimensions = 0
	}
	settings.Embedding.Provider = provider
	settings.Embedding.Model = model
	settings.Embedding.APIKey = apiKey
	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	// Validate the configuration by pinging the service
	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding provider configured: %s (%s)\n", provider.Description(), model)
	cmd.Println(muted("Changing the embedding model requires 'exportrag index rebuild'."))
	return nil
}

func runSettingsBackend(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errNotConfigured("settings")
	}
	id := args[0]
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	reader := bufio.NewReader(settingsInput)

	cmd.Printf("Select provider for backend %s\n", id)
	provider, model, apiKey := chooseProvider(cmd, reader,
		domain.AllLLMProviders(), domain.DefaultLLMModels())

	backend := domain.BackendSettings{
		ID:          id,
		Provider:    provider,
		Model:       model,
		APIKey:      apiKey,
		Timeout:     domain.DefaultBackendTimeout,
		MaxAttempts: domain.DefaultBackendAttempts,
	}
	replaced := false
	for i := range settings.Backends {
		if settings.Backends[i].ID == id {
			backend.Timeout = settings.Backends[i].Timeout
			backend.MaxAttempts = settings.Backends[i].MaxAttempts
			settings.Backends[i] = backend
			replaced = true
		}
	}
	if !replaced {
		settings.Backends = append(settings.Backends, backend)
		settings.Generation.ProviderPreference = append(settings.Generation.ProviderPreference, id)
	}

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to configure backend: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateBackendConfig(id); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("backend configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Backend %s configured: %s (%s)\n", id, provider.Description(), model)
	return nil
}

// chooseProvider prompts for a provider, a model and, when needed, an API key.
func chooseProvider(
	cmd *cobra.Command, reader *bufio.Reader,
	providers []domain.AIProvider, defaults map[domain.AIProvider]string,
) (provider domain.AIProvider, model, apiKey string) {
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	provider = providers[idx-1]

	defaultModel := defaults[provider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model = readLine(reader)
	if model == "" {
		model = defaultModel
	}

	if provider.RequiresAPIKey() {
		cmd.Print("Enter API key (empty to use the environment): ")
		apiKey = readPassword(reader)
		cmd.Println()
	}
	return provider, model, apiKey
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

func readPassword(reader *bufio.Reader) string {
	// Try to read password without echo
	if f, ok := settingsInput.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	// Fallback to regular input
	return readLine(reader)
}

func describeKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	return maskAPIKey(key)
}

func describeDimensions(e domain.EmbeddingSettings) string {
	if e.Dimensions > 0 {
		return strconv.Itoa(e.Dimensions)
	}
	if d, ok := domain.EmbeddingDimensions()[e.Model]; ok {
		return strconv.Itoa(d)
	}
	return "inferred from first embedding"
}

func configuredStatus(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

