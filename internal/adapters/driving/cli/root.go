// Package cli provides the exportrag command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// version is set at build time.
var version = "dev"

// Services are the ports the commands drive.
type Services struct {
	Retrieval  driving.RetrievalService
	Generation driving.GenerationService
	Advisor    driving.AdvisorService
	Ingest     driving.IngestService
	Settings   driving.SettingsService
	Schemas    driven.SchemaStore

	// WatchConfig reloads prompt templates and schemas on change until ctx
	// is cancelled. May be nil.
	WatchConfig func(ctx context.Context) error

	// Close releases stores and provider clients. May be nil.
	Close func() error
}

// Options are the global flags passed to the bootstrap function.
type Options struct {
	// ConfigDir overrides ~/.exportrag.
	ConfigDir string

	// Ephemeral keeps the corpus and index snapshots in memory.
	Ephemeral bool

	// SettingsOnly skips providers and stores so that settings can be
	// edited before any provider is reachable.
	SettingsOnly bool
}

// BootstrapFunc builds the services for a command invocation.
type BootstrapFunc func(ctx context.Context, opts Options) (*Services, error)

var (
	retrievalService  driving.RetrievalService
	generationService driving.GenerationService
	advisorService    driving.AdvisorService
	ingestService     driving.IngestService
	settingsService   driving.SettingsService
	schemaStore       driven.SchemaStore
	watchConfig       func(ctx context.Context) error
	closeServices     func() error

	bootstrap BootstrapFunc
	opts      Options
	verbose   bool
	jsonLogs  bool
)

// Command annotations read by setup.
const (
	// skipBootstrap marks commands that run without services.
	skipBootstrap = "skip-bootstrap"

	// settingsOnly marks commands that need only the settings service.
	settingsOnly = "settings-only"
)

var rootCmd = &cobra.Command{
	Use:   "exportrag",
	Short: "Retrieval-augmented answers for export regulation questions",
	Long: `exportrag answers exporter questions from a corpus of regulations, guides,
agency notices and compliance records.

Ingest a corpus, then retrieve ranked context, generate schema-validated
structured answers, or ask a question end to end. Low-confidence answers
are flagged for review together with their alternatives.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "trace the retrieval and generation pipeline")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", "", "configuration directory (default ~/.exportrag)")
	rootCmd.PersistentFlags().BoolVar(&opts.Ephemeral, "ephemeral", false, "keep the corpus and index in memory only")
}

// SetBootstrap registers the function that builds services.
func SetBootstrap(fn BootstrapFunc) {
	bootstrap = fn
}

// SetServices installs already-built services.
func SetServices(s *Services) {
	retrievalService = s.Retrieval
	generationService = s.Generation
	advisorService = s.Advisor
	ingestService = s.Ingest
	settingsService = s.Settings
	schemaStore = s.Schemas
	watchConfig = s.WatchConfig
	closeServices = s.Close
}

// Execute runs the root command.
func Execute(ctx context.Context, v string) error {
	if v != "" {
		version = v
	}
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	logger.SetJSON(jsonLogs)

	if _, ok := cmd.Annotations[skipBootstrap]; ok {
		return nil
	}
	if bootstrap == nil || servicesReady() {
		return nil
	}

	o := opts
	if _, ok := cmd.Annotations[settingsOnly]; ok {
		o.SettingsOnly = true
	}
	s, err := bootstrap(cmd.Context(), o)
	if err != nil {
		return fmt.Errorf("initialise: %w", err)
	}
	SetServices(s)
	return nil
}

func teardown() error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

func servicesReady() bool {
	return retrievalService != nil || settingsService != nil || ingestService != nil
}

// errNotConfigured reports a command run without its service.
func errNotConfigured(name string) error {
	return errors.New(name + " service not configured")
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidInput}, args...)...)
}

// printJSON writes v as indented JSON to the command output.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
