package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
)

var (
	askTask       string
	askTopK       int
	askMaxRetries int
	askProviders  []string
	askJSON       bool
	askFilters    filterFlags
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the corpus",
	Long: `Retrieves context for the question, generates a structured answer and
runs the confidence gate. Answers below the confidence threshold are marked
for review and list their alternatives.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askTask, "task", "t", "", "task schema (default question)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "n", domain.DefaultTopK, "context documents to retrieve")
	askCmd.Flags().IntVar(&askMaxRetries, "max-retries", -1, "schema refinement rounds (-1 uses the configured default)")
	askCmd.Flags().StringSliceVar(&askProviders, "provider", nil, "backend ids in preference order")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the result as JSON")
	askFilters.register(askCmd)
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if advisorService == nil {
		return errNotConfigured("advisor")
	}
	if err := askFilters.validate(); err != nil {
		return err
	}

	req := driving.AskRequest{
		Query:              args[0],
		Task:               askTask,
		Filter:             askFilters.filter(),
		TopK:               askTopK,
		ProviderPreference: askProviders,
	}
	if askMaxRetries >= 0 {
		n := askMaxRetries
		req.MaxRetries = &n
	}

	result, err := advisorService.Ask(cmd.Context(), req)
	if result == nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		if jerr := printJSON(cmd, result); jerr != nil {
			return jerr
		}
	} else {
		outputAsk(cmd, result)
	}

	// A low-confidence answer without alternatives is still shown.
	if err != nil && !errors.Is(err, domain.ErrAlternativesMissing) {
		return fmt.Errorf("ask failed: %w", err)
	}
	return nil
}

func outputAsk(cmd *cobra.Command, result *driving.AskResult) {
	if result.Generation != nil {
		outputGeneration(cmd, result.Generation)
	} else {
		cmd.Println("No relevant documents found.")
	}

	if g := result.Gate; g != nil {
		cmd.Println()
		cmd.Println(decisionBadge(g))
		if g.Reason != "" {
			cmd.Println(muted(g.Reason))
		}
		if len(g.Alternatives) > 0 {
			cmd.Println(header("Alternatives"))
			for _, alt := range g.Alternatives {
				cmd.Printf("  - %v\n", alt)
			}
		}
		if g.NeedsInput {
			cmd.Println("More information is needed to answer with confidence.")
		}
	}

	if len(result.Context) > 0 {
		cmd.Println()
		cmd.Println(header("Sources"))
		for i := range result.Context {
			cmd.Printf("  [%d] %s\n", i+1, result.Context[i].Document.Citation())
		}
	}
	cmd.Println(muted("request: " + result.RequestID))
}
