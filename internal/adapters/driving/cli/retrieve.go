package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

var (
	retrieveTopK    int
	retrieveJSON    bool
	retrieveFilters filterFlags
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Retrieve ranked context documents",
	Long: `Embeds the query and returns the most relevant corpus documents.
Filters are hard constraints. Government sources (regulations, agency
notices, refusal and alert records, tax schedules) receive a priority boost.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVarP(&retrieveTopK, "top-k", "n", domain.DefaultTopK, "maximum number of results")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output results as JSON")
	retrieveFilters.register(retrieveCmd)
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errNotConfigured("retrieval")
	}
	if err := retrieveFilters.validate(); err != nil {
		return err
	}

	results, err := retrievalService.Retrieve(cmd.Context(), args[0], retrieveFilters.filter(), retrieveTopK)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if retrieveJSON {
		return printJSON(cmd, results)
	}
	outputRetrieveTable(cmd, results)
	return nil
}

func outputRetrieveTable(cmd *cobra.Command, results []domain.ScoredDocument) {
	if len(results) == 0 {
		cmd.Println("No relevant documents found.")
		return
	}

	cmd.Println(header("Results"))
	cmd.Println()
	for i := range results {
		doc := &results[i].Document
		title := doc.Metadata.Title
		if title == "" {
			title = doc.ID
		}

		// Format: [N] Title (score, +boost)
		score := fmt.Sprintf("%.3f", results[i].RelevanceScore)
		if results[i].SourcePriorityBoost > 0 {
			score += fmt.Sprintf(", +%.2f", results[i].SourcePriorityBoost)
		}
		cmd.Printf("  [%d] %s (%s)\n", i+1, title, score)
		cmd.Printf("      %s\n", muted(doc.Citation()))
		if snippet := snippetOf(doc.Content, 160); snippet != "" {
			cmd.Printf("      %s\n", snippet)
		}
		cmd.Println()
	}
}

// snippetOf returns the first n runes of content on a single line.
func snippetOf(content string, n int) string {
	s := strings.Join(strings.Fields(content), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
