package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

var (
	generateQuery      string
	generateVars       map[string]string
	generateTopK       int
	generateMaxRetries int
	generateProviders  []string
	generateJSON       bool
	generateFilters    filterFlags
)

var generateCmd = &cobra.Command{
	Use:   "generate [task]",
	Short: "Generate a schema-validated structured result",
	Long: `Renders the prompt template for the task and asks the configured model
backends for output matching the task's schema. Invalid output is sent back
with its violations until it conforms or the retry budget is used up.

With --query, context documents are retrieved first and included in the prompt.

Tasks: hs_classification, certification_guidance, risk_assessment, question,
or any schema added to ~/.exportrag/schemas.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateQuery, "query", "q", "", "retrieve context for this query")
	generateCmd.Flags().StringToStringVar(&generateVars, "var", nil, "template variable (key=value, repeatable)")
	generateCmd.Flags().IntVarP(&generateTopK, "top-k", "n", domain.DefaultTopK, "context documents to retrieve")
	generateCmd.Flags().IntVar(&generateMaxRetries, "max-retries", -1, "schema refinement rounds (-1 uses the configured default)")
	generateCmd.Flags().StringSliceVar(&generateProviders, "provider", nil, "backend ids in preference order")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "output the result as JSON")
	generateFilters.register(generateCmd)
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if generationService == nil || schemaStore == nil {
		return errNotConfigured("generation")
	}
	if err := generateFilters.validate(); err != nil {
		return err
	}
	ctx := cmd.Context()
	task := args[0]

	schema, err := schemaStore.Get(task)
	if err != nil {
		return fmt.Errorf("task %s: %w", task, err)
	}

	vars := make(map[string]string, len(generateVars)+2)
	for k, v := range generateVars {
		vars[k] = v
	}
	filter := generateFilters.filter()
	if filter.Country != "" {
		vars["country"] = filter.Country
	}

	var contextDocs []domain.ScoredDocument
	if generateQuery != "" {
		if retrievalService == nil {
			return errNotConfigured("retrieval")
		}
		vars["query"] = generateQuery
		contextDocs, err = retrievalService.Retrieve(ctx, generateQuery, filter, generateTopK)
		if err != nil {
			return fmt.Errorf("retrieve failed: %w", err)
		}
	}

	maxRetries := generateMaxRetries
	if maxRetries < 0 {
		maxRetries = generationService.Defaults().MaxRetries
	}

	result, err := generationService.GenerateStructured(ctx, domain.GenerationRequest{
		PromptTemplateID:   task,
		Variables:          vars,
		Context:            contextDocs,
		OutputSchema:       schema,
		MaxRetries:         maxRetries,
		ProviderPreference: generateProviders,
	})

	if generateJSON && result != nil {
		if jerr := printJSON(cmd, result); jerr != nil {
			return jerr
		}
		return err
	}
	if result != nil {
		outputGeneration(cmd, result)
	}
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	return nil
}

// outputGeneration prints a success value or the failure with its violations.
func outputGeneration(cmd *cobra.Command, result *domain.GenerationResult) {
	if f := result.Failure; f != nil {
		cmd.Println(failureLine(f))
		for _, v := range f.Violations {
			cmd.Printf("  - %s\n", v.String())
		}
		cmd.Println(muted(fmt.Sprintf("retries used: %d", f.RetriesUsed)))
		return
	}

	s := result.Success
	_ = printJSON(cmd, s.Value)
	cmd.Println(muted(fmt.Sprintf("provider: %s, retries used: %d", s.Provider, s.RetriesUsed)))
}
