package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/exportrag/internal/connectors/filesystem"
	"github.com/custodia-labs/exportrag/internal/core/domain"
)

var (
	ingestSourceType string
	ingestCountry    string
	ingestSnapshot   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Load documents into the corpus and index",
	Long: `Loads documents from files or directories, splits long documents into
chunks, embeds them and adds them to the vector index and the corpus store.

JSON and JSON Lines files hold complete documents with metadata. HTML,
Markdown and text files become one document each, tagged with --source-type
and --country. Documents with an existing id are replaced.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSourceType, "source-type", string(domain.SourceGuide), "source type for plain files")
	ingestCmd.Flags().StringVarP(&ingestCountry, "country", "c", "", "country for plain files")
	ingestCmd.Flags().BoolVar(&ingestSnapshot, "snapshot", true, "save an index snapshot afterwards")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}
	st := domain.SourceType(ingestSourceType)
	if !st.IsValid() {
		return invalidf("unknown source type %q", st)
	}
	ctx := cmd.Context()

	var docs []domain.Document
	for _, path := range args {
		conn := filesystem.New(path, filesystem.Options{SourceType: st, Country: ingestCountry})
		loaded, err := conn.Load(ctx)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		cmd.Printf("Loaded %d document(s) from %s\n", len(loaded), path)
		docs = append(docs, loaded...)
	}

	stats, err := ingestService.Ingest(ctx, docs)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	cmd.Printf("Indexed %d document(s) as %d chunk(s), %d embedded.\n",
		stats.Documents, stats.Chunks, stats.Embedded)
	if stats.Replaced > 0 {
		cmd.Println(muted(fmt.Sprintf("Removed %d superseded chunk(s).", stats.Replaced)))
	}

	if !ingestSnapshot {
		return nil
	}
	if err := ingestService.Snapshot(ctx); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			cmd.Println(muted("Snapshot skipped: no snapshot store configured."))
			return nil
		}
		return fmt.Errorf("snapshot failed: %w", err)
	}
	cmd.Println("Index snapshot saved.")
	return nil
}
