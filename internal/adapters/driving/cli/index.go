package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the vector index",
	Long:  `Rebuild, snapshot, restore, inspect or list the vector index.`,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index from the corpus store",
	Long: `Re-embeds documents without a stored embedding and replaces the index
atomically. Searches running during the rebuild see the previous index.`,
	Args: cobra.NoArgs,
	RunE: runIndexRebuild,
}

var indexSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save the index to the snapshot store",
	Args:  cobra.NoArgs,
	RunE:  runIndexSnapshot,
}

var indexRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Load the index from the snapshot store",
	Args:  cobra.NoArgs,
	RunE:  runIndexRestore,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents matching a filter",
	Args:  cobra.NoArgs,
	RunE:  runIndexList,
}

var (
	indexJSON    bool
	indexFilters filterFlags
)

func init() {
	indexStatsCmd.Flags().BoolVar(&indexJSON, "json", false, "output as JSON")
	indexListCmd.Flags().BoolVar(&indexJSON, "json", false, "output as JSON")
	indexFilters.register(indexListCmd)

	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexSnapshotCmd)
	indexCmd.AddCommand(indexRestoreCmd)
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexListCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexRebuild(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}
	if err := ingestService.Rebuild(cmd.Context()); err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	cmd.Println("Index rebuilt.")
	return nil
}

func runIndexSnapshot(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}
	if err := ingestService.Snapshot(cmd.Context()); err != nil {
		return fmt.Errorf("snapshot failed: %w", err)
	}
	cmd.Println("Index snapshot saved.")
	return nil
}

func runIndexRestore(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}
	if err := ingestService.Restore(cmd.Context()); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	cmd.Println("Index restored.")
	return nil
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}
	stats, err := ingestService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	if indexJSON {
		return printJSON(cmd, stats)
	}

	cmd.Println(header("Index"))
	cmd.Printf("  Documents:  %d\n", stats.Documents)
	cmd.Printf("  Dimensions: %d\n", stats.Dimensions)
	cmd.Printf("  Generation: %d\n", stats.Generation)
	cmd.Printf("  Corpus:     %d\n", stats.Corpus)
	if stats.Snapshot != "" {
		cmd.Printf("  Snapshot:   %s\n", stats.Snapshot)
	}
	return nil
}

func runIndexList(cmd *cobra.Command, _ []string) error {
	if retrievalService == nil {
		return errNotConfigured("retrieval")
	}
	if err := indexFilters.validate(); err != nil {
		return err
	}

	docs, err := retrievalService.SearchByMetadata(cmd.Context(), indexFilters.filter())
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}
	if indexJSON {
		return printJSON(cmd, docs)
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for i := range docs {
		cmd.Printf("%s\t%s\n", docs[i].ID, muted(docs[i].Citation()))
	}
	cmd.Println(muted(fmt.Sprintf("%d document(s)", len(docs))))
	return nil
}
