package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/contexta-etl/internal/core"
)

var (
	indexRecreate bool
	indexBackend  string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Create the vector index and load the artifact into it",
	Long: `Downloads the chunk artifact, creates the index and upserts the records
in batches. An existing index is an error unless --recreate is given, in
which case it is dropped first.

The pgvector backend builds an HNSW vector index. The bleve backend is
full-text only: vectors are stored with each record but are not searchable.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexRecreate, "recreate", false, "drop an existing index before creating it")
	indexCmd.Flags().StringVar(&indexBackend, "backend", "", "index backend: pgvector, or bleve for full-text only (default INDEX_BACKEND)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	if indexBackend != "" {
		cfg.IndexBackend = indexBackend
	}

	ctx := cmd.Context()
	stages, err := buildStages(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stages.Close()

	loader, err := stages.Index(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Loading index %s...\n", cfg.IndexName)
	sum, err := loader.Run(ctx, indexRecreate)
	if errors.Is(err, core.ErrIndexExists) {
		return fmt.Errorf("index %s already exists, rerun with --recreate to replace it: %w", cfg.IndexName, err)
	}
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}

	cmd.Printf("Loaded %d records in %d batches into %s (%s)\n", sum.Chunks, sum.Batches, sum.IndexName, sum.Elapsed.Round(time.Millisecond))
	return nil
}
