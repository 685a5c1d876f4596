package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var embedLimit int

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Chunk and embed the corpus into the artifact",
	Long: `Downloads the corpus archive, splits every document into token-bounded
chunks, embeds them and uploads the chunk records as a JSON artifact.
Any failure aborts the run without uploading.`,
	Args: cobra.NoArgs,
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().IntVar(&embedLimit, "limit", 0, "process at most this many documents (0 = all)")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, _ []string) error {
	if embedLimit > 0 {
		cfg.DocumentLimit = embedLimit
	}

	ctx := cmd.Context()
	stages, err := buildStages(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stages.Close()

	ingestor, err := stages.Embed(ctx)
	if err != nil {
		return err
	}

	cmd.Println("Embedding corpus...")
	sum, err := ingestor.Run(ctx)
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}

	cmd.Printf("Embedded %d documents (%d skipped) into %d chunks.\n", sum.Documents, sum.Skipped, sum.Chunks)
	cmd.Printf("Artifact: %s (%s)\n", sum.ArtifactKey, sum.Elapsed.Round(time.Millisecond))
	return nil
}
