package cli

import (
	"github.com/spf13/cobra"

	"github.com/markdave123-py/contexta-etl/internal/core/workspace"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Empty the local workspace",
	Long:  `Removes everything under TEMP_DIR_PATH except the names listed in KEEP_FILES.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ws := workspace.New(cfg.TempDir, cfg.KeepFiles, log)
		n, err := ws.ClearAll()
		cmd.Printf("Removed %d entries from %s\n", n, ws.Root())
		return err
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
