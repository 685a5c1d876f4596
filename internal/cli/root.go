// Package cli is the command-line surface of the ETL: one command per stage
// plus workspace housekeeping.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/contexta-etl/internal/app"
	"github.com/markdave123-py/contexta-etl/internal/config"
	"github.com/markdave123-py/contexta-etl/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-etl/internal/logger"
)

// version is overridden at build time with -ldflags "-X .../internal/cli.version=...".
var version = "dev"

// Stages is what the stage commands drive.
type Stages interface {
	Embed(ctx context.Context) (ingestion_engine.Ingestor, error)
	Index(ctx context.Context) (ingestion_engine.Loader, error)
	Close() error
}

// Replaced in tests.
var (
	loadConfig = config.LoadConfig
	newLogger  = func(cfg *config.Config) logger.ILogger {
		return logger.NewZapLogger(logger.Options{
			FilePath:   cfg.LogFilePath,
			Production: cfg.Environment == "production",
			Level:      cfg.LogLevel,
		})
	}
	buildStages = newAppStages
)

var (
	envFile string

	cfg *config.Config
	log logger.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "contexta-etl",
	Short: "Chunk, embed and index a document corpus",
	Long: `contexta-etl prepares a document corpus for retrieval in two runs.

The embed stage downloads the zipped corpus, chunks every document, embeds
the chunks and uploads the records as one JSON artifact. The index stage
downloads that artifact, creates the vector index and bulk-loads it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = loadConfig(envFile)
		log = newLogger(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default ./.env)")
}

// Execute runs the root command with ctx, typically cancelled on SIGINT/SIGTERM.
// A failing command is recorded in the log before it is flushed.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if log == nil {
		return err
	}
	if err != nil {
		log.Error("cli", "command failed", map[string]interface{}{"error": err})
	}
	_ = log.Sync()
	return err
}

type appStages struct{ a *app.App }

func newAppStages(ctx context.Context, cfg *config.Config, log logger.ILogger) (Stages, error) {
	a, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return appStages{a: a}, nil
}

func (s appStages) Embed(ctx context.Context) (ingestion_engine.Ingestor, error) {
	return s.a.EmbedPipeline(ctx)
}

func (s appStages) Index(ctx context.Context) (ingestion_engine.Loader, error) {
	return s.a.IndexLoader(ctx)
}

func (s appStages) Close() error { return s.a.Close() }
