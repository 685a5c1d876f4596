// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/markdave123-py/contexta-etl/internal/config"
	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/core/bleveindex"
	db "github.com/markdave123-py/contexta-etl/internal/core/database"
	"github.com/markdave123-py/contexta-etl/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-etl/internal/core/llm"
	objectclient "github.com/markdave123-py/contexta-etl/internal/core/object-client"
	"github.com/markdave123-py/contexta-etl/internal/core/retry"
	"github.com/markdave123-py/contexta-etl/internal/core/workspace"
	"github.com/markdave123-py/contexta-etl/internal/logger"
)

const module = "app"

const (
	ProviderAzureOpenAI = "azure-openai"
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"

	BackendPgvector = "pgvector"
	BackendBleve    = "bleve"
)

// App owns the shared clients of a run. Stage-specific dependencies (the
// embedder, the index backend) are built on demand so each command only
// needs the settings it uses.
type App struct {
	cfg          *config.Config
	log          logger.ILogger
	ObjectClient core.ObjectClient
	Workspace    *workspace.Manager

	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config, log logger.ILogger) (*App, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	appCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	objClient, err := objectclient.NewS3Client(appCtx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("object client: %w", err)
	}

	return &App{
		cfg:          cfg,
		log:          log,
		ObjectClient: objClient,
		Workspace:    workspace.New(cfg.TempDir, cfg.KeepFiles, log),
	}, nil
}

// EmbedPipeline builds the embedding stage from config.
func (a *App) EmbedPipeline(ctx context.Context) (*ingestion_engine.DocumentIngestor, error) {
	if err := a.cfg.ValidateEmbed(); err != nil {
		return nil, err
	}

	counter, err := ingestion_engine.NewTokenCounter(a.cfg.TokenEncoding)
	if err != nil {
		return nil, err
	}
	splitter := ingestion_engine.NewTextSplitter(counter,
		ingestion_engine.WithChunkTokens(a.cfg.ChunkTokens),
		ingestion_engine.WithOverlapTokens(a.cfg.OverlapTokens),
		ingestion_engine.WithSeparators(a.cfg.ChunkSeparators...),
	)

	inner, err := a.newEmbedder(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	embedder := llm.NewBatchEmbedder(inner,
		llm.WithBatchSize(a.cfg.EmbedBatchSize),
		llm.WithDimensions(a.cfg.EmbedDim),
		llm.WithRateLimit(a.cfg.EmbedRPS),
		llm.WithRetryPolicy(a.retryPolicy()),
		llm.WithLogger(a.log),
	)

	useReadability := false
	extractor := ingestion_engine.NewDocconvExtractor(a.cfg.DocumentEncoding, useReadability)

	a.log.Info(module, "embed stage ready", map[string]interface{}{
		"provider": a.cfg.EmbedProvider,
		"encoding": a.cfg.TokenEncoding,
		"dims":     a.cfg.EmbedDim,
	})
	return ingestion_engine.NewDocumentIngestor(a.ObjectClient, embedder, extractor, splitter, a.Workspace, a.ingestConfig(), a.log), nil
}

// IndexLoader builds the indexing stage against cfg.IndexBackend.
func (a *App) IndexLoader(ctx context.Context) (*ingestion_engine.IndexLoader, error) {
	if err := a.cfg.ValidateIndex(); err != nil {
		return nil, err
	}
	builder, err := a.newIndexBuilder(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the index backend, %w", err)
	}
	a.closers = append(a.closers, builder.Close)

	if a.cfg.IndexBackend == BackendBleve {
		a.log.Warn(module, "bleve backend is full-text only; vectors are stored but not searchable", map[string]interface{}{
			"index": a.cfg.IndexName,
			"dir":   a.cfg.BleveIndexDir,
		})
	}
	a.log.Info(module, "index stage ready", map[string]interface{}{"backend": a.cfg.IndexBackend, "index": a.cfg.IndexName})
	return ingestion_engine.NewIndexLoader(a.ObjectClient, builder, a.Workspace, a.ingestConfig(), a.log), nil
}

func (a *App) newEmbedder(ctx context.Context) (core.EmbeddingProvider, error) {
	switch a.cfg.EmbedProvider {
	case ProviderAzureOpenAI:
		return llm.NewOpenAIEmbedder(llm.OpenAIOptions{
			APIKey:     a.cfg.OpenAIAPIKey,
			Endpoint:   a.cfg.AzureOpenAIEndpoint,
			APIVersion: a.cfg.AzureOpenAIAPIVersion,
			Deployment: a.cfg.EmbedDeployment,
			Model:      a.cfg.EmbedModel,
			Dimensions: a.cfg.EmbedDim,
		})
	case ProviderOpenAI:
		return llm.NewOpenAIEmbedder(llm.OpenAIOptions{
			APIKey:     a.cfg.OpenAIAPIKey,
			BaseURL:    a.cfg.OpenAIBaseURL,
			Model:      a.cfg.EmbedModel,
			Dimensions: a.cfg.EmbedDim,
		})
	case ProviderGemini:
		model := a.cfg.EmbedModel
		if model == config.DefaultEmbedModel {
			model = ""
		}
		g, err := llm.NewGeminiEmbedder(ctx, a.cfg.AIAPIKey, model, a.cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	default:
		return nil, fmt.Errorf("unknown embed provider %q", a.cfg.EmbedProvider)
	}
}

func (a *App) newIndexBuilder(ctx context.Context) (core.IndexBuilder, error) {
	switch a.cfg.IndexBackend {
	case BackendPgvector:
		return db.NewIndexClient(ctx, a.cfg, a.log)
	case BackendBleve:
		return bleveindex.NewBuilder(a.cfg, a.log)
	default:
		return nil, fmt.Errorf("unknown index backend %q", a.cfg.IndexBackend)
	}
}

func (a *App) retryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if a.cfg.RetryMaxAttempts > 0 {
		p.MaxAttempts = uint(a.cfg.RetryMaxAttempts)
	}
	if a.cfg.RetryInitialInterval > 0 {
		p.InitialInterval = a.cfg.RetryInitialInterval
	}
	if a.cfg.RetryMaxInterval > 0 {
		p.MaxInterval = a.cfg.RetryMaxInterval
	}
	return p
}

func (a *App) ingestConfig() *ingestion_engine.IngestConfig {
	return &ingestion_engine.IngestConfig{
		Bucket:         a.cfg.RawDataBucket,
		ArchiveName:    a.cfg.RawDataBlobName,
		ArtifactKey:    a.cfg.ChunkEmbeddingsKey,
		MetadataFile:   a.cfg.MetadataFileName,
		Encoding:       a.cfg.DocumentEncoding,
		DocumentLimit:  a.cfg.DocumentLimit,
		EmbedDim:       a.cfg.EmbedDim,
		IndexName:      a.cfg.IndexName,
		IndexBatchSize: a.cfg.IndexBatchSize,
		Retry:          a.retryPolicy(),
	}
}

// Close releases everything the stages opened, most recent first.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
