package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/markdave123-py/contexta-etl/internal/config"
	"github.com/markdave123-py/contexta-etl/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		TempDir:            t.TempDir(),
		KeepFiles:          []string{".keep"},
		AwsAccessKey:       "key",
		AwsSecretKey:       "secret",
		AwsRegion:          "us-east-2",
		S3Endpoint:         "http://127.0.0.1:9",
		RawDataBucket:      "corpus",
		RawDataBlobName:    "raw-data",
		ChunkEmbeddingsKey: "chunks.json",
		MetadataFileName:   "metadata.json",
		DocumentEncoding:   "latin1",
		ChunkTokens:        256,
		OverlapTokens:      16,
		ChunkSeparators:    []string{"\n\n", "."},
		TokenEncoding:      "approx",
		EmbedProvider:      ProviderOpenAI,
		OpenAIAPIKey:       "sk-test",
		EmbedModel:         config.DefaultEmbedModel,
		EmbedDim:           8,
		EmbedBatchSize:     4,
		IndexBackend:       BackendBleve,
		IndexName:          "chunks",
		BleveIndexDir:      t.TempDir(),
		IndexBatchSize:     10,
	}
}

func TestNewApp_RequiresRegion(t *testing.T) {
	cfg := testConfig(t)
	cfg.AwsRegion = ""
	_, err := NewApp(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestEmbedPipeline(t *testing.T) {
	ctx := context.Background()
	a, err := NewApp(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	p, err := a.EmbedPipeline(ctx)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestEmbedPipeline_RejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.EmbedProvider = "bert"
	a, err := NewApp(ctx, cfg, nil)
	require.NoError(t, err)

	_, err = a.EmbedPipeline(ctx)
	assert.ErrorContains(t, err, "unknown EMBED_PROVIDER")

	cfg.EmbedProvider = ProviderOpenAI
	cfg.TokenEncoding = "no-such-encoding"
	_, err = a.EmbedPipeline(ctx)
	assert.Error(t, err)
}

func TestIndexLoader_Bleve(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.DebugLevel)
	a, err := NewApp(ctx, testConfig(t), logger.NewFromZap(zap.New(core)))
	require.NoError(t, err)

	l, err := a.IndexLoader(ctx)
	require.NoError(t, err)
	assert.NotNil(t, l)
	warns := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessageSnippet("full-text only").All()
	assert.Len(t, warns, 1)
	assert.Len(t, a.closers, 1)
	assert.NoError(t, a.Close())
	assert.Empty(t, a.closers)
}

func TestIndexLoader_UnknownBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.IndexBackend = "elastic"
	a, err := NewApp(ctx, cfg, nil)
	require.NoError(t, err)

	_, err = a.IndexLoader(ctx)
	assert.ErrorContains(t, err, "unknown INDEX_BACKEND")
}

func TestClose_CollectsEveryFailure(t *testing.T) {
	var order []string
	a := &App{cfg: testConfig(t)}
	a.closers = []func() error{
		func() error { order = append(order, "first"); return errors.New("db busy") },
		func() error { order = append(order, "second"); return nil },
		func() error { order = append(order, "third"); return errors.New("index locked") },
	}

	err := a.Close()

	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.NoError(t, a.Close())
}

func TestIngestConfigFromEnv(t *testing.T) {
	cfg := testConfig(t)
	cfg.RetryMaxAttempts = 7
	cfg.RetryInitialInterval = time.Second
	cfg.DocumentLimit = 3
	a := &App{cfg: cfg}

	ic := a.ingestConfig()
	assert.Equal(t, "corpus", ic.Bucket)
	assert.Equal(t, "raw-data", ic.ArchiveName)
	assert.Equal(t, "chunks.json", ic.ArtifactKey)
	assert.Equal(t, "latin1", ic.Encoding)
	assert.Equal(t, 3, ic.DocumentLimit)
	assert.Equal(t, uint(7), ic.Retry.MaxAttempts)
	assert.Equal(t, time.Second, ic.Retry.InitialInterval)
	assert.Equal(t, 10*time.Second, ic.Retry.MaxInterval)
}
