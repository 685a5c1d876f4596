package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/core/retry"
	"github.com/markdave123-py/contexta-etl/internal/core/workspace"
	"github.com/markdave123-py/contexta-etl/internal/logger"
)

// IngestConfig tunes both stages of the run.
//
// Bucket:         blob container holding the archive and the artifact.
// ArchiveName:    archive blob is ArchiveName + ".zip"; it is staged under ArchiveName.
// ArtifactKey:    blob key of the chunk records JSON.
// MetadataFile:   descriptor file name inside the archive.
// Encoding:       charset of the descriptor and plain-text documents.
// DocumentLimit:  process at most this many documents (0 = all).
// EmbedDim:       expected vector length, enforced when reading the artifact.
// IndexName:      index created by the index stage.
// IndexBatchSize: records per BulkUpsert call.
// Retry:          policy for idempotent remote calls.
type IngestConfig struct {
	Bucket         string
	ArchiveName    string
	ArtifactKey    string
	MetadataFile   string
	Encoding       string
	DocumentLimit  int
	EmbedDim       int
	IndexName      string
	IndexBatchSize int
	Retry          retry.Policy
}

func (c *IngestConfig) archiveKey() string { return c.ArchiveName + ".zip" }

func (c *IngestConfig) indexBatchSize() int {
	if c.IndexBatchSize <= 0 {
		return 100
	}
	return c.IndexBatchSize
}

// Summary is what a stage reports when it finishes.
type Summary struct {
	RunID       string
	Documents   int
	Skipped     int
	Chunks      int
	Batches     int
	ArtifactKey string
	IndexName   string
	Elapsed     time.Duration
}

// DocumentIngestor runs the embedding stage:
//
// obj:       blob storage for the archive and the artifact.
// embedder:  embedding provider (Azure OpenAI/OpenAI/Gemini).
// extractor: turns a staged corpus file into text.
// splitter:  token-bounded chunker.
// ws:        scratch workspace.
// cfg:       runtime knobs.
type DocumentIngestor struct {
	obj       core.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	splitter  *TextSplitter
	ws        *workspace.Manager
	cfg       *IngestConfig
	log       logger.ILogger
}
