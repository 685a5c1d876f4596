package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/core/retry"
	"github.com/markdave123-py/contexta-etl/internal/core/workspace"
	"github.com/markdave123-py/contexta-etl/internal/logger"
	"github.com/markdave123-py/contexta-etl/internal/models"
)

const indexerModule = "indexer"

// IndexLoader runs the indexing stage: it creates the chunk index and fills
// it from the artifact the embedding stage uploaded.
type IndexLoader struct {
	obj     core.ObjectClient
	builder core.IndexBuilder
	ws      *workspace.Manager
	cfg     *IngestConfig
	log     logger.ILogger
}

func NewIndexLoader(obj core.ObjectClient, builder core.IndexBuilder, ws *workspace.Manager, cfg *IngestConfig, log logger.ILogger) *IndexLoader {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &IndexLoader{obj: obj, builder: builder, ws: ws, cfg: cfg, log: log}
}

// Run downloads the artifact, creates the index and streams the records into
// it in batches. The workspace is cleared whether or not the run succeeds.
// With recreate set an existing index is dropped first; otherwise it surfaces
// as core.ErrIndexExists.
func (l *IndexLoader) Run(ctx context.Context, recreate bool) (sum *Summary, err error) {
	started := time.Now()
	sum = &Summary{RunID: uuid.NewString(), ArtifactKey: l.cfg.ArtifactKey, IndexName: l.cfg.IndexName}
	log := l.log.With(map[string]interface{}{"run_id": sum.RunID})

	defer func() {
		if _, cerr := l.ws.ClearAll(); cerr != nil {
			log.Warn(indexerModule, "workspace cleanup incomplete", map[string]interface{}{"error": cerr.Error()})
		}
	}()

	if err := l.ws.Create(); err != nil {
		return nil, err
	}

	artifactPath := l.ws.Path(filepath.Base(l.cfg.ArtifactKey))
	n, err := fetch(ctx, l.obj, l.cfg.Bucket, l.cfg.ArtifactKey, artifactPath, l.cfg.Retry, log)
	if err != nil {
		return nil, err
	}
	log.Info(indexerModule, "artifact downloaded", map[string]interface{}{"key": l.cfg.ArtifactKey, "bytes": n})

	if recreate {
		if err := l.builder.DropIndex(ctx, l.cfg.IndexName); err != nil {
			return nil, fmt.Errorf("drop index %s: %w", l.cfg.IndexName, err)
		}
		log.Info(indexerModule, "existing index dropped", map[string]interface{}{"index": l.cfg.IndexName})
	}

	schema := models.DefaultChunkIndexSchema(l.cfg.IndexName, l.cfg.EmbedDim)
	if err := l.builder.CreateIndex(ctx, schema); err != nil {
		if errors.Is(err, core.ErrIndexExists) {
			log.Error(indexerModule, "index already exists; rerun with --recreate to replace it", map[string]interface{}{
				"index": l.cfg.IndexName,
				"error": err,
			})
		}
		return nil, fmt.Errorf("create index %s: %w", l.cfg.IndexName, err)
	}
	log.Info(indexerModule, "index created", map[string]interface{}{"index": l.cfg.IndexName, "dims": l.cfg.EmbedDim})

	records, batches, err := l.load(ctx, artifactPath, log)
	if err != nil {
		return nil, err
	}
	sum.Chunks = records
	sum.Batches = batches
	sum.Elapsed = time.Since(started)

	log.Info(indexerModule, "index loaded", map[string]interface{}{
		"index":   l.cfg.IndexName,
		"records": records,
		"batches": batches,
	})
	return sum, nil
}

// load decodes the artifact on one goroutine and upserts batches on another.
func (l *IndexLoader) load(ctx context.Context, path string, log logger.ILogger) (records, batches int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	g, gctx := errgroup.WithContext(ctx)
	recCh := make(chan models.ChunkRecord, l.cfg.indexBatchSize())

	// artifact -> records.
	g.Go(func() error {
		defer close(recCh)
		rr := NewRecordReader(f, l.cfg.EmbedDim)
		for {
			rec, err := rr.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read artifact: %w", err)
			}
			select {
			case recCh <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	// records -> batched upserts.
	g.Go(func() error {
		size := l.cfg.indexBatchSize()
		batch := make([]models.ChunkRecord, 0, size)

		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			err := retry.Run(gctx, l.cfg.Retry, "upsert batch", log, func(ctx context.Context) error {
				return l.builder.BulkUpsert(ctx, l.cfg.IndexName, batch)
			})
			if err != nil {
				return fmt.Errorf("upsert batch %d: %w", batches+1, err)
			}
			records += len(batch)
			batches++
			log.Debug(indexerModule, "batch upserted", map[string]interface{}{"batch": batches, "records": records})
			batch = batch[:0]
			return nil
		}

		for rec := range recCh {
			batch = append(batch, rec)
			if len(batch) == size {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return records, batches, nil
}
