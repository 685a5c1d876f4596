package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/core/retry"
	"github.com/markdave123-py/contexta-etl/internal/core/workspace"
	"github.com/markdave123-py/contexta-etl/internal/logger"
)

const ingestorModule = "ingestor"

// NewDocumentIngestor wires the embedding stage.
func NewDocumentIngestor(
	obj core.ObjectClient,
	emb core.EmbeddingProvider,
	extractor core.DocumentExtractor,
	splitter *TextSplitter,
	ws *workspace.Manager,
	cfg *IngestConfig,
	log logger.ILogger,
) *DocumentIngestor {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &DocumentIngestor{
		obj: obj, embedder: emb, extractor: extractor, splitter: splitter,
		ws: ws, cfg: cfg, log: log,
	}
}

// Run downloads and stages the corpus, then for every document in listing
// order extracts, chunks, embeds and appends the records to the artifact,
// which is uploaded at the end. The workspace is cleared only on success so
// a failed run can be inspected.
func (i *DocumentIngestor) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	sum := &Summary{RunID: uuid.NewString(), ArtifactKey: i.cfg.ArtifactKey}
	log := i.log.With(map[string]interface{}{"run_id": sum.RunID})

	if err := i.ws.Create(); err != nil {
		return nil, err
	}

	archivePath := i.ws.Path(i.cfg.archiveKey())
	n, err := fetch(ctx, i.obj, i.cfg.Bucket, i.cfg.archiveKey(), archivePath, i.cfg.Retry, log)
	if err != nil {
		return nil, err
	}
	log.Info(ingestorModule, "archive downloaded", map[string]interface{}{"key": i.cfg.archiveKey(), "bytes": n})

	corpusDir := i.ws.Path(i.cfg.ArchiveName)
	if _, err := i.ws.Stage(archivePath, corpusDir); err != nil {
		return nil, fmt.Errorf("stage corpus: %w", err)
	}

	meta, err := LoadMetadata(filepath.Join(corpusDir, i.cfg.MetadataFile), i.cfg.Encoding, log)
	if err != nil {
		return nil, err
	}

	files, err := ListCorpus(corpusDir, i.cfg.MetadataFile)
	if err != nil {
		return nil, err
	}
	if limit := i.cfg.DocumentLimit; limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	if err := ValidateCorpus(files, meta); err != nil {
		return nil, err
	}
	log.Info(ingestorModule, "embedding corpus", map[string]interface{}{
		"documents":      len(files),
		"chunk_tokens":   i.splitter.ChunkTokens(),
		"overlap_tokens": i.splitter.OverlapTokens(),
	})

	artifactPath := i.ws.Path(filepath.Base(i.cfg.ArtifactKey))
	out, err := os.Create(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}
	defer out.Close()
	rw := NewRecordWriter(out)

	for idx, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks, err := i.processOne(ctx, f, meta, rw, log)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", f.DocID, err)
		}
		if chunks == 0 {
			sum.Skipped++
		}
		sum.Documents++
		sum.Chunks += chunks
		log.Info(ingestorModule, "document embedded", map[string]interface{}{
			"doc_id":   f.DocID,
			"chunks":   chunks,
			"progress": fmt.Sprintf("%d/%d", idx+1, len(files)),
		})
	}

	if err := rw.Close(); err != nil {
		return nil, fmt.Errorf("finish artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close artifact: %w", err)
	}

	if err := push(ctx, i.obj, i.cfg.Bucket, i.cfg.ArtifactKey, artifactPath, i.cfg.Retry, log); err != nil {
		return nil, err
	}
	log.Info(ingestorModule, "artifact uploaded", map[string]interface{}{"key": i.cfg.ArtifactKey, "records": rw.Count()})

	if _, err := i.ws.ClearAll(); err != nil {
		log.Warn(ingestorModule, "workspace cleanup incomplete", map[string]interface{}{"error": err.Error()})
	}

	sum.Elapsed = time.Since(started)
	return sum, nil
}

// processOne chunks and embeds a single document and appends its records.
func (i *DocumentIngestor) processOne(ctx context.Context, f CorpusFile, meta *MetadataIndex, rw *RecordWriter, log logger.ILogger) (int, error) {
	md, err := meta.Require(f.DocID)
	if err != nil {
		return 0, err
	}

	text, err := i.extractor.ExtractText(ctx, f.Path)
	if err != nil {
		return 0, fmt.Errorf("extract: %w", err)
	}

	chunks := i.splitter.Split(text)
	if len(chunks) == 0 {
		log.Warn(ingestorModule, "document has no text", map[string]interface{}{"doc_id": f.DocID})
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for k := range chunks {
		texts[k] = chunks[k].Text
	}
	vecs, err := i.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}

	recs, err := AssembleRecords(f.DocID, md, chunks, vecs)
	if err != nil {
		return 0, err
	}
	if err := rw.Write(recs...); err != nil {
		return 0, fmt.Errorf("write records: %w", err)
	}
	return len(recs), nil
}

// fetch downloads bucket/key to path, starting the file over on every attempt.
func fetch(ctx context.Context, obj core.ObjectClient, bucket, key, path string, p retry.Policy, log logger.ILogger) (int64, error) {
	n, err := retry.Do(ctx, p, "download "+key, log, func(ctx context.Context) (int64, error) {
		f, err := os.Create(path)
		if err != nil {
			return 0, retry.Permanent(err)
		}
		defer f.Close()
		n, err := obj.Download(ctx, bucket, key, f)
		if errors.Is(err, core.ErrObjectNotFound) {
			return 0, retry.Permanent(err)
		}
		if err != nil {
			return 0, err
		}
		return n, f.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}
	return n, nil
}

// push uploads the file at path, replacing any existing object.
func push(ctx context.Context, obj core.ObjectClient, bucket, key, path string, p retry.Policy, log logger.ILogger) error {
	err := retry.Run(ctx, p, "upload "+key, log, func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return retry.Permanent(err)
		}
		defer f.Close()
		err = obj.Upload(ctx, bucket, key, f, "application/json", true)
		if errors.Is(err, core.ErrObjectExists) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return nil
}
