// Package bleveindex is the on-disk index backend. Each index lives in its
// own directory under a root. It is full-text only: text is analysed for
// search while vectors are stored alongside the record, unindexed, for a
// reranking step. Vector profiles and algorithms in the schema are ignored.
package bleveindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/multierr"

	"github.com/markdave123-py/contexta-etl/internal/config"
	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/logger"
	"github.com/markdave123-py/contexta-etl/internal/models"
)

const module = "bleve"

// dimsKey holds the declared vector length in the index's internal store.
var dimsKey = []byte("_vector_dims")

// Builder implements core.IndexBuilder with bleve.
type Builder struct {
	root string
	log  logger.ILogger

	mu      sync.Mutex
	indexes map[string]bleve.Index
}

var _ core.IndexBuilder = (*Builder)(nil)

// NewBuilder roots indexes at cfg.BleveIndexDir.
func NewBuilder(cfg *config.Config, log logger.ILogger) (*Builder, error) {
	if cfg == nil || cfg.BleveIndexDir == "" {
		return nil, errors.New("BLEVE_INDEX_DIR is empty")
	}
	return NewBuilderAt(cfg.BleveIndexDir, log)
}

func NewBuilderAt(root string, log logger.ILogger) (*Builder, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create index root: %w", err)
	}
	return &Builder{root: root, log: log, indexes: make(map[string]bleve.Index)}, nil
}

func (b *Builder) path(name string) string { return filepath.Join(b.root, name) }

// BuildMapping translates an index schema into a bleve mapping. Documents
// that don't match the declared fields are not indexed dynamically.
func BuildMapping(schema models.IndexSchema) (*mapping.IndexMappingImpl, error) {
	doc := bleve.NewDocumentStaticMapping()
	for _, f := range schema.Fields {
		var fm *mapping.FieldMapping
		switch f.Type {
		case models.FieldString:
			fm = bleve.NewKeywordFieldMapping()
			fm.IncludeInAll = false
		case models.FieldInt:
			fm = bleve.NewNumericFieldMapping()
			fm.IncludeInAll = false
		case models.FieldSearchable:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = en.AnalyzerName
		case models.FieldVector:
			if f.Dimensions <= 0 {
				return nil, fmt.Errorf("vector field %q needs positive dimensions", f.Name)
			}
			// stored as JSON, not searchable
			fm = bleve.NewTextFieldMapping()
			fm.Index = false
			fm.IncludeInAll = false
			fm.IncludeTermVectors = false
		default:
			return nil, fmt.Errorf("field %q: unsupported type %q", f.Name, f.Type)
		}
		doc.AddFieldMappingsAt(f.Name, fm)
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = en.AnalyzerName
	return im, nil
}

// CreateIndex creates a fresh index directory. An existing one yields core.ErrIndexExists.
func (b *Builder) CreateIndex(ctx context.Context, schema models.IndexSchema) error {
	if schema.Name == "" {
		return errors.New("index name is empty")
	}
	if _, ok := schema.KeyField(); !ok {
		return fmt.Errorf("index %s has no key field", schema.Name)
	}
	im, err := BuildMapping(schema)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	idx, err := bleve.New(b.path(schema.Name), im)
	if errors.Is(err, bleve.ErrorIndexPathExists) {
		return fmt.Errorf("%w: %s", core.ErrIndexExists, b.path(schema.Name))
	}
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	b.indexes[schema.Name] = idx

	dims := 0
	for _, f := range schema.Fields {
		if f.Type == models.FieldVector {
			dims = f.Dimensions
		}
	}
	if dims > 0 {
		if err := idx.SetInternal(dimsKey, []byte(strconv.Itoa(dims))); err != nil {
			return fmt.Errorf("record dimensions: %w", err)
		}
	}

	b.log.Info(module, "index created", map[string]interface{}{"index": schema.Name, "path": b.path(schema.Name), "dims": dims})
	return nil
}

// DropIndex closes and removes the index directory.
func (b *Builder) DropIndex(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx, ok := b.indexes[name]; ok {
		_ = idx.Close()
		delete(b.indexes, name)
	}
	if err := os.RemoveAll(b.path(name)); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}
	return nil
}

// BulkUpsert indexes records as one batch keyed by chunk_id; reindexing an
// id replaces the stored document. Vectors must match the dimensions the
// index was created with.
func (b *Builder) BulkUpsert(ctx context.Context, name string, records []models.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	idx, err := b.open(name)
	if err != nil {
		return err
	}
	dims, err := vectorDims(idx)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if dims > 0 && len(records[i].Vector) != dims {
			return fmt.Errorf("%w: chunk %s has %d values, index %s expects %d",
				core.ErrDimensionMismatch, records[i].ChunkID, len(records[i].Vector), name, dims)
		}
		doc, err := document(&records[i])
		if err != nil {
			return err
		}
		if err := batch.Index(records[i].ChunkID, doc); err != nil {
			return fmt.Errorf("batch %s: %w", records[i].ChunkID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("index batch: %w", err)
	}
	return nil
}

// DocCount reports how many records the index holds.
func (b *Builder) DocCount(name string) (uint64, error) {
	idx, err := b.open(name)
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

func vectorDims(idx bleve.Index) (int, error) {
	raw, err := idx.GetInternal(dimsKey)
	if err != nil {
		return 0, fmt.Errorf("read dimensions: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	return strconv.Atoi(string(raw))
}

func (b *Builder) open(name string) (bleve.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx, ok := b.indexes[name]; ok {
		return idx, nil
	}
	idx, err := bleve.Open(b.path(name))
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", name, err)
	}
	b.indexes[name] = idx
	return idx, nil
}

func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	for name, idx := range b.indexes {
		if cerr := idx.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", name, cerr))
		}
		delete(b.indexes, name)
	}
	return err
}

func document(r *models.ChunkRecord) (map[string]interface{}, error) {
	vec, err := json.Marshal(r.Vector)
	if err != nil {
		return nil, fmt.Errorf("encode vector %s: %w", r.ChunkID, err)
	}
	return map[string]interface{}{
		"chunk_id":    r.ChunkID,
		"chunk_index": float64(r.ChunkIndex),
		"doc_id":      r.DocID,
		"title":       r.Title,
		"abstract":    r.Abstract,
		"author":      r.Author,
		"url":         r.URL,
		"text":        r.Text,
		"vector":      string(vec),
	}, nil
}
