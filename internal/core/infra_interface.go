package core

import (
	"context"
	"io"

	"github.com/markdave123-py/contexta-etl/internal/models"
)

// ObjectClient defines interactions with S3 or any object storage.
// Transfers are streamed; callers never hand over a whole object as a byte slice.
type ObjectClient interface {
	// Upload streams body to bucket/key. With overwrite=false an existing object
	// yields ErrObjectExists and nothing is written.
	Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string, overwrite bool) error
	// Download streams bucket/key into dst and returns the number of bytes written.
	Download(ctx context.Context, bucket, key string, dst io.WriterAt) (int64, error)
}

// IndexBuilder declares a vector-search index and bulk-loads chunk records into it.
// It abstracts pgvector/bleve so the loader never depends on a specific engine.
type IndexBuilder interface {
	// CreateIndex is not idempotent: an existing index yields ErrIndexExists.
	CreateIndex(ctx context.Context, schema models.IndexSchema) error
	// DropIndex removes the index if present. Missing indexes are not an error.
	DropIndex(ctx context.Context, name string) error
	// BulkUpsert inserts or replaces records keyed by chunk id.
	BulkUpsert(ctx context.Context, name string, records []models.ChunkRecord) error
	Close() error
}
