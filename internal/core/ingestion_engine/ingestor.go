package ingestion_engine

import "context"

// Ingestor is the embedding stage.
type Ingestor interface {
	Run(ctx context.Context) (*Summary, error)
}

// Loader is the indexing stage.
type Loader interface {
	Run(ctx context.Context, recreate bool) (*Summary, error)
}

var (
	_ Ingestor = (*DocumentIngestor)(nil)
	_ Loader   = (*IndexLoader)(nil)
)
