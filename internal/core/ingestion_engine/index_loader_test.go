package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/logger"
	"github.com/markdave123-py/contexta-etl/internal/models"
)

func artifactBytes(t *testing.T, recs []models.ChunkRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	rw := NewRecordWriter(&buf)
	require.NoError(t, rw.Write(recs...))
	require.NoError(t, rw.Close())
	return buf.Bytes()
}

func sampleRecords(n int) []models.ChunkRecord {
	out := make([]models.ChunkRecord, n)
	for i := range out {
		out[i] = models.ChunkRecord{
			ChunkID:    ChunkID("doc", i),
			ChunkIndex: i,
			DocID:      "doc",
			Title:      "T",
			Text:       fmt.Sprintf("chunk %d", i),
			Vector:     []float32{float32(i), 0, 0, 1},
		}
	}
	return out
}

func newLoaderFixture(t *testing.T, recs []models.ChunkRecord) (*ingestFixture, *fakeBuilder, *IndexLoader) {
	t.Helper()
	f := newIngestFixture(t, map[string]string{"metadata.json": "{}"})
	f.store.put("corpus", "chunks.json", artifactBytes(t, recs))
	b := newFakeBuilder()
	return f, b, NewIndexLoader(f.store, b, f.ws, f.cfg, logger.NewNopLogger())
}

func TestIndexLoader_Run(t *testing.T) {
	f, b, loader := newLoaderFixture(t, sampleRecords(5))
	b.failFirst = 1

	sum, err := loader.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Chunks)
	assert.Equal(t, 3, sum.Batches)
	assert.Equal(t, []int{2, 2, 1}, b.batches)
	assert.Len(t, b.docs, 5)
	assert.Equal(t, "chunk 3", b.docs["doc_00003"].Text)

	schema := b.indexes["chunks"]
	key, ok := schema.KeyField()
	require.True(t, ok)
	assert.Equal(t, "chunk_id", key.Name)

	assert.Equal(t, []string{".keep"}, f.workspaceEntries(t))
}

func TestIndexLoader_ExistingIndexFailsFastButCleansUp(t *testing.T) {
	f, b, loader := newLoaderFixture(t, sampleRecords(1))
	b.indexes["chunks"] = models.IndexSchema{Name: "chunks"}

	_, err := loader.Run(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIndexExists)
	assert.Empty(t, b.batches)
	assert.Equal(t, []string{".keep"}, f.workspaceEntries(t), "cleanup runs on failure")
}

func TestIndexLoader_Recreate(t *testing.T) {
	_, b, loader := newLoaderFixture(t, sampleRecords(3))
	b.indexes["chunks"] = models.IndexSchema{Name: "chunks"}

	sum, err := loader.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunks"}, b.dropped)
	assert.Equal(t, 3, sum.Chunks)
}

func TestIndexLoader_BadVectorStopsLoad(t *testing.T) {
	recs := sampleRecords(4)
	recs[3].Vector = []float32{1, 2}
	f, _, loader := newLoaderFixture(t, recs)

	_, err := loader.Run(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Equal(t, []string{".keep"}, f.workspaceEntries(t))
}

func TestIndexLoader_MissingArtifact(t *testing.T) {
	f, b, loader := newLoaderFixture(t, nil)
	f.store.remove("corpus", "chunks.json")

	_, err := loader.Run(context.Background(), false)
	assert.ErrorIs(t, err, core.ErrObjectNotFound)
	assert.Empty(t, b.indexes, "index is not created without an artifact")
}
