package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/models"
)

// memStore is an in-memory core.ObjectClient.
type memStore struct {
	mu            sync.Mutex
	objects       map[string][]byte
	failDownloads int
	failUploads   int
	downloadCalls int
	uploadCalls   int
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) put(bucket, key string, b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = b
}

func (m *memStore) get(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[bucket+"/"+key]
	return b, ok
}

func (m *memStore) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string, overwrite bool) error {
	m.mu.Lock()
	m.uploadCalls++
	if m.failUploads > 0 {
		m.failUploads--
		m.mu.Unlock()
		return errors.New("503 slow down")
	}
	_, exists := m.objects[bucket+"/"+key]
	m.mu.Unlock()
	if exists && !overwrite {
		return core.ErrObjectExists
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.put(bucket, key, b)
	return nil
}

func (m *memStore) Download(ctx context.Context, bucket, key string, dst io.WriterAt) (int64, error) {
	m.mu.Lock()
	m.downloadCalls++
	if m.failDownloads > 0 {
		m.failDownloads--
		m.mu.Unlock()
		return 0, errors.New("connection reset by peer")
	}
	m.mu.Unlock()
	b, ok := m.get(bucket, key)
	if !ok {
		return 0, core.ErrObjectNotFound
	}
	n, err := dst.WriteAt(b, 0)
	return int64(n), err
}

// remove drops an object, as if it had never been uploaded.
func (m *memStore) remove(bucket, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
}

// fakeEmbedder returns vectors whose first value encodes the call and position.
type fakeEmbedder struct {
	dims  int
	err   error
	calls [][]string
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dims)
		v[0] = float32(len(f.calls)*1000 + i)
		out[i] = v
	}
	return out, nil
}

// fakeBuilder is an in-memory core.IndexBuilder.
type fakeBuilder struct {
	mu        sync.Mutex
	indexes   map[string]models.IndexSchema
	docs      map[string]models.ChunkRecord
	batches   []int
	dropped   []string
	failFirst int
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{indexes: map[string]models.IndexSchema{}, docs: map[string]models.ChunkRecord{}}
}

func (b *fakeBuilder) CreateIndex(ctx context.Context, schema models.IndexSchema) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.indexes[schema.Name]; ok {
		return core.ErrIndexExists
	}
	b.indexes[schema.Name] = schema
	return nil
}

func (b *fakeBuilder) DropIndex(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.indexes, name)
	b.dropped = append(b.dropped, name)
	return nil
}

func (b *fakeBuilder) BulkUpsert(ctx context.Context, name string, records []models.ChunkRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFirst > 0 {
		b.failFirst--
		return errors.New("deadlock detected")
	}
	if _, ok := b.indexes[name]; !ok {
		return errors.New("no such index")
	}
	for _, r := range records {
		b.docs[r.ChunkID] = r
	}
	b.batches = append(b.batches, len(records))
	return nil
}

func (b *fakeBuilder) Close() error { return nil }

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
