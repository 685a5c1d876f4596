package ingestion_engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocconvExtractor_PlainTextKeepsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1234.txt")
	require.NoError(t, os.WriteFile(path, []byte("  Na\xefve r\xe9sum\xe9\n\n\tend  "), 0o644))

	text, err := NewDocconvExtractor("latin1", false).ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "  Naïve résumé\n\n\tend  ", text)
}

func TestDocconvExtractor_HTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte("<html><body><p>Hello corpus</p></body></html>"), 0o644))

	text, err := NewDocconvExtractor("utf-8", false).ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello corpus")
}

func TestDocconvExtractor_Errors(t *testing.T) {
	e := NewDocconvExtractor("utf-8", false)
	_, err := e.ExtractText(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ExtractText(ctx, "whatever.txt")
	assert.ErrorIs(t, err, context.Canceled)
}
