package ingestion_engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/contexta-etl/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor. Plain text is decoded
// from the corpus charset; office, PDF and markup files go through docconv.
type DocconvExtractor struct {
	charset        string
	useReadability bool
}

func NewDocconvExtractor(charset string, useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{charset: charset, useReadability: useReadability}
}

// ExtractText returns the full text of the file at path. Whitespace is kept
// as is so chunk offsets line up with what was read.
func (e *DocconvExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	mime := docconv.MimeTypeByExtension(filepath.Base(path))
	if isPlainText(mime) {
		r, err := decodingReader(f, e.charset)
		if err != nil {
			return "", err
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(b), nil
	}

	res, err := docconv.Convert(f, mime, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv: extraction failed for %s (%s): %w", filepath.Base(path), mime, err)
	}
	return res.Body, nil
}

// isPlainText reports whether mime has no dedicated docconv converter.
func isPlainText(mime string) bool {
	switch {
	case mime == "", mime == "application/octet-stream":
		return true
	case strings.HasPrefix(mime, "text/plain"):
		return true
	}
	return false
}
