package core

import "context"

// DocumentExtractor defines the interface for pulling plain text out of a corpus file.
// Implementations pick a strategy from the file name (plain text, PDF, DOCX, HTML...).
type DocumentExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}
