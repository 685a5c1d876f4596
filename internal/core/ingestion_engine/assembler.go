package ingestion_engine

import (
	"fmt"
	"strings"

	"github.com/markdave123-py/contexta-etl/internal/models"
)

// AuthorSeparator joins the descriptor's author list into one field.
const AuthorSeparator = "; "

// ChunkID is the corpus-wide key of a chunk.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s_%05d", docID, index)
}

// AssembleRecords pairs chunks[i] with vectors[i] and stamps each record with
// the document metadata.
func AssembleRecords(docID string, md models.DocumentMetadata, chunks []Chunk, vectors [][]float32) ([]models.ChunkRecord, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("assemble %s: %d chunks but %d vectors", docID, len(chunks), len(vectors))
	}

	author := strings.Join(md.Authors, AuthorSeparator)
	out := make([]models.ChunkRecord, len(chunks))
	for i, c := range chunks {
		out[i] = models.ChunkRecord{
			ChunkID:    ChunkID(docID, c.Index),
			ChunkIndex: c.Index,
			DocID:      docID,
			Title:      md.Title,
			Abstract:   md.Abstract,
			Author:     author,
			URL:        md.URI,
			Text:       c.Text,
			Vector:     vectors[i],
		}
	}
	return out, nil
}
