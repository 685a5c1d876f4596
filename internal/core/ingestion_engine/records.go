package ingestion_engine

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/models"
)

// RecordWriter streams ChunkRecords out as one JSON array without holding
// the whole artifact in memory.
type RecordWriter struct {
	w      *bufio.Writer
	n      int
	closed bool
}

func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: bufio.NewWriterSize(w, 64<<10)}
}

func (rw *RecordWriter) Write(recs ...models.ChunkRecord) error {
	if rw.closed {
		return errors.New("record writer closed")
	}
	for i := range recs {
		b, err := json.Marshal(&recs[i])
		if err != nil {
			return fmt.Errorf("encode record %s: %w", recs[i].ChunkID, err)
		}
		sep := ",\n"
		if rw.n == 0 {
			sep = "[\n"
		}
		if _, err := rw.w.WriteString(sep); err != nil {
			return err
		}
		if _, err := rw.w.Write(b); err != nil {
			return err
		}
		rw.n++
	}
	return nil
}

// Count is the number of records written so far.
func (rw *RecordWriter) Count() int { return rw.n }

// Close terminates the array and flushes. It does not close the underlying writer.
func (rw *RecordWriter) Close() error {
	if rw.closed {
		return nil
	}
	rw.closed = true
	tail := "\n]\n"
	if rw.n == 0 {
		tail = "[]\n"
	}
	if _, err := rw.w.WriteString(tail); err != nil {
		return err
	}
	return rw.w.Flush()
}

// RecordReader decodes an artifact written by RecordWriter one record at a time.
// A leading UTF-8 BOM is tolerated. Records without a chunk_id get one derived
// from doc_id and their position within that document.
type RecordReader struct {
	dec     *json.Decoder
	dims    int
	started bool
	done    bool
	n       int
	perDoc  map[string]int
}

// NewRecordReader reads from r. dims > 0 enforces the vector length.
func NewRecordReader(r io.Reader, dims int) *RecordReader {
	bom := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	return &RecordReader{
		dec:    json.NewDecoder(bufio.NewReaderSize(bom, 64<<10)),
		dims:   dims,
		perDoc: make(map[string]int),
	}
}

// Next returns the next record, or io.EOF after the closing bracket.
func (rr *RecordReader) Next() (models.ChunkRecord, error) {
	var rec models.ChunkRecord
	if rr.done {
		return rec, io.EOF
	}

	if !rr.started {
		tok, err := rr.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return rec, fmt.Errorf("artifact is empty: %w", io.ErrUnexpectedEOF)
			}
			return rec, fmt.Errorf("read artifact: %w", err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return rec, fmt.Errorf("artifact must be a JSON array, got %v", tok)
		}
		rr.started = true
	}

	if !rr.dec.More() {
		tok, err := rr.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return rec, fmt.Errorf("read artifact: %w", err)
		}
		if d, ok := tok.(json.Delim); !ok || d != ']' {
			return rec, fmt.Errorf("artifact: unexpected %v after record %d", tok, rr.n)
		}
		rr.done = true
		return rec, io.EOF
	}

	if err := rr.dec.Decode(&rec); err != nil {
		return rec, fmt.Errorf("decode record %d: %w", rr.n, err)
	}
	pos := rr.n
	rr.n++

	if rec.DocID == "" {
		return rec, fmt.Errorf("record %d has no doc_id", pos)
	}
	if rr.dims > 0 && len(rec.Vector) != rr.dims {
		return rec, fmt.Errorf("%w: record %d (%s) has %d values, want %d",
			core.ErrDimensionMismatch, pos, rec.DocID, len(rec.Vector), rr.dims)
	}
	if rec.ChunkID == "" {
		seq := rr.perDoc[rec.DocID]
		rr.perDoc[rec.DocID] = seq + 1
		rec.ChunkIndex = seq
		rec.ChunkID = ChunkID(rec.DocID, seq)
	}
	return rec, nil
}

// Count is the number of records decoded so far.
func (rr *RecordReader) Count() int { return rr.n }
