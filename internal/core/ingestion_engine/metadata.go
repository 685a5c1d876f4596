package ingestion_engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/logger"
	"github.com/markdave123-py/contexta-etl/internal/models"
)

// Descriptor field names.
const (
	FieldTitle    = "dc.title"
	FieldAbstract = "dc.description.abstract"
	FieldAuthor   = "dc.contributor.author"
	FieldURI      = "dc.identifier.uri"
)

// MetadataIndex maps document ids to their descriptor entry.
type MetadataIndex struct {
	entries map[string]models.DocumentMetadata
}

func NewMetadataIndex(entries map[string]models.DocumentMetadata) *MetadataIndex {
	if entries == nil {
		entries = map[string]models.DocumentMetadata{}
	}
	return &MetadataIndex{entries: entries}
}

func (m *MetadataIndex) Lookup(id string) (models.DocumentMetadata, bool) {
	md, ok := m.entries[id]
	return md, ok
}

func (m *MetadataIndex) Len() int { return len(m.entries) }

// Require returns the entry for id or ErrMetadataNotFound.
func (m *MetadataIndex) Require(id string) (models.DocumentMetadata, error) {
	md, ok := m.entries[id]
	if !ok {
		return models.DocumentMetadata{}, fmt.Errorf("%w: document %q", core.ErrMetadataNotFound, id)
	}
	return md, nil
}

// LoadMetadata reads the descriptor at path, decoding it from charset first.
// Missing or empty fields come back as empty strings and are logged.
func LoadMetadata(path, charset string, log logger.ILogger) (*MetadataIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()

	r, err := decodingReader(f, charset)
	if err != nil {
		return nil, err
	}

	var raw map[string]map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", path, err)
	}

	entries := make(map[string]models.DocumentMetadata, len(raw))
	for id, fields := range raw {
		md := models.DocumentMetadata{
			Title:    first(fields[FieldTitle]),
			Abstract: first(fields[FieldAbstract]),
			Authors:  all(fields[FieldAuthor]),
			URI:      first(fields[FieldURI]),
		}
		if missing := missingFields(md); len(missing) > 0 && log != nil {
			log.Warn("metadata", "descriptor entry has empty fields", map[string]interface{}{
				"doc_id": id,
				"fields": missing,
			})
		}
		entries[id] = md
	}
	return NewMetadataIndex(entries), nil
}

// all decodes a field that is normally a list of strings but tolerates a bare string.
func all(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil && one != "" {
		return []string{one}
	}
	return nil
}

func first(raw json.RawMessage) string {
	if list := all(raw); len(list) > 0 {
		return list[0]
	}
	return ""
}

func missingFields(md models.DocumentMetadata) []string {
	var out []string
	if md.Title == "" {
		out = append(out, FieldTitle)
	}
	if md.Abstract == "" {
		out = append(out, FieldAbstract)
	}
	if len(md.Authors) == 0 {
		out = append(out, FieldAuthor)
	}
	if md.URI == "" {
		out = append(out, FieldURI)
	}
	return out
}

// DocumentID derives the descriptor key from a corpus file name: the base
// name up to its first dot, so "1234.5.txt" maps to "1234".
func DocumentID(filename string) string {
	base := filepath.Base(filename)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// CorpusFile is one document staged in the workspace.
type CorpusFile struct {
	DocID string
	Path  string
}

// ListCorpus returns the regular files directly under dir in lexical order
// (os.ReadDir sorts by name), skipping the metadata descriptor and dot files.
func ListCorpus(dir, metadataFile string) ([]CorpusFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}

	var out []CorpusFile
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || name == metadataFile || strings.HasPrefix(name, ".") {
			continue
		}
		out = append(out, CorpusFile{DocID: DocumentID(name), Path: filepath.Join(dir, name)})
	}
	return out, nil
}

// ValidateCorpus checks every document has a descriptor entry before any work starts.
func ValidateCorpus(files []CorpusFile, idx *MetadataIndex) error {
	for _, f := range files {
		if _, err := idx.Require(f.DocID); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(f.Path), err)
		}
	}
	return nil
}
