package models

// DocumentMetadata is the descriptor entry for one corpus document.
type DocumentMetadata struct {
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Authors  []string `json:"author"`
	URI      string   `json:"uri"`
}

// ChunkRecord is the unit persisted in the artifact and loaded into the index.
//
// ChunkID is unique across the corpus (doc id + position). DocID is shared by
// every chunk of one document and only serves as a join/filter field.
type ChunkRecord struct {
	ChunkID    string    `json:"chunk_id"`
	ChunkIndex int       `json:"chunk_index"`
	DocID      string    `json:"doc_id"`
	Title      string    `json:"title"`
	Abstract   string    `json:"abstract"`
	Author     string    `json:"author"`
	URL        string    `json:"url"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector"`
}

// FieldType is the logical type of an index field.
type FieldType string

const (
	FieldString     FieldType = "string"     // exact-match
	FieldInt        FieldType = "int"        // 32-bit integer
	FieldSearchable FieldType = "searchable" // full-text analysed
	FieldVector     FieldType = "vector"     // float32 collection
)

// IndexField declares one field of the chunk index.
type IndexField struct {
	Name       string
	Type       FieldType
	Key        bool
	Filterable bool   // gets a lookup index
	Dimensions int    // vector fields only
	Profile    string // vector fields only
}

// VectorAlgorithm is a named nearest-neighbour graph configuration.
type VectorAlgorithm struct {
	Name           string
	Kind           string // "hnsw"
	Metric         string // "cosine"
	M              int
	EfConstruction int
	EfSearch       int
}

// VectorProfile ties vector fields to an algorithm configuration.
type VectorProfile struct {
	Name      string
	Algorithm string
}

// IndexSchema is what CreateIndex declares.
type IndexSchema struct {
	Name       string
	Fields     []IndexField
	Profiles   []VectorProfile
	Algorithms []VectorAlgorithm
}

const (
	ChunkSearchProfile   = "chunks-search"
	ChunkSearchAlgorithm = "chunks-search-algo"
)

// DefaultChunkIndexSchema is the schema for ChunkRecord: chunk_id key, doc_id
// for filtering, plain metadata, full-text text and one HNSW-backed vector field.
func DefaultChunkIndexSchema(name string, dims int) IndexSchema {
	return IndexSchema{
		Name: name,
		Fields: []IndexField{
			{Name: "chunk_id", Type: FieldString, Key: true},
			{Name: "chunk_index", Type: FieldInt},
			{Name: "doc_id", Type: FieldString, Filterable: true},
			{Name: "title", Type: FieldString},
			{Name: "abstract", Type: FieldString},
			{Name: "author", Type: FieldString},
			{Name: "url", Type: FieldString},
			{Name: "text", Type: FieldSearchable},
			{Name: "vector", Type: FieldVector, Dimensions: dims, Profile: ChunkSearchProfile},
		},
		Profiles: []VectorProfile{
			{Name: ChunkSearchProfile, Algorithm: ChunkSearchAlgorithm},
		},
		Algorithms: []VectorAlgorithm{
			{Name: ChunkSearchAlgorithm, Kind: "hnsw", Metric: "cosine", M: 4, EfConstruction: 400, EfSearch: 500},
		},
	}
}

// KeyField returns the key field, if any.
func (s IndexSchema) KeyField() (IndexField, bool) {
	for _, f := range s.Fields {
		if f.Key {
			return f, true
		}
	}
	return IndexField{}, false
}

// Algorithm resolves the algorithm configured for a vector profile.
func (s IndexSchema) Algorithm(profile string) (VectorAlgorithm, bool) {
	for _, p := range s.Profiles {
		if p.Name != profile {
			continue
		}
		for _, a := range s.Algorithms {
			if a.Name == p.Algorithm {
				return a, true
			}
		}
	}
	return VectorAlgorithm{}, false
}
