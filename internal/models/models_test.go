package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultChunkIndexSchema(t *testing.T) {
	s := DefaultChunkIndexSchema("chunks", 1536)

	key, ok := s.KeyField()
	require.True(t, ok)
	assert.Equal(t, "chunk_id", key.Name)

	var vector IndexField
	for _, f := range s.Fields {
		if f.Type == FieldVector {
			vector = f
		}
		if f.Name == "doc_id" {
			assert.False(t, f.Key, "doc_id is a join field, not the key")
			assert.True(t, f.Filterable)
		}
	}
	assert.Equal(t, 1536, vector.Dimensions)

	algo, ok := s.Algorithm(vector.Profile)
	require.True(t, ok)
	assert.Equal(t, "hnsw", algo.Kind)
	assert.Equal(t, ChunkSearchAlgorithm, algo.Name)
}

func TestIndexSchema_UnknownProfile(t *testing.T) {
	s := DefaultChunkIndexSchema("chunks", 8)
	_, ok := s.Algorithm("nope")
	assert.False(t, ok)

	_, ok = IndexSchema{}.KeyField()
	assert.False(t, ok)
}
