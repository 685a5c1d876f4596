package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/markdave123-py/contexta-etl/internal/models"
)

// tsvColumn is the generated full-text column added for a searchable field.
func tsvColumn(field string) string { return field + "_tsv" }

func ident(parts ...string) string { return pgx.Identifier(parts).Sanitize() }

// opClass maps a schema metric onto the pgvector operator class.
func opClass(metric string) (string, error) {
	switch strings.ToLower(metric) {
	case "cosine":
		return "vector_cosine_ops", nil
	case "euclidean", "l2":
		return "vector_l2_ops", nil
	case "dotproduct", "inner_product", "ip":
		return "vector_ip_ops", nil
	}
	return "", fmt.Errorf("unsupported vector metric %q", metric)
}

// RenderIndexDDL turns a schema into the statements that create its table and
// indexes: one table keyed by the key field, an HNSW index per vector field, a
// GIN index per searchable field and a btree per filterable field.
func RenderIndexDDL(s models.IndexSchema) ([]string, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("index name is empty")
	}
	if _, ok := s.KeyField(); !ok {
		return nil, fmt.Errorf("index %s has no key field", s.Name)
	}

	table := ident(s.Name)
	var (
		cols    []string
		indexes []string
	)

	for _, f := range s.Fields {
		col := ident(f.Name)
		switch f.Type {
		case models.FieldString:
			if f.Key {
				cols = append(cols, col+" TEXT PRIMARY KEY")
			} else {
				cols = append(cols, col+" TEXT NOT NULL DEFAULT ''")
			}
		case models.FieldInt:
			cols = append(cols, col+" INTEGER NOT NULL DEFAULT 0")
		case models.FieldSearchable:
			tsv := ident(tsvColumn(f.Name))
			cols = append(cols,
				col+" TEXT NOT NULL DEFAULT ''",
				fmt.Sprintf("%s tsvector GENERATED ALWAYS AS (to_tsvector('english', %s)) STORED", tsv, col),
			)
			indexes = append(indexes, fmt.Sprintf("CREATE INDEX %s ON %s USING gin (%s)",
				ident(s.Name+"_"+f.Name+"_fts"), table, tsv))
		case models.FieldVector:
			if f.Dimensions <= 0 {
				return nil, fmt.Errorf("vector field %s needs dimensions", f.Name)
			}
			cols = append(cols, fmt.Sprintf("%s vector(%d) NOT NULL", col, f.Dimensions))

			algo, ok := s.Algorithm(f.Profile)
			if !ok {
				return nil, fmt.Errorf("vector field %s: unknown profile %q", f.Name, f.Profile)
			}
			if algo.Kind != "hnsw" {
				return nil, fmt.Errorf("vector field %s: unsupported algorithm kind %q", f.Name, algo.Kind)
			}
			ops, err := opClass(algo.Metric)
			if err != nil {
				return nil, err
			}
			indexes = append(indexes, fmt.Sprintf("CREATE INDEX %s ON %s USING hnsw (%s %s) WITH (m = %d, ef_construction = %d)",
				ident(s.Name+"_"+f.Name+"_hnsw"), table, col, ops, algo.M, algo.EfConstruction))
		default:
			return nil, fmt.Errorf("field %s: unsupported type %q", f.Name, f.Type)
		}

		if f.Filterable && !f.Key {
			indexes = append(indexes, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
				ident(s.Name+"_"+f.Name+"_idx"), table, col))
		}
	}

	create := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", table, strings.Join(cols, ",\n\t"))
	return append([]string{create}, indexes...), nil
}

// chunkColumns is the column order BulkUpsert writes.
var chunkColumns = []string{"chunk_id", "chunk_index", "doc_id", "title", "abstract", "author", "url", "text", "vector"}

func upsertSQL(table string) string {
	cols := make([]string, len(chunkColumns))
	params := make([]string, len(chunkColumns))
	var sets []string
	for i, c := range chunkColumns {
		cols[i] = ident(c)
		params[i] = fmt.Sprintf("$%d", i+1)
		if i > 0 {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", cols[i], cols[i]))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		ident(table), strings.Join(cols, ", "), strings.Join(params, ", "), cols[0], strings.Join(sets, ", "))
}
