package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/contexta-etl/internal/config"
	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/logger"
	"github.com/markdave123-py/contexta-etl/internal/models"
)

const module = "pgvector"

// Postgres error codes the builder reacts to.
const (
	pgDuplicateTable  = "42P07"
	pgDuplicateObject = "42710"
)

// IndexClient implements core.IndexBuilder on Postgres with pgvector. Each
// index is a table; its vector column carries an HNSW index.
type IndexClient struct {
	db  *sql.DB
	log logger.ILogger
}

var _ core.IndexBuilder = (*IndexClient)(nil)

func NewIndexClient(ctx context.Context, cfg *config.Config, log logger.ILogger) (*IndexClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// A batch job needs few connections.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	log.Info(module, "database ready", nil)

	return &IndexClient{db: db, log: log}, nil
}

// buildDSN pins certificate verification when a CA bundle is configured.
func buildDSN(databaseURL, sslCertPath string) (string, error) {
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *IndexClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// CreateIndex creates the table and its indexes in one transaction and
// records the vector settings in etl_index_meta. An existing table yields
// core.ErrIndexExists.
func (c *IndexClient) CreateIndex(ctx context.Context, schema models.IndexSchema) error {
	stmts, err := RenderIndexDDL(schema)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return classify(err)
		}
	}

	if err := registerIndex(ctx, tx, schema); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create index: %w", err)
	}

	c.log.Info(module, "index created", map[string]interface{}{"index": schema.Name, "statements": len(stmts)})
	return nil
}

func registerIndex(ctx context.Context, tx *sql.Tx, schema models.IndexSchema) error {
	const q = `
		INSERT INTO etl_index_meta
			(index_name, dimensions, profile, algorithm, metric, m, ef_construction, ef_search)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (index_name) DO UPDATE SET
			dimensions = EXCLUDED.dimensions,
			profile = EXCLUDED.profile,
			algorithm = EXCLUDED.algorithm,
			metric = EXCLUDED.metric,
			m = EXCLUDED.m,
			ef_construction = EXCLUDED.ef_construction,
			ef_search = EXCLUDED.ef_search,
			created_at = now()
	`
	for _, f := range schema.Fields {
		if f.Type != models.FieldVector {
			continue
		}
		algo, _ := schema.Algorithm(f.Profile)
		if _, err := tx.ExecContext(ctx, q,
			schema.Name, f.Dimensions, f.Profile, algo.Name, algo.Metric, algo.M, algo.EfConstruction, algo.EfSearch,
		); err != nil {
			return fmt.Errorf("register index: %w", err)
		}
	}
	return nil
}

// DropIndex removes the table and its registry row. Missing indexes are fine.
func (c *IndexClient) DropIndex(ctx context.Context, name string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ident(name)+" CASCADE"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("drop index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM etl_index_meta WHERE index_name = $1`, name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("unregister index: %w", err)
	}
	return tx.Commit()
}

// BulkUpsert writes records in a single transaction, replacing rows with the same chunk_id.
func (c *IndexClient) BulkUpsert(ctx context.Context, name string, records []models.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, upsertSQL(name))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		vec := pgvector.NewVector(r.Vector)
		if _, err := stmt.ExecContext(ctx,
			r.ChunkID, r.ChunkIndex, r.DocID, r.Title, r.Abstract, r.Author, r.URL, r.Text, vec,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert %s: %w", r.ChunkID, err)
		}
	}
	return tx.Commit()
}

// classify maps "relation already exists" onto core.ErrIndexExists.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgDuplicateTable || pgErr.Code == pgDuplicateObject) {
		return fmt.Errorf("%w: %s", core.ErrIndexExists, pgErr.Message)
	}
	return fmt.Errorf("create index: %w", err)
}
