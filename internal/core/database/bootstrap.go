package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// bootstrapVersion is the etl_meta row initdb.sql writes.
const bootstrapVersion = 1

// EnsureBootstrapped applies scripts/initdb.sql (vector extension plus the
// index registry) when the recorded schema version is behind.
func EnsureBootstrapped(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current >= bootstrapVersion {
		return nil
	}

	script, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply initdb.sql (v%d over v%d): %w", bootstrapVersion, current, err)
	}
	return tx.Commit()
}

// schemaVersion is the highest version in etl_meta, or 0 before the first bootstrap.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var table sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('etl_meta')::text`).Scan(&table); err != nil {
		return 0, fmt.Errorf("look up etl_meta: %w", err)
	}
	if !table.Valid {
		return 0, nil
	}

	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT max(version) FROM etl_meta`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}
