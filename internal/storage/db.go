package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Options holds connection pool settings.
type Options struct {
	Driver          string // sqlite or postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS processing_runs (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	generation  BIGINT NOT NULL,
	file_name   TEXT NOT NULL,
	mime_type   TEXT NOT NULL,
	size_bytes  BIGINT NOT NULL,
	page_count  INTEGER NOT NULL,
	sha256      TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	error_kind  TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at  TIMESTAMP NOT NULL
)`

const createdAtIndex = `CREATE INDEX IF NOT EXISTS idx_processing_runs_created_at ON processing_runs (created_at)`

// Open connects to the audit database, verifies it and applies the schema.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	var driverName string
	switch opts.Driver {
	case "sqlite":
		driverName = "sqlite3"
	case "postgres":
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported audit driver: %s", opts.Driver)
	}

	db, err := sql.Open(driverName, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Driver, err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the audit table if needed.
func Migrate(ctx context.Context, db DB) error {
	for _, stmt := range []string{schema, createdAtIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate audit schema: %w", err)
		}
	}
	return nil
}
