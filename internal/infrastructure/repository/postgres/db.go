package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2026101701

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	chunk_count INTEGER NOT NULL DEFAULT 0,
	processed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	text TEXT NOT NULL,
	token_count INTEGER NOT NULL,
	char_count INTEGER NOT NULL,
	page_number INTEGER,
	start_offset INTEGER,
	end_offset INTEGER,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS cache_entries (
	id TEXT PRIMARY KEY,
	query_text TEXT NOT NULL,
	query_hash TEXT NOT NULL UNIQUE,
	query_embedding vector,
	answer TEXT NOT NULL,
	sources JSONB NOT NULL DEFAULT '[]'::jsonb,
	model TEXT NOT NULL DEFAULT '',
	token_count INTEGER NOT NULL DEFAULT 0,
	generation_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	hit_count BIGINT NOT NULL DEFAULT 0,
	cost_saved_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	cost_saved_xaf DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	last_hit_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);

CREATE TABLE IF NOT EXISTS cache_document_links (
	cache_entry_id TEXT NOT NULL REFERENCES cache_entries(id) ON DELETE CASCADE,
	document_id TEXT NOT NULL,
	PRIMARY KEY (cache_entry_id, document_id)
);

CREATE INDEX IF NOT EXISTS idx_cache_document_links_document ON cache_document_links(document_id);

CREATE TABLE IF NOT EXISTS cache_document_invalidations (
	document_id TEXT PRIMARY KEY,
	invalidated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_daily_stats (
	day DATE PRIMARY KEY,
	total_requests BIGINT NOT NULL DEFAULT 0,
	cache_hits BIGINT NOT NULL DEFAULT 0,
	cache_misses BIGINT NOT NULL DEFAULT 0,
	hit_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	tokens_saved BIGINT NOT NULL DEFAULT 0,
	cost_saved_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	cost_saved_xaf DOUBLE PRECISION NOT NULL DEFAULT 0
);
`

// EnsureSchema creates every table the service owns.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
