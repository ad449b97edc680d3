package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID = int64(2026101601)

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

// EnsureSchema creates every table the engine reads or writes.
// type_signals.signal_id has no foreign key: deleting a catalog signal leaves
// orphan associations, which classification reports instead of failing.
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

	const query = `
CREATE TABLE IF NOT EXISTS document_types (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	label TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	sort_order INTEGER NOT NULL DEFAULT 0,
	auto_assign_threshold DOUBLE PRECISION,
	default_contexts JSONB,
	suggestions_config JSONB,
	flow_locks JSONB,
	meta_schema JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS keywords (
	id TEXT PRIMARY KEY,
	document_type_id TEXT NOT NULL REFERENCES document_types(id) ON DELETE CASCADE,
	keyword TEXT NOT NULL,
	weight DOUBLE PRECISION NOT NULL DEFAULT 1 CHECK (weight >= 0 AND weight <= 10)
);

CREATE TABLE IF NOT EXISTS signals (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	label TEXT NOT NULL,
	pattern TEXT NOT NULL,
	flags TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	protected BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS type_signals (
	id TEXT PRIMARY KEY,
	document_type_id TEXT NOT NULL REFERENCES document_types(id) ON DELETE CASCADE,
	signal_id TEXT NOT NULL,
	weight DOUBLE PRECISION NOT NULL DEFAULT 1,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS extraction_rules (
	id TEXT PRIMARY KEY,
	document_type_id TEXT NOT NULL REFERENCES document_types(id) ON DELETE CASCADE,
	field_name TEXT NOT NULL,
	pattern TEXT NOT NULL,
	post_process TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	confidence DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	document_type_id TEXT REFERENCES document_types(id) ON DELETE SET NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	text_content TEXT,
	text_source TEXT,
	text_sha256 TEXT,
	text_length INTEGER NOT NULL DEFAULT 0,
	pages_ocred INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS properties (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tenants (
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS leases (
	id TEXT PRIMARY KEY,
	property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
	tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	start_date DATE NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	label TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_keywords_type ON keywords(document_type_id);
CREATE INDEX IF NOT EXISTS idx_type_signals_type ON type_signals(document_type_id, sort_order);
CREATE INDEX IF NOT EXISTS idx_rules_type ON extraction_rules(document_type_id, priority);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_leases_status ON leases(status, start_date DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
