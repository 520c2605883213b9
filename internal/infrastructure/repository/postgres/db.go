package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

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

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	name TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	text_content TEXT NOT NULL,
	language TEXT NOT NULL,
	language_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	size BIGINT NOT NULL DEFAULT 0,
	extension TEXT NOT NULL DEFAULT '',
	last_modified TIMESTAMPTZ,
	validated BOOLEAN NOT NULL DEFAULT FALSE,
	fresh BOOLEAN NOT NULL DEFAULT TRUE,
	access_groups JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (company_id, fingerprint, name)
);

CREATE INDEX IF NOT EXISTS idx_documents_company ON documents(company_id);

CREATE TABLE IF NOT EXISTS tracked_folders (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	private BOOLEAN NOT NULL DEFAULT FALSE,
	access_groups JSONB NOT NULL DEFAULT '[]'::jsonb
);

CREATE TABLE IF NOT EXISTS ownership_links (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	scan_id TEXT NOT NULL,
	path TEXT NOT NULL,
	timestamp TIMESTAMPTZ,
	origin_tag TEXT NOT NULL DEFAULT '',
	tracked_folder_id TEXT REFERENCES tracked_folders(id),
	private BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_ownership_links_document ON ownership_links(document_id);
CREATE INDEX IF NOT EXISTS idx_ownership_links_scan ON ownership_links(scan_id);

CREATE TABLE IF NOT EXISTS scans (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	state TEXT NOT NULL,
	remaining INTEGER NOT NULL DEFAULT 0,
	total INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scans_company_state ON scans(company_id, state);

CREATE TABLE IF NOT EXISTS classifications (
	id BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	category TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	classifier_id TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	validated BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_classifications_document ON classifications(document_id);

CREATE TABLE IF NOT EXISTS mentions (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	kind TEXT NOT NULL,
	start_pos INTEGER NOT NULL,
	end_pos INTEGER NOT NULL,
	occurrence TEXT NOT NULL,
	validated BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_mentions_document_kind ON mentions(document_id, kind);

CREATE TABLE IF NOT EXISTS gdpr_persons (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	name TEXT NOT NULL,
	relation TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_gdpr_persons_company ON gdpr_persons(company_id);

CREATE TABLE IF NOT EXISTS risk_results (
	id BIGSERIAL PRIMARY KEY,
	company_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	tier TEXT NOT NULL,
	data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_results_company ON risk_results(company_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
