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

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082201)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS class_prompts (
	class_name TEXT PRIMARY KEY,
	fields JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS documents_processed (
	file_ref TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	file_url TEXT NOT NULL DEFAULT '',
	source_area TEXT NOT NULL DEFAULT '',
	class_name TEXT NOT NULL DEFAULT '',
	stages JSONB NOT NULL DEFAULT '{}'::jsonb,
	processed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_processed_class ON documents_processed(class_name);
CREATE INDEX IF NOT EXISTS idx_documents_processed_at ON documents_processed(processed_at DESC);

CREATE TABLE IF NOT EXISTS documents_extracted_fields (
	file_ref TEXT NOT NULL,
	class_name TEXT NOT NULL,
	field_name TEXT NOT NULL,
	field_value JSONB,
	confidence DOUBLE PRECISION,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (file_ref, field_name)
);

CREATE INDEX IF NOT EXISTS idx_extracted_fields_class ON documents_extracted_fields(class_name);

CREATE TABLE IF NOT EXISTS new_uploads (
	file_name TEXT PRIMARY KEY,
	file_ref TEXT NOT NULL,
	source_area TEXT NOT NULL DEFAULT '',
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	uploaded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_new_uploads_area_processed ON new_uploads(source_area, processed);

CREATE TABLE IF NOT EXISTS document_ocr (
	file_ref TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	ocr_text TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	processed_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
