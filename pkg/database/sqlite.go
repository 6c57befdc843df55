package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// NewSQLiteDB opens (creating if needed) a SQLite database and migrates the document table.
// A path of ":memory:" opens a private in-memory database.
func NewSQLiteDB(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := migrateSQLite(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	query := `
	PRAGMA journal_mode = WAL;
	CREATE TABLE IF NOT EXISTS sitestats_documents (
		name       TEXT PRIMARY KEY,
		body       TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate sqlite database: %w", err)
	}
	return nil
}
