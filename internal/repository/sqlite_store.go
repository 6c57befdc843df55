package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteStore keeps documents as rows in a local SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a document store on an opened, migrated SQLite database
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Read(ctx context.Context, name string) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM sitestats_documents WHERE name = ?`, name).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to read document %s: %w", name, err)
	}
	return []byte(body), nil
}

func (s *SQLiteStore) Write(ctx context.Context, name string, body []byte) error {
	query := `
	INSERT INTO sitestats_documents (name, body, updated_at)
	VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(name) DO UPDATE SET
		body = excluded.body,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, name, string(body)); err != nil {
		return fmt.Errorf("failed to write document %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
