package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sitestats/pkg/database"
)

// PostgresStore keeps documents as JSONB rows in sitestats_documents
type PostgresStore struct {
	db *database.PostgresDB
}

// NewPostgresStore creates a document store backed by PostgreSQL
func NewPostgresStore(db *database.PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Read(ctx context.Context, name string) ([]byte, error) {
	query := `SELECT body FROM sitestats_documents WHERE name = $1`

	var body []byte
	err := s.db.Pool.QueryRow(ctx, query, name).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to read document %s: %w", name, err)
	}

	return body, nil
}

func (s *PostgresStore) Write(ctx context.Context, name string, body []byte) error {
	query := `
		INSERT INTO sitestats_documents (name, body, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (name) DO UPDATE SET
			body = EXCLUDED.body,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.Pool.Exec(ctx, query, name, string(body)); err != nil {
		return fmt.Errorf("failed to write document %s: %w", name, err)
	}

	return nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

// Close is a no-op: the pool is shared with the locker and closed by its owner
func (s *PostgresStore) Close() error {
	return nil
}
