package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sitestats/internal/domain"
	"sitestats/pkg/logger"
)

// documentRepository encodes one typed value as a JSON document
type documentRepository[T any] struct {
	store    DocumentStore
	name     string
	fallback func() T
	logger   *logger.Logger
}

// NewDocumentRepository creates a typed repository for the named document.
// fallback builds the value returned when the document is absent or corrupt.
func NewDocumentRepository[T any](store DocumentStore, name string, fallback func() T, log *logger.Logger) DocumentRepository[T] {
	return &documentRepository[T]{
		store:    store,
		name:     name,
		fallback: fallback,
		logger:   log.WithField("document", name),
	}
}

// NewRepositories wires the counters, ledger and presence documents onto one store
func NewRepositories(store DocumentStore, log *logger.Logger) *Repositories {
	return &Repositories{
		Counters: NewDocumentRepository(store, DocumentCounters, func() *domain.AggregateCounters {
			return &domain.AggregateCounters{}
		}, log),
		Ledger: NewDocumentRepository(store, DocumentLedger, func() domain.VisitorLedger {
			return domain.VisitorLedger{}
		}, log),
		Presence: NewDocumentRepository(store, DocumentPresence, func() domain.PresenceMap {
			return domain.PresenceMap{}
		}, log),
	}
}

// Load reads and decodes the document
func (r *documentRepository[T]) Load(ctx context.Context) (T, error) {
	body, err := r.store.Read(ctx, r.name)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return r.fallback(), nil
		}
		var zero T
		return zero, fmt.Errorf("failed to read %s document: %w", r.name, err)
	}

	trimmed := bytes.TrimSpace(body)
	// Legacy documents may encode an empty map as []
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("null")) {
		return r.fallback(), nil
	}

	value := r.fallback()
	if err := json.Unmarshal(trimmed, &value); err != nil {
		r.logger.WithError(err).Warn("Corrupt document, starting from defaults")
		return r.fallback(), nil
	}

	return value, nil
}

// Save encodes and writes the document
func (r *documentRepository[T]) Save(ctx context.Context, value T) error {
	body, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", r.name, err)
	}

	if err := r.store.Write(ctx, r.name, body); err != nil {
		return fmt.Errorf("failed to write %s document: %w", r.name, err)
	}

	return nil
}
