package repository

import (
	"context"
	"errors"

	"sitestats/internal/domain"
)

// Document names. The file driver stores each as <name>.json.
const (
	DocumentCounters = "stats"
	DocumentLedger   = "visits"
	DocumentPresence = "online"
)

// LockName is the single lock guarding the three documents as one unit
const LockName = "sitestats"

var (
	// ErrDocumentNotFound is returned by DocumentStore.Read when nothing was ever written
	ErrDocumentNotFound = errors.New("document not found")

	// ErrLockTimeout is returned by Locker.Acquire when the wait bound is exhausted
	ErrLockTimeout = errors.New("timed out waiting for lock")
)

// DocumentStore persists named opaque documents. Write must replace a document atomically:
// a concurrent Read observes either the previous or the new body, never a mix.
type DocumentStore interface {
	// Read returns the stored body or ErrDocumentNotFound
	Read(ctx context.Context, name string) ([]byte, error)

	// Write replaces the stored body
	Write(ctx context.Context, name string, body []byte) error

	// Health reports whether the backend is reachable
	Health(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// DocumentRepository loads and saves one typed document
type DocumentRepository[T any] interface {
	// Load returns the stored value, or the default value when the document is absent or undecodable
	Load(ctx context.Context) (T, error)

	// Save persists the value
	Save(ctx context.Context, value T) error
}

// Locker provides bounded-wait mutual exclusion by name
type Locker interface {
	// Acquire blocks until the named lock is held, the wait bound elapses (ErrLockTimeout)
	// or ctx is done. The returned func releases the lock and is safe to call once.
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// Repositories aggregates the three documents the accounting engine owns
type Repositories struct {
	Counters DocumentRepository[*domain.AggregateCounters]
	Ledger   DocumentRepository[domain.VisitorLedger]
	Presence DocumentRepository[domain.PresenceMap]
}
