package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sitestats/pkg/database"
	"sitestats/pkg/logger"
)

const postgresLockRetryWait = 25 * time.Millisecond

// PostgresLocker uses session-level advisory locks. The lock lives on one pooled
// connection, which is held until release.
type PostgresLocker struct {
	db      *database.PostgresDB
	timeout time.Duration
	logger  *logger.Logger
}

// NewPostgresLocker creates a locker backed by pg_advisory_lock
func NewPostgresLocker(db *database.PostgresDB, timeout time.Duration, log *logger.Logger) *PostgresLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &PostgresLocker{db: db, timeout: timeout, logger: log}
}

func (l *PostgresLocker) Acquire(ctx context.Context, name string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	conn, err := l.db.Pool.Acquire(waitCtx)
	if err != nil {
		return nil, l.waitError(ctx, name, err)
	}

	for {
		var locked bool
		err := conn.QueryRow(waitCtx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&locked)
		if err != nil {
			conn.Release()
			return nil, l.waitError(ctx, name, err)
		}
		if locked {
			return releaseOnce(func() { l.release(conn, name) }), nil
		}

		select {
		case <-time.After(postgresLockRetryWait):
		case <-waitCtx.Done():
			conn.Release()
			return nil, l.waitError(ctx, name, waitCtx.Err())
		}
	}
}

// waitError maps our own wait bound to ErrLockTimeout and keeps caller cancellation as is
func (l *PostgresLocker) waitError(ctx context.Context, name string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("lock %s: %w", name, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("lock %s: %w", name, ErrLockTimeout)
	}
	return fmt.Errorf("failed to acquire lock %s: %w", name, err)
}

func (l *PostgresLocker) release(conn *pgxpool.Conn, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, name); err != nil {
		l.logger.WithError(err).Warn("Failed to release advisory lock, closing its connection")
		// Closing the session drops every advisory lock it held
		_ = conn.Conn().Close(ctx)
	}
	conn.Release()
}
