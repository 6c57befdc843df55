package service

import (
	"context"
	"time"

	"sitestats/internal/domain"
)

// VisitorService defines the visit accounting and presence operations.
// Every operation takes the clock reading explicitly so callers and tests control time.
type VisitorService interface {
	// RecordVisit classifies a visit from clientID and updates counters, ledger and presence
	RecordVisit(ctx context.Context, clientID string, isNewSession bool, now time.Time) (*domain.VisitResult, error)

	// UpdateOnlinePresence marks clientID as active at now
	UpdateOnlinePresence(ctx context.Context, clientID string, now time.Time) error

	// GetStats returns the aggregate counters as seen by clientID
	GetStats(ctx context.Context, clientID string, now time.Time) (*domain.StatsSnapshot, error)

	// CleanupOnlinePresence evicts stale presence entries and reports how many were removed
	CleanupOnlinePresence(ctx context.Context, now time.Time) (int, error)
}
