package service

import (
	"context"
	"errors"
	"time"

	"sitestats/internal/config"
	"sitestats/internal/domain"
	"sitestats/internal/repository"
	apperrors "sitestats/pkg/errors"
	"sitestats/pkg/logger"
)

// visitorService keeps the counters, visitor ledger and presence map consistent.
// All three documents are read and written under one lock.
type visitorService struct {
	repos    *repository.Repositories
	locker   repository.Locker
	settings config.SettingsProvider
	location *time.Location
	logger   *logger.Logger
}

// NewVisitorService creates a new visitor service. A nil location means time.Local.
func NewVisitorService(repos *repository.Repositories, locker repository.Locker, settings config.SettingsProvider, location *time.Location, log *logger.Logger) VisitorService {
	if location == nil {
		location = time.Local
	}
	return &visitorService{
		repos:    repos,
		locker:   locker,
		settings: settings,
		location: location,
		logger:   log.Named("visitor"),
	}
}

// RecordVisit records a visit from the given client
func (s *visitorService) RecordVisit(ctx context.Context, clientID string, isNewSession bool, now time.Time) (*domain.VisitResult, error) {
	if clientID == "" {
		return nil, apperrors.NewInvalidRequestError("client id is required", nil)
	}

	settings := s.settings.Current(ctx)
	today := s.today(now)
	ts := now.Unix()

	var result *domain.VisitResult
	err := s.withLock(ctx, func() error {
		ledger, counters, presence, err := s.loadAll(ctx)
		if err != nil {
			return err
		}

		countersChanged := false
		record := ledger[clientID]

		if record == nil {
			ledger[clientID] = &domain.VisitorRecord{
				FirstVisit:    ts,
				LastVisit:     ts,
				VisitCount:    1,
				LastPageView:  ts,
				LastVisitDate: today,
				LastSession:   ts,
			}
			counters.TotalVisitors++
			counters.TotalViews++
			countersChanged = true
			result = &domain.VisitResult{IsNewVisitor: true, TodayVisitCount: 1}
		} else {
			if ts-record.LastPageView >= int64(settings.AntiSpamInterval) {
				counters.TotalViews++
				countersChanged = true
				record.LastPageView = ts
			}

			if record.LastVisitDate == today {
				if isNewSession || ts-record.LastSession >= int64(settings.SessionInterval) {
					record.VisitCount++
					record.LastSession = ts
				}
			} else {
				// A new calendar day starts the count over
				record.VisitCount = 1
				record.LastVisitDate = today
				record.LastSession = ts
			}

			record.LastVisit = ts
			result = &domain.VisitResult{IsNewVisitor: false, TodayVisitCount: record.VisitCount}
		}

		if err := s.repos.Ledger.Save(ctx, ledger); err != nil {
			return apperrors.NewStorageError("failed to save visitor ledger", err)
		}

		if countersChanged {
			counters.UpdatedAt = ts
			if err := s.repos.Counters.Save(ctx, counters); err != nil {
				return apperrors.NewStorageError("failed to save counters", err)
			}
		}

		presence.Expire(now, settings.OnlineTimeout())
		presence[clientID] = ts
		if err := s.repos.Presence.Save(ctx, presence); err != nil {
			return apperrors.NewStorageError("failed to save presence", err)
		}

		s.logger.WithFields(map[string]interface{}{
			"client_id":         clientID,
			"is_new_visitor":    result.IsNewVisitor,
			"today_visit_count": result.TodayVisitCount,
			"view_counted":      countersChanged,
		}).Debug("Visit recorded")

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateOnlinePresence refreshes the presence entry of clientID
func (s *visitorService) UpdateOnlinePresence(ctx context.Context, clientID string, now time.Time) error {
	if clientID == "" {
		return apperrors.NewInvalidRequestError("client id is required", nil)
	}

	timeout := s.settings.Current(ctx).OnlineTimeout()

	return s.withLock(ctx, func() error {
		presence, err := s.repos.Presence.Load(ctx)
		if err != nil {
			return apperrors.NewStorageError("failed to load presence", err)
		}
		if presence == nil {
			presence = domain.PresenceMap{}
		}

		presence.Expire(now, timeout)
		presence[clientID] = now.Unix()

		if err := s.repos.Presence.Save(ctx, presence); err != nil {
			return apperrors.NewStorageError("failed to save presence", err)
		}
		return nil
	})
}

// GetStats reads the counters and the caller's visit count for today.
// Online users are counted over the fixed presence window.
func (s *visitorService) GetStats(ctx context.Context, clientID string, now time.Time) (*domain.StatsSnapshot, error) {
	if clientID == "" {
		return nil, apperrors.NewInvalidRequestError("client id is required", nil)
	}

	today := s.today(now)

	var snapshot *domain.StatsSnapshot
	err := s.withLock(ctx, func() error {
		ledger, counters, presence, err := s.loadAll(ctx)
		if err != nil {
			return err
		}

		todayCount := 1
		if record := ledger[clientID]; record != nil && record.LastVisitDate == today {
			todayCount = record.VisitCount
		}

		if removed := presence.Prune(now, domain.OnlinePresenceWindow); removed > 0 {
			if err := s.repos.Presence.Save(ctx, presence); err != nil {
				return apperrors.NewStorageError("failed to save presence", err)
			}
			s.logger.WithField("removed", removed).Debug("Pruned stale presence entries")
		}

		snapshot = &domain.StatsSnapshot{
			TotalVisitors:   counters.TotalVisitors,
			TotalViews:      counters.TotalViews,
			TodayVisitCount: todayCount,
			OnlineUsers:     len(presence),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// CleanupOnlinePresence drops presence entries older than the configured online timeout
func (s *visitorService) CleanupOnlinePresence(ctx context.Context, now time.Time) (int, error) {
	timeout := s.settings.Current(ctx).OnlineTimeout()

	removed := 0
	err := s.withLock(ctx, func() error {
		presence, err := s.repos.Presence.Load(ctx)
		if err != nil {
			return apperrors.NewStorageError("failed to load presence", err)
		}

		removed = presence.Expire(now, timeout)
		if removed == 0 {
			return nil
		}

		if err := s.repos.Presence.Save(ctx, presence); err != nil {
			return apperrors.NewStorageError("failed to save presence", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Online presence cleaned up")
	}
	return removed, nil
}

// withLock runs fn while holding the stats lock
func (s *visitorService) withLock(ctx context.Context, fn func() error) error {
	release, err := s.locker.Acquire(ctx, repository.LockName)
	if err != nil {
		if errors.Is(err, repository.ErrLockTimeout) {
			s.logger.Warn("Timed out waiting for the stats lock")
			return apperrors.NewBusyError("stats storage is busy, try again", err)
		}
		return apperrors.NewStorageError("failed to acquire stats lock", err)
	}
	defer release()

	return fn()
}

// loadAll reads the three documents, never returning nil containers
func (s *visitorService) loadAll(ctx context.Context) (domain.VisitorLedger, *domain.AggregateCounters, domain.PresenceMap, error) {
	ledger, err := s.repos.Ledger.Load(ctx)
	if err != nil {
		return nil, nil, nil, apperrors.NewStorageError("failed to load visitor ledger", err)
	}
	counters, err := s.repos.Counters.Load(ctx)
	if err != nil {
		return nil, nil, nil, apperrors.NewStorageError("failed to load counters", err)
	}
	presence, err := s.repos.Presence.Load(ctx)
	if err != nil {
		return nil, nil, nil, apperrors.NewStorageError("failed to load presence", err)
	}

	if ledger == nil {
		ledger = domain.VisitorLedger{}
	}
	if counters == nil {
		counters = &domain.AggregateCounters{}
	}
	if presence == nil {
		presence = domain.PresenceMap{}
	}
	return ledger, counters, presence, nil
}

func (s *visitorService) today(now time.Time) string {
	return now.In(s.location).Format(domain.DateLayout)
}
