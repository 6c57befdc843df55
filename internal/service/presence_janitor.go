package service

import (
	"context"
	"sync"
	"time"

	"sitestats/pkg/logger"
)

// PresenceJanitor periodically evicts stale presence entries
type PresenceJanitor struct {
	visitor  VisitorService
	interval time.Duration
	now      func() time.Time
	logger   *logger.Logger

	mu        sync.Mutex
	ticker    *time.Ticker
	stop      chan struct{}
	done      chan struct{}
	isRunning bool
}

// NewPresenceJanitor creates a janitor running every interval
func NewPresenceJanitor(visitor VisitorService, interval time.Duration, log *logger.Logger) *PresenceJanitor {
	return &PresenceJanitor{
		visitor:  visitor,
		interval: interval,
		now:      time.Now,
		logger:   log.Named("presence_janitor"),
	}
}

// Start begins the cleanup routine. A non-positive interval disables it.
func (j *PresenceJanitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.isRunning || j.interval <= 0 {
		return
	}

	j.ticker = time.NewTicker(j.interval)
	j.stop = make(chan struct{})
	j.done = make(chan struct{})
	j.isRunning = true

	go j.run(ctx)

	j.logger.WithField("interval", j.interval.String()).Info("Presence janitor started")
}

// Stop halts the routine and waits for an in-flight pass to finish
func (j *PresenceJanitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.isRunning {
		return
	}

	j.ticker.Stop()
	close(j.stop)
	<-j.done

	j.isRunning = false
	j.logger.Info("Presence janitor stopped")
}

func (j *PresenceJanitor) run(ctx context.Context) {
	defer close(j.done)

	for {
		select {
		case <-j.ticker.C:
			if _, err := j.visitor.CleanupOnlinePresence(ctx, j.now()); err != nil {
				j.logger.WithError(err).Error("Failed to clean up online presence")
			}
		case <-j.stop:
			return
		case <-ctx.Done():
			j.logger.Debug("Presence janitor cancelled")
			return
		}
	}
}
