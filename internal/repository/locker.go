package repository

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultLockTimeout bounds how long Acquire waits when no timeout is configured
const DefaultLockTimeout = 5 * time.Second

// MutexLocker serializes holders inside one process. Each name maps to a one-slot
// channel so waiting can be abandoned on timeout or cancellation.
type MutexLocker struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	timeout time.Duration
}

// NewMutexLocker creates an in-process locker
func NewMutexLocker(timeout time.Duration) *MutexLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &MutexLocker{
		slots:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

func (l *MutexLocker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[name]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[name] = s
	}
	return s
}

func (l *MutexLocker) Acquire(ctx context.Context, name string) (func(), error) {
	slot := l.slot(name)

	// Fast path keeps the uncontended case free of timers
	select {
	case slot <- struct{}{}:
		return releaseOnce(func() { <-slot }), nil
	default:
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		return releaseOnce(func() { <-slot }), nil
	case <-timer.C:
		return nil, fmt.Errorf("lock %s: %w", name, ErrLockTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("lock %s: %w", name, ctx.Err())
	}
}

func releaseOnce(release func()) func() {
	var once sync.Once
	return func() { once.Do(release) }
}
