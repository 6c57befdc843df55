package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sitestats/pkg/logger"
	"sitestats/pkg/redis"
)

const (
	// redisLockTTL bounds how long a crashed holder can keep the lock
	redisLockTTL       = 15 * time.Second
	redisLockRetryWait = 20 * time.Millisecond
)

// releaseScript deletes the lock only if it still carries the caller's token
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker is a single-instance Redis lock (SET NX PX + token-checked release)
// shared by every process pointed at the same Redis.
type RedisLocker struct {
	client  *redis.Client
	timeout time.Duration
	logger  *logger.Logger
}

// NewRedisLocker creates a locker on top of the shared Redis client
func NewRedisLocker(client *redis.Client, timeout time.Duration, log *logger.Logger) *RedisLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &RedisLocker{client: client, timeout: timeout, logger: log}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(), error) {
	key := l.client.KeyBuilder.KeyLock(name)
	token := uuid.NewString()
	deadline := time.Now().Add(l.timeout)

	for {
		ok, err := l.client.SetNX(ctx, key, token, redisLockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		if ok {
			return releaseOnce(func() { l.release(key, token) }), nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s: %w", name, ErrLockTimeout)
		}

		select {
		case <-time.After(redisLockRetryWait):
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w", name, ctx.Err())
		}
	}
}

// release runs on its own context so a cancelled request still frees the lock
func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := l.client.Eval(ctx, releaseScript, []string{key}, token); err != nil {
		l.logger.WithError(err).Warn("Failed to release Redis lock, it will expire on its own")
	}
}
