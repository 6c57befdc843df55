package repository

import (
	"context"

	"sitestats/pkg/redis"
)

// RedisStore keeps each document as one string key
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a document store on top of the shared Redis client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Read(ctx context.Context, name string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.client.KeyBuilder.KeyDocument(name))
	if err != nil {
		if redis.IsNil(err) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return []byte(val), nil
}

// Write uses a single SET, which Redis applies atomically
func (s *RedisStore) Write(ctx context.Context, name string, body []byte) error {
	return s.client.Set(ctx, s.client.KeyBuilder.KeyDocument(name), body, 0)
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op: the Redis client is shared and closed by its owner
func (s *RedisStore) Close() error {
	return nil
}

// Drop removes every stats document and the settings hash
func (s *RedisStore) Drop(ctx context.Context) error {
	kb := s.client.KeyBuilder
	return s.client.Delete(ctx,
		kb.KeyDocument(DocumentCounters),
		kb.KeyDocument(DocumentLedger),
		kb.KeyDocument(DocumentPresence),
		kb.KeySettings(),
	)
}
