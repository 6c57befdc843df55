package repository

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory. Used for tests and single-instance setups
// where losing the counters on restart is acceptable.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty in-memory document store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Read(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.docs[name]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return append([]byte(nil), body...), nil
}

func (s *MemoryStore) Write(ctx context.Context, name string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[name] = append([]byte(nil), body...)
	return nil
}

func (s *MemoryStore) Health(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
