package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memBucket struct {
	tokens  int
	resetAt time.Time
}

// MemoryStore keeps buckets in a mutex-guarded map.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]memBucket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]memBucket)}
}

func (s *MemoryStore) Take(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	tokens, resetAt, d := bucket(b.tokens, b.resetAt, !ok, limit, window, now)
	s.buckets[key] = memBucket{tokens: tokens, resetAt: resetAt}
	return d, nil
}

func (s *MemoryStore) Close() error { return nil }
