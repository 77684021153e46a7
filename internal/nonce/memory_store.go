package nonce

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store. Suitable for single-instance
// deployments; multi-instance deployments need PostgresStore so replicas
// share the consumed set.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]time.Time)}
}

// Register consumes the nonce. Check-and-insert happens under one lock
// acquisition so concurrent callers serialize.
func (s *MemoryStore) Register(_ context.Context, nonce string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[nonce]; ok {
		return ErrNonceUsed
	}
	s.seen[nonce] = seenAt
	return nil
}

// Sweep removes nonces consumed before the cutoff.
func (s *MemoryStore) Sweep(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for nonce, seenAt := range s.seen {
		if seenAt.Before(before) {
			delete(s.seen, nonce)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of retained nonces, for tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
