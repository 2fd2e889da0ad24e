package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type idemEntry struct {
	attemptID uuid.UUID
	expiresAt time.Time
}

// IdempotencyStore is an in-memory compare-and-set keyed store. Expired
// entries are reclaimed lazily on the next PutIfAbsent for the same key.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idemEntry

	Now func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		entries: make(map[string]idemEntry),
		Now:     time.Now,
	}
}

func (s *IdempotencyStore) PutIfAbsent(_ context.Context, key string, attemptID uuid.UUID, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	if e, ok := s.entries[key]; ok && e.expiresAt.After(now) {
		return false, nil
	}
	s.entries[key] = idemEntry{attemptID: attemptID, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *IdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
