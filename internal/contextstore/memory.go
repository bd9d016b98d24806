package contextstore

import (
	"context"
	"sync"
	"time"

	"telemed-engine/internal/consultation"
)

// MemoryStore is a process-local fallback used when redis is not
// configured, and by tests. Same TTL semantics as the redis store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	turns     []consultation.Turn
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[string]memoryEntry{},
		ttl:     defaultTTL,
		now:     time.Now,
	}
}

func (s *MemoryStore) Context(_ context.Context, consultationID string) ([]consultation.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[consultationID]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.entries, consultationID)
		return nil, nil
	}
	entry.expiresAt = s.now().Add(s.ttl)
	s.entries[consultationID] = entry

	out := make([]consultation.Turn, len(entry.turns))
	copy(out, entry.turns)
	return out, nil
}

func (s *MemoryStore) StoreContext(_ context.Context, consultationID string, turns []consultation.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]consultation.Turn, len(turns))
	copy(stored, turns)
	s.entries[consultationID] = memoryEntry{
		turns:     stored,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}
