package limiters

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	failures    int
	lockedUntil time.Time
	expiresAt   time.Time
}

// MemoryStore is a process-local Store. Lockout guarantees hold per process
// only; multi-instance deployments need RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, p Policy) (HitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.load(key, now)
	if e == nil {
		e = &memoryEntry{}
		s.entries[key] = e
	}
	if !e.lockedUntil.IsZero() {
		if now.Before(e.lockedUntil) {
			return HitResult{State: e.state()}, nil
		}
		e.failures = 0
		e.lockedUntil = time.Time{}
	}

	e.failures++
	if e.failures >= p.Threshold {
		e.lockedUntil = now.Add(p.Duration)
	}
	e.expiresAt = now.Add(p.Duration)

	return HitResult{State: e.state(), Admitted: true}, nil
}

// Peek implements Store.
func (s *MemoryStore) Peek(_ context.Context, key string, now time.Time) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.load(key, now)
	if e == nil {
		return State{}, nil
	}
	if !e.lockedUntil.IsZero() && !now.Before(e.lockedUntil) {
		delete(s.entries, key)
		return State{}, nil
	}
	return e.state(), nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// load returns the live entry for key, dropping it once its window lapsed.
// Callers hold s.mu.
func (s *MemoryStore) load(key string, now time.Time) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !now.Before(e.expiresAt) && e.lockedUntil.IsZero() {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (e *memoryEntry) state() State {
	return State{Failures: e.failures, LockedUntil: e.lockedUntil}
}
