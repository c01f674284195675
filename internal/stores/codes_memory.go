package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"
)

// MemoryCodeStore is a process-local CodeStore for development and tests.
type MemoryCodeStore struct {
	mu      sync.Mutex
	records map[string]CodeRecord
}

// NewMemoryCodeStore returns an empty MemoryCodeStore.
func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{records: make(map[string]CodeRecord)}
}

func memoryCodeKey(identityID, purpose string) string {
	return purpose + ":" + identityID
}

// Put implements CodeStore.
func (s *MemoryCodeStore) Put(_ context.Context, record *CodeRecord, now time.Time) error {
	if !now.Before(record.ExpiresAt) {
		return errors.New("code record already expired")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)
	s.records[memoryCodeKey(record.IdentityID, record.Purpose)] = *record
	return nil
}

// Consume implements CodeStore.
func (s *MemoryCodeStore) Consume(_ context.Context, identityID, purpose string, hash [32]byte, now time.Time) (*CodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryCodeKey(identityID, purpose)
	record, ok := s.records[key]
	if !ok {
		return nil, ErrCodeNotFound
	}
	if record.Consumed {
		if !now.Before(record.ExpiresAt) {
			delete(s.records, key)
			return nil, ErrCodeNotFound
		}
		return nil, ErrCodeConsumed
	}
	if !now.Before(record.ExpiresAt) {
		delete(s.records, key)
		return nil, ErrCodeExpired
	}
	if subtle.ConstantTimeCompare(record.CodeHash[:], hash[:]) != 1 {
		return nil, ErrCodeMismatch
	}

	record.Consumed = true
	s.records[key] = record
	return &record, nil
}

// Delete implements CodeStore.
func (s *MemoryCodeStore) Delete(_ context.Context, identityID, purpose string) error {
	s.mu.Lock()
	delete(s.records, memoryCodeKey(identityID, purpose))
	s.mu.Unlock()
	return nil
}

// sweep drops records past expiry. Callers hold s.mu.
func (s *MemoryCodeStore) sweep(now time.Time) {
	for k, r := range s.records {
		if !now.Before(r.ExpiresAt) {
			delete(s.records, k)
		}
	}
}
