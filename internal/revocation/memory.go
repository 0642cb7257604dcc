package revocation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is a process-local revocation list for single-node and test setups.
type MemoryStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore builds an empty store; now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{revoked: make(map[string]time.Time), now: now}
}

func (s *MemoryStore) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return errors.New("token id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !until.After(s.now()) {
		return nil
	}
	s.revoked[tokenID] = until
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !until.After(s.now()) {
		delete(s.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
