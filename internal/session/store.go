package session

import (
	"context"
	"sync"
	"time"
)

// StorageTTL is the coarse storage-level lifetime of the persisted token
// slot. The token's own embedded expiry stays authoritative for refresh
// decisions; this only bounds how long a stale slot can linger.
const StorageTTL = 24 * time.Hour

// TokenStore persists the single bearer-token slot between runs.
type TokenStore interface {
	// Save writes the token, stamping it with the storage-level expiry.
	Save(ctx context.Context, token string) error
	// Load returns the stored token, or "" when the slot is empty or has
	// outlived StorageTTL.
	Load(ctx context.Context) (string, error)
	// Clear empties the slot. Clearing an empty slot is not an error.
	Clear(ctx context.Context) error
}

// MemStore keeps the slot in memory. It backs tests and ephemeral
// deployments where persistence across restarts is not wanted.
type MemStore struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{now: time.Now}
}

// SetClock overrides the time source. Test use only.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

func (s *MemStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = s.now().Add(StorageTTL)
	return nil
}

func (s *MemStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || s.now().After(s.expiresAt) {
		return "", nil
	}
	return s.token, nil
}

func (s *MemStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
	return nil
}
