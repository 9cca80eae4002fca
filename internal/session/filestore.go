package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore persists the token slot as a JSON file, the durable client-side
// equivalent of the browser cookie the dashboard pages used to own.
type FileStore struct {
	path string
	now  func() time.Time
}

type fileSlot struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewFileStore returns a store writing to path. The parent directory is
// created on first save.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("session: store path is required")
	}
	return &FileStore{path: path, now: time.Now}, nil
}

// SetClock overrides the time source. Test use only.
func (s *FileStore) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *FileStore) Save(_ context.Context, token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session: create store directory: %w", err)
	}
	data, err := json.Marshal(fileSlot{
		Token:     token,
		ExpiresAt: s.now().Add(StorageTTL).UTC(),
	})
	if err != nil {
		return fmt.Errorf("session: encode token slot: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("session: write token slot: %w", err)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: read token slot: %w", err)
	}
	var slot fileSlot
	if err := json.Unmarshal(data, &slot); err != nil {
		// Corrupt slot: drop it and start unauthenticated.
		_ = s.Clear(ctx)
		return "", nil
	}
	if slot.Token == "" || s.now().After(slot.ExpiresAt) {
		_ = s.Clear(ctx)
		return "", nil
	}
	return slot.Token, nil
}

func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: clear token slot: %w", err)
	}
	return nil
}
