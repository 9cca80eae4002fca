package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "token.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	if err := store.Save(ctx, "token-abc"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "token-abc" {
		t.Fatalf("Load = %q, want token-abc", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat slot file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("slot file mode = %o, want 600", perm)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := store.Load(ctx); got != "" {
		t.Fatalf("expected empty slot after clear, got %q", got)
	}
	// Clearing again is fine.
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("repeated Clear: %v", err)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	got, err := store.Load(context.Background())
	if err != nil || got != "" {
		t.Fatalf("Load = (%q, %v), want empty", got, err)
	}
}

func TestFileStoreStorageTTL(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	now := testNow
	store.SetClock(func() time.Time { return now })

	ctx := context.Background()
	if err := store.Save(ctx, "token-abc"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	now = testNow.Add(StorageTTL + time.Minute)
	got, err := store.Load(ctx)
	if err != nil || got != "" {
		t.Fatalf("expected expired slot to read empty, got (%q, %v)", got, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expired slot file should be removed")
	}
}

func TestFileStoreCorruptSlot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt slot: %v", err)
	}
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	got, err := store.Load(context.Background())
	if err != nil || got != "" {
		t.Fatalf("corrupt slot must read empty, got (%q, %v)", got, err)
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := NewFileStore("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
