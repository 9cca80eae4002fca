package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore keeps the token slot in a relational table, keyed per client
// instance. Used by shared-workstation deployments where the gateway runs
// next to a Postgres the clinic already operates; the schema works with any
// database/sql driver.
type SQLStore struct {
	db      *sql.DB
	slotKey string
	now     func() time.Time
}

// NewSQLStore returns a store bound to one slot key. Each gateway instance
// owns exactly one key.
func NewSQLStore(db *sql.DB, slotKey string) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("session: db handle is required")
	}
	slotKey = strings.TrimSpace(slotKey)
	if slotKey == "" {
		return nil, errors.New("session: slot key is required")
	}
	return &SQLStore{db: db, slotKey: slotKey, now: time.Now}, nil
}

// SetClock overrides the time source. Test use only.
func (s *SQLStore) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// EnsureSchema creates the slot table when missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `create table if not exists session_tokens (
		slot_key text primary key,
		token text not null,
		expires_at timestamptz not null
	)`)
	if err != nil {
		return fmt.Errorf("session: ensure schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, token string) error {
	expiresAt := s.now().Add(StorageTTL).UTC()
	_, err := s.db.ExecContext(ctx,
		`insert into session_tokens (slot_key, token, expires_at) values ($1, $2, $3)
		on conflict (slot_key) do update set token = $2, expires_at = $3`,
		s.slotKey, token, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("session: save token slot: %w", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (string, error) {
	var token string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`select token, expires_at from session_tokens where slot_key = $1`,
		s.slotKey,
	).Scan(&token, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: load token slot: %w", err)
	}
	if token == "" || s.now().After(expiresAt) {
		_ = s.Clear(ctx)
		return "", nil
	}
	return token, nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`delete from session_tokens where slot_key = $1`, s.slotKey)
	if err != nil {
		return fmt.Errorf("session: clear token slot: %w", err)
	}
	return nil
}
