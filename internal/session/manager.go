package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"medboard.org/internal/audit"
	"medboard.org/internal/authapi"
	"medboard.org/internal/ids"
	"medboard.org/internal/obs"
)

var (
	// ErrNotAuthenticated is returned when a token is requested without an
	// established session.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrSessionExpired is returned when a forced refresh fails and the
	// session has been torn down.
	ErrSessionExpired = errors.New("session: expired")
)

// State is the session lifecycle phase. Route guards treat Resolving as a
// distinct render state: neither protected content nor a redirect.
type State int

const (
	StateUninitialized State = iota
	StateResolving
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateResolving:
		return "resolving"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Manager owns the single authoritative (token, user) pair for a running
// client instance. All transitions serialize on one mutex, which also gives
// Token its dedupe guarantee: a caller queued behind an in-flight refresh
// observes the fresh token after the lock and does not trigger a second
// refresh.
//
// Lifecycle failures (bad stored token, rejected refresh) are converted into
// the Anonymous state rather than returned; only interactive calls (Login,
// Signup) surface errors, since those need direct user feedback.
type Manager struct {
	mu    sync.Mutex
	api   authapi.Service
	store TokenStore
	now   func() time.Time

	// reauth bounds silent re-auth attempts so a rejected token cannot
	// produce a refresh loop across repeated initializations.
	reauth *rate.Limiter

	state     State
	token     string
	user      authapi.User
	hasUser   bool
	sessionID string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithReauthLimiter overrides the silent re-auth limiter.
func WithReauthLimiter(l *rate.Limiter) Option {
	return func(m *Manager) {
		if l != nil {
			m.reauth = l
		}
	}
}

// NewManager constructs a Manager. Exactly one instance should exist per
// running client; consumers receive it by dependency injection.
func NewManager(api authapi.Service, store TokenStore, opts ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.New("session: auth service is required")
	}
	if store == nil {
		return nil, errors.New("session: token store is required")
	}
	m := &Manager{
		api:    api,
		store:  store,
		now:    time.Now,
		reauth: rate.NewLimiter(rate.Every(30*time.Second), 1),
		state:  StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the authenticated user, if any.
func (m *Manager) Current() (authapi.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasUser {
		return authapi.User{}, false
	}
	return m.user, true
}

// SessionID returns the correlation id of the active session, or "".
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Initialize restores the session from the durable store. A token expiring
// within the refresh threshold goes through the refresh endpoint; a healthy
// token is validated with a get-current-user call. Every failure path lands
// in Anonymous with the slot cleared; Initialize never reports an error.
func (m *Manager) Initialize(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setStateLocked(StateResolving)

	token, err := m.store.Load(ctx)
	if err != nil || token == "" {
		m.clearLocked(ctx)
		return m.state
	}

	if expiringSoon(token, m.now()) {
		if !m.reauth.Allow() {
			m.clearLocked(ctx)
			return m.state
		}
		resp, err := m.api.Refresh(ctx, token)
		if err != nil {
			obs.ObserveTokenRefresh("failed")
			m.clearLocked(ctx)
			return m.state
		}
		obs.ObserveTokenRefresh("ok")
		m.adoptLocked(ctx, resp.AccessToken, resp.User)
		return m.state
	}

	user, err := m.api.Me(ctx, token)
	if err != nil {
		m.clearLocked(ctx)
		return m.state
	}
	m.adoptLocked(ctx, token, user)
	return m.state
}

// Login exchanges credentials for a session. On failure the session is left
// fully cleared and the error is surfaced for display.
func (m *Manager) Login(ctx context.Context, creds authapi.Credentials) (authapi.User, error) {
	resp, err := m.api.Login(ctx, creds)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.clearLocked(ctx)
		return authapi.User{}, fmt.Errorf("session: login: %w", err)
	}
	m.sessionID = ids.New()
	m.adoptLocked(ctx, resp.AccessToken, resp.User)
	_ = audit.LogEvent(audit.WithSessionID(ctx, m.sessionID), "session.login", map[string]any{
		"user_id": resp.User.ID,
		"role":    resp.User.Role,
	})
	return resp.User, nil
}

// Signup registers the user and immediately logs in with the same
// credentials; the auth service issues no token on signup.
func (m *Manager) Signup(ctx context.Context, reg authapi.Registration) (authapi.User, error) {
	if _, err := m.api.Signup(ctx, reg); err != nil {
		m.mu.Lock()
		m.clearLocked(ctx)
		m.mu.Unlock()
		return authapi.User{}, fmt.Errorf("session: signup: %w", err)
	}
	return m.Login(ctx, authapi.Credentials{Email: reg.Email, Password: reg.Password})
}

// Logout discards the persisted token and clears the session. Calling it
// while already anonymous is a no-op.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAnonymous {
		return
	}
	wasAuthenticated := m.state == StateAuthenticated
	sid := m.sessionID
	m.clearLocked(ctx)
	if wasAuthenticated {
		_ = audit.LogEvent(audit.WithSessionID(ctx, sid), "session.logout", nil)
	}
}

// Token returns a bearer token valid for at least the refresh threshold,
// refreshing in place when needed. The caller blocks until any required
// refresh resolves. On refresh failure the session is torn down and
// ErrSessionExpired is returned.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAuthenticated {
		return "", ErrNotAuthenticated
	}

	// Another process sharing the slot may have rotated the token; adopt
	// the stored one before doing expiry math so a refresh here does not
	// invalidate it. Only a token expiring strictly later wins: a sibling's
	// stale write must not displace a fresher in-memory token.
	if stored, err := m.store.Load(ctx); err == nil && stored != "" && stored != m.token {
		if storedExp, err := DecodeExpiry(stored); err == nil {
			ownExp, ownErr := DecodeExpiry(m.token)
			if ownErr != nil || storedExp.After(ownExp) {
				m.token = stored
			}
		}
	}

	if !expiringSoon(m.token, m.now()) {
		return m.token, nil
	}

	resp, err := m.api.Refresh(ctx, m.token)
	if err != nil {
		obs.ObserveTokenRefresh("failed")
		m.clearLocked(ctx)
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	obs.ObserveTokenRefresh("ok")
	m.adoptLocked(ctx, resp.AccessToken, resp.User)
	_ = audit.LogEvent(audit.WithSessionID(ctx, m.sessionID), "session.refresh", map[string]any{
		"user_id": resp.User.ID,
	})
	return m.token, nil
}

// adoptLocked commits a (token, user) pair and persists the token. The pair
// is always written together so the session is never partially applied.
func (m *Manager) adoptLocked(ctx context.Context, token string, user authapi.User) {
	m.token = token
	m.user = user
	m.hasUser = true
	if m.sessionID == "" {
		m.sessionID = ids.New()
	}
	m.setStateLocked(StateAuthenticated)
	if err := m.store.Save(ctx, token); err != nil {
		// The in-memory session stays valid; only persistence across
		// restarts is lost.
		obs.LogRequest(map[string]any{
			"level": "warn",
			"msg":   "persist token slot failed",
			"err":   err.Error(),
		})
	}
}

// clearLocked drops token, user and the persisted slot in one step.
func (m *Manager) clearLocked(ctx context.Context) {
	m.token = ""
	m.user = authapi.User{}
	m.hasUser = false
	m.sessionID = ""
	_ = m.store.Clear(ctx)
	m.setStateLocked(StateAnonymous)
}

func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	m.state = next
	obs.ObserveSessionTransition(next.String())
}
