package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"medboard.org/internal/authapi"
	"medboard.org/internal/guard"
	"medboard.org/internal/rbac"
	"medboard.org/internal/roles"
	"medboard.org/internal/session"
)

type stubAuth struct {
	loginFn   func(ctx context.Context, creds authapi.Credentials) (authapi.AuthResponse, error)
	signupFn  func(ctx context.Context, reg authapi.Registration) (authapi.User, error)
	refreshFn func(ctx context.Context, token string) (authapi.AuthResponse, error)
	meFn      func(ctx context.Context, token string) (authapi.User, error)
}

func (s *stubAuth) Login(ctx context.Context, creds authapi.Credentials) (authapi.AuthResponse, error) {
	return s.loginFn(ctx, creds)
}

func (s *stubAuth) Signup(ctx context.Context, reg authapi.Registration) (authapi.User, error) {
	return s.signupFn(ctx, reg)
}

func (s *stubAuth) Refresh(ctx context.Context, token string) (authapi.AuthResponse, error) {
	return s.refreshFn(ctx, token)
}

func (s *stubAuth) Me(ctx context.Context, token string) (authapi.User, error) {
	return s.meFn(ctx, token)
}

type stubRoles struct {
	listFn   func(ctx context.Context, token string) ([]rbac.Definition, error)
	deleteFn func(ctx context.Context, token, roleID string) error
}

func (s *stubRoles) ListRoles(ctx context.Context, token string) ([]rbac.Definition, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, token)
}

func (s *stubRoles) CreateRole(ctx context.Context, token string, req authapi.RoleCreate) (rbac.Definition, error) {
	return rbac.Definition{ID: "role-new", Name: req.Name, Permissions: req.Permissions}, nil
}

func (s *stubRoles) UpdateRole(ctx context.Context, token, roleID string, req authapi.RoleUpdate) (rbac.Definition, error) {
	return rbac.Definition{ID: roleID}, nil
}

func (s *stubRoles) DeleteRole(ctx context.Context, token, roleID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, token, roleID)
}

func (s *stubRoles) ResourceCatalog(ctx context.Context, token string) ([]authapi.ResourceCatalogEntry, error) {
	return nil, nil
}

func mintToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expiresAt)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

// newTestAPI wires a gateway against stubbed upstream services.
func newTestAPI(t *testing.T, auth authapi.Service, roleAPI authapi.RoleService) (*API, *session.Manager) {
	t.Helper()
	if auth == nil {
		auth = &stubAuth{}
	}
	if roleAPI == nil {
		roleAPI = &stubRoles{}
	}
	mgr, err := session.NewManager(auth, session.NewMemStore())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	mgr.Initialize(context.Background())

	registry := rbac.NewRegistry()
	resolver := rbac.NewResolver(rbac.NewEngine(), registry)
	roleSvc, err := roles.NewService(roleAPI, registry, mgr)
	if err != nil {
		t.Fatalf("roles.NewService: %v", err)
	}
	guards := guard.NewEvaluator(mgr, resolver)
	return New(mgr, guards, resolver, roleSvc, ReadyProbe{}, "test"), mgr
}

func loginAs(t *testing.T, srv *httptest.Server, role rbac.Role) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/session/login", "application/json",
		strings.NewReader(`{"email":"user@clinic.test","password":"pw"}`))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
}

func authStubForRole(t *testing.T, role rbac.Role) *stubAuth {
	token := mintToken(t, time.Now().Add(time.Hour))
	user := authapi.User{ID: "u-1", Email: "user@clinic.test", Role: role, IsActive: true}
	return &stubAuth{
		loginFn: func(ctx context.Context, creds authapi.Credentials) (authapi.AuthResponse, error) {
			return authapi.AuthResponse{AccessToken: token, TokenType: "bearer", User: user}, nil
		},
		meFn: func(ctx context.Context, tok string) (authapi.User, error) {
			return user, nil
		},
	}
}

func TestLoginAndSessionView(t *testing.T) {
	api, _ := newTestAPI(t, authStubForRole(t, rbac.RoleDoctor), nil)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	loginAs(t, srv, rbac.RoleDoctor)

	resp, err := http.Get(srv.URL + "/v1/session")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer resp.Body.Close()

	var view struct {
		State string        `json:"state"`
		User  *authapi.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.State != "authenticated" {
		t.Fatalf("state = %q, want authenticated", view.State)
	}
	if view.User == nil || view.User.Role != rbac.RoleDoctor {
		t.Fatalf("unexpected user: %+v", view.User)
	}
}

func TestLoginFailureLeavesAnonymous(t *testing.T) {
	auth := &stubAuth{
		loginFn: func(ctx context.Context, creds authapi.Credentials) (authapi.AuthResponse, error) {
			return authapi.AuthResponse{}, &authapi.APIError{StatusCode: http.StatusUnauthorized, Detail: "bad credentials"}
		},
	}
	api, _ := newTestAPI(t, auth, nil)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/session/login", "application/json",
		strings.NewReader(`{"email":"user@clinic.test","password":"nope"}`))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	state, err := http.Get(srv.URL + "/v1/session")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer state.Body.Close()
	var view struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(state.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.State != "anonymous" {
		t.Fatalf("state = %q, want anonymous", view.State)
	}
}

func TestTokenEndpoint(t *testing.T) {
	api, _ := newTestAPI(t, authStubForRole(t, rbac.RoleNurse), nil)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	// Without a session the token endpoint refuses.
	resp, err := http.Get(srv.URL + "/v1/session/token")
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	loginAs(t, srv, rbac.RoleNurse)

	resp, err = http.Get(srv.URL + "/v1/session/token")
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["access_token"] == "" || body["token_type"] != "bearer" {
		t.Fatalf("unexpected token payload: %v", body)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	api, _ := newTestAPI(t, authStubForRole(t, rbac.RoleUser), nil)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	loginAs(t, srv, rbac.RoleUser)

	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/v1/session/logout", "application/json", nil)
		if err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("logout %d status = %d, want 204", i, resp.StatusCode)
		}
	}
}

func TestPermissionCheck(t *testing.T) {
	api, _ := newTestAPI(t, authStubForRole(t, rbac.RoleNurse), nil)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	check := func(body string) string {
		resp, err := http.Post(srv.URL+"/v1/permissions/check", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("check status = %d, want 200", resp.StatusCode)
		}
		var out checkResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out.Decision
	}

	if got := check(`{"requirements":[{"resource":"patients","action":"read"}]}`); got != "login" {
		t.Fatalf("anonymous decision = %q, want login", got)
	}

	loginAs(t, srv, rbac.RoleNurse)

	if got := check(`{"requirements":[{"resource":"patients","action":"read"}]}`); got != "allow" {
		t.Fatalf("nurse read decision = %q, want allow", got)
	}
	if got := check(`{"requirements":[{"resource":"patients","action":"delete"}]}`); got != "denied" {
		t.Fatalf("nurse delete decision = %q, want denied", got)
	}
	if got := check(`{"admin_only":true}`); got != "denied" {
		t.Fatalf("nurse admin-only decision = %q, want denied", got)
	}
}

func TestPermissionsCatalog(t *testing.T) {
	api, _ := newTestAPI(t, nil, nil)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/permissions/catalog")
	if err != nil {
		t.Fatalf("get catalog: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Resources []string `json:"resources"`
		Actions   []string `json:"actions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Resources) != 6 || len(body.Actions) != 5 {
		t.Fatalf("catalog sizes = %d resources, %d actions", len(body.Resources), len(body.Actions))
	}
}

func TestRoleManagementRequiresAdmin(t *testing.T) {
	api, _ := newTestAPI(t, authStubForRole(t, rbac.RoleDoctor), nil)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/roles")
	if err != nil {
		t.Fatalf("get roles: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", resp.StatusCode)
	}

	loginAs(t, srv, rbac.RoleDoctor)

	resp, err = http.Get(srv.URL + "/v1/roles")
	if err != nil {
		t.Fatalf("get roles: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("doctor status = %d, want 403", resp.StatusCode)
	}
}

func TestRoleListForAdmin(t *testing.T) {
	roleAPI := &stubRoles{
		listFn: func(ctx context.Context, token string) ([]rbac.Definition, error) {
			return []rbac.Definition{{ID: "role-admin", Name: rbac.RoleAdmin, IsSystem: true}}, nil
		},
	}
	api, _ := newTestAPI(t, authStubForRole(t, rbac.RoleAdmin), roleAPI)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	loginAs(t, srv, rbac.RoleAdmin)

	resp, err := http.Get(srv.URL + "/v1/roles")
	if err != nil {
		t.Fatalf("get roles: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var defs []rbac.Definition
	if err := json.NewDecoder(resp.Body).Decode(&defs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(defs) != 1 || defs[0].ID != "role-admin" {
		t.Fatalf("unexpected defs: %+v", defs)
	}
}

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI(t, nil, nil)
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
