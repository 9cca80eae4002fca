package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medboard.org/internal/rbac"
)

const defaultTimeout = 15 * time.Second

// Service is the slice of the remote auth service the session manager needs.
type Service interface {
	Login(ctx context.Context, creds Credentials) (AuthResponse, error)
	Signup(ctx context.Context, reg Registration) (User, error)
	Refresh(ctx context.Context, token string) (AuthResponse, error)
	Me(ctx context.Context, token string) (User, error)
}

// RoleService is the role management surface consumed by internal/roles.
type RoleService interface {
	ListRoles(ctx context.Context, token string) ([]rbac.Definition, error)
	CreateRole(ctx context.Context, token string, req RoleCreate) (rbac.Definition, error)
	UpdateRole(ctx context.Context, token, roleID string, req RoleUpdate) (rbac.Definition, error)
	DeleteRole(ctx context.Context, token, roleID string) error
	ResourceCatalog(ctx context.Context, token string) ([]ResourceCatalogEntry, error)
}

// Client talks to the remote auth and role management endpoints. The exact
// paths are an external contract owned by the server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient validates the base URL and returns a ready client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("authapi: base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("authapi: parse base URL: %w", err)
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login exchanges credentials for a bearer token and the user it belongs to.
func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", creds, &resp); err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

// Signup registers a new user. No token is issued; callers log in afterwards.
func (c *Client) Signup(ctx context.Context, reg Registration) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodPost, "/auth/signup", "", reg, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Refresh validates the presented token and rotates it in one round trip.
func (c *Client) Refresh(ctx context.Context, token string) (AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", token, nil, &resp); err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

// Me returns the identity behind a still-valid token without rotating it.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/me", token, nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// ListRoles fetches every role definition, custom and system alike.
func (c *Client) ListRoles(ctx context.Context, token string) ([]rbac.Definition, error) {
	var defs []rbac.Definition
	if err := c.do(ctx, http.MethodGet, "/roles", token, nil, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// CreateRole creates a custom role.
func (c *Client) CreateRole(ctx context.Context, token string, req RoleCreate) (rbac.Definition, error) {
	var def rbac.Definition
	if err := c.do(ctx, http.MethodPost, "/roles", token, req, &def); err != nil {
		return rbac.Definition{}, err
	}
	return def, nil
}

// UpdateRole updates a custom role. The server rejects system roles.
func (c *Client) UpdateRole(ctx context.Context, token, roleID string, req RoleUpdate) (rbac.Definition, error) {
	var def rbac.Definition
	path := "/roles/" + url.PathEscape(roleID)
	if err := c.do(ctx, http.MethodPut, path, token, req, &def); err != nil {
		return rbac.Definition{}, err
	}
	return def, nil
}

// DeleteRole deletes a custom role. The server rejects system roles and
// roles still assigned to users.
func (c *Client) DeleteRole(ctx context.Context, token, roleID string) error {
	path := "/roles/" + url.PathEscape(roleID)
	return c.do(ctx, http.MethodDelete, path, token, nil, nil)
}

// ResourceCatalog lists the protectable resources and their actions.
func (c *Client) ResourceCatalog(ctx context.Context, token string) ([]ResourceCatalogEntry, error) {
	var entries []ResourceCatalogEntry
	if err := c.do(ctx, http.MethodGet, "/roles/resources/list", token, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("authapi: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("authapi: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("authapi: decode response: %w", err)
	}
	return nil
}

// readDetail extracts the server's {"detail": ...} message when present.
func readDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Detail == "" {
		return strings.TrimSpace(string(data))
	}
	return payload.Detail
}
