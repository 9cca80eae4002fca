package authapi

import (
	"time"

	"medboard.org/internal/rbac"
)

// User is the identity object returned by the auth service.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      rbac.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// AuthResponse is the login and refresh payload: a fresh bearer token plus
// the identity it belongs to.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// Credentials carries a login request.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration carries a signup request. Signup returns the created user
// only; the caller logs in afterwards. Role is omitted when empty so the
// auth service applies its own default instead of receiving a blank role.
type Registration struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	FullName string    `json:"full_name"`
	Role     rbac.Role `json:"role,omitempty"`
}

// ResourceCatalogEntry lists the actions available on one resource, as
// served by the role management API.
type ResourceCatalogEntry struct {
	Name    rbac.Resource `json:"name"`
	Actions []rbac.Action `json:"actions"`
}

// RoleCreate is the payload for creating a custom role.
type RoleCreate struct {
	Name        rbac.Role          `json:"name"`
	Description string             `json:"description"`
	Permissions rbac.PermissionSet `json:"permissions"`
}

// RoleUpdate is the payload for updating a custom role. Nil fields are left
// unchanged by the server.
type RoleUpdate struct {
	Description *string            `json:"description,omitempty"`
	Permissions rbac.PermissionSet `json:"permissions,omitempty"`
}
