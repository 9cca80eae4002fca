package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"medboard.org/internal/audit"
	"medboard.org/internal/authapi"
	"medboard.org/internal/rbac"
)

var (
	ErrInvalidInput = errors.New("roles: invalid input")
	// ErrSystemRole is returned before any network call when an edit or
	// delete targets a system role. The server enforces the same rule; the
	// local check keeps the failure fast and discoverable.
	ErrSystemRole = errors.New("roles: system roles cannot be modified")
)

// TokenSource supplies a valid bearer token; satisfied by session.Manager.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Service manages custom roles: it proxies the role management API and keeps
// the rbac registry in sync so guards see new definitions immediately.
type Service struct {
	api      authapi.RoleService
	registry *rbac.Registry
	tokens   TokenSource

	mu   sync.Mutex
	byID map[string]rbac.Definition
}

// NewService wires the role service to its collaborators.
func NewService(api authapi.RoleService, registry *rbac.Registry, tokens TokenSource) (*Service, error) {
	if api == nil {
		return nil, errors.New("roles: role API is required")
	}
	if registry == nil {
		return nil, errors.New("roles: registry is required")
	}
	if tokens == nil {
		return nil, errors.New("roles: token source is required")
	}
	return &Service{
		api:      api,
		registry: registry,
		tokens:   tokens,
		byID:     make(map[string]rbac.Definition),
	}, nil
}

// Sync fetches every definition and replaces the registry's custom-role set.
// System roles stay out of the registry: their permissions are baked into
// the static table, which remains authoritative.
func (s *Service) Sync(ctx context.Context) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("roles: sync: %w", err)
	}
	defs, err := s.api.ListRoles(ctx, token)
	if err != nil {
		return fmt.Errorf("roles: sync: %w", err)
	}

	custom := make([]rbac.Definition, 0, len(defs))
	index := make(map[string]rbac.Definition, len(defs))
	for _, def := range defs {
		index[def.ID] = def
		if !def.IsSystem {
			custom = append(custom, def)
		}
	}
	s.registry.Replace(custom)

	s.mu.Lock()
	s.byID = index
	s.mu.Unlock()

	_ = audit.LogEvent(ctx, "roles.sync", map[string]any{"count": len(defs)})
	return nil
}

// List returns every definition, system and custom, for the management UI.
func (s *Service) List(ctx context.Context) ([]rbac.Definition, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	return s.api.ListRoles(ctx, token)
}

// Create adds a custom role and makes it queryable right away.
func (s *Service) Create(ctx context.Context, req authapi.RoleCreate) (rbac.Definition, error) {
	name := rbac.Role(strings.TrimSpace(string(req.Name)))
	if name == "" {
		return rbac.Definition{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if rbac.NewEngine().Describe(name) != "" {
		return rbac.Definition{}, fmt.Errorf("%w: %q is a built-in role", ErrInvalidInput, name)
	}
	if err := validatePermissions(req.Permissions); err != nil {
		return rbac.Definition{}, err
	}
	req.Name = name

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return rbac.Definition{}, fmt.Errorf("roles: create: %w", err)
	}
	def, err := s.api.CreateRole(ctx, token, req)
	if err != nil {
		return rbac.Definition{}, fmt.Errorf("roles: create: %w", err)
	}
	s.remember(def)
	_ = audit.LogEvent(ctx, "roles.create", map[string]any{"role_id": def.ID, "name": def.Name})
	return def, nil
}

// Update edits a custom role. System roles are rejected locally.
func (s *Service) Update(ctx context.Context, roleID string, req authapi.RoleUpdate) (rbac.Definition, error) {
	if err := s.ensureEditable(roleID); err != nil {
		return rbac.Definition{}, err
	}
	if req.Permissions != nil {
		if err := validatePermissions(req.Permissions); err != nil {
			return rbac.Definition{}, err
		}
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return rbac.Definition{}, fmt.Errorf("roles: update: %w", err)
	}
	def, err := s.api.UpdateRole(ctx, token, roleID, req)
	if err != nil {
		return rbac.Definition{}, fmt.Errorf("roles: update: %w", err)
	}
	s.remember(def)
	_ = audit.LogEvent(ctx, "roles.update", map[string]any{"role_id": def.ID})
	return def, nil
}

// Delete removes a custom role. System roles are rejected locally.
func (s *Service) Delete(ctx context.Context, roleID string) error {
	if err := s.ensureEditable(roleID); err != nil {
		return err
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("roles: delete: %w", err)
	}
	if err := s.api.DeleteRole(ctx, token, roleID); err != nil {
		return fmt.Errorf("roles: delete: %w", err)
	}

	s.mu.Lock()
	if def, ok := s.byID[roleID]; ok {
		delete(s.byID, roleID)
		s.rebuildRegistryLocked()
		_ = audit.LogEvent(ctx, "roles.delete", map[string]any{"role_id": roleID, "name": def.Name})
	}
	s.mu.Unlock()
	return nil
}

// Catalog lists the protectable resources and their actions.
func (s *Service) Catalog(ctx context.Context) ([]authapi.ResourceCatalogEntry, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("roles: catalog: %w", err)
	}
	return s.api.ResourceCatalog(ctx, token)
}

func (s *Service) ensureEditable(roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if def, ok := s.byID[roleID]; ok && def.IsSystem {
		return ErrSystemRole
	}
	return nil
}

func (s *Service) remember(def rbac.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[def.ID] = def
	s.rebuildRegistryLocked()
}

func (s *Service) rebuildRegistryLocked() {
	custom := make([]rbac.Definition, 0, len(s.byID))
	for _, def := range s.byID {
		if !def.IsSystem {
			custom = append(custom, def)
		}
	}
	s.registry.Replace(custom)
}

// validatePermissions rejects resources or actions outside the closed sets.
func validatePermissions(perms rbac.PermissionSet) error {
	for resource, actions := range perms {
		if !knownResource(resource) {
			return fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, resource)
		}
		for _, action := range actions {
			if !knownAction(action) {
				return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
			}
		}
	}
	return nil
}

func knownResource(resource rbac.Resource) bool {
	for _, r := range rbac.Resources() {
		if r == resource {
			return true
		}
	}
	return false
}

func knownAction(action rbac.Action) bool {
	for _, a := range rbac.Actions() {
		if a == action {
			return true
		}
	}
	return false
}
