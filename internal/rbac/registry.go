package rbac

import (
	"sync"
	"time"
)

// Definition describes a role as served by the role management API. Custom
// roles carry the same resource -> actions shape as the built-in table so
// guards query both through one code path.
type Definition struct {
	ID          string        `json:"id"`
	Name        Role          `json:"name"`
	Description string        `json:"description"`
	Permissions PermissionSet `json:"permissions"`
	IsSystem    bool          `json:"is_system_role"`
	CreatedAt   time.Time     `json:"created_at,omitempty"`
}

// Registry holds custom role definitions fetched from the role service. It
// is safe for concurrent readers while a sync replaces the definitions.
type Registry struct {
	mu    sync.RWMutex
	roles map[Role]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{roles: make(map[Role]Definition)}
}

// Replace swaps the full definition set, dropping entries with empty names.
func (r *Registry) Replace(defs []Definition) {
	next := make(map[Role]Definition, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		next[def.Name] = def
	}
	r.mu.Lock()
	r.roles = next
	r.mu.Unlock()
}

// Lookup returns the definition for a custom role.
func (r *Registry) Lookup(role Role) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.roles[role]
	return def, ok
}

// HasPermission checks a custom role's permission list. Deny on any missing
// entry, same contract as Engine.HasPermission.
func (r *Registry) HasPermission(role Role, resource Resource, action Action) bool {
	def, ok := r.Lookup(role)
	if !ok {
		return false
	}
	for _, a := range def.Permissions[resource] {
		if a == action {
			return true
		}
	}
	return false
}

// Resolver answers permission queries across both role origins. The built-in
// table is authoritative: the registry is consulted only for roles the static
// table does not know, and a role known to neither is denied everything.
type Resolver struct {
	engine   *Engine
	registry *Registry
}

// NewResolver combines the static engine with a dynamic registry. The
// registry may be nil when custom roles are disabled.
func NewResolver(engine *Engine, registry *Registry) *Resolver {
	return &Resolver{engine: engine, registry: registry}
}

// HasPermission implements the uniform permission query used by guards.
func (r *Resolver) HasPermission(role Role, resource Resource, action Action) bool {
	if role == "" {
		return false
	}
	if _, builtin := r.engine.table[role]; builtin {
		return r.engine.HasPermission(role, resource, action)
	}
	if r.registry == nil {
		return false
	}
	return r.registry.HasPermission(role, resource, action)
}

// RolePermissions returns the effective permission set for a role of either
// origin, as a copy the caller owns.
func (r *Resolver) RolePermissions(role Role) PermissionSet {
	if _, builtin := r.engine.table[role]; builtin {
		return r.engine.RolePermissions(role)
	}
	if r.registry == nil {
		return PermissionSet{}
	}
	def, ok := r.registry.Lookup(role)
	if !ok {
		return PermissionSet{}
	}
	out := make(PermissionSet, len(def.Permissions))
	for resource, actions := range def.Permissions {
		copied := make([]Action, len(actions))
		copy(copied, actions)
		out[resource] = copied
	}
	return out
}
