package rbac

import "sort"

// Role names a bundle of permissions assigned to a user. The set of roles is
// open: custom roles are created at runtime through the role service, so Role
// is a lookup key rather than a closed enumeration.
type Role string

// Resource is a protectable entity category. The set is closed and defined
// here; it is not user-extensible.
type Resource string

// Action is an operation kind performable on a resource.
type Action string

const (
	ResourceUsers          Resource = "users"
	ResourcePatients       Resource = "patients"
	ResourceMedicalRecords Resource = "medical_records"
	ResourceAppointments   Resource = "appointments"
	ResourceAnalytics      Resource = "analytics"
	ResourceSettings       Resource = "settings"
)

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionManage marks administrative override. It is never expanded into
	// the other actions: each action must be granted explicitly.
	ActionManage Action = "manage"
)

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleNurse        Role = "nurse"
	RoleReceptionist Role = "receptionist"
	RoleUser         Role = "user"
)

// PermissionSet maps each resource to the actions a role may perform on it.
// Set semantics: an action is either present or absent.
type PermissionSet map[Resource][]Action

// Resources returns the closed resource catalog in a stable order.
func Resources() []Resource {
	return []Resource{
		ResourceUsers,
		ResourcePatients,
		ResourceMedicalRecords,
		ResourceAppointments,
		ResourceAnalytics,
		ResourceSettings,
	}
}

// Actions returns the closed action catalog in a stable order.
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage}
}

var builtinPermissions = map[Role]PermissionSet{
	RoleAdmin: {
		ResourceUsers:          {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage},
		ResourcePatients:       {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage},
		ResourceMedicalRecords: {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage},
		ResourceAppointments:   {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage},
		ResourceAnalytics:      {ActionRead, ActionManage},
		ResourceSettings:       {ActionRead, ActionUpdate, ActionManage},
	},
	RoleDoctor: {
		ResourceUsers:          {},
		ResourcePatients:       {ActionCreate, ActionRead, ActionUpdate},
		ResourceMedicalRecords: {ActionCreate, ActionRead, ActionUpdate},
		ResourceAppointments:   {ActionCreate, ActionRead, ActionUpdate},
		ResourceAnalytics:      {ActionRead},
		ResourceSettings:       {ActionRead},
	},
	RoleNurse: {
		ResourceUsers:          {},
		ResourcePatients:       {ActionRead, ActionUpdate},
		ResourceMedicalRecords: {ActionCreate, ActionRead},
		ResourceAppointments:   {ActionRead, ActionUpdate},
		ResourceAnalytics:      {},
		ResourceSettings:       {},
	},
	RoleReceptionist: {
		ResourceUsers:          {},
		ResourcePatients:       {ActionCreate, ActionRead},
		ResourceMedicalRecords: {},
		ResourceAppointments:   {ActionCreate, ActionRead, ActionUpdate},
		ResourceAnalytics:      {},
		ResourceSettings:       {},
	},
	RoleUser: {
		ResourceUsers:          {},
		ResourcePatients:       {ActionRead},
		ResourceMedicalRecords: {ActionRead},
		ResourceAppointments:   {ActionRead},
		ResourceAnalytics:      {},
		ResourceSettings:       {},
	},
}

var builtinDescriptions = map[Role]string{
	RoleAdmin:        "Full system access and management capabilities",
	RoleDoctor:       "Manage patients, medical records, and appointments",
	RoleNurse:        "Access to patient data and ability to create medical records",
	RoleReceptionist: "Manage appointments and basic patient information",
	RoleUser:         "Basic access to view information",
}

// Engine answers permission queries against the built-in role table. The
// table is flat (role -> resource -> actions) so every check is a couple of
// map lookups; roles never inherit from each other.
type Engine struct {
	table        map[Role]PermissionSet
	descriptions map[Role]string
}

// NewEngine returns an engine backed by the built-in system role table.
func NewEngine() *Engine {
	return &Engine{table: builtinPermissions, descriptions: builtinDescriptions}
}

// HasPermission reports whether role may perform action on resource.
// Any missing or malformed entry resolves to deny; the method never panics.
func (e *Engine) HasPermission(role Role, resource Resource, action Action) bool {
	if role == "" {
		return false
	}
	perms, ok := e.table[role]
	if !ok {
		return false
	}
	actions, ok := perms[resource]
	if !ok {
		return false
	}
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// RolePermissions returns a deep copy of the role's full permission set, or
// an empty set for an unknown role. Callers may mutate the result freely.
func (e *Engine) RolePermissions(role Role) PermissionSet {
	perms, ok := e.table[role]
	if !ok {
		return PermissionSet{}
	}
	out := make(PermissionSet, len(perms))
	for resource, actions := range perms {
		copied := make([]Action, len(actions))
		copy(copied, actions)
		out[resource] = copied
	}
	return out
}

// Roles enumerates the built-in roles in sorted order. Custom roles are
// enumerated by the role service, not by the engine.
func (e *Engine) Roles() []Role {
	out := make([]Role, 0, len(e.table))
	for role := range e.table {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Describe returns a human-readable description for built-in roles and ""
// for unknown roles. Informational only; never consulted for authorization.
func (e *Engine) Describe(role Role) string {
	return e.descriptions[role]
}
