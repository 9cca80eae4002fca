package guard

import (
	"medboard.org/internal/authapi"
	"medboard.org/internal/obs"
	"medboard.org/internal/rbac"
	"medboard.org/internal/session"
)

// Decision tells a page what to render. A missing permission is a routing
// outcome, not an error.
type Decision int

const (
	// DecisionPending means the initial session resolution has not finished:
	// render a neutral loading view, neither content nor a redirect.
	DecisionPending Decision = iota
	// DecisionLogin means there is no session: redirect to the login entry.
	DecisionLogin
	// DecisionDenied means the user lacks a required permission: redirect
	// to the landing page.
	DecisionDenied
	// DecisionAllow means the protected content may render.
	DecisionAllow
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionLogin:
		return "login"
	case DecisionDenied:
		return "denied"
	case DecisionAllow:
		return "allow"
	default:
		return "unknown"
	}
}

// Requirement is one (resource, action) pair a route demands.
type Requirement struct {
	Resource rbac.Resource
	Action   rbac.Action
}

// PermissionSource answers permission queries; satisfied by rbac.Resolver
// and rbac.Engine alike so role origin is invisible here.
type PermissionSource interface {
	HasPermission(role rbac.Role, resource rbac.Resource, action rbac.Action) bool
}

// SessionSource is the slice of the session manager guards read.
type SessionSource interface {
	State() session.State
	Current() (authapi.User, bool)
}

// Evaluator gates protected routes against the session and the permission
// tables.
type Evaluator struct {
	sessions SessionSource
	perms    PermissionSource
}

// NewEvaluator wires a guard to its sources.
func NewEvaluator(sessions SessionSource, perms PermissionSource) *Evaluator {
	return &Evaluator{sessions: sessions, perms: perms}
}

// Evaluate resolves the render decision for a route. All requirements must
// hold; adminOnly additionally restricts the route to the admin role.
func (e *Evaluator) Evaluate(adminOnly bool, reqs ...Requirement) Decision {
	switch e.sessions.State() {
	case session.StateUninitialized, session.StateResolving:
		return DecisionPending
	}

	user, ok := e.sessions.Current()
	if !ok {
		return DecisionLogin
	}

	if adminOnly && user.Role != rbac.RoleAdmin {
		obs.ObservePermissionCheck(false)
		return DecisionDenied
	}

	for _, req := range reqs {
		allowed := e.perms.HasPermission(user.Role, req.Resource, req.Action)
		obs.ObservePermissionCheck(allowed)
		if !allowed {
			return DecisionDenied
		}
	}
	return DecisionAllow
}
