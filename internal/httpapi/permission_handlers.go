package httpapi

import (
	"net/http"

	"medboard.org/internal/guard"
	"medboard.org/internal/rbac"
)

type checkRequest struct {
	AdminOnly    bool `json:"admin_only"`
	Requirements []struct {
		Resource rbac.Resource `json:"resource"`
		Action   rbac.Action   `json:"action"`
	} `json:"requirements"`
}

type checkResponse struct {
	Decision string `json:"decision"`
}

// handlePermissions reports the effective permission set of the current
// session's role.
func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := a.sessions.Current()
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":        user.Role,
		"permissions": a.perms.RolePermissions(user.Role),
	})
}

// handlePermissionCheck evaluates a route guard for the current session and
// returns the render decision. A denial is a 200 response; the decision is
// data, not an error.
func (a *API) handlePermissionCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req checkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	reqs := make([]guard.Requirement, 0, len(req.Requirements))
	for _, pair := range req.Requirements {
		if pair.Resource == "" || pair.Action == "" {
			writeError(w, r, http.StatusBadRequest, "resource and action are required")
			return
		}
		reqs = append(reqs, guard.Requirement{Resource: pair.Resource, Action: pair.Action})
	}

	decision := a.guards.Evaluate(req.AdminOnly, reqs...)
	writeJSON(w, http.StatusOK, checkResponse{Decision: decision.String()})
}

// handleCatalog lists the closed sets of resources and actions.
func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resources": rbac.Resources(),
		"actions":   rbac.Actions(),
	})
}
