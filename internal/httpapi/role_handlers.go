package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"medboard.org/internal/audit"
	"medboard.org/internal/authapi"
	"medboard.org/internal/guard"
	"medboard.org/internal/rbac"
)

type createRoleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Permissions rbac.PermissionSet `json:"permissions"`
}

type updateRoleRequest struct {
	Description *string            `json:"description"`
	Permissions rbac.PermissionSet `json:"permissions"`
}

// ensureAdmin gates role management the same way the admin pages are gated.
func (a *API) ensureAdmin(w http.ResponseWriter, r *http.Request) bool {
	switch a.guards.Evaluate(true) {
	case guard.DecisionAllow:
		return true
	case guard.DecisionPending:
		writeError(w, r, http.StatusServiceUnavailable, "session still resolving")
	case guard.DecisionLogin:
		writeError(w, r, http.StatusUnauthorized, "no active session")
	default:
		writeError(w, r, http.StatusForbidden, "admin role required")
	}
	return false
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if !a.ensureAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		defs, err := a.roles.List(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, defs)
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		def, err := a.roles.Create(r.Context(), authapi.RoleCreate{
			Name:        rbac.Role(req.Name),
			Description: req.Description,
			Permissions: req.Permissions,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditEvent(r, "gateway.role.create", map[string]any{"role_id": def.ID, "name": def.Name})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", def.ID))
		writeJSON(w, http.StatusCreated, def)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	roleID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if roleID == "" || strings.Contains(roleID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		def, err := a.roles.Update(r.Context(), roleID, authapi.RoleUpdate{
			Description: req.Description,
			Permissions: req.Permissions,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditEvent(r, "gateway.role.update", map[string]any{"role_id": def.ID})
		writeJSON(w, http.StatusOK, def)
	case http.MethodDelete:
		if err := a.roles.Delete(r.Context(), roleID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.auditEvent(r, "gateway.role.delete", map[string]any{"role_id": roleID})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) auditEvent(r *http.Request, event string, fields map[string]any) {
	ctx := audit.WithSessionID(r.Context(), a.sessions.SessionID())
	_ = audit.LogEvent(ctx, event, fields)
}
