package httpapi

import (
	"net/http"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/audit"
	"fundimart.org/internal/auth"
)

type promoteRequest struct {
	UserID      string              `json:"user_id"`
	Role        string              `json:"role"`
	Permissions *auth.PermissionSet `json:"permissions"`
}

type changeRoleRequest struct {
	Role        string              `json:"role"`
	Permissions *auth.PermissionSet `json:"permissions"`
}

type permissionsRequest struct {
	Permissions *auth.PermissionSet `json:"permissions"`
}

func (a *API) promoteAdmin(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, r, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		handleError(w, r, err)
		return
	}
	p, err := a.admins.Promote(r.Context(), identity(r), req.UserID, role, req.Permissions)
	observe(admin.ActionManage, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.promote", map[string]any{
		"profile_id":   p.ID,
		"target_user":  p.UserID,
		"role":         string(p.Role),
		"capabilities": p.Permissions.Capabilities(),
	})
	w.Header().Set("Location", "/v1/admins/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) listAdmins(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 50, 1, 200)
	if err != nil {
		writeReason(w, r, http.StatusBadRequest, err.Error(), "invalid-input")
		return
	}
	f := admin.Filter{Limit: limit}
	if raw := q.Get("role"); raw != "" {
		role, err := auth.ParseRole(raw)
		if err != nil {
			handleError(w, r, err)
			return
		}
		f.Role = role
	}
	items, err := a.admins.List(r.Context(), identity(r), f)
	observe(admin.ActionRead, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(items))
}

func (a *API) getAdmin(w http.ResponseWriter, r *http.Request) {
	p, err := a.admins.Get(r.Context(), identity(r), r.PathValue("id"))
	observe(admin.ActionRead, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) changeAdminRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, r, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		handleError(w, r, err)
		return
	}
	p, err := a.admins.ChangeRole(r.Context(), identity(r), r.PathValue("id"), role, req.Permissions)
	observe(admin.ActionManage, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.role.change", map[string]any{
		"profile_id":   p.ID,
		"target_user":  p.UserID,
		"role":         string(p.Role),
		"capabilities": p.Permissions.Capabilities(),
	})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) setAdminPermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, r, err)
		return
	}
	if req.Permissions == nil {
		writeReason(w, r, http.StatusBadRequest, "permissions are required", "invalid-input")
		return
	}
	p, err := a.admins.SetCustomPermissions(r.Context(), identity(r), r.PathValue("id"), *req.Permissions)
	observe(admin.ActionManage, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.permissions.set", map[string]any{
		"profile_id":   p.ID,
		"target_user":  p.UserID,
		"capabilities": p.Permissions.Capabilities(),
	})
	writeJSON(w, http.StatusOK, p)
}
