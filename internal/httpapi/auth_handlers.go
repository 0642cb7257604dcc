package httpapi

import (
	"net/http"
	"time"

	"fundimart.org/internal/audit"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/obs"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Identity  identityView `json:"identity"`
}

type identityView struct {
	UserID       string            `json:"user_id"`
	Role         auth.Role         `json:"role"`
	Capabilities []auth.Capability `json:"capabilities"`
}

func viewIdentity(id auth.Identity) identityView {
	caps := id.EffectivePermissions().Capabilities()
	if caps == nil {
		caps = []auth.Capability{}
	}
	return identityView{UserID: id.UserID, Role: id.Role, Capabilities: caps}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, r, err)
		return
	}

	sess, id, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
			"email":     req.Email,
			"remote_ip": clientIP(r),
		})
		handleError(w, r, err)
		return
	}

	if err := a.admins.RecordLogin(r.Context(), id.UserID, clientIP(r), r.UserAgent()); err != nil {
		obs.Logger().Warn().Err(err).Str("user_id", id.UserID).Msg("record login history failed")
	}
	ctx := auth.ContextWithIdentity(r.Context(), id)
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{
		"role":       string(id.Role),
		"expires_at": sess.ExpiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		Identity:  viewIdentity(id),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeReason(w, r, http.StatusUnauthorized, "missing bearer token", string(auth.ReasonUnauthenticated))
		return
	}
	if err := a.auth.Logout(r.Context(), token); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id == nil {
		writeReason(w, r, http.StatusUnauthorized, "unauthenticated", string(auth.ReasonUnauthenticated))
		return
	}
	writeJSON(w, http.StatusOK, viewIdentity(*id))
}
