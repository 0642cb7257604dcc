package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"fundimart.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
}

// publicReadPrefixes are readable without a token; writes below them still authenticate.
var publicReadPrefixes = []string{
	"/v1/products/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublic(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeReason(w, r, http.StatusUnauthorized, err.Error(), string(auth.ReasonUnauthenticated))
			return
		}

		id, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthenticated):
				w.Header().Set("WWW-Authenticate", wwwAuthenticate+`, error="invalid_token"`)
				writeReason(w, r, http.StatusUnauthorized, "invalid token", string(auth.ReasonUnauthenticated))
			default:
				handleError(w, r, err)
			}
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), id)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublic(r *http.Request) bool {
	for _, p := range publicPaths {
		if r.URL.Path == p {
			return true
		}
	}
	if r.Method != http.MethodGet {
		return false
	}
	for _, prefix := range publicReadPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// identity returns the caller attached by withAuth, or nil.
func identity(r *http.Request) *auth.Identity {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	return id
}
