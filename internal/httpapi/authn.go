package httpapi

import (
	"net/http"
	"strings"

	"foodbridge.org/internal/auth"
)

// sessionCookieName matches the cookie the frontend already stores.
const sessionCookieName = "token"

var publicPaths = []string{
	"/",
	"/jwt",
	"/logout",
	"/available-foods",
	"/all-foods",
	"/featured-foods",
	"/events",
	"/metrics",
	"/healthz",
	"/readyz",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized access")
			return
		}

		claims, err := a.issuer.ParseAndValidate(cookie.Value)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), claims.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isPublicRequest(r *http.Request) bool {
	for _, p := range publicPaths {
		if r.URL.Path == p {
			return true
		}
	}
	// Offer detail reads are public; mutations on the same path are not.
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/food/") {
		return true
	}
	return false
}
