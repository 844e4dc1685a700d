package httpapi

import (
	"net/http"
	"strings"
	"time"

	"foodbridge.org/internal/audit"
	"foodbridge.org/internal/auth"
)

type sessionRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
}

// handleIssueSession exchanges an identity payload, already authenticated
// by the external identity provider, for the session cookie.
func (a *API) handleIssueSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	token, err := a.issuer.Issue(auth.Identity{
		Email:    email,
		Name:     req.Name,
		PhotoURL: req.PhotoURL,
	}, a.sessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session issuance failed")
		return
	}

	http.SetCookie(w, a.sessionCookie(token, a.sessionTTL))

	_ = audit.LogEvent(r.Context(), "auth.session.issue", map[string]any{
		"email":      email,
		"expires_at": time.Now().UTC().Add(a.sessionTTL).Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleLogout clears the session cookie. The credential is stateless,
// so there is no server-side revocation before natural expiry.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	expired := a.sessionCookie("", 0)
	expired.MaxAge = -1
	http.SetCookie(w, expired)

	_ = audit.LogEvent(r.Context(), "auth.session.revoke", nil)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// sessionCookie builds the credential cookie: SameSite=None + Secure for
// cross-site production frontends, Strict during local development.
func (a *API) sessionCookie(token string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
	if a.secureCookies {
		c.SameSite = http.SameSiteNoneMode
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}
