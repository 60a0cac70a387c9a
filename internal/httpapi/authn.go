package httpapi

import (
	"net/http"
	"strings"

	"bizdesk.org/internal/auth"
	"bizdesk.org/internal/obs"
	"bizdesk.org/internal/token"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
	legacyCookieName  = "token"

	accessCookieMaxAge  = 86400
	refreshCookieMaxAge = 604800
)

// publicPaths are served without an access credential. The auth endpoints
// examine cookies themselves.
var publicPaths = map[string]struct{}{
	"/":                 {},
	"/healthz":          {},
	"/readyz":           {},
	"/metrics":          {},
	"/v1/info":          {},
	"/v1/auth/register": {},
	"/v1/auth/login":    {},
	"/v1/auth/logout":   {},
	"/v1/auth/refresh":  {},
	"/v1/auth/session":  {},
}

type authFailure struct {
	status  int
	kind    string
	payload map[string]any
}

func (f *authFailure) write(w http.ResponseWriter) {
	obs.CountAuthFailure(f.kind)
	writeJSON(w, f.status, f.payload)
}

func missingCredentialFailure() *authFailure {
	return &authFailure{
		status: http.StatusUnauthorized,
		kind:   "missing",
		payload: map[string]any{
			"error": "Missing or invalid Authorization header",
		},
	}
}

func expiredTokenFailure() *authFailure {
	return &authFailure{
		status: http.StatusUnauthorized,
		kind:   "expired",
		payload: map[string]any{
			"error":   "Token expired",
			"message": "Access token expired; obtain a new one via /v1/auth/refresh",
			"code":    "TOKEN_EXPIRED",
		},
	}
}

func invalidTokenFailure(detail string) *authFailure {
	return &authFailure{
		status: http.StatusUnauthorized,
		kind:   "invalid",
		payload: map[string]any{
			"error":   "Unauthorized",
			"details": detail,
			"code":    "INVALID_TOKEN",
		},
	}
}

// credentialFromRequest extracts the raw access credential. Cookies win
// over the Authorization header, and the modern cookie wins over the
// legacy one.
func credentialFromRequest(r *http.Request) (string, bool) {
	if c, err := r.Cookie(accessCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	if c, err := r.Cookie(legacyCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	header := r.Header.Get("Authorization")
	if raw, ok := strings.CutPrefix(header, "Bearer "); ok {
		raw = strings.TrimSpace(raw)
		if raw != "" {
			return raw, true
		}
	}
	return "", false
}

// authenticate resolves the caller's identity from the request credential.
// Expiry is checked before signature verification so clients can tell a
// stale token from a forged one.
func (a *API) authenticate(r *http.Request) (*token.Claims, *authFailure) {
	raw, ok := credentialFromRequest(r)
	if !ok {
		return nil, missingCredentialFailure()
	}
	if _, err := a.codec.DecodeUnsafe(raw); err != nil {
		return nil, invalidTokenFailure(err.Error())
	}
	if a.codec.IsExpired(raw) {
		return nil, expiredTokenFailure()
	}
	claims, err := a.codec.VerifyAccess(raw)
	if err != nil {
		return nil, invalidTokenFailure(err.Error())
	}
	return claims, nil
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, failure := a.authenticate(r)
		if failure != nil {
			failure.write(w)
			return
		}
		identity := auth.Identity{UserID: claims.UserID, Email: claims.Email}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

// requireIdentity fetches the identity installed by withAuth.
func (a *API) requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		missingCredentialFailure().write(w)
		return auth.Identity{}, false
	}
	return identity, true
}

func (a *API) setAuthCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName, legacyCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   a.secureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
