package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bizdesk.org/internal/auth"
	"bizdesk.org/internal/obs"
	"bizdesk.org/internal/token"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Plan     string `json:"plan,omitempty"`
}

func (a *API) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, r, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to process password")
		return
	}
	user := &auth.User{Email: email, PasswordHash: hash, Plan: strings.TrimSpace(req.Plan)}
	if err := a.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			writeError(w, r, http.StatusConflict, "email is already registered")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to create user")
		return
	}
	a.audit(r.Context(), "auth.register", "user", strconv.FormatInt(user.ID, 10), map[string]string{"email": email})
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	// One uniform refusal for unknown accounts and bad passwords, so the
	// endpoint does not leak which emails exist.
	user, err := a.users.FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to look up user")
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	access, _, err := a.codec.IssueAccess(user.ID, user.Email)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to issue token")
		return
	}
	refresh, _, err := a.codec.IssueRefresh(user.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to issue token")
		return
	}
	a.setAuthCookie(w, accessCookieName, access, accessCookieMaxAge)
	a.setAuthCookie(w, refreshCookieName, refresh, refreshCookieMaxAge)

	a.audit(r.Context(), "auth.login", "user", strconv.FormatInt(user.ID, 10), map[string]string{"email": user.Email})
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) refreshError(w http.ResponseWriter, r *http.Request, status int, code string) {
	obs.CountTokenRefresh(code)
	writeError(w, r, status, code)
}

// handleAuthRefresh exchanges a valid refresh cookie for a fresh access
// cookie. Claims are rebuilt from the current user row rather than copied
// from the old token.
func (a *API) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		a.refreshError(w, r, http.StatusBadRequest, "missing_refresh_token")
		return
	}
	claims, err := a.codec.VerifyRefresh(cookie.Value)
	if err != nil {
		if errors.Is(err, token.ErrKindMismatch) {
			a.refreshError(w, r, http.StatusBadRequest, "invalid_token_type")
			return
		}
		// Access tokens in the refresh slot fail signature verification
		// outright (distinct secrets), so probe before mapping the error.
		if _, accessErr := a.codec.VerifyAccess(cookie.Value); accessErr == nil {
			a.refreshError(w, r, http.StatusBadRequest, "access_token_not_allowed")
			return
		}
		if errors.Is(err, token.ErrInvalidToken) {
			a.refreshError(w, r, http.StatusBadRequest, "invalid_refresh_token")
			return
		}
		a.refreshError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	if claims.UserID <= 0 {
		a.refreshError(w, r, http.StatusBadRequest, "invalid_refresh_payload")
		return
	}
	user, err := a.users.Find(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			a.refreshError(w, r, http.StatusBadRequest, "user_not_found")
			return
		}
		a.refreshError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	access, exp, err := a.codec.IssueAccess(user.ID, user.Email)
	if err != nil {
		a.refreshError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	a.setAuthCookie(w, accessCookieName, access, accessCookieMaxAge)
	obs.CountTokenRefresh("ok")
	a.audit(r.Context(), "auth.refresh", "user", strconv.FormatInt(user.ID, 10), nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"expires_at": exp,
	})
}

// handleAuthSession reports whether the caller is authenticated. When the
// access cookie has expired but the refresh cookie still verifies, the
// session is silently refreshed once and a new access cookie is set.
func (a *API) handleAuthSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	raw, ok := credentialFromRequest(r)
	if ok && !a.codec.IsExpired(raw) {
		claims, err := a.codec.VerifyAccess(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "UNAUTHENTICATED"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "AUTHENTICATED",
			"user":   map[string]any{"id": claims.UserID, "email": claims.Email},
		})
		return
	}
	if ok {
		if user := a.silentRefresh(w, r); user != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"status": "AUTHENTICATED_REFRESHED",
				"user":   map[string]any{"id": user.ID, "email": user.Email},
			})
			return
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "UNAUTHENTICATED"})
}

// silentRefresh attempts exactly one refresh using the refresh cookie and
// sets a new access cookie on success. Any failure returns nil; the caller
// reports the session unauthenticated.
func (a *API) silentRefresh(w http.ResponseWriter, r *http.Request) *auth.User {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	claims, err := a.codec.VerifyRefresh(cookie.Value)
	if err != nil || claims.UserID <= 0 {
		return nil
	}
	user, err := a.users.Find(r.Context(), claims.UserID)
	if err != nil {
		return nil
	}
	access, _, err := a.codec.IssueAccess(user.ID, user.Email)
	if err != nil {
		return nil
	}
	a.setAuthCookie(w, accessCookieName, access, accessCookieMaxAge)
	obs.CountTokenRefresh("silent")
	return user
}
