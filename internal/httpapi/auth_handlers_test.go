package httpapi

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func postRefresh(t *testing.T, env *testEnv, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/auth/refresh", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestRefreshMissingCookie(t *testing.T) {
	env := newTestEnv(t)
	resp := postRefresh(t, env)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
	body := decode[errorBody](t, resp)
	if body.Error != "missing_refresh_token" {
		t.Fatalf("code %q", body.Error)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	env := newTestEnv(t)
	resp := postRefresh(t, env, &http.Cookie{Name: refreshCookieName, Value: "not-a-jwt"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
	body := decode[errorBody](t, resp)
	if body.Error != "invalid_refresh_token" {
		t.Fatalf("code %q", body.Error)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "u@example.com", "hunter2hunter2")

	access, _, err := env.codec.IssueAccess(1, "u@example.com")
	if err != nil {
		t.Fatal(err)
	}
	resp := postRefresh(t, env, &http.Cookie{Name: refreshCookieName, Value: access})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
	body := decode[errorBody](t, resp)
	if body.Error != "access_token_not_allowed" {
		t.Fatalf("code %q, want access_token_not_allowed", body.Error)
	}
}

func TestRefreshUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "gone@example.com", "hunter2hunter2")
	env.login(t, "gone@example.com", "hunter2hunter2")

	refresh, _, err := env.codec.IssueRefresh(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	env.users.delete(user.ID)

	resp := postRefresh(t, env, &http.Cookie{Name: refreshCookieName, Value: refresh})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
	body := decode[errorBody](t, resp)
	if body.Error != "user_not_found" {
		t.Fatalf("code %q", body.Error)
	}
}

func TestRefreshRotatesAccessCookie(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "owner@example.com", "hunter2hunter2")
	env.login(t, "owner@example.com", "hunter2hunter2")
	biz := env.createBusiness(t, "Acme")

	// Push past the access TTL but inside the refresh TTL.
	env.clock.advance(25 * time.Hour)

	stale := env.do(t, http.MethodGet, fmt.Sprintf("/v1/businesses/%d", biz.ID), nil)
	if stale.StatusCode != http.StatusUnauthorized {
		t.Fatalf("stale access: status %d, want 401", stale.StatusCode)
	}
	staleBody := decode[struct {
		Code string `json:"code"`
	}](t, stale)
	if staleBody.Code != "TOKEN_EXPIRED" {
		t.Fatalf("stale access code %q", staleBody.Code)
	}

	refreshed := env.do(t, http.MethodPost, "/v1/auth/refresh", nil)
	if refreshed.StatusCode != http.StatusOK {
		t.Fatalf("refresh: status %d", refreshed.StatusCode)
	}
	var newAccess *http.Cookie
	for _, c := range refreshed.Cookies() {
		if c.Name == accessCookieName && c.Value != "" {
			newAccess = c
		}
	}
	refreshed.Body.Close()
	if newAccess == nil {
		t.Fatal("refresh did not set a new access cookie")
	}
	if newAccess.MaxAge != 86400 {
		t.Fatalf("new access cookie max-age %d, want 86400", newAccess.MaxAge)
	}
	claims, err := env.codec.VerifyAccess(newAccess.Value)
	if err != nil {
		t.Fatalf("new access cookie does not verify: %v", err)
	}
	if claims.UserID != 1 || claims.Email != "owner@example.com" {
		t.Fatalf("unexpected claims on rotated token: %+v", claims)
	}

	again := env.do(t, http.MethodGet, fmt.Sprintf("/v1/businesses/%d", biz.ID), nil)
	if again.StatusCode != http.StatusOK {
		t.Fatalf("after refresh: status %d, want 200", again.StatusCode)
	}
	again.Body.Close()
}

func TestSessionStates(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "owner@example.com", "hunter2hunter2")
	env.login(t, "owner@example.com", "hunter2hunter2")

	type sessionBody struct {
		Status string `json:"status"`
		User   struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}

	fresh := env.do(t, http.MethodGet, "/v1/auth/session", nil)
	if fresh.StatusCode != http.StatusOK {
		t.Fatalf("fresh session: status %d", fresh.StatusCode)
	}
	freshBody := decode[sessionBody](t, fresh)
	if freshBody.Status != "AUTHENTICATED" || freshBody.User.ID != user.ID {
		t.Fatalf("fresh session: %+v", freshBody)
	}

	// Expired access plus a live refresh cookie triggers a silent refresh.
	env.clock.advance(25 * time.Hour)
	refreshed := env.do(t, http.MethodGet, "/v1/auth/session", nil)
	if refreshed.StatusCode != http.StatusOK {
		t.Fatalf("refreshed session: status %d", refreshed.StatusCode)
	}
	var sawNewAccess bool
	for _, c := range refreshed.Cookies() {
		if c.Name == accessCookieName && c.Value != "" {
			sawNewAccess = true
		}
	}
	refreshedBody := decode[sessionBody](t, refreshed)
	if refreshedBody.Status != "AUTHENTICATED_REFRESHED" {
		t.Fatalf("refreshed session status %q", refreshedBody.Status)
	}
	if !sawNewAccess {
		t.Fatal("silent refresh did not set a new access cookie")
	}

	// Past the refresh TTL nothing can be salvaged.
	env.clock.advance(8 * 24 * time.Hour)
	dead := env.do(t, http.MethodGet, "/v1/auth/session", nil)
	if dead.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dead session: status %d", dead.StatusCode)
	}
	deadBody := decode[sessionBody](t, dead)
	if deadBody.Status != "UNAUTHENTICATED" {
		t.Fatalf("dead session status %q", deadBody.Status)
	}
}

func TestSessionWithoutCredentials(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/v1/auth/session")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
	body := decode[struct {
		Status string `json:"status"`
	}](t, resp)
	if body.Status != "UNAUTHENTICATED" {
		t.Fatalf("status field %q", body.Status)
	}
}

func TestLogoutClearsCookies(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "owner@example.com", "hunter2hunter2")
	env.login(t, "owner@example.com", "hunter2hunter2")

	resp := env.do(t, http.MethodPost, "/v1/auth/logout", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	cleared := map[string]bool{}
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	resp.Body.Close()
	for _, name := range []string{accessCookieName, refreshCookieName, legacyCookieName} {
		if !cleared[name] {
			t.Fatalf("cookie %s not cleared", name)
		}
	}

	session := env.do(t, http.MethodGet, "/v1/auth/session", nil)
	if session.StatusCode != http.StatusUnauthorized {
		t.Fatalf("session after logout: status %d", session.StatusCode)
	}
	session.Body.Close()
}
