package token

import (
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := New([]byte("access-secret"), []byte("refresh-secret"), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestAccessRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	raw, exp, err := codec.IssueAccess(42, "Owner@Example.COM")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiration, got %v", exp)
	}

	claims, err := codec.VerifyAccess(raw)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("unexpected user id: %d", claims.UserID)
	}
	if claims.Email != "owner@example.com" {
		t.Fatalf("email not normalized: %s", claims.Email)
	}
	if claims.Kind != KindAccess {
		t.Fatalf("unexpected kind: %s", claims.Kind)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}
}

func TestKindIsolation(t *testing.T) {
	codec := newTestCodec(t)

	refresh, _, err := codec.IssueRefresh(1)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := codec.VerifyAccess(refresh); err == nil {
		t.Fatal("refresh token accepted as access token")
	}

	access, _, err := codec.IssueAccess(1, "a@b.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := codec.VerifyRefresh(access); err == nil {
		t.Fatal("access token accepted as refresh token")
	}
}

func TestSecretIsolation(t *testing.T) {
	codec := newTestCodec(t)
	other, err := New([]byte("other-access"), []byte("other-refresh"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, _, err := codec.IssueAccess(7, "a@b.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := other.VerifyAccess(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken from foreign codec, got %v", err)
	}
}

func TestExpiryMonotonic(t *testing.T) {
	now := time.Now().UTC()
	clock := now
	codec := newTestCodec(t, WithClock(func() time.Time { return clock }))

	raw, _, err := codec.IssueAccess(9, "a@b.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if codec.IsExpired(raw) {
		t.Fatal("token expired immediately after issuance")
	}
	if _, err := codec.VerifyAccess(raw); err != nil {
		t.Fatalf("VerifyAccess before expiry: %v", err)
	}

	clock = now.Add(24*time.Hour + time.Second)
	if !codec.IsExpired(raw) {
		t.Fatal("token not reported expired after lifetime elapsed")
	}
	if _, err := codec.VerifyAccess(raw); err == nil {
		t.Fatal("expired token verified")
	}
}

func TestIsExpiredFailsClosed(t *testing.T) {
	codec := newTestCodec(t)
	for _, raw := range []string{"", "garbage", "a.b", "a.b.c"} {
		if !codec.IsExpired(raw) {
			t.Fatalf("IsExpired(%q) = false, want true", raw)
		}
	}
}

func TestDecodeUnsafe(t *testing.T) {
	codec := newTestCodec(t)
	raw, _, err := codec.IssueRefresh(3)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	claims, err := codec.DecodeUnsafe(raw)
	if err != nil {
		t.Fatalf("DecodeUnsafe: %v", err)
	}
	if claims.UserID != 3 || claims.Kind != KindRefresh {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := codec.DecodeUnsafe("not-a-token"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "env-access")
	t.Setenv("JWT_REFRESH_SECRET", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for missing refresh secret")
	}
	t.Setenv("JWT_REFRESH_SECRET", "env-refresh")
	codec, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	raw, _, err := codec.IssueAccess(1, "a@b.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := codec.VerifyAccess(raw); err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
}
