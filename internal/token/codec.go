package token

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer     = "bizdesk"
	defaultAccessTTL  = 24 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour

	accessSecretEnv  = "JWT_ACCESS_SECRET"
	refreshSecretEnv = "JWT_REFRESH_SECRET"

	// KindAccess and KindRefresh discriminate the two credential kinds so
	// one can never be presented in place of the other, even if the
	// signing secrets were ever unified.
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	// ErrInvalidToken indicates the token failed signature, expiry or
	// structural validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrKindMismatch indicates a structurally valid token of the wrong
	// kind (an access token in a refresh slot or vice versa).
	ErrKindMismatch = errors.New("unexpected token kind")
)

// Claims carries the identity baked into both credential kinds. Email is
// only present on access tokens.
type Claims struct {
	UserID int64  `json:"uid"`
	Email  string `json:"email,omitempty"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// Codec mints and verifies the two credential kinds with distinct HS256
// secrets. It is stateless and safe for concurrent use.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// Option configures Codec behavior.
type Option func(*Codec)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// New constructs a Codec from explicit secrets.
func New(accessSecret, refreshSecret []byte, opts ...Option) (*Codec, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, errors.New("token: both access and refresh secrets are required")
	}
	c := &Codec{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		issuer:        defaultIssuer,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FromEnv constructs a Codec from JWT_ACCESS_SECRET and JWT_REFRESH_SECRET.
func FromEnv(opts ...Option) (*Codec, error) {
	access := strings.TrimSpace(os.Getenv(accessSecretEnv))
	refresh := strings.TrimSpace(os.Getenv(refreshSecretEnv))
	if access == "" {
		return nil, fmt.Errorf("token: %s is not configured", accessSecretEnv)
	}
	if refresh == "" {
		return nil, fmt.Errorf("token: %s is not configured", refreshSecretEnv)
	}
	return New([]byte(access), []byte(refresh), opts...)
}

// IssueAccess signs a 24h access token carrying the user id and email.
func (c *Codec) IssueAccess(userID int64, email string) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, errors.New("token: userID is required")
	}
	return c.sign(Claims{
		UserID: userID,
		Email:  strings.TrimSpace(strings.ToLower(email)),
		Kind:   KindAccess,
	}, c.accessTTL, c.accessSecret)
}

// IssueRefresh signs a 7d refresh token carrying only the user id.
func (c *Codec) IssueRefresh(userID int64) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, errors.New("token: userID is required")
	}
	return c.sign(Claims{UserID: userID, Kind: KindRefresh}, c.refreshTTL, c.refreshSecret)
}

func (c *Codec) sign(claims Claims, ttl time.Duration, secret []byte) (string, time.Time, error) {
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccess validates signature and expiry against the access secret.
// A token carrying any kind other than "access" is rejected, so refresh
// tokens can never authenticate a request.
func (c *Codec) VerifyAccess(raw string) (*Claims, error) {
	claims, err := c.verify(raw, c.accessSecret)
	if err != nil {
		return nil, err
	}
	if claims.Kind != "" && claims.Kind != KindAccess {
		return nil, ErrKindMismatch
	}
	return claims, nil
}

// VerifyRefresh validates signature and expiry against the refresh secret
// and requires the "refresh" kind discriminator.
func (c *Codec) VerifyRefresh(raw string) (*Claims, error) {
	claims, err := c.verify(raw, c.refreshSecret)
	if err != nil {
		return nil, err
	}
	if claims.Kind != KindRefresh {
		return nil, ErrKindMismatch
	}
	return claims, nil
}

func (c *Codec) verify(raw string, secret []byte) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now() }))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IsExpired reports whether the token's exp claim has passed without
// verifying the signature. Any decode failure or absent exp counts as
// expired, so the cheap pre-check can never admit a token the full
// verification would reject on expiry.
func (c *Codec) IsExpired(raw string) bool {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(raw), claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}

// DecodeUnsafe decodes claims without verifying the signature. Diagnostics
// only; never an input to access decisions.
func (c *Codec) DecodeUnsafe(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(raw), claims); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	return claims, nil
}
