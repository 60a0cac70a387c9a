package auth

import "context"

type identityContextKey struct{}

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID int64
	Email  string
}

// ContextWithIdentity stores the authenticated identity in the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || v.UserID <= 0 {
		return Identity{}, false
	}
	return v, true
}
