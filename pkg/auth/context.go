package auth

import "context"

type identityKey struct{}

// SetIdentity returns a copy of ctx carrying the authenticated caller.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller stored by the auth middleware, or
// nil for requests that bypassed authentication.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
