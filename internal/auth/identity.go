// Package auth carries the caller's identity through a request and issues
// the tokens that establish it.
package auth

import "context"

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying userID as the caller.
func WithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, identityKey{}, userID)
}

// IdentityFrom returns the caller attached by WithIdentity. An empty id
// counts as no identity.
func IdentityFrom(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(identityKey{}).(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}
