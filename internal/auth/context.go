// ABOUTME: Authenticated identity carried through request handling via context
// ABOUTME: Provides WithIdentity/FromContext so handlers never read ambient globals

package auth

import (
	"context"
)

// Identity holds the signed-in user for one browser session or CLI invocation.
// Populated after a successful login (or session resume) and attached to the
// request context by the session middleware.
type Identity struct {
	Username string // account name as returned by the login endpoint
	Role     string // "user" | "admin"
	Schema   string // DDL text grounding this user's SQL generation
	Token    string // bearer token presented on every backend call
}

// IsAdmin returns true if the identity may use the admin console.
func (id *Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// Roles understood by the backend.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ValidRole reports whether r is a role the backend accepts.
func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAdmin
}

// identityKey is the key type for storing an Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}

// MustFromContext retrieves the Identity from the context, panicking if not present.
// Only for handlers behind the auth guard, where absence is a programming error.
func MustFromContext(ctx context.Context) *Identity {
	id := FromContext(ctx)
	if id == nil {
		panic("auth: Identity not found in context")
	}
	return id
}
