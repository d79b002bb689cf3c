// Package auth models the authenticated identity shared by every scry surface.
//
// # Identity
//
// An Identity is one signed-in account: username, role, schema text, and the
// bearer token presented to the backend. Handlers receive it through the
// request context:
//
//	ctx = auth.WithIdentity(ctx, id)
//	id := auth.FromContext(ctx)       // nil if not signed in
//	id := auth.MustFromContext(ctx)   // behind guards only
//
// The web front-end populates it from a cookie session, the CLIs from a token
// file or environment variable, and the stub backend from a verified bearer
// token. Nothing in the codebase reads sign-in state from package globals.
//
// # Tokens
//
// The backend issues HS256 JWTs with sub/role/exp claims. Two views exist:
//
//   - Issuer: signs and verifies tokens. Only the stub backend holds a
//     secret; in production the remote service owns it.
//   - Inspect: decodes claims WITHOUT signature verification, for the
//     front-end to decide whether a stored token is expired before
//     presenting it. Never an authentication decision.
//
// # HTTP middleware
//
// BearerMiddleware and RequireAdminHTTP guard the stub backend's API routes,
// writing errors in the backend's {detail} envelope so clients cannot tell
// the stub from the real service.
package auth
