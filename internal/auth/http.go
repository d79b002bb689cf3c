// ABOUTME: HTTP middleware for bearer-token authentication on API endpoints
// ABOUTME: Extracts the JWT from the Authorization header and adds Identity to context

package auth

import (
	"context"
	"net/http"
	"strings"
)

// Detail strings on the wire. Clients classify errors by these, so they are
// part of the API contract and must not drift.
const (
	detailNotAuthenticated = "Not authenticated"
	detailInvalidToken     = "Invalid or expired token"
	detailAdminRequired    = "Admin access required"
)

// IdentityResolver looks up the full identity for a verified token subject.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, username string) (*Identity, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", detailNotAuthenticated
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", detailNotAuthenticated
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", detailNotAuthenticated
	}
	return token, ""
}

// writeDetail writes an error response in the backend's {detail} envelope.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"detail":"` + msg + `"}`))
}

// BearerMiddleware creates an HTTP middleware that extracts and validates JWT
// bearer tokens, resolves the subject to a full Identity, and attaches it to
// the request context with the same WithIdentity/FromContext pattern the web
// front-end uses for cookie sessions.
func BearerMiddleware(issuer *Issuer, resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeDetail(w, http.StatusForbidden, errMsg)
				return
			}

			claims, err := issuer.Verify(token)
			if err != nil {
				writeDetail(w, http.StatusUnauthorized, detailInvalidToken)
				return
			}

			id, err := resolver.ResolveIdentity(r.Context(), claims.Subject)
			if err != nil {
				writeDetail(w, http.StatusUnauthorized, detailInvalidToken)
				return
			}
			id.Token = token

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAdminHTTP creates an HTTP middleware that requires the admin role.
// Must be used after BearerMiddleware.
func RequireAdminHTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				writeDetail(w, http.StatusUnauthorized, detailInvalidToken)
				return
			}

			if !id.IsAdmin() {
				writeDetail(w, http.StatusForbidden, detailAdminRequired)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
