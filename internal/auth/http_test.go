// ABOUTME: Tests for HTTP bearer-token middleware
// ABOUTME: Covers token extraction, validation, identity resolution, and admin gate

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var httpTestSecret = []byte("http-middleware-test-secret-32b!")

// mockResolver resolves every subject to a fixed identity, or fails.
type mockResolver struct {
	identity *Identity
	err      error
	calls    int
}

func (m *mockResolver) ResolveIdentity(ctx context.Context, username string) (*Identity, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	id := *m.identity
	id.Username = username
	return &id, nil
}

func TestBearerMiddleware_ValidToken(t *testing.T) {
	issuer := NewIssuer(httpTestSecret)
	token, _ := issuer.Generate("alice", "user", time.Hour)

	resolver := &mockResolver{
		identity: &Identity{Role: "user", Schema: "CREATE TABLE t (id INT);"},
	}

	var gotIdentity *Identity
	handler := BearerMiddleware(issuer, resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat-history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotIdentity == nil {
		t.Fatal("handler did not receive an identity")
	}
	if gotIdentity.Username != "alice" {
		t.Errorf("Username = %q, want %q", gotIdentity.Username, "alice")
	}
	if gotIdentity.Token != token {
		t.Errorf("Token not carried through to identity")
	}
}

func TestBearerMiddleware_MissingHeader(t *testing.T) {
	issuer := NewIssuer(httpTestSecret)
	resolver := &mockResolver{identity: &Identity{Role: "user"}}

	handler := BearerMiddleware(issuer, resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat-history", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Not authenticated") {
		t.Errorf("body = %q, want detail %q", rec.Body.String(), "Not authenticated")
	}
}

func TestBearerMiddleware_BadToken(t *testing.T) {
	issuer := NewIssuer(httpTestSecret)
	resolver := &mockResolver{identity: &Identity{Role: "user"}}

	handler := BearerMiddleware(issuer, resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat-history", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid or expired token") {
		t.Errorf("body = %q, want invalid-token detail", rec.Body.String())
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times for a bad token, want 0", resolver.calls)
	}
}

func TestBearerMiddleware_ExpiredToken(t *testing.T) {
	issuer := NewIssuer(httpTestSecret)
	token, _ := issuer.Generate("alice", "user", -time.Hour)
	resolver := &mockResolver{identity: &Identity{Role: "user"}}

	handler := BearerMiddleware(issuer, resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat-history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestBearerMiddleware_UnknownSubject(t *testing.T) {
	issuer := NewIssuer(httpTestSecret)
	token, _ := issuer.Generate("ghost", "user", time.Hour)
	resolver := &mockResolver{err: errors.New("no such user")}

	handler := BearerMiddleware(issuer, resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat-history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAdminHTTP_AllowsAdmin(t *testing.T) {
	handler := RequireAdminHTTP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	ctx := WithIdentity(req.Context(), &Identity{Username: "root", Role: "admin"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req.WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireAdminHTTP_RejectsUser(t *testing.T) {
	handler := RequireAdminHTTP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	ctx := WithIdentity(req.Context(), &Identity{Username: "alice", Role: "user"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req.WithContext(ctx))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Admin access required") {
		t.Errorf("body = %q, want admin-required detail", rec.Body.String())
	}
}

func TestRequireAdminHTTP_RejectsAnonymous(t *testing.T) {
	handler := RequireAdminHTTP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
