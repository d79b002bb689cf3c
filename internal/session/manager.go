// ABOUTME: Browser session lifecycle for scry-web
// ABOUTME: Creates, resumes, and destroys cookie-backed backend identities

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/scry/internal/auth"
	"github.com/2389/scry/internal/backend"
	"github.com/2389/scry/internal/store"
)

// ErrNoSession is returned when a session id is unknown, expired, or carries
// an expired backend token.
var ErrNoSession = errors.New("no such session")

// Manager owns browser sessions: each one binds a random cookie value to the
// identity the remote service handed back at login.
type Manager struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewManager creates a session manager. ttl bounds how long a session may
// live; a backend token that expires sooner shortens it.
func NewManager(st store.Store, ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		store:  st,
		ttl:    ttl,
		logger: logger.With("component", "session"),
	}
}

// Create stores a fresh session for a successful login and returns it.
// The session id is the value to hand to the browser as a cookie.
func (m *Manager) Create(ctx context.Context, login *backend.LoginResult) (*store.BrowserSession, error) {
	id, err := generateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	now := time.Now()
	expires := now.Add(m.ttl)

	// The session must not outlive the bearer token it carries
	if claims, err := auth.Inspect(login.Token); err == nil {
		if !claims.ExpiresAt.IsZero() && claims.ExpiresAt.Before(expires) {
			expires = claims.ExpiresAt
		}
	}

	session := &store.BrowserSession{
		ID:        id,
		Token:     login.Token,
		Username:  login.Username,
		Role:      login.Role,
		Schema:    login.Schema,
		CreatedAt: now,
		ExpiresAt: expires,
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	m.logger.Info("session created", "username", login.Username, "role", login.Role, "expires_at", expires)
	return session, nil
}

// Resume restores the identity bound to a session id. Sessions whose backend
// token has expired are destroyed and reported as ErrNoSession, so a stale
// cookie lands the browser back on the login page.
func (m *Manager) Resume(ctx context.Context, id string) (*auth.Identity, error) {
	if id == "" {
		return nil, ErrNoSession
	}

	session, err := m.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	if claims, err := auth.Inspect(session.Token); err == nil {
		if claims.Expired(time.Now()) {
			m.logger.Info("session token expired", "username", session.Username)
			if err := m.store.DeleteSession(ctx, id); err != nil {
				m.logger.Warn("deleting expired session", "error", err)
			}
			return nil, ErrNoSession
		}
	}

	return &auth.Identity{
		Username: session.Username,
		Role:     session.Role,
		Schema:   session.Schema,
		Token:    session.Token,
	}, nil
}

// Destroy removes a session. Unknown ids are fine.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DestroyForUser signs out every browser belonging to a username.
func (m *Manager) DestroyForUser(ctx context.Context, username string) error {
	if err := m.store.DeleteSessionsForUser(ctx, username); err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}

// Sweep reaps expired session rows. Called at startup and on a timer.
func (m *Manager) Sweep(ctx context.Context) error {
	return m.store.DeleteExpiredSessions(ctx)
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
