// ABOUTME: Store interface and data types for scry-web persistence
// ABOUTME: Defines BrowserSession and the Store interface for session storage

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// BrowserSession binds a browser cookie to a signed-in backend identity.
// The token is the backend bearer token obtained at login; role and schema
// are the backend's answers from the same login response.
type BrowserSession struct {
	ID        string
	Token     string
	Username  string
	Role      string
	Schema    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store defines the interface for browser session persistence
type Store interface {
	CreateSession(ctx context.Context, session *BrowserSession) error
	GetSession(ctx context.Context, id string) (*BrowserSession, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsForUser(ctx context.Context, username string) error
	DeleteExpiredSessions(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
