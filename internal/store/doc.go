// Package store provides persistent storage for scry-web using SQLite.
//
// The only entity stored locally is the BrowserSession: the binding between
// a browser cookie and the bearer token, role, and schema the remote service
// handed back at login. Chat content, saved conversations, and user accounts
// all live on the remote service; nothing of that is persisted here.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Sessions carry an expiry; GetSession never returns expired rows, and
// DeleteExpiredSessions reaps them.
//
// All methods accept context.Context for cancellation support.
package store
