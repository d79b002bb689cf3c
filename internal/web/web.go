// ABOUTME: Browser-facing application for the SQL assistant front-end
// ABOUTME: Routes, session guards, CSRF, and the login/logout flow

package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/2389/scry/internal/auth"
	"github.com/2389/scry/internal/backend"
	"github.com/2389/scry/internal/chat"
	"github.com/2389/scry/internal/session"
)

const (
	// SessionCookieName is the browser-session cookie.
	SessionCookieName = "scry_session"

	// CSRFCookieName holds the CSRF double-submit token.
	CSRFCookieName = "scry_csrf"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const csrfContextKey contextKey = "csrf_token"
const sessionIDContextKey contextKey = "session_id"

// Config tunes the web application.
type Config struct {
	// PreviewLimit bounds the post-generation preview fetch.
	PreviewLimit int

	// PollInterval is how often the admin user list refreshes itself.
	PollInterval time.Duration
}

// App serves the browser routes: login, the chat view, saved conversations,
// and the admin console. Every domain operation is proxied to the remote
// service with the signed-in user's bearer token.
type App struct {
	client   *backend.Client
	sessions *session.Manager
	cfg      Config
	logger   *slog.Logger

	// chats holds one conversation per browser session, created lazily and
	// dropped at logout.
	mu    sync.Mutex
	chats map[string]*chat.Conversation
}

// New creates the web application.
func New(client *backend.Client, sessions *session.Manager, cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &App{
		client:   client,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.With("component", "web"),
		chats:    make(map[string]*chat.Conversation),
	}
}

// RegisterRoutes registers all browser routes on the given mux.
func (a *App) RegisterRoutes(mux *http.ServeMux) {
	// Public routes (no auth required)
	mux.HandleFunc("GET /login", a.handleLoginPage)
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.Handle("GET /static/", http.StripPrefix("/static/", staticServer()))

	// Chat view
	mux.HandleFunc("GET /{$}", a.requireAuth(a.handleChatPage))
	mux.HandleFunc("POST /logout", a.requireAuth(a.handleLogout))
	mux.HandleFunc("POST /chat/send", a.requireAuth(a.handleChatSend))
	mux.HandleFunc("POST /chat/accept", a.requireAuth(a.handleChatAccept))
	mux.HandleFunc("POST /chat/retry", a.requireAuth(a.handleChatRetry))
	mux.HandleFunc("POST /chat/clear", a.requireAuth(a.handleChatClear))

	// Saved conversations
	mux.HandleFunc("GET /chat/sessions", a.requireAuth(a.handleSessionsList))
	mux.HandleFunc("POST /chat/sessions/save", a.requireAuth(a.handleSessionSave))
	mux.HandleFunc("GET /chat/sessions/{id}/open", a.requireAuth(a.handleSessionOpen))
	mux.HandleFunc("DELETE /chat/sessions/{id}", a.requireAuth(a.handleSessionDelete))

	// Help
	mux.HandleFunc("GET /help", a.requireAuth(a.handleHelp))
	mux.HandleFunc("GET /help/{topic}", a.requireAuth(a.handleHelp))

	// Admin console
	mux.HandleFunc("GET /admin", a.requireAdmin(a.handleAdminPage))
	mux.HandleFunc("GET /admin/users", a.requireAdmin(a.handleAdminUsersList))
	mux.HandleFunc("POST /admin/users", a.requireAdmin(a.handleAdminUserCreate))
	mux.HandleFunc("GET /admin/users/{id}/edit", a.requireAdmin(a.handleAdminUserEditForm))
	mux.HandleFunc("PUT /admin/users/{id}", a.requireAdmin(a.handleAdminUserUpdate))
	mux.HandleFunc("DELETE /admin/users/{username}", a.requireAdmin(a.handleAdminUserDelete))
	mux.HandleFunc("GET /admin/analysis", a.requireAdmin(a.handleAdminAnalysis))

	a.logger.Info("web routes registered")
}

// requireAuth resumes the browser session and puts the identity on the
// request context. Without one the browser goes to the login page.
func (a *App) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, sessionID, err := a.identityFromRequest(r)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		ctx := auth.WithIdentity(r.Context(), id)
		ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin sends signed-in non-admins back to the chat view.
func (a *App) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if !auth.MustFromContext(r.Context()).IsAdmin() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next(w, r)
	})
}

// identityFromRequest resolves the session cookie to a signed-in identity.
func (a *App) identityFromRequest(r *http.Request) (*auth.Identity, string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, "", err
	}

	id, err := a.sessions.Resume(r.Context(), cookie.Value)
	if err != nil {
		return nil, "", err
	}
	return id, cookie.Value, nil
}

// sessionIDFromContext retrieves the browser session id stored by requireAuth.
func sessionIDFromContext(r *http.Request) string {
	id, _ := r.Context().Value(sessionIDContextKey).(string)
	return id
}

// getCSRFToken retrieves the CSRF token from the request context
func getCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey).(string)
	return token
}

// csrfFromRequest returns the current CSRF token: the one ensureCSRFToken put on
// the context, or the browser's cookie for partial requests.
func csrfFromRequest(r *http.Request) string {
	if tok := getCSRFToken(r); tok != "" {
		return tok
	}
	if cookie, err := r.Cookie(CSRFCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// ensureCSRFToken generates a CSRF token if not present and adds it to context
func (a *App) ensureCSRFToken(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	cookie, err := r.Cookie(CSRFCookieName)
	if err == nil && cookie.Value != "" {
		ctx := context.WithValue(r.Context(), csrfContextKey, cookie.Value)
		return r.WithContext(ctx), cookie.Value
	}

	token, err := generateSecureToken(32)
	if err != nil {
		a.logger.Error("failed to generate CSRF token", "error", err)
		token = "" // Will fail validation, but won't crash
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	ctx := context.WithValue(r.Context(), csrfContextKey, token)
	return r.WithContext(ctx), token
}

// validateCSRF checks the CSRF token from form or header against the cookie
func (a *App) validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	formToken := r.FormValue("csrf_token")
	if formToken == "" {
		// htmx requests carry the token as a header
		formToken = r.Header.Get("X-CSRF-Token")
	}

	return formToken != "" && formToken == cookie.Value
}

// csrfOK validates the CSRF token for partial-returning endpoints, writing
// the failure response itself.
func (a *App) csrfOK(w http.ResponseWriter, r *http.Request) bool {
	if !a.validateCSRF(r) {
		a.logger.Warn("request with invalid CSRF token", "path", r.URL.Path)
		http.Error(w, "Invalid request", http.StatusForbidden)
		return false
	}
	return true
}

// conversationFor returns the signed-in browser's conversation, creating it
// on first use. Keyed by session id so each browser session chats alone.
func (a *App) conversationFor(r *http.Request) *chat.Conversation {
	id := auth.MustFromContext(r.Context())
	key := sessionIDFromContext(r)

	a.mu.Lock()
	defer a.mu.Unlock()
	if conv, ok := a.chats[key]; ok {
		return conv
	}
	conv := a.newConversation(id)
	a.chats[key] = conv
	return conv
}

// newConversation builds a conversation bound to one identity's token.
func (a *App) newConversation(id *auth.Identity) *chat.Conversation {
	return chat.New(a.client.WithToken(id.Token), chat.Options{
		Schema:       id.Schema,
		Admin:        id.IsAdmin(),
		PreviewLimit: a.cfg.PreviewLimit,
	}, a.logger)
}

// dropConversation forgets a browser session's conversation.
func (a *App) dropConversation(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.chats, key)
}

// handleLoginPage renders the sign-in form.
func (a *App) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	// Already signed in? Straight to the chat.
	if _, _, err := a.identityFromRequest(r); err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	_, csrfToken := a.ensureCSRFToken(w, r)
	a.renderLoginPage(w, "", csrfToken)
}

// handleLogin exchanges credentials for a backend token and binds it to a
// fresh browser session.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "Invalid form data", csrfToken)
		return
	}

	if !a.validateCSRF(r) {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "Invalid request, please try again", csrfToken)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "Username and password required", csrfToken)
		return
	}

	login, err := a.client.Login(r.Context(), username, password)
	if err != nil {
		a.logger.Info("login rejected", "username", username, "error", err)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, failureText(err), csrfToken)
		return
	}

	sess, err := a.sessions.Create(r.Context(), login)
	if err != nil {
		a.logger.Error("failed to create session", "error", err)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLoginPage(w, "An error occurred", csrfToken)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	// Bring back the stored history so the chat opens mid-conversation.
	id := &auth.Identity{
		Username: login.Username,
		Role:     login.Role,
		Schema:   login.Schema,
		Token:    login.Token,
	}
	conv := a.newConversation(id)
	if _, err := conv.LoadHistory(r.Context()); err != nil {
		a.logger.Warn("history restore failed", "username", login.Username, "error", err)
	}
	a.mu.Lock()
	a.chats[sess.ID] = conv
	a.mu.Unlock()

	a.logger.Info("login successful", "username", login.Username, "role", login.Role)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout signs the browser out.
func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err == nil {
		// Validate CSRF - but don't block logout if invalid
		if !a.validateCSRF(r) {
			a.logger.Warn("logout request with invalid CSRF token")
		}
	}

	sessionID := sessionIDFromContext(r)
	if err := a.sessions.Destroy(r.Context(), sessionID); err != nil {
		a.logger.Warn("failed to destroy session", "error", err)
	}
	a.dropConversation(sessionID)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// handleHealthz reports process liveness and whether the remote service
// answers its own health endpoint.
func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	backendState := "ok"
	if err := a.client.Health(r.Context()); err != nil {
		a.logger.Warn("backend health probe failed", "error", err)
		backendState = "unreachable"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"backend": backendState,
	})
}

// failureText picks the message shown for a failed backend call.
func failureText(err error) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Detail != "" {
		return be.Detail
	}
	return "Cannot reach the SQL service"
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
