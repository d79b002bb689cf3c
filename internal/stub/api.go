// ABOUTME: In-memory stand-in for the remote natural-language-to-SQL service
// ABOUTME: Serves the full REST contract with detail strings matching the real one

package stub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/2389/scry/internal/auth"
	"github.com/2389/scry/internal/backend"
)

// Error details, byte-compatible with the real service so the front-end's
// error classification behaves identically against the stub.
const (
	detailInvalidCredentials = "Invalid credentials"
	detailNotAuthenticated   = "Not authenticated"
	detailInvalidToken       = "Invalid or expired token"
	detailAdminRequired      = "Admin access required"
	detailUserNotFound       = "User not found"
	detailSessionNotFound    = "Session not found"
	detailInvalidRole        = "Invalid role"
	detailSchemaForCreation  = "schema is required for user creation"
	detailSelectOnly         = "Only SELECT queries are allowed for safety"
	detailSchemaMissing      = "Please contact your administrator to upload a database schema before using the chat. You need a schema to generate SQL queries."
	detailSchemaMismatch     = "Your query does not match any tables in your database schema. Please ask about specific tables or columns."
)

const generateExplain = "SQL generated based on your database schema"

// Defaults applied by New when Config leaves a field zero.
const (
	DefaultTokenTTL      = 24 * time.Hour
	DefaultMaxRows       = 200
	DefaultRatePerMinute = 30
)

const historyLimit = 50

// Config tunes the stub. The zero value works.
type Config struct {
	// Secret signs bearer tokens. Defaults to the dev secret the real
	// service falls back to, so tokens interchange in local setups.
	Secret []byte

	// TokenTTL is how long minted tokens live.
	TokenTTL time.Duration

	// MaxRows is the row count above which run-query reports too many rows
	// instead of answering.
	MaxRows int

	// RatePerMinute caps generate-sql calls per client IP.
	RatePerMinute int
}

// API is the stub service. All state is in memory behind one mutex; it resets
// on restart, which is the point of a dev stand-in.
type API struct {
	issuer  *auth.Issuer
	ttl     time.Duration
	maxRows int
	perMin  int
	logger  *slog.Logger

	mu        sync.Mutex
	accounts  []*Account
	nextID    int64
	history   map[string][]backend.HistoryMessage
	nextMsgID int64
	sessions  []*backend.ChatSession
	nextSess  int64
	limiters  map[string]*rate.Limiter
}

// New creates a stub API with seeded accounts (admin/admin123, demo/demo123,
// analyst/analyst123).
func New(cfg Config, logger *slog.Logger) *API {
	if len(cfg.Secret) == 0 {
		cfg.Secret = []byte("dev-secret")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = DefaultRatePerMinute
	}
	if logger == nil {
		logger = slog.Default()
	}

	accounts := seedAccounts(time.Now())
	return &API{
		issuer:    auth.NewIssuer(cfg.Secret),
		ttl:       cfg.TokenTTL,
		maxRows:   cfg.MaxRows,
		perMin:    cfg.RatePerMinute,
		logger:    logger.With("component", "stubapi"),
		accounts:  accounts,
		nextID:    int64(len(accounts)) + 1,
		history:   make(map[string][]backend.HistoryMessage),
		nextMsgID: 1,
		nextSess:  1,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// RegisterRoutes registers the full REST contract on the given mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	// Public
	mux.HandleFunc("POST /auth/login", a.handleLogin)
	mux.HandleFunc("GET /health", a.handleHealth)

	// Authenticated chat surface
	mux.HandleFunc("POST /api/generate-sql", a.requireAuth(a.handleGenerateSQL))
	mux.HandleFunc("POST /api/run-query", a.requireAuth(a.handleRunQuery))
	mux.HandleFunc("GET /api/chat-history", a.requireAuth(a.handleChatHistory))
	mux.HandleFunc("POST /api/save-session", a.requireAuth(a.handleSaveSession))
	mux.HandleFunc("GET /api/chat-sessions", a.requireAuth(a.handleListSessions))
	mux.HandleFunc("GET /api/chat-session/{id}", a.requireAuth(a.handleGetSession))
	mux.HandleFunc("DELETE /api/chat-session/{id}", a.requireAuth(a.handleDeleteSession))

	// Admin surface
	mux.HandleFunc("POST /api/admin/add-user", a.requireAdmin(a.handleAddUser))
	mux.HandleFunc("POST /api/admin/remove-user", a.requireAdmin(a.handleRemoveUser))
	mux.HandleFunc("GET /api/admin/users", a.requireAdmin(a.handleListUsers))
	mux.HandleFunc("PUT /api/admin/users/{id}", a.requireAdmin(a.handleUpdateUser))
	mux.HandleFunc("GET /api/admin/analyze-columns", a.requireAdmin(a.handleAnalyzeColumns))

	a.logger.Info("stub API routes registered")
}

// --- middleware ---

type authedHandler func(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims)

// requireAuth enforces a valid bearer token. A missing header is 403 and a
// bad token 401, matching the real service's bearer scheme.
func (a *API) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeDetail(w, http.StatusForbidden, detailNotAuthenticated)
			return
		}
		claims, err := a.issuer.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, detailInvalidToken)
			return
		}
		next(w, r, claims)
	}
}

func (a *API) requireAdmin(next authedHandler) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
		if claims.Role != auth.RoleAdmin {
			writeDetail(w, http.StatusForbidden, detailAdminRequired)
			return
		}
		next(w, r, claims)
	})
}

// --- auth ---

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Snapshot under lock; the slow bcrypt comparison runs outside it
	a.mu.Lock()
	found, _ := a.findAccount(req.Username)
	var account Account
	if found != nil {
		account = *found
	}
	a.mu.Unlock()

	// Dummy hash comparison keeps timing flat when the username is unknown
	dummyHash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
	if found == nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(req.Password))
		writeDetail(w, http.StatusUnauthorized, detailInvalidCredentials)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		writeDetail(w, http.StatusUnauthorized, detailInvalidCredentials)
		return
	}

	token, err := a.issuer.Generate(account.Username, account.Role, a.ttl)
	if err != nil {
		a.logger.Error("token generation failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to create token")
		return
	}

	a.logger.Info("login", "username", account.Username, "role", account.Role)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"token":    token,
		"username": account.Username,
		"role":     account.Role,
		"schema":   account.Schema,
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- chat ---

var createTableRe = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(\w+)`)

func (a *API) handleGenerateSQL(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	if !a.allow(clientIP(r)) {
		writeDetail(w, http.StatusTooManyRequests, fmt.Sprintf("Rate limit exceeded: %d per 1 minute", a.perMin))
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
		Schema string `json:"schema"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	account, _ := a.findAccount(claims.Subject)
	if account == nil {
		writeDetail(w, http.StatusNotFound, detailUserNotFound)
		return
	}

	// The stored schema wins over anything posted; admins get the wider
	// admin schema when one is set.
	schema := account.Schema
	if account.Role == auth.RoleAdmin && account.AdminSchema != "" {
		schema = account.AdminSchema
	}

	if strings.TrimSpace(schema) == "" {
		a.recordMessage(account.Username, backend.RoleUser, req.Prompt, "")
		a.recordMessage(account.Username, backend.RoleAssistant, detailSchemaMissing, "")
		writeDetail(w, http.StatusBadRequest, detailSchemaMissing)
		return
	}

	a.recordMessage(account.Username, backend.RoleUser, req.Prompt, "")

	table := matchTable(req.Prompt, schema)
	if table == "" {
		a.recordMessage(account.Username, backend.RoleAssistant, detailSchemaMismatch, "")
		writeDetail(w, http.StatusBadRequest, detailSchemaMismatch)
		return
	}

	sql := "SELECT * FROM " + table + ";"
	a.recordMessage(account.Username, backend.RoleAssistant, "Here is a proposed SQL query: "+sql, sql)

	writeJSON(w, http.StatusOK, backend.Generated{SQL: sql, Explain: generateExplain})
}

// matchTable returns the first schema table the prompt mentions.
func matchTable(prompt, schema string) string {
	lower := strings.ToLower(prompt)
	for _, m := range createTableRe.FindAllStringSubmatch(schema, -1) {
		if strings.Contains(lower, strings.ToLower(m[1])) {
			return m[1]
		}
	}
	return ""
}

var (
	lineCommentRe  = regexp.MustCompile(`(?m)--.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// isSelect checks that the first token after comment stripping is SELECT.
func isSelect(sql string) bool {
	cleaned := blockCommentRe.ReplaceAllString(lineCommentRe.ReplaceAllString(sql, ""), "")
	fields := strings.Fields(cleaned)
	return len(fields) > 0 && strings.EqualFold(fields[0], "select")
}

func (a *API) handleRunQuery(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	var req struct {
		SQL   string `json:"sql"`
		Limit *int   `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !isSelect(req.SQL) {
		writeDetail(w, http.StatusBadRequest, detailSelectOnly)
		return
	}

	rows := rowsForQuery(req.SQL)

	n := len(rows)
	if req.Limit != nil && *req.Limit > 0 && *req.Limit < n {
		n = *req.Limit
	}
	if n > a.maxRows {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf(
			"Query returned too many rows (%d). Re-run it with a limit of %d or fewer.", n, a.maxRows))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rows": rows[:n]})
}

// rowsForQuery serves the canned rows of the first known table the SQL
// mentions, or the fallback pair.
func rowsForQuery(sql string) []backend.Row {
	lower := strings.ToLower(sql)
	for _, name := range []string{"cars", "owners", "students", "courses", "sales"} {
		if strings.Contains(lower, name) {
			return tableRows(name)
		}
	}
	return fallbackRows()
}

func (a *API) handleChatHistory(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := a.history[claims.Subject]
	if len(h) > historyLimit {
		h = h[len(h)-historyLimit:]
	}

	// Stored oldest first, served newest first
	out := make([]backend.HistoryMessage, 0, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out = append(out, h[i])
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "messages": out})
}

func (a *API) handleSaveSession(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	var req struct {
		SessionName string                `json:"session_name"`
		Messages    []backend.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionName == "" {
		req.SessionName = fmt.Sprintf("Chat %d messages", len(req.Messages))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	session := &backend.ChatSession{
		ID:        a.nextSess,
		Username:  claims.Subject,
		Name:      req.SessionName,
		Messages:  req.Messages,
		CreatedAt: isoTimestamp(time.Now()),
	}
	a.nextSess++
	a.sessions = append(a.sessions, session)

	a.logger.Debug("session saved", "username", claims.Subject, "id", session.ID, "name", session.Name)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "session_id": session.ID})
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]backend.ChatSession, 0)
	for i := len(a.sessions) - 1; i >= 0 && len(out) < historyLimit; i-- {
		if a.sessions[i].Username == claims.Subject {
			out = append(out, *a.sessions[i])
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": out})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailSessionNotFound)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range a.sessions {
		if s.ID == id && s.Username == claims.Subject {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "session": s})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, detailSessionNotFound)
}

func (a *API) handleDeleteSession(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailSessionNotFound)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, s := range a.sessions {
		if s.ID == id && s.Username == claims.Subject {
			a.sessions = append(a.sessions[:i], a.sessions[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "Session deleted successfully"})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, detailSessionNotFound)
}

// --- admin ---

func (a *API) handleAddUser(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	var req backend.AddUserParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleUser
	}
	if !auth.ValidRole(req.Role) {
		writeDetail(w, http.StatusBadRequest, detailInvalidRole)
		return
	}
	if strings.TrimSpace(req.Schema) == "" {
		writeDetail(w, http.StatusBadRequest, detailSchemaForCreation)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.logger.Error("password hash failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, _ := a.findAccount(req.Username); existing != nil {
		writeDetail(w, http.StatusBadRequest, "Username already exists")
		return
	}

	account := &Account{
		ID:           a.nextID,
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         req.Role,
		Schema:       req.Schema,
		AdminSchema:  req.AdminSchema,
		CreatedAt:    isoTimestamp(time.Now()),
	}
	a.nextID++
	a.accounts = append(a.accounts, account)

	a.logger.Info("user created", "username", account.Username, "role", account.Role, "by", claims.Subject)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "id": account.ID})
}

func (a *API) handleRemoveUser(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	account, i := a.findAccount(req.Username)
	if account == nil {
		writeDetail(w, http.StatusNotFound, detailUserNotFound)
		return
	}
	a.accounts = append(a.accounts[:i], a.accounts[i+1:]...)

	a.logger.Info("user removed", "username", req.Username, "by", claims.Subject)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Newest first, like the real service
	users := make([]backend.User, 0, len(a.accounts))
	for i := len(a.accounts) - 1; i >= 0; i-- {
		users = append(users, toWireUser(a.accounts[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "users": users})
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailUserNotFound)
		return
	}

	var req backend.UpdateUserParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Role != "" && !auth.ValidRole(req.Role) {
		writeDetail(w, http.StatusBadRequest, detailInvalidRole)
		return
	}

	var hash string
	if req.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			a.logger.Error("password hash failed", "error", err)
			writeDetail(w, http.StatusInternalServerError, "Failed to update user")
			return
		}
		hash = string(h)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	account := a.findAccountByID(id)
	if account == nil {
		writeDetail(w, http.StatusNotFound, detailUserNotFound)
		return
	}

	if req.Username != "" {
		account.Username = req.Username
	}
	if hash != "" {
		account.PasswordHash = hash
	}
	if req.Role != "" {
		account.Role = req.Role
	}
	if req.Schema != "" {
		account.Schema = req.Schema
	}
	if req.AdminSchema != "" {
		account.AdminSchema = req.AdminSchema
	}

	a.logger.Info("user updated", "id", id, "by", claims.Subject)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "user": toWireUser(account)})
}

func (a *API) handleAnalyzeColumns(w http.ResponseWriter, r *http.Request, claims *auth.TokenClaims) {
	a.mu.Lock()
	messages := 0
	for _, h := range a.history {
		messages += len(h)
	}
	accounts := len(a.accounts)
	a.mu.Unlock()

	analysis := seedAnalysis()
	analysis.Summary = fmt.Sprintf("%s Reviewed %d chat messages across %d accounts.",
		analysis.Summary, messages, accounts)

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "analysis": analysis})
}

// --- internals ---

// findAccount returns the account and its index. Callers hold a.mu.
func (a *API) findAccount(username string) (*Account, int) {
	for i, acc := range a.accounts {
		if acc.Username == username {
			return acc, i
		}
	}
	return nil, -1
}

// findAccountByID returns the account with the given ID. Callers hold a.mu.
func (a *API) findAccountByID(id int64) *Account {
	for _, acc := range a.accounts {
		if acc.ID == id {
			return acc
		}
	}
	return nil
}

// recordMessage appends to a user's transcript. Callers hold a.mu.
func (a *API) recordMessage(username, role, content, sql string) {
	a.history[username] = append(a.history[username], backend.HistoryMessage{
		ID:           a.nextMsgID,
		Username:     username,
		Role:         role,
		Content:      content,
		SQLGenerated: sql,
		CreatedAt:    isoTimestamp(time.Now()),
	})
	a.nextMsgID++
}

func toWireUser(acc *Account) backend.User {
	return backend.User{
		ID:          acc.ID,
		Username:    acc.Username,
		Role:        acc.Role,
		Schema:      acc.Schema,
		AdminSchema: acc.AdminSchema,
		CreatedAt:   acc.CreatedAt,
	}
}

// allow checks the per-IP generate-sql budget.
func (a *API) allow(ip string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	lim, ok := a.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(a.perMin)), a.perMin)
		a.limiters[ip] = lim
	}
	return lim.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
