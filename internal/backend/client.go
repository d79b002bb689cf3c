// ABOUTME: HTTP client for the remote natural-language-to-SQL service
// ABOUTME: One method per backend capability; bearer auth; {detail} error decoding

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// Client talks to the backend REST API. Safe for concurrent use. An empty
// token means unauthenticated (login only); WithToken derives a client for a
// signed-in identity without mutating the original.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client for the given base URL. A nil httpClient gets a
// default with a 60s timeout (SQL generation can be slow).
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger.With("component", "backend"),
	}
}

// WithToken returns a copy of the client that authenticates with token.
// The original is untouched, so one base client can serve many identities.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a token, role, and schema.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body := map[string]string{"username": username, "password": password}
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateSQL asks the backend to turn a prompt into SQL. Schema may be empty
// for admin identities; the backend then uses its server-side admin schema.
func (c *Client) GenerateSQL(ctx context.Context, prompt, schema string) (*Generated, error) {
	body := map[string]string{"prompt": prompt}
	if schema != "" {
		body["schema"] = schema
	}
	var out Generated
	if err := c.do(ctx, http.MethodPost, "/api/generate-sql", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunQuery executes SQL with an optional row limit. limit <= 0 means no
// limit: the field is omitted from the request entirely.
func (c *Client) RunQuery(ctx context.Context, sql string, limit int) ([]Row, error) {
	body := struct {
		SQL   string `json:"sql"`
		Limit *int   `json:"limit,omitempty"`
	}{SQL: sql}
	if limit > 0 {
		body.Limit = &limit
	}

	var out struct {
		Rows []Row `json:"rows"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/run-query", body, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

// ChatHistory returns the backend's transcript for the calling identity,
// newest first.
func (c *Client) ChatHistory(ctx context.Context) ([]HistoryMessage, error) {
	var out struct {
		Messages []HistoryMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chat-history", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SaveSession stores the given messages under a name and returns the new
// session's ID.
func (c *Client) SaveSession(ctx context.Context, name string, messages []ChatMessage) (int64, error) {
	body := struct {
		SessionName string        `json:"session_name"`
		Messages    []ChatMessage `json:"messages"`
	}{SessionName: name, Messages: messages}

	var out struct {
		SessionID int64 `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/save-session", body, &out); err != nil {
		return 0, err
	}
	return out.SessionID, nil
}

// ListSessions returns the caller's saved conversations, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]ChatSession, error) {
	var out struct {
		Sessions []ChatSession `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chat-sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// GetSession returns one saved conversation with its messages.
func (c *Client) GetSession(ctx context.Context, id int64) (*ChatSession, error) {
	var out struct {
		Session ChatSession `json:"session"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/chat-session/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// DeleteSession removes a saved conversation.
func (c *Client) DeleteSession(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/chat-session/%d", id), nil, nil)
}

// AddUser creates an account and returns its ID. Validation (non-blank
// schema, known role) belongs to the admin service, not here.
func (c *Client) AddUser(ctx context.Context, params AddUserParams) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/admin/add-user", params, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// RemoveUser deletes an account by username.
func (c *Client) RemoveUser(ctx context.Context, username string) error {
	body := map[string]string{"username": username}
	return c.do(ctx, http.MethodPost, "/api/admin/remove-user", body, nil)
}

// ListUsers returns all accounts.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/admin/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// UpdateUser applies a partial update and returns the stored account.
func (c *Client) UpdateUser(ctx context.Context, id int64, params UpdateUserParams) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/admin/users/%d", id), params, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// AnalyzeColumns fetches the column/table usefulness report.
func (c *Client) AnalyzeColumns(ctx context.Context) (*ColumnAnalysis, error) {
	var out struct {
		Analysis ColumnAnalysis `json:"analysis"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/admin/analyze-columns", nil, &out); err != nil {
		return nil, err
	}
	return &out.Analysis, nil
}

// Health probes the backend's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// do performs one request: encode body, attach bearer token, classify any
// non-2xx response into *Error, decode the success body into out (nil to
// discard).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}

	if out == nil {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeError turns a non-2xx response into *Error. Bodies are {detail: ...};
// anything else falls back to a generic message with the status attached.
func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(data) > 0 {
		var body struct {
			Detail string `json:"detail"`
		}
		if jsonErr := json.Unmarshal(data, &body); jsonErr == nil && body.Detail != "" {
			apiErr.Detail = body.Detail
		}
	}
	if apiErr.Detail == "" {
		apiErr.Detail = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	}

	apiErr.Kind = classifyDetail(resp.StatusCode, apiErr.Detail)

	c.logger.Debug("backend error",
		"status", apiErr.Status,
		"kind", apiErr.Kind.String(),
		"detail", apiErr.Detail)

	return apiErr
}
