// ABOUTME: Tests for the backend REST client
// ABOUTME: Covers bearer-header attachment, error classification, and wire encoding

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingServer captures the last request for header/body assertions and
// replies with a fixed status and body.
type recordingServer struct {
	*httptest.Server
	lastMethod string
	lastPath   string
	lastAuth   string
	lastBody   []byte
}

func newRecordingServer(t *testing.T, status int, response string) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.lastMethod = r.Method
		rs.lastPath = r.URL.Path
		rs.lastAuth = r.Header.Get("Authorization")
		rs.lastBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(rs.Close)
	return rs
}

// --- Authentication header ---

func TestClient_BearerHeaderWhenTokenSet(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"status":"ok","messages":[]}`)
	c := New(srv.URL, nil, nil).WithToken("tok-abc")

	_, err := c.ChatHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-abc", srv.lastAuth)
}

func TestClient_NoBearerHeaderWithoutToken(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"status":"ok","token":"t","username":"u","role":"user","schema":""}`)
	c := New(srv.URL, nil, nil)

	_, err := c.Login(context.Background(), "u", "p")
	require.NoError(t, err)
	assert.Empty(t, srv.lastAuth)
}

func TestClient_WithTokenDoesNotMutateOriginal(t *testing.T) {
	base := New("http://example.invalid", nil, nil)
	derived := base.WithToken("tok")

	assert.Empty(t, base.token)
	assert.Equal(t, "tok", derived.token)
}

// --- Login ---

func TestClient_Login(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK,
		`{"status":"ok","token":"jwt-1","username":"alice","role":"admin","schema":"CREATE TABLE t (id INT);"}`)
	c := New(srv.URL, nil, nil)

	res, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, srv.lastMethod)
	assert.Equal(t, "/auth/login", srv.lastPath)
	assert.Equal(t, "jwt-1", res.Token)
	assert.Equal(t, "admin", res.Role)
	assert.Equal(t, "CREATE TABLE t (id INT);", res.Schema)
}

func TestClient_Login_InvalidCredentials(t *testing.T) {
	srv := newRecordingServer(t, http.StatusUnauthorized, `{"detail":"Invalid credentials"}`)
	c := New(srv.URL, nil, nil)

	_, err := c.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)

	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindAuth, be.Kind)
	assert.Equal(t, "Invalid credentials", be.Detail)
	assert.Equal(t, "Invalid credentials", err.Error())
}

// --- GenerateSQL ---

func TestClient_GenerateSQL_SendsSchema(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"sql":"SELECT 1 AS id;","explain":"ok"}`)
	c := New(srv.URL, nil, nil).WithToken("tok")

	gen, err := c.GenerateSQL(context.Background(), "count cars", "CREATE TABLE cars (id INT);")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 AS id;", gen.SQL)

	var body map[string]string
	require.NoError(t, json.Unmarshal(srv.lastBody, &body))
	assert.Equal(t, "count cars", body["prompt"])
	assert.Equal(t, "CREATE TABLE cars (id INT);", body["schema"])
}

func TestClient_GenerateSQL_OmitsEmptySchema(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"sql":"SELECT 1;","explain":"ok"}`)
	c := New(srv.URL, nil, nil).WithToken("tok")

	_, err := c.GenerateSQL(context.Background(), "count cars", "")
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(srv.lastBody, &body))
	_, present := body["schema"]
	assert.False(t, present, "empty schema must be omitted so the backend applies its admin schema")
}

// --- RunQuery ---

func TestClient_RunQuery_PositiveLimit(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"status":"ok","rows":[{"id":1},{"id":2}]}`)
	c := New(srv.URL, nil, nil).WithToken("tok")

	rows, err := c.RunQuery(context.Background(), "SELECT * FROM cars", 5)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	var body map[string]any
	require.NoError(t, json.Unmarshal(srv.lastBody, &body))
	assert.Equal(t, float64(5), body["limit"])
}

func TestClient_RunQuery_ZeroLimitOmitted(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"status":"ok","rows":[]}`)
	c := New(srv.URL, nil, nil).WithToken("tok")

	_, err := c.RunQuery(context.Background(), "SELECT * FROM cars", 0)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(srv.lastBody, &body))
	_, present := body["limit"]
	assert.False(t, present, "zero limit means run unlimited: field must be absent")
}

// --- Sessions ---

func TestClient_SaveSession(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"status":"ok","session_id":42}`)
	c := New(srv.URL, nil, nil).WithToken("tok")

	id, err := c.SaveSession(context.Background(), "road trip analysis", []ChatMessage{
		{Role: RoleUser, Content: "how many cars"},
		{Role: RoleAssistant, Content: "done", SQL: "SELECT COUNT(*) FROM cars"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	var body struct {
		SessionName string        `json:"session_name"`
		Messages    []ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(srv.lastBody, &body))
	assert.Equal(t, "road trip analysis", body.SessionName)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "SELECT COUNT(*) FROM cars", body.Messages[1].SQL)
}

func TestClient_GetSession_NotFound(t *testing.T) {
	srv := newRecordingServer(t, http.StatusNotFound, `{"detail":"Session not found"}`)
	c := New(srv.URL, nil, nil).WithToken("tok")

	_, err := c.GetSession(context.Background(), 99)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestClient_DeleteSession(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"status":"ok","message":"Session deleted successfully"}`)
	c := New(srv.URL, nil, nil).WithToken("tok")

	require.NoError(t, c.DeleteSession(context.Background(), 7))
	assert.Equal(t, http.MethodDelete, srv.lastMethod)
	assert.Equal(t, "/api/chat-session/7", srv.lastPath)
}

// --- Admin ---

func TestClient_UpdateUser_PathAndBody(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK,
		`{"status":"ok","message":"User updated successfully","user":{"id":3,"username":"bob","role":"user","schema":"s"}}`)
	c := New(srv.URL, nil, nil).WithToken("tok")

	user, err := c.UpdateUser(context.Background(), 3, UpdateUserParams{Role: "user"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, srv.lastMethod)
	assert.Equal(t, "/api/admin/users/3", srv.lastPath)
	assert.Equal(t, "bob", user.Username)
}

func TestClient_UpdateUser_BlankPasswordOmitted(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK,
		`{"status":"ok","message":"User updated successfully","user":{"id":3,"username":"bob","role":"user","schema":"s"}}`)
	c := New(srv.URL, nil, nil).WithToken("tok")

	_, err := c.UpdateUser(context.Background(), 3, UpdateUserParams{Schema: "CREATE TABLE x (y INT);"})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(srv.lastBody, &body))
	_, present := body["password"]
	assert.False(t, present, "blank password must never reach the wire")
}

func TestClient_AnalyzeColumns(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK,
		`{"status":"ok","analysis":{"useful_tables":["cars"],"useless_tables":["tmp"],"useless_columns":["cars.vin"],"recommended_indexes":[],"suggested_drop_tables":["tmp"],"summary":"tmp is unused"}}`)
	c := New(srv.URL, nil, nil).WithToken("tok")

	analysis, err := c.AnalyzeColumns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cars"}, analysis.UsefulTables)
	assert.Equal(t, "tmp is unused", analysis.Summary)
}

// --- Error decoding ---

func TestClient_ErrorFallbackWithoutDetail(t *testing.T) {
	srv := newRecordingServer(t, http.StatusBadGateway, `<html>nginx</html>`)
	c := New(srv.URL, nil, nil).WithToken("tok")

	_, err := c.ChatHistory(context.Background())
	require.Error(t, err)

	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusBadGateway, be.Status)
	assert.Equal(t, KindUnknown, be.Kind)
	assert.Contains(t, be.Detail, "502")
}

func TestClient_TransportErrorIsNotBackendError(t *testing.T) {
	c := New("http://127.0.0.1:1", nil, nil) // nothing listens here

	_, err := c.ChatHistory(context.Background())
	require.Error(t, err)

	var be *Error
	assert.False(t, errors.As(err, &be), "transport failures must not masquerade as backend errors")
	assert.Equal(t, KindUnknown, KindOf(err))
}
