// ABOUTME: Browser-flow tests: login, guards, chat turns, admin console
// ABOUTME: Drives the full loop against the in-process stand-in service

package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/2389/scry/internal/backend"
	"github.com/2389/scry/internal/session"
	"github.com/2389/scry/internal/store"
	"github.com/2389/scry/internal/stub"
)

// testApp is the whole stack under test: the stand-in service, a real
// client, sqlite-backed sessions, and the web routes on a test server.
type testApp struct {
	t      *testing.T
	server *httptest.Server
	api    *httptest.Server
	jar    *cookiejar.Jar
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	api := stub.New(stub.Config{}, logger)
	apiMux := http.NewServeMux()
	api.RegisterRoutes(apiMux)
	apiSrv := httptest.NewServer(apiMux)
	t.Cleanup(apiSrv.Close)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	client := backend.New(apiSrv.URL, nil, logger)
	sessions := session.NewManager(st, time.Hour, logger)
	app := New(client, sessions, Config{PreviewLimit: 5, PollInterval: time.Minute}, logger)

	mux := http.NewServeMux()
	app.RegisterRoutes(mux)
	webSrv := httptest.NewServer(mux)
	t.Cleanup(webSrv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}

	return &testApp{t: t, server: webSrv, api: apiSrv, jar: jar}
}

// client returns an HTTP client sharing the test's cookies. With follow set
// it behaves like a browser; without, redirects come back for inspection.
func (ta *testApp) client(follow bool) *http.Client {
	c := &http.Client{Jar: ta.jar}
	if !follow {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c
}

// csrf returns the CSRF cookie value, empty before the first page render.
func (ta *testApp) csrf() string {
	u, err := url.Parse(ta.server.URL)
	if err != nil {
		ta.t.Fatalf("parse server url: %v", err)
	}
	for _, c := range ta.jar.Cookies(u) {
		if c.Name == CSRFCookieName {
			return c.Value
		}
	}
	return ""
}

// request issues one HTTP request. The CSRF token rides the header when the
// cookie exists, matching how the browser UI sends it.
func (ta *testApp) request(method, path string, form url.Values, follow bool) (*http.Response, string) {
	ta.t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, ta.server.URL+path, body)
	if err != nil {
		ta.t.Fatalf("build request: %v", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if tok := ta.csrf(); tok != "" {
		req.Header.Set("X-CSRF-Token", tok)
	}

	resp, err := ta.client(follow).Do(req)
	if err != nil {
		ta.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		ta.t.Fatalf("read response body: %v", err)
	}
	return resp, string(b)
}

func (ta *testApp) get(path string) (*http.Response, string) {
	ta.t.Helper()
	return ta.request(http.MethodGet, path, nil, true)
}

func (ta *testApp) postForm(path string, form url.Values) (*http.Response, string) {
	ta.t.Helper()
	return ta.request(http.MethodPost, path, form, true)
}

// login signs in and fails the test unless the chat page comes back.
func (ta *testApp) login(username, password string) {
	ta.t.Helper()

	if resp, _ := ta.get("/login"); resp.StatusCode != http.StatusOK {
		ta.t.Fatalf("GET /login: status %d", resp.StatusCode)
	}
	resp, body := ta.postForm("/login", url.Values{
		"csrf_token": {ta.csrf()},
		"username":   {username},
		"password":   {password},
	})
	if resp.StatusCode != http.StatusOK {
		ta.t.Fatalf("login as %s: status %d", username, resp.StatusCode)
	}
	if !strings.Contains(body, "Sign out") {
		ta.t.Fatalf("login as %s did not land on the chat page:\n%s", username, body)
	}
}

var messageIDPattern = regexp.MustCompile(`name="message_id" value="([^"]+)"`)

func TestLoginFlow(t *testing.T) {
	ta := newTestApp(t)

	resp, body := ta.get("/login")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /login: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, `name="username"`) {
		t.Fatal("login page has no username field")
	}

	ta.login("demo", "demo123")

	_, body = ta.get("/")
	if !strings.Contains(body, "demo") {
		t.Error("chat page does not show the signed-in username")
	}
	if !strings.Contains(body, "Saved conversations") {
		t.Error("chat page has no saved-conversations panel")
	}
	if strings.Contains(body, `href="/admin"`) {
		t.Error("regular user sees the admin link")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ta := newTestApp(t)

	ta.get("/login")
	resp, body := ta.postForm("/login", url.Values{
		"csrf_token": {ta.csrf()},
		"username":   {"demo"},
		"password":   {"nope"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rejected login: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Invalid credentials") {
		t.Errorf("rejected login does not show the service's message:\n%s", body)
	}
	if !strings.Contains(body, `name="username"`) {
		t.Error("rejected login did not return to the form")
	}
}

func TestGuards(t *testing.T) {
	ta := newTestApp(t)

	for _, path := range []string{"/", "/chat/sessions", "/help", "/admin"} {
		resp, _ := ta.request(http.MethodGet, path, nil, false)
		if resp.StatusCode != http.StatusSeeOther {
			t.Fatalf("GET %s signed out: status %d, want redirect", path, resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != "/login" {
			t.Errorf("GET %s signed out redirects to %q, want /login", path, loc)
		}
	}

	ta.login("demo", "demo123")
	resp, _ := ta.request(http.MethodGet, "/admin", nil, false)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("GET /admin as user: status %d, want redirect", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Errorf("GET /admin as user redirects to %q, want /", loc)
	}

	// Signed in, the login page bounces to the chat.
	resp, _ = ta.request(http.MethodGet, "/login", nil, false)
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("GET /login signed in: status %d, want redirect", resp.StatusCode)
	}
}

func TestChatSendRendersGeneratedSQL(t *testing.T) {
	ta := newTestApp(t)
	ta.login("demo", "demo123")

	resp, body := ta.postForm("/chat/send", url.Values{
		"prompt": {"show me all the cars you have"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat send: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "SELECT * FROM cars;") {
		t.Fatalf("transcript has no generated SQL:\n%s", body)
	}
	if !strings.Contains(body, "Run query") {
		t.Error("generated SQL has no run affordance")
	}
	if !strings.Contains(body, "Toyota") {
		t.Error("preview rows are missing from the transcript")
	}
	if !strings.Contains(body, "Retry") {
		t.Error("generated SQL has no retry affordance")
	}
}

func TestChatAcceptRunsQuery(t *testing.T) {
	ta := newTestApp(t)
	ta.login("demo", "demo123")

	_, body := ta.postForm("/chat/send", url.Values{
		"prompt": {"show me all the cars you have"},
	})
	m := messageIDPattern.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no message_id in transcript:\n%s", body)
	}

	resp, body := ta.postForm("/chat/accept", url.Values{
		"message_id": {m[1]},
		"limit":      {"3"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "3 rows") {
		t.Fatalf("executed result count missing:\n%s", body)
	}
	if strings.Contains(body, "Run query") {
		t.Error("executed query still offers to run")
	}
}

func TestChatAcceptTooManyRowsThenSmallerLimit(t *testing.T) {
	ta := newTestApp(t)
	ta.login("admin", "admin123")

	_, body := ta.postForm("/chat/send", url.Values{
		"prompt": {"total sales this year"},
	})
	m := messageIDPattern.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no message_id in transcript:\n%s", body)
	}

	// All 500 rows is past the service's cap.
	_, body = ta.postForm("/chat/accept", url.Values{
		"message_id": {m[1]},
		"limit":      {"0"},
	})
	if !strings.Contains(body, "too many rows") {
		t.Fatalf("refusal is not in the transcript:\n%s", body)
	}
	if !strings.Contains(body, "page-error") {
		t.Error("refusal did not set the page-level error banner")
	}
	if !strings.Contains(body, "Smaller limit") {
		t.Fatalf("no smaller-limit form after refusal:\n%s", body)
	}

	_, body = ta.postForm("/chat/accept", url.Values{
		"message_id": {m[1]},
		"limit":      {"50"},
	})
	if !strings.Contains(body, "50 rows") {
		t.Fatalf("smaller-limit run result missing:\n%s", body)
	}
	if strings.Contains(body, "too many rows") {
		t.Error("refusal note survived the successful re-run")
	}
	if strings.Contains(body, "Smaller limit") {
		t.Error("smaller-limit form survived the successful re-run")
	}
}

func TestChatRetryAddsFeedbackTurn(t *testing.T) {
	ta := newTestApp(t)
	ta.login("demo", "demo123")

	_, body := ta.postForm("/chat/send", url.Values{
		"prompt": {"show me all the cars you have"},
	})
	m := messageIDPattern.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no message_id in transcript:\n%s", body)
	}

	_, body = ta.postForm("/chat/retry", url.Values{
		"message_id": {m[1]},
		"feedback":   {"only the cars, no other tables"},
	})
	if !strings.Contains(body, "only the cars, no other tables") {
		t.Fatalf("feedback is not a visible turn:\n%s", body)
	}
	if got := strings.Count(body, "SELECT * FROM cars;"); got != 2 {
		t.Errorf("transcript shows %d generated queries, want the original and the retry", got)
	}
}

func TestChatSendFailureStaysInTranscript(t *testing.T) {
	ta := newTestApp(t)
	ta.login("demo", "demo123")

	resp, body := ta.postForm("/chat/send", url.Values{
		"prompt": {"something about nothing recognizable"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat send: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "msg notice") {
		t.Fatalf("failed turn left no notice in the transcript:\n%s", body)
	}
	if !strings.Contains(body, "page-error") {
		t.Error("failed turn did not set the page-level error banner")
	}

	// The next successful turn clears the banner but keeps the notice.
	_, body = ta.postForm("/chat/send", url.Values{
		"prompt": {"show me all the cars you have"},
	})
	if strings.Contains(body, "page-error") {
		t.Error("error banner survived a successful turn")
	}
	if !strings.Contains(body, "msg notice") {
		t.Error("transcript notice vanished on the next turn")
	}
}

func TestCSRFRejected(t *testing.T) {
	ta := newTestApp(t)
	ta.login("demo", "demo123")

	req, err := http.NewRequest(http.MethodPost, ta.server.URL+"/chat/send",
		strings.NewReader(url.Values{"prompt": {"show me all the cars you have"}}.Encode()))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-Token", "not-the-cookie-value")

	resp, err := ta.client(true).Do(req)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("mismatched CSRF token: status %d, want 403", resp.StatusCode)
	}
}

func TestSessionsSaveOpenDelete(t *testing.T) {
	ta := newTestApp(t)
	ta.login("demo", "demo123")

	ta.postForm("/chat/send", url.Values{"prompt": {"show me all the cars you have"}})

	// Saving without a name is refused before anything is sent.
	_, body := ta.postForm("/chat/sessions/save", url.Values{"name": {"   "}})
	if !strings.Contains(body, "name is required") {
		t.Fatalf("unnamed save not refused:\n%s", body)
	}

	_, body = ta.postForm("/chat/sessions/save", url.Values{"name": {"my cars"}})
	if !strings.Contains(body, "my cars") {
		t.Fatalf("saved conversation missing from the list:\n%s", body)
	}

	idMatch := regexp.MustCompile(`/chat/sessions/(\d+)/open`).FindStringSubmatch(body)
	if idMatch == nil {
		t.Fatalf("no open link in the session list:\n%s", body)
	}

	resp, body := ta.get("/chat/sessions/" + idMatch[1] + "/open")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open session: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "SELECT * FROM cars;") {
		t.Fatalf("restored transcript has no SQL:\n%s", body)
	}

	resp, body = ta.request(http.MethodDelete, "/chat/sessions/"+idMatch[1], nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete session: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "No saved conversations yet") {
		t.Fatalf("session list still has entries after delete:\n%s", body)
	}
}

func TestHistoryRestoredOnLogin(t *testing.T) {
	ta := newTestApp(t)
	ta.login("demo", "demo123")
	ta.postForm("/chat/send", url.Values{"prompt": {"show me all the cars you have"}})
	ta.postForm("/logout", url.Values{"csrf_token": {ta.csrf()}})

	ta.login("demo", "demo123")
	_, body := ta.get("/")
	if !strings.Contains(body, "show me all the cars you have") {
		t.Errorf("prior turns missing after a fresh login:\n%s", body)
	}
}

func TestLogout(t *testing.T) {
	ta := newTestApp(t)
	ta.login("demo", "demo123")

	resp, _ := ta.request(http.MethodPost, "/logout",
		url.Values{"csrf_token": {ta.csrf()}}, false)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("logout: status %d, want redirect", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Errorf("logout redirects to %q, want /login", loc)
	}

	resp, _ = ta.request(http.MethodGet, "/", nil, false)
	if resp.StatusCode != http.StatusSeeOther {
		t.Error("chat page still reachable after logout")
	}
}

func TestAdminConsole(t *testing.T) {
	ta := newTestApp(t)
	ta.login("admin", "admin123")

	resp, body := ta.get("/admin")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /admin: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Create user") {
		t.Error("admin page has no create form")
	}
	if !strings.Contains(body, "users-changed") {
		t.Error("user table does not refresh on mutations")
	}

	_, body = ta.get("/admin/users")
	for _, want := range []string{"admin", "demo", "analyst"} {
		if !strings.Contains(body, want) {
			t.Errorf("user table missing %q:\n%s", want, body)
		}
	}
}

func TestAdminCreateUser(t *testing.T) {
	ta := newTestApp(t)
	ta.login("admin", "admin123")
	ta.get("/admin")

	// Without a schema the create is rejected locally.
	_, body := ta.postForm("/admin/users", url.Values{
		"username": {"carol"},
		"password": {"carolpw"},
		"role":     {"user"},
		"schema":   {"   "},
	})
	if !strings.Contains(body, "Schema is required") {
		t.Fatalf("schemaless create not rejected:\n%s", body)
	}
	if _, users := ta.get("/admin/users"); strings.Contains(users, "carol") {
		t.Fatal("rejected create still reached the service")
	}

	resp, body := ta.postForm("/admin/users", url.Values{
		"username": {"carol"},
		"password": {"carolpw"},
		"role":     {"user"},
		"schema":   {"CREATE TABLE pets (id INTEGER, name TEXT);"},
	})
	if !strings.Contains(body, "User carol created") {
		t.Fatalf("create flash missing:\n%s", body)
	}
	if got := resp.Header.Get("HX-Trigger"); got != "users-changed" {
		t.Errorf("create response HX-Trigger = %q, want users-changed", got)
	}
	if _, users := ta.get("/admin/users"); !strings.Contains(users, "carol") {
		t.Error("created user missing from the table")
	}
}

func TestAdminEditUser(t *testing.T) {
	ta := newTestApp(t)
	ta.login("admin", "admin123")
	ta.get("/admin")

	_, body := ta.get("/admin/users/2/edit")
	if !strings.Contains(body, `value="demo"`) {
		t.Fatalf("edit form not prefilled:\n%s", body)
	}

	resp, body := ta.request(http.MethodPut, "/admin/users/2", url.Values{
		"username": {"demo"},
		"role":     {"admin"},
		"schema":   {"CREATE TABLE cars (id INTEGER);"},
	}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "User demo updated") {
		t.Fatalf("update flash missing:\n%s", body)
	}

	_, body = ta.get("/admin/users/2/edit")
	if !strings.Contains(body, `value="admin" selected`) {
		t.Errorf("edit form does not reflect the role change:\n%s", body)
	}
}

func TestAdminRemoveUser(t *testing.T) {
	ta := newTestApp(t)
	ta.login("admin", "admin123")
	ta.get("/admin")

	resp, body := ta.request(http.MethodDelete, "/admin/users/analyst", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "User analyst removed") {
		t.Fatalf("remove flash missing:\n%s", body)
	}
	if got := resp.Header.Get("HX-Trigger"); got != "users-changed" {
		t.Errorf("remove response HX-Trigger = %q, want users-changed", got)
	}
	if _, users := ta.get("/admin/users"); strings.Contains(users, "analyst") {
		t.Error("removed user still in the table")
	}
}

func TestAdminAnalysis(t *testing.T) {
	ta := newTestApp(t)
	ta.login("admin", "admin123")

	resp, body := ta.get("/admin/analysis")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analysis: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Useful tables") {
		t.Fatalf("analysis partial missing sections:\n%s", body)
	}
}

func TestHelpPages(t *testing.T) {
	ta := newTestApp(t)
	ta.login("demo", "demo123")

	resp, body := ta.get("/help")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /help: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Getting Started") {
		t.Error("help page missing the default topic")
	}
	if !strings.Contains(body, "Troubleshooting") {
		t.Error("help navigation missing topics")
	}

	_, body = ta.get("/help/troubleshooting")
	if !strings.Contains(body, "Rate limit") {
		t.Errorf("troubleshooting topic not rendered:\n%s", body)
	}

	resp, _ = ta.get("/help/no-such-topic")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unknown topic: status %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ta := newTestApp(t)

	resp, body := ta.get("/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d", resp.StatusCode)
	}
	var health map[string]string
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		t.Fatalf("healthz is not JSON: %v", err)
	}
	if health["status"] != "ok" || health["backend"] != "ok" {
		t.Errorf("healthz = %v, want ok/ok", health)
	}

	ta.api.Close()
	_, body = ta.get("/healthz")
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		t.Fatalf("healthz is not JSON: %v", err)
	}
	if health["backend"] != "unreachable" {
		t.Errorf("backend state = %q after service stop, want unreachable", health["backend"])
	}
}

func TestStaticAssets(t *testing.T) {
	ta := newTestApp(t)

	resp, body := ta.get("/static/scry.css")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stylesheet: status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "--accent") {
		t.Error("stylesheet content unexpected")
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "max-age") {
		t.Errorf("Cache-Control = %q, want a max-age", cc)
	}
}
