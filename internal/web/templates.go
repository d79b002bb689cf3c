// ABOUTME: Template rendering for the browser UI
// ABOUTME: View data types, template funcs, and render helpers per page/partial

package web

import (
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/2389/scry/internal/backend"
	"github.com/2389/scry/internal/chat"
	"github.com/2389/scry/internal/render"
)

// templateFuncs are available to every page and partial.
var templateFuncs = template.FuncMap{
	"cell": func(row backend.Row, col string) string {
		v, ok := row[col]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	},
	"shortTime": func(ts string) string {
		t, err := time.Parse(backend.TimeFormat, ts)
		if err != nil {
			return ts
		}
		return t.Format("Jan 2 15:04")
	},
	"truncate": func(s string, n int) string {
		if len(s) <= n {
			return s
		}
		return s[:n] + "…"
	},
}

// Template data types
type loginData struct {
	Title     string
	Error     string
	CSRFToken string
}

type chatPageData struct {
	Title      string
	Username   string
	IsAdmin    bool
	CSRFToken  string
	Transcript transcriptData
}

type transcriptData struct {
	Messages  []messageView
	LastError string
	CSRFToken string
}

// messageView is one transcript entry prepared for display.
type messageView struct {
	ID      string
	IsUser  bool
	Notice  bool
	Content string        // raw text for user messages and failure notes
	HTML    template.HTML // rendered markdown for assistant messages
	SQL     string

	Preview  tableView
	Executed tableView
	Ran      bool // executed at least once, even if zero rows came back
	RowCount int

	CanAccept         bool // SQL still runnable with a user-chosen limit
	OfferSmallerLimit bool // refused for too many rows; one attempt remains
	CanRetry          bool // feedback retry offered
}

// tableView is a row set with a stable column order for rendering.
type tableView struct {
	Columns []string
	Rows    []backend.Row
}

func (t tableView) Empty() bool { return len(t.Rows) == 0 }

type sessionsData struct {
	Sessions  []backend.ChatSession
	Error     string
	CSRFToken string
}

type adminPageData struct {
	Title       string
	Username    string
	CSRFToken   string
	PollSeconds int
}

type usersData struct {
	Users     []backend.User
	Error     string
	CSRFToken string
}

type userEditData struct {
	User      backend.User
	CSRFToken string
}

type flashData struct {
	Message string
	Error   string
}

type analysisData struct {
	Analysis    *backend.ColumnAnalysis
	SummaryHTML template.HTML
	Error       string
}

type helpPageData struct {
	Title     string
	Username  string
	IsAdmin   bool
	CSRFToken string
	Topics    []helpTopic
	Content   template.HTML
}

// helpTopic is one entry in the help navigation.
type helpTopic struct {
	Slug   string
	Title  string
	Active bool
}

// messageViews converts the transcript for display: stable column order for
// row sets, markdown only for real assistant turns, and the accept/retry
// affordances each message still offers.
func messageViews(msgs []chat.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		view := messageView{
			ID:       m.ID,
			IsUser:   m.Role == backend.RoleUser,
			Notice:   m.Notice,
			SQL:      m.SQL,
			Preview:  tableOf(m.Preview),
			Executed: tableOf(m.Executed),
			Ran:      m.Executed != nil,
			RowCount: m.RowCount(),
		}

		if view.IsUser || m.Notice {
			view.Content = m.Content
		} else {
			view.HTML = render.HTMLString(m.Content)
		}

		if m.SQL != "" && !m.Notice {
			view.CanRetry = true
			view.OfferSmallerLimit = m.AwaitingSmallerLimit()
			view.CanAccept = m.Acceptable() && !view.OfferSmallerLimit
		}

		out = append(out, view)
	}
	return out
}

// tableOf derives a render-stable table from a row set. Column order is
// alphabetical; the wire format carries no ordering of its own.
func tableOf(rows []backend.Row) tableView {
	if len(rows) == 0 {
		return tableView{}
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return tableView{Columns: cols, Rows: rows}
}

// renderLoginPage renders the sign-in page
func (a *App) renderLoginPage(w http.ResponseWriter, errorMsg, csrfToken string) {
	tmpl := template.Must(template.New("base.html").Funcs(templateFuncs).ParseFS(templateFS,
		"templates/base.html", "templates/login.html"))

	data := loginData{
		Title:     "Sign in",
		Error:     errorMsg,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render login page", "error", err)
	}
}

// renderChatPage renders the chat shell with the transcript inlined.
func (a *App) renderChatPage(w http.ResponseWriter, data chatPageData) {
	tmpl := template.Must(template.New("base.html").Funcs(templateFuncs).ParseFS(templateFS,
		"templates/base.html", "templates/chat.html", "templates/partials/transcript.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render chat page", "error", err)
	}
}

// renderTranscript renders the transcript partial for htmx swaps.
func (a *App) renderTranscript(w http.ResponseWriter, conv *chat.Conversation, csrfToken string) {
	tmpl := template.Must(template.New("transcript.html").Funcs(templateFuncs).ParseFS(templateFS,
		"templates/partials/transcript.html"))

	data := transcriptData{
		Messages:  messageViews(conv.Messages()),
		LastError: conv.LastError(),
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render transcript", "error", err)
	}
}

// renderSessions renders the saved-conversations panel partial.
func (a *App) renderSessions(w http.ResponseWriter, sessions []backend.ChatSession, errorMsg, csrfToken string) {
	tmpl := template.Must(template.New("sessions.html").Funcs(templateFuncs).ParseFS(templateFS,
		"templates/partials/sessions.html"))

	data := sessionsData{
		Sessions:  sessions,
		Error:     errorMsg,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render sessions", "error", err)
	}
}

// renderAdminPage renders the admin console shell.
func (a *App) renderAdminPage(w http.ResponseWriter, data adminPageData) {
	tmpl := template.Must(template.New("base.html").Funcs(templateFuncs).ParseFS(templateFS,
		"templates/base.html", "templates/admin.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render admin page", "error", err)
	}
}

// renderUsersList renders the user table partial.
func (a *App) renderUsersList(w http.ResponseWriter, users []backend.User, errorMsg, csrfToken string) {
	tmpl := template.Must(template.New("users_list.html").Funcs(templateFuncs).ParseFS(templateFS,
		"templates/partials/users_list.html"))

	data := usersData{
		Users:     users,
		Error:     errorMsg,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render users list", "error", err)
	}
}

// renderUserEdit renders the edit form partial for one account.
func (a *App) renderUserEdit(w http.ResponseWriter, user backend.User, csrfToken string) {
	tmpl := template.Must(template.New("user_edit.html").Funcs(templateFuncs).ParseFS(templateFS,
		"templates/partials/user_edit.html"))

	data := userEditData{
		User:      user,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render user edit form", "error", err)
	}
}

// renderFlash renders the admin feedback line partial.
func (a *App) renderFlash(w http.ResponseWriter, message, errorMsg string) {
	tmpl := template.Must(template.New("flash.html").Funcs(templateFuncs).ParseFS(templateFS,
		"templates/partials/flash.html"))

	data := flashData{
		Message: message,
		Error:   errorMsg,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render flash", "error", err)
	}
}

// renderAnalysis renders the column-analysis partial.
func (a *App) renderAnalysis(w http.ResponseWriter, analysis *backend.ColumnAnalysis, errorMsg string) {
	tmpl := template.Must(template.New("analysis.html").Funcs(templateFuncs).ParseFS(templateFS,
		"templates/partials/analysis.html"))

	data := analysisData{
		Analysis: analysis,
		Error:    errorMsg,
	}
	if analysis != nil {
		data.SummaryHTML = render.HTMLString(analysis.Summary)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render analysis", "error", err)
	}
}

// renderHelpPage renders the help page with the chosen topic.
func (a *App) renderHelpPage(w http.ResponseWriter, data helpPageData) {
	tmpl := template.Must(template.New("base.html").Funcs(templateFuncs).ParseFS(templateFS,
		"templates/base.html", "templates/help.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render help page", "error", err)
	}
}
