// ABOUTME: Admin console handlers: user management, column analysis
// ABOUTME: Mutations answer with a flash partial and fire users-changed for the table

package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/scry/internal/admin"
	"github.com/2389/scry/internal/auth"
	"github.com/2389/scry/internal/backend"
)

// adminService builds a Service bound to the caller's token. The service is
// a thin wrapper, so a fresh one per request is fine.
func (a *App) adminService(r *http.Request) *admin.Service {
	id := auth.MustFromContext(r.Context())
	return admin.NewService(a.client.WithToken(id.Token), a.logger)
}

// handleAdminPage renders the admin console shell. The user table and
// analysis panel load themselves over htmx.
func (a *App) handleAdminPage(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	r, csrfToken := a.ensureCSRFToken(w, r)

	a.renderAdminPage(w, adminPageData{
		Title:       "Admin",
		Username:    id.Username,
		CSRFToken:   csrfToken,
		PollSeconds: int(a.cfg.PollInterval.Seconds()),
	})
}

// handleAdminUsersList returns the user table partial. The admin page polls
// this on a fixed interval and again whenever a mutation fires users-changed.
func (a *App) handleAdminUsersList(w http.ResponseWriter, r *http.Request) {
	svc := a.adminService(r)
	users, err := svc.ListUsers(r.Context())
	if err != nil {
		a.renderUsersList(w, nil, failureText(err), csrfFromRequest(r))
		return
	}
	a.renderUsersList(w, users, "", csrfFromRequest(r))
}

// handleAdminUserCreate creates an account from the console form. Validation
// failures never leave the process: the service rejects them before any
// request goes out.
func (a *App) handleAdminUserCreate(w http.ResponseWriter, r *http.Request) {
	if !a.csrfOK(w, r) {
		return
	}

	svc := a.adminService(r)
	params := backend.AddUserParams{
		Username:    strings.TrimSpace(r.FormValue("username")),
		Password:    r.FormValue("password"),
		Role:        r.FormValue("role"),
		Schema:      r.FormValue("schema"),
		AdminSchema: r.FormValue("admin_schema"),
	}

	if _, err := svc.AddUser(r.Context(), params); err != nil {
		a.renderFlash(w, "", createFailureText(err))
		return
	}

	w.Header().Set("HX-Trigger", "users-changed")
	a.renderFlash(w, "User "+params.Username+" created", "")
}

// createFailureText maps the service's validation errors to form messages.
func createFailureText(err error) string {
	switch {
	case errors.Is(err, admin.ErrUsernameRequired):
		return "Username is required"
	case errors.Is(err, admin.ErrPasswordRequired):
		return "Password is required"
	case errors.Is(err, admin.ErrSchemaRequired):
		return "Schema is required: paste the CREATE TABLE statements for this user"
	case errors.Is(err, admin.ErrInvalidRole):
		return "Role must be either user or admin"
	}
	return failureText(err)
}

// handleAdminUserEditForm returns the inline edit form for one account.
func (a *App) handleAdminUserEditForm(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Unknown user", http.StatusNotFound)
		return
	}

	svc := a.adminService(r)
	users, listErr := svc.ListUsers(r.Context())
	if listErr != nil {
		a.renderFlash(w, "", failureText(listErr))
		return
	}
	for i := range users {
		if users[i].ID == userID {
			a.renderUserEdit(w, users[i], csrfFromRequest(r))
			return
		}
	}
	http.Error(w, "Unknown user", http.StatusNotFound)
}

// handleAdminUserUpdate applies a partial edit. Blank fields are left alone.
func (a *App) handleAdminUserUpdate(w http.ResponseWriter, r *http.Request) {
	if !a.csrfOK(w, r) {
		return
	}

	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Unknown user", http.StatusNotFound)
		return
	}

	svc := a.adminService(r)
	params := backend.UpdateUserParams{
		Username:    strings.TrimSpace(r.FormValue("username")),
		Password:    r.FormValue("password"),
		Role:        r.FormValue("role"),
		Schema:      r.FormValue("schema"),
		AdminSchema: r.FormValue("admin_schema"),
	}

	updated, err := svc.UpdateUser(r.Context(), userID, params)
	if err != nil {
		a.renderFlash(w, "", failureText(err))
		return
	}

	w.Header().Set("HX-Trigger", "users-changed")
	a.renderFlash(w, "User "+updated.Username+" updated", "")
}

// handleAdminUserDelete removes an account by username.
func (a *App) handleAdminUserDelete(w http.ResponseWriter, r *http.Request) {
	if !a.csrfOK(w, r) {
		return
	}

	username := r.PathValue("username")
	svc := a.adminService(r)
	if err := svc.RemoveUser(r.Context(), username); err != nil {
		a.renderFlash(w, "", failureText(err))
		return
	}

	w.Header().Set("HX-Trigger", "users-changed")
	a.renderFlash(w, "User "+username+" removed", "")
}

// handleAdminAnalysis fetches the column usefulness report on demand.
func (a *App) handleAdminAnalysis(w http.ResponseWriter, r *http.Request) {
	svc := a.adminService(r)
	analysis, err := svc.Analyze(r.Context())
	if err != nil {
		a.renderAnalysis(w, nil, failureText(err))
		return
	}
	a.renderAnalysis(w, analysis, "")
}
