// ABOUTME: Chat view handlers: prompt submission, accept/retry, saved sessions
// ABOUTME: Every action responds with the refreshed transcript or panel partial

package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/2389/scry/internal/auth"
	"github.com/2389/scry/internal/chat"
)

// handleChatPage renders the chat shell with the current transcript.
func (a *App) handleChatPage(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	r, csrfToken := a.ensureCSRFToken(w, r)
	conv := a.conversationFor(r)

	data := chatPageData{
		Title:     "Chat",
		Username:  id.Username,
		IsAdmin:   id.IsAdmin(),
		CSRFToken: csrfToken,
		Transcript: transcriptData{
			Messages:  messageViews(conv.Messages()),
			LastError: conv.LastError(),
			CSRFToken: csrfToken,
		},
	}
	a.renderChatPage(w, data)
}

// handleChatSend submits a prompt and returns the refreshed transcript.
// A failed turn is already recorded in the transcript, so the response is
// the same either way.
func (a *App) handleChatSend(w http.ResponseWriter, r *http.Request) {
	if !a.csrfOK(w, r) {
		return
	}

	conv := a.conversationFor(r)
	if _, err := conv.Submit(r.Context(), r.FormValue("prompt")); err != nil {
		a.logger.Info("chat turn failed", "error", err)
	}
	a.renderTranscript(w, conv, csrfFromRequest(r))
}

// handleChatAccept executes a generated query with the user's row limit.
func (a *App) handleChatAccept(w http.ResponseWriter, r *http.Request) {
	if !a.csrfOK(w, r) {
		return
	}

	limit := 0
	if v := r.FormValue("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	conv := a.conversationFor(r)
	_, err := conv.Accept(r.Context(), r.FormValue("message_id"), limit)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrNoSuchMessage), errors.Is(err, chat.ErrNotExecutable):
		// Stale view; the re-rendered transcript brings it back in line.
		a.logger.Warn("accept for unknown message", "error", err)
	default:
		a.logger.Info("query execution failed", "error", err)
	}
	a.renderTranscript(w, conv, csrfFromRequest(r))
}

// handleChatRetry resubmits the prompt behind a message with user feedback.
func (a *App) handleChatRetry(w http.ResponseWriter, r *http.Request) {
	if !a.csrfOK(w, r) {
		return
	}

	conv := a.conversationFor(r)
	_, err := conv.Retry(r.Context(), r.FormValue("message_id"), r.FormValue("feedback"))
	if err != nil {
		a.logger.Info("retry failed", "error", err)
	}
	a.renderTranscript(w, conv, csrfFromRequest(r))
}

// handleChatClear wipes the transcript and starts over.
func (a *App) handleChatClear(w http.ResponseWriter, r *http.Request) {
	if !a.csrfOK(w, r) {
		return
	}

	conv := a.conversationFor(r)
	conv.Clear()
	a.renderTranscript(w, conv, csrfFromRequest(r))
}

// handleSessionsList renders the saved-conversations panel.
func (a *App) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	conv := a.conversationFor(r)

	sessions, err := conv.Sessions(r.Context())
	if err != nil {
		a.logger.Warn("failed to list sessions", "error", err)
		a.renderSessions(w, nil, failureText(err), csrfFromRequest(r))
		return
	}
	a.renderSessions(w, sessions, "", csrfFromRequest(r))
}

// handleSessionSave stores the transcript under a name and confirms by
// reloading the panel from the service.
func (a *App) handleSessionSave(w http.ResponseWriter, r *http.Request) {
	if !a.csrfOK(w, r) {
		return
	}

	conv := a.conversationFor(r)
	if _, err := conv.Save(r.Context(), r.FormValue("name")); err != nil {
		msg := failureText(err)
		if errors.Is(err, chat.ErrNameRequired) {
			msg = "A session name is required"
		}
		a.logger.Warn("failed to save session", "error", err)
		sessions, _ := conv.Sessions(r.Context())
		a.renderSessions(w, sessions, msg, csrfFromRequest(r))
		return
	}

	sessions, err := conv.Sessions(r.Context())
	if err != nil {
		a.renderSessions(w, nil, failureText(err), csrfFromRequest(r))
		return
	}
	a.renderSessions(w, sessions, "", csrfFromRequest(r))
}

// handleSessionOpen replaces the transcript with a saved conversation.
func (a *App) handleSessionOpen(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	conv := a.conversationFor(r)
	if _, err := conv.Open(r.Context(), id); err != nil {
		a.logger.Warn("failed to open session", "session_id", id, "error", err)
	}
	a.renderTranscript(w, conv, csrfFromRequest(r))
}

// handleSessionDelete removes a saved conversation and reloads the panel.
func (a *App) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if !a.csrfOK(w, r) {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	conv := a.conversationFor(r)
	if err := conv.Delete(r.Context(), id); err != nil {
		a.logger.Warn("failed to delete session", "session_id", id, "error", err)
		sessions, _ := conv.Sessions(r.Context())
		a.renderSessions(w, sessions, failureText(err), csrfFromRequest(r))
		return
	}

	sessions, err := conv.Sessions(r.Context())
	if err != nil {
		a.renderSessions(w, nil, failureText(err), csrfFromRequest(r))
		return
	}
	a.renderSessions(w, sessions, "", csrfFromRequest(r))
}
