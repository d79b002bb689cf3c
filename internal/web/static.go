// ABOUTME: Embedded static assets and the help documentation pages
// ABOUTME: Help topics are markdown files rendered server-side per request

package web

import (
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/2389/scry/internal/auth"
	"github.com/2389/scry/internal/render"
)

// staticServer serves the embedded stylesheet and scripts.
func staticServer() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("static assets missing from build: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		fileServer.ServeHTTP(w, r)
	})
}

// topicOrder pins the sidebar ordering for known help topics. Unknown files
// sort after these, alphabetically.
var topicOrder = map[string]int{
	"getting-started": 1,
	"chat":            2,
	"saved-sessions":  3,
	"admin-console":   4,
	"troubleshooting": 5,
}

// handleHelp renders a help topic with the topic list in the sidebar.
func (a *App) handleHelp(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	r, csrfToken := a.ensureCSRFToken(w, r)

	topic := r.PathValue("topic")
	if topic == "" {
		topic = "getting-started"
	}
	if strings.ContainsAny(topic, "/\\") || strings.Contains(topic, "..") {
		http.Error(w, "Unknown topic", http.StatusNotFound)
		return
	}

	entries, err := helpDocsFS.ReadDir("docs/help")
	if err != nil {
		a.logger.Error("failed to read help docs", "error", err)
		http.Error(w, "Failed to load help", http.StatusInternalServerError)
		return
	}

	var topics []helpTopic
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		slug := strings.TrimSuffix(entry.Name(), ".md")
		topics = append(topics, helpTopic{
			Slug:   slug,
			Title:  formatHelpTitle(slug),
			Active: slug == topic,
		})
	}
	sort.Slice(topics, func(i, j int) bool {
		orderI, okI := topicOrder[topics[i].Slug]
		orderJ, okJ := topicOrder[topics[j].Slug]
		if !okI {
			orderI = 100
		}
		if !okJ {
			orderJ = 100
		}
		if orderI != orderJ {
			return orderI < orderJ
		}
		return topics[i].Slug < topics[j].Slug
	})

	source, err := helpDocsFS.ReadFile(path.Join("docs/help", topic+".md"))
	if err != nil {
		a.logger.Warn("help topic not found", "topic", topic)
		source = []byte("# Not Found\n\nThis help topic could not be found.")
	}

	a.renderHelpPage(w, helpPageData{
		Title:     "Help",
		Username:  id.Username,
		IsAdmin:   id.IsAdmin(),
		CSRFToken: csrfToken,
		Topics:    topics,
		Content:   render.HTML(source),
	})
}

// formatHelpTitle converts a slug like saved-sessions to a display title.
func formatHelpTitle(slug string) string {
	words := strings.Split(slug, "-")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
