// ABOUTME: Embeds templates, static assets, and help docs into the binary
// ABOUTME: Provides the filesystems the web handlers serve from

package web

import "embed"

//go:embed templates/*.html templates/partials/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

//go:embed docs/help/*.md
var helpDocsFS embed.FS
