// ABOUTME: Markdown to template.HTML conversion for web views
// ABOUTME: Raw HTML in the source is dropped by the converter, never emitted

package render

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
)

// HTML converts markdown to HTML ready for template injection. On a convert
// failure the source is escaped into a <pre> block so content is never lost.
func HTML(source []byte) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert(source, &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(string(source)) + "</pre>")
	}
	return template.HTML(buf.String())
}

// HTMLString is HTML for string sources.
func HTMLString(source string) template.HTML {
	return HTML([]byte(source))
}
