// Package render converts markdown (assistant explanations, analysis
// summaries, help docs) into HTML for the web templates.
package render
