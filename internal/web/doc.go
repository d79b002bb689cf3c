// Package web serves the browser front-end: sign-in, the chat view, saved
// conversations, the admin console, and embedded help.
//
// Pages render server-side from embedded templates. Interactions swap HTML
// partials over htmx, so every state change round-trips through a handler
// here and no client-side state exists beyond the cookies. Browser sessions
// ride an opaque cookie backed by the local store; mutating requests carry a
// double-submit CSRF token, as a form field or the X-CSRF-Token header.
package web
