// Package chat drives the question-to-SQL conversation loop.
//
// # Overview
//
// A Conversation belongs to one signed-in user and talks to the remote
// service through a Querier (normally a token-bearing *backend.Client).
// It owns the transcript and the small state machine around each turn:
//
//  1. Submit records the user prompt and asks the service for SQL.
//  2. The generated SQL is previewed with a bounded row fetch. A preview
//     failure never blocks the turn; the message just has no rows.
//  3. Accept runs the SQL for real with the user's row limit (zero means
//     all rows). If the service refuses with a too-many-rows report, the
//     user gets exactly one more attempt with a smaller limit.
//  4. Retry resubmits the original prompt plus feedback as a new turn.
//
// # Transcript
//
// Messages append in completion order. Overlapping generations are not
// reconciled; the last writer wins, which matches how a single user racing
// their own browser tabs expects the chat to behave. LoadHistory and Open
// replace the transcript wholesale (history restore at sign-in, and saved
// conversations).
//
// # Failures
//
// A failed turn leaves two traces: a failure note in the transcript (an
// assistant message with Notice set) and the transient LastError text,
// which clears on the next successful call. A too-many-rows note is taken
// back out when the smaller-limit attempt lands its rows. The bounded
// preview is the one failure that stays silent.
//
// # Saved conversations
//
// Save, Sessions, Open, and Delete mirror the service's session endpoints.
// The transcript is sent as-is; the service stores it verbatim.
package chat
