// Package stub is an in-memory stand-in for the remote
// natural-language-to-SQL service, used for local development and demos.
//
// It serves the full REST contract: login with bcrypt-checked seeded
// accounts, HS256 bearer tokens, SQL generation against each account's
// stored schema, SELECT-only query execution over canned tables, per-user
// chat history and saved sessions, the admin user directory, and the column
// analysis report. Error responses carry the same {detail} bodies and status
// codes as the real service, so the front-end's error classification cannot
// tell the two apart.
//
// Generation is deterministic: the first schema table mentioned in the
// prompt becomes SELECT * FROM that table. The seeded sales table is larger
// than the row cap, so asking for all sales exercises the too-many-rows
// retry flow without a real database.
package stub
