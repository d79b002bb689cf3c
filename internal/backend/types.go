// ABOUTME: Wire types for the natural-language-to-SQL backend REST API
// ABOUTME: JSON field names follow the backend contract exactly and must not drift

package backend

// Row is one result row: column name to value. Column sets are whatever the
// generated SQL selected, so no struct can describe them.
type Row = map[string]any

// Message roles within a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TimeFormat is the layout of every timestamp the service emits: ISO without
// a zone, microsecond precision.
const TimeFormat = "2006-01-02T15:04:05.000000"

// ChatMessage is one conversational turn. Assistant messages may carry the
// generated SQL plus the preview rows fetched for it and, after an accept,
// the executed rows. Rows always belong to the SQL on the same message.
type ChatMessage struct {
	ID       string `json:"id,omitempty"`
	Role     string `json:"role"`
	Content  string `json:"content"`
	SQL      string `json:"sql,omitempty"`
	Preview  []Row  `json:"preview,omitempty"`
	Executed []Row  `json:"executed,omitempty"`
}

// HistoryMessage is a message as the backend's own transcript records it.
// Shape differs from ChatMessage: the backend logs content and generated SQL
// only, no row sets. Timestamps stay as the backend's ISO strings; they are
// displayed, never computed with.
type HistoryMessage struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	Content      string `json:"content"`
	SQLGenerated string `json:"sql_generated,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// ChatSession is a named, server-side saved conversation. Messages round-trip
// as whatever JSON the front-end posted to save-session, so they decode into
// the front-end's ChatMessage shape.
type ChatSession struct {
	ID        int64         `json:"id"`
	Username  string        `json:"username,omitempty"`
	Name      string        `json:"session_name"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt string        `json:"created_at,omitempty"`
}

// User is an account as the admin endpoints report it.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	Schema      string `json:"schema"`
	AdminSchema string `json:"admin_schema,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// ColumnAnalysis is the backend's column/table usefulness report, displayed
// verbatim and never interpreted locally.
type ColumnAnalysis struct {
	UsefulTables        []string `json:"useful_tables"`
	UselessTables       []string `json:"useless_tables"`
	UselessColumns      []string `json:"useless_columns"`
	RecommendedIndexes  []string `json:"recommended_indexes"`
	SuggestedDropTables []string `json:"suggested_drop_tables"`
	Summary             string   `json:"summary"`
}

// LoginResult is what a successful login returns.
type LoginResult struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Schema   string `json:"schema"`
}

// Generated is the outcome of SQL generation: the statement plus the
// backend's explanation text.
type Generated struct {
	SQL     string `json:"sql"`
	Explain string `json:"explain"`
}

// AddUserParams are the fields for creating an account. Schema is required;
// the service layer rejects blank schemas before any request is made.
type AddUserParams struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	Schema      string `json:"schema"`
	AdminSchema string `json:"admin_schema,omitempty"`
}

// UpdateUserParams are the fields for a partial account update. Zero-valued
// fields are omitted from the request and left unchanged; an empty Password
// in particular never overwrites the stored one.
type UpdateUserParams struct {
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	Role        string `json:"role,omitempty"`
	Schema      string `json:"schema,omitempty"`
	AdminSchema string `json:"admin_schema,omitempty"`
}
