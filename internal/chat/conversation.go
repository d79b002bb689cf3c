// ABOUTME: Conversation is the central layer for the generate/preview/accept loop
// ABOUTME: All chat turns flow through here - one instance per signed-in user

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/scry/internal/backend"
)

// DefaultPreviewLimit bounds the rows fetched right after generation.
const DefaultPreviewLimit = 5

// ErrNoSuchMessage is returned when a message id is not in the conversation.
var ErrNoSuchMessage = errors.New("no such message")

// ErrNotExecutable is returned when Accept or Retry targets a message
// that carries no SQL.
var ErrNotExecutable = errors.New("message has no SQL to execute")

// ErrRetryExhausted is returned when the single smaller-limit retry has
// already been spent for a message.
var ErrRetryExhausted = errors.New("retry already used for this query")

// ErrNameRequired is returned by Save when the session name is blank.
var ErrNameRequired = errors.New("session name is required")

// State describes what the conversation is doing.
type State int

const (
	StateIdle State = iota
	StateGenerating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Querier defines what the conversation needs from the remote service.
// *backend.Client satisfies it.
type Querier interface {
	GenerateSQL(ctx context.Context, prompt, schema string) (*backend.Generated, error)
	RunQuery(ctx context.Context, sql string, limit int) ([]backend.Row, error)
	ChatHistory(ctx context.Context) ([]backend.HistoryMessage, error)
	SaveSession(ctx context.Context, name string, messages []backend.ChatMessage) (int64, error)
	ListSessions(ctx context.Context) ([]backend.ChatSession, error)
	GetSession(ctx context.Context, id int64) (*backend.ChatSession, error)
	DeleteSession(ctx context.Context, id int64) error
}

// Message is one chat turn as shown to the user.
type Message struct {
	backend.ChatMessage

	// Notice marks a failure note: an assistant-role message recording why
	// a call did not succeed, with no SQL behind it.
	Notice bool

	// prompt is the user text that produced an assistant message,
	// kept so Retry can resubmit it with feedback.
	prompt string

	// noteID points at the failure note a pending smaller-limit retry left
	// in the transcript, so a successful retry can take it back out.
	noteID string

	retrySpent bool
	exhausted  bool
}

// RowCount reports how many executed rows the message carries.
func (m *Message) RowCount() int { return len(m.Executed) }

// AwaitingSmallerLimit reports that the service refused the last execution
// for returning too many rows and one smaller-limit attempt remains.
func (m *Message) AwaitingSmallerLimit() bool {
	return m.retrySpent && !m.exhausted && m.Executed == nil
}

// Acceptable reports whether Accept can still run this message's SQL.
func (m *Message) Acceptable() bool {
	return m.SQL != "" && !m.Notice && m.Executed == nil && !m.exhausted
}

// Options configure a conversation for one signed-in user.
type Options struct {
	// Schema is the user's database schema, sent with every generation.
	Schema string

	// Admin marks an administrator: generations omit the schema and the
	// remote service substitutes its admin schema.
	Admin bool

	// PreviewLimit bounds preview fetches. Zero selects DefaultPreviewLimit.
	PreviewLimit int
}

// Conversation drives one user's chat: prompt in, SQL out, preview rows,
// then accept or retry. Safe for concurrent use by racing browser requests;
// overlapping generations append in completion order (last write wins).
type Conversation struct {
	querier Querier
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	messages []*Message
	state    State
	lastErr  string
}

// New creates a conversation bound to one user's querier and schema.
func New(querier Querier, opts Options, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PreviewLimit == 0 {
		opts.PreviewLimit = DefaultPreviewLimit
	}
	return &Conversation{
		querier: querier,
		opts:    opts,
		logger:  logger.With("component", "chat"),
	}
}

// State reports whether a generation is in flight.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a snapshot of the conversation in order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = *m
	}
	return out
}

// LastError returns the text of the most recent failed call, empty once a
// call succeeds again. The transcript keeps its own failure notes; this is
// the transient page-level indicator.
func (c *Conversation) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Clear starts a fresh conversation.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.state = StateIdle
	c.lastErr = ""
}

// Submit records the prompt, asks the service for SQL, and fetches a bounded
// preview. The user message is appended before generation, so it survives a
// failed turn. A preview failure is logged and swallowed; the assistant
// message then simply carries no rows.
func (c *Conversation) Submit(ctx context.Context, prompt string) (Message, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Message{}, fmt.Errorf("prompt is empty")
	}

	c.appendUser(prompt)
	return c.generate(ctx, prompt)
}

// Retry resubmits the prompt behind an assistant message together with the
// user's feedback, as a brand-new turn. The old message and its SQL stay in
// the transcript.
func (c *Conversation) Retry(ctx context.Context, messageID, feedback string) (Message, error) {
	c.mu.Lock()
	msg := c.find(messageID)
	if msg == nil {
		c.mu.Unlock()
		return Message{}, ErrNoSuchMessage
	}
	if msg.prompt == "" {
		c.mu.Unlock()
		return Message{}, ErrNotExecutable
	}
	prompt := msg.prompt
	c.mu.Unlock()

	feedback = strings.TrimSpace(feedback)
	display := feedback
	if display == "" {
		display = "Try again."
	}
	c.appendUser(display)

	combined := prompt
	if feedback != "" {
		combined = prompt + "\n\n" + feedback
	}
	return c.generate(ctx, combined)
}

// Accept runs a generated query for real. limit bounds the rows; zero means
// all rows. When the service reports too many rows, the caller may accept
// once more with a smaller limit; that single retry replaces the failed
// attempt, and any failure after it is final.
func (c *Conversation) Accept(ctx context.Context, messageID string, limit int) (Message, error) {
	c.mu.Lock()
	msg := c.find(messageID)
	if msg == nil {
		c.mu.Unlock()
		return Message{}, ErrNoSuchMessage
	}
	if msg.SQL == "" {
		c.mu.Unlock()
		return Message{}, ErrNotExecutable
	}
	if msg.exhausted {
		c.mu.Unlock()
		return Message{}, ErrRetryExhausted
	}
	sql := msg.SQL
	c.mu.Unlock()

	rows, err := c.querier.RunQuery(ctx, sql, limit)
	if err != nil {
		text := errorText(err)
		if backend.KindOf(err) == backend.KindTooManyRows {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.lastErr = text
			if msg.retrySpent {
				msg.exhausted = true
				c.appendNoteLocked(text)
				c.logger.Info("query retry exhausted", "message_id", messageID)
				return Message{}, ErrRetryExhausted
			}
			msg.retrySpent = true
			msg.noteID = c.appendNoteLocked(text).ID
			c.logger.Info("query returned too many rows", "message_id", messageID, "limit", limit)
			return Message{}, err
		}
		c.mu.Lock()
		c.appendNoteLocked(text)
		c.lastErr = text
		c.mu.Unlock()
		return Message{}, fmt.Errorf("running query: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.noteID != "" {
		c.removeLocked(msg.noteID)
		msg.noteID = ""
	}
	msg.Executed = rows
	c.lastErr = ""
	c.logger.Info("query accepted", "message_id", messageID, "rows", len(rows), "limit", limit)
	return *msg, nil
}

// LoadHistory replaces the transcript with the service's stored history for
// this user, oldest first. Returns how many turns were restored.
func (c *Conversation) LoadHistory(ctx context.Context) (int, error) {
	history, err := c.querier.ChatHistory(ctx)
	if err != nil {
		c.setLastErr(errorText(err))
		return 0, fmt.Errorf("loading history: %w", err)
	}

	// The service returns newest-first; the transcript reads oldest-first.
	msgs := make([]*Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		msgs = append(msgs, &Message{
			ChatMessage: backend.ChatMessage{
				ID:      uuid.New().String(),
				Role:    h.Role,
				Content: h.Content,
				SQL:     h.SQLGenerated,
			},
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = msgs
	c.lastErr = ""
	return len(msgs), nil
}

// Save stores the current transcript on the service under a name.
func (c *Conversation) Save(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrNameRequired
	}

	wire := c.wireMessages()
	id, err := c.querier.SaveSession(ctx, name, wire)
	if err != nil {
		c.setLastErr(errorText(err))
		return 0, fmt.Errorf("saving session: %w", err)
	}

	c.setLastErr("")
	c.logger.Info("session saved", "session_id", id, "name", name, "messages", len(wire))
	return id, nil
}

// Sessions lists the user's saved conversations.
func (c *Conversation) Sessions(ctx context.Context) ([]backend.ChatSession, error) {
	sessions, err := c.querier.ListSessions(ctx)
	if err != nil {
		c.setLastErr(errorText(err))
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// Open replaces the transcript with a saved conversation.
func (c *Conversation) Open(ctx context.Context, id int64) (*backend.ChatSession, error) {
	session, err := c.querier.GetSession(ctx, id)
	if err != nil {
		c.setLastErr(errorText(err))
		return nil, fmt.Errorf("opening session: %w", err)
	}

	msgs := make([]*Message, 0, len(session.Messages))
	for _, m := range session.Messages {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		msgs = append(msgs, &Message{ChatMessage: m})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = msgs
	c.lastErr = ""
	return session, nil
}

// Delete removes a saved conversation from the service.
func (c *Conversation) Delete(ctx context.Context, id int64) error {
	if err := c.querier.DeleteSession(ctx, id); err != nil {
		c.setLastErr(errorText(err))
		return fmt.Errorf("deleting session: %w", err)
	}
	c.setLastErr("")
	return nil
}

// generate runs one generation turn and appends the assistant message.
func (c *Conversation) generate(ctx context.Context, prompt string) (Message, error) {
	c.setState(StateGenerating)
	defer c.setState(StateIdle)

	schema := c.opts.Schema
	if c.opts.Admin {
		// Administrators query the service's own schema
		schema = ""
	}

	gen, err := c.querier.GenerateSQL(ctx, prompt, schema)
	if err != nil {
		text := errorText(err)
		c.mu.Lock()
		c.appendNoteLocked(text)
		c.lastErr = text
		c.mu.Unlock()
		return Message{}, fmt.Errorf("generating SQL: %w", err)
	}

	preview, err := c.querier.RunQuery(ctx, gen.SQL, c.opts.PreviewLimit)
	if err != nil {
		// The preview is best effort: the turn goes on without rows.
		c.logger.Warn("preview query failed", "error", err)
		preview = nil
	}

	msg := &Message{
		ChatMessage: backend.ChatMessage{
			ID:      uuid.New().String(),
			Role:    backend.RoleAssistant,
			Content: gen.Explain,
			SQL:     gen.SQL,
			Preview: preview,
		},
		prompt: prompt,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.lastErr = ""
	c.logger.Debug("assistant message appended", "message_id", msg.ID, "preview_rows", len(preview))
	return *msg, nil
}

func (c *Conversation) appendUser(content string) Message {
	msg := &Message{
		ChatMessage: backend.ChatMessage{
			ID:      uuid.New().String(),
			Role:    backend.RoleUser,
			Content: content,
		},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return *msg
}

// appendNoteLocked records a visible failure note in the transcript.
// Callers hold c.mu.
func (c *Conversation) appendNoteLocked(text string) *Message {
	msg := &Message{
		ChatMessage: backend.ChatMessage{
			ID:      uuid.New().String(),
			Role:    backend.RoleAssistant,
			Content: text,
		},
		Notice: true,
	}
	c.messages = append(c.messages, msg)
	return msg
}

// removeLocked splices a message out of the transcript. Callers hold c.mu.
func (c *Conversation) removeLocked(id string) {
	for i, m := range c.messages {
		if m.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

// errorText picks the user-facing text for a failed call: the service's own
// detail when there is one, the raw error otherwise.
func errorText(err error) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Detail != "" {
		return be.Detail
	}
	return err.Error()
}

// find returns the live message for an id. Callers hold c.mu.
func (c *Conversation) find(id string) *Message {
	for _, m := range c.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (c *Conversation) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Conversation) setLastErr(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = text
}

func (c *Conversation) wireMessages() []backend.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]backend.ChatMessage, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.ChatMessage
	}
	return out
}
