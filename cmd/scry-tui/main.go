// ABOUTME: Terminal client for the SQL assistant with readline input and table output
// ABOUTME: Signs in against the backend API and drives the generate/accept loop

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/2389/scry/internal/auth"
	"github.com/2389/scry/internal/backend"
	"github.com/2389/scry/internal/chat"
	"github.com/2389/scry/internal/config"
)

// getHistoryPath returns the readline history file location.
// Priority: XDG_DATA_HOME/scry/tui_history > ~/.local/share/scry/tui_history
func getHistoryPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ".scry_history" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	dir := filepath.Join(dataDir, "scry")
	_ = os.MkdirAll(dir, 0755)
	return filepath.Join(dir, "tui_history")
}

func main() {
	_ = godotenv.Load()

	server := flag.String("server", "", "Backend API URL (default from client config)")
	user := flag.String("user", "", "Username (prompted when empty)")
	preview := flag.Int("preview", 0, "Preview row limit after generation (0 for the default)")
	flag.Parse()

	cfg, err := config.LoadClient(config.ClientPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	serverURL := *server
	if serverURL == "" {
		serverURL = cfg.ServerURL()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, serverURL, *user, *preview, cfg.Query.DefaultLimit); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, server, username string, previewLimit, defaultLimit int) error {
	// The conversation layer logs turn events; in a terminal session those
	// would tear up the prompt, so they are discarded.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reader := bufio.NewReader(os.Stdin)
	if username == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return fmt.Errorf("a username is required")
	}

	password, err := readPassword(reader, "Password: ")
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	client := backend.New(server, &http.Client{Timeout: 60 * time.Second}, logger)
	login, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %s", friendlyError(err))
	}

	conv := chat.New(client.WithToken(login.Token), chat.Options{
		Schema:       login.Schema,
		Admin:        login.Role == auth.RoleAdmin,
		PreviewLimit: previewLimit,
	}, logger)

	green := color.New(color.FgGreen)
	green.Printf("Signed in as %s (%s) against %s\n", login.Username, login.Role, server)

	if n, err := conv.LoadHistory(ctx); err == nil && n > 0 {
		fmt.Printf("Restored %d messages from your chat history. /history shows them.\n", n)
	}
	fmt.Println("Ask a question in plain English. /help for commands, /quit to exit.")
	fmt.Println()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "scry> ",
		HistoryFile:     getHistoryPath(),
		AutoComplete:    newCommandCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("initializing input: %w", err)
	}
	defer func() { _ = rl.Close() }()

	for {
		if ctx.Err() != nil {
			break
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(ctx, conv, defaultLimit, line); quit {
				break
			}
			continue
		}

		submitPrompt(ctx, conv, line)
	}

	return nil
}

// readPassword reads a password without echo when stdin is a terminal, and
// falls back to a plain line read when it is piped.
func readPassword(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		fmt.Println()
		return strings.TrimSpace(line), nil
	}

	secret, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

func newCommandCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("/help"),
		readline.PcItem("/sql"),
		readline.PcItem("/accept"),
		readline.PcItem("/retry"),
		readline.PcItem("/history"),
		readline.PcItem("/sessions"),
		readline.PcItem("/save"),
		readline.PcItem("/open"),
		readline.PcItem("/delete"),
		readline.PcItem("/clear"),
		readline.PcItem("/quit"),
		readline.PcItem("/exit"),
	)
}

// submitPrompt sends one natural-language turn and prints the generated SQL
// with its preview rows.
func submitPrompt(ctx context.Context, conv *chat.Conversation, prompt string) {
	msg, err := conv.Submit(ctx, prompt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", friendlyError(err))
		return
	}

	printGenerated(msg)
}

func printGenerated(msg chat.Message) {
	if msg.Content != "" {
		fmt.Println(msg.Content)
	}
	if msg.SQL != "" {
		cyan := color.New(color.FgCyan)
		for _, line := range strings.Split(strings.TrimRight(msg.SQL, "\n"), "\n") {
			cyan.Printf("  %s\n", line)
		}
	}
	if len(msg.Preview) > 0 {
		fmt.Println()
		fmt.Printf("Preview (first %d rows):\n", len(msg.Preview))
		renderRows(os.Stdout, msg.Preview)
	}
	if msg.SQL != "" {
		color.HiBlack("Run it with /accept [limit], or /retry <feedback> to regenerate.")
	}
	fmt.Println()
}

// handleCommand dispatches one slash-command. Returns true when the REPL
// should exit.
func handleCommand(ctx context.Context, conv *chat.Conversation, defaultLimit int, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case "/quit", "/exit":
		return true

	case "/help":
		printHelp(os.Stdout)

	case "/sql":
		msg, ok := lastGenerated(conv)
		if !ok {
			fmt.Fprintln(os.Stderr, "Nothing generated yet. Ask a question first.")
			return false
		}
		fmt.Println(msg.SQL)

	case "/accept":
		runAccept(ctx, conv, defaultLimit, parts[1:])

	case "/retry":
		msg, ok := lastGenerated(conv)
		if !ok {
			fmt.Fprintln(os.Stderr, "Nothing to retry. Ask a question first.")
			return false
		}
		feedback := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
		retried, err := conv.Retry(ctx, msg.ID, feedback)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", friendlyError(err))
			return false
		}
		printGenerated(retried)

	case "/history":
		printTranscript(os.Stdout, conv.Messages())

	case "/sessions":
		listSessions(ctx, conv)

	case "/save":
		name := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
		id, err := conv.Save(ctx, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", friendlyError(err))
			return false
		}
		fmt.Printf("Saved as session %d.\n", id)

	case "/open":
		if len(parts) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: /open <id>")
			return false
		}
		openSession(ctx, conv, parts[1])

	case "/delete":
		if len(parts) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: /delete <id>")
			return false
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Not a session id: %s\n", parts[1])
			return false
		}
		if err := conv.Delete(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", friendlyError(err))
			return false
		}
		fmt.Printf("Deleted session %d.\n", id)

	case "/clear":
		conv.Clear()
		fmt.Print("\033[H\033[2J")

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s (type /help for commands)\n", command)
	}

	return false
}

// runAccept executes the last generated query. An optional argument bounds
// the rows; with no argument the client config's default applies, and zero
// returns every row.
func runAccept(ctx context.Context, conv *chat.Conversation, defaultLimit int, args []string) {
	msg, ok := lastGenerated(conv)
	if !ok {
		fmt.Fprintln(os.Stderr, "Nothing to run. Ask a question first.")
		return
	}

	limit := defaultLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			fmt.Fprintf(os.Stderr, "Not a row limit: %s\n", args[0])
			return
		}
		limit = n
	}

	executed, err := conv.Accept(ctx, msg.ID, limit)
	if err != nil {
		switch {
		case backend.KindOf(err) == backend.KindTooManyRows:
			color.Yellow("%s", friendlyError(err))
			fmt.Println("One more try is allowed: /accept <smaller limit>")
		case errors.Is(err, chat.ErrRetryExhausted):
			fmt.Fprintln(os.Stderr, "That query is done: the smaller-limit retry was already used. Rephrase and try again.")
		default:
			fmt.Fprintf(os.Stderr, "Error: %s\n", friendlyError(err))
		}
		return
	}

	renderRows(os.Stdout, executed.Executed)
	fmt.Println()
}

func listSessions(ctx context.Context, conv *chat.Conversation) {
	sessions, err := conv.Sessions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", friendlyError(err))
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No saved sessions yet. /save <name> stores this conversation.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Messages", "Created"})
	for _, s := range sessions {
		t.AppendRow(table.Row{s.ID, s.Name, len(s.Messages), s.CreatedAt})
	}
	t.Render()
}

func openSession(ctx context.Context, conv *chat.Conversation, arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Not a session id: %s\n", arg)
		return
	}

	sess, err := conv.Open(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", friendlyError(err))
		return
	}

	fmt.Printf("Opened %q (%d messages). The conversation continues from here.\n", sess.Name, len(sess.Messages))
	printTranscript(os.Stdout, conv.Messages())
}

// printTranscript writes the whole conversation, one role-prefixed block per
// turn.
func printTranscript(w io.Writer, messages []chat.Message) {
	if len(messages) == 0 {
		fmt.Fprintln(w, "(empty conversation)")
		return
	}

	for _, m := range messages {
		switch {
		case m.Role == backend.RoleUser:
			color.New(color.FgGreen).Fprintf(w, "you> ")
			fmt.Fprintln(w, m.Content)
		case m.Notice:
			color.New(color.FgYellow).Fprintf(w, "note> ")
			fmt.Fprintln(w, m.Content)
		default:
			fmt.Fprintln(w, m.Content)
			if m.SQL != "" {
				for _, line := range strings.Split(strings.TrimRight(m.SQL, "\n"), "\n") {
					color.New(color.FgCyan).Fprintf(w, "  %s\n", line)
				}
			}
			if m.Executed != nil {
				renderRows(w, m.Executed)
			}
		}
	}
}

// renderRows prints result rows as a table. Column order is the sorted key
// set of the first row, matching the web view.
func renderRows(w io.Writer, rows []backend.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}

	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(cols))
	for i, col := range cols {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		out := make(table.Row, len(cols))
		for i, col := range cols {
			out[i] = formatValue(row[col])
		}
		t.AppendRow(out)
	}

	t.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(rows))
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

// lastGenerated returns the newest assistant message that carries SQL.
func lastGenerated(conv *chat.Conversation) (chat.Message, bool) {
	messages := conv.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].SQL != "" && !messages[i].Notice {
			return messages[i], true
		}
	}
	return chat.Message{}, false
}

// friendlyError prefers the backend's own detail text over wrapped transport
// noise.
func friendlyError(err error) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Detail != "" {
		return be.Detail
	}
	return err.Error()
}

func printHelp(w io.Writer) {
	help := `
Commands:
  /help             Show this help message
  /sql              Print the last generated SQL statement
  /accept [limit]   Run the last query; limit bounds rows, 0 returns all
  /retry <feedback> Regenerate the last query with extra guidance
  /history          Print the whole conversation
  /sessions         List saved sessions
  /save <name>      Save this conversation under a name
  /open <id>        Reopen a saved session
  /delete <id>      Delete a saved session
  /clear            Start a fresh conversation
  /quit / /exit     Exit

Tips:
  - Plain text is sent as a question; SQL comes back with a preview
  - A refused query (too many rows) allows one /accept with a smaller limit
  - Use arrow keys to navigate input history
`
	_, _ = fmt.Fprintln(w, help)
}
