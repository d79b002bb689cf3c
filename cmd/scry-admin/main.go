// ABOUTME: Admin CLI for the SQL assistant backend
// ABOUTME: Manages user accounts, watches the directory, and fetches schema analysis

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/2389/scry/internal/admin"
	"github.com/2389/scry/internal/auth"
	"github.com/2389/scry/internal/backend"
	"github.com/2389/scry/internal/config"
)

const banner = `
  ___  ___ _ __ _   _        __ _  __| |_ __ ___ (_)_ __
 / __|/ __| '__| | | |_____ / _' |/ _' | '_ ' _ \| | '_ \
 \__ \ (__| |  | |_| |_____| (_| | (_| | | | | | | | | | |
 |___/\___|_|   \__, |      \__,_|\__,_|_| |_| |_|_|_| |_|
                |___/
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	clientCfg, err := config.LoadClient(config.ClientPath())
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	server := clientCfg.ServerURL()
	token := config.ResolveToken()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "login":
		err = cmdLogin(ctx, server, args)
	case "logout":
		err = cmdLogout()
	case "status":
		err = cmdStatus(ctx, server, token)
	case "users":
		err = cmdUsers(ctx, server, token, args)
	case "analyze":
		err = cmdAnalyze(ctx, server, token)
	case "watch":
		err = cmdWatch(ctx, server, token, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: scry-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  login                    Sign in and save a token for later commands")
	fmt.Println("  logout                   Remove the saved token")
	fmt.Println("  status                   Show backend reachability and token state")
	fmt.Println("  users                    List user accounts")
	fmt.Println("  users list               List user accounts")
	fmt.Println("  users add                Create an account")
	fmt.Println("  users rm <username>      Remove an account")
	fmt.Println("  users update <id>        Change an account's fields")
	fmt.Println("  analyze                  Fetch the schema usefulness report")
	fmt.Println("  watch                    Redraw the user list on an interval")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  SCRY_SERVER              Backend API URL (default: http://localhost:8000)")
	fmt.Println("  SCRY_TOKEN               Bearer token (overrides the saved token file)")
	fmt.Println("  SCRY_CLIENT_CONFIG       Client config path (default: ~/.config/scry/client.toml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  scry-admin login --user admin")
	fmt.Println("  scry-admin users add --user carol --password s3cret --schema-file tables.sql")
	fmt.Println("  scry-admin users update 3 --role admin")
	fmt.Println("  scry-admin watch --interval 10s")
	fmt.Println()
}

// discardLogger silences the service layer; this CLI prints its own output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newClient builds an authenticated backend client.
func newClient(server, token string) *backend.Client {
	client := backend.New(server, &http.Client{Timeout: 60 * time.Second}, discardLogger())
	if token != "" {
		client = client.WithToken(token)
	}
	return client
}

func newService(server, token string) *admin.Service {
	return admin.NewService(newClient(server, token), discardLogger())
}

// cmdLogin signs in with a username and password and saves the token file.
func cmdLogin(ctx context.Context, server string, args []string) error {
	var username string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--user", "-u":
			if i+1 < len(args) {
				username = args[i+1]
				i++
			}
		}
	}

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

	client := newClient(server, "")
	login, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %s", friendlyError(err))
	}

	if err := config.WriteToken(login.Token); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Signed in as %s (%s)\n", login.Username, login.Role)
	green.Printf("✓ Saved token: %s\n", config.TokenPath())

	if login.Role != auth.RoleAdmin {
		color.Yellow("Note: this account is not an admin; users and analyze will be refused.")
	}
	return nil
}

// cmdLogout removes the saved token file.
func cmdLogout() error {
	if err := config.ClearToken(); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Removed token: %s\n", config.TokenPath())
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

// cmdStatus shows backend reachability and what the saved token can do.
func cmdStatus(ctx context.Context, server, token string) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	client := newClient(server, token)

	if err := client.Health(ctx); err != nil {
		yellow.Printf("  Backend:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		fmt.Println()
		return nil
	}

	green.Printf("  Backend:  ")
	fmt.Printf("healthy at %s\n", server)

	if token == "" {
		yellow.Printf("  Token:    ")
		fmt.Println("(none - run scry-admin login)")
		fmt.Println()
		return nil
	}

	green.Printf("  Token:    ")
	fmt.Println("present")

	users, err := newService(server, token).ListUsers(ctx)
	if err != nil {
		yellow.Printf("  Admin:    ")
		color.Red("refused (%s)\n", friendlyError(err))
	} else {
		green.Printf("  Admin:    ")
		fmt.Printf("ok (%d accounts)\n", len(users))
	}

	fmt.Println()
	return nil
}

// cmdUsers handles users subcommands.
func cmdUsers(ctx context.Context, server, token string, args []string) error {
	if token == "" {
		return fmt.Errorf("no token; run scry-admin login first")
	}

	// Default to list
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdUsersList(ctx, server, token)
	case "add", "create":
		return cmdUsersAdd(ctx, server, token, args)
	case "rm", "remove", "delete":
		return cmdUsersRemove(ctx, server, token, args)
	case "update":
		return cmdUsersUpdate(ctx, server, token, args)
	default:
		return fmt.Errorf("unknown users subcommand: %s (use list, add, rm, update)", subcmd)
	}
}

func cmdUsersList(ctx context.Context, server, token string) error {
	users, err := newService(server, token).ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %s", friendlyError(err))
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  User Accounts")
	cyan.Println("  -------------")

	if len(users) == 0 {
		fmt.Println("  (no accounts)")
		fmt.Println()
		return nil
	}

	printUsersTable(os.Stdout, users)
	fmt.Println()
	return nil
}

func printUsersTable(w io.Writer, users []backend.User) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tUSERNAME\tROLE\tSCHEMA\tCREATED")
	fmt.Fprintln(tw, "  --\t--------\t----\t------\t-------")

	for _, u := range users {
		schema := truncate(strings.ReplaceAll(u.Schema, "\n", " "), 32)
		created := u.CreatedAt
		if t, err := time.Parse(backend.TimeFormat, u.CreatedAt); err == nil {
			created = t.Format("Jan 02 15:04")
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, schema, created)
	}
	tw.Flush()
}

func cmdUsersAdd(ctx context.Context, server, token string, args []string) error {
	var params backend.AddUserParams
	params.Role = auth.RoleUser

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--user", "-u":
			if i+1 < len(args) {
				params.Username = args[i+1]
				i++
			}
		case "--password", "-p":
			if i+1 < len(args) {
				params.Password = args[i+1]
				i++
			}
		case "--role", "-r":
			if i+1 < len(args) {
				params.Role = args[i+1]
				i++
			}
		case "--schema", "-s":
			if i+1 < len(args) {
				params.Schema = args[i+1]
				i++
			}
		case "--schema-file", "-f":
			if i+1 < len(args) {
				data, err := os.ReadFile(args[i+1])
				if err != nil {
					return fmt.Errorf("reading schema file: %w", err)
				}
				params.Schema = string(data)
				i++
			}
		case "--admin-schema":
			if i+1 < len(args) {
				params.AdminSchema = args[i+1]
				i++
			}
		case "--admin-schema-file":
			if i+1 < len(args) {
				data, err := os.ReadFile(args[i+1])
				if err != nil {
					return fmt.Errorf("reading admin schema file: %w", err)
				}
				params.AdminSchema = string(data)
				i++
			}
		}
	}

	if params.Username == "" || params.Password == "" || params.Schema == "" {
		return fmt.Errorf("usage: users add --user <name> --password <pw> --schema <sql> (or --schema-file <path>)")
	}

	id, err := newService(server, token).AddUser(ctx, params)
	if err != nil {
		return fmt.Errorf("creating user: %s", friendlyError(err))
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created user %s (id %d)\n", params.Username, id)
	fmt.Printf("  Role:   %s\n", params.Role)
	fmt.Printf("  Schema: %s\n", truncate(strings.ReplaceAll(params.Schema, "\n", " "), 60))

	return nil
}

func cmdUsersRemove(ctx context.Context, server, token string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: users rm <username>")
	}

	username := args[0]
	if err := newService(server, token).RemoveUser(ctx, username); err != nil {
		return fmt.Errorf("removing user: %s", friendlyError(err))
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Removed user %s\n", username)
	return nil
}

func cmdUsersUpdate(ctx context.Context, server, token string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: users update <id> [--user <name>] [--password <pw>] [--role <role>] [--schema <sql>]")
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("not a user id: %s", args[0])
	}
	args = args[1:]

	var params backend.UpdateUserParams
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--user", "-u":
			if i+1 < len(args) {
				params.Username = args[i+1]
				i++
			}
		case "--password", "-p":
			if i+1 < len(args) {
				params.Password = args[i+1]
				i++
			}
		case "--role", "-r":
			if i+1 < len(args) {
				params.Role = args[i+1]
				i++
			}
		case "--schema", "-s":
			if i+1 < len(args) {
				params.Schema = args[i+1]
				i++
			}
		case "--schema-file", "-f":
			if i+1 < len(args) {
				data, err := os.ReadFile(args[i+1])
				if err != nil {
					return fmt.Errorf("reading schema file: %w", err)
				}
				params.Schema = string(data)
				i++
			}
		case "--admin-schema":
			if i+1 < len(args) {
				params.AdminSchema = args[i+1]
				i++
			}
		}
	}

	updated, err := newService(server, token).UpdateUser(ctx, id, params)
	if err != nil {
		return fmt.Errorf("updating user: %s", friendlyError(err))
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Updated user %s (id %d)\n", updated.Username, updated.ID)
	fmt.Printf("  Role:   %s\n", updated.Role)
	fmt.Printf("  Schema: %s\n", truncate(strings.ReplaceAll(updated.Schema, "\n", " "), 60))

	return nil
}

// cmdAnalyze fetches and prints the schema usefulness report.
func cmdAnalyze(ctx context.Context, server, token string) error {
	if token == "" {
		return fmt.Errorf("no token; run scry-admin login first")
	}

	analysis, err := newService(server, token).Analyze(ctx)
	if err != nil {
		return fmt.Errorf("analyzing schema: %s", friendlyError(err))
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Schema Analysis")
	cyan.Println("  ---------------")
	fmt.Println()

	printAnalysisSection("Useful tables", analysis.UsefulTables)
	printAnalysisSection("Unused tables", analysis.UselessTables)
	printAnalysisSection("Unused columns", analysis.UselessColumns)
	printAnalysisSection("Recommended indexes", analysis.RecommendedIndexes)
	printAnalysisSection("Tables safe to drop", analysis.SuggestedDropTables)

	if analysis.Summary != "" {
		cyan.Println("  Summary")
		fmt.Printf("  %s\n", analysis.Summary)
		fmt.Println()
	}

	return nil
}

func printAnalysisSection(title string, items []string) {
	yellow := color.New(color.FgYellow)
	yellow.Printf("  %s:\n", title)
	if len(items) == 0 {
		fmt.Println("    (none)")
	}
	for _, item := range items {
		fmt.Printf("    - %s\n", item)
	}
	fmt.Println()
}

// cmdWatch redraws the user table on a fixed interval until interrupted.
func cmdWatch(ctx context.Context, server, token string, args []string) error {
	if token == "" {
		return fmt.Errorf("no token; run scry-admin login first")
	}

	interval := 30 * time.Second
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--interval", "-i":
			if i+1 < len(args) {
				d, err := time.ParseDuration(args[i+1])
				if err != nil {
					return fmt.Errorf("invalid interval: %w", err)
				}
				interval = d
				i++
			}
		}
	}
	if interval < time.Second {
		return fmt.Errorf("interval must be at least 1s")
	}

	poller := admin.NewPoller(newService(server, token), interval, discardLogger())
	poller.OnUsers = func(users []backend.User) {
		fmt.Print("\033[H\033[2J")
		cyan := color.New(color.FgCyan)
		cyan.Printf("  User Accounts (every %s, Ctrl+C to stop)\n", interval)
		cyan.Println("  ----------------------------------------")
		printUsersTable(os.Stdout, users)
		color.HiBlack("  Last updated: %s", time.Now().Format("15:04:05"))
	}
	poller.OnError = func(err error) {
		color.Red("  refresh failed: %s\n", friendlyError(err))
	}

	poller.Start(ctx)
	<-ctx.Done()
	poller.Stop()

	fmt.Println()
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
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
