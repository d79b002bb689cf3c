// ABOUTME: Client-side configuration shared by the scry terminal tools
// ABOUTME: Loads TOML config from the XDG path plus env and token-file resolution

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultServerURL is where the SQL assistant service listens in development.
const DefaultServerURL = "http://localhost:8000"

// ClientConfig holds settings for scry-tui and scry-admin.
type ClientConfig struct {
	Server ClientServerConfig `toml:"server"`
	Query  QueryConfig        `toml:"query"`
}

// ClientServerConfig points at the SQL assistant REST service.
type ClientServerConfig struct {
	URL string `toml:"url"`
}

// QueryConfig holds query execution defaults.
type QueryConfig struct {
	// DefaultLimit caps accepted query results. Zero means all rows.
	DefaultLimit int `toml:"default_limit"`
}

// ClientPath returns the path to the client config file.
// Priority: SCRY_CLIENT_CONFIG env var > XDG_CONFIG_HOME/scry/client.toml > ~/.config/scry/client.toml
func ClientPath() string {
	if p := os.Getenv("SCRY_CLIENT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(configDir(), "scry", "client.toml")
}

// LoadClient reads the client config from the given path, expanding
// environment variables. A missing file is not an error; the tools run
// fine on defaults and environment overrides alone.
func LoadClient(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ClientConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg ClientConfig
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Server.URL != "" {
		u, err := url.Parse(cfg.Server.URL)
		if err != nil {
			return nil, fmt.Errorf("server.url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("server.url must use http or https scheme")
		}
	}

	if cfg.Query.DefaultLimit < 0 {
		return nil, fmt.Errorf("query.default_limit must not be negative")
	}

	return &cfg, nil
}

// ServerURL resolves the service URL.
// Priority: SCRY_SERVER env var > config file > DefaultServerURL.
func (c *ClientConfig) ServerURL() string {
	if v := os.Getenv("SCRY_SERVER"); v != "" {
		return v
	}
	if c.Server.URL != "" {
		return c.Server.URL
	}
	return DefaultServerURL
}

// TokenPath returns the path of the saved bearer token file.
func TokenPath() string {
	return filepath.Join(configDir(), "scry", "token")
}

// ResolveToken finds a bearer token for the terminal tools.
// Priority: SCRY_TOKEN env var > token file. Returns "" when neither is set.
func ResolveToken() string {
	if token := os.Getenv("SCRY_TOKEN"); token != "" {
		return token
	}

	data, err := os.ReadFile(TokenPath())
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

// WriteToken persists a bearer token to the token file so later
// invocations can reuse a sign-in.
func WriteToken(token string) error {
	path := TokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// ClearToken removes the saved token file. Missing files are fine.
func ClearToken() error {
	err := os.Remove(TokenPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// configDir returns the XDG config base directory.
func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".config")
}
