// ABOUTME: Configuration loading and parsing for scry-web
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the corresponding field is absent.
const (
	DefaultBackendTimeout = 60 * time.Second
	DefaultSessionTTL     = 24 * time.Hour
	DefaultPollInterval   = 30 * time.Second
	DefaultPreviewLimit   = 5
)

// Config represents the complete scry-web configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Chat      ChatConfig      `yaml:"chat"`
	Admin     AdminConfig     `yaml:"admin"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the browser-facing listener configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// BackendConfig points at the SQL assistant REST service
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// SessionsConfig holds the browser-session store configuration
type SessionsConfig struct {
	Path string        `yaml:"path"`
	TTL  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TTLRaw string `yaml:"ttl"`
}

// ChatConfig holds chat behavior tuning
type ChatConfig struct {
	// PreviewLimit is the number of rows fetched for the post-generation
	// preview. Zero selects the default.
	PreviewLimit int `yaml:"preview_limit"`
}

// AdminConfig holds admin console tuning
type AdminConfig struct {
	PollInterval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	PollIntervalRaw string `yaml:"poll_interval"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	CertFile  string `yaml:"cert_file"` // TLS cert file (generate via: tailscale cert <hostname>)
	KeyFile   string `yaml:"key_file"`  // TLS key file
	Funnel    bool   `yaml:"funnel"`    // Enable public Funnel (implies HTTPS)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// A listen address is required unless Tailscale provides the listener
	if !c.Tailscale.Enabled && c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.url must use http or https scheme")
	}

	if c.Sessions.Path == "" {
		return fmt.Errorf("sessions.path is required")
	}

	if c.Chat.PreviewLimit < 0 {
		return fmt.Errorf("chat.preview_limit must not be negative")
	}

	return nil
}

// applyDefaults fills in defaults for optional fields left unset.
func (c *Config) applyDefaults() {
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = DefaultSessionTTL
	}
	if c.Admin.PollInterval == 0 {
		c.Admin.PollInterval = DefaultPollInterval
	}
	if c.Chat.PreviewLimit == 0 {
		c.Chat.PreviewLimit = DefaultPreviewLimit
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.TimeoutRaw != "" {
		cfg.Backend.Timeout, err = time.ParseDuration(cfg.Backend.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing backend.timeout %q: %w", cfg.Backend.TimeoutRaw, err)
		}
	}

	if cfg.Sessions.TTLRaw != "" {
		cfg.Sessions.TTL, err = time.ParseDuration(cfg.Sessions.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing sessions.ttl %q: %w", cfg.Sessions.TTLRaw, err)
		}
	}

	if cfg.Admin.PollIntervalRaw != "" {
		cfg.Admin.PollInterval, err = time.ParseDuration(cfg.Admin.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing admin.poll_interval %q: %w", cfg.Admin.PollIntervalRaw, err)
		}
	}

	return nil
}
