// Package config handles configuration loading for the scry tools.
//
// # Overview
//
// scry-web loads YAML with environment variable expansion, validation, and
// sensible defaults. The terminal tools (scry-tui, scry-admin) load a small
// TOML file plus environment overrides and a saved token file.
//
// # Server Configuration File
//
// Default locations (in order):
//
//  1. Path from SCRY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/scry/web.yaml
//  3. ~/.config/scry/web.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	tailscale:
//	  auth_key: "${TS_AUTHKEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	backend:
//	  timeout: "60s"
//	sessions:
//	  ttl: "24h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  listen_addr: "localhost:8443"
//
// Backend service:
//
//	backend:
//	  url: "http://localhost:8000"
//	  timeout: "60s"
//
// Browser sessions:
//
//	sessions:
//	  path: "~/.local/share/scry/sessions.db"
//	  ttl: "24h"
//
// Chat and admin behavior:
//
//	chat:
//	  preview_limit: 5
//	admin:
//	  poll_interval: "30s"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "scry"
//	  auth_key: "${TS_AUTHKEY}"
//	  funnel: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - A listen address is present unless Tailscale provides the listener
//   - The backend URL parses and uses http or https
//   - A session store path is present
//   - Duration strings parse
//
// # Client Configuration
//
// The terminal tools read ~/.config/scry/client.toml:
//
//	[server]
//	url = "http://localhost:8000"
//
//	[query]
//	default_limit = 100
//
// SCRY_SERVER overrides the URL; SCRY_TOKEN overrides the token saved by
// `scry-admin login` at ~/.config/scry/token.
package config
