// ABOUTME: Tests for client tool configuration and token resolution
// ABOUTME: Covers TOML loading, env overrides, and token file handling

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadClient_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "client.toml")

	configContent := `
[server]
url = "http://backend.example.com:8000"

[query]
default_limit = 100
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadClient(configPath)
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}

	if cfg.Server.URL != "http://backend.example.com:8000" {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, "http://backend.example.com:8000")
	}
	if cfg.Query.DefaultLimit != 100 {
		t.Errorf("Query.DefaultLimit = %d, want 100", cfg.Query.DefaultLimit)
	}
}

func TestLoadClient_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadClient(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("LoadClient() error = %v, want nil for missing file", err)
	}

	if cfg.Server.URL != "" {
		t.Errorf("Server.URL = %q, want empty", cfg.Server.URL)
	}
	if cfg.Query.DefaultLimit != 0 {
		t.Errorf("Query.DefaultLimit = %d, want 0", cfg.Query.DefaultLimit)
	}
}

func TestLoadClient_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_SCRY_CLIENT_URL", "https://scry.example.com")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "client.toml")

	configContent := `
[server]
url = "${TEST_SCRY_CLIENT_URL}"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadClient(configPath)
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}

	if cfg.Server.URL != "https://scry.example.com" {
		t.Errorf("Server.URL = %q, want env value", cfg.Server.URL)
	}
}

func TestLoadClient_InvalidScheme(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "client.toml")

	configContent := `
[server]
url = "ftp://backend.example.com"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadClient(configPath)
	if err == nil {
		t.Fatal("LoadClient() expected error for ftp scheme, got nil")
	}
	if !strings.Contains(err.Error(), "http or https") {
		t.Errorf("LoadClient() error = %q, want scheme error", err.Error())
	}
}

func TestLoadClient_NegativeLimit(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "client.toml")

	configContent := `
[query]
default_limit = -5
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadClient(configPath)
	if err == nil {
		t.Fatal("LoadClient() expected error for negative limit, got nil")
	}
}

func TestServerURL_Resolution(t *testing.T) {
	t.Run("env var wins", func(t *testing.T) {
		t.Setenv("SCRY_SERVER", "http://env.example.com")
		cfg := &ClientConfig{Server: ClientServerConfig{URL: "http://file.example.com"}}
		if got := cfg.ServerURL(); got != "http://env.example.com" {
			t.Errorf("ServerURL() = %q, want env value", got)
		}
	})

	t.Run("config file second", func(t *testing.T) {
		t.Setenv("SCRY_SERVER", "")
		cfg := &ClientConfig{Server: ClientServerConfig{URL: "http://file.example.com"}}
		if got := cfg.ServerURL(); got != "http://file.example.com" {
			t.Errorf("ServerURL() = %q, want config value", got)
		}
	})

	t.Run("default last", func(t *testing.T) {
		t.Setenv("SCRY_SERVER", "")
		cfg := &ClientConfig{}
		if got := cfg.ServerURL(); got != DefaultServerURL {
			t.Errorf("ServerURL() = %q, want %q", got, DefaultServerURL)
		}
	})
}

func TestResolveToken(t *testing.T) {
	t.Run("env var wins", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("SCRY_TOKEN", "env-token")
		if got := ResolveToken(); got != "env-token" {
			t.Errorf("ResolveToken() = %q, want %q", got, "env-token")
		}
	})

	t.Run("token file fallback trims whitespace", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)
		t.Setenv("SCRY_TOKEN", "")

		tokenDir := filepath.Join(tmpDir, "scry")
		if err := os.MkdirAll(tokenDir, 0700); err != nil {
			t.Fatalf("failed to create token dir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(tokenDir, "token"), []byte("file-token\n"), 0600); err != nil {
			t.Fatalf("failed to write token file: %v", err)
		}

		if got := ResolveToken(); got != "file-token" {
			t.Errorf("ResolveToken() = %q, want %q", got, "file-token")
		}
	})

	t.Run("nothing set returns empty", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("SCRY_TOKEN", "")
		if got := ResolveToken(); got != "" {
			t.Errorf("ResolveToken() = %q, want empty", got)
		}
	})
}

func TestWriteToken_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("SCRY_TOKEN", "")

	if err := WriteToken("written-token"); err != nil {
		t.Fatalf("WriteToken() error = %v", err)
	}

	if got := ResolveToken(); got != "written-token" {
		t.Errorf("ResolveToken() after WriteToken = %q, want %q", got, "written-token")
	}

	info, err := os.Stat(filepath.Join(tmpDir, "scry", "token"))
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestClearToken(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("SCRY_TOKEN", "")

	if err := WriteToken("short-lived"); err != nil {
		t.Fatalf("WriteToken() error = %v", err)
	}
	if err := ClearToken(); err != nil {
		t.Fatalf("ClearToken() error = %v", err)
	}
	if got := ResolveToken(); got != "" {
		t.Errorf("ResolveToken() after ClearToken = %q, want empty", got)
	}

	// Clearing again is not an error
	if err := ClearToken(); err != nil {
		t.Errorf("ClearToken() on missing file error = %v, want nil", err)
	}
}

func TestClientPath_EnvOverride(t *testing.T) {
	t.Setenv("SCRY_CLIENT_CONFIG", "/etc/scry/client.toml")
	if got := ClientPath(); got != "/etc/scry/client.toml" {
		t.Errorf("ClientPath() = %q, want override", got)
	}

	t.Setenv("SCRY_CLIENT_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/home/u/.config")
	want := filepath.Join("/home/u/.config", "scry", "client.toml")
	if got := ClientPath(); got != want {
		t.Errorf("ClientPath() = %q, want %q", got, want)
	}
}
