// ABOUTME: Server lifecycle tests: serve, context-driven shutdown, listen errors
// ABOUTME: Tailscale paths are covered at the option-resolution level only

package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/2389/scry/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// freeAddr finds an address that was just listenable.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestRunAndShutdown(t *testing.T) {
	addr := freeAddr(t)
	cfg := &config.Config{Server: config.ServerConfig{ListenAddr: addr}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := New(cfg, mux, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx)
	}()

	// Give it time to start
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://" + addr + "/ping")
	if err != nil {
		t.Fatalf("ping request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ping status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("server did not shut down in time")
	}
}

func TestRunFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to grab a port: %v", err)
	}
	defer ln.Close()

	cfg := &config.Config{Server: config.ServerConfig{ListenAddr: ln.Addr().String()}}
	srv := New(cfg, http.NewServeMux(), testLogger())

	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("Run() on a taken port succeeded")
	} else if !strings.Contains(err.Error(), "listening on") {
		t.Errorf("Run() error = %v, want a listen failure", err)
	}
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")

	if _, err := resolveTailscaleAuthKey(""); err == nil {
		t.Error("missing auth key not reported")
	}

	key, err := resolveTailscaleAuthKey("tskey-configured")
	if err != nil || key != "tskey-configured" {
		t.Errorf("configured key = %q, %v", key, err)
	}

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	if err != nil || key != "tskey-env" {
		t.Errorf("env key = %q, %v", key, err)
	}
	key, err = resolveTailscaleAuthKey("tskey-configured")
	if err != nil || key != "tskey-configured" {
		t.Errorf("configured key should win over env, got %q, %v", key, err)
	}
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/scry/ts")
	if err != nil || dir != "/var/lib/scry/ts" {
		t.Errorf("configured dir = %q, %v", dir, err)
	}

	dir, err = resolveTailscaleStateDir("")
	if err != nil {
		t.Fatalf("default dir: %v", err)
	}
	if !strings.HasSuffix(dir, "scry/tailscale") {
		t.Errorf("default dir = %q, want a scry/tailscale suffix", dir)
	}
}
