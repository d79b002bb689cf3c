// ABOUTME: Standalone stub of the SQL assistant backend for local development
// ABOUTME: Usage: scry-stubapi [-addr localhost:8000] [-max-rows 200] [-rate 30]

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/2389/scry/internal/stub"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", "localhost:8000", "Listen address")
	maxRows := flag.Int("max-rows", stub.DefaultMaxRows, "Row count above which run-query refuses")
	ratePerMin := flag.Int("rate", stub.DefaultRatePerMinute, "Generate-sql calls allowed per minute per client")
	tokenTTL := flag.Duration("ttl", stub.DefaultTokenTTL, "Bearer token lifetime")
	flag.Parse()

	if err := run(*addr, *maxRows, *ratePerMin, *tokenTTL); err != nil {
		log.Fatal(err)
	}
}

func run(addr string, maxRows, ratePerMin int, tokenTTL time.Duration) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var secret []byte
	if s := os.Getenv("SCRY_STUB_SECRET"); s != "" {
		secret = []byte(s)
	}

	api := stub.New(stub.Config{
		Secret:        secret,
		TokenTTL:      tokenTTL,
		MaxRows:       maxRows,
		RatePerMinute: ratePerMin,
	}, logger)

	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "stub backend listening on %s\n", addr)
		fmt.Fprintf(os.Stderr, "accounts: admin/admin123, demo/demo123, analyst/analyst123\n")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
