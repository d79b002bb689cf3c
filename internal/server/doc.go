// Package server owns the HTTP serving lifecycle for scry-web: listener
// setup (plain TCP, or a tsnet node with optional Funnel or TLS), the run
// loop, and graceful shutdown.
package server
