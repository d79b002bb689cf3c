// ABOUTME: Cancellable fixed-interval refresh of the user list
// ABOUTME: Owns its goroutine; delivery stops on ctx cancel or Stop

package admin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/scry/internal/backend"
)

// UserLister is the one call the poller makes. Both *Service and
// *backend.Client satisfy it.
type UserLister interface {
	ListUsers(ctx context.Context) ([]backend.User, error)
}

// Poller refreshes the user list on a fixed interval and hands each result
// to a callback. It is owned by whoever needs the refresh: Start ties it to
// that owner's context, and Stop (or the context ending) halts delivery.
type Poller struct {
	lister   UserLister
	interval time.Duration
	logger   *slog.Logger

	// OnUsers receives each successful fetch. Set before Start.
	OnUsers func(users []backend.User)

	// OnError receives fetch failures. Optional; failures are logged anyway.
	OnError func(err error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewPoller creates a poller. interval must be positive.
func NewPoller(lister UserLister, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		lister:   lister,
		interval: interval,
		logger:   logger.With("component", "admin-poller"),
	}
}

// Start begins polling: one fetch immediately, then one per interval.
// Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn("poller already running")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(ctx, p.done)
}

// Stop halts polling and waits for the loop to exit. Safe to call twice.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.fetch(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("poller stopped")
			return
		case <-ticker.C:
			p.fetch(ctx)
		}
	}
}

func (p *Poller) fetch(ctx context.Context) {
	users, err := p.lister.ListUsers(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("user list refresh failed", "error", err)
		if p.OnError != nil {
			p.OnError(err)
		}
		return
	}

	if p.OnUsers != nil {
		p.OnUsers(users)
	}
}
