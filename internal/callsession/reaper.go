package callsession

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultTTL          = 10 * time.Minute
	defaultReapInterval = time.Minute
)

// ReaperConfig configures a [Reaper].
type ReaperConfig struct {
	// Store is swept for expired sessions.
	Store Expirer

	// TTL is how long a session may wait for confirmation. Defaults to 10
	// minutes if zero.
	TTL time.Duration

	// Interval is how often the store is swept. Defaults to 1 minute if zero.
	Interval time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Reaper periodically removes sessions abandoned by callers who hung up
// before confirming.
//
// All methods are safe for concurrent use.
type Reaper struct {
	store    Expirer
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// NewReaper creates a new [Reaper] with the given configuration.
func NewReaper(cfg ReaperConfig) *Reaper {
	r := &Reaper{
		store:    cfg.Store,
		ttl:      cfg.TTL,
		interval: cfg.Interval,
		now:      cfg.Now,
		done:     make(chan struct{}),
	}
	if r.ttl <= 0 {
		r.ttl = defaultTTL
	}
	if r.interval <= 0 {
		r.interval = defaultReapInterval
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run sweeps the store every interval until ctx is cancelled or
// [Reaper.Stop] is called. It always returns nil so it can run inside an
// errgroup next to the HTTP server.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.done:
			return nil
		case <-ticker.C:
			if _, err := r.ReapNow(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("session reap failed", "err", err)
			}
		}
	}
}

// ReapNow removes every session older than the TTL immediately and returns
// how many were removed.
func (r *Reaper) ReapNow(ctx context.Context) (int, error) {
	n, err := r.store.DeleteOlderThan(ctx, r.now().Add(-r.ttl))
	if n > 0 {
		slog.Info("expired call sessions removed", "count", n, "ttl", r.ttl)
	}
	return n, err
}

// Stop halts the reap loop. Safe to call multiple times.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}
