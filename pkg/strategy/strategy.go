// Package strategy defines the capability strategy contract, the sentinel
// lifecycle, and the four interchangeable strategy variants the
// orchestrator falls back across.
package strategy

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wakeguard/wakeguard/pkg/observability/logger"
)

// Kind selects what the hold prevents from sleeping.
type Kind string

const (
	// KindScreen keeps the display awake.
	KindScreen Kind = "screen"
	// KindSystem keeps the whole device awake.
	KindSystem Kind = "system"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindScreen || k == KindSystem
}

// Options tunes a single acquisition attempt.
type Options struct {
	// Timeout bounds the acquisition; past it the attempt is abandoned and
	// classified as TIMEOUT. Zero means only the caller's context bounds it.
	Timeout time.Duration

	// RetryAttempts is informational to the caller. The fallback chain's
	// depth is the effective retry budget; no strategy re-attempts itself.
	RetryAttempts int
}

// Strategy is a pluggable provider of one sleep-prevention mechanism.
// A strategy may own any number of concurrently active sentinels.
type Strategy interface {
	// Name returns the stable strategy name used in diagnostics and
	// notifications.
	Name() string

	// Priority orders the fallback chain; lower values are tried first.
	Priority() int

	// IsSupported is a side-effect-free capability probe. It must return a
	// definitive boolean even when the platform capability is absent, and
	// must never panic.
	IsSupported() bool

	// Request attempts an acquisition and returns a new sentinel on
	// success. Failures are always classified *Error values.
	Request(ctx context.Context, kind Kind, opts Options) (*Sentinel, error)

	// ReleaseAll releases every sentinel the strategy currently owns.
	// Individual release failures are logged and do not block the others;
	// the active set is empty afterward regardless of outcomes.
	ReleaseAll(ctx context.Context) error
}

// activeSet tracks the sentinels a strategy currently owns.
type activeSet struct {
	mu        sync.Mutex
	sentinels map[string]*Sentinel
}

func (a *activeSet) add(s *Sentinel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sentinels == nil {
		a.sentinels = map[string]*Sentinel{}
	}
	a.sentinels[s.ID()] = s
	s.onSettle = a.remove
}

func (a *activeSet) remove(s *Sentinel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sentinels, s.ID())
}

func (a *activeSet) snapshot() []*Sentinel {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Sentinel, 0, len(a.sentinels))
	for _, s := range a.sentinels {
		out = append(out, s)
	}
	return out
}

func (a *activeSet) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sentinels)
}

// releaseAll settles every owned sentinel concurrently, logging per-item
// failures and continuing. The set is empty when it returns.
func (a *activeSet) releaseAll(ctx context.Context, strategyName string, log logger.Logger) error {
	sentinels := a.snapshot()
	var g errgroup.Group
	for _, s := range sentinels {
		g.Go(func() error {
			if err := s.Release(ctx); err != nil {
				log.Warn("sentinel release failed",
					"strategy", strategyName,
					"sentinel_id", s.ID(),
					"error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// runWithTimeout races fn against the acquisition deadline. Whichever
// settles first wins; a deadline or cancellation surfaces as the context
// error so classification maps it to TIMEOUT.
func runWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		return timeoutCtx.Err()
	}
}
