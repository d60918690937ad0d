package strategy

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Sentinel represents one active sleep-prevention hold. It is created by a
// strategy on successful acquisition and owned by that strategy until
// released. The released flag is monotonic: once true it never reverts.
type Sentinel struct {
	id       string
	kind     Kind
	strategy string

	mu       sync.Mutex
	released bool
	subs     map[uint64]func(*Sentinel)
	nextID   uint64

	// teardown frees the underlying platform resource. Skipped when the
	// platform already revoked the hold.
	teardown func(context.Context) error
	// onSettle removes the sentinel from its strategy's active set.
	onSettle func(*Sentinel)
}

func newSentinel(kind Kind, strategyName string, teardown func(context.Context) error) *Sentinel {
	return &Sentinel{
		id:       uuid.NewString(),
		kind:     kind,
		strategy: strategyName,
		subs:     map[uint64]func(*Sentinel){},
		teardown: teardown,
	}
}

// ID returns the unique sentinel identifier.
func (s *Sentinel) ID() string { return s.id }

// Kind returns the lock kind this sentinel holds.
func (s *Sentinel) Kind() Kind { return s.kind }

// StrategyName returns the name of the owning strategy.
func (s *Sentinel) StrategyName() string { return s.strategy }

// Released reports whether the hold has been freed.
func (s *Sentinel) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// OnRelease registers fn to be called exactly once when the sentinel is
// released, whichever path triggers it. If the sentinel is already
// released, fn fires immediately. The returned function removes the
// subscription.
func (s *Sentinel) OnRelease(fn func(*Sentinel)) (remove func()) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		fn(s)
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Release frees the hold. It is idempotent: the first call tears down the
// platform resource, notifies every current subscriber exactly once and
// clears the subscriber set; subsequent calls are no-ops. The sentinel is
// terminal-released even when teardown fails; the teardown error is
// returned for logging only.
func (s *Sentinel) Release(ctx context.Context) error {
	return s.settle(ctx, true)
}

// revoke marks the sentinel released without touching the platform
// resource. Used when the platform revoked the hold externally.
func (s *Sentinel) revoke() {
	_ = s.settle(context.Background(), false)
}

func (s *Sentinel) settle(ctx context.Context, runTeardown bool) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	subs := make([]func(*Sentinel), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subs = map[uint64]func(*Sentinel){}
	s.mu.Unlock()

	var err error
	if runTeardown && s.teardown != nil {
		err = s.teardown(ctx)
	}
	if s.onSettle != nil {
		s.onSettle(s)
	}
	for _, fn := range subs {
		fn(s)
	}
	return err
}
