// Package simulated implements every platform capability in memory with
// scriptable latencies and failure injection. It backs the engine's tests
// and wakeguardd's demo mode, where no host capabilities are wired.
package simulated

import (
	"context"
	"sync"
	"time"

	"github.com/wakeguard/wakeguard/pkg/platform"
)

// Config scripts the simulated capabilities.
type Config struct {
	// AcquireLatency delays native lock acquisition.
	AcquireLatency time.Duration
	// AcquireErr, when set, makes every native acquisition fail with it.
	AcquireErr error
	// ReleaseLatency delays native lock release.
	ReleaseLatency time.Duration
	// MediaReadyLatency delays the media element's ready-to-play signal.
	MediaReadyLatency time.Duration
	// MediaErr, when set, makes media creation fail with it.
	MediaErr error
	// AudioRunningLatency delays the audio graph's running state.
	AudioRunningLatency time.Duration
	// AudioErr, when set, makes audio graph start fail with it.
	AudioErr error
	// BackgroundTicker controls whether an out-of-main-loop ticker exists.
	BackgroundTicker bool
	// Permissions maps capability names to their query result.
	Permissions map[string]platform.PermissionState
	// Battery is the initial battery state.
	Battery platform.BatteryState
	// Hidden is the initial document visibility.
	Hidden bool
	// Embedded, Mobile, LowPower script the environment heuristics.
	Embedded bool
	Mobile   bool
	LowPower bool
}

// World holds the mutable simulated device state. Tests drive it through
// the Set*/Fire* methods and read it back through the platform ports.
type World struct {
	cfg Config

	mu          sync.Mutex
	battery     platform.BatteryState
	batterySubs map[uint64]func(platform.BatteryState)
	hidden      bool
	visSubs     map[uint64]func(bool)
	unloadSubs  map[uint64]func()
	interaction time.Time
	nextID      uint64

	locks map[*Lock]struct{}
}

// New creates a simulated world with all capabilities present.
func New(cfg Config) *World {
	return &World{
		cfg:         cfg,
		battery:     cfg.Battery,
		batterySubs: map[uint64]func(platform.BatteryState){},
		hidden:      cfg.Hidden,
		visSubs:     map[uint64]func(bool){},
		unloadSubs:  map[uint64]func(){},
		interaction: time.Now(),
		locks:       map[*Lock]struct{}{},
	}
}

// Provider returns the platform bundle backed by this world.
func (w *World) Provider() *platform.Provider {
	return &platform.Provider{
		Native:      (*locker)(w),
		Media:       (*media)(w),
		Audio:       (*audio)(w),
		Tickers:     (*tickers)(w),
		Permissions: (*permissions)(w),
		Battery:     (*battery)(w),
		Visibility:  (*visibility)(w),
		Environment: (*environment)(w),
	}
}

// SetBattery updates the battery state and notifies subscribers.
func (w *World) SetBattery(state platform.BatteryState) {
	w.mu.Lock()
	w.battery = state
	subs := make([]func(platform.BatteryState), 0, len(w.batterySubs))
	for _, fn := range w.batterySubs {
		subs = append(subs, fn)
	}
	w.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// SetHidden updates document visibility and notifies subscribers.
func (w *World) SetHidden(hidden bool) {
	w.mu.Lock()
	w.hidden = hidden
	subs := make([]func(bool), 0, len(w.visSubs))
	for _, fn := range w.visSubs {
		subs = append(subs, fn)
	}
	w.mu.Unlock()

	for _, fn := range subs {
		fn(hidden)
	}
}

// FireUnload simulates the document unloading.
func (w *World) FireUnload() {
	w.mu.Lock()
	subs := make([]func(), 0, len(w.unloadSubs))
	for _, fn := range w.unloadSubs {
		subs = append(subs, fn)
	}
	w.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Touch records a user interaction now.
func (w *World) Touch() {
	w.mu.Lock()
	w.interaction = time.Now()
	w.mu.Unlock()
}

// SetLastInteraction backdates the most recent user interaction.
func (w *World) SetLastInteraction(at time.Time) {
	w.mu.Lock()
	w.interaction = at
	w.mu.Unlock()
}

// RevokeAllLocks simulates the platform revoking every native lock.
func (w *World) RevokeAllLocks() {
	w.mu.Lock()
	locks := make([]*Lock, 0, len(w.locks))
	for l := range w.locks {
		locks = append(locks, l)
	}
	w.mu.Unlock()

	for _, l := range locks {
		l.Revoke()
	}
}

// ActiveLockCount reports how many native locks are currently held.
func (w *World) ActiveLockCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.locks)
}

func (w *World) addSub(register func(id uint64)) (remove func()) {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	register(id)
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		delete(w.batterySubs, id)
		delete(w.visSubs, id)
		delete(w.unloadSubs, id)
		w.mu.Unlock()
	}
}

// sleep waits the given latency, honoring ctx cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
