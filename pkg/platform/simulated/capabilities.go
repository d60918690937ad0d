package simulated

import (
	"context"
	"sync"
	"time"

	"github.com/wakeguard/wakeguard/pkg/platform"
)

// Lock is a simulated native sleep-inhibition handle.
type Lock struct {
	world *World
	kind  string

	mu       sync.Mutex
	released bool
	onRel    map[uint64]func()
	nextID   uint64
}

type locker World

func (l *locker) Acquire(ctx context.Context, kind string) (platform.NativeLock, error) {
	w := (*World)(l)
	if err := sleep(ctx, w.cfg.AcquireLatency); err != nil {
		return nil, err
	}
	if w.cfg.AcquireErr != nil {
		return nil, w.cfg.AcquireErr
	}

	lock := &Lock{world: w, kind: kind, onRel: map[uint64]func(){}}
	w.mu.Lock()
	w.locks[lock] = struct{}{}
	w.mu.Unlock()
	return lock, nil
}

// Release frees the simulated hold.
func (l *Lock) Release(ctx context.Context) error {
	if err := sleep(ctx, l.world.cfg.ReleaseLatency); err != nil {
		return err
	}
	l.settle()
	return nil
}

// Revoke simulates the platform releasing the lock externally and fires
// the registered release callbacks.
func (l *Lock) Revoke() {
	for _, fn := range l.settle() {
		fn()
	}
}

// settle marks the lock released and returns the callbacks to fire.
func (l *Lock) settle() []func() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	fns := make([]func(), 0, len(l.onRel))
	for _, fn := range l.onRel {
		fns = append(fns, fn)
	}
	l.onRel = map[uint64]func(){}
	l.mu.Unlock()

	l.world.mu.Lock()
	delete(l.world.locks, l)
	l.world.mu.Unlock()
	return fns
}

func (l *Lock) OnRelease(fn func()) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.onRel[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.onRel, id)
	}
}

// Released reports whether the simulated lock has been freed.
func (l *Lock) Released() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

type media World

func (m *media) Create(ctx context.Context) (platform.MediaHandle, error) {
	w := (*World)(m)
	if w.cfg.MediaErr != nil {
		return nil, w.cfg.MediaErr
	}
	return &mediaHandle{world: w}, nil
}

type mediaHandle struct {
	world *World

	mu        sync.Mutex
	destroyed bool
}

func (h *mediaHandle) Play(ctx context.Context) error {
	return sleep(ctx, h.world.cfg.MediaReadyLatency)
}

func (h *mediaHandle) Destroy(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed = true
	return nil
}

type audio World

func (a *audio) Start(ctx context.Context) (platform.AudioHandle, error) {
	w := (*World)(a)
	if w.cfg.AudioErr != nil {
		return nil, w.cfg.AudioErr
	}
	return &audioHandle{world: w}, nil
}

type audioHandle struct {
	world *World

	mu   sync.Mutex
	torn bool
}

func (h *audioHandle) WaitRunning(ctx context.Context) error {
	return sleep(ctx, h.world.cfg.AudioRunningLatency)
}

func (h *audioHandle) Teardown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.torn = true
	return nil
}

type tickers World

func (t *tickers) NewBackgroundTicker() (platform.Ticker, error) {
	if !(*World)(t).cfg.BackgroundTicker {
		return nil, platform.ErrNotSupported
	}
	return newGoroutineTicker(), nil
}

func (t *tickers) NewForegroundTicker() platform.Ticker {
	return newGoroutineTicker()
}

// goroutineTicker runs fn on a dedicated goroutine. Both simulated ticker
// flavors use it; the distinction the engine cares about is availability,
// which Config.BackgroundTicker controls.
type goroutineTicker struct {
	mu      sync.Mutex
	ticker  *time.Ticker
	stopped chan struct{}
	started bool
}

func newGoroutineTicker() *goroutineTicker {
	return &goroutineTicker{}
}

func (g *goroutineTicker) Start(interval time.Duration, fn func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return platform.ErrUnavailable
	}
	g.started = true
	g.ticker = time.NewTicker(interval)
	g.stopped = make(chan struct{})

	go func(tick *time.Ticker, stopped chan struct{}) {
		for {
			select {
			case <-stopped:
				return
			case <-tick.C:
				fn()
			}
		}
	}(g.ticker, g.stopped)
	return nil
}

func (g *goroutineTicker) SetInterval(interval time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ticker != nil {
		g.ticker.Reset(interval)
	}
}

func (g *goroutineTicker) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ticker == nil {
		return
	}
	g.ticker.Stop()
	close(g.stopped)
	g.ticker = nil
}

type permissions World

func (p *permissions) Query(ctx context.Context, name string) (platform.PermissionState, error) {
	state, ok := (*World)(p).cfg.Permissions[name]
	if !ok {
		return platform.PermissionUnknown, platform.ErrNotSupported
	}
	return state, nil
}

type battery World

func (b *battery) State(ctx context.Context) (platform.BatteryState, error) {
	w := (*World)(b)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.battery, nil
}

func (b *battery) Subscribe(fn func(platform.BatteryState)) (remove func()) {
	w := (*World)(b)
	return w.addSub(func(id uint64) { w.batterySubs[id] = fn })
}

type visibility World

func (v *visibility) Hidden() bool {
	w := (*World)(v)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hidden
}

func (v *visibility) OnChange(fn func(hidden bool)) (remove func()) {
	w := (*World)(v)
	return w.addSub(func(id uint64) { w.visSubs[id] = fn })
}

func (v *visibility) OnUnload(fn func()) (remove func()) {
	w := (*World)(v)
	return w.addSub(func(id uint64) { w.unloadSubs[id] = fn })
}

type environment World

func (e *environment) Embedded() bool { return (*World)(e).cfg.Embedded }

func (e *environment) Mobile() bool { return (*World)(e).cfg.Mobile }

func (e *environment) LastInteraction() time.Time {
	w := (*World)(e)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interaction
}

func (e *environment) LowPowerMode() bool { return (*World)(e).cfg.LowPower }
