package wakelock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wakeguard/wakeguard/pkg/monitor"
	"github.com/wakeguard/wakeguard/pkg/notify"
	"github.com/wakeguard/wakeguard/pkg/observability/logger"
	"github.com/wakeguard/wakeguard/pkg/permission"
	"github.com/wakeguard/wakeguard/pkg/platform"
	"github.com/wakeguard/wakeguard/pkg/platform/simulated"
	"github.com/wakeguard/wakeguard/pkg/strategy"
)

// recorder captures hub events in publish order.
type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) record(e notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) ofType(t notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) sequence() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]notify.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

type engine struct {
	world *simulated.World
	hub   *notify.Hub
	orch  *Orchestrator
	rec   *recorder
}

func grantedPermissions() map[string]platform.PermissionState {
	return map[string]platform.PermissionState{
		"screen-wake-lock": platform.PermissionGranted,
		"system-wake-lock": platform.PermissionGranted,
	}
}

// newEngine builds an orchestrator over the simulated world. stratNames
// selects a subset of the four strategies; empty means all of them.
func newEngine(t *testing.T, sim simulated.Config, cfg Config, stratNames ...string) *engine {
	t.Helper()
	if sim.Permissions == nil {
		sim.Permissions = grantedPermissions()
	}
	if sim.Battery.Level == 0 {
		sim.Battery = platform.BatteryState{Level: 0.9}
	}
	world := simulated.New(sim)
	provider := world.Provider()
	hub := notify.NewHub()

	all := map[string]strategy.Strategy{
		strategy.NativeName: strategy.NewNative(provider, nil),
		strategy.MediaName:  strategy.NewMedia(provider, nil),
		strategy.AudioName:  strategy.NewAudio(provider, nil),
		strategy.TimerName:  strategy.NewTimer(provider, nil),
	}
	var strategies []strategy.Strategy
	if len(stratNames) == 0 {
		stratNames = []string{strategy.NativeName, strategy.MediaName, strategy.AudioName, strategy.TimerName}
	}
	for _, name := range stratNames {
		strategies = append(strategies, all[name])
	}

	perms := permission.NewManager(provider, permission.NewMemoryStore(), logger.NewNop())
	mon := monitor.New(monitor.Config{SampleInterval: 10 * time.Millisecond}, provider, nil, hub, logger.NewNop(), nil)

	orch, err := New(cfg, provider, strategies, perms, mon, hub, logger.NewNop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := &recorder{}
	for _, et := range []notify.EventType{
		notify.EventEnabled, notify.EventDisabled, notify.EventError,
		notify.EventFallback, notify.EventBatteryChange, notify.EventVisibilityChange,
	} {
		hub.Subscribe(et, rec.record)
	}
	return &engine{world: world, hub: hub, orch: orch, rec: rec}
}

func TestRequestUsesHighestPriorityStrategy(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{})

	sentinel, err := e.orch.Request(context.Background(), strategy.KindScreen, RequestOptions{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if sentinel.StrategyName() != strategy.NativeName {
		t.Fatalf("strategy = %q, want %q", sentinel.StrategyName(), strategy.NativeName)
	}
	if e.world.ActiveLockCount() != 1 {
		t.Fatalf("active platform locks = %d, want 1", e.world.ActiveLockCount())
	}

	status := e.orch.GetStatus()
	if !status.IsActive || status.Strategy != strategy.NativeName || status.Kind != strategy.KindScreen {
		t.Fatalf("status = %+v, want active native/screen", status)
	}
	if len(e.rec.ofType(notify.EventFallback)) != 0 {
		t.Fatalf("unexpected fallback events: %v", e.rec.ofType(notify.EventFallback))
	}
	if got := e.rec.ofType(notify.EventEnabled); len(got) != 1 {
		t.Fatalf("enabled events = %d, want 1", len(got))
	}
}

func TestRequestIsIdempotentForSameKind(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{})
	ctx := context.Background()

	first, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{})
	if err != nil {
		t.Fatalf("first Request: %v", err)
	}
	second, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{})
	if err != nil {
		t.Fatalf("second Request: %v", err)
	}
	if first != second {
		t.Fatal("second request returned a different sentinel")
	}
	if got := e.rec.ofType(notify.EventEnabled); len(got) != 1 {
		t.Fatalf("enabled events = %d, want 1", len(got))
	}
	if e.world.ActiveLockCount() != 1 {
		t.Fatalf("active platform locks = %d, want 1", e.world.ActiveLockCount())
	}
}

func TestRequestKindMismatchFails(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{})
	ctx := context.Background()

	if _, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	_, err := e.orch.Request(ctx, strategy.KindSystem, RequestOptions{})
	if !errors.Is(err, strategy.ErrInvalidState) {
		t.Fatalf("err = %v, want INVALID_STATE", err)
	}
}

func TestFallbackChainOrderAndEvents(t *testing.T) {
	e := newEngine(t, simulated.Config{
		AcquireErr: platform.ErrNotSupported,
		MediaErr:   errors.New("no playable source"),
	}, Config{})

	sentinel, err := e.orch.Request(context.Background(), strategy.KindScreen, RequestOptions{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if sentinel.StrategyName() != strategy.AudioName {
		t.Fatalf("strategy = %q, want %q", sentinel.StrategyName(), strategy.AudioName)
	}

	fallbacks := e.rec.ofType(notify.EventFallback)
	if len(fallbacks) != 2 {
		t.Fatalf("fallback events = %d, want 2", len(fallbacks))
	}
	p0 := fallbacks[0].Payload.(notify.FallbackPayload)
	if p0.From != strategy.NativeName || p0.To != strategy.MediaName || p0.Reason != string(strategy.CodeNotSupported) {
		t.Fatalf("first fallback = %+v", p0)
	}
	p1 := fallbacks[1].Payload.(notify.FallbackPayload)
	if p1.From != strategy.MediaName || p1.To != strategy.AudioName {
		t.Fatalf("second fallback = %+v", p1)
	}

	// Enabled fires only after the chain has fully resolved.
	seq := e.rec.sequence()
	last := seq[len(seq)-1]
	if last != notify.EventEnabled {
		t.Fatalf("event sequence = %v, want enabled last", seq)
	}
}

func TestAllStrategiesFail(t *testing.T) {
	e := newEngine(t, simulated.Config{
		AcquireErr: errors.New("revoked by policy"),
		MediaErr:   errors.New("autoplay blocked"),
		AudioErr:   errors.New("context suspended"),
	}, Config{}, strategy.NativeName, strategy.MediaName, strategy.AudioName)

	_, err := e.orch.Request(context.Background(), strategy.KindScreen, RequestOptions{})
	if !errors.Is(err, strategy.ErrStrategyFailed) {
		t.Fatalf("err = %v, want STRATEGY_FAILED", err)
	}
	if e.orch.GetStatus().IsActive {
		t.Fatal("status active after exhausted chain")
	}
	if got := e.rec.ofType(notify.EventError); len(got) != 1 {
		t.Fatalf("error events = %d, want 1", len(got))
	}
	if got := e.rec.ofType(notify.EventFallback); len(got) != 2 {
		t.Fatalf("fallback events = %d, want 2", len(got))
	}
}

func TestNoStrategiesRejectsImmediately(t *testing.T) {
	sim := simulated.Config{Permissions: grantedPermissions(), Battery: platform.BatteryState{Level: 0.9}}
	world := simulated.New(sim)
	hub := notify.NewHub()
	perms := permission.NewManager(world.Provider(), permission.NewMemoryStore(), nil)
	mon := monitor.New(monitor.Config{}, world.Provider(), nil, hub, nil, nil)

	orch, err := New(Config{}, world.Provider(), nil, perms, mon, hub, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if orch.IsSupported() {
		t.Fatal("IsSupported true with no strategies")
	}
	_, err = orch.Request(context.Background(), strategy.KindScreen, RequestOptions{})
	if !errors.Is(err, strategy.ErrStrategyFailed) {
		t.Fatalf("err = %v, want STRATEGY_FAILED", err)
	}
}

func TestTimeoutLeavesNoDanglingLock(t *testing.T) {
	e := newEngine(t, simulated.Config{
		AcquireLatency: 200 * time.Millisecond,
	}, Config{}, strategy.NativeName)

	_, err := e.orch.Request(context.Background(), strategy.KindScreen, RequestOptions{Timeout: 20 * time.Millisecond})
	if !errors.Is(err, strategy.ErrStrategyFailed) {
		t.Fatalf("err = %v, want STRATEGY_FAILED after timeout exhausts the chain", err)
	}

	// The late acquisition must be released once it lands.
	deadline := time.Now().Add(time.Second)
	for e.world.ActiveLockCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("platform lock still held after timeout, count = %d", e.world.ActiveLockCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManualRelease(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{})
	ctx := context.Background()

	if _, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	e.orch.Release(ctx)

	disabled := e.rec.ofType(notify.EventDisabled)
	if len(disabled) != 1 {
		t.Fatalf("disabled events = %d, want 1", len(disabled))
	}
	payload := disabled[0].Payload.(notify.DisabledPayload)
	if payload.Reason != notify.ReasonManualRelease {
		t.Fatalf("reason = %q, want %q", payload.Reason, notify.ReasonManualRelease)
	}
	if e.orch.GetStatus().IsActive {
		t.Fatal("status active after release")
	}
	if e.world.ActiveLockCount() != 0 {
		t.Fatalf("active platform locks = %d, want 0", e.world.ActiveLockCount())
	}

	// Releasing again is a no-op.
	e.orch.Release(ctx)
	if got := e.rec.ofType(notify.EventDisabled); len(got) != 1 {
		t.Fatalf("disabled events after double release = %d, want 1", len(got))
	}
}

func TestPlatformRevocationEmitsAutomaticRelease(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{})
	ctx := context.Background()

	if _, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	e.world.RevokeAllLocks()

	disabled := e.rec.ofType(notify.EventDisabled)
	if len(disabled) != 1 {
		t.Fatalf("disabled events = %d, want 1", len(disabled))
	}
	if reason := disabled[0].Payload.(notify.DisabledPayload).Reason; reason != notify.ReasonAutomaticRelease {
		t.Fatalf("reason = %q, want %q", reason, notify.ReasonAutomaticRelease)
	}
	if e.orch.GetStatus().IsActive {
		t.Fatal("status active after revocation")
	}

	// A later manual release finds nothing and emits nothing.
	e.orch.Release(ctx)
	if got := e.rec.ofType(notify.EventDisabled); len(got) != 1 {
		t.Fatalf("disabled events after release = %d, want 1", len(got))
	}
}

func TestBatteryAutoRelease(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{
		BatteryOptimization:   true,
		PerformanceMonitoring: true,
	})
	ctx := context.Background()

	if _, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}

	// Discharging above the threshold keeps the hold.
	e.world.SetBattery(platform.BatteryState{Level: 0.40})
	if !e.orch.GetStatus().IsActive {
		t.Fatal("released at 40% battery")
	}

	// Charging below the threshold keeps the hold too.
	e.world.SetBattery(platform.BatteryState{Level: 0.10, Charging: true})
	if !e.orch.GetStatus().IsActive {
		t.Fatal("released while charging")
	}

	// Discharging below the threshold releases exactly once.
	e.world.SetBattery(platform.BatteryState{Level: 0.10})
	if e.orch.GetStatus().IsActive {
		t.Fatal("still active below auto-release threshold")
	}
	disabled := e.rec.ofType(notify.EventDisabled)
	if len(disabled) != 1 {
		t.Fatalf("disabled events = %d, want 1", len(disabled))
	}
	if reason := disabled[0].Payload.(notify.DisabledPayload).Reason; reason != notify.ReasonAutomaticRelease {
		t.Fatalf("reason = %q, want %q", reason, notify.ReasonAutomaticRelease)
	}
	if e.world.ActiveLockCount() != 0 {
		t.Fatalf("active platform locks = %d, want 0", e.world.ActiveLockCount())
	}
}

func TestRequestDuringAutoReleaseTeardownFails(t *testing.T) {
	e := newEngine(t, simulated.Config{ReleaseLatency: 150 * time.Millisecond}, Config{
		BatteryOptimization:   true,
		PerformanceMonitoring: true,
	}, strategy.NativeName)
	ctx := context.Background()

	s1, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	// SetBattery drives the auto-release synchronously, so the slow native
	// teardown keeps it in flight until the call returns.
	settled := make(chan struct{})
	go func() {
		e.world.SetBattery(platform.BatteryState{Level: 0.05})
		close(settled)
	}()

	// The sentinel flips to released before its teardown runs; once it has,
	// the release is guaranteed in flight.
	deadline := time.Now().Add(time.Second)
	for !s1.Released() {
		if time.Now().After(deadline) {
			t.Fatal("auto-release never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{}); !errors.Is(err, strategy.ErrInvalidState) {
		t.Fatalf("Request during release = %v, want INVALID_STATE", err)
	}

	<-settled
	if e.orch.GetStatus().IsActive {
		t.Fatal("still active after auto-release settled")
	}
	if n := e.world.ActiveLockCount(); n != 0 {
		t.Fatalf("active platform locks = %d, want 0", n)
	}
	if got := len(e.rec.ofType(notify.EventDisabled)); got != 1 {
		t.Fatalf("disabled events = %d, want 1", got)
	}

	// A fresh request succeeds once the release has settled.
	s2, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{})
	if err != nil {
		t.Fatalf("Request after release: %v", err)
	}
	if s2 == s1 || s2.Released() {
		t.Fatal("expected a fresh active sentinel after the release settled")
	}
	if n := e.world.ActiveLockCount(); n != 1 {
		t.Fatalf("active platform locks = %d, want 1", n)
	}
}

func TestBatteryIgnoredWithoutOptimization(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{
		PerformanceMonitoring: true,
	})
	ctx := context.Background()

	if _, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	e.world.SetBattery(platform.BatteryState{Level: 0.05})
	if !e.orch.GetStatus().IsActive {
		t.Fatal("released with battery optimization disabled")
	}
}

func TestVisibilityAutoRelease(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{BatteryOptimization: true})
	ctx := context.Background()

	if _, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	e.world.SetHidden(true)

	if e.orch.GetStatus().IsActive {
		t.Fatal("still active after document hidden")
	}
	visible := e.rec.ofType(notify.EventVisibilityChange)
	if len(visible) != 1 {
		t.Fatalf("visibility events = %d, want 1", len(visible))
	}
	if action := visible[0].Payload.(notify.VisibilityChangePayload).Action; action != "release" {
		t.Fatalf("action = %q, want release", action)
	}
	disabled := e.rec.ofType(notify.EventDisabled)
	if len(disabled) != 1 || disabled[0].Payload.(notify.DisabledPayload).Reason != notify.ReasonAutomaticRelease {
		t.Fatalf("disabled events = %+v, want one automatic-release", disabled)
	}
}

func TestVisibilityKeptWithoutOptimization(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{})
	ctx := context.Background()

	if _, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	e.world.SetHidden(true)

	if !e.orch.GetStatus().IsActive {
		t.Fatal("released with battery optimization disabled")
	}
	visible := e.rec.ofType(notify.EventVisibilityChange)
	if len(visible) != 1 || visible[0].Payload.(notify.VisibilityChangePayload).Action != "none" {
		t.Fatalf("visibility events = %+v, want one with action none", visible)
	}
}

func TestUnloadAlwaysReleases(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{PerformanceMonitoring: true})
	ctx := context.Background()

	if _, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	e.world.FireUnload()

	status := e.orch.GetStatus()
	if status.IsActive {
		t.Fatal("still active after unload")
	}
	if status.Monitoring {
		t.Fatal("monitor still running after unload")
	}
	if e.world.ActiveLockCount() != 0 {
		t.Fatalf("active platform locks = %d, want 0", e.world.ActiveLockCount())
	}
}

func TestPassiveModeFailsFast(t *testing.T) {
	e := newEngine(t, simulated.Config{
		Permissions: map[string]platform.PermissionState{
			"screen-wake-lock": platform.PermissionPrompt,
		},
		Embedded: true,
	}, Config{})

	passive := true
	_, err := e.orch.Request(context.Background(), strategy.KindScreen, RequestOptions{Passive: &passive})
	if !errors.Is(err, strategy.ErrPermissionDenied) {
		t.Fatalf("err = %v, want PERMISSION_DENIED", err)
	}
	if e.world.ActiveLockCount() != 0 {
		t.Fatalf("active platform locks = %d, want 0", e.world.ActiveLockCount())
	}
	if got := e.rec.ofType(notify.EventEnabled); len(got) != 0 {
		t.Fatalf("enabled events = %d, want 0", len(got))
	}
}

func TestPassiveModeAllowedWhenGranted(t *testing.T) {
	e := newEngine(t, simulated.Config{Embedded: true}, Config{DefaultPassive: true})

	sentinel, err := e.orch.Request(context.Background(), strategy.KindScreen, RequestOptions{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if sentinel.StrategyName() != strategy.NativeName {
		t.Fatalf("strategy = %q, want native", sentinel.StrategyName())
	}
}

func TestDestroy(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{PerformanceMonitoring: true})
	ctx := context.Background()

	if _, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	e.orch.Destroy(ctx)

	if e.world.ActiveLockCount() != 0 {
		t.Fatalf("active platform locks = %d, want 0", e.world.ActiveLockCount())
	}
	_, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{})
	if !errors.Is(err, strategy.ErrInvalidState) {
		t.Fatalf("err after destroy = %v, want INVALID_STATE", err)
	}

	// Destroy is idempotent.
	e.orch.Destroy(ctx)
}

func TestGetStatusAndIntrospection(t *testing.T) {
	e := newEngine(t, simulated.Config{}, Config{PerformanceMonitoring: true})
	ctx := context.Background()

	names := e.orch.SupportedStrategies()
	want := []string{strategy.NativeName, strategy.MediaName, strategy.AudioName, strategy.TimerName}
	if len(names) != len(want) {
		t.Fatalf("strategies = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("strategies = %v, want %v", names, want)
		}
	}
	if !e.orch.IsSupported() {
		t.Fatal("IsSupported = false")
	}

	state, err := e.orch.CheckPermissions(ctx, strategy.KindScreen)
	if err != nil || state != platform.PermissionGranted {
		t.Fatalf("CheckPermissions = %v, %v", state, err)
	}

	status := e.orch.GetStatus()
	if status.IsActive {
		t.Fatal("active before any request")
	}
	if _, err := e.orch.Request(ctx, strategy.KindScreen, RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	status = e.orch.GetStatus()
	if !status.IsActive || status.Kind != strategy.KindScreen {
		t.Fatalf("status = %+v", status)
	}
	if status.Battery == nil {
		t.Fatal("battery missing from status")
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{}
	cfg.normalize()
	if cfg.DefaultKind != strategy.KindScreen {
		t.Fatalf("DefaultKind = %q", cfg.DefaultKind)
	}
	if cfg.RequestTimeout != DefaultRequestTimeout {
		t.Fatalf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.RetryAttempts != DefaultRetryAttempts {
		t.Fatalf("RetryAttempts = %d", cfg.RetryAttempts)
	}
}
