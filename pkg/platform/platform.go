// Package platform declares the capability ports the engine coordinates.
// The engine never touches a device capability directly; the host supplies
// a Provider whose nil fields mean "capability absent". The simulated
// subpackage ships a fully scriptable implementation for tests and demos.
package platform

import (
	"context"
	"errors"
	"time"
)

// Capability errors surfaced by providers. Strategies translate these into
// the classified error taxonomy.
var (
	// ErrNotSupported indicates the capability is absent on this device.
	ErrNotSupported = errors.New("platform: capability not supported")
	// ErrPermissionDenied indicates the user or platform denied the capability.
	ErrPermissionDenied = errors.New("platform: permission denied")
	// ErrUnavailable indicates the capability exists but cannot be used right now.
	ErrUnavailable = errors.New("platform: capability unavailable")
)

// PermissionState mirrors the tri-state result of a permission query.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
	// PermissionUnknown means the state could not be determined.
	PermissionUnknown PermissionState = ""
)

// NativeLock is one acquired native sleep-inhibition handle.
type NativeLock interface {
	// Release frees the native hold. Safe to call after an external revocation.
	Release(ctx context.Context) error

	// OnRelease registers a callback fired when the platform revokes the
	// lock outside this process (for example the document was backgrounded).
	// The returned function removes the callback.
	OnRelease(fn func()) (remove func())
}

// NativeLocker is the device's own sleep-inhibition capability.
type NativeLocker interface {
	// Acquire requests a native hold of the given kind ("screen" or "system").
	Acquire(ctx context.Context, kind string) (NativeLock, error)
}

// MediaHandle is one hidden playable element created by a MediaController.
type MediaHandle interface {
	// Play starts playback and returns once the element reports it is
	// ready to play, or when ctx expires.
	Play(ctx context.Context) error

	// Destroy tears down the element and any generated source resources.
	Destroy(ctx context.Context) error
}

// MediaController synthesizes hidden, muted, non-interactive media elements.
type MediaController interface {
	Create(ctx context.Context) (MediaHandle, error)
}

// AudioHandle is one running inaudible signal path.
type AudioHandle interface {
	// WaitRunning blocks until the audio graph reports a running state,
	// or ctx expires.
	WaitRunning(ctx context.Context) error

	// Teardown stops the oscillator and closes the graph context.
	Teardown(ctx context.Context) error
}

// AudioGraph produces a tone outside the audible range at effectively
// zero gain.
type AudioGraph interface {
	Start(ctx context.Context) (AudioHandle, error)
}

// Ticker performs a recurring unit of work until stopped. Implementations
// must tolerate SetInterval and Stop being called from other goroutines.
type Ticker interface {
	// Start begins invoking fn every interval. Calling Start twice is an error.
	Start(interval time.Duration, fn func()) error

	// SetInterval adjusts the tick interval of a started ticker.
	SetInterval(interval time.Duration)

	// Stop halts ticking. Idempotent.
	Stop()
}

// TickerFactory supplies the two ticking mechanisms the timer strategy
// chooses between at acquisition time.
type TickerFactory interface {
	// NewBackgroundTicker returns a ticker that keeps firing while the
	// document is hidden, or ErrNotSupported when no such mechanism exists.
	NewBackgroundTicker() (Ticker, error)

	// NewForegroundTicker returns the main-loop interval fallback.
	NewForegroundTicker() Ticker
}

// PermissionQuerier reads permission state for a named capability.
type PermissionQuerier interface {
	Query(ctx context.Context, name string) (PermissionState, error)
}

// BatteryState is one battery snapshot. Level is 0..1.
type BatteryState struct {
	Level    float64
	Charging bool
}

// Battery exposes the device battery information source.
type Battery interface {
	// State reads the current battery level and charging flag.
	State(ctx context.Context) (BatteryState, error)

	// Subscribe registers a callback for level/charging changes.
	// The returned function unsubscribes.
	Subscribe(fn func(BatteryState)) (remove func())
}

// Visibility exposes document visibility and unload signals.
type Visibility interface {
	// Hidden reports whether the document is currently hidden.
	Hidden() bool

	// OnChange registers a callback for visibility transitions.
	OnChange(fn func(hidden bool)) (remove func())

	// OnUnload registers a callback fired when the document is unloading.
	OnUnload(fn func()) (remove func())
}

// Environment exposes the heuristics consulted by passive-mode and
// power policies. Implementations must not block.
type Environment interface {
	// Embedded reports whether the document runs inside a frame.
	Embedded() bool

	// Mobile reports a mobile form factor.
	Mobile() bool

	// LastInteraction returns the time of the most recent user interaction,
	// or the zero time when unknown.
	LastInteraction() time.Time

	// LowPowerMode reports a device-level low-power indicator.
	LowPowerMode() bool
}

// Provider bundles the capabilities the host makes available.
// A nil field means the capability is absent; strategies and managers
// probe for nil before use and never panic on an absent capability.
type Provider struct {
	Native      NativeLocker
	Media       MediaController
	Audio       AudioGraph
	Tickers     TickerFactory
	Permissions PermissionQuerier
	Battery     Battery
	Visibility  Visibility
	Environment Environment
}
