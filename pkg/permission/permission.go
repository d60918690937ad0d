// Package permission decides whether a capability can be acquired without
// surfacing a disruptive user prompt, caching platform permission lookups
// behind a pluggable store.
package permission

import (
	"context"
	"time"

	"github.com/wakeguard/wakeguard/pkg/observability/logger"
	"github.com/wakeguard/wakeguard/pkg/platform"
	"github.com/wakeguard/wakeguard/pkg/strategy"
)

// DefaultCacheTTL bounds how long a permission lookup stays valid.
const DefaultCacheTTL = 5 * time.Minute

// recentInteractionWindow is how recently the user must have interacted
// for a prompt to be considered non-disruptive.
const recentInteractionWindow = 30 * time.Second

// Capability names queried per kind. The screen kind also queries a
// related fallback name some platforms registered the capability under.
var capabilityNames = map[strategy.Kind][]string{
	strategy.KindScreen: {"screen-wake-lock", "wake-lock"},
	strategy.KindSystem: {"system-wake-lock"},
}

// Manager caches permission-state lookups and applies the passive-mode
// heuristics.
type Manager struct {
	querier platform.PermissionQuerier
	env     platform.Environment
	vis     platform.Visibility
	store   Store
	ttl     time.Duration
	log     logger.Logger
}

// NewManager builds a permission manager over the provider's permission
// capability. store may be nil, in which case an in-memory cache is used.
func NewManager(provider *platform.Provider, store Store, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{store: store, ttl: DefaultCacheTTL, log: log}
	if provider != nil {
		m.querier = provider.Permissions
		m.env = provider.Environment
		m.vis = provider.Visibility
	}
	return m
}

// WithCacheTTL overrides the cache expiry. Non-positive values keep the default.
func (m *Manager) WithCacheTTL(ttl time.Duration) *Manager {
	if ttl > 0 {
		m.ttl = ttl
	}
	return m
}

// Check returns the permission state for the capability backing kind.
// Cached entries younger than the TTL are served without a platform query.
// In passive mode an indeterminate result is coerced to granted, because
// passive callers only need to know a prompt will not appear.
func (m *Manager) Check(ctx context.Context, kind strategy.Kind, passive bool) (platform.PermissionState, error) {
	key := string(kind)

	if entry, ok, err := m.store.Get(ctx, key); err != nil {
		m.log.Warn("permission cache read failed", "kind", kind, "error", err)
	} else if ok && time.Since(entry.CheckedAt) < m.ttl {
		return m.coerce(entry.State, passive), nil
	}

	state := m.query(ctx, kind)
	if state != platform.PermissionUnknown {
		entry := Entry{State: state, CheckedAt: time.Now()}
		if err := m.store.Set(ctx, key, entry, m.ttl); err != nil {
			m.log.Warn("permission cache write failed", "kind", kind, "error", err)
		}
	}
	return m.coerce(state, passive), nil
}

func (m *Manager) coerce(state platform.PermissionState, passive bool) platform.PermissionState {
	if passive && (state == platform.PermissionUnknown || state == platform.PermissionPrompt) {
		return platform.PermissionGranted
	}
	return state
}

// query walks the capability names for kind, returning the first
// determinate answer.
func (m *Manager) query(ctx context.Context, kind strategy.Kind) platform.PermissionState {
	if m.querier == nil {
		return platform.PermissionUnknown
	}
	for _, name := range capabilityNames[kind] {
		state, err := m.querier.Query(ctx, name)
		if err != nil {
			m.log.Debug("permission query failed", "capability", name, "error", err)
			continue
		}
		if state != platform.PermissionUnknown {
			return state
		}
	}
	return platform.PermissionUnknown
}

// CanRequestWithoutPrompt reports whether acquiring the capability cannot
// surface a prompt: only a definitive granted or denied state qualifies.
// Anything indeterminate is prompt risk.
func (m *Manager) CanRequestWithoutPrompt(ctx context.Context, kind strategy.Kind) bool {
	state, err := m.Check(ctx, kind, false)
	if err != nil {
		return false
	}
	return state == platform.PermissionGranted || state == platform.PermissionDenied
}

// IsPassiveModeRecommended reports whether a request should avoid any
// prompt risk. Any single heuristic recommending passive wins; when the
// heuristics cannot be evaluated the answer is passive, failing safe
// toward not prompting.
func (m *Manager) IsPassiveModeRecommended() bool {
	if m.env == nil || m.vis == nil {
		return true
	}
	if m.env.Embedded() {
		return true
	}
	if m.vis.Hidden() {
		return true
	}
	last := m.env.LastInteraction()
	if last.IsZero() || time.Since(last) > recentInteractionWindow {
		return true
	}
	return m.env.Mobile()
}

// Close releases the cache store.
func (m *Manager) Close() error {
	return m.store.Close()
}
