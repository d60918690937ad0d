// Package wakelock coordinates sleep-prevention holds across an ordered
// chain of capability strategies, falling back to weaker capabilities when
// the preferred one is unavailable, denied, or fails at runtime.
package wakelock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wakeguard/wakeguard/pkg/monitor"
	"github.com/wakeguard/wakeguard/pkg/notify"
	"github.com/wakeguard/wakeguard/pkg/observability/logger"
	"github.com/wakeguard/wakeguard/pkg/permission"
	"github.com/wakeguard/wakeguard/pkg/platform"
	"github.com/wakeguard/wakeguard/pkg/strategy"
)

// Request defaults.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultRetryAttempts  = 3
)

// autoReleaseBatteryLevel is the stricter threshold the orchestrator uses
// for automatic release, below the monitor's own low-battery flag.
const autoReleaseBatteryLevel = 0.15

// Config is immutable after construction.
type Config struct {
	// DefaultKind is used when a request does not name a kind.
	DefaultKind strategy.Kind
	// DefaultPassive makes requests passive unless overridden per request.
	DefaultPassive bool
	// RequestTimeout bounds each acquisition attempt.
	RequestTimeout time.Duration
	// RetryAttempts is carried into strategy options; the fallback chain
	// depth is the effective retry budget.
	RetryAttempts int
	// BatteryOptimization enables battery- and visibility-driven
	// automatic release.
	BatteryOptimization bool
	// PerformanceMonitoring starts the monitor on the first request.
	PerformanceMonitoring bool
	// Debug enables verbose acquisition logging.
	Debug bool
}

func (c *Config) normalize() {
	if c.DefaultKind == "" {
		c.DefaultKind = strategy.KindScreen
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
}

// RequestOptions tunes a single request. Zero values fall back to the
// configured defaults.
type RequestOptions struct {
	// Timeout bounds each strategy attempt within this request.
	Timeout time.Duration
	// RetryAttempts overrides the configured value. Informational; no
	// strategy re-attempts itself.
	RetryAttempts int
	// Passive overrides the configured passive flag when non-nil.
	Passive *bool
}

// Status is a read-only snapshot of the orchestrator.
type Status struct {
	IsActive    bool              `json:"is_active"`
	Kind        strategy.Kind     `json:"kind,omitempty"`
	Strategy    string            `json:"strategy,omitempty"`
	Monitoring  bool              `json:"monitoring"`
	Performance monitor.Sample    `json:"performance"`
	Battery     *BatteryStatus    `json:"battery,omitempty"`
	Strategies  []string          `json:"strategies"`
	LastErrors  map[string]string `json:"last_errors,omitempty"`
}

// BatteryStatus is the battery portion of a status snapshot.
type BatteryStatus struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
}

// Orchestrator owns the strategy chain and at most one active sentinel.
type Orchestrator struct {
	cfg        Config
	strategies []strategy.Strategy
	perms      *permission.Manager
	mon        *monitor.Monitor
	hub        *notify.Hub
	log        logger.Logger
	tracer     trace.Tracer
	metrics    *metrics

	// acquireMu serializes request/release cycles; state fields below are
	// guarded by mu alone so release notifications can consult them.
	acquireMu sync.Mutex

	mu         sync.Mutex
	active     *strategy.Sentinel
	current    strategy.Strategy
	releasing  bool
	destroyed  bool
	lastErrors map[string]string
	detach     []func()
}

// New builds an orchestrator over the given strategies. Unsupported
// strategies are filtered out and the rest sorted by ascending priority.
// provider supplies the visibility/unload signals for automatic release;
// it may be nil when the host has none. reg may be nil to skip metric
// registration.
func New(cfg Config, provider *platform.Provider, strategies []strategy.Strategy, perms *permission.Manager, mon *monitor.Monitor, hub *notify.Hub, log logger.Logger, reg prometheus.Registerer) (*Orchestrator, error) {
	if hub == nil {
		return nil, errors.New("notification hub is required")
	}
	if perms == nil {
		return nil, errors.New("permission manager is required")
	}
	if mon == nil {
		return nil, errors.New("monitor is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	cfg.normalize()

	supported := make([]strategy.Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil && s.IsSupported() {
			supported = append(supported, s)
		}
	}
	sort.SliceStable(supported, func(i, j int) bool {
		return supported[i].Priority() < supported[j].Priority()
	})

	o := &Orchestrator{
		cfg:        cfg,
		strategies: supported,
		perms:      perms,
		mon:        mon,
		hub:        hub,
		log:        log,
		tracer:     otel.Tracer("github.com/wakeguard/wakeguard/pkg/wakelock"),
		metrics:    newMetrics(reg),
		lastErrors: map[string]string{},
	}
	o.wireAutoRelease(provider)
	return o, nil
}

// WithTracer overrides the tracer used for acquisition spans.
func (o *Orchestrator) WithTracer(tracer trace.Tracer) *Orchestrator {
	if tracer != nil {
		o.tracer = tracer
	}
	return o
}

// wireAutoRelease attaches the battery, visibility and unload triggers.
func (o *Orchestrator) wireAutoRelease(provider *platform.Provider) {
	sub := o.hub.Subscribe(notify.EventBatteryChange, func(e notify.Event) {
		payload, ok := e.Payload.(notify.BatteryChangePayload)
		if !ok {
			return
		}
		if !o.cfg.BatteryOptimization {
			return
		}
		if payload.Charging || payload.Level > autoReleaseBatteryLevel {
			return
		}
		if !o.hasActive() {
			return
		}
		o.log.Info("battery critically low, releasing wake lock",
			"level", payload.Level)
		o.release(context.Background(), notify.ReasonAutomaticRelease, false)
	})
	o.detach = append(o.detach, func() { _ = sub.Close() })

	if provider == nil || provider.Visibility == nil {
		return
	}
	vis := provider.Visibility

	removeChange := vis.OnChange(func(hidden bool) {
		action := "none"
		if hidden && o.cfg.BatteryOptimization && o.hasActive() {
			action = "release"
		}
		o.hub.Emit(notify.EventVisibilityChange, notify.VisibilityChangePayload{
			Hidden: hidden,
			Action: action,
		})
		if action == "release" {
			o.release(context.Background(), notify.ReasonAutomaticRelease, false)
		}
	})
	o.detach = append(o.detach, removeChange)

	// Final safety net: unload always releases and stops the monitor,
	// regardless of configuration.
	removeUnload := vis.OnUnload(func() {
		o.release(context.Background(), notify.ReasonAutomaticRelease, true)
	})
	o.detach = append(o.detach, removeUnload)
}

func (o *Orchestrator) hasActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil && !o.active.Released()
}

// Request acquires a hold of the given kind, trying each supported
// strategy in priority order. If an unreleased sentinel of the same kind
// is already active it is returned unchanged; requesting a different kind
// while one is active fails with INVALID_STATE.
func (o *Orchestrator) Request(ctx context.Context, kind strategy.Kind, opts RequestOptions) (*strategy.Sentinel, error) {
	if kind == "" {
		kind = o.cfg.DefaultKind
	}
	if !kind.Valid() {
		return nil, strategy.NewError(strategy.CodeInvalidState, "", fmt.Errorf("unknown kind %q", kind))
	}

	o.acquireMu.Lock()
	defer o.acquireMu.Unlock()

	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return nil, strategy.NewError(strategy.CodeInvalidState, "", errors.New("orchestrator destroyed"))
	}
	// An automatic release marks the sentinel released before its teardown
	// finishes. Acquiring during that window would install a hold the
	// in-flight release then wipes from the slots.
	if o.releasing {
		o.mu.Unlock()
		return nil, strategy.NewError(strategy.CodeInvalidState, "", errors.New("a release is in flight"))
	}
	if o.active != nil && !o.active.Released() {
		active := o.active
		o.mu.Unlock()
		if active.Kind() == kind {
			return active, nil
		}
		return nil, strategy.NewError(strategy.CodeInvalidState, "",
			fmt.Errorf("a %s lock is already active, release it before requesting %s", active.Kind(), kind))
	}
	o.mu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = o.cfg.RequestTimeout
	}
	retries := opts.RetryAttempts
	if retries <= 0 {
		retries = o.cfg.RetryAttempts
	}
	passive := o.cfg.DefaultPassive
	if opts.Passive != nil {
		passive = *opts.Passive
	}

	if passive && !o.perms.CanRequestWithoutPrompt(ctx, kind) && o.perms.IsPassiveModeRecommended() {
		return nil, strategy.NewError(strategy.CodePermissionDenied, "",
			errors.New("passive mode: acquisition would surface a permission prompt"))
	}

	if o.cfg.PerformanceMonitoring {
		o.mon.Start(ctx)
	}

	ctx = logger.ContextWithAcquisitionID(ctx, uuid.NewString())
	log := o.log.WithContext(ctx)

	if len(o.strategies) == 0 {
		return nil, strategy.NewError(strategy.CodeStrategyFailed, "", errors.New("no supported strategies"))
	}

	sopts := strategy.Options{Timeout: timeout, RetryAttempts: retries}

	var failures []string
	for i, strat := range o.strategies {
		sentinel, err := o.attempt(ctx, strat, kind, sopts, log)
		if err == nil {
			o.adopt(sentinel, strat)
			o.metrics.acquisitions.WithLabelValues(strat.Name()).Inc()
			o.hub.Emit(notify.EventEnabled, notify.EnabledPayload{
				Kind:     string(kind),
				Strategy: strat.Name(),
			})
			log.Info("wake lock enabled", "kind", kind, "strategy", strat.Name())
			return sentinel, nil
		}

		code := strategy.Classify(err)
		failures = append(failures, err.Error())
		o.recordError(strat.Name(), err)
		log.Warn("strategy attempt failed",
			"strategy", strat.Name(),
			"code", code,
			"error", err)

		if i+1 < len(o.strategies) {
			next := o.strategies[i+1]
			o.metrics.fallbacks.Inc()
			o.hub.Emit(notify.EventFallback, notify.FallbackPayload{
				From:   strat.Name(),
				To:     next.Name(),
				Reason: string(code),
			})
		}
	}

	err := strategy.NewError(strategy.CodeStrategyFailed, "",
		fmt.Errorf("all strategies failed: %s", strings.Join(failures, "; ")))
	o.metrics.failures.Inc()
	o.hub.Emit(notify.EventError, notify.ErrorPayload{Err: err, Message: err.Error()})
	return nil, err
}

// attempt runs one strategy acquisition inside a span, measured by the
// monitor for diagnostics.
func (o *Orchestrator) attempt(ctx context.Context, strat strategy.Strategy, kind strategy.Kind, opts strategy.Options, log logger.Logger) (*strategy.Sentinel, error) {
	ctx, span := o.tracer.Start(ctx, "wakelock.attempt",
		trace.WithAttributes(
			attribute.String("wakelock.strategy", strat.Name()),
			attribute.String("wakelock.kind", string(kind)),
		))
	defer span.End()

	if o.cfg.Debug {
		log.Debug("attempting strategy", "strategy", strat.Name(), "timeout", opts.Timeout)
	}

	var sentinel *strategy.Sentinel
	_, err := o.mon.MeasureStrategy(ctx, strat.Name(), func(c context.Context) error {
		acquired, attemptErr := strat.Request(c, kind, opts)
		if attemptErr != nil {
			return attemptErr
		}
		sentinel = acquired
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(strategy.Classify(err)))
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return sentinel, nil
}

// adopt installs the sentinel as the single active hold and wraps its
// release event so external settlement clears the orchestrator's slots.
func (o *Orchestrator) adopt(sentinel *strategy.Sentinel, strat strategy.Strategy) {
	o.mu.Lock()
	o.active = sentinel
	o.current = strat
	o.mu.Unlock()

	sentinel.OnRelease(func(s *strategy.Sentinel) {
		o.mu.Lock()
		if o.releasing || o.destroyed || o.active != s {
			o.mu.Unlock()
			return
		}
		o.active = nil
		o.current = nil
		o.mu.Unlock()

		o.metrics.releases.WithLabelValues(notify.ReasonAutomaticRelease).Inc()
		o.hub.Emit(notify.EventDisabled, notify.DisabledPayload{
			Kind:   string(s.Kind()),
			Reason: notify.ReasonAutomaticRelease,
		})
	})
}

func (o *Orchestrator) recordError(strategyName string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastErrors[strategyName] = err.Error()
}

// Release frees the active hold, if any. It never returns an error:
// release is frequently invoked from automatic and unload paths where no
// caller could catch one, so failures are logged and reported through the
// error notification channel instead.
func (o *Orchestrator) Release(ctx context.Context) {
	o.acquireMu.Lock()
	defer o.acquireMu.Unlock()
	o.release(ctx, notify.ReasonManualRelease, false)
}

// release is the single convergent release path. stopMonitor forces the
// monitor off even when nothing was active (the unload safety net).
func (o *Orchestrator) release(ctx context.Context, reason string, stopMonitor bool) {
	o.mu.Lock()
	if o.releasing {
		o.mu.Unlock()
		return
	}
	sentinel := o.active
	if sentinel == nil {
		o.mu.Unlock()
		if stopMonitor {
			o.mon.Stop()
		}
		return
	}
	o.releasing = true
	o.mu.Unlock()

	err := sentinel.Release(ctx)

	// Clear the slots only if they still hold this sentinel; a concurrent
	// adoption must not be wiped by a release that settled after it.
	o.mu.Lock()
	if o.active == sentinel {
		o.active = nil
		o.current = nil
	}
	o.releasing = false
	o.mu.Unlock()

	if err != nil {
		o.log.Error("wake lock release failed", "error", err)
		o.hub.Emit(notify.EventError, notify.ErrorPayload{
			Err:      err,
			Message:  err.Error(),
			Strategy: sentinel.StrategyName(),
		})
	} else {
		o.hub.Emit(notify.EventDisabled, notify.DisabledPayload{
			Kind:   string(sentinel.Kind()),
			Reason: reason,
		})
	}
	o.metrics.releases.WithLabelValues(reason).Inc()

	// State is cleared and the monitor stopped regardless of outcome.
	o.mon.Stop()
}

// IsSupported reports whether at least one strategy can be attempted.
func (o *Orchestrator) IsSupported() bool {
	return len(o.strategies) > 0
}

// SupportedStrategies lists the chain's strategy names in priority order.
func (o *Orchestrator) SupportedStrategies() []string {
	names := make([]string, 0, len(o.strategies))
	for _, s := range o.strategies {
		names = append(names, s.Name())
	}
	return names
}

// CheckPermissions returns the permission state for the capability backing
// kind, without passive coercion.
func (o *Orchestrator) CheckPermissions(ctx context.Context, kind strategy.Kind) (platform.PermissionState, error) {
	return o.perms.Check(ctx, kind, false)
}

// GetStatus returns a read-only snapshot. It never mutates orchestrator
// state.
func (o *Orchestrator) GetStatus() Status {
	o.mu.Lock()
	status := Status{
		Strategies: o.supportedNamesLocked(),
	}
	if o.active != nil && !o.active.Released() {
		status.IsActive = true
		status.Kind = o.active.Kind()
		status.Strategy = o.active.StrategyName()
	}
	if len(o.lastErrors) > 0 {
		status.LastErrors = make(map[string]string, len(o.lastErrors))
		for k, v := range o.lastErrors {
			status.LastErrors[k] = v
		}
	}
	o.mu.Unlock()

	status.Monitoring = o.mon.Running()
	status.Performance = o.mon.Snapshot()
	if state, known := o.mon.BatteryState(); known {
		status.Battery = &BatteryStatus{Level: state.Level, Charging: state.Charging}
	}
	return status
}

func (o *Orchestrator) supportedNamesLocked() []string {
	names := make([]string, 0, len(o.strategies))
	for _, s := range o.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Destroy releases any active hold, stops the monitor and detaches every
// notification subscriber. The instance must not be reused afterward:
// subsequent requests fail with INVALID_STATE.
func (o *Orchestrator) Destroy(ctx context.Context) {
	o.acquireMu.Lock()
	defer o.acquireMu.Unlock()

	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.release(ctx, notify.ReasonManualRelease, true)

	// Settle any sentinels strategies still track outside the active slot.
	for _, s := range o.strategies {
		if err := s.ReleaseAll(ctx); err != nil {
			o.log.Warn("strategy cleanup failed", "strategy", s.Name(), "error", err)
		}
	}

	o.mu.Lock()
	o.destroyed = true
	detach := o.detach
	o.detach = nil
	o.mu.Unlock()

	for _, remove := range detach {
		remove()
	}
	o.hub.Close()
	o.log.Info("wake lock orchestrator destroyed")
}
