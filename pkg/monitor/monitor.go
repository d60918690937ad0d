// Package monitor periodically samples device battery state and an
// approximate CPU/memory load, publishes change notifications, and answers
// the power-policy queries the orchestrator consults for auto-release.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/wakeguard/wakeguard/pkg/notify"
	"github.com/wakeguard/wakeguard/pkg/observability/logger"
	"github.com/wakeguard/wakeguard/pkg/platform"
)

// Defaults applied by Config.normalize.
const (
	DefaultSampleInterval   = 5 * time.Second
	DefaultBatteryThreshold = 0.20
	DefaultCPUThreshold     = 80.0
)

// notifyBurst caps performance notifications to one per second.
const notifyInterval = time.Second

// Config controls monitor behavior.
type Config struct {
	// SampleInterval is the periodic sampling cadence.
	SampleInterval time.Duration
	// BatteryThreshold is the low-battery level (0..1) for IsLowBattery.
	BatteryThreshold float64
	// CPUThreshold is the CPU percentage above which optimization is
	// recommended.
	CPUThreshold float64
}

func (c *Config) normalize() {
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.BatteryThreshold <= 0 {
		c.BatteryThreshold = DefaultBatteryThreshold
	}
	if c.CPUThreshold <= 0 {
		c.CPUThreshold = DefaultCPUThreshold
	}
}

// Measurement is the diagnostic record MeasureStrategy produces around one
// strategy attempt.
type Measurement struct {
	Strategy    string
	Duration    time.Duration
	CPUDelta    float64
	MemoryDelta int64
}

// Monitor owns the sampling loop and the battery subscription. Only the
// monitor mutates its own sample cache; everything else observes it
// through notifications and read-only queries.
type Monitor struct {
	cfg     Config
	sampler Sampler
	battery platform.Battery
	env     platform.Environment
	hub     *notify.Hub
	log     logger.Logger
	limiter *rate.Limiter
	metrics *metrics

	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	batteryUnsub func()
	lastSample   Sample
	batteryState platform.BatteryState
	batteryKnown bool
	prevLevel    float64
	prevLevelAt  time.Time
}

// New creates a monitor. provider and hub are required collaborators;
// sampler may be nil to disable CPU/memory sampling (battery policy still
// works). reg may be nil to skip metric registration.
func New(cfg Config, provider *platform.Provider, sampler Sampler, hub *notify.Hub, log logger.Logger, reg prometheus.Registerer) *Monitor {
	cfg.normalize()
	if log == nil {
		log = logger.NewNop()
	}
	m := &Monitor{
		cfg:     cfg,
		sampler: sampler,
		hub:     hub,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(notifyInterval), 1),
		metrics: newMetrics(reg),
	}
	if provider != nil {
		m.battery = provider.Battery
		m.env = provider.Environment
	}
	return m
}

// Start wires the periodic sampler and the battery change subscription.
// Idempotent: a running monitor stays running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.running = true
	m.cancel = cancel

	if m.battery != nil {
		m.batteryUnsub = m.battery.Subscribe(func(state platform.BatteryState) {
			m.onBatteryChange(state)
		})
	}
	m.mu.Unlock()

	// Prime the battery reading so policy queries work before the first tick.
	if m.battery != nil {
		if state, err := m.battery.State(ctx); err == nil {
			m.onBatteryChange(state)
		}
	}

	m.wg.Add(1)
	go m.run(runCtx)

	m.log.Debug("performance monitor started", "interval", m.cfg.SampleInterval)
}

// Stop clears the timer and unsubscribes from battery changes. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	unsub := m.batteryUnsub
	m.running = false
	m.cancel = nil
	m.batteryUnsub = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.log.Debug("performance monitor stopped")
}

// Running reports whether the sampling loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleOnce(ctx)
		}
	}
}

func (m *Monitor) sampleOnce(ctx context.Context) {
	if m.sampler == nil {
		return
	}
	sample, err := m.sampler.Sample(ctx)
	if err != nil {
		m.log.Warn("performance sample failed", "error", err)
		return
	}
	sample.BatteryDrain = m.drainEstimate()

	m.mu.Lock()
	m.lastSample = sample
	m.mu.Unlock()

	m.metrics.observeSample(sample)

	// Throttle so rapid samples cannot flood subscribers.
	if m.limiter.Allow() {
		m.hub.Emit(notify.EventPerformance, notify.PerformancePayload{
			CPUPercent:   sample.CPUPercent,
			MemoryBytes:  sample.MemoryBytes,
			BatteryDrain: sample.BatteryDrain,
			SampledAt:    sample.SampledAt,
		})
	}
}

func (m *Monitor) onBatteryChange(state platform.BatteryState) {
	m.mu.Lock()
	prevKnown := m.batteryKnown
	prev := m.batteryState
	if prevKnown && prev.Level != state.Level {
		m.prevLevel = prev.Level
		m.prevLevelAt = time.Now()
	}
	m.batteryState = state
	m.batteryKnown = true
	m.mu.Unlock()

	m.metrics.observeBattery(state)

	// Battery changes are deduplicated, not rate-limited like performance
	// samples: automatic release must see a critical level immediately.
	if !prevKnown || prev != state {
		m.hub.Emit(notify.EventBatteryChange, notify.BatteryChangePayload{
			Level:    state.Level,
			Charging: state.Charging,
		})
	}
}

// drainEstimate approximates discharge speed in level fraction per hour.
func (m *Monitor) drainEstimate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.batteryKnown || m.batteryState.Charging || m.prevLevelAt.IsZero() {
		return 0
	}
	dropped := m.prevLevel - m.batteryState.Level
	if dropped <= 0 {
		return 0
	}
	hours := time.Since(m.prevLevelAt).Hours()
	if hours <= 0 {
		return 0
	}
	return dropped / hours
}

// IsLowBattery reports whether the battery level is at or below the
// configured threshold. Unknown battery state is never low.
func (m *Monitor) IsLowBattery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batteryKnown && m.batteryState.Level <= m.cfg.BatteryThreshold
}

// BatteryState returns the last known battery reading and whether one exists.
func (m *Monitor) BatteryState() (platform.BatteryState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batteryState, m.batteryKnown
}

// ShouldOptimizePerformance reports whether the device is under enough
// pressure that weaker strategies or early release are preferable.
func (m *Monitor) ShouldOptimizePerformance() bool {
	if m.IsLowBattery() {
		return true
	}
	m.mu.Lock()
	cpuHigh := m.lastSample.CPUPercent >= m.cfg.CPUThreshold
	m.mu.Unlock()
	if cpuHigh {
		return true
	}
	return m.env != nil && m.env.LowPowerMode()
}

// Snapshot returns the most recent performance sample.
func (m *Monitor) Snapshot() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSample
}

// MeasureStrategy wraps a strategy attempt with before/after CPU and
// memory snapshots. The operation's outcome is returned unaltered.
func (m *Monitor) MeasureStrategy(ctx context.Context, name string, op func(context.Context) error) (Measurement, error) {
	measurement := Measurement{Strategy: name}

	var before Sample
	if m.sampler != nil {
		before, _ = m.sampler.Sample(ctx)
	}

	start := time.Now()
	err := op(ctx)
	measurement.Duration = time.Since(start)

	if m.sampler != nil {
		after, sampleErr := m.sampler.Sample(ctx)
		if sampleErr == nil {
			measurement.CPUDelta = after.CPUPercent - before.CPUPercent
			measurement.MemoryDelta = int64(after.MemoryBytes) - int64(before.MemoryBytes)
		}
	}

	m.log.Debug("strategy measured",
		"strategy", name,
		"duration", measurement.Duration,
		"cpu_delta", measurement.CPUDelta,
		"memory_delta", measurement.MemoryDelta,
		"failed", err != nil)
	return measurement, err
}
