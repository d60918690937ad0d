package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wakeguard/wakeguard/pkg/notify"
	"github.com/wakeguard/wakeguard/pkg/observability/logger"
	"github.com/wakeguard/wakeguard/pkg/platform"
	"github.com/wakeguard/wakeguard/pkg/platform/simulated"
)

// scriptedSampler returns canned samples.
type scriptedSampler struct {
	mu     sync.Mutex
	sample Sample
	calls  int
}

func (s *scriptedSampler) Sample(ctx context.Context) (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := s.sample
	out.SampledAt = time.Now()
	return out, nil
}

func (s *scriptedSampler) set(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = sample
}

func (s *scriptedSampler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestMonitor_StartStopIdempotent(t *testing.T) {
	world := simulated.New(simulated.Config{Battery: platform.BatteryState{Level: 0.9}})
	m := New(Config{SampleInterval: 10 * time.Millisecond}, world.Provider(), &scriptedSampler{}, notify.NewHub(), logger.NewNop(), nil)

	m.Start(context.Background())
	m.Start(context.Background())
	if !m.Running() {
		t.Fatal("expected monitor running")
	}

	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("expected monitor stopped")
	}

	// A stopped monitor can be started again.
	m.Start(context.Background())
	if !m.Running() {
		t.Fatal("expected monitor restartable")
	}
	m.Stop()
}

func TestMonitor_PeriodicSampling(t *testing.T) {
	sampler := &scriptedSampler{}
	world := simulated.New(simulated.Config{})
	m := New(Config{SampleInterval: 5 * time.Millisecond}, world.Provider(), sampler, notify.NewHub(), logger.NewNop(), nil)

	m.Start(context.Background())
	defer m.Stop()

	deadline := time.After(time.Second)
	for sampler.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 samples, got %d", sampler.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMonitor_IsLowBattery(t *testing.T) {
	world := simulated.New(simulated.Config{Battery: platform.BatteryState{Level: 0.5}})
	m := New(Config{}, world.Provider(), nil, notify.NewHub(), logger.NewNop(), nil)

	m.Start(context.Background())
	defer m.Stop()

	if m.IsLowBattery() {
		t.Error("50% battery must not be low")
	}

	world.SetBattery(platform.BatteryState{Level: 0.15})
	if !m.IsLowBattery() {
		t.Error("15% battery must be low with the 20% default threshold")
	}
}

func TestMonitor_UnknownBatteryIsNeverLow(t *testing.T) {
	m := New(Config{}, &platform.Provider{}, nil, notify.NewHub(), logger.NewNop(), nil)
	m.Start(context.Background())
	defer m.Stop()

	if m.IsLowBattery() {
		t.Error("unknown battery state must not report low")
	}
}

func TestMonitor_BatteryChangeNotifications(t *testing.T) {
	world := simulated.New(simulated.Config{Battery: platform.BatteryState{Level: 0.8}})
	hub := notify.NewHub()

	var mu sync.Mutex
	var events []notify.BatteryChangePayload
	hub.Subscribe(notify.EventBatteryChange, func(e notify.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Payload.(notify.BatteryChangePayload))
	})

	m := New(Config{}, world.Provider(), nil, hub, logger.NewNop(), nil)
	m.Start(context.Background())
	defer m.Stop()

	world.SetBattery(platform.BatteryState{Level: 0.5, Charging: true})

	mu.Lock()
	defer mu.Unlock()
	if len(events) < 2 {
		t.Fatalf("expected initial reading plus change notification, got %d", len(events))
	}
	last := events[len(events)-1]
	if last.Level != 0.5 || !last.Charging {
		t.Errorf("unexpected final battery payload: %+v", last)
	}
}

func TestMonitor_ShouldOptimizePerformance(t *testing.T) {
	tests := []struct {
		name    string
		battery platform.BatteryState
		cpu     float64
		low     bool
		want    bool
	}{
		{"healthy", platform.BatteryState{Level: 0.9}, 10, false, false},
		{"low battery", platform.BatteryState{Level: 0.1}, 10, false, true},
		{"high cpu", platform.BatteryState{Level: 0.9}, 95, false, true},
		{"low power mode", platform.BatteryState{Level: 0.9}, 10, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := simulated.New(simulated.Config{Battery: tt.battery, LowPower: tt.low})
			sampler := &scriptedSampler{}
			sampler.set(Sample{CPUPercent: tt.cpu})

			m := New(Config{SampleInterval: time.Hour}, world.Provider(), sampler, notify.NewHub(), logger.NewNop(), nil)
			m.Start(context.Background())
			defer m.Stop()

			// Seed the sample cache directly rather than waiting a tick.
			m.sampleOnce(context.Background())

			if got := m.ShouldOptimizePerformance(); got != tt.want {
				t.Errorf("ShouldOptimizePerformance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonitor_PerformanceNotificationsThrottled(t *testing.T) {
	hub := notify.NewHub()

	var mu sync.Mutex
	count := 0
	hub.Subscribe(notify.EventPerformance, func(notify.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	world := simulated.New(simulated.Config{})
	m := New(Config{SampleInterval: time.Hour}, world.Provider(), &scriptedSampler{}, hub, logger.NewNop(), nil)

	// Burst of rapid samples: only the first should notify.
	for i := 0; i < 10; i++ {
		m.sampleOnce(context.Background())
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected exactly 1 notification from a rapid burst, got %d", count)
	}
}

func TestMonitor_MeasureStrategyPreservesOutcome(t *testing.T) {
	world := simulated.New(simulated.Config{})
	m := New(Config{}, world.Provider(), &scriptedSampler{}, notify.NewHub(), logger.NewNop(), nil)

	boom := errors.New("attempt failed")
	measurement, err := m.MeasureStrategy(context.Background(), "native", func(context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the operation's error unaltered, got %v", err)
	}
	if measurement.Strategy != "native" {
		t.Errorf("expected strategy name recorded, got %q", measurement.Strategy)
	}
	if measurement.Duration <= 0 {
		t.Error("expected positive duration")
	}

	if _, err := m.MeasureStrategy(context.Background(), "native", func(context.Context) error { return nil }); err != nil {
		t.Errorf("expected nil error preserved, got %v", err)
	}
}

func TestConfig_Normalize(t *testing.T) {
	var cfg Config
	cfg.normalize()

	if cfg.SampleInterval != DefaultSampleInterval {
		t.Errorf("expected default interval %v, got %v", DefaultSampleInterval, cfg.SampleInterval)
	}
	if cfg.BatteryThreshold != DefaultBatteryThreshold {
		t.Errorf("expected default battery threshold %v, got %v", DefaultBatteryThreshold, cfg.BatteryThreshold)
	}
	if cfg.CPUThreshold != DefaultCPUThreshold {
		t.Errorf("expected default cpu threshold %v, got %v", DefaultCPUThreshold, cfg.CPUThreshold)
	}
}
