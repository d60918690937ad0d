package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wakeguard/wakeguard/pkg/platform"
)

// metrics exposes the monitor's readings as prometheus gauges. A nil
// registerer creates unregistered metrics, which keeps tests and
// library-only embedders free of a registry.
type metrics struct {
	batteryLevel    prometheus.Gauge
	batteryCharging prometheus.Gauge
	cpuPercent      prometheus.Gauge
	memoryBytes     prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		batteryLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wakeguard_battery_level",
			Help: "Last known battery level (0..1).",
		}),
		batteryCharging: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wakeguard_battery_charging",
			Help: "Whether the battery is charging (1) or discharging (0).",
		}),
		cpuPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wakeguard_cpu_percent",
			Help: "Approximate CPU usage estimate (0-100).",
		}),
		memoryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wakeguard_memory_bytes",
			Help: "Resident memory of the wakeguard process.",
		}),
	}
}

func (m *metrics) observeSample(sample Sample) {
	m.cpuPercent.Set(sample.CPUPercent)
	m.memoryBytes.Set(float64(sample.MemoryBytes))
}

func (m *metrics) observeBattery(state platform.BatteryState) {
	m.batteryLevel.Set(state.Level)
	if state.Charging {
		m.batteryCharging.Set(1)
	} else {
		m.batteryCharging.Set(0)
	}
}
