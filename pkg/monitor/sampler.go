package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
)

// Sample is one performance snapshot. Only the most recent sample is
// retained by the monitor; samples are never persisted.
type Sample struct {
	// CPUPercent is an approximate total CPU usage estimate, 0-100.
	CPUPercent float64 `json:"cpu_percent"`
	// MemoryBytes is the resident memory of this process.
	MemoryBytes uint64 `json:"memory_bytes"`
	// BatteryDrain is the estimated discharge rate in level fraction per
	// hour, zero while charging or unknown.
	BatteryDrain float64 `json:"battery_drain"`
	// SampledAt is when the sample was taken.
	SampledAt time.Time `json:"sampled_at"`
}

// Sampler produces CPU/memory samples. The monitor takes it as a seam so
// tests can script load without a real host.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// HostSampler reads CPU and process memory through gopsutil.
type HostSampler struct {
	proc *process.Process
}

// NewHostSampler creates a sampler bound to the current process.
func NewHostSampler() (*HostSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("resolve current process: %w", err)
	}
	return &HostSampler{proc: proc}, nil
}

// Sample reads the instantaneous CPU estimate and resident memory.
func (s *HostSampler) Sample(ctx context.Context) (Sample, error) {
	sample := Sample{SampledAt: time.Now()}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return sample, fmt.Errorf("cpu sample: %w", err)
	}
	if len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}

	memInfo, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return sample, fmt.Errorf("memory sample: %w", err)
	}
	if memInfo != nil {
		sample.MemoryBytes = memInfo.RSS
	}
	return sample, nil
}
