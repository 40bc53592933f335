package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sample is one point-in-time utilization reading. Percentages are in
// [0, 100]. Samples drive the adaptive tunables only and are never
// persisted.
type Sample struct {
	CPUUtilization    float64   `json:"cpu_utilization"`
	MemoryUtilization float64   `json:"memory_utilization"`
	Timestamp         time.Time `json:"timestamp"`
}

// Sampler reads current host utilization. The host implementation uses
// gopsutil; tests inject a fake.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// HostSampler reads CPU and memory utilization of the local host.
type HostSampler struct{}

// NewHostSampler creates a gopsutil-backed sampler.
func NewHostSampler() *HostSampler {
	return &HostSampler{}
}

// Sample reads instantaneous utilization. CPU percent is measured since
// the previous call, which suits the monitor's fixed sampling cadence.
func (s *HostSampler) Sample(ctx context.Context) (Sample, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to sample cpu utilization: %w", err)
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to sample memory utilization: %w", err)
	}

	return Sample{
		CPUUtilization:    cpuPct,
		MemoryUtilization: vm.UsedPercent,
		Timestamp:         time.Now().UTC(),
	}, nil
}
