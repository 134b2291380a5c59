package perf

import (
	"context"
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sample is a snapshot of the host resources while a case runs.
type Sample struct {
	CPUPercent  float64
	MemoryBytes uint64
}

// Sampler takes resource samples.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// HostSampler samples CPU and memory usage of the host driving the device.
type HostSampler struct{}

// Sample implements Sampler. CPU usage is measured since the previous call.
func (HostSampler) Sample(ctx context.Context) (Sample, error) {
	percent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to get CPU usage: %w", err)
	}
	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to get memory usage: %w", err)
	}

	s := Sample{MemoryBytes: vmem.Used}
	if len(percent) > 0 && !math.IsNaN(percent[0]) {
		s.CPUPercent = percent[0]
	}
	return s, nil
}
