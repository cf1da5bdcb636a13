package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// cpuSampleWindow is how long one CPU utilisation sample is measured over.
const cpuSampleWindow = 200 * time.Millisecond

// System reports host CPU and memory utilisation as cpu_usage and
// memory_usage samples.
type System struct {
	id       string
	interval time.Duration

	// Collection functions, replaceable in tests.
	cpuPercent func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	memStats   func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// NewSystem returns a host stats source.
func NewSystem(id string, interval time.Duration) *System {
	return &System{
		id:         id,
		interval:   interval,
		cpuPercent: cpu.PercentWithContext,
		memStats:   mem.VirtualMemoryWithContext,
	}
}

func (s *System) ID() string              { return s.id }
func (s *System) Interval() time.Duration { return s.interval }

// Collect samples CPU over a short window and reads virtual memory usage.
// A partial result is returned when only one of the two probes fails.
func (s *System) Collect(ctx context.Context) ([]types.Metric, error) {
	now := time.Now().UTC()
	var (
		out  []types.Metric
		errs []error
	)

	if pct, err := s.cpuPercent(ctx, cpuSampleWindow, false); err != nil {
		errs = append(errs, fmt.Errorf("cpu percent: %w", err))
	} else if len(pct) > 0 {
		out = append(out, types.Metric{Source: s.id, Name: string(types.MetricCPUUsage), Value: pct[0], Timestamp: now})
	}

	if vm, err := s.memStats(ctx); err != nil {
		errs = append(errs, fmt.Errorf("virtual memory: %w", err))
	} else {
		out = append(out, types.Metric{Source: s.id, Name: string(types.MetricMemoryUsage), Value: vm.UsedPercent, Timestamp: now})
	}

	if len(out) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("system %q: %w", s.id, errors.Join(errs...))
	}
	return out, nil
}
