package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Sample holds one CPU/memory observation of a live process.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	Timestamp  time.Time `json:"timestamp"`
}

// Probe queries a process by PID. CPU percentage needs a sampling
// window, so a cold probe blocks for the given interval; callers on a
// request path should prefer the Collector cache and only fall back to
// Probe with a short interval.
func Probe(ctx context.Context, pid int32, interval time.Duration) (Sample, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return Sample{}, fmt.Errorf("probe pid %d: %w", pid, err)
	}
	cpu, err := proc.PercentWithContext(ctx, interval)
	if err != nil {
		return Sample{}, fmt.Errorf("probe pid %d: cpu: %w", pid, err)
	}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("probe pid %d: memory: %w", pid, err)
	}
	return Sample{
		PID:        pid,
		CPUPercent: cpu,
		MemoryMB:   float64(mem.RSS) / 1024 / 1024,
		MemoryRSS:  mem.RSS,
		Timestamp:  time.Now(),
	}, nil
}
