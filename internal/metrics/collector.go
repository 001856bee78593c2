package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Collector periodically samples every tracked instance and caches the
// last-known Sample per script name. Status requests read the cache
// instead of paying the CPU sampling window on the request path. The
// same samples feed Prometheus gauges.
type Collector struct {
	interval time.Duration

	mu     sync.RWMutex
	latest map[string]Sample

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	running    prometheus.Gauge
}

func NewCollector(interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Collector{
		interval: interval,
		latest:   make(map[string]Sample),
		stopCh:   make(chan struct{}),
		cpuPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "code_runner",
				Subsystem: "script",
				Name:      "cpu_percent",
				Help:      "CPU usage percentage for supervised scripts.",
			}, []string{"script"},
		),
		memoryMB: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "code_runner",
				Subsystem: "script",
				Name:      "memory_mb",
				Help:      "Resident memory in MB for supervised scripts.",
			}, []string{"script"},
		),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "code_runner",
				Subsystem: "script",
				Name:      "running_total",
				Help:      "Number of currently supervised script instances.",
			},
		),
	}
}

// Register registers the collector's gauges, tolerating duplicates so
// embedding callers can share a registry.
func (c *Collector) Register(r prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.cpuPercent, c.memoryMB, c.running} {
		if err := r.Register(col); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// Start launches the sampling loop. getPIDs returns the current table
// snapshot (script name -> PID) owned by the supervisor.
func (c *Collector) Start(ctx context.Context, getPIDs func() map[string]int32) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.collect(ctx, getPIDs())
			}
		}
	}()
}

func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) collect(ctx context.Context, pids map[string]int32) {
	now := time.Now()
	fresh := make(map[string]Sample, len(pids))
	for name, pid := range pids {
		if pid <= 0 {
			continue
		}
		proc, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			slog.Debug("metrics probe failed", "script", name, "pid", pid, "error", err)
			continue
		}
		// Interval 0 diffs against the previous call, so the steady-state
		// loop never blocks on a sampling window.
		cpu, err := proc.PercentWithContext(ctx, 0)
		if err != nil {
			cpu = 0
		}
		mem, err := proc.MemoryInfoWithContext(ctx)
		if err != nil {
			slog.Debug("memory probe failed", "script", name, "pid", pid, "error", err)
			continue
		}
		fresh[name] = Sample{
			PID:        pid,
			CPUPercent: cpu,
			MemoryMB:   float64(mem.RSS) / 1024 / 1024,
			MemoryRSS:  mem.RSS,
			Timestamp:  now,
		}
	}

	c.mu.Lock()
	for name := range c.latest {
		if _, ok := pids[name]; !ok {
			delete(c.latest, name)
			c.cpuPercent.DeleteLabelValues(name)
			c.memoryMB.DeleteLabelValues(name)
		}
	}
	for name, s := range fresh {
		c.latest[name] = s
		c.cpuPercent.WithLabelValues(name).Set(s.CPUPercent)
		c.memoryMB.WithLabelValues(name).Set(s.MemoryMB)
	}
	c.running.Set(float64(len(pids)))
	c.mu.Unlock()
}

// Latest returns the cached sample for name, if one has been taken and
// it still belongs to the given PID (a restart invalidates the cache).
func (c *Collector) Latest(name string, pid int32) (Sample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.latest[name]
	if !ok || s.PID != pid {
		return Sample{}, false
	}
	return s, true
}
