package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mdry44280-bot/code-runner-dashboard/internal/history"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/logsink"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/metrics"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/store"
)

// Instance is the public descriptor of one supervised script process.
type Instance struct {
	ScriptName string    `json:"script_name"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"start_time"`
	LogFile    string    `json:"log_file"`
}

// Status is the observable state of a script: stopped, running (with a
// resource sample), or error when the tracked PID cannot be probed.
type Status struct {
	ScriptName string    `json:"script_name"`
	State      string    `json:"status"`
	PID        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"start_time,omitzero"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
	MemoryMB   float64   `json:"memory_mb,omitempty"`
	Message    string    `json:"message,omitempty"`
}

const (
	StateRunning = "running"
	StateStopped = "stopped"
	StateError   = "error"
)

// RestartResult reports a restart-all sweep. Failures are collected
// rather than silently dropped; the names in Restarted came back up.
type RestartResult struct {
	Restarted []string         `json:"restarted"`
	Failed    []RestartFailure `json:"failed,omitempty"`
}

type RestartFailure struct {
	ScriptName string `json:"script_name"`
	Error      string `json:"error"`
}

// Config tunes supervisor behavior. Zero values get sane defaults.
type Config struct {
	// Interpreters maps script extension (".py") to the binary used to
	// run it. DefaultInterpreter covers unknown extensions.
	Interpreters       map[string]string
	DefaultInterpreter string
	// RestartPause is the stop-to-start gap during RestartAll.
	RestartPause time.Duration
	// RestartConcurrency bounds the RestartAll fan-out.
	RestartConcurrency int
	// StopConfirmTimeout bounds the async wait for a killed process
	// group to actually exit before logging a warning.
	StopConfirmTimeout time.Duration
	// ProbeInterval is the CPU sampling window used when the collector
	// cache misses and Status falls back to a direct probe.
	ProbeInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interpreters == nil {
		c.Interpreters = map[string]string{".py": "python3", ".sh": "sh"}
	}
	if c.DefaultInterpreter == "" {
		c.DefaultInterpreter = "python3"
	}
	if c.RestartPause <= 0 {
		c.RestartPause = time.Second
	}
	if c.RestartConcurrency <= 0 {
		c.RestartConcurrency = 4
	}
	if c.StopConfirmTimeout <= 0 {
		c.StopConfirmTimeout = 5 * time.Second
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 200 * time.Millisecond
	}
}

// instance pairs the public descriptor with the live handles the
// supervisor needs: the command for reaping and a channel closed once
// the monitor goroutine has observed the exit.
type instance struct {
	Instance
	cmd      *exec.Cmd
	waitDone chan struct{}
}

// Supervisor is the single authority over the in-memory instance
// table. All check-then-act sequences on the table run under mu, which
// serializes Start/Stop interleavings per name.
type Supervisor struct {
	cfg       Config
	store     *store.Store
	logs      *logsink.Sink
	collector *metrics.Collector
	hist      history.Sink

	mu    sync.Mutex
	table map[string]*instance
}

func New(cfg Config, st *store.Store, logs *logsink.Sink) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{
		cfg:   cfg,
		store: st,
		logs:  logs,
		table: make(map[string]*instance),
	}
}

// SetCollector attaches a metrics collector whose cache serves Status.
func (s *Supervisor) SetCollector(c *metrics.Collector) { s.collector = c }

// SetHistorySink attaches a lifecycle event sink. Sends are best-effort.
func (s *Supervisor) SetHistorySink(h history.Sink) { s.hist = h }

// interpreterFor picks the interpreter binary for a script name.
func (s *Supervisor) interpreterFor(name string) string {
	if bin, ok := s.cfg.Interpreters[strings.ToLower(filepath.Ext(name))]; ok {
		return bin
	}
	return s.cfg.DefaultInterpreter
}

// Start launches name as a detached process-group leader with stdout
// and stderr appended to its log file. Starting an already-running
// script is idempotent and returns the existing descriptor. The table
// lock is held across the exists-check, spawn, and insert so that
// concurrent Start calls cannot double-spawn.
func (s *Supervisor) Start(name string) (Instance, error) {
	if !s.store.Exists(name) {
		return Instance{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if inst, ok := s.table[name]; ok {
		return inst.Instance, nil
	}

	logFile, err := s.logs.OpenAppend(name)
	if err != nil {
		return Instance{}, fmt.Errorf("%w: %s: %v", ErrSpawn, name, err)
	}

	cmd := exec.Command(s.interpreterFor(name), s.store.Path(name))
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return Instance{}, fmt.Errorf("%w: %s: %v", ErrSpawn, name, err)
	}
	// The child holds its own descriptor; the parent copy is done.
	_ = logFile.Close()

	inst := &instance{
		Instance: Instance{
			ScriptName: name,
			PID:        cmd.Process.Pid,
			StartedAt:  time.Now(),
			LogFile:    s.logs.Path(name),
		},
		cmd:      cmd,
		waitDone: make(chan struct{}),
	}
	s.table[name] = inst

	go s.monitor(inst)

	slog.Info("script started", "script", name, "pid", inst.PID)
	s.record(history.EventStart, inst.Instance, "")
	return inst.Instance, nil
}

// monitor owns cmd.Wait for one instance. When the child exits outside
// of Stop, the stale table entry is removed here (reap-on-exit policy),
// so externally-died scripts report stopped rather than lingering.
func (s *Supervisor) monitor(inst *instance) {
	err := inst.cmd.Wait()
	close(inst.waitDone)

	s.mu.Lock()
	reaped := false
	if cur, ok := s.table[inst.ScriptName]; ok && cur == inst {
		delete(s.table, inst.ScriptName)
		reaped = true
	}
	s.mu.Unlock()

	if reaped {
		slog.Info("script exited", "script", inst.ScriptName, "pid", inst.PID, "error", err)
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		s.record(history.EventExit, inst.Instance, detail)
	}
}

// Stop kills the whole process group rooted at the instance's PID so
// children forked by the script die with it. On delivery failure the
// entry is kept, leaving the table consistent with the OS as far as we
// can tell. On success the entry is removed immediately and the actual
// exit is confirmed asynchronously with a bounded wait.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	inst, ok := s.table[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	if err := syscall.Kill(-inst.PID, syscall.SIGKILL); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", ErrStop, name, err)
	}
	delete(s.table, name)
	s.mu.Unlock()

	go func() {
		select {
		case <-inst.waitDone:
			slog.Debug("script stop confirmed", "script", name, "pid", inst.PID)
		case <-time.After(s.cfg.StopConfirmTimeout):
			slog.Warn("script stop not confirmed", "script", name, "pid", inst.PID,
				"timeout", s.cfg.StopConfirmTimeout)
		}
	}()

	slog.Info("script stopped", "script", name, "pid", inst.PID)
	s.record(history.EventStop, inst.Instance, "")
	return nil
}

// Status reports the observable state of name. For tracked instances
// the resource sample comes from the collector cache when available;
// otherwise a direct probe with a short sampling window runs, bounded
// by ctx. A failed probe reports the error state and leaves cleanup to
// the monitor goroutine.
func (s *Supervisor) Status(ctx context.Context, name string) Status {
	s.mu.Lock()
	inst, ok := s.table[name]
	var snap Instance
	if ok {
		snap = inst.Instance
	}
	s.mu.Unlock()

	if !ok {
		return Status{ScriptName: name, State: StateStopped}
	}

	if s.collector != nil {
		if sample, ok := s.collector.Latest(name, int32(snap.PID)); ok {
			return Status{
				ScriptName: name,
				State:      StateRunning,
				PID:        snap.PID,
				StartedAt:  snap.StartedAt,
				CPUPercent: sample.CPUPercent,
				MemoryMB:   sample.MemoryMB,
			}
		}
	}

	sample, err := metrics.Probe(ctx, int32(snap.PID), s.cfg.ProbeInterval)
	if err != nil {
		return Status{
			ScriptName: name,
			State:      StateError,
			PID:        snap.PID,
			Message:    fmt.Sprintf("%v: %v", ErrProbe, err),
		}
	}
	return Status{
		ScriptName: name,
		State:      StateRunning,
		PID:        snap.PID,
		StartedAt:  snap.StartedAt,
		CPUPercent: sample.CPUPercent,
		MemoryMB:   sample.MemoryMB,
	}
}

// LogPath resolves where logs for name live, preferring the path the
// live instance was started with.
func (s *Supervisor) LogPath(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.table[name]; ok {
		return inst.LogFile
	}
	return s.logs.Path(name)
}

// Running reports whether name is currently tracked.
func (s *Supervisor) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.table[name]
	return ok
}

// Count returns the number of tracked instances.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table)
}

// Instances returns a snapshot of all tracked instances, name-sorted.
func (s *Supervisor) Instances() []Instance {
	s.mu.Lock()
	out := make([]Instance, 0, len(s.table))
	for _, inst := range s.table {
		out = append(out, inst.Instance)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ScriptName < out[j].ScriptName })
	return out
}

// PIDs returns the current script-name -> PID snapshot for the metrics
// collector.
func (s *Supervisor) PIDs() map[string]int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int32, len(s.table))
	for name, inst := range s.table {
		out[name] = int32(inst.PID)
	}
	return out
}

// RestartAll stops and restarts every tracked instance: stop, a fixed
// pause, then start, fanned out with bounded concurrency. Per-script
// failures are collected into the result instead of being swallowed.
func (s *Supervisor) RestartAll(ctx context.Context) RestartResult {
	s.mu.Lock()
	names := make([]string, 0, len(s.table))
	for name := range s.table {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)

	var (
		resMu  sync.Mutex
		result RestartResult
		wg     sync.WaitGroup
		sem    = make(chan struct{}, s.cfg.RestartConcurrency)
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := s.restartOne(ctx, name)
			resMu.Lock()
			if err != nil {
				result.Failed = append(result.Failed, RestartFailure{ScriptName: name, Error: err.Error()})
			} else {
				result.Restarted = append(result.Restarted, name)
			}
			resMu.Unlock()
		}(name)
	}
	wg.Wait()

	sort.Strings(result.Restarted)
	sort.Slice(result.Failed, func(i, j int) bool {
		return result.Failed[i].ScriptName < result.Failed[j].ScriptName
	})
	return result
}

func (s *Supervisor) restartOne(ctx context.Context, name string) error {
	if err := s.Stop(name); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.RestartPause):
	}
	_, err := s.Start(name)
	if err != nil {
		slog.Warn("restart failed", "script", name, "error", err)
	}
	return err
}

// StopAll kills every tracked instance, used on daemon shutdown.
func (s *Supervisor) StopAll() {
	for _, inst := range s.Instances() {
		if err := s.Stop(inst.ScriptName); err != nil {
			slog.Warn("shutdown stop failed", "script", inst.ScriptName, "error", err)
		}
	}
}

func (s *Supervisor) record(typ history.EventType, inst Instance, detail string) {
	if s.hist == nil {
		return
	}
	ev := history.Event{
		Type:       typ,
		ScriptName: inst.ScriptName,
		PID:        inst.PID,
		OccurredAt: time.Now(),
		Detail:     detail,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.hist.Send(ctx, ev); err != nil {
		slog.Warn("history sink send failed", "script", inst.ScriptName, "error", err)
	}
}
