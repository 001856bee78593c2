package coderunner

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mdry44280-bot/code-runner-dashboard/internal/config"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/history"
	sqlitesink "github.com/mdry44280-bot/code-runner-dashboard/internal/history/sqlite"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/logsink"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/metrics"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/server"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/store"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Instance = supervisor.Instance

type Status = supervisor.Status

type RestartResult = supervisor.RestartResult

type HistoryEvent = history.Event

type HistorySink = history.Sink

var (
	ErrNotFound   = supervisor.ErrNotFound
	ErrNotRunning = supervisor.ErrNotRunning
)

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// DefaultConfig returns the built-in defaults (PORT env honored).
func DefaultConfig() Config { return config.Default() }

// Runner wires the script store, log sink, and supervisor together for
// embedding without the HTTP surface or CLI.
type Runner struct {
	store *store.Store
	logs  *logsink.Sink
	sup   *supervisor.Supervisor
}

// NewRunner creates a Runner rooted at the configured directories.
func NewRunner(cfg Config) (*Runner, error) {
	st, err := store.New(cfg.ScriptsDir)
	if err != nil {
		return nil, err
	}
	logs, err := logsink.New(cfg.LogsDir)
	if err != nil {
		return nil, err
	}
	sup := supervisor.New(supervisor.Config{
		Interpreters:       cfg.Supervisor.Interpreters,
		DefaultInterpreter: cfg.Supervisor.DefaultInterpreter,
		RestartPause:       cfg.Supervisor.RestartPause,
		RestartConcurrency: cfg.Supervisor.RestartConcurrency,
		StopConfirmTimeout: cfg.Supervisor.StopConfirmTimeout,
		ProbeInterval:      cfg.Supervisor.ProbeInterval,
	}, st, logs)
	return &Runner{store: st, logs: logs, sup: sup}, nil
}

func (r *Runner) Save(name string, content []byte) (store.Artifact, error) {
	return r.store.Save(name, content)
}
func (r *Runner) List() ([]store.Artifact, error)       { return r.store.List() }
func (r *Runner) Exists(name string) bool               { return r.store.Exists(name) }
func (r *Runner) Start(name string) (Instance, error)   { return r.sup.Start(name) }
func (r *Runner) Stop(name string) error                { return r.sup.Stop(name) }
func (r *Runner) StopAll()                              { r.sup.StopAll() }
func (r *Runner) Instances() []Instance                 { return r.sup.Instances() }
func (r *Runner) Count() int                            { return r.sup.Count() }
func (r *Runner) RestartAll(ctx context.Context) RestartResult {
	return r.sup.RestartAll(ctx)
}
func (r *Runner) Status(ctx context.Context, name string) Status {
	return r.sup.Status(ctx, name)
}
func (r *Runner) Tail(ctx context.Context, name string, maxLines int) (logsink.Tail, error) {
	return r.logs.TailFile(ctx, r.sup.LogPath(name), maxLines)
}

// EnableMetrics starts a background collector feeding Status and the
// default Prometheus registry.
func (r *Runner) EnableMetrics(ctx context.Context, interval time.Duration) (*metrics.Collector, error) {
	col := metrics.NewCollector(interval)
	if err := col.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	col.Start(ctx, r.sup.PIDs)
	r.sup.SetCollector(col)
	return col, nil
}

// EnableHistory attaches a SQLite lifecycle event sink.
func (r *Runner) EnableHistory(dsn string) (*sqlitesink.Sink, error) {
	sink, err := sqlitesink.New(dsn)
	if err != nil {
		return nil, err
	}
	r.sup.SetHistorySink(sink)
	return sink, nil
}

// NewHTTPServer starts the control surface for this runner on addr.
func (r *Runner) NewHTTPServer(addr string, hist server.HistoryReader) *http.Server {
	router := server.NewRouter(r.sup, r.store, r.logs)
	if hist != nil {
		router.SetHistoryReader(hist)
	}
	return server.NewServer(addr, router)
}
