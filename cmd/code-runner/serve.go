package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	coderunner "github.com/mdry44280-bot/code-runner-dashboard"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/logger"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/server"
)

// ServeFlags holds serve-specific flags.
type ServeFlags struct {
	Listen string
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the code-runner daemon",
		Long: `Start the daemon that supervises uploaded scripts and serves the
HTTP control surface.

Examples:
  code-runner serve                       # defaults, PORT env honored
  code-runner serve config.toml           # explicit config file
  code-runner serve --listen=:9000        # override listen address`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServe(configPath, serveFlags)
		},
	}
	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "listen address override (e.g. :9000)")
	return cmd
}

func runServe(configPath string, flags *ServeFlags) error {
	cfg := coderunner.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = coderunner.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
	}
	if flags.Listen != "" {
		cfg.Listen = flags.Listen
	}

	closeLog, err := logger.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	runner, err := coderunner.NewRunner(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		col, err := runner.EnableMetrics(ctx, cfg.Metrics.Interval)
		if err != nil {
			return fmt.Errorf("metrics setup: %w", err)
		}
		defer col.Stop()
		slog.Info("metrics collection started", "interval", cfg.Metrics.Interval)
	}

	var hist server.HistoryReader
	if cfg.History.DSN != "" {
		sink, err := runner.EnableHistory(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("history sink setup: %w", err)
		}
		defer func() { _ = sink.Close() }()
		hist = sink
		slog.Info("history sink enabled", "dsn", cfg.History.DSN)
	}

	srv := runner.NewHTTPServer(cfg.Listen, hist)
	slog.Info("code-runner daemon listening", "addr", cfg.Listen,
		"scripts_dir", cfg.ScriptsDir, "logs_dir", cfg.LogsDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	// Running scripts are deliberately left alive: they are process-group
	// leaders detached from the daemon, and the table is ephemeral. A
	// restarted daemon will not track them.
	return srv.Close()
}
