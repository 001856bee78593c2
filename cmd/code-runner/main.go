package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags for client commands.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "code-runner",
		Short: "Script runner dashboard and supervisor",
		Long: `code-runner runs uploaded scripts as supervised OS processes and
exposes status, logs, and lifecycle control over HTTP.

Examples:
  code-runner serve                           # Start daemon with defaults
  code-runner serve --config=config.toml      # Start daemon with config file
  code-runner upload ./bot.py                 # Upload a script to the daemon
  code-runner start bot.py                    # Start an uploaded script
  code-runner status bot.py                   # Show live status
  code-runner logs bot.py --lines=100         # Tail its log`,
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file (optional)")

	root.AddCommand(
		createServeCommand(globalFlags),
		createUploadCommand(),
		createStartCommand(),
		createStopCommand(),
		createStatusCommand(),
		createScriptsCommand(),
		createLogsCommand(),
		createRestartAllCommand(),
	)
	return root
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.URL, "api-url", "http://localhost:8000", "daemon URL")
	cmd.Flags().DurationVar(&flags.Timeout, "api-timeout", 30*time.Second, "request timeout")
}
