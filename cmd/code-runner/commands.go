package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mdry44280-bot/code-runner-dashboard/pkg/client"
)

func newClient(flags *APIFlags) *client.Client {
	return client.New(client.Config{BaseURL: flags.URL, Timeout: flags.Timeout})
}

func createUploadCommand() *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a script to the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(flags).Upload(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("uploaded %s (%d bytes) -> %s\n", resp.Filename, resp.Size, resp.Path)
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStartCommand() *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "start <script>",
		Short: "Start an uploaded script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(flags).Start(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: pid %d\n", resp.ScriptName, resp.PID)
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStopCommand() *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "stop <script>",
		Short: "Stop a running script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(flags).Stop(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: stopped\n", resp.ScriptName)
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStatusCommand() *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "status <script>",
		Short: "Show live status of a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newClient(flags).Status(context.Background(), args[0])
			if err != nil {
				return err
			}
			switch st.Status {
			case "running":
				fmt.Printf("%s: running  pid=%d  cpu=%.1f%%  mem=%.1fMB  since=%s\n",
					st.ScriptName, st.PID, st.CPUPercent, st.MemoryMB, st.StartTime.Format("2006-01-02 15:04:05"))
			case "error":
				fmt.Printf("%s: error  pid=%d  %s\n", st.ScriptName, st.PID, st.Message)
			default:
				fmt.Printf("%s: stopped\n", st.ScriptName)
			}
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createScriptsCommand() *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "List uploaded scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(flags).Scripts(context.Background())
			if err != nil {
				return err
			}
			for _, s := range resp.Scripts {
				state := "stopped"
				if s.IsRunning {
					state = "running"
				}
				fmt.Printf("%-30s %8d bytes  %s\n", s.Name, s.Size, state)
			}
			fmt.Printf("total: %d\n", resp.Total)
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createLogsCommand() *cobra.Command {
	flags := &APIFlags{}
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <script>",
		Short: "Show the last lines of a script's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(flags).Logs(context.Background(), args[0], lines)
			if err != nil {
				return err
			}
			fmt.Print(resp.Logs)
			if resp.TotalLines > 0 {
				fmt.Printf("-- %d total lines --\n", resp.TotalLines)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 50, "number of trailing lines")
	addAPIFlags(cmd, flags)
	return cmd
}

func createRestartAllCommand() *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "restart-all",
		Short: "Restart every running script",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(flags).RestartAll(context.Background())
			if err != nil {
				return err
			}
			for _, name := range resp.Restarted {
				fmt.Printf("restarted: %s\n", name)
			}
			for _, f := range resp.Failed {
				fmt.Printf("failed: %s (%s)\n", f.ScriptName, f.Error)
			}
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}
