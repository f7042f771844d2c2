package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/procutil"
	driveversion "github.com/ReadyNextOs/ReadyNextOsDrive/internal/version"
	"github.com/spf13/cobra"
)

func newDaemonCommand() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:           "daemon",
		Short:         "Daemon management commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	statusCmd := &cobra.Command{
		Use:           "status",
		Short:         "Get daemon status",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          daemonStatus,
	}

	stopCmd := &cobra.Command{
		Use:           "stop",
		Short:         "Stop the daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          daemonStop,
	}

	daemonCmd.AddCommand(statusCmd, stopCmd)
	return daemonCmd
}

func daemonStatus(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	c, err := daemonClient()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	status, err := c.GetDaemonStatus(ctx)
	if err != nil {
		return out.Error("Failed to fetch daemon status", err)
	}

	if out.jsonMode {
		return out.Print(status)
	}

	if warning := driveversion.CheckVersionMismatch(status.Version); warning != "" {
		fmt.Fprintln(os.Stderr, warning)
	}

	fmt.Println("Daemon Status:")
	fmt.Printf("  Version: %s\n", status.Version)
	fmt.Printf("  Port: %d\n", status.Port)
	fmt.Printf("  Uptime: %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
	fmt.Printf("  Sync: %s\n", formatStatus(status.SyncStatus))
	if status.LoggedIn {
		fmt.Printf("  Account: %s (%s)\n", status.UserEmail, status.ServerURL)
	} else {
		fmt.Println("  Account: not logged in")
	}
	return nil
}

func daemonStop(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	var apiErr error
	if c, err := daemonClient(); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		err = c.ShutdownDaemon(ctx)
		cancel()
		if err == nil {
			return out.Success("Shutdown request sent to daemon", map[string]interface{}{
				"method": "api",
			})
		}
		apiErr = err
	} else {
		apiErr = err
	}

	paths := config.GetInstancePaths("")
	data, err := os.ReadFile(paths.Lock)
	if err != nil {
		return out.Error("Failed to stop daemon via API and local fallback", fmt.Errorf("%v; %w", apiErr, err))
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return out.Error("Invalid daemon PID file", err)
	}

	if err := procutil.TerminateByPID(pid); err != nil {
		return out.Error("Failed to signal daemon", err)
	}

	return out.Success("Sent termination signal to daemon", map[string]interface{}{
		"pid":    pid,
		"method": "signal",
	})
}
