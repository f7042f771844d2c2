package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/engine"
	"github.com/spf13/cobra"
)

func newSyncCommand() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:           "sync",
		Short:         "Sync status and manual sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	statusCmd := &cobra.Command{
		Use:           "status",
		Short:         "Show the current sync status",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          syncStatus,
	}
	statusCmd.Flags().Bool("watch", false, "Stream status changes until interrupted")

	nowCmd := &cobra.Command{
		Use:           "now",
		Short:         "Trigger a sync cycle immediately",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          syncNow,
	}

	syncCmd.AddCommand(statusCmd, nowCmd)
	return syncCmd
}

func newActivityCommand() *cobra.Command {
	activityCmd := &cobra.Command{
		Use:           "activity",
		Short:         "Show recent sync activity",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          showActivity,
	}
	activityCmd.Flags().Int("limit", 0, "Maximum number of entries (default 50)")
	return activityCmd
}

func syncStatus(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	watch, _ := cmd.Flags().GetBool("watch")

	c, err := daemonClient()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	if watch {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		err := c.WatchSyncStatus(ctx, func(status engine.Status) {
			if out.jsonMode {
				out.Print(status)
				return
			}
			fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), formatStatus(status))
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return out.Error("Event stream closed", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	status, err := c.SyncStatus(ctx)
	if err != nil {
		return out.Error("Failed to fetch sync status", err)
	}

	if out.jsonMode {
		return out.Print(status)
	}
	fmt.Println(formatStatus(status))
	return nil
}

func syncNow(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	c, err := daemonClient()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := c.TriggerSync(ctx); err != nil {
		return out.Error("Failed to trigger sync", err)
	}

	return out.Success("Sync triggered", nil)
}

func showActivity(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	limit, _ := cmd.Flags().GetInt("limit")

	c, err := daemonClient()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	entries, err := c.Activity(ctx, limit)
	if err != nil {
		return out.Error("Failed to fetch activity", err)
	}

	if out.jsonMode {
		return out.Print(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No activity recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tSTATUS\tFILE\tDETAILS")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
			entry.Action,
			entry.Status,
			entry.FilePath,
			entry.Details,
		)
	}
	return w.Flush()
}

func formatStatus(status engine.Status) string {
	if status.State == engine.StateError && status.Message != "" {
		return fmt.Sprintf("%s: %s", status.State, status.Message)
	}
	return string(status.State)
}
