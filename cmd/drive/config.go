package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// syncConfigDoc is the YAML shape used by config export/import. Only the
// tunable fields appear; identity fields are owned by login.
type syncConfigDoc struct {
	PersonalPath      string `yaml:"personal_sync_path"`
	SharedPath        string `yaml:"shared_sync_path"`
	SyncIntervalSecs  int    `yaml:"sync_interval_secs"`
	SyncSchedule      string `yaml:"sync_schedule,omitempty"`
	WatchLocalChanges bool   `yaml:"watch_local_changes"`
	SyncOnStartup     bool   `yaml:"sync_on_startup"`
	MaxFileSizeBytes  int64  `yaml:"max_file_size_bytes"`
}

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:           "config",
		Short:         "Inspect and change sync configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	showCmd := &cobra.Command{
		Use:           "show",
		Short:         "Show the current sync configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configShow,
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one sync configuration value",
		Long: `Set one sync configuration value.

Keys:
  personal-path        Local folder for personal files
  shared-path          Local folder for shared files
  interval             Seconds between scheduled syncs
  schedule             Cron expression overriding the interval (empty clears)
  watch                Trigger sync on local file changes (true/false)
  sync-on-startup      Run one sync when the daemon starts (true/false)
  max-file-size        Skip files larger than this many bytes (0 = no limit)`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configSet,
	}

	exportCmd := &cobra.Command{
		Use:           "export [file]",
		Short:         "Write the sync configuration as YAML (stdout when no file)",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configExport,
	}

	importCmd := &cobra.Command{
		Use:           "import <file>",
		Short:         "Apply sync configuration from a YAML file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configImport,
	}

	configCmd.AddCommand(showCmd, setCmd, exportCmd, importCmd)
	return configCmd
}

func configShow(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	cfg, err := fetchConfig()
	if err != nil {
		return out.Error("Failed to fetch configuration", err)
	}

	if out.jsonMode {
		return out.Print(cfg)
	}

	fmt.Println("Sync Configuration:")
	fmt.Printf("  Server: %s\n", orUnset(cfg.ServerURL))
	fmt.Printf("  Account: %s\n", orUnset(cfg.UserEmail))
	fmt.Printf("  Personal path: %s\n", cfg.PersonalPath)
	fmt.Printf("  Shared path: %s\n", cfg.SharedPath)
	fmt.Printf("  Interval: %ds\n", cfg.SyncIntervalSecs)
	fmt.Printf("  Schedule: %s\n", orUnset(cfg.SyncSchedule))
	fmt.Printf("  Watch local changes: %v\n", cfg.WatchLocalChanges)
	fmt.Printf("  Sync on startup: %v\n", cfg.SyncOnStartup)
	if cfg.MaxFileSizeBytes > 0 {
		fmt.Printf("  Max file size: %d bytes\n", cfg.MaxFileSizeBytes)
	} else {
		fmt.Println("  Max file size: unlimited")
	}
	return nil
}

func configSet(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	key, value := args[0], args[1]

	edits, err := editsForKey(key, value)
	if err != nil {
		return out.Error("Invalid configuration value", err)
	}

	cfg, err := applyEdits(edits)
	if err != nil {
		return out.Error("Failed to update configuration", err)
	}

	return out.Success(fmt.Sprintf("Updated %s", key), map[string]interface{}{
		"config": cfg,
	})
}

func configExport(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	cfg, err := fetchConfig()
	if err != nil {
		return out.Error("Failed to fetch configuration", err)
	}

	doc := syncConfigDoc{
		PersonalPath:      cfg.PersonalPath,
		SharedPath:        cfg.SharedPath,
		SyncIntervalSecs:  cfg.SyncIntervalSecs,
		SyncSchedule:      cfg.SyncSchedule,
		WatchLocalChanges: cfg.WatchLocalChanges,
		SyncOnStartup:     cfg.SyncOnStartup,
		MaxFileSizeBytes:  cfg.MaxFileSizeBytes,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return out.Error("Failed to encode configuration", err)
	}

	if len(args) == 0 {
		fmt.Print(string(data))
		return nil
	}

	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return out.Error("Failed to write file", err)
	}
	return out.Success(fmt.Sprintf("Configuration written to %s", args[0]), nil)
}

func configImport(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return out.Error("Failed to read file", err)
	}

	var doc syncConfigDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return out.Error("Failed to parse YAML", err)
	}

	edits := store.SyncConfigEdits{
		PersonalPath:      &doc.PersonalPath,
		SharedPath:        &doc.SharedPath,
		SyncIntervalSecs:  &doc.SyncIntervalSecs,
		SyncSchedule:      &doc.SyncSchedule,
		WatchLocalChanges: &doc.WatchLocalChanges,
		SyncOnStartup:     &doc.SyncOnStartup,
		MaxFileSizeBytes:  &doc.MaxFileSizeBytes,
	}

	cfg, err := applyEdits(edits)
	if err != nil {
		return out.Error("Failed to apply configuration", err)
	}

	return out.Success("Configuration imported", map[string]interface{}{
		"config": cfg,
	})
}

func fetchConfig() (store.SyncConfig, error) {
	c, err := daemonClient()
	if err != nil {
		return store.SyncConfig{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return c.GetSyncConfig(ctx)
}

func applyEdits(edits store.SyncConfigEdits) (store.SyncConfig, error) {
	c, err := daemonClient()
	if err != nil {
		return store.SyncConfig{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return c.UpdateSyncConfig(ctx, edits)
}

func editsForKey(key, value string) (store.SyncConfigEdits, error) {
	var edits store.SyncConfigEdits
	switch key {
	case "personal-path":
		edits.PersonalPath = &value
	case "shared-path":
		edits.SharedPath = &value
	case "interval":
		secs, err := strconv.Atoi(value)
		if err != nil {
			return edits, fmt.Errorf("interval must be a number of seconds: %w", err)
		}
		edits.SyncIntervalSecs = &secs
	case "schedule":
		edits.SyncSchedule = &value
	case "watch":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return edits, fmt.Errorf("watch must be true or false: %w", err)
		}
		edits.WatchLocalChanges = &enabled
	case "sync-on-startup":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return edits, fmt.Errorf("sync-on-startup must be true or false: %w", err)
		}
		edits.SyncOnStartup = &enabled
	case "max-file-size":
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return edits, fmt.Errorf("max-file-size must be a number of bytes: %w", err)
		}
		edits.MaxFileSizeBytes = &size
	default:
		return edits, fmt.Errorf("unknown key %q", key)
	}
	return edits, nil
}

func orUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return value
}
