package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config"
	configstore "github.com/ReadyNextOs/ReadyNextOsDrive/internal/config/store"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/daemon"
	driveversion "github.com/ReadyNextOs/ReadyNextOsDrive/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagPort       int
	flagRclonePath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "drived",
		Short:         "ReadyNextOs Drive daemon - runs scheduled WebDAV sync and the local API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}
	rootCmd.Version = driveversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "Override the API port (persisted)")
	rootCmd.Flags().StringVar(&flagRclonePath, "rclone-path", "", "Override the rclone binary path (persisted)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if err := setupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logging: %v\n", err)
	}

	if daemon.IsRunning() {
		return fmt.Errorf("daemon is already running")
	}

	if _, err := config.EnsureInstanceDirs(config.DefaultInstance); err != nil {
		return fmt.Errorf("failed to prepare instance directories: %w", err)
	}

	store, err := configstore.Open(configstore.Options{
		InstanceName: config.DefaultInstance,
	})
	if err != nil {
		return fmt.Errorf("failed to open config store: %w", err)
	}
	log.Printf("Config store: %s", store.Path())

	if err := applyTransportOverrides(store); err != nil {
		store.Close()
		return err
	}

	d, err := daemon.New(daemon.Options{Store: store})
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start()
	}()

	log.Printf("ReadyNextOs Drive daemon started (PID: %d)", os.Getpid())

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %s, shutting down...", sig)
		if err := d.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
		if err := <-errChan; err != nil {
			return err
		}
	case err := <-errChan:
		if err != nil {
			log.Printf("Daemon error: %v", err)
			return err
		}
	}

	log.Println("Daemon stopped")
	return nil
}

// applyTransportOverrides persists command-line transport flags so they
// survive restarts and are picked up when the daemon wires its services.
func applyTransportOverrides(store *configstore.Store) error {
	if flagPort == 0 && flagRclonePath == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := store.GetTransportConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to read transport config: %w", err)
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagRclonePath != "" {
		cfg.RclonePath = flagRclonePath
	}
	if err := store.SaveTransportConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to save transport config: %w", err)
	}
	log.Printf("Transport overrides saved (port=%d, rclone=%s)", cfg.Port, cfg.RclonePath)
	return nil
}

func setupLogging() error {
	paths, err := config.EnsureInstanceDirs(config.DefaultInstance)
	if err != nil {
		return fmt.Errorf("initialise instance directories: %w", err)
	}

	if err := os.MkdirAll(paths.Logs, 0o755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}

	logPath := filepath.Join(paths.Logs, "daemon.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	multi := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multi)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	log.Printf("=== ReadyNextOs Drive Daemon Starting (PID: %d) ===", os.Getpid())
	log.Printf("Log file: %s", logPath)
	return nil
}
