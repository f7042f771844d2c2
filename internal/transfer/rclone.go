package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// firstRunMarker signals that an initial resync has completed for a
	// local directory. Until it exists, bisync needs --resync.
	firstRunMarker = ".readynextos-sync-init"

	defaultSyncTimeout = 30 * time.Minute
)

// RcloneOptions configures an RcloneAdapter.
type RcloneOptions struct {
	// BinaryPath locates the rclone executable. Empty means "rclone"
	// resolved via PATH.
	BinaryPath string
	// Timeout bounds one bisync invocation. Zero uses a default.
	Timeout time.Duration
}

// RcloneAdapter runs rclone bisync against a WebDAV remote.
type RcloneAdapter struct {
	binary  string
	timeout time.Duration
}

// NewRcloneAdapter builds an adapter from options.
func NewRcloneAdapter(opts RcloneOptions) *RcloneAdapter {
	binary := opts.BinaryPath
	if binary == "" {
		binary = "rclone"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}
	return &RcloneAdapter{binary: binary, timeout: timeout}
}

// Available reports whether the rclone binary can be located.
func (a *RcloneAdapter) Available() error {
	if _, err := exec.LookPath(a.binary); err != nil {
		return fmt.Errorf("transfer: rclone not found: %w", err)
	}
	return nil
}

// Sync runs one bidirectional pass for the given directory pair. The
// returned Result carries per-file events parsed from the tool log even
// when the run itself failed.
func (a *RcloneAdapter) Sync(ctx context.Context, req Request) (Result, error) {
	obscured, err := a.obscure(ctx, req.Token)
	if err != nil {
		return Result{}, err
	}

	marker := filepath.Join(req.LocalPath, firstRunMarker)
	_, statErr := os.Stat(marker)
	firstRun := os.IsNotExist(statErr)

	args := []string{
		"bisync",
		":webdav:",
		req.LocalPath,
		"--webdav-url=" + req.RemoteURL,
		"--webdav-user=" + req.Username,
		"--webdav-pass=" + obscured,
		"--create-empty-src-dirs",
		"--resilient",
		"--conflict-resolve=newer",
		"--use-json-log",
		"-v",
	}
	if req.MaxFileSizeBytes > 0 {
		args = append(args, fmt.Sprintf("--max-size=%db", req.MaxFileSizeBytes))
	}
	if firstRun {
		args = append(args, "--resync")
	} else {
		args = append(args, "--recover")
	}

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	log.Printf("[Transfer] Running bisync for %s", req.RemoteURL)

	cmd := exec.CommandContext(runCtx, a.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	// rclone logs to stderr; stdout is usually empty but parse both.
	events, plain := parseLog(stderr.String())
	moreEvents, _ := parseLog(stdout.String())
	events = append(events, moreEvents...)
	result := Result{Events: events}

	if runErr == nil {
		if firstRun {
			if err := os.WriteFile(marker, []byte("initialized\n"), 0o644); err != nil {
				log.Printf("[Transfer] Warning: could not write init marker: %v", err)
			}
		}
		return result, nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return result, fmt.Errorf("%w after %s", ErrTimeout, a.timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return result, &TransferError{
			ExitCode: exitErr.ExitCode(),
			Stderr:   strings.Join(plain, "\n"),
		}
	}
	return result, fmt.Errorf("transfer: run rclone: %w", runErr)
}

// obscure converts a plaintext token into rclone's obscured form via the
// obscure subcommand.
func (a *RcloneAdapter) obscure(ctx context.Context, token string) (string, error) {
	cmd := exec.CommandContext(ctx, a.binary, "obscure", token)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("transfer: obscure credentials: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
