// Package openpath opens a directory in the platform file manager.
package openpath

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Open launches the OS file manager on the given directory. The path must
// exist.
func Open(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("openpath: %w", err)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("openpath: launch file manager: %w", err)
	}
	// Detach; the file manager outlives this process.
	go cmd.Wait()
	return nil
}
