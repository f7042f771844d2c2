package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultInstance is the instance used when no explicit name is given.
	DefaultInstance = "default"
)

// InstancePaths contains all filesystem paths for a Drive instance.
type InstancePaths struct {
	Home     string // Instance home directory
	ConfigDB string // SQLite configuration/activity store path
	Lock     string // Daemon PID lockfile path
	Logs     string // Logs directory
	TempDir  string // Temporary files directory
}

// GetInstancePaths returns all paths for a given instance.
// Empty instance name defaults to "default".
func GetInstancePaths(instanceName string) InstancePaths {
	if instanceName == "" {
		instanceName = DefaultInstance
	}

	instanceDir := filepath.Join(GetDriveHome(), "instances", instanceName)

	return InstancePaths{
		Home:     instanceDir,
		ConfigDB: filepath.Join(instanceDir, "config.db"),
		Lock:     filepath.Join(instanceDir, "daemon.lock"),
		Logs:     filepath.Join(instanceDir, "logs"),
		TempDir:  filepath.Join(instanceDir, "tmp"),
	}
}

// EnsureInstanceDirs creates the directory tree for an instance and returns
// its paths.
func EnsureInstanceDirs(instanceName string) (InstancePaths, error) {
	paths := GetInstancePaths(instanceName)
	for _, dir := range []string{paths.Home, paths.Logs, paths.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return InstancePaths{}, fmt.Errorf("config: create directory %s: %w", dir, err)
		}
	}
	return paths, nil
}

// GetDriveHome returns the Drive home directory (~/.readynextos-drive).
func GetDriveHome() string {
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".readynextos-drive")
}

// DefaultSyncBase returns the default parent directory for the two local sync
// folders (~/ReadyNextOs).
func DefaultSyncBase() string {
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, "ReadyNextOs")
}

// ExpandPath expands a leading ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) == 1 {
		return home
	}
	if path[1] == '/' || path[1] == os.PathSeparator {
		return filepath.Join(home, path[2:])
	}
	return path
}
