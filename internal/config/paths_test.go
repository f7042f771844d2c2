package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetInstancePathsDefaultsInstanceName(t *testing.T) {
	t.Parallel()

	paths := GetInstancePaths("")
	if !strings.Contains(paths.Home, filepath.Join("instances", "default")) {
		t.Errorf("expected default instance in path, got %s", paths.Home)
	}
	if filepath.Dir(paths.ConfigDB) != paths.Home {
		t.Errorf("config.db should live in instance home, got %s", paths.ConfigDB)
	}
}

func TestEnsureInstanceDirsCreatesTree(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	paths, err := EnsureInstanceDirs("test-instance")
	if err != nil {
		t.Fatalf("EnsureInstanceDirs: %v", err)
	}

	for _, dir := range []string{paths.Home, paths.Logs, paths.TempDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"~", home},
		{"~/docs", filepath.Join(home, "docs")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~user/docs", "~user/docs"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ExpandPath(tt.input); got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
