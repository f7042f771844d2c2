package daemon

import (
	"path/filepath"
	"testing"

	configstore "github.com/ReadyNextOs/ReadyNextOsDrive/internal/config/store"
)

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestNewWiresServices(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	st, err := configstore.Open(configstore.Options{
		DBPath: filepath.Join(t.TempDir(), "config.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	d, err := New(Options{Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if d.sessionManager == nil || d.syncEngine == nil || d.apiServer == nil || d.serviceHost == nil {
		t.Fatal("expected all services to be constructed")
	}

	// Shutdown before Start must not panic or block.
	if err := d.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestIsRunningWithoutLockFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if IsRunning() {
		t.Fatal("expected IsRunning to be false with no lock file")
	}
}
