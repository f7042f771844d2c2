package engine

import (
	"context"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config/store"
)

const (
	// debounceWindow coalesces a burst of file events into one trigger.
	debounceWindow = 2 * time.Second

	// reconcileInterval is how often watched roots are re-read from
	// config, picking up path edits and the watch toggle.
	reconcileInterval = 30 * time.Second
)

// watcher turns local filesystem changes into sync triggers. The watched
// roots follow the configured sync paths; disabling watch_local_changes
// removes all watches until it is enabled again.
type watcher struct {
	store   *store.Store
	trigger func()

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	roots   []string
	stopped chan struct{}
	wg      sync.WaitGroup
}

func newWatcher(st *store.Store, trigger func()) *watcher {
	return &watcher{store: st, trigger: trigger, stopped: make(chan struct{})}
}

func (w *watcher) start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *watcher) stop() {
	select {
	case <-w.stopped:
	default:
		close(w.stopped)
	}
	w.wg.Wait()
}

func (w *watcher) run(ctx context.Context) {
	defer w.wg.Done()
	defer w.teardown()

	w.reconcile(ctx)

	reconcile := time.NewTicker(reconcileInterval)
	defer reconcile.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		var events chan fsnotify.Event
		var errs chan error
		w.mu.Lock()
		if w.fsw != nil {
			events = w.fsw.Events
			errs = w.fsw.Errors
		}
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-w.stopped:
			return
		case <-reconcile.C:
			w.reconcile(ctx)
		case ev, ok := <-events:
			if !ok {
				continue
			}
			if !w.relevant(ev) {
				continue
			}
			// New directories join the watch set immediately so files
			// created inside them are seen.
			if ev.Has(fsnotify.Create) {
				w.addTree(ev.Name)
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceWindow)
				debounceC = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(debounceWindow)
			}
		case <-debounceC:
			debounce = nil
			debounceC = nil
			log.Printf("[Watcher] Local changes detected, triggering sync")
			w.trigger()
		case err, ok := <-errs:
			if ok && err != nil {
				log.Printf("[Watcher] Error: %v", err)
			}
		}
	}
}

// reconcile aligns the watch set with current config. It rebuilds the
// underlying watcher when roots change rather than diffing entries.
func (w *watcher) reconcile(ctx context.Context) {
	cfg, err := w.store.GetSyncConfig(ctx)
	if err != nil {
		log.Printf("[Watcher] Warning: read config: %v", err)
		return
	}

	var roots []string
	if cfg.WatchLocalChanges && cfg.IsConfigured() {
		roots = []string{config.ExpandPath(cfg.PersonalPath), config.ExpandPath(cfg.SharedPath)}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if equalRoots(w.roots, roots) && (w.fsw != nil) == (len(roots) > 0) {
		return
	}

	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
	w.roots = roots
	if len(roots) == 0 {
		return
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[Watcher] Warning: create watcher: %v", err)
		return
	}
	w.fsw = fsw
	for _, root := range roots {
		w.addTreeLocked(root)
	}
	log.Printf("[Watcher] Watching %d roots for local changes", len(roots))
}

// addTree registers dir and its subdirectories. Missing paths are fine;
// they join the watch set once created and reconciled.
func (w *watcher) addTree(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addTreeLocked(dir)
}

func (w *watcher) addTreeLocked(dir string) {
	if w.fsw == nil {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d == nil || !d.IsDir() {
			return nil
		}
		if hidden(filepath.Base(path)) && path != dir {
			return filepath.SkipDir
		}
		_ = w.fsw.Add(path)
		return nil
	})
}

// relevant filters out hidden files, including the sync init marker and
// the tool's own bookkeeping, so a cycle does not retrigger itself. Only
// path components below a watched root are considered.
func (w *watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	w.mu.Lock()
	roots := w.roots
	w.mu.Unlock()

	rel := ev.Name
	for _, root := range roots {
		if r, err := filepath.Rel(root, ev.Name); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
			break
		}
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if hidden(part) {
			return false
		}
	}
	return true
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func (w *watcher) teardown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
}

func equalRoots(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
