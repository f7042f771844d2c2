// Package engine schedules and runs synchronization cycles. A single
// worker goroutine owns all status transitions, so at most one cycle is
// ever in flight; triggers arriving mid-cycle coalesce into at most one
// follow-up cycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config/store"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/session"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/transfer"
)

// scheduleProbe is the wake cadence when a cron schedule is configured.
const scheduleProbe = time.Minute

// Options configures an Engine. Store, Sessions, and Adapter are required.
type Options struct {
	Store    *store.Store
	Sessions *session.Manager
	Adapter  transfer.Adapter
	// DisableWatcher skips the filesystem watcher regardless of config.
	// Used by tests that drive the engine directly.
	DisableWatcher bool
}

// Engine is the sync state machine. It implements runtime.Service.
type Engine struct {
	store    *store.Store
	sessions *session.Manager
	adapter  transfer.Adapter
	cron     *gronx.Gronx

	mu          sync.Mutex
	status      Status
	waiters     []chan struct{}
	subscribers map[int]chan Status
	nextSubID   int
	started     bool

	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}

	watcher        *watcher
	disableWatcher bool
}

// New builds an Engine from Options.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Sessions == nil || opts.Adapter == nil {
		return nil, fmt.Errorf("engine: store, sessions, and adapter are required")
	}
	return &Engine{
		store:          opts.Store,
		sessions:       opts.Sessions,
		adapter:        opts.Adapter,
		cron:           gronx.New(),
		status:         Status{State: StateNotConfigured},
		subscribers:    make(map[int]chan Status),
		trigger:        make(chan struct{}, 1),
		disableWatcher: opts.DisableWatcher,
	}, nil
}

// Start launches the worker goroutine and, when enabled, the filesystem
// watcher. If sync-on-startup is configured one cycle is triggered before
// the first timer tick.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine: already started")
	}
	e.started = true
	e.mu.Unlock()

	workerCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	cfg, err := e.store.GetSyncConfig(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("engine: read config: %w", err)
	}
	if cfg.IsConfigured() {
		e.setStatus(Status{State: StateIdle})
	}

	if !e.disableWatcher {
		e.watcher = newWatcher(e.store, e.TriggerSync)
		e.watcher.start(workerCtx)
	}

	go e.run(workerCtx)

	if cfg.SyncOnStartup && cfg.IsConfigured() {
		log.Printf("[Engine] Sync on startup enabled, triggering initial cycle")
		e.TriggerSync()
	}
	return nil
}

// Shutdown stops the worker. An in-flight transfer runs to its own
// timeout; only future cycles are suppressed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if e.watcher != nil {
		e.watcher.stop()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current sync status. Never blocks behind a cycle.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// TriggerSync requests a cycle. If one is already running the request is
// coalesced into at most one follow-up cycle.
func (e *Engine) TriggerSync() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// TriggerSyncWait requests a cycle and blocks until the currently running
// or next cycle completes, or ctx is done.
func (e *Engine) TriggerSyncWait(ctx context.Context) error {
	waiter := make(chan struct{})
	e.mu.Lock()
	e.waiters = append(e.waiters, waiter)
	e.mu.Unlock()

	e.TriggerSync()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a status listener. The returned cancel func must be
// called to release it. Slow subscribers drop intermediate updates.
func (e *Engine) Subscribe() (<-chan Status, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSubID
	e.nextSubID++
	ch := make(chan Status, 8)
	ch <- e.status
	e.subscribers[id] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == s {
		return
	}
	e.status = s
	for _, ch := range e.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}

// notifyWaiters releases everyone waiting on cycle completion.
func (e *Engine) notifyWaiters() {
	e.mu.Lock()
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// run is the worker loop. It alone performs cycles and status
// transitions. The timer is re-armed from current config after every
// wake, so interval and schedule edits apply without restart.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	for {
		wait, scheduled := e.nextWait(ctx)
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-e.trigger:
			timer.Stop()
			e.runCycle(ctx)
		case <-timer.C:
			if e.shouldRunScheduled(ctx, scheduled) {
				e.runCycle(ctx)
			}
		}
	}
}

// nextWait computes how long to sleep before the next scheduled check and
// whether a cron schedule is active.
func (e *Engine) nextWait(ctx context.Context) (time.Duration, bool) {
	cfg, err := e.store.GetSyncConfig(ctx)
	if err != nil {
		log.Printf("[Engine] Warning: read config: %v", err)
		return scheduleProbe, false
	}
	if cfg.SyncSchedule != "" && e.cron.IsValid(cfg.SyncSchedule) {
		// Probe once a minute and let the cron expression gate the run.
		return scheduleProbe, true
	}
	interval := store.ClampSyncInterval(cfg.SyncIntervalSecs)
	return time.Duration(interval) * time.Second, false
}

// shouldRunScheduled gates a timer wake. Error and Conflict states stay on
// the schedule so transient failures retry without manual intervention.
func (e *Engine) shouldRunScheduled(ctx context.Context, scheduled bool) bool {
	cfg, err := e.store.GetSyncConfig(ctx)
	if err != nil || !cfg.IsConfigured() {
		return false
	}
	if scheduled {
		due, err := e.cron.IsDue(cfg.SyncSchedule, time.Now().Truncate(time.Minute))
		if err != nil || !due {
			return false
		}
	}
	return true
}

// pairOutcome is the result of syncing one path pair.
type pairOutcome struct {
	conflicts int
	err       error
}

// runCycle executes one full synchronization pass. All failure modes are
// converted into a terminal status plus activity entries; the worker is
// always ready for the next trigger afterwards.
func (e *Engine) runCycle(ctx context.Context) {
	defer e.notifyWaiters()

	cfg, err := e.store.GetSyncConfig(ctx)
	if err != nil {
		e.setStatus(Status{State: StateError, Message: err.Error()})
		return
	}
	if !cfg.IsConfigured() {
		e.setStatus(Status{State: StateNotConfigured})
		return
	}

	creds, err := e.sessions.Credentials(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotLoggedIn) {
			e.setStatus(Status{State: StateNotConfigured})
			return
		}
		e.setStatus(Status{State: StateError, Message: err.Error()})
		return
	}

	e.setStatus(Status{State: StateSyncing})
	log.Printf("[Engine] Starting sync cycle")

	pairs := []struct {
		action    string
		localPath string
		remoteURL string
	}{
		{store.ActionSyncPersonal, config.ExpandPath(cfg.PersonalPath), cfg.PersonalWebDAVURL()},
		{store.ActionSyncShared, config.ExpandPath(cfg.SharedPath), cfg.SharedWebDAVURL()},
	}

	outcomes := make([]pairOutcome, 0, len(pairs))
	for _, pair := range pairs {
		outcomes = append(outcomes, e.syncPair(ctx, pair.action, pair.localPath, pair.remoteURL, creds, cfg.MaxFileSizeBytes))
	}

	final := Status{State: StateIdle}
	for _, out := range outcomes {
		if out.err != nil && final.State != StateError {
			final = Status{State: StateError, Message: out.err.Error()}
		}
	}
	for _, out := range outcomes {
		if out.conflicts > 0 {
			final = Status{State: StateConflict}
			break
		}
	}
	e.setStatus(final)
	log.Printf("[Engine] Sync cycle finished: %s", final)
}

// syncPair runs the transfer for one directory pair and records its
// activity entries. Failure of one pair never aborts the other.
func (e *Engine) syncPair(ctx context.Context, action, localPath, remoteURL string, creds session.Credentials, maxSize int64) pairOutcome {
	if err := os.MkdirAll(localPath, 0o755); err != nil {
		err = fmt.Errorf("create sync directory: %w", err)
		e.appendActivity(ctx, action, "", store.StatusFailure, err.Error())
		return pairOutcome{err: err}
	}

	result, runErr := e.adapter.Sync(ctx, transfer.Request{
		LocalPath:        localPath,
		RemoteURL:        remoteURL,
		Username:         creds.Email,
		Token:            creds.Token,
		MaxFileSizeBytes: maxSize,
	})

	skipped := 0
	for _, ev := range result.Events {
		switch ev.Outcome {
		case transfer.OutcomeUploaded:
			e.appendActivity(ctx, store.ActionUpload, ev.Path, store.StatusSuccess, ev.Detail)
		case transfer.OutcomeDownloaded:
			e.appendActivity(ctx, store.ActionDownload, ev.Path, store.StatusSuccess, ev.Detail)
		case transfer.OutcomeDeleted:
			e.appendActivity(ctx, store.ActionDelete, ev.Path, store.StatusSuccess, ev.Detail)
		case transfer.OutcomeConflict:
			e.appendActivity(ctx, store.ActionConflict, ev.Path, store.StatusFailure, ev.Detail)
		case transfer.OutcomeSkipped:
			skipped++
		}
	}
	conflicts := len(result.Conflicts())

	detail := summarize(result, skipped)
	if runErr != nil {
		if te, ok := transfer.IsTransferError(runErr); ok {
			log.Printf("[Engine] %s: transfer tool exited with code %d", action, te.ExitCode)
		}
		if detail != "" {
			detail += "; "
		}
		detail += runErr.Error()
		e.appendActivity(ctx, action, "", store.StatusFailure, detail)
		return pairOutcome{conflicts: conflicts, err: runErr}
	}
	e.appendActivity(ctx, action, "", store.StatusSuccess, detail)
	return pairOutcome{conflicts: conflicts}
}

func (e *Engine) appendActivity(ctx context.Context, action, filePath, status, details string) {
	entry := store.ActivityEntry{
		Action:   action,
		FilePath: filePath,
		Status:   status,
		Details:  details,
	}
	if err := e.store.AppendActivity(ctx, entry); err != nil {
		log.Printf("[Engine] Warning: record activity: %v", err)
	}
}

// summarize renders the per-outcome counts for a pair-level entry.
// Skipped files only appear here, never as standalone entries.
func summarize(result transfer.Result, skipped int) string {
	counts := result.Counts()
	var parts []string
	if n := counts[transfer.OutcomeUploaded]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d uploaded", n))
	}
	if n := counts[transfer.OutcomeDownloaded]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d downloaded", n))
	}
	if n := counts[transfer.OutcomeDeleted]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", n))
	}
	if n := counts[transfer.OutcomeConflict]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d conflicted", n))
	}
	if skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped (too large)", skipped))
	}
	return strings.Join(parts, ", ")
}
