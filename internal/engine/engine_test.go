package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config/store"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/session"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/transfer"
)

// fakeAdapter scripts per-call transfer results and records requests.
type fakeAdapter struct {
	mu     sync.Mutex
	calls  []transfer.Request
	script func(call int, req transfer.Request) (transfer.Result, error)
	gate   chan struct{}
}

func (a *fakeAdapter) Sync(ctx context.Context, req transfer.Request) (transfer.Result, error) {
	a.mu.Lock()
	call := len(a.calls)
	a.calls = append(a.calls, req)
	gate := a.gate
	script := a.script
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return transfer.Result{}, ctx.Err()
		}
	}
	if script != nil {
		return script(call, req)
	}
	return transfer.Result{}, nil
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func (a *fakeAdapter) requests() []transfer.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]transfer.Request(nil), a.calls...)
}

// memKeyring is an in-memory session.Keyring keyed by user only.
type memKeyring struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemKeyring() *memKeyring { return &memKeyring{entries: make(map[string]string)} }

func (k *memKeyring) Set(service, user, password string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.entries[user] = password
	return nil
}

func (k *memKeyring) Get(service, user string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.entries[user]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func (k *memKeyring) Delete(service, user string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, user)
	return nil
}

// newTestDeps builds a fresh store with the given sync paths plus a
// session manager, logged in when requested. Sync-on-startup is off.
func newTestDeps(t *testing.T, loggedIn bool, personal, shared string) (*store.Store, *session.Manager) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(store.Options{
		InstanceName: "test",
		DBPath:       filepath.Join(t.TempDir(), "config.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	startup := false
	if _, err := st.UpdateSyncConfig(ctx, store.SyncConfigEdits{
		PersonalPath:  &personal,
		SharedPath:    &shared,
		SyncOnStartup: &startup,
	}); err != nil {
		t.Fatalf("update config: %v", err)
	}

	kr := newMemKeyring()
	if loggedIn {
		if err := st.SetIdentity(ctx, "https://drive.example.com", "alice@example.com", "t-1"); err != nil {
			t.Fatalf("set identity: %v", err)
		}
		if err := kr.Set("readynextos-drive", "alice@example.com", `{"token":"tok"}`); err != nil {
			t.Fatalf("seed keyring: %v", err)
		}
	}

	sessions, err := session.NewManager(session.Options{Store: st, Keyring: kr})
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	return st, sessions
}

// newTestEngine builds a started engine over a fresh store with a
// logged-in session and sync-on-startup disabled.
func newTestEngine(t *testing.T, adapter transfer.Adapter, loggedIn bool) (*Engine, *store.Store) {
	t.Helper()
	base := t.TempDir()
	return newTestEngineWithPaths(t, adapter, loggedIn,
		filepath.Join(base, "Personal"), filepath.Join(base, "Shared"))
}

func newTestEngineWithPaths(t *testing.T, adapter transfer.Adapter, loggedIn bool, personal, shared string) (*Engine, *store.Store) {
	t.Helper()
	st, sessions := newTestDeps(t, loggedIn, personal, shared)

	eng, err := New(Options{Store: st, Sessions: sessions, Adapter: adapter, DisableWatcher: true})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		eng.Shutdown(sctx)
	})
	return eng, st
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func actionsOf(entries []store.ActivityEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func countAction(entries []store.ActivityEntry, action string) int {
	n := 0
	for _, e := range entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

func TestCleanCycleEndsIdle(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		script: func(call int, req transfer.Request) (transfer.Result, error) {
			if call == 0 {
				return transfer.Result{Events: []transfer.FileEvent{
					{Path: "a.txt", Outcome: transfer.OutcomeUploaded},
					{Path: "b.txt", Outcome: transfer.OutcomeDownloaded},
					{Path: "big.iso", Outcome: transfer.OutcomeSkipped},
				}}, nil
			}
			return transfer.Result{Events: []transfer.FileEvent{
				{Path: "c.txt", Outcome: transfer.OutcomeDeleted},
			}}, nil
		},
	}
	eng, st := newTestEngine(t, adapter, true)
	ctx := waitCtx(t)

	if err := eng.TriggerSyncWait(ctx); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if got := eng.Status(); got.State != StateIdle {
		t.Fatalf("status = %+v, want Idle", got)
	}

	entries, err := st.RecentActivity(ctx, 50)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if countAction(entries, store.ActionSyncPersonal) != 1 || countAction(entries, store.ActionSyncShared) != 1 {
		t.Fatalf("summary entries missing: %v", actionsOf(entries))
	}
	if countAction(entries, store.ActionUpload) != 1 || countAction(entries, store.ActionDownload) != 1 ||
		countAction(entries, store.ActionDelete) != 1 {
		t.Fatalf("per-file entries missing: %v", actionsOf(entries))
	}
	// Skipped files surface in the summary detail, not as entries.
	for _, e := range entries {
		if e.FilePath == "big.iso" {
			t.Fatalf("skipped file got its own entry: %+v", e)
		}
	}
}

func TestFailedPersonalStillAttemptsShared(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		script: func(call int, req transfer.Request) (transfer.Result, error) {
			if call == 0 {
				return transfer.Result{}, &transfer.TransferError{ExitCode: 1, Stderr: "remote unreachable"}
			}
			return transfer.Result{}, nil
		},
	}
	eng, st := newTestEngine(t, adapter, true)
	ctx := waitCtx(t)

	if err := eng.TriggerSyncWait(ctx); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if adapter.callCount() != 2 {
		t.Fatalf("adapter calls = %d, want both pairs attempted", adapter.callCount())
	}

	got := eng.Status()
	if got.State != StateError || got.Message == "" {
		t.Fatalf("status = %+v, want Error with message", got)
	}

	entries, err := st.RecentActivity(ctx, 50)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if countAction(entries, store.ActionSyncPersonal) != 1 || countAction(entries, store.ActionSyncShared) != 1 {
		t.Fatalf("summary entries = %v, want exactly one per pair", actionsOf(entries))
	}
	for _, e := range entries {
		if e.Action == store.ActionSyncPersonal && e.Status != store.StatusFailure {
			t.Fatalf("personal summary status = %q, want failure", e.Status)
		}
		if e.Action == store.ActionSyncShared && e.Status != store.StatusSuccess {
			t.Fatalf("shared summary status = %q, want success", e.Status)
		}
	}
}

func TestConflictOutranksError(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		script: func(call int, req transfer.Request) (transfer.Result, error) {
			if call == 0 {
				return transfer.Result{}, &transfer.TransferError{ExitCode: 2, Stderr: "boom"}
			}
			return transfer.Result{Events: []transfer.FileEvent{
				{Path: "plan.xlsx", Outcome: transfer.OutcomeConflict, Detail: "both sides changed"},
			}}, nil
		},
	}
	eng, st := newTestEngine(t, adapter, true)
	ctx := waitCtx(t)

	if err := eng.TriggerSyncWait(ctx); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if got := eng.Status(); got.State != StateConflict {
		t.Fatalf("status = %+v, want Conflict", got)
	}

	entries, err := st.RecentActivity(ctx, 50)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if countAction(entries, store.ActionConflict) != 1 {
		t.Fatalf("conflict entries = %v", actionsOf(entries))
	}
}

func TestConflictRecoversOnCleanCycle(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		script: func(call int, req transfer.Request) (transfer.Result, error) {
			// First cycle (calls 0 and 1) conflicts, later cycles are clean.
			if call < 2 {
				return transfer.Result{Events: []transfer.FileEvent{
					{Path: "x", Outcome: transfer.OutcomeConflict},
				}}, nil
			}
			return transfer.Result{}, nil
		},
	}
	eng, _ := newTestEngine(t, adapter, true)
	ctx := waitCtx(t)

	if err := eng.TriggerSyncWait(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if got := eng.Status(); got.State != StateConflict {
		t.Fatalf("status = %+v, want Conflict", got)
	}

	if err := eng.TriggerSyncWait(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if got := eng.Status(); got.State != StateIdle {
		t.Fatalf("status = %+v, want Idle after clean cycle", got)
	}
}

func TestUnconfiguredCycleDoesNothing(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{}
	eng, _ := newTestEngine(t, adapter, false)
	ctx := waitCtx(t)

	if err := eng.TriggerSyncWait(ctx); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if got := eng.Status(); got.State != StateNotConfigured {
		t.Fatalf("status = %+v, want NotConfigured", got)
	}
	if adapter.callCount() != 0 {
		t.Fatalf("adapter called %d times for unconfigured engine", adapter.callCount())
	}
}

func TestTriggersCoalesceWhileSyncing(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	adapter := &fakeAdapter{gate: gate}
	eng, _ := newTestEngine(t, adapter, true)
	ctx := waitCtx(t)

	// Start one cycle and let it block inside the adapter.
	eng.TriggerSync()
	deadline := time.Now().Add(5 * time.Second)
	for adapter.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("cycle never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := eng.Status(); got.State != StateSyncing {
		t.Fatalf("status = %+v, want Syncing during cycle", got)
	}

	// A burst of triggers mid-cycle must coalesce into at most one
	// follow-up cycle.
	for i := 0; i < 25; i++ {
		eng.TriggerSync()
	}
	close(gate)

	if err := eng.TriggerSyncWait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	// Drain any coalesced follow-up.
	if err := eng.TriggerSyncWait(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	// Cycles so far: initial + one coalesced + the two waits above at
	// most. Each cycle costs two adapter calls.
	if n := adapter.callCount(); n > 8 {
		t.Fatalf("adapter calls = %d, triggers did not coalesce", n)
	}
}

func TestWaiterNotifiedWhenRunningCycleCompletes(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	adapter := &fakeAdapter{gate: gate}
	eng, _ := newTestEngine(t, adapter, true)
	ctx := waitCtx(t)

	eng.TriggerSync()
	deadline := time.Now().Add(5 * time.Second)
	for adapter.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("cycle never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- eng.TriggerSyncWait(ctx) }()

	select {
	case err := <-waitDone:
		t.Fatalf("wait returned before cycle completion: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(gate)
	select {
	case err := <-waitDone:
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never notified")
	}
}

func TestSubscribeBroadcastsTransitions(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{}
	eng, _ := newTestEngine(t, adapter, true)
	ctx := waitCtx(t)

	ch, cancel := eng.Subscribe()
	defer cancel()

	// First delivery is the current status.
	select {
	case s := <-ch:
		if s.State != StateIdle {
			t.Fatalf("initial status = %+v, want Idle", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial status delivered")
	}

	if err := eng.TriggerSyncWait(ctx); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	sawSyncing := false
	deadline := time.After(2 * time.Second)
	for !sawSyncing {
		select {
		case s := <-ch:
			if s.State == StateSyncing {
				sawSyncing = true
			}
		case <-deadline:
			t.Fatal("never observed Syncing transition")
		}
	}
}

func TestSessionLossDuringCycle(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{}
	eng, st := newTestEngine(t, adapter, true)
	ctx := waitCtx(t)

	if err := st.ClearIdentity(ctx); err != nil {
		t.Fatalf("clear identity: %v", err)
	}
	if err := eng.TriggerSyncWait(ctx); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if got := eng.Status(); got.State != StateNotConfigured {
		t.Fatalf("status = %+v, want NotConfigured after identity loss", got)
	}
	if adapter.callCount() != 0 {
		t.Fatal("adapter should not run without a session")
	}
}

func TestDoubleStartRejected(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{}
	eng, _ := newTestEngine(t, adapter, true)
	if err := eng.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}

func TestTildePathsExpandBeforeTransfer(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	adapter := &fakeAdapter{}
	eng, _ := newTestEngineWithPaths(t, adapter, true, "~/DrivePersonal", "~/DriveShared")
	ctx := waitCtx(t)

	if err := eng.TriggerSyncWait(ctx); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	reqs := adapter.requests()
	if len(reqs) != 2 {
		t.Fatalf("adapter calls = %d, want 2", len(reqs))
	}
	wantPersonal := filepath.Join(home, "DrivePersonal")
	wantShared := filepath.Join(home, "DriveShared")
	if reqs[0].LocalPath != wantPersonal {
		t.Errorf("personal path = %q, want %q", reqs[0].LocalPath, wantPersonal)
	}
	if reqs[1].LocalPath != wantShared {
		t.Errorf("shared path = %q, want %q", reqs[1].LocalPath, wantShared)
	}

	// The expanded directories exist under home, and no literal "~"
	// directory appeared in the working directory.
	for _, dir := range []string{wantPersonal, wantShared} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("expected sync directory %s: %v", dir, err)
		}
	}
	if _, err := os.Stat("~"); !os.IsNotExist(err) {
		t.Fatalf("literal ~ directory created in working dir (stat err: %v)", err)
	}
}

func TestScheduleGating(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	st, sessions := newTestDeps(t, true,
		filepath.Join(base, "Personal"), filepath.Join(base, "Shared"))
	eng, err := New(Options{Store: st, Sessions: sessions, Adapter: &fakeAdapter{}, DisableWatcher: true})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ctx := waitCtx(t)

	// No schedule: the wake follows the configured interval.
	interval := 120
	if _, err := st.UpdateSyncConfig(ctx, store.SyncConfigEdits{SyncIntervalSecs: &interval}); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	wait, scheduled := eng.nextWait(ctx)
	if scheduled || wait != 120*time.Second {
		t.Fatalf("nextWait = (%v, %v), want (120s, false)", wait, scheduled)
	}
	if !eng.shouldRunScheduled(ctx, false) {
		t.Fatal("interval wake blocked for a configured client")
	}

	// Every-minute cron: probe cadence, gate always open.
	everyMinute := "* * * * *"
	if _, err := st.UpdateSyncConfig(ctx, store.SyncConfigEdits{SyncSchedule: &everyMinute}); err != nil {
		t.Fatalf("set schedule: %v", err)
	}
	wait, scheduled = eng.nextWait(ctx)
	if !scheduled || wait != scheduleProbe {
		t.Fatalf("nextWait = (%v, %v), want (%v, true)", wait, scheduled, scheduleProbe)
	}
	if !eng.shouldRunScheduled(ctx, true) {
		t.Fatal("every-minute schedule reported not due")
	}

	// A cron pinned to a minute far from now must block the wake.
	offMinute := fmt.Sprintf("%d * * * *", (time.Now().Minute()+30)%60)
	if _, err := st.UpdateSyncConfig(ctx, store.SyncConfigEdits{SyncSchedule: &offMinute}); err != nil {
		t.Fatalf("set off schedule: %v", err)
	}
	if eng.shouldRunScheduled(ctx, true) {
		t.Fatalf("schedule %q reported due", offMinute)
	}

	// An invalid expression falls back to interval mode.
	invalid := "not a cron"
	if _, err := st.UpdateSyncConfig(ctx, store.SyncConfigEdits{SyncSchedule: &invalid}); err != nil {
		t.Fatalf("set invalid schedule: %v", err)
	}
	wait, scheduled = eng.nextWait(ctx)
	if scheduled || wait != 120*time.Second {
		t.Fatalf("nextWait = (%v, %v), want interval fallback", wait, scheduled)
	}
}

func TestScheduledWakeSkipsUnconfigured(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	st, sessions := newTestDeps(t, false,
		filepath.Join(base, "Personal"), filepath.Join(base, "Shared"))
	eng, err := New(Options{Store: st, Sessions: sessions, Adapter: &fakeAdapter{}, DisableWatcher: true})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	ctx := waitCtx(t)

	if eng.shouldRunScheduled(ctx, false) {
		t.Fatal("timer wake should be skipped while not logged in")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{}
	eng, _ := newTestEngine(t, adapter, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := eng.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := eng.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
