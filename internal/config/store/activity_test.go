package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAppendAndRecentOrdering(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := s.AppendActivity(ctx, ActivityEntry{
			Action:   ActionUpload,
			FilePath: fmt.Sprintf("docs/file-%d.txt", i),
			Status:   StatusSuccess,
		})
		if err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
	}

	entries, err := s.RecentActivity(ctx, 3)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].FilePath != "docs/file-4.txt" {
		t.Errorf("first entry = %q, want docs/file-4.txt", entries[0].FilePath)
	}
	if entries[2].FilePath != "docs/file-2.txt" {
		t.Errorf("last entry = %q, want docs/file-2.txt", entries[2].FilePath)
	}
}

func TestAppendThenRecentOneReturnsExactlyThatEntry(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})
	ctx := context.Background()

	err := s.AppendActivity(ctx, ActivityEntry{
		Action: ActionSyncPersonal,
		Status: StatusSuccess,
	})
	if err != nil {
		t.Fatalf("AppendActivity: %v", err)
	}
	latest := ActivityEntry{
		Action:   ActionConflict,
		FilePath: "docs/report.odt",
		Status:   StatusFailure,
		Details:  "both sides changed",
	}
	if err := s.AppendActivity(ctx, latest); err != nil {
		t.Fatalf("AppendActivity: %v", err)
	}

	entries, err := s.RecentActivity(ctx, 1)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want exactly 1", len(entries))
	}
	got := entries[0]
	if got.Action != latest.Action || got.FilePath != latest.FilePath ||
		got.Status != latest.Status || got.Details != latest.Details {
		t.Errorf("got %+v, want the last appended entry", got)
	}
}

func TestRetentionCapEvictsOldest(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{ActivityCap: 10})
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		err := s.AppendActivity(ctx, ActivityEntry{
			Action:   ActionDownload,
			FilePath: fmt.Sprintf("f-%02d", i),
			Status:   StatusSuccess,
		})
		if err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
	}

	entries, err := s.RecentActivity(ctx, 100)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("got %d entries, want cap of 10", len(entries))
	}
	if entries[0].FilePath != "f-24" {
		t.Errorf("newest entry = %q, want f-24", entries[0].FilePath)
	}
	if entries[9].FilePath != "f-15" {
		t.Errorf("oldest surviving entry = %q, want f-15", entries[9].FilePath)
	}
}

func TestDefaultLimitApplied(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})
	ctx := context.Background()

	for i := 0; i < DefaultActivityLimit+10; i++ {
		err := s.AppendActivity(ctx, ActivityEntry{Action: ActionUpload, Status: StatusSuccess})
		if err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
	}

	entries, err := s.RecentActivity(ctx, 0)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(entries) != DefaultActivityLimit {
		t.Errorf("got %d entries, want default limit %d", len(entries), DefaultActivityLimit)
	}
}

func TestConcurrentAppends(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				err := s.AppendActivity(ctx, ActivityEntry{
					Action:   ActionUpload,
					FilePath: fmt.Sprintf("w%d/f%d", worker, j),
					Status:   StatusSuccess,
				})
				if err != nil {
					t.Errorf("AppendActivity: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	entries, err := s.RecentActivity(ctx, 100)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(entries) != 40 {
		t.Errorf("got %d entries, want 40", len(entries))
	}
}

func TestActivityPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dbPath := t.TempDir() + "/config.db"
	s, err := Open(Options{InstanceName: "test", DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()

	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	err = s.AppendActivity(ctx, ActivityEntry{
		Timestamp: stamp,
		Action:    ActionSyncShared,
		Status:    StatusFailure,
		Details:   "connection refused",
	})
	if err != nil {
		t.Fatalf("AppendActivity: %v", err)
	}
	s.Close()

	s2, err := Open(Options{InstanceName: "test", DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s2.Close()

	entries, err := s2.RecentActivity(ctx, 10)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !entries[0].Timestamp.Equal(stamp) {
		t.Errorf("timestamp = %v, want %v", entries[0].Timestamp, stamp)
	}
	if entries[0].Details != "connection refused" {
		t.Errorf("details = %q", entries[0].Details)
	}
}
