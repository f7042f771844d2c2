package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/engine"
)

func TestSyncStatusDecodesTaggedError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sync/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":{"Error":"remote unreachable"}}`))
	}))
	t.Cleanup(srv.Close)

	status, err := New(srv.URL).SyncStatus(context.Background())
	if err != nil {
		t.Fatalf("sync status: %v", err)
	}
	if status.State != engine.StateError || status.Message != "remote unreachable" {
		t.Fatalf("status = %+v", status)
	}
}

func TestErrorEnvelopeSurfaced(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "personal_sync_path must not be empty"})
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL).GetSyncConfig(context.Background())
	if err == nil || err.Error() != "personal_sync_path must not be empty" {
		t.Fatalf("err = %v, want envelope message", err)
	}
}

func TestUnreachableDaemon(t *testing.T) {
	t.Parallel()
	c := New("http://127.0.0.1:1")
	if err := c.TriggerSync(context.Background()); err == nil {
		t.Fatal("expected error for unreachable daemon")
	}
}

func TestActivityLimitQuery(t *testing.T) {
	t.Parallel()
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"entries":[]}`))
	}))
	t.Cleanup(srv.Close)

	entries, err := New(srv.URL).Activity(context.Background(), 7)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if gotLimit != "7" {
		t.Fatalf("limit query = %q, want 7", gotLimit)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %v", entries)
	}
}
