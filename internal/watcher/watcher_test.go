package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brettsam/offlinesync/internal/store"
	"github.com/brettsam/offlinesync/internal/syncengine"
)

func newTestContext(t *testing.T) (*syncengine.SyncContext, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	ds, err := store.Open(store.DefaultConfig(filepath.Join(dir, "test.db")))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })

	syncCtx, err := syncengine.NewContext(syncengine.ContextConfig{DataSource: ds})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(syncCtx.Close)
	return syncCtx, ds, dir
}

func waitForQueueCount(t *testing.T, c *syncengine.SyncContext, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Queue().Count() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("queue count never reached %d, last was %d", want, c.Queue().Count())
}

func TestWatcherCreateFileAppliesInsert(t *testing.T) {
	syncCtx, ds, root := newTestContext(t)
	if err := os.MkdirAll(filepath.Join(root, "todo"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	w, err := New(syncCtx, root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })

	data, _ := json.Marshal(map[string]any{"id": "abc", "title": "buy milk"})
	if err := os.WriteFile(filepath.Join(root, "todo", "abc.json"), data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	waitForQueueCount(t, syncCtx, 1)

	got, err := ds.Read(context.Background(), "todo", "abc")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got == nil || got["title"] != "buy milk" {
		t.Fatalf("Read = %v, want title buy milk", got)
	}
}

func TestWatcherRemoveFileAppliesDelete(t *testing.T) {
	syncCtx, ds, root := newTestContext(t)
	if err := os.MkdirAll(filepath.Join(root, "todo"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	w, err := New(syncCtx, root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })

	path := filepath.Join(root, "todo", "abc.json")
	data, _ := json.Marshal(map[string]any{"id": "abc", "title": "buy milk"})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	waitForQueueCount(t, syncCtx, 1)

	// The insert is still pending (never pushed), so the delete collapses
	// the pending operation back to zero (ToDeleteAsDiscard) rather than
	// leaving a pending Delete.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	waitForQueueCount(t, syncCtx, 0)

	got, err := ds.Read(context.Background(), "todo", "abc")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != nil {
		t.Fatalf("expected item removed from local store, got %v", got)
	}
}
