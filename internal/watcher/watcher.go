// Package watcher bridges a directory of per-item JSON files into
// syncengine.SyncContext.ApplyLocalMutation calls, for embedders that
// prefer an edit-a-file workflow over calling the engine API directly.
// It is a pure convenience layer: it never touches the writer domain
// itself, only the public ApplyLocalMutation entry point.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/brettsam/offlinesync/internal/syncengine"
)

// Watcher watches a root directory laid out as {table}/{itemId}.json and
// replays file create/write/remove events as local mutations against a
// SyncContext.
type Watcher struct {
	ctx  *syncengine.SyncContext
	root string

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	running bool
	// seen tracks which (table, itemId) pairs have been observed before,
	// so a write event can be told apart from a create for condensation
	// purposes; it also holds the last-seen item so a remove event can
	// still submit a Delete carrying a populated Item.
	seen map[string]syncengine.Item

	// OnError receives errors from the watcher loop or from a failed
	// ApplyLocalMutation call. Nil is permitted; errors are dropped.
	OnError func(error)
}

// New creates a Watcher rooted at root, one subdirectory per table.
func New(syncCtx *syncengine.SyncContext, root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		ctx:  syncCtx,
		root: root,
		fsw:  fsw,
		done: make(chan struct{}),
		seen: make(map[string]syncengine.Item),
	}, nil
}

// Start begins watching every existing subdirectory of root, plus root
// itself so new table subdirectories created later are picked up.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("read watch root %s: %w", w.root, err)
	}
	if err := w.fsw.Add(w.root); err != nil {
		return fmt.Errorf("watch root %s: %w", w.root, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(w.root, e.Name())
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch table dir %s: %w", dir, err)
		}
	}

	w.running = true
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("close fsnotify watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".json") {
		// A newly created table subdirectory: start watching it so its
		// items are picked up too.
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				_ = w.fsw.Add(ev.Name)
			}
		}
		return
	}

	table, itemID, ok := w.tableAndID(ev.Name)
	if !ok {
		return
	}
	key := table + "/" + itemID

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.applyDelete(table, itemID, key)
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.applyUpsert(table, itemID, key, ev.Name)
	}
}

func (w *Watcher) applyUpsert(table, itemID, key, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// The file may have already been removed by a rapid
		// create-then-delete; not an error worth surfacing.
		return
	}
	var item syncengine.Item
	if err := json.Unmarshal(data, &item); err != nil {
		w.reportError(fmt.Errorf("decode %s: %w", path, err))
		return
	}
	item = item.WithID(itemID)

	w.mu.Lock()
	_, hadSeen := w.seen[key]
	w.seen[key] = item
	w.mu.Unlock()

	action := syncengine.OperationUpdate
	if !hadSeen {
		action = syncengine.OperationInsert
	}
	if _, err := w.ctx.ApplyLocalMutation(context.Background(), table, item, action); err != nil {
		w.reportError(fmt.Errorf("apply %s mutation for %s/%s: %w", action, table, itemID, err))
	}
}

func (w *Watcher) applyDelete(table, itemID, key string) {
	w.mu.Lock()
	last, ok := w.seen[key]
	delete(w.seen, key)
	w.mu.Unlock()
	if !ok {
		last = syncengine.Item{}
	}
	last = last.WithID(itemID)

	if _, err := w.ctx.ApplyLocalMutation(context.Background(), table, last, syncengine.OperationDelete); err != nil {
		w.reportError(fmt.Errorf("apply delete mutation for %s/%s: %w", table, itemID, err))
	}
}

func (w *Watcher) tableAndID(path string) (table, itemID string, ok bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".json"), true
}

func (w *Watcher) reportError(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}
