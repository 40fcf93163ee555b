package syncengine

import (
	"context"
	"errors"
	"testing"
)

func TestCancelKeepingItem(t *testing.T) {
	c, ds := newTestContext(t, nil)
	ctx := context.Background()

	item, err := c.ApplyLocalMutation(ctx, "todo", Item{"title": "v1"}, OperationInsert)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	id := item.ID()

	corrected := Item{"id": id, "title": "corrected"}
	if err := c.CancelKeepingItem(ctx, "todo", id, corrected); err != nil {
		t.Fatalf("CancelKeepingItem: %v", err)
	}
	if c.Queue().Count() != 0 {
		t.Fatalf("queue count = %d after cancel, want 0", c.Queue().Count())
	}
	stored, err := ds.Read(ctx, "todo", id)
	if err != nil || stored == nil {
		t.Fatalf("item should remain in the local store: %v, %v", stored, err)
	}
	if stored["title"] != "corrected" {
		t.Fatalf("title = %v, want corrected", stored["title"])
	}
}

func TestCancelDiscardingItem(t *testing.T) {
	c, ds := newTestContext(t, nil)
	ctx := context.Background()

	item, err := c.ApplyLocalMutation(ctx, "todo", Item{"title": "v1"}, OperationInsert)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	id := item.ID()

	if err := c.CancelDiscardingItem(ctx, "todo", id); err != nil {
		t.Fatalf("CancelDiscardingItem: %v", err)
	}
	if c.Queue().Count() != 0 {
		t.Fatalf("queue count = %d after cancel, want 0", c.Queue().Count())
	}
	if stored, _ := ds.Read(ctx, "todo", id); stored != nil {
		t.Fatal("item should have been removed from the local store")
	}
}

func TestCancelWithoutPendingOperationFails(t *testing.T) {
	c, _ := newTestContext(t, nil)
	ctx := context.Background()

	if err := c.CancelKeepingItem(ctx, "todo", "missing", Item{"id": "missing"}); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("CancelKeepingItem on unknown item = %v, want ErrInvalidParameter", err)
	}
	if err := c.CancelDiscardingItem(ctx, "todo", "missing"); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("CancelDiscardingItem on unknown item = %v, want ErrInvalidParameter", err)
	}
}
