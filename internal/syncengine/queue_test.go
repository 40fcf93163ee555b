package syncengine

import (
	"context"
	"strconv"
	"testing"
)

func TestOperationQueueAddGetRemove(t *testing.T) {
	ds := newMemoryDataSource()
	q, err := LoadOperationQueue(context.Background(), ds)
	if err != nil {
		t.Fatalf("LoadOperationQueue: %v", err)
	}

	op := &Operation{OperationID: q.NextOperationID(), TableName: "todo", ItemID: "1", Type: OperationInsert}
	if err := q.Add(context.Background(), op); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got, ok := q.Get(OperationKey{TableName: "todo", ItemID: "1"}); !ok || got.OperationID != op.OperationID {
		t.Fatalf("Get returned %v, %v", got, ok)
	}
	if q.Count() != 1 {
		t.Fatalf("Count = %d, want 1", q.Count())
	}

	if err := q.Add(context.Background(), &Operation{OperationID: q.NextOperationID(), TableName: "todo", ItemID: "1", Type: OperationUpdate}); err == nil {
		t.Fatal("expected ErrQueueConflict adding a second op for the same key")
	}

	if err := q.Remove(context.Background(), op.OperationID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if q.Count() != 0 {
		t.Fatalf("Count = %d after Remove, want 0", q.Count())
	}
	// Remove is idempotent.
	if err := q.Remove(context.Background(), op.OperationID); err != nil {
		t.Fatalf("second Remove should be a no-op, got %v", err)
	}
}

func TestOperationQueueSnapshotOrder(t *testing.T) {
	ds := newMemoryDataSource()
	q, _ := LoadOperationQueue(context.Background(), ds)

	for i := 0; i < 5; i++ {
		id := q.NextOperationID()
		_ = q.Add(context.Background(), &Operation{OperationID: id, TableName: "todo", ItemID: strconv.Itoa(i), Type: OperationInsert})
	}
	snap := q.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("len(snapshot) = %d, want 5", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].OperationID >= snap[i].OperationID {
			t.Fatalf("snapshot not in ascending operationId order: %v", snap)
		}
	}
}

func TestLoadOperationQueueResumesNextID(t *testing.T) {
	ds := newMemoryDataSource()
	q1, _ := LoadOperationQueue(context.Background(), ds)
	id := q1.NextOperationID()
	_ = q1.Add(context.Background(), &Operation{OperationID: id, TableName: "todo", ItemID: "x", Type: OperationInsert})

	q2, err := LoadOperationQueue(context.Background(), ds)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if next := q2.NextOperationID(); next <= id {
		t.Fatalf("reloaded queue's next id %d did not advance past persisted id %d", next, id)
	}
}
