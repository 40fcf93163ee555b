package syncengine

import (
	"context"
	"errors"
	"fmt"
)

// Push drains the pending operation queue to the RemoteClient in
// operationId order. It returns immediately; completion is invoked
// exactly once on the callback executor with either nil (every operation
// drained) or an aggregate error.
func (c *SyncContext) Push(ctx context.Context, completion func(error)) {
	go func() {
		err := c.pushSync(ctx)
		if completion != nil {
			c.callbacks.Dispatch(func() { completion(err) })
		}
	}()
}

// pushSync runs the push task on the push/pull lane and blocks until it
// completes. It is the synchronous core Push wraps. A pull whose table is
// dirty calls pushLocked directly instead (never through the lane a
// second time, to avoid deadlocking the single-slot lane against itself).
func (c *SyncContext) pushSync(ctx context.Context) error {
	return c.lane.Run(func(ctx context.Context, _ <-chan struct{}) error {
		return c.pushLocked(ctx)
	}, ctx, nil)
}

// pushLocked runs the push. The caller must already hold the push/pull
// lane (via pushSync's lane.Run, or by being PullRunner's own lane task).
func (c *SyncContext) pushLocked(ctx context.Context) error {
	if c.remote == nil {
		return ErrMissingRemoteClient
	}
	if err := c.checkProtocolVersion(); err != nil {
		return err
	}

	// ops is a snapshot of Operation copies, independent of the queue's
	// own indexed objects (OperationQueue.Snapshot). Each op's identity
	// (OperationID) and Version are re-checked against the live queue
	// entry immediately before dispatch and again after the remote round
	// trip, since a concurrent local mutation can condense the live
	// operation (e.g. Update -> Delete) while this loop or an in-flight
	// network call is working from the stale copy.
	ops := c.queue.Snapshot()
	c.emit(Event{Type: EventPushStarted, Data: map[string]any{"count": len(ops)}})

	var collected []*TableOperationError
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return ErrPushCancelled
		}

		if !c.snapshotStillCurrent(op) {
			continue
		}

		_, remoteErr := c.pushOne(ctx, op)
		if remoteErr == nil {
			c.emit(Event{Type: EventPushOpResult, TableName: op.TableName, ItemID: op.ItemID, Data: map[string]any{"result": "success"}})
			continue
		}

		kind := classifyRemoteError(remoteErr)
		switch kind {
		case RemoteErrorConflict:
			_, tableErr := c.resolveConflict(ctx, op, remoteErr)
			if tableErr == nil {
				c.emit(Event{Type: EventPushOpResult, TableName: op.TableName, ItemID: op.ItemID, Data: map[string]any{"result": "conflict-resolved"}})
				continue
			}
			collected = append(collected, tableErr)
			if err := c.recordPushError(ctx, op, tableErr); err != nil {
				return err
			}
			c.emit(Event{Type: EventPushOpResult, TableName: op.TableName, ItemID: op.ItemID, Data: map[string]any{"result": "error", "kind": string(tableErr.Kind)}})
			continue
		case RemoteErrorPreconditionFailed, RemoteErrorValidation:
			tableErr := &TableOperationError{OperationID: op.OperationID, TableName: op.TableName, ItemID: op.ItemID, Kind: kind, Err: remoteErr}
			collected = append(collected, tableErr)
			if err := c.recordPushError(ctx, op, tableErr); err != nil {
				return err
			}
			c.emit(Event{Type: EventPushOpResult, TableName: op.TableName, ItemID: op.ItemID, Data: map[string]any{"result": "error", "kind": string(kind)}})
			continue
		case RemoteErrorTransport, RemoteErrorAuth:
			abortErr := &PushAbortedError{Errors: collected, Cause: remoteErr}
			c.emit(Event{Type: EventPushCompleted, Data: map[string]any{"aborted": true}})
			return abortErr
		default:
			abortErr := &PushAbortedError{Errors: collected, Cause: remoteErr}
			c.emit(Event{Type: EventPushCompleted, Data: map[string]any{"aborted": true}})
			return abortErr
		}
	}

	c.emit(Event{Type: EventPushCompleted, Data: map[string]any{"aborted": false}})
	if len(collected) > 0 {
		return &PushAbortedError{Errors: collected, Cause: nil}
	}
	return nil
}

// pushOne pushes a single operation and, on success, applies the result
// to the local store and queue inside the writer domain.
func (c *SyncContext) pushOne(ctx context.Context, op *Operation) (Item, error) {
	payload, err := c.payloadForPush(ctx, op)
	if err != nil {
		return nil, err
	}

	var serverItem Item
	if c.pushHandler != nil {
		serverItem, err = c.pushHandler(ctx, op, c.remote)
	} else {
		serverItem, err = c.defaultPushDispatch(ctx, op, payload)
	}
	if err != nil {
		return nil, err
	}

	writerErr := c.writer.Submit(func() error {
		return c.applyPushSuccessLocked(ctx, op, serverItem)
	})
	return serverItem, writerErr
}

func (c *SyncContext) payloadForPush(ctx context.Context, op *Operation) (Item, error) {
	if op.Type == OperationDelete {
		return op.Item, nil
	}
	item, err := c.ds.Read(ctx, op.TableName, op.ItemID)
	if err != nil {
		return nil, &StoreError{Op: "read item for push", Err: err}
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %s/%s has a pending op but is missing from the local store", ErrStoreInconsistent, op.TableName, op.ItemID)
	}
	return item, nil
}

func (c *SyncContext) defaultPushDispatch(ctx context.Context, op *Operation, payload Item) (Item, error) {
	switch op.Type {
	case OperationInsert:
		return c.remote.TableInsert(ctx, op.TableName, payload, nil)
	case OperationUpdate:
		return c.remote.TableUpdate(ctx, op.TableName, payload, nil)
	case OperationDelete:
		err := c.remote.TableDelete(ctx, op.TableName, payload, nil)
		return nil, err
	default:
		return nil, fmt.Errorf("unknown operation type %v", op.Type)
	}
}

// snapshotStillCurrent reports whether snap still matches the queue's live
// entry for its key, by both OperationID and Version. A mismatch means the
// operation was condensed (or discarded) by a concurrent local mutation
// since the snapshot was taken, and snap's content must not be trusted.
func (c *SyncContext) snapshotStillCurrent(snap *Operation) bool {
	current, ok := c.queue.Get(snap.Key())
	if !ok {
		return false
	}
	return current.OperationID == snap.OperationID && current.Version == snap.Version
}

// applyPushSuccessLocked implements the post-push success path.
// Must run inside the writer domain. snap is re-verified against the
// live queue entry before anything is removed: the push it concludes ran
// outside the writer domain, so the operation may have been condensed
// into something else (e.g. Update -> Delete) while the request was in
// flight, and that newer content must not be discarded as if it had been
// the content that was actually pushed.
func (c *SyncContext) applyPushSuccessLocked(ctx context.Context, snap *Operation, serverItem Item) error {
	current, ok := c.queue.Get(snap.Key())
	if !ok || current.OperationID != snap.OperationID || current.Version != snap.Version {
		return nil
	}
	if err := c.queue.Remove(ctx, current.OperationID); err != nil {
		return err
	}
	if snap.Type == OperationDelete || serverItem == nil {
		return nil
	}
	if err := c.ds.Upsert(ctx, snap.TableName, []Item{serverItem}); err != nil {
		return &StoreError{Op: "persist pushed item", Err: err}
	}
	return nil
}

// resolveConflict implements the post-push conflict path. A ConflictError
// with no ConflictResolver configured, or whose resolver declines (returns
// a nil Item), is recorded as a per-operation error and left pending in
// the queue, exactly like a precondition-failed or validation error: a
// server conflict is not resolved just because no one was listening for
// it. Only a resolver that returns a non-nil item gets a second push, as
// an Update in its place; if that second push also succeeds the operation
// is cleared the same way a normal push success clears it.
func (c *SyncContext) resolveConflict(ctx context.Context, snap *Operation, remoteErr error) (Item, *TableOperationError) {
	var ce *ConflictError
	if !errors.As(remoteErr, &ce) {
		return nil, &TableOperationError{OperationID: snap.OperationID, TableName: snap.TableName, ItemID: snap.ItemID, Kind: RemoteErrorValidation, Err: remoteErr}
	}

	if c.conflictResolver == nil {
		return nil, &TableOperationError{OperationID: snap.OperationID, TableName: snap.TableName, ItemID: snap.ItemID, Kind: RemoteErrorConflict, Err: remoteErr}
	}

	localItem, err := c.ds.Read(ctx, snap.TableName, snap.ItemID)
	if err != nil {
		return nil, &TableOperationError{OperationID: snap.OperationID, TableName: snap.TableName, ItemID: snap.ItemID, Kind: RemoteErrorConflict, Err: &StoreError{Op: "read local item for conflict", Err: err}}
	}
	resolved, err := c.conflictResolver(ctx, ce, localItem)
	if err != nil {
		return nil, &TableOperationError{OperationID: snap.OperationID, TableName: snap.TableName, ItemID: snap.ItemID, Kind: RemoteErrorConflict, Err: err}
	}
	if resolved == nil {
		return nil, &TableOperationError{OperationID: snap.OperationID, TableName: snap.TableName, ItemID: snap.ItemID, Kind: RemoteErrorConflict, Err: remoteErr}
	}

	merged, pushErr := c.remote.TableUpdate(ctx, snap.TableName, resolved, nil)
	if pushErr != nil {
		return nil, &TableOperationError{OperationID: snap.OperationID, TableName: snap.TableName, ItemID: snap.ItemID, Kind: classifyRemoteError(pushErr), Err: pushErr}
	}
	writerErr := c.writer.Submit(func() error {
		return c.applyPushSuccessLocked(ctx, snap, merged)
	})
	if writerErr != nil {
		return nil, &TableOperationError{OperationID: snap.OperationID, TableName: snap.TableName, ItemID: snap.ItemID, Kind: RemoteErrorConflict, Err: writerErr}
	}
	return merged, nil
}

func (c *SyncContext) recordPushError(ctx context.Context, snap *Operation, tableErr *TableOperationError) error {
	return c.writer.Submit(func() error {
		current, ok := c.queue.Get(snap.Key())
		if !ok || current.OperationID != snap.OperationID || current.Version != snap.Version {
			return nil
		}
		current.LastError = tableErr
		return c.queue.Update(ctx, current)
	})
}

// classifyRemoteError maps a RemoteClient error into a RemoteErrorKind.
// Adapters are expected to return *TransportError or *ConflictError
// directly; any other error is treated as Validation, since it came back
// from a completed (if rejected) request rather than from a failed
// connection.
func classifyRemoteError(err error) RemoteErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return RemoteErrorConflict
	}
	return RemoteErrorValidation
}
