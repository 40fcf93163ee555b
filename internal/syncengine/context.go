package syncengine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MinSupportedProtocolVersion is the default floor a RemoteClient's
// reported ProtocolVersion() is compared against.
const MinSupportedProtocolVersion = "1.0.0"

// ContextConfig wires a SyncContext to its collaborators. DataSource is
// required; Remote is required for Push/Pull but a context without one
// can still serve local mutations and reads.
type ContextConfig struct {
	DataSource DataSource
	Remote     RemoteClient

	// CallbackConcurrency bounds the callback executor; zero uses
	// DefaultCallbackConcurrency.
	CallbackConcurrency int

	// PushHandler, when set, replaces the default RemoteClient dispatch
	// for every pushed operation.
	PushHandler PushHandler

	// ConflictResolver, when set, is consulted on a server conflict.
	// Without one (or if it declines), the conflict is recorded as a
	// per-operation error and the operation stays pending.
	ConflictResolver ConflictResolver

	// Broadcaster, when set, receives lifecycle events for observability
	// tooling. Nil is a valid, zero-cost no-op.
	Broadcaster Broadcaster

	// MinSupportedProtocolVersion overrides MinSupportedProtocolVersion
	// for this context.
	MinSupportedProtocolVersion string

	// IDGenerator overrides how new item ids are minted on Insert. The
	// default generates a UUID v4 string.
	IDGenerator func() string
}

// SyncContext is the coordinator for a sync-enabled local store: it owns
// the single-writer serialization domain, routes local mutations through
// condensation, and hosts push/pull scheduling.
type SyncContext struct {
	ds     DataSource
	remote RemoteClient
	queue  *OperationQueue

	writer    *serialExecutor
	lane      *pushPullLane
	callbacks *callbackExecutor

	pushHandler      PushHandler
	conflictResolver ConflictResolver
	broadcaster      Broadcaster
	minProtocolVer   string
	idGen            func() string
}

// NewContext constructs a SyncContext, loading the operation queue from
// cfg.DataSource. The returned context owns background goroutines; call
// Close when done with it.
func NewContext(cfg ContextConfig) (*SyncContext, error) {
	if cfg.DataSource == nil {
		return nil, ErrMissingDataSource
	}

	queue, err := LoadOperationQueue(context.Background(), cfg.DataSource)
	if err != nil {
		return nil, fmt.Errorf("new sync context: %w", err)
	}

	minVer := cfg.MinSupportedProtocolVersion
	if minVer == "" {
		minVer = MinSupportedProtocolVersion
	}
	idGen := cfg.IDGenerator
	if idGen == nil {
		idGen = func() string { return uuid.New().String() }
	}

	return &SyncContext{
		ds:               cfg.DataSource,
		remote:           cfg.Remote,
		queue:            queue,
		writer:           newSerialExecutor(),
		lane:             newPushPullLane(),
		callbacks:        newCallbackExecutor(cfg.CallbackConcurrency),
		pushHandler:      cfg.PushHandler,
		conflictResolver: cfg.ConflictResolver,
		broadcaster:      cfg.Broadcaster,
		minProtocolVer:   minVer,
		idGen:            idGen,
	}, nil
}

// Close stops the writer domain, the push/pull lane, and waits for any
// in-flight callbacks to finish.
func (c *SyncContext) Close() {
	c.lane.Close()
	c.writer.Close()
	c.callbacks.Wait()
}

// Table returns a handle bound to tableName, implementing the public
// table API.
func (c *SyncContext) Table(tableName string) *Table {
	return &Table{ctx: c, name: tableName}
}

// Queue exposes the operation queue for inspection. Tests and
// observability tooling (e.g. dashboards) read Count()/Snapshot() off of
// it; only SyncContext itself mutates it.
func (c *SyncContext) Queue() *OperationQueue { return c.queue }

func (c *SyncContext) emit(event Event) {
	if c.broadcaster != nil {
		c.broadcaster.Publish(event)
	}
}

// ApplyLocalMutation accepts a local insert/update/delete against
// tableName and runs it through condensation inside the writer domain.
// If action is Insert and item has no id, a new UUID v4 string is
// assigned. It returns the item as it now stands in the local store (the
// post-mutation state).
func (c *SyncContext) ApplyLocalMutation(ctx context.Context, tableName string, item Item, action OperationType) (Item, error) {
	if action == OperationInsert && item.ID() == "" {
		item = item.WithID(c.idGen())
	}
	itemID := item.ID()
	if itemID == "" {
		return nil, fmt.Errorf("%w: item has no id", ErrInvalidParameter)
	}

	var result Item
	err := c.writer.Submit(func() error {
		r, err := c.applyLocalMutationLocked(ctx, tableName, item, itemID, action)
		result = r
		return err
	})
	return result, err
}

// applyLocalMutationLocked validates, stores, condenses and enqueues a
// local mutation. It must only ever be called from inside the writer
// domain.
//
// The local-store write (step 3) and the queue write (step 4) are paired:
// if the first commits and the second fails, the store and the queue
// disagree about whether the mutation is pending push. When c.ds
// implements Transactional, both writes run inside a single WithTx call so
// they commit or roll back together; otherwise this falls back to two
// independent writes and surfaces ErrStoreInconsistent if the second one
// fails after the first already landed.
func (c *SyncContext) applyLocalMutationLocked(ctx context.Context, tableName string, item Item, itemID string, action OperationType) (Item, error) {
	key := OperationKey{TableName: tableName, ItemID: itemID}
	existing, _ := c.queue.Get(key)

	decision := Condense(existing, action)
	if decision == NotSupported {
		return nil, fmt.Errorf("%w: cannot apply %s over pending %s for %s", ErrInvalidAction, action, existing.Type, key)
	}

	var storedItem Item
	if txds, ok := c.ds.(Transactional); ok {
		err := txds.WithTx(ctx, func(tx DataSource) error {
			si, err := c.writeLocalMutationItem(ctx, tx, tableName, itemID, item, action)
			if err != nil {
				return err
			}
			storedItem = si
			return c.applyCondenseDecision(ctx, tx, decision, existing, action, tableName, itemID, storedItem)
		})
		if err != nil {
			return nil, err
		}
	} else {
		si, err := c.writeLocalMutationItem(ctx, c.ds, tableName, itemID, item, action)
		if err != nil {
			return nil, err
		}
		storedItem = si
		if err := c.applyCondenseDecision(ctx, c.ds, decision, existing, action, tableName, itemID, storedItem); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreInconsistent, err)
		}
	}

	c.emit(Event{Type: EventOperationEnqueued, TableName: tableName, ItemID: itemID, Data: map[string]any{"action": action.String(), "condense": decision.String()}})
	if decision == ToDelete || decision == ToDeleteAsDiscard {
		c.emit(Event{Type: EventOperationCondensed, TableName: tableName, ItemID: itemID, Data: map[string]any{"condense": decision.String()}})
	}

	if action == OperationDelete {
		return nil, nil
	}
	return storedItem, nil
}

// writeLocalMutationItem applies action to ds's local-store row for
// (tableName, itemID) and returns the item as it now stands.
func (c *SyncContext) writeLocalMutationItem(ctx context.Context, ds DataSource, tableName, itemID string, item Item, action OperationType) (Item, error) {
	switch action {
	case OperationInsert, OperationUpdate:
		if err := ds.Upsert(ctx, tableName, []Item{item}); err != nil {
			return nil, &StoreError{Op: "upsert local item", Err: err}
		}
		return item, nil
	case OperationDelete:
		// Carry the pre-delete snapshot for recovery, preferring
		// what is already in the store over the (possibly partial)
		// item the caller passed in.
		storedItem := item
		if snapshot, err := ds.Read(ctx, tableName, itemID); err == nil && snapshot != nil {
			storedItem = snapshot
		}
		if err := ds.Delete(ctx, tableName, []string{itemID}); err != nil {
			return nil, &StoreError{Op: "delete local item", Err: err}
		}
		return storedItem, nil
	default:
		return nil, fmt.Errorf("unreachable action %v", action)
	}
}

func (c *SyncContext) applyCondenseDecision(ctx context.Context, ds DataSource, decision CondenseAction, existing *Operation, action OperationType, tableName, itemID string, snapshot Item) error {
	switch decision {
	case AddNew:
		op := &Operation{
			OperationID: c.queue.NextOperationID(),
			TableName:   tableName,
			ItemID:      itemID,
			Type:        action,
		}
		if action == OperationDelete {
			op.Item = snapshot
		}
		return c.queue.AddTx(ctx, ds, op)
	case Keep:
		return nil
	case ToDelete:
		existing.Type = OperationDelete
		existing.Item = snapshot
		existing.Version++
		return c.queue.UpdateTx(ctx, ds, existing)
	case ToDeleteAsDiscard:
		return c.queue.RemoveTx(ctx, ds, existing.OperationID)
	default:
		return fmt.Errorf("unreachable condense decision %v", decision)
	}
}
