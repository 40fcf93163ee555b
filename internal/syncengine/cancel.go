package syncengine

import (
	"context"
	"fmt"
)

// CancelKeepingItem implements the "keep item" variant of cancellation:
// upsert the caller's corrected item (stripped of system properties
// except __version), then remove the pending operation. correctedItem's
// id must match itemID.
func (c *SyncContext) CancelKeepingItem(ctx context.Context, tableName, itemID string, correctedItem Item) error {
	return c.writer.Submit(func() error {
		op, ok := c.queue.Get(OperationKey{TableName: tableName, ItemID: itemID})
		if !ok {
			return fmt.Errorf("%w: no pending operation for %s/%s", ErrInvalidParameter, tableName, itemID)
		}
		cleaned := correctedItem.WithID(itemID).StripSystemProperties(SystemFieldVersion)
		if err := c.ds.Upsert(ctx, tableName, []Item{cleaned}); err != nil {
			return &StoreError{Op: "cancel: upsert corrected item", Err: err}
		}
		return c.queue.Remove(ctx, op.OperationID)
	})
}

// CancelDiscardingItem implements the "discard item" variant of
// cancellation: delete the local row, then remove the pending operation.
func (c *SyncContext) CancelDiscardingItem(ctx context.Context, tableName, itemID string) error {
	return c.writer.Submit(func() error {
		op, ok := c.queue.Get(OperationKey{TableName: tableName, ItemID: itemID})
		if !ok {
			return fmt.Errorf("%w: no pending operation for %s/%s", ErrInvalidParameter, tableName, itemID)
		}
		if err := c.ds.Delete(ctx, tableName, []string{itemID}); err != nil {
			return &StoreError{Op: "cancel: delete item", Err: err}
		}
		return c.queue.Remove(ctx, op.OperationID)
	})
}
