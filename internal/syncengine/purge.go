package syncengine

import "context"

// PurgeRequest names what to purge. Query defaults to the zero Query,
// meaning "entire table" when Query.Predicate is nil.
type PurgeRequest struct {
	Query   Query
	QueryID string
	Force   bool
}

// Purge deletes local rows matching req.Query from req.Query.TableName,
// first clearing any pending operations on that table if Force is set
// and req.Query.Predicate is nil (and failing outright if they exist and
// either Force is not set or a Predicate is), and drops
// the associated delta token if QueryID is set. It runs entirely inside
// the writer domain and delivers completion on the callback executor.
func (c *SyncContext) Purge(ctx context.Context, req PurgeRequest, completion func(error)) {
	go func() {
		err := c.purgeSync(ctx, req)
		if completion != nil {
			c.callbacks.Dispatch(func() { completion(err) })
		}
	}()
}

func (c *SyncContext) purgeSync(ctx context.Context, req PurgeRequest) error {
	return c.writer.Submit(func() error {
		return c.purgeLocked(ctx, req)
	})
}

func (c *SyncContext) purgeLocked(ctx context.Context, req PurgeRequest) error {
	table := req.Query.TableName

	if req.QueryID != "" {
		if err := c.ds.Delete(ctx, c.ds.ConfigTableName(), []string{deltaTokenID(table, req.QueryID)}); err != nil {
			return &StoreError{Op: "delete delta token", Err: err}
		}
	}

	pending := c.queue.GetOperationsForTable(table, nil)
	if len(pending) > 0 {
		hasPredicate := req.Query.Predicate != nil
		if hasPredicate || !req.Force {
			return &PurgeAbortedError{TableName: table, PendingOpCount: len(pending)}
		}
		for _, op := range pending {
			if err := c.queue.Remove(ctx, op.OperationID); err != nil {
				return err
			}
		}
	}

	if err := c.ds.DeleteByQuery(ctx, req.Query); err != nil {
		return &StoreError{Op: "purge table", Err: err}
	}

	c.emit(Event{Type: EventPurgeCompleted, TableName: table, Data: map[string]any{"force": req.Force}})
	return nil
}
