package syncengine

import "context"

// Table is the public thin wrapper scoped to one table name: an application
// gets one per logical table name and drives mutations and reads through
// it, while Push lives on the SyncContext itself.
type Table struct {
	ctx  *SyncContext
	name string
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// Insert records a local insert. If item has no "id", a new UUID v4
// string is assigned. completion receives the item as it now stands in
// the local store.
func (t *Table) Insert(ctx context.Context, item Item, completion func(Item, error)) {
	t.applyAsync(ctx, item, OperationInsert, completion)
}

// Update records a local update.
func (t *Table) Update(ctx context.Context, item Item, completion func(Item, error)) {
	t.applyAsync(ctx, item, OperationUpdate, completion)
}

// Delete records a local delete. item's id selects the row; the stored
// row becomes the pending delete's snapshot, or item itself when no row
// is stored.
func (t *Table) Delete(ctx context.Context, item Item, completion func(Item, error)) {
	t.applyAsync(ctx, item, OperationDelete, completion)
}

func (t *Table) applyAsync(ctx context.Context, item Item, action OperationType, completion func(Item, error)) {
	go func() {
		result, err := t.ctx.ApplyLocalMutation(ctx, t.name, item, action)
		if completion != nil {
			t.ctx.callbacks.Dispatch(func() { completion(result, err) })
		}
	}()
}

// ReadWithID passes through to the local store.
func (t *Table) ReadWithID(ctx context.Context, id string) (Item, error) {
	return t.ctx.ds.Read(ctx, t.name, id)
}

// ReadWithPredicate passes through to the local store, filtered by
// predicate (nil matches everything).
func (t *Table) ReadWithPredicate(ctx context.Context, predicate func(Item) bool) ([]Item, error) {
	res, err := t.ctx.ds.ReadByQuery(ctx, Query{TableName: t.name, Predicate: predicate})
	if err != nil {
		return nil, &StoreError{Op: "read by predicate", Err: err}
	}
	return res.Items, nil
}

// ReadAll passes through to the local store with no filter.
func (t *Table) ReadAll(ctx context.Context) ([]Item, error) {
	return t.ReadWithPredicate(ctx, nil)
}

// Pull executes an incremental (queryID != "") or plain pull for this
// table; see SyncContext.Pull.
func (t *Table) Pull(ctx context.Context, query Query, queryID string, completion func(PullResult, error)) {
	query.TableName = t.name
	t.ctx.Pull(ctx, PullRequest{Query: query, QueryID: queryID}, completion)
}

// Purge clears rows for this table; see SyncContext.Purge.
func (t *Table) Purge(ctx context.Context, query Query, queryID string, force bool, completion func(error)) {
	query.TableName = t.name
	t.ctx.Purge(ctx, PurgeRequest{Query: query, QueryID: queryID, Force: force}, completion)
}
