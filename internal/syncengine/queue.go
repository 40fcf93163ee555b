package syncengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// OperationQueue is the durable, ordered collection of pending operations
// plus the (table, itemId) to operation lookup.
// It is backed by the DataSource's reserved operation table; every
// mutating method persists through ds before updating the in-memory
// index, so a crash between the two never leaves the index ahead of
// storage.
type OperationQueue struct {
	ds DataSource

	mu     sync.Mutex
	byID   map[int64]*Operation
	byKey  map[OperationKey]*Operation
	nextID int64
}

// operationRow is the persisted shape of an Operation in the reserved
// operation table ("{id, tableName, itemId, type, item?, version}"),
// plus the per-op error fields kept on the operation itself rather than
// in a sibling table.
type operationRow struct {
	OperationID int64  `json:"operationId"`
	TableName   string `json:"tableName"`
	ItemID      string `json:"itemId"`
	Type        string `json:"type"`
	Item        Item   `json:"item,omitempty"`
	Version     int    `json:"version"`
	ErrorKind   string `json:"errorKind,omitempty"`
	ErrorText   string `json:"errorText,omitempty"`
}

func operationTypeFromString(s string) (OperationType, error) {
	switch s {
	case "insert":
		return OperationInsert, nil
	case "update":
		return OperationUpdate, nil
	case "delete":
		return OperationDelete, nil
	default:
		return 0, fmt.Errorf("unknown operation type %q", s)
	}
}

func operationToItem(op *Operation) Item {
	row := operationRow{
		OperationID: op.OperationID,
		TableName:   op.TableName,
		ItemID:      op.ItemID,
		Type:        op.Type.String(),
		Item:        op.Item,
		Version:     op.Version,
	}
	if op.LastError != nil {
		row.ErrorKind = string(op.LastError.Kind)
		row.ErrorText = op.LastError.Err.Error()
	}
	return Item{
		SystemFieldID: fmt.Sprintf("%d", op.OperationID),
		"operationId":  row.OperationID,
		"tableName":    row.TableName,
		"itemId":       row.ItemID,
		"type":         row.Type,
		"item":         row.Item,
		"version":      row.Version,
		"errorKind":    row.ErrorKind,
		"errorText":    row.ErrorText,
	}
}

func itemToOperation(it Item) (*Operation, error) {
	opID, err := asInt64(it["operationId"])
	if err != nil {
		return nil, fmt.Errorf("decode operation row: %w", err)
	}
	typeStr, _ := it["type"].(string)
	opType, err := operationTypeFromString(typeStr)
	if err != nil {
		return nil, err
	}
	version, _ := asInt64(it["version"])
	op := &Operation{
		OperationID: opID,
		TableName:   fmt.Sprint(it["tableName"]),
		ItemID:      fmt.Sprint(it["itemId"]),
		Type:        opType,
		Version:     int(version),
	}
	if raw, ok := it["item"]; ok && raw != nil {
		if m, ok := raw.(Item); ok {
			op.Item = m
		} else if m, ok := raw.(map[string]any); ok {
			op.Item = Item(m)
		}
	}
	errKind, _ := it["errorKind"].(string)
	errText, _ := it["errorText"].(string)
	if errKind != "" {
		op.LastError = &TableOperationError{
			OperationID: opID,
			TableName:   op.TableName,
			ItemID:      op.ItemID,
			Kind:        RemoteErrorKind(errKind),
			Err:         fmt.Errorf("%s", errText),
		}
	}
	return op, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("not a number: %v (%T)", v, v)
	}
}

// LoadOperationQueue reads every row of ds's operation table and builds
// the in-memory index. It is called once at SyncContext startup.
func LoadOperationQueue(ctx context.Context, ds DataSource) (*OperationQueue, error) {
	res, err := ds.ReadByQuery(ctx, Query{TableName: ds.OperationTableName()})
	if err != nil {
		return nil, &StoreError{Op: "load operation queue", Err: err}
	}

	q := &OperationQueue{
		ds:    ds,
		byID:  make(map[int64]*Operation),
		byKey: make(map[OperationKey]*Operation),
	}
	var maxID int64
	for _, row := range res.Items {
		op, err := itemToOperation(row)
		if err != nil {
			return nil, fmt.Errorf("load operation queue: %w", err)
		}
		q.byID[op.OperationID] = op
		q.byKey[op.Key()] = op
		if op.OperationID > maxID {
			maxID = op.OperationID
		}
	}
	q.nextID = maxID + 1
	return q, nil
}

// NextOperationID returns the next operationId to assign and advances the
// counter. operationId is strictly increasing across the queue's entire
// lifetime, including across process restarts, because LoadOperationQueue
// seeds nextID from the max persisted id.
func (q *OperationQueue) NextOperationID() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextID
	q.nextID++
	return id
}

// GetOperationsForTable returns the pending operation(s) for tableName. If
// itemID is non-nil, it returns the at-most-one operation matching
// (tableName, *itemID); otherwise it returns every operation for
// tableName, in operationId (enqueue) order.
func (q *OperationQueue) GetOperationsForTable(tableName string, itemID *string) []*Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if itemID != nil {
		op, ok := q.byKey[OperationKey{TableName: tableName, ItemID: *itemID}]
		if !ok {
			return nil
		}
		return []*Operation{op}
	}

	var out []*Operation
	for _, op := range q.byID {
		if op.TableName == tableName {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OperationID < out[j].OperationID })
	return out
}

// Snapshot returns a copy of every pending operation across all tables, in
// operationId order. PushRunner uses this to drain the queue in strict
// enqueue order. The copies are independent of the queue's own indexed
// Operations: a push reads OperationID/Version/Type/Item off the returned
// copy across a remote round trip, outside the writer domain, so it must
// not be handed a pointer the writer domain can still mutate in place.
func (q *OperationQueue) Snapshot() []*Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Operation, 0, len(q.byID))
	for _, op := range q.byID {
		out = append(out, op.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OperationID < out[j].OperationID })
	return out
}

// Get looks up a single operation by its key, or (nil, false).
func (q *OperationQueue) Get(key OperationKey) (*Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	op, ok := q.byKey[key]
	return op, ok
}

// Add persists and indexes a new operation. It fails with ErrQueueConflict
// if a pending operation already exists for op.Key().
func (q *OperationQueue) Add(ctx context.Context, op *Operation) error {
	return q.AddTx(ctx, q.ds, op)
}

// AddTx is Add, persisting through ds instead of the queue's own
// DataSource. SyncContext uses this to fold the queue write into the same
// transaction as the paired local-store write, when the DataSource backing
// the queue also implements Transactional.
func (q *OperationQueue) AddTx(ctx context.Context, ds DataSource, op *Operation) error {
	q.mu.Lock()
	if _, exists := q.byKey[op.Key()]; exists {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrQueueConflict, op.Key())
	}
	q.mu.Unlock()

	if err := ds.Upsert(ctx, ds.OperationTableName(), []Item{operationToItem(op)}); err != nil {
		return &StoreError{Op: "add operation", Err: err}
	}

	q.mu.Lock()
	q.byID[op.OperationID] = op
	q.byKey[op.Key()] = op
	q.mu.Unlock()
	return nil
}

// Update rewrites the stored form of op, used after condensation
// (ToDelete) or after a push attempt records a per-op error.
func (q *OperationQueue) Update(ctx context.Context, op *Operation) error {
	return q.UpdateTx(ctx, q.ds, op)
}

// UpdateTx is Update, persisting through ds. See AddTx.
func (q *OperationQueue) UpdateTx(ctx context.Context, ds DataSource, op *Operation) error {
	if err := ds.Upsert(ctx, ds.OperationTableName(), []Item{operationToItem(op)}); err != nil {
		return &StoreError{Op: "update operation", Err: err}
	}
	q.mu.Lock()
	q.byID[op.OperationID] = op
	q.byKey[op.Key()] = op
	q.mu.Unlock()
	return nil
}

// Remove idempotently deletes the operation with operationID, along with
// any per-op error recorded on it (the error lives on the Operation row
// itself, so removing the row removes the error too).
func (q *OperationQueue) Remove(ctx context.Context, operationID int64) error {
	return q.RemoveTx(ctx, q.ds, operationID)
}

// RemoveTx is Remove, persisting through ds. See AddTx.
func (q *OperationQueue) RemoveTx(ctx context.Context, ds DataSource, operationID int64) error {
	q.mu.Lock()
	op, ok := q.byID[operationID]
	q.mu.Unlock()
	if !ok {
		return nil
	}

	if err := ds.Delete(ctx, ds.OperationTableName(), []string{fmt.Sprintf("%d", operationID)}); err != nil {
		return &StoreError{Op: "remove operation", Err: err}
	}

	q.mu.Lock()
	delete(q.byID, operationID)
	delete(q.byKey, op.Key())
	q.mu.Unlock()
	return nil
}

// Count returns the number of pending operations across all tables.
func (q *OperationQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}
