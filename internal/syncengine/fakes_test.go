package syncengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memoryDataSource is an in-memory DataSource used by this package's own
// tests. It is deliberately simple: one map per table, no indexes, linear
// scans for ReadByQuery. Real storage lives in internal/store.
type memoryDataSource struct {
	mu     sync.Mutex
	tables map[string]map[string]Item
	props  SystemPropertySet

	opTable     string
	configTable string

	txDepth int

	// failOpTableUpsert, when set, makes Upsert against opTable fail.
	// Used to exercise WithTx's rollback of a paired local-store write.
	failOpTableUpsert bool
}

func newMemoryDataSource() *memoryDataSource {
	return &memoryDataSource{
		tables:      make(map[string]map[string]Item),
		props:       NewSystemPropertySet(SystemPropertyVersion),
		opTable:     "__operations",
		configTable: "__config",
	}
}

func (m *memoryDataSource) table(name string) map[string]Item {
	t, ok := m.tables[name]
	if !ok {
		t = make(map[string]Item)
		m.tables[name] = t
	}
	return t
}

func (m *memoryDataSource) Upsert(ctx context.Context, tableName string, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOpTableUpsert && tableName == m.opTable {
		return fmt.Errorf("simulated operation table upsert failure")
	}
	t := m.table(tableName)
	for _, it := range items {
		id := it.ID()
		if id == "" {
			return fmt.Errorf("upsert: item has no id")
		}
		t[id] = it.Clone()
	}
	return nil
}

func (m *memoryDataSource) Delete(ctx context.Context, tableName string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(tableName)
	for _, id := range ids {
		delete(t, id)
	}
	return nil
}

func (m *memoryDataSource) DeleteByQuery(ctx context.Context, query Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(query.TableName)
	for id, it := range t {
		if query.Predicate == nil || query.Predicate(it) {
			delete(t, id)
		}
	}
	return nil
}

func (m *memoryDataSource) Read(ctx context.Context, tableName, itemID string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.table(tableName)[itemID]
	if !ok {
		return nil, nil
	}
	return it.Clone(), nil
}

func (m *memoryDataSource) ReadByQuery(ctx context.Context, query Query) (QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(query.TableName)

	var matched []Item
	for _, it := range t {
		if query.Predicate != nil && !query.Predicate(it) {
			continue
		}
		if !query.UpdatedAtLowerBound.IsZero() {
			ts, ok := itemUpdatedAt(it)
			if !ok || ts.Before(query.UpdatedAtLowerBound) {
				continue
			}
		}
		matched = append(matched, it.Clone())
	}

	for _, ord := range query.Order {
		field := ord.Field
		dir := ord.Direction
		sort.SliceStable(matched, func(i, j int) bool {
			vi, vj := fmt.Sprint(matched[i][field]), fmt.Sprint(matched[j][field])
			if dir == OrderDescending {
				return vi > vj
			}
			return vi < vj
		})
	}

	total := len(matched)
	if query.FetchOffset > 0 {
		if query.FetchOffset >= len(matched) {
			matched = nil
		} else {
			matched = matched[query.FetchOffset:]
		}
	}
	if query.FetchLimit > 0 && len(matched) > query.FetchLimit {
		matched = matched[:query.FetchLimit]
	}

	return QueryResult{Items: matched, TotalCount: total}, nil
}

func (m *memoryDataSource) SystemPropertiesForTable(tableName string) SystemPropertySet {
	return m.props
}

func (m *memoryDataSource) OperationTableName() string { return m.opTable }
func (m *memoryDataSource) ConfigTableName() string     { return m.configTable }

// WithTx implements Transactional by snapshotting every table before fn
// runs and restoring the snapshot if fn returns an error, mirroring the
// all-or-nothing commit/rollback internal/store.Store gets from a real
// database/sql.Tx.
func (m *memoryDataSource) WithTx(ctx context.Context, fn func(tx DataSource) error) error {
	m.mu.Lock()
	m.txDepth++
	snapshot := m.cloneTablesLocked()
	m.mu.Unlock()

	err := fn(m)

	m.mu.Lock()
	m.txDepth--
	if err != nil {
		m.tables = snapshot
	}
	m.mu.Unlock()
	return err
}

func (m *memoryDataSource) cloneTablesLocked() map[string]map[string]Item {
	out := make(map[string]map[string]Item, len(m.tables))
	for name, t := range m.tables {
		tc := make(map[string]Item, len(t))
		for id, it := range t {
			tc[id] = it.Clone()
		}
		out[name] = tc
	}
	return out
}

// spyRemoteClient is a RemoteClient test double that records every call it
// receives and can be scripted to return canned responses or errors per
// table/op.
type spyRemoteClient struct {
	mu    sync.Mutex
	calls []spyCall

	insertFn func(tableName string, item Item) (Item, error)
	updateFn func(tableName string, item Item) (Item, error)
	deleteFn func(tableName string, item Item) error
	readFn   func(query Query) (QueryResult, error)

	protocolVersion string
}

type spyCall struct {
	Method    string
	TableName string
	Item      Item
}

func (s *spyRemoteClient) record(method, tableName string, item Item) {
	s.mu.Lock()
	s.calls = append(s.calls, spyCall{Method: method, TableName: tableName, Item: item})
	s.mu.Unlock()
}

func (s *spyRemoteClient) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *spyRemoteClient) TableInsert(ctx context.Context, tableName string, item Item, features RemoteFeatures) (Item, error) {
	s.record("insert", tableName, item)
	if s.insertFn != nil {
		return s.insertFn(tableName, item)
	}
	out := item.Clone()
	out[SystemFieldVersion] = "1"
	return out, nil
}

func (s *spyRemoteClient) TableUpdate(ctx context.Context, tableName string, item Item, features RemoteFeatures) (Item, error) {
	s.record("update", tableName, item)
	if s.updateFn != nil {
		return s.updateFn(tableName, item)
	}
	out := item.Clone()
	out[SystemFieldVersion] = "2"
	return out, nil
}

func (s *spyRemoteClient) TableDelete(ctx context.Context, tableName string, item Item, features RemoteFeatures) error {
	s.record("delete", tableName, item)
	if s.deleteFn != nil {
		return s.deleteFn(tableName, item)
	}
	return nil
}

func (s *spyRemoteClient) TableRead(ctx context.Context, query Query, features RemoteFeatures) (QueryResult, error) {
	s.record("read", query.TableName, nil)
	if s.readFn != nil {
		return s.readFn(query)
	}
	return QueryResult{}, nil
}

func (s *spyRemoteClient) ProtocolVersion() string { return s.protocolVersion }

// nonTxDataSource wraps a DataSource through the bare interface, hiding
// any WithTx the underlying value has so c.ds.(Transactional) misses and
// SyncContext falls back to its best-effort, non-atomic write path.
type nonTxDataSource struct {
	DataSource
}

var _ DataSource = (*memoryDataSource)(nil)
var _ Transactional = (*memoryDataSource)(nil)
var _ DataSource = (*nonTxDataSource)(nil)
var _ RemoteClient = (*spyRemoteClient)(nil)
var _ VersionedRemoteClient = (*spyRemoteClient)(nil)
