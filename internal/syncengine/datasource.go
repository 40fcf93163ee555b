package syncengine

import "context"

// QueryResult is the result of a DataSource.ReadByQuery call.
type QueryResult struct {
	Items      []Item
	TotalCount int
}

// DataSource is the interface the core calls to read and write the local
// store and the reserved operation/config tables. It is external: the
// engine treats it as a collaborator and never assumes a particular
// storage technology. See internal/store for a concrete embedded-SQLite
// implementation.
type DataSource interface {
	// Upsert writes items into tableName, inserting or replacing by id.
	Upsert(ctx context.Context, tableName string, items []Item) error

	// Delete removes the rows with the given ids from tableName.
	Delete(ctx context.Context, tableName string, ids []string) error

	// DeleteByQuery removes every row matching query from its table.
	DeleteByQuery(ctx context.Context, query Query) error

	// Read returns the row with itemID from tableName, or (nil, nil) if
	// absent.
	Read(ctx context.Context, tableName, itemID string) (Item, error)

	// ReadByQuery returns the rows matching query, honoring its
	// Predicate, Order, FetchOffset and FetchLimit.
	ReadByQuery(ctx context.Context, query Query) (QueryResult, error)

	// SystemPropertiesForTable reports which system properties the store
	// preserves for tableName. Implementations may return the same set
	// for every table. The default is {SystemPropertyVersion}.
	SystemPropertiesForTable(tableName string) SystemPropertySet

	// OperationTableName and ConfigTableName name the two reserved
	// tables the engine uses for its own bookkeeping; DataSource
	// implementations must not let application tables collide with
	// these names.
	OperationTableName() string
	ConfigTableName() string
}

// Transactional is an optional capability a DataSource may implement to
// let SyncContext pair a local-store write with its queue write
// atomically, avoiding a local-store write succeeding while the queue
// write fails. Adapters that cannot offer a transaction simply don't
// implement this interface; SyncContext falls back to best-effort writes
// and surfaces ErrStoreInconsistent when the second write fails after the
// first committed.
type Transactional interface {
	// WithTx runs fn against a DataSource bound to a single transaction.
	// If fn returns an error, every write inside fn is rolled back.
	WithTx(ctx context.Context, fn func(tx DataSource) error) error
}
