package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/brettsam/offlinesync/internal/syncengine"
)

// txStore is the syncengine.DataSource handed to the callback of
// Store.WithTx. It consults the parent Store's schema bookkeeping but
// does not add to it, since a table created inside the transaction is
// gone again if the transaction rolls back; it reads and writes the rows
// through a single *sql.Tx.
type txStore struct {
	parent *Store
	tx     *sql.Tx
}

func (t *txStore) ensureTable(ctx context.Context, tableName string) error {
	if t.parent.known[tableName] {
		return nil
	}
	ident, err := quoteIdent(tableName)
	if err != nil {
		return err
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			updated_at TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL
		)`, ident)
	if _, err := t.tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", tableName, err)
	}
	return nil
}

func (t *txStore) Upsert(ctx context.Context, tableName string, items []syncengine.Item) error {
	if err := t.ensureTable(ctx, tableName); err != nil {
		return err
	}
	ident, err := quoteIdent(tableName)
	if err != nil {
		return err
	}
	stmt, err := t.tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, updated_at, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at, data = excluded.data`, ident))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()
	for _, it := range items {
		id := it.ID()
		if id == "" {
			return fmt.Errorf("upsert into %s: item has no id", tableName)
		}
		data, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("marshal item %s/%s: %w", tableName, id, err)
		}
		if _, err := stmt.ExecContext(ctx, id, itemUpdatedAtColumn(it), string(data)); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", tableName, id, err)
		}
	}
	return nil
}

func (t *txStore) Delete(ctx context.Context, tableName string, ids []string) error {
	if err := t.ensureTable(ctx, tableName); err != nil {
		return err
	}
	ident, err := quoteIdent(tableName)
	if err != nil {
		return err
	}
	stmt, err := t.tx.PrepareContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, ident))
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete %s/%s: %w", tableName, id, err)
		}
	}
	return nil
}

func (t *txStore) DeleteByQuery(ctx context.Context, query syncengine.Query) error {
	res, err := t.ReadByQuery(ctx, query)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(res.Items))
	for _, it := range res.Items {
		ids = append(ids, it.ID())
	}
	if len(ids) == 0 {
		return nil
	}
	return t.Delete(ctx, query.TableName, ids)
}

func (t *txStore) Read(ctx context.Context, tableName, itemID string) (syncengine.Item, error) {
	if err := t.ensureTable(ctx, tableName); err != nil {
		return nil, err
	}
	ident, err := quoteIdent(tableName)
	if err != nil {
		return nil, err
	}
	var data string
	err = t.tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, ident), itemID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", tableName, itemID, err)
	}
	var it syncengine.Item
	if err := json.Unmarshal([]byte(data), &it); err != nil {
		return nil, fmt.Errorf("unmarshal %s/%s: %w", tableName, itemID, err)
	}
	return it, nil
}

func (t *txStore) ReadByQuery(ctx context.Context, query syncengine.Query) (syncengine.QueryResult, error) {
	if err := t.ensureTable(ctx, query.TableName); err != nil {
		return syncengine.QueryResult{}, err
	}
	ident, err := quoteIdent(query.TableName)
	if err != nil {
		return syncengine.QueryResult{}, err
	}

	sqlQuery := fmt.Sprintf(`SELECT data FROM %s`, ident)
	var args []any
	if !query.UpdatedAtLowerBound.IsZero() {
		sqlQuery += ` WHERE updated_at >= ?`
		args = append(args, syncengine.FormatSyncTime(query.UpdatedAtLowerBound))
	}

	rows, err := t.tx.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return syncengine.QueryResult{}, fmt.Errorf("query %s: %w", query.TableName, err)
	}
	defer rows.Close()

	var all []syncengine.Item
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return syncengine.QueryResult{}, fmt.Errorf("scan %s row: %w", query.TableName, err)
		}
		var it syncengine.Item
		if err := json.Unmarshal([]byte(data), &it); err != nil {
			return syncengine.QueryResult{}, fmt.Errorf("unmarshal %s row: %w", query.TableName, err)
		}
		if query.Predicate == nil || query.Predicate(it) {
			all = append(all, it)
		}
	}
	if err := rows.Err(); err != nil {
		return syncengine.QueryResult{}, fmt.Errorf("iterate %s: %w", query.TableName, err)
	}

	sortItems(all, query.Order)

	total := len(all)
	if query.FetchOffset > 0 {
		if query.FetchOffset >= len(all) {
			all = nil
		} else {
			all = all[query.FetchOffset:]
		}
	}
	if query.FetchLimit > 0 && len(all) > query.FetchLimit {
		all = all[:query.FetchLimit]
	}

	return syncengine.QueryResult{Items: all, TotalCount: total}, nil
}

func (t *txStore) SystemPropertiesForTable(tableName string) syncengine.SystemPropertySet {
	return t.parent.props
}

func (t *txStore) OperationTableName() string { return t.parent.opTable }
func (t *txStore) ConfigTableName() string     { return t.parent.configTable }

var _ syncengine.DataSource = (*txStore)(nil)
