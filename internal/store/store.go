// Package store provides an embedded-SQLite DataSource for the sync
// engine, following the same embedded-libSQL-via-go-sqlite3 pattern used
// elsewhere in this codebase for local, WAL-backed storage.
//
// Every logical table the engine asks for (including its own reserved
// operation and config tables) becomes one physical SQLite table with a
// fixed shape: id TEXT PRIMARY KEY, updated_at TEXT, data TEXT (the item
// serialized as JSON). Arbitrary item schemas are supported this way
// without requiring the caller to declare columns up front; updated_at is
// pulled out of the JSON payload into its own column purely so it can be
// indexed for incremental-pull filtering and ordering.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/brettsam/offlinesync/internal/syncengine"
)

// tableNamePattern guards against SQL injection through a caller-supplied
// table name: only the identifier characters SQLite accepts unquoted.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is a syncengine.DataSource and syncengine.Transactional backed by
// an embedded SQLite database opened via ncruces/go-sqlite3.
type Store struct {
	conn        *sql.DB
	path        string
	props       syncengine.SystemPropertySet
	opTable     string
	configTable string

	known map[string]bool
}

// Config configures Open. OperationTableName and ConfigTableName default
// to "__sync_operations" and "__sync_config" if left empty.
type Config struct {
	Path              string
	OperationTableName string
	ConfigTableName    string
}

// DefaultConfig returns a Config with the reserved table names filled in.
func DefaultConfig(path string) Config {
	return Config{
		Path:               path,
		OperationTableName: "__sync_operations",
		ConfigTableName:    "__sync_config",
	}
}

// Open creates or opens the SQLite database at cfg.Path in embedded WAL
// mode. The caller must call Close when done.
func Open(cfg Config) (*Store, error) {
	if cfg.OperationTableName == "" {
		cfg.OperationTableName = "__sync_operations"
	}
	if cfg.ConfigTableName == "" {
		cfg.ConfigTableName = "__sync_config"
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", "file:"+cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set %q: %w", pragma, err)
		}
	}

	s := &Store{
		conn:        conn,
		path:        cfg.Path,
		props:       syncengine.NewSystemPropertySet(syncengine.SystemPropertyVersion, syncengine.SystemPropertyCreatedAt, syncengine.SystemPropertyUpdatedAt, syncengine.SystemPropertyDeleted),
		opTable:     cfg.OperationTableName,
		configTable: cfg.ConfigTableName,
		known:       make(map[string]bool),
	}

	if err := s.ensureTable(context.Background(), s.opTable); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.ensureTable(context.Background(), s.configTable); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints the WAL and closes the underlying connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "store: wal checkpoint failed: %v\n", err)
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func quoteIdent(name string) (string, error) {
	if !tableNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return `"` + name + `"`, nil
}

func (s *Store) ensureTable(ctx context.Context, tableName string) error {
	if s.known[tableName] {
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
		);
		CREATE INDEX IF NOT EXISTS %s_updated_at ON %s (updated_at);
	`, ident, strings.Trim(ident, `"`)+"_idx", ident)
	if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", tableName, err)
	}
	s.known[tableName] = true
	return nil
}

func itemUpdatedAtColumn(it syncengine.Item) string {
	v, _ := it[syncengine.SystemFieldUpdatedAt].(string)
	return v
}

// Upsert implements syncengine.DataSource.
func (s *Store) Upsert(ctx context.Context, tableName string, items []syncengine.Item) error {
	if err := s.ensureTable(ctx, tableName); err != nil {
		return err
	}
	ident, err := quoteIdent(tableName)
	if err != nil {
		return err
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
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
	return tx.Commit()
}

// Delete implements syncengine.DataSource.
func (s *Store) Delete(ctx context.Context, tableName string, ids []string) error {
	if err := s.ensureTable(ctx, tableName); err != nil {
		return err
	}
	ident, err := quoteIdent(tableName)
	if err != nil {
		return err
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, ident))
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete %s/%s: %w", tableName, id, err)
		}
	}
	return tx.Commit()
}

// DeleteByQuery implements syncengine.DataSource. The predicate, being an
// arbitrary Go closure, is evaluated after a full scan rather than pushed
// down to SQL.
func (s *Store) DeleteByQuery(ctx context.Context, query syncengine.Query) error {
	res, err := s.ReadByQuery(ctx, query)
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
	return s.Delete(ctx, query.TableName, ids)
}

// Read implements syncengine.DataSource.
func (s *Store) Read(ctx context.Context, tableName, itemID string) (syncengine.Item, error) {
	if err := s.ensureTable(ctx, tableName); err != nil {
		return nil, err
	}
	ident, err := quoteIdent(tableName)
	if err != nil {
		return nil, err
	}
	var data string
	err = s.conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, ident), itemID).Scan(&data)
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

// ReadByQuery implements syncengine.DataSource. It loads every row of the
// table and applies Predicate/Order/FetchOffset/FetchLimit in Go, favoring
// simplicity over pushing the filter into SQL: Item's predicate is an
// opaque closure the store cannot translate to a WHERE clause anyway.
func (s *Store) ReadByQuery(ctx context.Context, query syncengine.Query) (syncengine.QueryResult, error) {
	if err := s.ensureTable(ctx, query.TableName); err != nil {
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

	rows, err := s.conn.QueryContext(ctx, sqlQuery, args...)
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

func sortItems(items []syncengine.Item, order []syncengine.OrderClause) {
	if len(order) == 0 {
		return
	}
	less := func(i, j int) bool {
		for _, ord := range order {
			vi := fmt.Sprint(items[i][ord.Field])
			vj := fmt.Sprint(items[j][ord.Field])
			if vi == vj {
				continue
			}
			if ord.Direction == syncengine.OrderDescending {
				return vi > vj
			}
			return vi < vj
		}
		return false
	}
	sort.SliceStable(items, less)
}

// SystemPropertiesForTable implements syncengine.DataSource.
func (s *Store) SystemPropertiesForTable(tableName string) syncengine.SystemPropertySet {
	return s.props
}

// OperationTableName implements syncengine.DataSource.
func (s *Store) OperationTableName() string { return s.opTable }

// ConfigTableName implements syncengine.DataSource.
func (s *Store) ConfigTableName() string { return s.configTable }

// WithTx implements syncengine.Transactional: fn runs against a txStore
// bound to a single SQLite transaction, so a local-store write and its
// paired operation-queue write commit or roll back together.
func (s *Store) WithTx(ctx context.Context, fn func(tx syncengine.DataSource) error) error {
	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txStore := &txStore{parent: s, tx: sqlTx}
	if err := fn(txStore); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}

var _ syncengine.DataSource = (*Store)(nil)
var _ syncengine.Transactional = (*Store)(nil)
