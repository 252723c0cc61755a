// Package sqlhost implements a host store with one SQLite file per database.
//
// Each file carries the database version in PRAGMA user_version, the object
// store declarations in kv_stores and one table per store holding the key and
// the JSON encoded value. SQLite orders numbers before text, which matches
// the key order of the host protocol.
package sqlhost

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/maruel/kvedit/internal/hoststore"

	_ "modernc.org/sqlite"
)

const ext = ".sqlite"

// Host is a directory of SQLite files.
type Host struct {
	dir string
}

// New returns a host storing its files in dir.
func New(dir string) (*Host, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlhost: failed to create %s: %w", dir, err)
	}
	return &Host{dir: dir}, nil
}

func (h *Host) path(name string) string {
	return filepath.Join(h.dir, url.PathEscape(name)+ext)
}

func (h *Host) open(name string) (*sql.DB, error) {
	return sql.Open("sqlite", h.path(name)+"?_pragma=busy_timeout(5000)")
}

// Databases implements hoststore.Enumerator.
func (h *Host) Databases(ctx context.Context) ([]hoststore.DatabaseInfo, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return nil, fmt.Errorf("sqlhost: failed to list %s: %w", h.dir, err)
	}
	var out []hoststore.DatabaseInfo
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ext)
		if e.IsDir() || !ok {
			continue
		}
		name, err := url.PathUnescape(base)
		if err != nil {
			continue
		}
		version, err := h.version(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, hoststore.DatabaseInfo{Name: name, Version: version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (h *Host) version(ctx context.Context, name string) (int, error) {
	db, err := h.open(name)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("sqlhost: %q: %w", name, err)
	}
	return v, nil
}

// CreateDatabase implements hoststore.Builder.
func (h *Host) CreateDatabase(ctx context.Context, name string, version int) error {
	if name == "" {
		return errors.New("sqlhost: database name is required")
	}
	if _, err := os.Stat(h.path(name)); err == nil {
		return fmt.Errorf("sqlhost: database %q: %w", name, hoststore.ErrExists)
	}
	db, err := h.open(name)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	stmts := []string{
		"CREATE TABLE kv_stores (name TEXT PRIMARY KEY, key_path TEXT NOT NULL DEFAULT '')",
		fmt.Sprintf("PRAGMA user_version = %d", max(version, 1)),
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlhost: create %q: %w", name, err)
		}
	}
	return nil
}

// CreateStore implements hoststore.Builder.
func (h *Host) CreateStore(ctx context.Context, dbName, storeName, keyPath string) error {
	if storeName == "" {
		return errors.New("sqlhost: store name is required")
	}
	if _, err := os.Stat(h.path(dbName)); err != nil {
		return fmt.Errorf("sqlhost: %q: %w", dbName, hoststore.ErrNotFound)
	}
	db, err := h.open(dbName)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv_stores WHERE name = ?", storeName).Scan(&n); err != nil {
		return err
	}
	if n != 0 {
		return fmt.Errorf("sqlhost: store %q: %w", storeName, hoststore.ErrExists)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO kv_stores (name, key_path) VALUES (?, ?)", storeName, keyPath); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+tableName(storeName)+" (key PRIMARY KEY, value TEXT NOT NULL)"); err != nil {
		return err
	}
	return tx.Commit()
}

// Open implements hoststore.Host.
func (h *Host) Open(ctx context.Context, name string) (hoststore.Conn, error) {
	if _, err := os.Stat(h.path(name)); err != nil {
		return nil, fmt.Errorf("sqlhost: %q: %w", name, hoststore.ErrNotFound)
	}
	db, err := h.open(name)
	if err != nil {
		return nil, err
	}
	c, err := NewConn(ctx, name, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// NewConn wraps an open database handle. The connection takes ownership of db.
func NewConn(ctx context.Context, name string, db *sql.DB) (hoststore.Conn, error) {
	c := &conn{db: db, name: name, keyPaths: map[string]string{}}
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&c.version); err != nil {
		return nil, fmt.Errorf("sqlhost: %q: %w", name, err)
	}
	rows, err := db.QueryContext(ctx, "SELECT name, key_path FROM kv_stores ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("sqlhost: %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var n, kp string
		if err := rows.Scan(&n, &kp); err != nil {
			return nil, err
		}
		c.keyPaths[n] = kp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlhost: %q: %w", name, err)
	}
	return c, nil
}

// tableName returns the quoted table identifier of a store.
func tableName(store string) string {
	return `"s_` + strings.ReplaceAll(store, `"`, `""`) + `"`
}

type conn struct {
	db       *sql.DB
	name     string
	version  int
	keyPaths map[string]string
}

func (c *conn) Name() string { return c.name }

func (c *conn) Version() int { return c.version }

func (c *conn) StoreNames() []string {
	names := make([]string, 0, len(c.keyPaths))
	for n := range c.keyPaths {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (c *conn) KeyPath(store string) (string, error) {
	kp, ok := c.keyPaths[store]
	if !ok {
		return "", fmt.Errorf("sqlhost: %q: %w", store, hoststore.ErrNoSuchStore)
	}
	return kp, nil
}

func (c *conn) Begin(ctx context.Context, store string, mode hoststore.Mode) (hoststore.Tx, error) {
	kp, ok := c.keyPaths[store]
	if !ok {
		return nil, fmt.Errorf("sqlhost: %q: %w", store, hoststore.ErrNoSuchStore)
	}
	sqlTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlhost: begin %s: %w", mode, err)
	}
	return &tx{tx: sqlTx, table: tableName(store), keyPath: kp, mode: mode}, nil
}

func (c *conn) Close() error {
	return c.db.Close()
}

type tx struct {
	tx      *sql.Tx
	table   string
	keyPath string
	mode    hoststore.Mode
	done    bool
}

func (t *tx) OpenCursor(ctx context.Context) (hoststore.Cursor, error) {
	if t.done {
		return nil, hoststore.ErrTxDone
	}
	rows, err := t.tx.QueryContext(ctx, "SELECT key, value FROM "+t.table+" ORDER BY key")
	if err != nil {
		return nil, err
	}
	return &cursor{rows: rows}, nil
}

func (t *tx) writable() error {
	if t.done {
		return hoststore.ErrTxDone
	}
	if t.mode != hoststore.ReadWrite {
		return hoststore.ErrReadOnly
	}
	return nil
}

func (t *tx) Put(ctx context.Context, value any, key hoststore.Key) error {
	if err := t.writable(); err != nil {
		return err
	}
	k, err := hoststore.ResolvePutKey(t.keyPath, value, key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlhost: encode value: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, "INSERT OR REPLACE INTO "+t.table+" (key, value) VALUES (?, ?)", k, string(data))
	return err
}

func (t *tx) Delete(ctx context.Context, key hoststore.Key) error {
	if err := t.writable(); err != nil {
		return err
	}
	k, err := hoststore.NormalizeKey(key)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, "DELETE FROM "+t.table+" WHERE key = ?", k)
	return err
}

// Commit commits read-write transactions. Read-only ones are rolled back
// since they have nothing to persist.
func (t *tx) Commit() error {
	if t.done {
		return hoststore.ErrTxDone
	}
	t.done = true
	if t.mode != hoststore.ReadWrite {
		return t.tx.Rollback()
	}
	if err := t.tx.Commit(); err != nil {
		slog.Debug("sqlhost", "msg", "commit failed", "table", t.table, "err", err)
		return fmt.Errorf("sqlhost: commit: %w", err)
	}
	return nil
}

func (t *tx) Abort() error {
	if t.done {
		return hoststore.ErrTxDone
	}
	t.done = true
	return t.tx.Rollback()
}

type cursor struct {
	rows  *sql.Rows
	entry hoststore.Entry
	err   error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}
	var rawKey any
	var rawValue string
	if err := c.rows.Scan(&rawKey, &rawValue); err != nil {
		c.err = err
		return false
	}
	if b, ok := rawKey.([]byte); ok {
		rawKey = string(b)
	}
	k, err := hoststore.NormalizeKey(rawKey)
	if err != nil {
		c.err = err
		return false
	}
	var v any
	if err := json.Unmarshal([]byte(rawValue), &v); err != nil {
		c.err = fmt.Errorf("sqlhost: decode value of %s: %w", hoststore.KeyString(k), err)
		return false
	}
	c.entry = hoststore.Entry{PrimaryKey: k, Key: k, Value: v}
	return true
}

func (c *cursor) Entry() hoststore.Entry { return c.entry }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error { return c.rows.Close() }
