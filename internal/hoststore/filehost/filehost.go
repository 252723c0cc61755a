// Package filehost implements a host store persisted as JSONL files.
//
// Layout under the root directory:
//
//	<database>/db.json       version and object store declarations
//	<database>/<store>.jsonl one {"k":key,"v":value} row per record, sorted by key
package filehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/jsonldb"
)

const metaFile = "db.json"

type storeMeta struct {
	Name    string `json:"name"`
	KeyPath string `json:"key_path,omitempty"`
}

type dbMeta struct {
	Version int         `json:"version"`
	Stores  []storeMeta `json:"stores"`
}

// row is the on-disk form of a record.
type row struct {
	K any `json:"k"`
	V any `json:"v"`
}

func (r *row) Clone() *row {
	return &row{K: r.K, V: hoststore.CloneValue(r.V)}
}

// Host is a directory-backed hoststore.Host. It is safe for concurrent use
// within one process.
type Host struct {
	root string

	mu      sync.Mutex
	tables  map[string]*jsonldb.Table[*row]
	writers map[string]*sync.Mutex
}

// New returns a host rooted at dir, creating it if needed.
func New(dir string) (*Host, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filehost: failed to create %s: %w", dir, err)
	}
	return &Host{
		root:    dir,
		tables:  make(map[string]*jsonldb.Table[*row]),
		writers: make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the data directory.
func (h *Host) Root() string {
	return h.root
}

func (h *Host) dbDir(name string) string {
	return filepath.Join(h.root, url.PathEscape(name))
}

func (h *Host) readMeta(name string) (*dbMeta, error) {
	data, err := os.ReadFile(filepath.Join(h.dbDir(name), metaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("filehost: %q: %w", name, hoststore.ErrNotFound)
		}
		return nil, fmt.Errorf("filehost: failed to read %q metadata: %w", name, err)
	}
	var m dbMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("filehost: corrupt %q metadata: %w", name, err)
	}
	return &m, nil
}

func (h *Host) writeMeta(name string, m *dbMeta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	dir := h.dbDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filehost: failed to create %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, metaFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("filehost: failed to write metadata: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, metaFile))
}

// Databases implements hoststore.Enumerator. Directories without metadata
// are ignored.
func (h *Host) Databases(ctx context.Context) ([]hoststore.DatabaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(h.root)
	if err != nil {
		return nil, fmt.Errorf("filehost: failed to list %s: %w", h.root, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []hoststore.DatabaseInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		m, err := h.readMeta(name)
		if errors.Is(err, hoststore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, hoststore.DatabaseInfo{Name: name, Version: m.Version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateDatabase implements hoststore.Builder.
func (h *Host) CreateDatabase(ctx context.Context, name string, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return errors.New("filehost: database name is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.readMeta(name); err == nil {
		return fmt.Errorf("filehost: database %q: %w", name, hoststore.ErrExists)
	} else if !errors.Is(err, hoststore.ErrNotFound) {
		return err
	}
	return h.writeMeta(name, &dbMeta{Version: max(version, 1), Stores: []storeMeta{}})
}

// CreateStore implements hoststore.Builder.
func (h *Host) CreateStore(ctx context.Context, dbName, storeName, keyPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if storeName == "" {
		return errors.New("filehost: store name is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m, err := h.readMeta(dbName)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(m.Stores, func(s storeMeta) bool { return s.Name == storeName }) {
		return fmt.Errorf("filehost: store %q: %w", storeName, hoststore.ErrExists)
	}
	m.Stores = append(m.Stores, storeMeta{Name: storeName, KeyPath: keyPath})
	return h.writeMeta(dbName, m)
}

// table returns the cached table for a store, loading it on first use.
func (h *Host) table(dbName, storeName string) (*jsonldb.Table[*row], *sync.Mutex, error) {
	path := filepath.Join(h.dbDir(dbName), url.PathEscape(storeName)+".jsonl")
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.tables[path]; ok {
		return t, h.writers[path], nil
	}
	t, err := jsonldb.NewTable[*row](path)
	if err != nil {
		return nil, nil, err
	}
	for r := range t.All() {
		if _, err := hoststore.NormalizeKey(r.K); err != nil {
			return nil, nil, fmt.Errorf("filehost: %s: %w", path, err)
		}
	}
	h.tables[path] = t
	h.writers[path] = &sync.Mutex{}
	return t, h.writers[path], nil
}

// Open implements hoststore.Host.
func (h *Host) Open(ctx context.Context, name string) (hoststore.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	m, err := h.readMeta(name)
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := &conn{host: h, name: name, version: m.Version, keyPaths: make(map[string]string, len(m.Stores))}
	for _, s := range m.Stores {
		c.keyPaths[s.Name] = s.KeyPath
	}
	return c, nil
}

type conn struct {
	host     *Host
	name     string
	version  int
	keyPaths map[string]string
	closed   bool
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
		return "", fmt.Errorf("filehost: %q: %w", store, hoststore.ErrNoSuchStore)
	}
	return kp, nil
}

func (c *conn) Begin(ctx context.Context, store string, mode hoststore.Mode) (hoststore.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.closed {
		return nil, fmt.Errorf("filehost: connection to %q is closed", c.name)
	}
	kp, ok := c.keyPaths[store]
	if !ok {
		return nil, fmt.Errorf("filehost: %q: %w", store, hoststore.ErrNoSuchStore)
	}
	t, w, err := c.host.table(c.name, store)
	if err != nil {
		return nil, err
	}
	if mode == hoststore.ReadWrite {
		w.Lock()
	}
	return &tx{table: t, writer: w, keyPath: kp, mode: mode}, nil
}

func (c *conn) Close() error {
	c.closed = true
	return nil
}

type tx struct {
	table   *jsonldb.Table[*row]
	writer  *sync.Mutex
	keyPath string
	mode    hoststore.Mode

	staged []*row
	done   bool
}

func (t *tx) rows() []*row {
	if t.staged != nil {
		return slices.Clone(t.staged)
	}
	return t.table.Rows()
}

func (t *tx) OpenCursor(ctx context.Context) (hoststore.Cursor, error) {
	if t.done {
		return nil, hoststore.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &cursor{rows: t.rows(), pos: -1}, nil
}

func (t *tx) stage() error {
	if t.done {
		return hoststore.ErrTxDone
	}
	if t.mode != hoststore.ReadWrite {
		return hoststore.ErrReadOnly
	}
	if t.staged == nil {
		t.staged = t.table.Rows()
	}
	return nil
}

func search(rows []*row, k hoststore.Key) (int, bool) {
	return slices.BinarySearchFunc(rows, k, func(r *row, k hoststore.Key) int {
		return hoststore.CompareKeys(r.K, k)
	})
}

func (t *tx) Put(ctx context.Context, value any, key hoststore.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := hoststore.ResolvePutKey(t.keyPath, value, key)
	if err != nil {
		return err
	}
	if err := t.stage(); err != nil {
		return err
	}
	r := &row{K: k, V: hoststore.CloneValue(value)}
	if i, found := search(t.staged, k); found {
		t.staged[i] = r
	} else {
		t.staged = slices.Insert(t.staged, i, r)
	}
	return nil
}

func (t *tx) Delete(ctx context.Context, key hoststore.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := hoststore.NormalizeKey(key)
	if err != nil {
		return err
	}
	if err := t.stage(); err != nil {
		return err
	}
	if i, found := search(t.staged, k); found {
		t.staged = slices.Delete(t.staged, i, i+1)
	}
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return hoststore.ErrTxDone
	}
	t.done = true
	if t.mode != hoststore.ReadWrite {
		return nil
	}
	defer t.writer.Unlock()
	if t.staged == nil {
		return nil
	}
	if err := t.table.Replace(t.staged); err != nil {
		return fmt.Errorf("filehost: commit: %w", err)
	}
	return nil
}

func (t *tx) Abort() error {
	if t.done {
		return hoststore.ErrTxDone
	}
	t.done = true
	if t.mode == hoststore.ReadWrite {
		t.writer.Unlock()
	}
	return nil
}

type cursor struct {
	rows []*row
	pos  int
	err  error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	c.pos++
	return c.pos < len(c.rows)
}

func (c *cursor) Entry() hoststore.Entry {
	r := c.rows[c.pos]
	return hoststore.Entry{PrimaryKey: r.K, Key: r.K, Value: hoststore.CloneValue(r.V)}
}

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error {
	c.rows = nil
	return nil
}
