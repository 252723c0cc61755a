// Package memhost implements an in-memory host store.
//
// It is the default backend of the CLI when no data directory is configured
// and the fixture backend of most tests.
package memhost

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/maruel/kvedit/internal/hoststore"
)

// Host is an in-memory hoststore.Host. It is safe for concurrent use.
type Host struct {
	mu        sync.RWMutex
	databases map[string]*database
}

type database struct {
	version int
	stores  map[string]*store
}

type store struct {
	keyPath string
	// writer serializes read-write transactions.
	writer  sync.Mutex
	entries []entry
}

type entry struct {
	key   hoststore.Key
	value any
}

// New creates an empty host.
func New() *Host {
	return &Host{databases: make(map[string]*database)}
}

// Databases implements hoststore.Enumerator.
func (h *Host) Databases(ctx context.Context) ([]hoststore.DatabaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]hoststore.DatabaseInfo, 0, len(h.databases))
	for name, db := range h.databases {
		out = append(out, hoststore.DatabaseInfo{Name: name, Version: db.version})
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
		return fmt.Errorf("memhost: database name is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.databases[name]; ok {
		return fmt.Errorf("memhost: database %q: %w", name, hoststore.ErrExists)
	}
	h.databases[name] = &database{version: max(version, 1), stores: make(map[string]*store)}
	return nil
}

// CreateStore implements hoststore.Builder.
func (h *Host) CreateStore(ctx context.Context, dbName, storeName, keyPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if storeName == "" {
		return fmt.Errorf("memhost: store name is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	db, ok := h.databases[dbName]
	if !ok {
		return fmt.Errorf("memhost: %q: %w", dbName, hoststore.ErrNotFound)
	}
	if _, ok := db.stores[storeName]; ok {
		return fmt.Errorf("memhost: store %q: %w", storeName, hoststore.ErrExists)
	}
	db.stores[storeName] = &store{keyPath: keyPath}
	return nil
}

// Open implements hoststore.Host.
func (h *Host) Open(ctx context.Context, name string) (hoststore.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	db, ok := h.databases[name]
	if !ok {
		return nil, fmt.Errorf("memhost: %q: %w", name, hoststore.ErrNotFound)
	}
	c := &conn{host: h, name: name, version: db.version, stores: make(map[string]*store, len(db.stores))}
	for n, s := range db.stores {
		c.stores[n] = s
	}
	return c, nil
}

type conn struct {
	host    *Host
	name    string
	version int
	stores  map[string]*store

	mu     sync.Mutex
	closed bool
}

func (c *conn) Name() string { return c.name }

func (c *conn) Version() int { return c.version }

func (c *conn) StoreNames() []string {
	names := make([]string, 0, len(c.stores))
	for n := range c.stores {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (c *conn) KeyPath(name string) (string, error) {
	s, ok := c.stores[name]
	if !ok {
		return "", fmt.Errorf("memhost: %q: %w", name, hoststore.ErrNoSuchStore)
	}
	return s.keyPath, nil
}

func (c *conn) Begin(ctx context.Context, name string, mode hoststore.Mode) (hoststore.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("memhost: connection to %q is closed", c.name)
	}
	s, ok := c.stores[name]
	if !ok {
		return nil, fmt.Errorf("memhost: %q: %w", name, hoststore.ErrNoSuchStore)
	}
	t := &tx{host: c.host, store: s, name: name, mode: mode}
	if mode == hoststore.ReadWrite {
		s.writer.Lock()
	}
	return t, nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type tx struct {
	host  *Host
	store *store
	name  string
	mode  hoststore.Mode

	// staged holds the store content as seen by this transaction once it has
	// written; nil until the first write.
	staged []entry
	done   bool
}

func (t *tx) snapshot() []entry {
	if t.staged != nil {
		return slices.Clone(t.staged)
	}
	t.host.mu.RLock()
	defer t.host.mu.RUnlock()
	return slices.Clone(t.store.entries)
}

func (t *tx) OpenCursor(ctx context.Context) (hoststore.Cursor, error) {
	if t.done {
		return nil, hoststore.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &cursor{entries: t.snapshot(), pos: -1}, nil
}

func (t *tx) writable() error {
	if t.done {
		return hoststore.ErrTxDone
	}
	if t.mode != hoststore.ReadWrite {
		return hoststore.ErrReadOnly
	}
	if t.staged == nil {
		t.staged = t.snapshot()
	}
	return nil
}

func (t *tx) Put(ctx context.Context, value any, key hoststore.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := hoststore.ResolvePutKey(t.store.keyPath, value, key)
	if err != nil {
		return err
	}
	if err := t.writable(); err != nil {
		return err
	}
	e := entry{key: k, value: hoststore.CloneValue(value)}
	i, found := slices.BinarySearchFunc(t.staged, k, func(e entry, k hoststore.Key) int {
		return hoststore.CompareKeys(e.key, k)
	})
	if found {
		t.staged[i] = e
	} else {
		t.staged = slices.Insert(t.staged, i, e)
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
	if err := t.writable(); err != nil {
		return err
	}
	i, found := slices.BinarySearchFunc(t.staged, k, func(e entry, k hoststore.Key) int {
		return hoststore.CompareKeys(e.key, k)
	})
	if found {
		t.staged = slices.Delete(t.staged, i, i+1)
	}
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return hoststore.ErrTxDone
	}
	t.done = true
	if t.mode == hoststore.ReadWrite {
		defer t.store.writer.Unlock()
	}
	if t.staged != nil {
		t.host.mu.Lock()
		t.store.entries = t.staged
		t.host.mu.Unlock()
	}
	return nil
}

func (t *tx) Abort() error {
	if t.done {
		return hoststore.ErrTxDone
	}
	t.done = true
	if t.mode == hoststore.ReadWrite {
		t.store.writer.Unlock()
	}
	return nil
}

type cursor struct {
	entries []entry
	pos     int
	err     error
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
	return c.pos < len(c.entries)
}

func (c *cursor) Entry() hoststore.Entry {
	e := c.entries[c.pos]
	return hoststore.Entry{PrimaryKey: e.key, Key: e.key, Value: hoststore.CloneValue(e.value)}
}

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error {
	c.entries = nil
	return nil
}
