// Package storeclient is a thin, stateless wrapper over the host store.
//
// Every operation runs in its own transaction. Handles are not pooled: the
// caller opens one per operation and closes it right after.
package storeclient

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync/atomic"

	apierrors "github.com/maruel/kvedit/internal/errors"
	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/models"
)

// errConsumed is yielded when a scan sequence is ranged over twice.
var errConsumed = errors.New("scan already consumed")

// Client issues operations against a host store.
type Client struct {
	host hoststore.Host
}

// New returns a client for h.
func New(h hoststore.Host) *Client {
	return &Client{host: h}
}

// Handle is an open database.
type Handle struct {
	conn hoststore.Conn
}

// Name returns the database name.
func (h *Handle) Name() string {
	return h.conn.Name()
}

// Version returns the database version.
func (h *Handle) Version() int {
	return h.conn.Version()
}

// Close releases the connection.
func (h *Handle) Close() error {
	return h.conn.Close()
}

// ListDatabases enumerates the databases of the host.
func (c *Client) ListDatabases(ctx context.Context) ([]models.DatabaseDescriptor, error) {
	e, ok := c.host.(hoststore.Enumerator)
	if !ok {
		return nil, apierrors.Unsupported("list databases")
	}
	infos, err := e.Databases(ctx)
	if err != nil {
		return nil, apierrors.InternalWithError("Error listing databases", err)
	}
	out := make([]models.DatabaseDescriptor, len(infos))
	for i, info := range infos {
		out[i] = models.DatabaseDescriptor{Name: info.Name, Version: info.Version}
	}
	slog.DebugContext(ctx, "storeclient", "msg", "listed databases", "count", len(out))
	return out, nil
}

// OpenDatabase opens the named database.
func (c *Client) OpenDatabase(ctx context.Context, name string) (*Handle, error) {
	conn, err := c.host.Open(ctx, name)
	if err != nil {
		return nil, apierrors.Open(name, err)
	}
	return &Handle{conn: conn}, nil
}

// ListStores returns the object stores of an open database in name order.
func (c *Client) ListStores(ctx context.Context, h *Handle) ([]models.StoreDescriptor, error) {
	names := h.conn.StoreNames()
	out := make([]models.StoreDescriptor, 0, len(names))
	for _, n := range names {
		kp, err := h.conn.KeyPath(n)
		if err != nil {
			return nil, apierrors.Open(h.Name(), err)
		}
		out = append(out, models.StoreDescriptor{Name: n, KeyPath: kp})
	}
	slog.DebugContext(ctx, "storeclient", "msg", "listed stores", "database", h.Name(), "count", len(out))
	return out, nil
}

// ScanAll returns the entries of store in key order, one per step, inside a
// read-only transaction.
//
// The sequence can only be ranged over once. A cursor failure is yielded as a
// scan error after the entries already produced; nothing follows it.
func (c *Client) ScanAll(ctx context.Context, h *Handle, store string) iter.Seq2[hoststore.Entry, error] {
	var used atomic.Bool
	return func(yield func(hoststore.Entry, error) bool) {
		if used.Swap(true) {
			yield(hoststore.Entry{}, apierrors.Scan(store, errConsumed))
			return
		}
		tx, err := h.conn.Begin(ctx, store, hoststore.ReadOnly)
		if err != nil {
			yield(hoststore.Entry{}, apierrors.Scan(store, err))
			return
		}
		defer func() { _ = tx.Commit() }()
		cur, err := tx.OpenCursor(ctx)
		if err != nil {
			yield(hoststore.Entry{}, apierrors.Scan(store, err))
			return
		}
		defer func() { _ = cur.Close() }()
		n := 0
		for cur.Next(ctx) {
			n++
			if !yield(cur.Entry(), nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			slog.DebugContext(ctx, "storeclient", "msg", "cursor failed", "store", store, "after", n, "err", err)
			yield(hoststore.Entry{}, apierrors.Scan(store, err))
		}
	}
}

// Put writes value to store. key must be nil for stores with a key path and
// is mandatory otherwise.
func (c *Client) Put(ctx context.Context, h *Handle, store string, value any, key hoststore.Key) error {
	tx, err := h.conn.Begin(ctx, store, hoststore.ReadWrite)
	if err != nil {
		return apierrors.Put(store, err)
	}
	if err := tx.Put(ctx, value, key); err != nil {
		_ = tx.Abort()
		return apierrors.Put(store, err)
	}
	if err := tx.Commit(); err != nil {
		return apierrors.Put(store, err)
	}
	slog.DebugContext(ctx, "storeclient", "msg", "put", "store", store, "key", key)
	return nil
}

// Remove deletes the record with key from store.
func (c *Client) Remove(ctx context.Context, h *Handle, store string, key hoststore.Key) error {
	tx, err := h.conn.Begin(ctx, store, hoststore.ReadWrite)
	if err != nil {
		return apierrors.Delete(store, err)
	}
	if err := tx.Delete(ctx, key); err != nil {
		_ = tx.Abort()
		return apierrors.Delete(store, err)
	}
	if err := tx.Commit(); err != nil {
		return apierrors.Delete(store, err)
	}
	slog.DebugContext(ctx, "storeclient", "msg", "removed", "store", store, "key", key)
	return nil
}
