package memhost

import (
	"context"
	"testing"

	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHost(t *testing.T) *Host {
	t.Helper()
	ctx := t.Context()
	h := New()
	require.NoError(t, h.CreateDatabase(ctx, "app-db", 1))
	require.NoError(t, h.CreateStore(ctx, "app-db", "items", ""))
	require.NoError(t, h.CreateStore(ctx, "app-db", "users", "id"))
	return h
}

func put(t *testing.T, c hoststore.Conn, store string, value any, key hoststore.Key) {
	t.Helper()
	tx, err := c.Begin(t.Context(), store, hoststore.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Put(t.Context(), value, key))
	require.NoError(t, tx.Commit())
}

func scan(t *testing.T, c hoststore.Conn, store string) []hoststore.Entry {
	t.Helper()
	tx, err := c.Begin(t.Context(), store, hoststore.ReadOnly)
	require.NoError(t, err)
	defer func() { _ = tx.Abort() }()
	cur, err := tx.OpenCursor(t.Context())
	require.NoError(t, err)
	defer func() { _ = cur.Close() }()
	var out []hoststore.Entry
	for cur.Next(t.Context()) {
		out = append(out, cur.Entry())
	}
	require.NoError(t, cur.Err())
	return out
}

func TestHost_Databases(t *testing.T) {
	h := newHost(t)
	require.NoError(t, h.CreateDatabase(t.Context(), "aaa", 0))

	dbs, err := h.Databases(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []hoststore.DatabaseInfo{{Name: "aaa", Version: 1}, {Name: "app-db", Version: 1}}, dbs)

	err = h.CreateDatabase(t.Context(), "aaa", 1)
	assert.ErrorIs(t, err, hoststore.ErrExists)
}

func TestHost_OpenMissing(t *testing.T) {
	_, err := New().Open(t.Context(), "nope")
	assert.ErrorIs(t, err, hoststore.ErrNotFound)
}

func TestConn_Metadata(t *testing.T) {
	c, err := newHost(t).Open(t.Context(), "app-db")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.Equal(t, []string{"items", "users"}, c.StoreNames())
	kp, err := c.KeyPath("users")
	require.NoError(t, err)
	assert.Equal(t, "id", kp)
	_, err = c.KeyPath("other")
	assert.ErrorIs(t, err, hoststore.ErrNoSuchStore)
}

func TestTx_PutOrdersByKey(t *testing.T) {
	c, err := newHost(t).Open(t.Context(), "app-db")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	put(t, c, "items", map[string]any{"x": 2.0}, "b")
	put(t, c, "items", map[string]any{"x": 1.0}, "a")
	put(t, c, "items", "num", 3)
	put(t, c, "items", map[string]any{"x": 3.0}, "b")

	got := scan(t, c, "items")
	require.Len(t, got, 3)
	assert.Equal(t, 3.0, got[0].Key)
	assert.Equal(t, "a", got[1].Key)
	assert.Equal(t, "b", got[2].Key)
	assert.Equal(t, map[string]any{"x": 3.0}, got[2].Value)
	assert.Equal(t, got[2].Key, got[2].PrimaryKey)
}

func TestTx_KeyRules(t *testing.T) {
	c, err := newHost(t).Open(t.Context(), "app-db")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	tx, err := c.Begin(t.Context(), "users", hoststore.ReadWrite)
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Put(t.Context(), map[string]any{"id": "u1"}, "u1"), hoststore.ErrKeyProvided)
	assert.ErrorIs(t, tx.Put(t.Context(), map[string]any{"name": "x"}, nil), hoststore.ErrKeyPathMissing)
	require.NoError(t, tx.Put(t.Context(), map[string]any{"id": "u1"}, nil))
	require.NoError(t, tx.Commit())

	tx, err = c.Begin(t.Context(), "items", hoststore.ReadWrite)
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Put(t.Context(), map[string]any{}, nil), hoststore.ErrMissingKey)
	require.NoError(t, tx.Abort())

	assert.Len(t, scan(t, c, "users"), 1)
	assert.Empty(t, scan(t, c, "items"))
}

func TestTx_ReadOnlyAndAbort(t *testing.T) {
	c, err := newHost(t).Open(t.Context(), "app-db")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	tx, err := c.Begin(t.Context(), "items", hoststore.ReadOnly)
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Put(t.Context(), 1.0, "a"), hoststore.ErrReadOnly)
	require.NoError(t, tx.Abort())
	assert.ErrorIs(t, tx.Commit(), hoststore.ErrTxDone)

	tx, err = c.Begin(t.Context(), "items", hoststore.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Put(t.Context(), 1.0, "a"))
	require.NoError(t, tx.Abort())
	assert.Empty(t, scan(t, c, "items"))
}

func TestTx_Delete(t *testing.T) {
	c, err := newHost(t).Open(t.Context(), "app-db")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	put(t, c, "items", 1.0, "a")
	put(t, c, "items", 2.0, "b")

	tx, err := c.Begin(t.Context(), "items", hoststore.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Delete(t.Context(), "a"))
	require.NoError(t, tx.Delete(t.Context(), "missing"))
	require.NoError(t, tx.Commit())

	got := scan(t, c, "items")
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Key)
}

func TestCursor_HonorsContext(t *testing.T) {
	c, err := newHost(t).Open(t.Context(), "app-db")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	put(t, c, "items", 1.0, "a")

	tx, err := c.Begin(t.Context(), "items", hoststore.ReadOnly)
	require.NoError(t, err)
	cur, err := tx.OpenCursor(t.Context())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.False(t, cur.Next(ctx))
	assert.ErrorIs(t, cur.Err(), context.Canceled)
}

func TestCursor_ValuesAreCopies(t *testing.T) {
	c, err := newHost(t).Open(t.Context(), "app-db")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	put(t, c, "items", map[string]any{"x": 1.0}, "a")

	got := scan(t, c, "items")
	got[0].Value.(map[string]any)["x"] = 99.0
	assert.Equal(t, map[string]any{"x": 1.0}, scan(t, c, "items")[0].Value)
}

func TestOpenOnly(t *testing.T) {
	var h hoststore.Host = hoststore.OpenOnly(newHost(t))
	_, ok := h.(hoststore.Enumerator)
	assert.False(t, ok)
	c, err := h.Open(t.Context(), "app-db")
	require.NoError(t, err)
	require.NoError(t, c.Close())
}
