package filehost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHost(t *testing.T) *Host {
	t.Helper()
	h, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := t.Context()
	require.NoError(t, h.CreateDatabase(ctx, "app-db", 2))
	require.NoError(t, h.CreateStore(ctx, "app-db", "items", ""))
	require.NoError(t, h.CreateStore(ctx, "app-db", "users", "id"))
	return h
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
	require.NoError(t, os.Mkdir(filepath.Join(h.Root(), "stray"), 0o755))

	dbs, err := h.Databases(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []hoststore.DatabaseInfo{{Name: "app-db", Version: 2}}, dbs)

	assert.ErrorIs(t, h.CreateDatabase(t.Context(), "app-db", 1), hoststore.ErrExists)
	assert.ErrorIs(t, h.CreateStore(t.Context(), "app-db", "items", ""), hoststore.ErrExists)
	assert.ErrorIs(t, h.CreateStore(t.Context(), "missing", "items", ""), hoststore.ErrNotFound)
}

func TestHost_Open(t *testing.T) {
	h := newHost(t)
	_, err := h.Open(t.Context(), "nope")
	assert.ErrorIs(t, err, hoststore.ErrNotFound)

	c, err := h.Open(t.Context(), "app-db")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	assert.Equal(t, "app-db", c.Name())
	assert.Equal(t, 2, c.Version())
	assert.Equal(t, []string{"items", "users"}, c.StoreNames())
	kp, err := c.KeyPath("users")
	require.NoError(t, err)
	assert.Equal(t, "id", kp)
	_, err = c.Begin(t.Context(), "other", hoststore.ReadOnly)
	assert.ErrorIs(t, err, hoststore.ErrNoSuchStore)
}

func TestTx_Persists(t *testing.T) {
	h := newHost(t)
	c, err := h.Open(t.Context(), "app-db")
	require.NoError(t, err)

	tx, err := c.Begin(t.Context(), "items", hoststore.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Put(t.Context(), map[string]any{"n": "b"}, "b"))
	require.NoError(t, tx.Put(t.Context(), map[string]any{"n": "a"}, "a"))
	require.NoError(t, tx.Put(t.Context(), "seven", 7))
	// Uncommitted writes are invisible to other transactions.
	assert.Empty(t, scan(t, c, "items"))
	require.NoError(t, tx.Commit())
	require.NoError(t, c.Close())

	// A fresh host reads the same directory back.
	h2, err := New(h.Root())
	require.NoError(t, err)
	c2, err := h2.Open(t.Context(), "app-db")
	require.NoError(t, err)
	got := scan(t, c2, "items")
	require.Len(t, got, 3)
	assert.Equal(t, 7.0, got[0].Key)
	assert.Equal(t, "seven", got[0].Value)
	assert.Equal(t, "a", got[1].Key)
	assert.Equal(t, map[string]any{"n": "b"}, got[2].Value)
}

func TestTx_InlineKeysAndDelete(t *testing.T) {
	c, err := newHost(t).Open(t.Context(), "app-db")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	tx, err := c.Begin(t.Context(), "users", hoststore.ReadWrite)
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Put(t.Context(), map[string]any{"id": "u1"}, "u1"), hoststore.ErrKeyProvided)
	require.NoError(t, tx.Put(t.Context(), map[string]any{"id": "u1"}, nil))
	require.NoError(t, tx.Put(t.Context(), map[string]any{"id": "u2"}, nil))
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), hoststore.ErrTxDone)

	tx, err = c.Begin(t.Context(), "users", hoststore.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, tx.Delete(t.Context(), "u1"))
	require.NoError(t, tx.Commit())

	got := scan(t, c, "users")
	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].PrimaryKey)
}

func TestTx_ReadOnly(t *testing.T) {
	c, err := newHost(t).Open(t.Context(), "app-db")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	tx, err := c.Begin(t.Context(), "items", hoststore.ReadOnly)
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Put(t.Context(), 1.0, "a"), hoststore.ErrReadOnly)
	assert.ErrorIs(t, tx.Delete(t.Context(), "a"), hoststore.ErrReadOnly)
	require.NoError(t, tx.Commit())
}
