// Package hoststore defines the protocol of the per-origin transactional
// key-value store that the editor browses.
//
// A Host holds named, versioned databases. A database holds named object
// stores. An object store holds records ordered by key and may declare a key
// path, in which case the key of each record is read from its value (inline
// keys); otherwise the key is supplied separately on every write (out-of-line
// keys).
//
// Implementations live in the memhost, filehost and sqlhost subpackages.
package hoststore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a database does not exist.
	ErrNotFound = errors.New("database not found")
	// ErrNoSuchStore is returned when an object store does not exist.
	ErrNoSuchStore = errors.New("object store not found")
	// ErrReadOnly is returned when writing through a read-only transaction.
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrTxDone is returned when using a committed or aborted transaction.
	ErrTxDone = errors.New("transaction has already finished")
	// ErrMissingKey is returned when writing to an out-of-line store without a key.
	ErrMissingKey = errors.New("store uses out-of-line keys and no key was provided")
	// ErrKeyProvided is returned when a key is passed to a store with a key path.
	ErrKeyProvided = errors.New("store uses in-line keys and a key was provided")
	// ErrInvalidKey is returned for values that are not valid keys.
	ErrInvalidKey = errors.New("invalid key")
	// ErrKeyPathMissing is returned when the value has nothing at the key path.
	ErrKeyPathMissing = errors.New("value has no property at the key path")
	// ErrExists is returned when creating a database or store that exists.
	ErrExists = errors.New("already exists")
)

// Mode is the access mode of a transaction.
type Mode int

const (
	// ReadOnly transactions only open cursors.
	ReadOnly Mode = iota
	// ReadWrite transactions may put and delete.
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// DatabaseInfo describes a database as returned by enumeration.
type DatabaseInfo struct {
	Name    string
	Version int
}

// Entry is one cursor position.
type Entry struct {
	PrimaryKey Key
	Key        Key
	Value      any
}

// Host opens databases by name.
type Host interface {
	Open(ctx context.Context, name string) (Conn, error)
}

// Enumerator is implemented by hosts that can list their databases.
type Enumerator interface {
	Databases(ctx context.Context) ([]DatabaseInfo, error)
}

// Builder is implemented by hosts that can create databases and stores.
type Builder interface {
	CreateDatabase(ctx context.Context, name string, version int) error
	CreateStore(ctx context.Context, database, store, keyPath string) error
}

// Conn is an open database. It must be closed by the caller.
type Conn interface {
	Name() string
	Version() int
	// StoreNames returns the object store names in ascending order.
	StoreNames() []string
	// KeyPath returns the key path declared by store, "" for out-of-line keys.
	KeyPath(store string) (string, error)
	// Begin opens a transaction scoped to one store.
	Begin(ctx context.Context, store string, mode Mode) (Tx, error)
	Close() error
}

// Tx is a transaction on a single object store.
//
// Writes become visible to other transactions on Commit. Abort discards them.
type Tx interface {
	// OpenCursor positions a cursor before the first record in ascending key
	// order.
	OpenCursor(ctx context.Context) (Cursor, error)
	// Put inserts or replaces a record. key must be nil for stores with a key
	// path and non-nil otherwise.
	Put(ctx context.Context, value any, key Key) error
	Delete(ctx context.Context, key Key) error
	Commit() error
	Abort() error
}

// Cursor iterates over the records of a store.
type Cursor interface {
	// Next advances to the next record. It returns false at the end or on
	// error; check Err afterwards.
	Next(ctx context.Context) bool
	Entry() Entry
	Err() error
	Close() error
}
