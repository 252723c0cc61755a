// Package seed populates a host store from a YAML fixture.
//
// Example:
//
//	databases:
//	  - name: app-db
//	    version: 1
//	    stores:
//	      - name: items
//	        records:
//	          - key: a
//	            value: {title: Apple}
//	      - name: users
//	        key_path: id
//	        records:
//	          - value: {id: u1, name: Ann}
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/maruel/kvedit/internal/hoststore"
	"gopkg.in/yaml.v3"
)

// Fixture is the content of a seed file.
type Fixture struct {
	Databases []Database `yaml:"databases"`
}

// Database is a database to create.
type Database struct {
	Name    string  `yaml:"name"`
	Version int     `yaml:"version"`
	Stores  []Store `yaml:"stores"`
}

// Store is an object store to create and fill.
type Store struct {
	Name    string   `yaml:"name"`
	KeyPath string   `yaml:"key_path"`
	Records []Record `yaml:"records"`
}

// Record is one record. Key is omitted for stores with a key path.
type Record struct {
	Key   any `yaml:"key"`
	Value any `yaml:"value"`
}

// Parse decodes a fixture and normalizes its values to the JSON data model.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	for i := range f.Databases {
		db := &f.Databases[i]
		if db.Name == "" {
			return nil, fmt.Errorf("seed: database #%d has no name", i+1)
		}
		for j := range db.Stores {
			st := &db.Stores[j]
			if st.Name == "" {
				return nil, fmt.Errorf("seed: %s: store #%d has no name", db.Name, j+1)
			}
			for k := range st.Records {
				r := &st.Records[k]
				v, err := jsonValue(r.Value)
				if err != nil {
					return nil, fmt.Errorf("seed: %s/%s record #%d: %w", db.Name, st.Name, k+1, err)
				}
				r.Value = v
			}
		}
	}
	return &f, nil
}

// Load reads and parses a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return Parse(data)
}

// jsonValue converts a YAML decoded value to what encoding/json would have
// produced: float64 numbers and map[string]any objects.
func jsonValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply creates the fixture databases and stores on h and writes the records,
// one read-write transaction per store. Databases and stores that already
// exist are reused.
func Apply(ctx context.Context, h hoststore.Host, f *Fixture) error {
	b, ok := h.(hoststore.Builder)
	if !ok {
		return errors.New("seed: host cannot create databases")
	}
	for _, db := range f.Databases {
		if err := b.CreateDatabase(ctx, db.Name, db.Version); err != nil && !errors.Is(err, hoststore.ErrExists) {
			return err
		}
		for _, st := range db.Stores {
			if err := b.CreateStore(ctx, db.Name, st.Name, st.KeyPath); err != nil && !errors.Is(err, hoststore.ErrExists) {
				return err
			}
		}
		if err := fill(ctx, h, db); err != nil {
			return err
		}
		slog.DebugContext(ctx, "seed", "database", db.Name, "stores", len(db.Stores))
	}
	return nil
}

func fill(ctx context.Context, h hoststore.Host, db Database) error {
	conn, err := h.Open(ctx, db.Name)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	for _, st := range db.Stores {
		tx, err := conn.Begin(ctx, st.Name, hoststore.ReadWrite)
		if err != nil {
			return err
		}
		for i, r := range st.Records {
			if err := tx.Put(ctx, r.Value, r.Key); err != nil {
				_ = tx.Abort()
				return fmt.Errorf("seed: %s/%s record #%d: %w", db.Name, st.Name, i+1, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
