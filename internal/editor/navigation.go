package editor

import (
	"context"
	"fmt"
	"slices"

	"github.com/maruel/kvedit/internal/catalog"
	apierrors "github.com/maruel/kvedit/internal/errors"
	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/models"
	"github.com/maruel/kvedit/internal/navstate"
)

// LoadDatabases enumerates the databases of the host.
func (e *Editor) LoadDatabases(ctx context.Context) ([]models.DatabaseDescriptor, error) {
	e.info("Loading databases...")
	dbs, err := e.client.ListDatabases(ctx)
	if err != nil {
		return nil, e.fail(err)
	}
	e.mu.Lock()
	e.state.SetDatabases(dbs)
	e.mu.Unlock()
	if len(dbs) == 0 {
		e.info("No databases found")
	} else {
		e.info(fmt.Sprintf("Found %d database(s)", len(dbs)))
	}
	return slices.Clone(dbs), nil
}

// SelectDatabase selects name and loads its store list in the background.
func (e *Editor) SelectDatabase(name string) *Op {
	e.mu.Lock()
	tok := e.state.SelectDatabase(name)
	ctx := e.ctx
	e.mu.Unlock()
	return e.spawn(ctx, newOp(), func(ctx context.Context) error {
		return e.fail(e.loadStores(ctx, tok, name))
	})
}

func (e *Editor) loadStores(ctx context.Context, tok navstate.Token, name string) error {
	h, err := e.client.OpenDatabase(ctx, name)
	if err != nil {
		if !e.current(tok) {
			return ErrSuperseded
		}
		return err
	}
	defer func() { _ = h.Close() }()
	stores, err := e.client.ListStores(ctx, h)
	if err != nil {
		if !e.current(tok) {
			return ErrSuperseded
		}
		return err
	}
	e.mu.Lock()
	applied := e.state.ApplyStores(tok, stores)
	e.mu.Unlock()
	if !applied {
		return ErrSuperseded
	}
	e.info("Selected database: " + name)
	return nil
}

func (e *Editor) current(tok navstate.Token) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Current(tok)
}

// SelectStore selects a store of the current database and scans it in the
// background. The filter is reset.
func (e *Editor) SelectStore(name string) *Op {
	e.mu.Lock()
	if e.state.Database == "" {
		e.mu.Unlock()
		return completed(e.fail(apierrors.Conflict("No database selected")))
	}
	i := slices.IndexFunc(e.state.Stores, func(s models.StoreDescriptor) bool { return s.Name == name })
	if i < 0 {
		e.mu.Unlock()
		return completed(e.fail(apierrors.NotFound("Store " + name)))
	}
	tok := e.state.SelectStore(name, e.state.Stores[i].KeyPath)
	db := e.state.Database
	ctx := e.ctx
	e.mu.Unlock()
	return e.spawn(ctx, newOp(), func(ctx context.Context) error {
		return e.fail(e.scan(ctx, tok, db, name))
	})
}

func (e *Editor) scan(ctx context.Context, tok navstate.Token, db, store string) error {
	h, err := e.client.OpenDatabase(ctx, db)
	if err != nil {
		if !e.current(tok) {
			return ErrSuperseded
		}
		return err
	}
	defer func() { _ = h.Close() }()
	seq := e.client.ScanAll(ctx, h, store)
	records, err := catalog.Load(func(yield func(hoststore.Entry, error) bool) {
		for ent, err := range seq {
			if !e.current(tok) {
				yield(hoststore.Entry{}, ErrSuperseded)
				return
			}
			if !yield(ent, err) {
				return
			}
		}
	})
	if err != nil {
		if !e.current(tok) {
			return ErrSuperseded
		}
		return err
	}
	e.mu.Lock()
	applied := e.state.ApplyRecords(tok, records)
	e.mu.Unlock()
	if !applied {
		return ErrSuperseded
	}
	e.info(fmt.Sprintf("Loaded %d records from %s", len(records), store))
	return nil
}

// Refresh scans the current store again.
func (e *Editor) Refresh() *Op {
	e.mu.Lock()
	store := e.state.Store
	e.mu.Unlock()
	if store == "" {
		return completed(e.fail(apierrors.Conflict("No store selected")))
	}
	return e.SelectStore(store)
}

// Filter narrows the record list to keys containing query and returns the
// result.
func (e *Editor) Filter(query string) []models.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.SetQuery(query)
	return slices.Clone(e.state.Filtered)
}

// ViewRecord opens the detail view of a loaded record.
func (e *Editor) ViewRecord(key hoststore.Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.View == navstate.ViewEdit {
		return apierrors.Conflict("Close the editor first")
	}
	return e.state.ShowDetail(key)
}

// ShowList goes back from the detail view to the list.
func (e *Editor) ShowList() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.View == navstate.ViewEdit {
		return apierrors.Conflict("Close the editor first")
	}
	e.state.ShowList()
	return nil
}
