package editor

import (
	"context"
	"errors"

	apierrors "github.com/maruel/kvedit/internal/errors"
	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/navstate"
	"github.com/maruel/kvedit/internal/notify"
	"github.com/maruel/kvedit/internal/transfer"
)

// ConfirmFunc asks the operator to confirm a destructive action.
type ConfirmFunc func(prompt string) bool

// Confirmed is a ConfirmFunc that always agrees.
func Confirmed(string) bool { return true }

var errNoKey = errors.New("record has no key")

// BeginCreate opens the editor on a new, empty record.
func (e *Editor) BeginCreate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.View == navstate.ViewEdit {
		return apierrors.Conflict("Already editing a record")
	}
	return e.state.BeginCreate()
}

// BeginEdit opens the editor on a loaded record.
func (e *Editor) BeginEdit(key hoststore.Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.View == navstate.ViewEdit {
		return apierrors.Conflict("Already editing a record")
	}
	return e.state.BeginEdit(key)
}

// EditSelected opens the editor on the record of the detail view.
func (e *Editor) EditSelected() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.View != navstate.ViewDetail || e.state.Selected == nil {
		return apierrors.Conflict("No record selected")
	}
	return e.state.BeginEdit(e.state.Selected.Key)
}

// SetBuffer replaces the edit buffer text. The text is only validated on save.
func (e *Editor) SetBuffer(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.SetBuffer(text)
}

// CancelEdit closes the editor without saving.
func (e *Editor) CancelEdit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.View != navstate.ViewEdit {
		return apierrors.Conflict("Not editing a record")
	}
	e.state.CloseEdit()
	return nil
}

// target is what a mutation applies to, captured under the lock.
type target struct {
	database string
	store    string
	keyPath  string
	key      hoststore.Key
	buffer   string
}

// Save parses the edit buffer and writes it to the current store.
//
// Stores with a key path get the value alone. Other stores get the value and
// the key of the record being edited; a new record has none, and the host
// rejects the write. On success the editor closes and the returned Op tracks
// the rescan. On failure the editor stays open with its buffer untouched.
func (e *Editor) Save(ctx context.Context) (*Op, error) {
	t, err := e.editTarget()
	if err != nil {
		return nil, err
	}
	value, err := transfer.Parse(t.buffer)
	if err != nil {
		e.notifier.Notify(notify.Error, "Invalid JSON format")
		return nil, err
	}
	var key hoststore.Key
	if t.keyPath == "" {
		key = t.key
	}
	h, err := e.client.OpenDatabase(ctx, t.database)
	if err != nil {
		return nil, e.fail(err)
	}
	err = e.client.Put(ctx, h, t.store, value, key)
	_ = h.Close()
	if err != nil {
		return nil, e.fail(err)
	}
	if !e.closeAfterMutation(t) {
		return completed(ErrSuperseded), nil
	}
	e.info("Record saved successfully")
	return e.SelectStore(t.store), nil
}

func (e *Editor) editTarget() (target, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.View != navstate.ViewEdit || e.state.Editing == nil {
		return target{}, apierrors.Conflict("Not editing a record")
	}
	return target{
		database: e.state.Database,
		store:    e.state.Store,
		keyPath:  e.state.KeyPath,
		key:      e.state.Editing.Key,
		buffer:   e.state.EditBuffer,
	}, nil
}

// closeAfterMutation leaves the edit or detail view if the store the mutation
// applied to is still selected.
func (e *Editor) closeAfterMutation(t target) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Database != t.database || e.state.Store != t.store {
		return false
	}
	if e.state.View == navstate.ViewEdit {
		e.state.CloseEdit()
	} else {
		e.state.ShowList()
	}
	return true
}

// Delete removes the record being edited, or the record of the detail view,
// once confirm agrees. On success the returned Op tracks the rescan.
func (e *Editor) Delete(ctx context.Context, confirm ConfirmFunc) (*Op, error) {
	e.mu.Lock()
	t := target{database: e.state.Database, store: e.state.Store}
	switch {
	case e.state.View == navstate.ViewEdit && e.state.Editing != nil:
		t.key = e.state.Editing.Key
	case e.state.View == navstate.ViewDetail && e.state.Selected != nil:
		t.key = e.state.Selected.Key
	default:
		e.mu.Unlock()
		return nil, apierrors.Conflict("No record to delete")
	}
	e.mu.Unlock()

	if t.key == nil {
		return nil, e.fail(apierrors.Delete(t.store, errNoKey))
	}
	if confirm == nil || !confirm("Delete record " + hoststore.KeyString(t.key) + "?") {
		return nil, apierrors.NotConfirmed("Delete")
	}
	h, err := e.client.OpenDatabase(ctx, t.database)
	if err != nil {
		return nil, e.fail(err)
	}
	err = e.client.Remove(ctx, h, t.store, t.key)
	_ = h.Close()
	if err != nil {
		return nil, e.fail(err)
	}
	if !e.closeAfterMutation(t) {
		return completed(ErrSuperseded), nil
	}
	e.info("Record deleted successfully")
	return e.SelectStore(t.store), nil
}

// ExportCurrent returns the edit buffer as a file named after the record key.
func (e *Editor) ExportCurrent() (transfer.Artifact, error) {
	t, err := e.editTarget()
	if err != nil {
		return transfer.Artifact{}, err
	}
	art, err := transfer.Export(t.buffer, t.key)
	if err != nil {
		e.notifier.Notify(notify.Error, "Invalid JSON format")
		return transfer.Artifact{}, err
	}
	return art, nil
}

// ImportBuffer replaces the edit buffer with the pretty-printed content of a
// file. Invalid content leaves the buffer as is.
func (e *Editor) ImportBuffer(text string) error {
	if _, err := e.editTarget(); err != nil {
		return err
	}
	out, err := transfer.Import(text)
	if err != nil {
		e.notifier.Notify(notify.Error, "Invalid JSON format")
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.SetBuffer(out)
}
