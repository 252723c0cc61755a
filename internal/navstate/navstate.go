// Package navstate holds what the editor has selected and loaded.
//
// State is a plain value without locking or I/O. Loads that complete
// asynchronously carry a Token taken when they started; their results are
// applied only while the token is still current, so a scan of a store the
// operator already left never overwrites newer state.
package navstate

import (
	"encoding/json"
	"fmt"

	"github.com/maruel/kvedit/internal/catalog"
	apierrors "github.com/maruel/kvedit/internal/errors"
	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/models"
	"github.com/maruel/kvedit/internal/transfer"
)

// View is the active screen. Exactly one is active at a time.
type View int

const (
	// ViewList shows the (filtered) records of the selected store.
	ViewList View = iota
	// ViewDetail shows the selected record.
	ViewDetail
	// ViewEdit is the modal editor for a new or existing record.
	ViewEdit
)

func (v View) String() string {
	switch v {
	case ViewDetail:
		return "detail"
	case ViewEdit:
		return "edit"
	default:
		return "list"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v View) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

type tokenKind int

const (
	databaseToken tokenKind = iota + 1
	storeToken
)

// Token identifies the selection an asynchronous load belongs to.
type Token struct {
	kind tokenKind
	gen  uint64
}

// State is the navigation state of one overlay activation.
type State struct {
	Databases []models.DatabaseDescriptor `json:"databases"`
	Stores    []models.StoreDescriptor    `json:"stores"`
	Database  string                      `json:"database,omitempty"`
	Store     string                      `json:"store,omitempty"`
	KeyPath   string                      `json:"key_path,omitempty"`
	Records   []models.Record             `json:"records"`
	Filtered  []models.Record             `json:"filtered"`
	Query     string                      `json:"query"`
	Selected  *models.Record              `json:"selected,omitempty"`
	// Editing is the record under edit; its Key is nil for a new record.
	Editing    *models.Record `json:"editing,omitempty"`
	EditBuffer string         `json:"edit_buffer,omitempty"`
	View       View           `json:"view"`

	dbGen    uint64
	storeGen uint64
}

// Clone returns a copy that shares record values but no slices.
func (s *State) Clone() State {
	c := *s
	c.Databases = append([]models.DatabaseDescriptor(nil), s.Databases...)
	c.Stores = append([]models.StoreDescriptor(nil), s.Stores...)
	c.Records = append([]models.Record(nil), s.Records...)
	c.Filtered = append([]models.Record(nil), s.Filtered...)
	if s.Selected != nil {
		r := *s.Selected
		c.Selected = &r
	}
	if s.Editing != nil {
		r := *s.Editing
		c.Editing = &r
	}
	return c
}

// Summary returns the record count line of the list view.
func (s State) Summary() string {
	return catalog.Summary(len(s.Filtered), len(s.Records))
}

// MarshalJSON adds the summary line to the JSON form.
func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	return json.Marshal(struct {
		plain
		Summary string `json:"summary"`
	}{plain(s), s.Summary()})
}

// Current reports whether tok still matches the latest selection of its kind.
func (s *State) Current(tok Token) bool {
	switch tok.kind {
	case databaseToken:
		return tok.gen == s.dbGen
	case storeToken:
		return tok.gen == s.storeGen
	}
	return false
}

// SetDatabases replaces the enumerated databases.
func (s *State) SetDatabases(dbs []models.DatabaseDescriptor) {
	s.Databases = dbs
}

func (s *State) clearStore() {
	s.storeGen++
	s.Store = ""
	s.KeyPath = ""
	s.Records = nil
	s.Filtered = nil
	s.Query = ""
	s.Selected = nil
	s.Editing = nil
	s.EditBuffer = ""
	s.View = ViewList
}

// SelectDatabase selects a database and forgets everything below it. The
// returned token guards the store list load.
func (s *State) SelectDatabase(name string) Token {
	s.dbGen++
	s.Database = name
	s.Stores = nil
	s.clearStore()
	return Token{kind: databaseToken, gen: s.dbGen}
}

// ApplyStores sets the store list loaded for tok. It returns false and leaves
// the state untouched when tok is stale.
func (s *State) ApplyStores(tok Token, stores []models.StoreDescriptor) bool {
	if tok.kind != databaseToken || !s.Current(tok) {
		return false
	}
	s.Stores = stores
	return true
}

// SelectStore selects a store of the current database and clears the loaded
// records and the filter. The returned token guards the scan.
func (s *State) SelectStore(name, keyPath string) Token {
	s.clearStore()
	s.Store = name
	s.KeyPath = keyPath
	return Token{kind: storeToken, gen: s.storeGen}
}

// ApplyRecords replaces the records with the result of the scan started for
// tok and reapplies the query. It returns false when tok is stale.
//
// A record shown in the detail view is refreshed, or the view falls back to
// the list when the record is gone.
func (s *State) ApplyRecords(tok Token, records []models.Record) bool {
	if tok.kind != storeToken || !s.Current(tok) {
		return false
	}
	s.Records = records
	s.Filtered = catalog.Filter(records, s.Query)
	if s.Selected != nil {
		if i := catalog.Find(records, s.Selected.Key); i >= 0 {
			r := records[i]
			s.Selected = &r
		} else {
			s.Selected = nil
			if s.View == ViewDetail {
				s.View = ViewList
			}
		}
	}
	return true
}

// SetQuery filters the loaded records.
func (s *State) SetQuery(q string) {
	s.Query = q
	s.Filtered = catalog.Filter(s.Records, q)
}

// ShowDetail switches to the detail view of the loaded record with key.
func (s *State) ShowDetail(key hoststore.Key) error {
	i := catalog.Find(s.Records, key)
	if i < 0 {
		return apierrors.NotFound(fmt.Sprintf("Record %s", hoststore.KeyString(key)))
	}
	r := s.Records[i]
	s.Selected = &r
	s.Editing = nil
	s.EditBuffer = ""
	s.View = ViewDetail
	return nil
}

// ShowList returns from the detail view to the list.
func (s *State) ShowList() {
	s.Selected = nil
	s.Editing = nil
	s.EditBuffer = ""
	s.View = ViewList
}

// BeginCreate opens the editor on an empty object with no key.
func (s *State) BeginCreate() error {
	if s.Store == "" {
		return apierrors.Conflict("No store selected")
	}
	s.Editing = &models.Record{Value: map[string]any{}, Type: models.TypeObject, Size: models.KnownSize(2)}
	s.EditBuffer = "{}"
	s.View = ViewEdit
	return nil
}

// BeginEdit opens the editor on the loaded record with key.
func (s *State) BeginEdit(key hoststore.Key) error {
	i := catalog.Find(s.Records, key)
	if i < 0 {
		return apierrors.NotFound(fmt.Sprintf("Record %s", hoststore.KeyString(key)))
	}
	text, err := transfer.Format(s.Records[i].Value)
	if err != nil {
		return apierrors.InvalidFormat(err)
	}
	r := s.Records[i]
	s.Editing = &r
	s.EditBuffer = text
	s.View = ViewEdit
	return nil
}

// SetBuffer replaces the edit buffer text.
func (s *State) SetBuffer(text string) error {
	if s.View != ViewEdit {
		return apierrors.Conflict("Not editing a record")
	}
	s.EditBuffer = text
	return nil
}

// CloseEdit closes the editor and returns to the list.
func (s *State) CloseEdit() {
	s.Editing = nil
	s.EditBuffer = ""
	s.Selected = nil
	s.View = ViewList
}

// Reset empties the state and invalidates every outstanding token.
func (s *State) Reset() {
	*s = State{dbGen: s.dbGen + 1, storeGen: s.storeGen + 1}
}
