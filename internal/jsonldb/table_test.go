package jsonldb

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

type testRow struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (r *testRow) Clone() *testRow {
	c := *r
	return &c
}

func TestTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "test.jsonl")

	table, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	if n := len(table.Rows()); n != 0 {
		t.Fatalf("expected empty table, got %d rows", n)
	}

	rows := []*testRow{
		{ID: 1, Name: "One"},
		{ID: 2, Name: "Two"},
	}
	if err := table.Replace(rows); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if n := len(table.Rows()); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}

	// Test persistence (re-load)
	table2, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("re-loading table failed: %v", err)
	}
	got := slices.Collect(table2.All())
	if len(got) != 2 {
		t.Fatalf("re-loaded table expected 2 rows, got %d", len(got))
	}
	if got[0].Name != "One" || got[1].Name != "Two" {
		t.Errorf("re-loaded data mismatch: %+v, %+v", got[0], got[1])
	}

	if err := table.Replace([]*testRow{{ID: 3, Name: "Three"}}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	table3, err := NewTable[*testRow](path)
	if err != nil {
		t.Fatalf("re-loading table after replace failed: %v", err)
	}
	if r := table3.Rows(); len(r) != 1 || r[0].ID != 3 {
		t.Errorf("Replace failed to update file: %+v", r)
	}

	// No temporary files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the table file, got %d entries", len(entries))
	}
}

func TestTable_ClonesOnRead(t *testing.T) {
	table, err := NewTable[*testRow](filepath.Join(t.TempDir(), "t.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if err := table.Replace([]*testRow{{ID: 1, Name: "One"}}); err != nil {
		t.Fatal(err)
	}
	for r := range table.All() {
		r.Name = "changed"
	}
	if n := table.Rows()[0].Name; n != "One" {
		t.Errorf("mutation leaked into table: %q", n)
	}
}

func TestTable_CorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{\"id\":1}\n\n{oops\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewTable[*testRow](path); err == nil {
		t.Fatal("expected error for corrupt row")
	}
}
