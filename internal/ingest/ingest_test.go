package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hutracker/internal/normalize"
)

func TestReadRowsJSON(t *testing.T) {
	doc := `[
  {"Title": "Login", "Original Estimate": 18, "Start Date": "2024-06-28"},
  {"title": "Logout", "original_estimate": "4"}
]`
	rows, err := ReadRows(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	w := normalize.Item(rows[0])
	if w.Title != "Login" || w.OriginalEstimate != 18 || w.StartDate != "2024-06-28" {
		t.Fatalf("unexpected item %+v", w)
	}
	if normalize.Item(rows[1]).OriginalEstimate != 4 {
		t.Fatalf("string estimate must coerce")
	}
}

func TestReadRowsYAMLWrapped(t *testing.T) {
	doc := `
stories:
  - Title: One
    Sprint: 1
    Due Date: 2024-07-03
  - Title: Two
`
	rows, err := ReadRows(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	w := normalize.Item(rows[0])
	if w.Sprint != "1" || w.DueDate != "2024-07-03" {
		t.Fatalf("unexpected item %+v", w)
	}
}

func TestReadRowsHeaderTable(t *testing.T) {
	doc := `[["Title","Original Estimate","Sprint"],["A",5,2],["B",null,""],[]]`
	rows, err := ReadRows(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["Title"] != "A" || normalize.Item(rows[0]).Sprint != "2" {
		t.Fatalf("unexpected row %v", rows[0])
	}
	if _, ok := rows[1]["Original Estimate"]; ok {
		t.Fatalf("null cells must be dropped")
	}
}

func TestReadRowsRejectsNonCollections(t *testing.T) {
	docs := []string{`"just text"`, `{"name": "x"}`, `[1, 2]`, `42`, ``, `[["h"], "x"]`}
	for _, doc := range docs {
		_, err := ReadRows(strings.NewReader(doc))
		if !errors.Is(err, ErrNotCollection) {
			t.Fatalf("%q: expected ErrNotCollection, got %v", doc, err)
		}
	}
}

func TestReadRowsEmptyList(t *testing.T) {
	rows, err := ReadRows(strings.NewReader(`[]`))
	if err != nil || rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty rows, got %v %v", rows, err)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.yaml")
	if err := os.WriteFile(path, []byte("- title: a\n- title: b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rows, err := ReadFile(path)
	if err != nil || len(rows) != 2 {
		t.Fatalf("unexpected %v %v", rows, err)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
