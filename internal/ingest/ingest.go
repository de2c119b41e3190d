// Package ingest reads row files handed to the import commands. JSON and
// YAML documents are both accepted.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"hutracker/internal/normalize"
)

var ErrNotCollection = errors.New("import is not a collection of records")

// containerKeys are the mapping keys that may wrap a row list.
var containerKeys = []string{"rows", "items", "stories", "hus"}

// ReadRows decodes a row list. Accepted shapes are a list of mappings, a
// list of lists whose first row holds the column headers, or a mapping that
// wraps either under one of the container keys.
func ReadRows(r io.Reader) ([]normalize.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrNotCollection)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode import: %w", err)
	}
	return Rows(doc)
}

func ReadFile(path string) ([]normalize.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRows(f)
}

// Rows converts an already decoded document.
func Rows(doc any) ([]normalize.Record, error) {
	if m, ok := normalize.AsRecord(doc); ok {
		for _, k := range containerKeys {
			if v, ok := m[k]; ok {
				return Rows(v)
			}
		}
		return nil, fmt.Errorf("%w: mapping without %v", ErrNotCollection, containerKeys)
	}
	list, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotCollection, doc)
	}
	if len(list) == 0 {
		return []normalize.Record{}, nil
	}
	if header, ok := list[0].([]any); ok {
		return tableRows(header, list[1:])
	}
	out := make([]normalize.Record, 0, len(list))
	for i, v := range list {
		rec, ok := normalize.AsRecord(v)
		if !ok {
			return nil, fmt.Errorf("%w: row %d is %T", ErrNotCollection, i, v)
		}
		out = append(out, rec)
	}
	return out, nil
}

func tableRows(header []any, rows []any) ([]normalize.Record, error) {
	cols := make([]string, len(header))
	for i, h := range header {
		if h != nil {
			cols[i] = fmt.Sprint(h)
		}
	}
	out := make([]normalize.Record, 0, len(rows))
	for i, v := range rows {
		cells, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: row %d is %T", ErrNotCollection, i+1, v)
		}
		rec := normalize.Record{}
		for j, cell := range cells {
			if j >= len(cols) || cols[j] == "" || cell == nil {
				continue
			}
			rec[cols[j]] = cell
		}
		if len(rec) == 0 {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
