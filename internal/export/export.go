// Package export snapshots every initiative, with its stories and
// schedule rollup, as JSON lines.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"hutracker/internal/domain"
	"hutracker/internal/rollup"
)

const formatVersion = "1"

// Source is what an export reads from; engine.Engine satisfies it.
type Source interface {
	ListInitiatives(ctx context.Context) ([]domain.Initiative, error)
	Summaries(ctx context.Context, today time.Time) ([]rollup.InitiativeSummary, error)
}

// Destination receives a finished snapshot.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

type header struct {
	Version         string    `json:"version"`
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	InitiativeCount int       `json:"initiative_count"`
	ItemCount       int       `json:"item_count"`
}

type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WriteJSONL writes a header line, one "initiative" line per initiative and
// one "summary" line per initiative, as of today.
func WriteJSONL(ctx context.Context, src Source, today time.Time, w io.Writer) error {
	inis, err := src.ListInitiatives(ctx)
	if err != nil {
		return fmt.Errorf("list initiatives: %w", err)
	}
	sums, err := src.Summaries(ctx, today)
	if err != nil {
		return fmt.Errorf("summaries: %w", err)
	}
	items := 0
	for _, ini := range inis {
		items += len(ini.Stories)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(header{
		Version:         formatVersion,
		Type:            "header",
		Timestamp:       today.UTC(),
		InitiativeCount: len(inis),
		ItemCount:       items,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, ini := range inis {
		if err := enc.Encode(record{Type: "initiative", Data: ini}); err != nil {
			return fmt.Errorf("encode initiative %s: %w", ini.ID, err)
		}
	}
	for _, s := range sums {
		if err := enc.Encode(record{Type: "summary", Data: s}); err != nil {
			return fmt.Errorf("encode summary %s: %w", s.ID, err)
		}
	}
	return nil
}

// Run renders the snapshot and hands it to dest in one write.
func Run(ctx context.Context, src Source, today time.Time, dest Destination) (int, error) {
	var buf bytes.Buffer
	if err := WriteJSONL(ctx, src, today, &buf); err != nil {
		return 0, err
	}
	if err := dest.Write(ctx, buf.Bytes()); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

// FileDestination writes the snapshot to a local path; "-" means stdout.
type FileDestination struct {
	Path   string
	Stdout io.Writer
}

func (d FileDestination) Write(_ context.Context, data []byte) error {
	if d.Path == "" || d.Path == "-" {
		out := d.Stdout
		if out == nil {
			out = os.Stdout
		}
		_, err := out.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(d.Path), 0o755); err != nil {
		return err
	}
	tmp := d.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, d.Path)
}
