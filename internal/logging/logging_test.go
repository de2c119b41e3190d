package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := Init(Options{Dir: dir, Out: &buf}); err != nil {
		t.Fatalf("init: %v", err)
	}
	log.Info().Str("initiative", "Checkout").Msg("summary computed")
	log.Debug().Msg("hidden at info")

	if !strings.Contains(buf.String(), "summary computed") || strings.Contains(buf.String(), "hidden at info") {
		t.Fatalf("unexpected console output %q", buf.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"initiative":"Checkout"`) {
		t.Fatalf("file sink should hold json lines, got %q", string(data))
	}
}

func TestInitLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Level: "warn", Out: &buf}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", zerolog.GlobalLevel())
	}
	if err := Init(Options{Level: "warn", Verbose: true, Out: &buf}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("verbose must force debug, got %s", zerolog.GlobalLevel())
	}
	if err := Init(Options{Level: "shouting", Out: &buf}); err == nil {
		t.Fatalf("expected invalid level error")
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
