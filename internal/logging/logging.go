package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"hutracker/internal/config"
)

const fileName = "hutracker.log"

type Options struct {
	Verbose bool
	// Level overrides the configured level; Verbose wins over both.
	Level string
	// Dir enables the rotating file sink when set.
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Out replaces stderr for the console sink.
	Out io.Writer
}

// FromConfig builds Options from the logging section of the config.
func FromConfig(c config.LoggingConfig, verbose bool) Options {
	return Options{
		Verbose:    verbose,
		Level:      c.Level,
		Dir:        c.Dir,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}

// Init sets the global logger: a console writer on stderr, coloured only on
// a terminal, plus an optional rotating file.
func Init(opts Options) error {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Out
	noColor := true
	if out == nil {
		out = os.Stderr
		noColor = !(isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	}
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("create log directory %q: %w", opts.Dir, err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, fileName),
			MaxSize:    orDefault(opts.MaxSizeMB, 16),
			MaxBackups: orDefault(opts.MaxBackups, 8),
			MaxAge:     orDefault(opts.MaxAgeDays, 90),
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger()
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
