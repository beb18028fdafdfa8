// Package logging builds the zerolog logger shared by all components
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Config selects level and output format
type Config struct {
	// Level: disabled, trace, debug, info, warn, error
	Level string
	// Format: console (colour autodetected), text (no colour) or json
	Format string
	Output io.Writer
}

// New builds a logger. Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	writer := out
	if cfg.Format != "json" {
		console := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
		switch cfg.Format {
		case "text":
			console.NoColor = true
		default:
			console.NoColor = !IsTerminal(out)
		}
		writer = console
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Tail keeps the last lines written to it, for display while a full screen
// program owns the terminal
type Tail struct {
	mu    sync.Mutex
	lines []string
	size  int
}

// NewTail keeps at most size lines
func NewTail(size int) *Tail {
	return &Tail{size: size}
}

func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		t.lines = append(t.lines, line)
	}
	if over := len(t.lines) - t.size; over > 0 {
		t.lines = append(t.lines[:0], t.lines[over:]...)
	}
	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}
