// Package tpmlog centralizes tpm's slog setup: a text handler on
// stderr whose level is driven by the CLI's --verbose/--debug flags,
// honoring NO_COLOR for the progress bars and formatter that share its
// output stream.
package tpmlog

import (
	"io"
	"log/slog"
	"os"
)

// Level is the set of verbosity levels the CLI exposes, one step finer
// than slog's own so --verbose and --debug map to distinct outputs.
type Level int

const (
	LevelWarn Level = iota
	LevelVerbose
	LevelDebug
)

// New builds the process-wide slog.Logger for the given verbosity and
// installs it as slog.Default, matching the way cmd/tomei/root.go wires
// up logging from its PersistentPreRunE.
func New(w io.Writer, level Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	logger := slog.New(slog.NewTextHandler(w, opts))
	slog.SetDefault(logger)
	return logger
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelVerbose:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// NoColor reports whether color output should be suppressed, honoring
// https://no-color.org/ ahead of any TTY auto-detection the caller
// layers on top.
func NoColor() bool {
	return os.Getenv("NO_COLOR") != ""
}
