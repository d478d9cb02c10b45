// Package logging builds the JSON slog logger shared by all binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Level returns debug when DEBUG=1, info otherwise.
func Level() slog.Level {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") == "1" {
		level = slog.LevelDebug
	}
	return level
}

// New returns a JSON logger writing to stdout.
func New() *slog.Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter returns a JSON logger writing to w at Level().
func NewWithWriter(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: Level(),
	}))
}
