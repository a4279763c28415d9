package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	mdpress "github.com/alnah/go-mdpress"
)

// Environment holds injectable dependencies for testability.
// Includes I/O, time, the process environment and exporter overrides.
type Environment struct {
	Now       func() time.Time
	Stdout    io.Writer
	Stderr    io.Writer
	LookupEnv func(string) (string, bool)
	Environ   func() []string

	// ExporterOptions are applied after the options built from config,
	// so tests can swap the diagram renderer or rasterizer.
	ExporterOptions []mdpress.Option
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:       time.Now,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		LookupEnv: os.LookupEnv,
		Environ:   os.Environ,
	}
}

// newLogger returns a text logger on stderr. Verbose enables debug records;
// otherwise only warnings and errors are shown, and quiet shows errors only.
func newLogger(w io.Writer, quiet, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
