package main

// Notes:
// - This file contains test helpers shared by the command tests.
// - These are not functions under test themselves, but supporting infrastructure.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mdpress "github.com/alnah/go-mdpress"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeRenderer stands in for the mermaid CLI. Sources containing "broken"
// fail to render.
type fakeRenderer struct{}

func (fakeRenderer) RenderDiagram(ctx context.Context, id, source string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.Contains(source, "broken") {
		return "", errors.New("parse error")
	}
	return fmt.Sprintf(`<svg id="%s" xmlns="http://www.w3.org/2000/svg" width="60" height="30" viewBox="0 0 60 30">`+
		`<rect width="60" height="30" fill="#2266cc"/></svg>`, id), nil
}

// staticExporter returns a fixed result.
type staticExporter struct {
	result *mdpress.ExportResult
	err    error
	got    mdpress.Input
}

func (s *staticExporter) Export(_ context.Context, input mdpress.Input) (*mdpress.ExportResult, error) {
	s.got = input
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// syncBuffer is a bytes.Buffer safe for the watch loop writing while the
// test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// newTestEnv returns an isolated environment: vars replace the process
// environment and diagrams are rendered by fakeRenderer.
func newTestEnv(vars map[string]string) (*Environment, *syncBuffer, *syncBuffer) {
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	return &Environment{
		Now:    func() time.Time { return testNow },
		Stdout: stdout,
		Stderr: stderr,
		LookupEnv: func(name string) (string, bool) {
			v, ok := vars[name]
			return v, ok
		},
		Environ: func() []string {
			out := make([]string, 0, len(vars))
			for k, v := range vars {
				out = append(out, k+"="+v)
			}
			return out
		},
		ExporterOptions: []mdpress.Option{mdpress.WithDiagramRenderer(fakeRenderer{})},
	}, stdout, stderr
}

// writeFile creates dir/name with content and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// readPDF reads path and fails unless it holds a PDF.
func readPDF(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("%s is not a PDF: %q", path, data[:min(len(data), 16)])
	}
	return data
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

const sampleMarkdown = "# Report\n\nFirst line\nsecond line.\n\n```mermaid\ngraph TD; A-->B\n```\n"
