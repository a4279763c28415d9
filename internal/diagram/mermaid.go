// Package diagram renders mermaid sources to SVG with the mermaid CLI (mmdc).
package diagram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/alnah/go-mdpress/internal/fileutil"
	"github.com/alnah/go-mdpress/internal/pipeline"
	"github.com/alnah/go-mdpress/internal/process"
)

// DefaultCommand is the mermaid CLI executable.
const DefaultCommand = "mmdc"

// DefaultConcurrency bounds concurrent mmdc processes; each starts a browser.
const DefaultConcurrency = 2

// waitDelay bounds how long Wait blocks on output pipes after a kill.
const waitDelay = 2 * time.Second

// maxStderr bounds the stderr tail kept in error messages.
const maxStderr = 512

// Sentinel errors for diagram rendering.
var (
	ErrToolNotFound = errors.New("mermaid CLI not found")
	ErrEmptySource  = errors.New("diagram source is empty")
	ErrRender       = errors.New("diagram rendering failed")
	ErrEmptyOutput  = errors.New("diagram renderer produced no SVG")
)

// MermaidCLI renders diagrams by running mmdc once per diagram.
type MermaidCLI struct {
	command    string
	theme      string
	background string
	sem        chan struct{}
	logger     *slog.Logger
}

// Option configures a MermaidCLI.
type Option func(*MermaidCLI)

// WithCommand sets the mmdc executable name or path.
func WithCommand(cmd string) Option {
	return func(m *MermaidCLI) {
		if cmd != "" {
			m.command = cmd
		}
	}
}

// WithTheme sets the mermaid theme ("default", "dark", "forest", "neutral").
func WithTheme(theme string) Option {
	return func(m *MermaidCLI) {
		if theme != "" {
			m.theme = theme
		}
	}
}

// WithConcurrency bounds concurrent mmdc processes.
func WithConcurrency(n int) Option {
	return func(m *MermaidCLI) {
		if n > 0 {
			m.sem = make(chan struct{}, n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *MermaidCLI) {
		if l != nil {
			m.logger = l
		}
	}
}

var _ pipeline.DiagramRenderer = (*MermaidCLI)(nil)

// NewMermaidCLI returns a renderer running mmdc.
func NewMermaidCLI(opts ...Option) *MermaidCLI {
	m := &MermaidCLI{
		command:    DefaultCommand,
		theme:      "default",
		background: "white",
		sem:        make(chan struct{}, DefaultConcurrency),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Command returns the configured executable.
func (m *MermaidCLI) Command() string { return m.command }

// Available reports whether the executable can be found.
func (m *MermaidCLI) Available() (string, error) {
	path, err := exec.LookPath(m.command)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrToolNotFound, m.command, err)
	}
	return path, nil
}

// mermaidConfig renders labels as SVG text instead of HTML so that pure-Go
// rasterizers, which ignore <foreignObject>, keep the label text.
var mermaidConfig = map[string]any{
	"htmlLabels": false,
	"flowchart":  map[string]any{"htmlLabels": false},
}

// RenderDiagram renders source to SVG markup whose root element has the
// given id.
func (m *MermaidCLI) RenderDiagram(ctx context.Context, id, source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", ErrEmptySource
	}

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	scratch, err := fileutil.NewScratch("mdpress-mmdc")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	defer func() { _ = scratch.Close() }()

	cfgJSON, err := json.Marshal(mermaidConfig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	input, err := scratch.Write("input.mmd", []byte(source))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	cfgPath, err := scratch.Write("config.json", cfgJSON)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	output, err := scratch.Path("output.svg")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}

	args := []string{
		"-i", input,
		"-o", output,
		"-I", id,
		"-t", m.theme,
		"-b", m.background,
		"-c", cfgPath,
		"-q",
	}
	if pcfg := puppeteerConfig(); pcfg != "" {
		pcfgPath, err := scratch.Write("puppeteer.json", []byte(pcfg))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRender, err)
		}
		args = append(args, "-p", pcfgPath)
	}

	if err := m.run(ctx, id, args); err != nil {
		return "", err
	}

	svg, err := os.ReadFile(output) // #nosec G304 -- path inside our scratch directory
	if err != nil {
		return "", fmt.Errorf("%w: %s: reading output: %v", ErrEmptyOutput, id, err)
	}
	markup := trimProlog(string(svg))
	if !strings.Contains(markup, "<svg") {
		return "", fmt.Errorf("%w: %s", ErrEmptyOutput, id)
	}
	return markup, nil
}

func (m *MermaidCLI) run(ctx context.Context, id string, args []string) error {
	cmd := exec.CommandContext(ctx, m.command, args...) // #nosec G204 -- command is operator configuration
	process.SetProcessGroup(cmd)
	cmd.Cancel = func() error {
		// mmdc spawns a headless browser; take the whole group down.
		process.KillProcessGroup(cmd.Process.Pid)
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	m.logger.Debug("mmdc finished", "diagram_id", id, "duration", time.Since(start), "error", err)

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %q", ErrToolNotFound, m.command)
	}
	return fmt.Errorf("%w: %s: %v: %s", ErrRender, id, err, tail(stderr.String(), maxStderr))
}

// puppeteerConfig disables the Chrome sandbox in CI and in containers with a
// pre-installed browser, matching the rod launcher setup in internal/raster.
func puppeteerConfig() string {
	bin := os.Getenv("ROD_BROWSER_BIN")
	if os.Getenv("CI") != "true" && bin == "" {
		return ""
	}
	cfg := map[string]any{"args": []string{"--no-sandbox", "--disable-setuid-sandbox"}}
	if bin != "" {
		cfg["executablePath"] = bin
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	return string(data)
}

// trimProlog drops anything before the root element, such as an XML
// declaration, so the markup can be inlined in HTML.
func trimProlog(svg string) string {
	if i := strings.Index(svg, "<svg"); i > 0 {
		return svg[i:]
	}
	return svg
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
