package mdpress

import (
	"log/slog"
	"time"

	"github.com/alnah/go-mdpress/internal/fonts"
	"github.com/alnah/go-mdpress/internal/layout"
	"github.com/alnah/go-mdpress/internal/pipeline"
	"github.com/alnah/go-mdpress/internal/visual"
)

// defaultTimeout bounds one export when the caller's context has no deadline.
const defaultTimeout = 2 * time.Minute

// Option configures an Exporter.
type Option func(*Exporter)

// exporterConfig holds internal configuration for Exporter.
type exporterConfig struct {
	timeout        time.Duration
	assetPath      string
	optimize       bool
	chrome         bool
	scale          float64
	fontBaseURL    string
	mermaidCommand string
	mermaidTheme   string
	mermaidJobs    int
	creator        string
	logger         *slog.Logger
	now            func() time.Time
}

// WithTimeout sets the export timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Exporter) {
		e.cfg.timeout = d
	}
}

// WithLogger sets the structured logger. Diagram, font and rasterization
// fallbacks are reported as warnings.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.cfg.logger = l
		}
	}
}

// WithClock overrides the time source used for PDF metadata and footer dates.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.cfg.now = now
		}
	}
}

// WithAssetPath sets a directory overriding the embedded styles and
// providing fonts under fonts/<name>.ttf.
func WithAssetPath(path string) Option {
	return func(e *Exporter) {
		e.cfg.assetPath = path
	}
}

// WithOptimize runs the PDF through pdfcpu's optimizer after rendering.
func WithOptimize(enabled bool) Option {
	return func(e *Exporter) {
		e.cfg.optimize = enabled
	}
}

// WithChrome rasterizes diagrams by screenshotting them in headless Chrome
// instead of the in-process SVG rasterizer. HTML labels then render too.
func WithChrome() Option {
	return func(e *Exporter) {
		e.cfg.chrome = true
	}
}

// WithScale sets the diagram rasterization scale (default 2).
func WithScale(scale float64) Option {
	return func(e *Exporter) {
		if scale > 0 {
			e.cfg.scale = scale
		}
	}
}

// WithFontBaseURL fetches fonts over HTTP from baseURL + /assets/fonts/<name>.ttf
// instead of the asset directory.
func WithFontBaseURL(baseURL string) Option {
	return func(e *Exporter) {
		e.cfg.fontBaseURL = baseURL
	}
}

// WithMermaid configures the mermaid CLI used when no diagram renderer is
// injected. Empty values keep the defaults.
func WithMermaid(command, theme string) Option {
	return func(e *Exporter) {
		e.cfg.mermaidCommand = command
		e.cfg.mermaidTheme = theme
	}
}

// WithDiagramConcurrency caps concurrent mermaid CLI processes.
func WithDiagramConcurrency(n int) Option {
	return func(e *Exporter) {
		e.cfg.mermaidJobs = n
	}
}

// WithCreator sets the PDF creator metadata.
func WithCreator(creator string) Option {
	return func(e *Exporter) {
		e.cfg.creator = creator
	}
}

// WithDiagramRenderer replaces the mermaid CLI.
func WithDiagramRenderer(r DiagramRenderer) Option {
	return func(e *Exporter) {
		e.renderer = r
	}
}

// WithRasterizer replaces the diagram rasterizer.
func WithRasterizer(r Rasterizer) Option {
	return func(e *Exporter) {
		e.rasterizer = r
	}
}

// WithFontFetcher replaces the font source.
func WithFontFetcher(f FontFetcher) Option {
	return func(e *Exporter) {
		e.fetcher = f
	}
}

// Collaborator interfaces, re-exported so callers can inject their own.
type (
	// DiagramRenderer turns diagram source into SVG markup whose root
	// element carries the given id.
	DiagramRenderer = pipeline.DiagramRenderer

	// Rasterizer turns SVG markup into a PNG bitmap.
	Rasterizer = layout.Rasterizer

	// Bitmap is a rasterized diagram.
	Bitmap = layout.Bitmap

	// VectorImage is rendered diagram markup handed to a Rasterizer.
	VectorImage = visual.VectorImage

	// FontFetcher returns font bytes for a /assets/fonts/<name>.ttf path.
	FontFetcher = fonts.Fetcher
)
