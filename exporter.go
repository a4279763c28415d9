package mdpress

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alnah/go-mdpress/internal/assets"
	"github.com/alnah/go-mdpress/internal/dateutil"
	"github.com/alnah/go-mdpress/internal/diagram"
	"github.com/alnah/go-mdpress/internal/fonts"
	"github.com/alnah/go-mdpress/internal/layout"
	"github.com/alnah/go-mdpress/internal/pdfdoc"
	"github.com/alnah/go-mdpress/internal/pipeline"
	"github.com/alnah/go-mdpress/internal/raster"
)

// Compile-time interface implementation checks.
var (
	_ pipeline.MarkdownPreprocessor = (*pipeline.ParagraphPreprocessor)(nil)
	_ DiagramRenderer               = (*diagram.MermaidCLI)(nil)
	_ Rasterizer                    = (*raster.SVG)(nil)
	_ Rasterizer                    = (*raster.Chrome)(nil)
	_ FontFetcher                   = (*fonts.AssetFetcher)(nil)
	_ FontFetcher                   = (*fonts.HTTPFetcher)(nil)
	_ fonts.FontTable               = (*pdfdoc.Document)(nil)
	_ layout.Measurer               = (*pdfdoc.Document)(nil)
)

// Exporter renders markdown previews and exports paged PDFs.
// Create with NewExporter, use Export or Preview, and Close when done.
// An Exporter is safe for concurrent use.
type Exporter struct {
	cfg         exporterConfig
	assetLoader assets.AssetLoader
	renderer    DiagramRenderer
	rasterizer  Rasterizer
	fetcher     FontFetcher
	composer    *pipeline.Composer
	style       string

	// owned is closed by Close; injected collaborators are left alone.
	owned io.Closer
}

// NewExporter creates an Exporter with default configuration: diagrams are
// rendered by the mermaid CLI, rasterized in-process and fonts are read from
// the asset directory.
// Returns error if the asset path is invalid.
func NewExporter(opts ...Option) (*Exporter, error) {
	e := &Exporter{
		cfg: exporterConfig{
			timeout: defaultTimeout,
			scale:   layout.DefaultScale,
			creator: "mdpress",
			logger:  slog.New(slog.DiscardHandler),
			now:     time.Now,
		},
	}
	for _, opt := range opts {
		opt(e)
	}

	resolver, err := assets.NewAssetResolver(e.cfg.assetPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssetPath, err)
	}
	e.assetLoader = resolver

	e.style, err = e.assetLoader.LoadStyle(assets.DefaultStyleName)
	if err != nil {
		return nil, fmt.Errorf("loading preview style: %w", err)
	}

	if e.renderer == nil {
		e.renderer = diagram.NewMermaidCLI(
			diagram.WithCommand(e.cfg.mermaidCommand),
			diagram.WithTheme(e.cfg.mermaidTheme),
			diagram.WithConcurrency(e.cfg.mermaidJobs),
			diagram.WithLogger(e.cfg.logger),
		)
	}

	if e.rasterizer == nil {
		if e.cfg.chrome {
			chrome := raster.NewChrome(e.cfg.timeout)
			e.rasterizer = chrome
			e.owned = chrome
		} else {
			e.rasterizer = &raster.SVG{}
		}
	}

	if e.fetcher == nil {
		if e.cfg.fontBaseURL != "" {
			e.fetcher = &fonts.HTTPFetcher{BaseURL: e.cfg.fontBaseURL}
		} else {
			e.fetcher = &fonts.AssetFetcher{Loader: e.assetLoader}
		}
	}

	e.composer = pipeline.NewComposer(e.renderer, pipeline.WithLogger(e.cfg.logger))
	return e, nil
}

// Export renders input to a PDF.
//
// Diagram, font and rasterization failures degrade the output and are
// reported in ExportResult; they never fail the export. Invalid input, a
// cancelled context and serializer failures do, and no PDF bytes are
// returned. Recovers from internal panics to prevent crashes from
// propagating to callers.
func (e *Exporter) Export(ctx context.Context, input Input) (result *ExportResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%w: internal error: %v", ErrExport, r)
		}
	}()

	if err := validateInput(input); err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	log := e.cfg.logger
	if input.Title != "" {
		log = log.With("document", input.Title)
	}
	start := time.Now()

	preview, err := e.composer.Compose(ctx, input.Markdown)
	if err != nil {
		return nil, fmt.Errorf("composing: %w", err)
	}
	defer preview.Release()

	// Pagination reads diagram slots, so every render must have settled.
	if err := preview.Wait(ctx); err != nil {
		return nil, err
	}

	footer, err := e.footer(input.Footer)
	if err != nil {
		return nil, err
	}

	page := input.Page
	if page == nil {
		page = DefaultPageSettings()
	}
	width, height := page.Dimensions()
	doc := pdfdoc.New(pdfdoc.Options{
		PageWidth:  width,
		PageHeight: height,
		Margin:     page.margin(),
		Title:      input.Title,
		Creator:    e.cfg.creator,
		Now:        e.cfg.now,
		Footer:     footer,
	})

	fallback := e.installFont(ctx, doc, input.FontName, log)

	state, err := layout.Paginate(ctx, preview.Root, layout.Config{
		PageWidth:  width,
		PageHeight: height,
		Margin:     page.margin(),
		FontName:   doc.Family(),
		Scale:      e.cfg.scale,
	}, doc, e.rasterizer, log)
	if err != nil {
		return nil, fmt.Errorf("paginating: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Render(state, &buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	pdf := buf.Bytes()

	if e.cfg.optimize {
		optimized, err := pdfdoc.Optimize(pdf)
		if err != nil {
			log.Warn("PDF optimization failed, keeping unoptimized output", "error", err)
		} else {
			pdf = optimized
		}
	}

	failed := 0
	for _, slot := range preview.Diagrams() {
		if slot.Failed() {
			failed++
		}
	}

	log.Info("export finished",
		"pages", len(state.Pages),
		"bytes", len(pdf),
		"diagrams", len(preview.Diagrams()),
		"failed_diagrams", failed,
		"skipped_diagrams", state.Skipped,
		"font_fallback", fallback,
		"duration", time.Since(start),
	)

	return &ExportResult{
		PDF:             pdf,
		FileName:        DefaultFileName,
		Pages:           len(state.Pages),
		FontFallback:    fallback,
		FailedDiagrams:  failed,
		SkippedDiagrams: state.Skipped,
	}, nil
}

// Preview renders markdown to a standalone HTML page with diagrams inlined
// as SVG, or as their source when rendering failed. Empty markdown yields
// an empty page.
func (e *Exporter) Preview(ctx context.Context, markdown, title string) (page string, err error) {
	defer func() {
		if r := recover(); r != nil {
			page, err = "", fmt.Errorf("%w: internal error: %v", ErrExport, r)
		}
	}()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	preview, err := e.composer.Compose(ctx, markdown)
	if err != nil {
		return "", fmt.Errorf("composing: %w", err)
	}
	defer preview.Release()

	if err := preview.Wait(ctx); err != nil {
		return "", err
	}
	return preview.Document(title, e.style), nil
}

// Close releases resources (headless Chrome when WithChrome is used).
func (e *Exporter) Close() error {
	if e.owned != nil {
		return e.owned.Close()
	}
	return nil
}

// installFont installs name into doc and selects it as the body font.
// It reports whether the built-in face had to be used instead.
func (e *Exporter) installFont(ctx context.Context, doc *pdfdoc.Document, name string, log *slog.Logger) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	installer := fonts.NewInstaller(e.fetcher, fonts.WithLogger(log))
	if installer.Install(ctx, doc, name, fonts.SourcePath(name), fonts.DefaultStyle) && doc.UseFont(name) {
		return false
	}
	log.Warn("using default font", "font", name, "default", pdfdoc.DefaultFamily)
	return true
}

// footer converts the public Footer, resolving "auto" dates.
func (e *Exporter) footer(f *Footer) (*pdfdoc.Footer, error) {
	if f == nil {
		return nil, nil
	}
	date, err := dateutil.Resolve(f.Date, e.cfg.now())
	if err != nil {
		return nil, err
	}
	return &pdfdoc.Footer{
		Position:       strings.ToLower(f.Position),
		ShowPageNumber: f.ShowPageNumber,
		Date:           date,
		Text:           f.Text,
	}, nil
}

func (e *Exporter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.timeout)
}

// validateInput checks that required fields are present and valid.
//
// This is a TRUST BOUNDARY for direct library users who build Input manually.
// CLI and server users have their input validated earlier by config loading
// and request decoding; both paths converge here.
func validateInput(input Input) error {
	if strings.TrimSpace(input.Markdown) == "" {
		return ErrEmptyMarkdown
	}
	if err := input.Page.Validate(); err != nil {
		return err
	}
	return input.Footer.Validate()
}
