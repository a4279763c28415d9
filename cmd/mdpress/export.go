package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	mdpress "github.com/alnah/go-mdpress"
	"github.com/alnah/go-mdpress/internal/config"
	"github.com/alnah/go-mdpress/internal/hints"
)

// File permission constants.
const (
	dirPermissions  = 0o750 // rwxr-x---
	filePermissions = 0o644 // rw-r--r--
)

// Sentinel errors for export.
var (
	ErrNoInput         = errors.New("no input file specified")
	ErrReadMarkdown    = errors.New("failed to read markdown file")
	ErrWriteOutput     = errors.New("failed to write output file")
	ErrCreateOutputDir = errors.New("failed to create output directory")
	ErrDiagramsFailed  = errors.New("diagrams could not be rendered")
)

// Pool abstracts exporter pool management.
type Pool interface {
	Acquire(ctx context.Context) (*mdpress.Exporter, error)
	Release(*mdpress.Exporter)
	Size() int
}

var _ Pool = (*mdpress.ExporterPool)(nil)

// Exporter abstracts a single markdown to PDF export.
type Exporter interface {
	Export(ctx context.Context, input mdpress.Input) (*mdpress.ExportResult, error)
}

var _ Exporter = (*mdpress.Exporter)(nil)

// exportParams holds the settings shared by every file in a batch.
type exportParams struct {
	title  string
	font   string
	page   *mdpress.PageSettings
	footer *mdpress.Footer
	strict bool
}

// exportOutcome is the result of exporting one file.
type exportOutcome struct {
	InputPath  string
	OutputPath string
	Result     *mdpress.ExportResult
	Err        error
	Duration   time.Duration
}

// runExport exports one markdown file or a directory tree to PDF.
func runExport(ctx context.Context, args []string, env *Environment) error {
	f, positional, err := parseExportFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if err := validateWorkers(f.workers); err != nil {
		return err
	}

	cfg, err := loadConfig(f.common.config, env)
	if err != nil {
		return err
	}
	mergeExportFlags(f, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if len(positional) == 0 {
		return ErrNoInput
	}
	files, err := discoverFiles(positional[0], cfg.Output.DefaultDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no markdown files in %s", ErrNoInput, positional[0])
	}

	params := &exportParams{
		title:  f.title,
		font:   cfg.Font.Name,
		page:   buildPageSettings(cfg),
		footer: buildFooter(cfg),
		strict: f.strict,
	}
	if err := params.page.Validate(); err != nil {
		return err
	}
	if err := params.footer.Validate(); err != nil {
		return err
	}

	log := newLogger(env.Stderr, f.common.quiet, f.common.verbose)
	size := mdpress.ResolvePoolSize(cfg.Export.Workers)
	pool := mdpress.NewExporterPool(size, exporterOptions(cfg, env, log)...)
	defer func() { _ = pool.Close() }()

	log.Debug("exporting", "files", len(files), "workers", size)
	outcomes := exportBatch(ctx, pool, files, params)

	failed, firstErr := printOutcomes(outcomes, params.font, f.common.quiet, f.common.verbose, env)
	if failed == 0 {
		return nil
	}
	if len(outcomes) == 1 {
		return firstErr
	}
	return fmt.Errorf("%d of %d exports failed: %w", failed, len(outcomes), firstErr)
}

// exporterOptions translates config into exporter options. Options from
// env come last so they override the config.
func exporterOptions(cfg *config.Config, env *Environment, log *slog.Logger) []mdpress.Option {
	opts := []mdpress.Option{
		mdpress.WithLogger(log),
		mdpress.WithClock(env.Now),
		mdpress.WithOptimize(cfg.Export.Optimize),
		mdpress.WithCreator("mdpress " + Version),
		mdpress.WithAssetPath(cfg.Assets.BasePath),
		mdpress.WithFontBaseURL(cfg.Font.BaseURL),
		mdpress.WithMermaid(cfg.Diagram.Command, cfg.Diagram.Theme),
		mdpress.WithDiagramConcurrency(cfg.Diagram.Concurrency),
		mdpress.WithScale(cfg.Diagram.Scale),
	}
	if timeout := cfg.ExportTimeout(); timeout > 0 {
		opts = append(opts, mdpress.WithTimeout(timeout))
	}
	if cfg.Diagram.Rasterizer == config.RasterizerChrome {
		opts = append(opts, mdpress.WithChrome())
	}
	return append(opts, env.ExporterOptions...)
}

// buildPageSettings returns nil when the config leaves page geometry unset.
func buildPageSettings(cfg *config.Config) *mdpress.PageSettings {
	p := cfg.Page
	if p.Size == "" && p.Orientation == "" && p.Margin == 0 && p.Width == 0 && p.Height == 0 {
		return nil
	}
	return &mdpress.PageSettings{
		Size:        p.Size,
		Orientation: p.Orientation,
		Margin:      p.Margin,
		Width:       p.Width,
		Height:      p.Height,
	}
}

// buildFooter returns nil when the footer is disabled.
func buildFooter(cfg *config.Config) *mdpress.Footer {
	if !cfg.Footer.Enabled {
		return nil
	}
	return &mdpress.Footer{
		Position:       cfg.Footer.Position,
		ShowPageNumber: cfg.Footer.ShowPageNumber,
		Date:           cfg.Footer.Date,
		Text:           cfg.Footer.Text,
	}
}

// exportBatch exports files concurrently with one exporter per worker.
func exportBatch(ctx context.Context, pool Pool, files []FileToExport, params *exportParams) []exportOutcome {
	if len(files) == 0 {
		return nil
	}

	concurrency := min(pool.Size(), len(files))
	outcomes := make([]exportOutcome, len(files))
	jobs := make(chan int, len(files))
	for i := range files {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			exp, err := pool.Acquire(ctx)
			if err != nil {
				for idx := range jobs {
					outcomes[idx] = exportOutcome{InputPath: files[idx].InputPath, Err: err}
				}
				return
			}
			defer pool.Release(exp)

			for idx := range jobs {
				if ctx.Err() != nil {
					outcomes[idx] = exportOutcome{InputPath: files[idx].InputPath, Err: ctx.Err()}
					continue
				}
				outcomes[idx] = exportFile(ctx, exp, files[idx], params)
			}
		}()
	}

	wg.Wait()
	return outcomes
}

// exportFile reads, exports and writes a single file.
func exportFile(ctx context.Context, exp Exporter, f FileToExport, params *exportParams) exportOutcome {
	start := time.Now()
	out := exportOutcome{InputPath: f.InputPath, OutputPath: f.OutputPath}
	fail := func(err error) exportOutcome {
		out.Err = err
		out.Duration = time.Since(start)
		return out
	}

	content, err := os.ReadFile(f.InputPath) // #nosec G304 -- discovered path
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrReadMarkdown, err))
	}

	title := params.title
	if title == "" {
		title = titleFor(f.InputPath)
	}

	res, err := exp.Export(ctx, mdpress.Input{
		Markdown: string(content),
		Title:    title,
		FontName: params.font,
		Page:     params.page,
		Footer:   params.footer,
	})
	if err != nil {
		return fail(err)
	}
	out.Result = res

	if params.strict && res.FailedDiagrams+res.SkippedDiagrams > 0 {
		return fail(fmt.Errorf("%w: %d failed, %d skipped", ErrDiagramsFailed, res.FailedDiagrams, res.SkippedDiagrams))
	}

	if err := os.MkdirAll(filepath.Dir(f.OutputPath), dirPermissions); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrCreateOutputDir, err))
	}
	// #nosec G306 -- PDFs are meant to be readable
	if err := os.WriteFile(f.OutputPath, res.PDF, filePermissions); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrWriteOutput, err))
	}

	out.Duration = time.Since(start)
	return out
}

// printOutcomes reports each export and returns the failure count and the
// first failure.
func printOutcomes(outcomes []exportOutcome, font string, quiet, verbose bool, env *Environment) (int, error) {
	var succeeded, failed int
	var firstErr error
	fallbackHinted := false

	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = o.Err
			}
			if len(outcomes) > 1 {
				fmt.Fprintf(env.Stderr, "FAILED %s: %v\n", o.InputPath, o.Err)
			}
			continue
		}

		succeeded++
		if quiet {
			continue
		}

		if verbose {
			fmt.Fprintf(env.Stdout, "%s -> %s (%d pages, %v)\n",
				o.InputPath, o.OutputPath, o.Result.Pages, o.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(env.Stdout, "Created %s\n", o.OutputPath)
		}

		if n := o.Result.FailedDiagrams + o.Result.SkippedDiagrams; n > 0 {
			fmt.Fprintf(env.Stderr, "warning: %s: %d diagram(s) shown as source\n", o.InputPath, n)
		}
		if o.Result.FontFallback && !fallbackHinted {
			fallbackHinted = true
			fmt.Fprintf(env.Stderr, "warning: font %s not installed, built-in font used%s\n", font, hints.ForFontFallback(font))
		}
	}

	if !quiet && len(outcomes) > 1 {
		fmt.Fprintf(env.Stdout, "\n%d succeeded, %d failed\n", succeeded, failed)
	}

	return failed, firstErr
}
