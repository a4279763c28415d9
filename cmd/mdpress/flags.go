package main

import (
	"io"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-mdpress/internal/config"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
}

// pageFlags holds page geometry flags, all in millimetres.
type pageFlags struct {
	size        string
	orientation string
	margin      float64
	width       float64
	height      float64
}

// footerFlags holds footer-related flags.
type footerFlags struct {
	position   string
	text       string
	date       string
	pageNumber bool
	disabled   bool
}

// renderFlags holds flags that configure the exporter itself.
type renderFlags struct {
	font       string
	fontURL    string
	assetPath  string
	mmdc       string
	theme      string
	chrome     bool
	scale      float64
	timeout    string
	optimize   bool
	diagramJob int
}

// storageFlags select the document database.
type storageFlags struct {
	driver string
	dsn    string
}

// exportFlags holds all flags for the export command.
type exportFlags struct {
	common  commonFlags
	output  string
	workers int
	title   string
	strict  bool
	page    pageFlags
	footer  footerFlags
	render  renderFlags
}

// watchFlags holds flags for the watch command.
type watchFlags struct {
	export  exportFlags
	save    string
	delay   string
	storage storageFlags
}

// previewFlags holds flags for the preview command.
type previewFlags struct {
	common commonFlags
	output string
	title  string
	render renderFlags
}

// docsFlags holds flags for the docs command.
type docsFlags struct {
	common  commonFlags
	font    string
	storage storageFlags
}

// doctorFlags holds flags for the doctor command.
type doctorFlags struct {
	config  string
	mmdc    string
	json    bool
	storage storageFlags
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show debug logs and timings")
}

// addPageFlags adds page layout flags to a FlagSet.
func addPageFlags(fs *flag.FlagSet, f *pageFlags) {
	fs.StringVarP(&f.size, "page-size", "p", "", "page size: a4, letter, legal")
	fs.StringVar(&f.orientation, "orientation", "", "page orientation: portrait, landscape")
	fs.Float64Var(&f.margin, "margin", 0, "page margin in mm (5-75)")
	fs.Float64Var(&f.width, "width", 0, "custom page width in mm (with --height)")
	fs.Float64Var(&f.height, "height", 0, "custom page height in mm (with --width)")
}

// addFooterFlags adds footer flags to a FlagSet.
func addFooterFlags(fs *flag.FlagSet, f *footerFlags) {
	fs.StringVar(&f.position, "footer-position", "", "footer position: left, center, right")
	fs.StringVar(&f.text, "footer-text", "", "custom footer text")
	fs.StringVar(&f.date, "footer-date", "", "footer date: literal, auto or auto:FORMAT")
	fs.BoolVar(&f.pageNumber, "footer-page-number", false, "show page numbers in footer")
	fs.BoolVar(&f.disabled, "no-footer", false, "disable footer")
}

// addRenderFlags adds exporter flags to a FlagSet.
func addRenderFlags(fs *flag.FlagSet, f *renderFlags) {
	fs.StringVarP(&f.font, "font", "f", "", "body font name, loaded from fonts/<name>.ttf")
	fs.StringVar(&f.fontURL, "font-url", "", "fetch fonts from <url>/assets/fonts/<name>.ttf")
	fs.StringVar(&f.assetPath, "assets", "", "custom asset directory (styles/, fonts/)")
	fs.StringVar(&f.mmdc, "mmdc", "", "mermaid CLI executable")
	fs.StringVar(&f.theme, "theme", "", "mermaid theme: default, dark, forest, neutral")
	fs.IntVar(&f.diagramJob, "diagram-jobs", 0, "concurrent mermaid processes (0 = default)")
	fs.BoolVar(&f.chrome, "chrome", false, "rasterize diagrams with headless Chrome")
	fs.Float64Var(&f.scale, "scale", 0, "diagram rasterization scale (default 2)")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "export timeout (e.g., 30s, 2m)")
	fs.BoolVar(&f.optimize, "optimize", false, "optimize PDF output")
}

// addStorageFlags adds database flags to a FlagSet.
func addStorageFlags(fs *flag.FlagSet, f *storageFlags) {
	fs.StringVar(&f.driver, "driver", "", "database driver: sqlite, postgres")
	fs.StringVar(&f.dsn, "db", "", "database file (sqlite) or URL (postgres)")
}

func addExportFlags(fs *flag.FlagSet, f *exportFlags) {
	fs.StringVarP(&f.output, "output", "o", "", "output file or directory")
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel exports (0 = auto)")
	fs.StringVar(&f.title, "title", "", "PDF title (default: file name)")
	fs.BoolVar(&f.strict, "strict", false, "fail when a diagram cannot be rendered")
	addCommonFlags(fs, &f.common)
	addPageFlags(fs, &f.page)
	addFooterFlags(fs, &f.footer)
	addRenderFlags(fs, &f.render)
}

func newFlagSet(name string, usage func(io.Writer), stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	return fs
}

// parseExportFlags parses export command flags and returns positional args.
func parseExportFlags(args []string, stderr io.Writer) (*exportFlags, []string, error) {
	f := &exportFlags{}
	fs := newFlagSet("export", printExportUsage, stderr)
	addExportFlags(fs, f)
	if err := fs.Parse(args); err != nil {
		return nil, nil, usageError(err)
	}
	return f, fs.Args(), nil
}

// parseWatchFlags parses watch command flags and returns positional args.
func parseWatchFlags(args []string, stderr io.Writer) (*watchFlags, []string, error) {
	f := &watchFlags{}
	fs := newFlagSet("watch", printWatchUsage, stderr)
	addExportFlags(fs, &f.export)
	addStorageFlags(fs, &f.storage)
	fs.StringVar(&f.save, "save", "", "also save edits to the document store under this name")
	fs.StringVar(&f.delay, "delay", "", "quiet period before re-export and auto-save (default 2s)")
	if err := fs.Parse(args); err != nil {
		return nil, nil, usageError(err)
	}
	return f, fs.Args(), nil
}

// parsePreviewFlags parses preview command flags and returns positional args.
func parsePreviewFlags(args []string, stderr io.Writer) (*previewFlags, []string, error) {
	f := &previewFlags{}
	fs := newFlagSet("preview", printPreviewUsage, stderr)
	fs.StringVarP(&f.output, "output", "o", "", "output HTML file (default: stdout)")
	fs.StringVar(&f.title, "title", "", "page title (default: file name)")
	addCommonFlags(fs, &f.common)
	addRenderFlags(fs, &f.render)
	if err := fs.Parse(args); err != nil {
		return nil, nil, usageError(err)
	}
	return f, fs.Args(), nil
}

// parseDocsFlags parses docs command flags and returns positional args.
func parseDocsFlags(args []string, stderr io.Writer) (*docsFlags, []string, error) {
	f := &docsFlags{}
	fs := newFlagSet("docs", printDocsUsage, stderr)
	addCommonFlags(fs, &f.common)
	addStorageFlags(fs, &f.storage)
	fs.StringVarP(&f.font, "font", "f", "", "font name stored with the document (put)")
	if err := fs.Parse(args); err != nil {
		return nil, nil, usageError(err)
	}
	return f, fs.Args(), nil
}

// parseDoctorFlags parses doctor command flags.
func parseDoctorFlags(args []string, stderr io.Writer) (*doctorFlags, error) {
	f := &doctorFlags{}
	fs := newFlagSet("doctor", printDoctorUsage, stderr)
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.StringVar(&f.mmdc, "mmdc", "", "mermaid CLI executable to check")
	fs.BoolVar(&f.json, "json", false, "machine-readable output")
	addStorageFlags(fs, &f.storage)
	if err := fs.Parse(args); err != nil {
		return nil, usageError(err)
	}
	return f, nil
}

// mergeRenderFlags merges exporter flags into config. CLI values override config values.
func mergeRenderFlags(f *renderFlags, cfg *config.Config) {
	if f.font != "" {
		cfg.Font.Name = f.font
	}
	if f.fontURL != "" {
		cfg.Font.BaseURL = f.fontURL
	}
	if f.assetPath != "" {
		cfg.Assets.BasePath = f.assetPath
	}
	if f.mmdc != "" {
		cfg.Diagram.Command = f.mmdc
	}
	if f.theme != "" {
		cfg.Diagram.Theme = f.theme
	}
	if f.diagramJob > 0 {
		cfg.Diagram.Concurrency = f.diagramJob
	}
	if f.chrome {
		cfg.Diagram.Rasterizer = config.RasterizerChrome
	}
	if f.scale > 0 {
		cfg.Diagram.Scale = f.scale
	}
	if f.timeout != "" {
		cfg.Export.Timeout = f.timeout
	}
	if f.optimize {
		cfg.Export.Optimize = true
	}
}

// mergeExportFlags merges export flags into config. CLI values override config values.
func mergeExportFlags(f *exportFlags, cfg *config.Config) {
	mergeRenderFlags(&f.render, cfg)

	if f.output != "" {
		cfg.Output.DefaultDir = f.output
	}
	if f.workers > 0 {
		cfg.Export.Workers = f.workers
	}

	if f.page.size != "" {
		cfg.Page.Size = f.page.size
	}
	if f.page.orientation != "" {
		cfg.Page.Orientation = f.page.orientation
	}
	if f.page.margin != 0 {
		cfg.Page.Margin = f.page.margin
	}
	if f.page.width != 0 {
		cfg.Page.Width = f.page.width
	}
	if f.page.height != 0 {
		cfg.Page.Height = f.page.height
	}

	// Any footer flag enables the footer.
	if f.footer.position != "" || f.footer.text != "" || f.footer.date != "" || f.footer.pageNumber {
		cfg.Footer.Enabled = true
	}
	if f.footer.position != "" {
		cfg.Footer.Position = f.footer.position
	}
	if f.footer.text != "" {
		cfg.Footer.Text = f.footer.text
	}
	if f.footer.date != "" {
		cfg.Footer.Date = f.footer.date
	}
	if f.footer.pageNumber {
		cfg.Footer.ShowPageNumber = true
	}
	if f.footer.disabled {
		cfg.Footer.Enabled = false
	}
}

// mergeStorageFlags merges database flags into config.
func mergeStorageFlags(f *storageFlags, cfg *config.Config) {
	if f.driver != "" {
		cfg.Storage.Driver = f.driver
	}
	if f.dsn != "" {
		cfg.Storage.DSN = f.dsn
	}
}
